// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file parses WWW-Authenticate challenges, per RFC 7235 section 4.1 and
// the bearer-specific extensions in RFC 6750 section 3.

//go:build mcp_go_client_oauth

package oauthex

import (
	"fmt"
	"strings"
)

// challenge is a single auth-scheme challenge parsed from a WWW-Authenticate
// header, e.g. `Bearer realm="example", error="invalid_token"`.
type challenge struct {
	Scheme string
	Params map[string]string
}

// ParseWWWAuthenticate parses the WWW-Authenticate header values of an HTTP
// response into a list of challenges. Multiple header lines, and multiple
// comma-separated challenges within a line, are all flattened into a single
// slice.
func ParseWWWAuthenticate(headers []string) ([]challenge, error) {
	var challenges []challenge
	for _, h := range headers {
		cs, err := parseWWWAuthenticateLine(h)
		if err != nil {
			return nil, fmt.Errorf("parsing WWW-Authenticate header %q: %w", h, err)
		}
		challenges = append(challenges, cs...)
	}
	return challenges, nil
}

func parseWWWAuthenticateLine(h string) ([]challenge, error) {
	var challenges []challenge
	rest := strings.TrimSpace(h)
	for rest != "" {
		scheme, tail, ok := strings.Cut(rest, " ")
		if !ok {
			// A bare scheme with no params (e.g. "Negotiate").
			challenges = append(challenges, challenge{Scheme: strings.ToLower(rest), Params: map[string]string{}})
			break
		}
		params, next := splitChallengeParams(tail)
		c := challenge{Scheme: strings.ToLower(scheme), Params: map[string]string{}}
		for _, p := range params {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				continue
			}
			c.Params[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
		}
		challenges = append(challenges, c)
		rest = strings.TrimSpace(next)
	}
	return challenges, nil
}

// splitChallengeParams splits the auth-param list of a single challenge from
// whatever scheme token (if any) follows it, respecting quoted strings so
// that commas inside quotes (e.g. an error_description) aren't mistaken for
// list separators.
func splitChallengeParams(s string) (params []string, rest string) {
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ',' && !inQuotes:
			trimmed := strings.TrimSpace(cur.String())
			// A following token with no '=' is the next challenge's scheme,
			// not another param of this one.
			if trimmed != "" && !strings.Contains(trimmed, "=") && strings.Contains(trimmed, " ") {
				rest = trimmed + s[i+1:]
				return params, rest
			}
			if trimmed != "" {
				params = append(params, trimmed)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if trimmed := strings.TrimSpace(cur.String()); trimmed != "" {
		params = append(params, trimmed)
	}
	return params, ""
}
