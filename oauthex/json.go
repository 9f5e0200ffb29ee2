// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build mcp_go_client_oauth

package oauthex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// getJSON issues a GET request to urlStr and decodes the JSON response body
// into a value of type T, using c (or [http.DefaultClient] if nil). The
// response body is capped at maxBytes to bound memory use against a
// misbehaving or malicious server.
func getJSON[T any](ctx context.Context, c *http.Client, urlStr string, maxBytes int64) (*T, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", urlStr, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("GET %s: decoding response: %w", urlStr, err)
	}
	return &v, nil
}

// checkURLScheme rejects URLs that aren't plain http(s) URLs, guarding
// against javascript: and data: URLs being smuggled through a metadata
// document and later opened in a browser (see the similar check on
// authorization server URLs in resource_meta.go, #526).
func checkURLScheme(u string) error {
	pu, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", u, err)
	}
	if pu.Scheme != "http" && pu.Scheme != "https" {
		return fmt.Errorf("URL %q does not use http(s)", u)
	}
	return nil
}
