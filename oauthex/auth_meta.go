// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements Authorization Server Metadata discovery.
// See https://www.rfc-editor.org/rfc/rfc8414.html.

//go:build mcp_go_client_oauth

package oauthex

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/conduit-mcp/conduit/internal/util"
)

const wellKnownAuthServerMetadataPath = "/.well-known/oauth-authorization-server"

// GetAuthServerMeta retrieves the authorization server metadata for issuer,
// using c (or [http.DefaultClient] if nil).
//
// issuer is the authorization server's issuer identifier, typically a base
// URL such as "https://auth.example.com". GetAuthServerMeta fetches
// issuer + [wellKnownAuthServerMetadataPath] and validates that the
// document's issuer field matches, per RFC 8414 section 3.3.
//
// If the server responds 404, GetAuthServerMeta returns (nil, nil) so
// callers can fall back to the predefined endpoints described in the MCP
// 2025-03-26 authorization spec.
func GetAuthServerMeta(ctx context.Context, issuer string, c *http.Client) (_ *AuthServerMeta, err error) {
	defer util.Wrapf(&err, "GetAuthServerMeta(%q)", issuer)

	metadataURL := strings.TrimRight(issuer, "/") + wellKnownAuthServerMetadataPath
	asm, err := getJSON[AuthServerMeta](ctx, c, metadataURL, 1<<20)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if asm.Issuer != issuer {
		return nil, fmt.Errorf("got metadata issuer %q, want %q", asm.Issuer, issuer)
	}
	if err := checkURLScheme(asm.AuthorizationEndpoint); err != nil {
		return nil, err
	}
	if err := checkURLScheme(asm.TokenEndpoint); err != nil {
		return nil, err
	}
	// MCP authorization requires PKCE (RFC 7636) with S256; reject servers
	// that advertise support but omit it.
	if len(asm.CodeChallengeMethodsSupported) > 0 && !slices.Contains(asm.CodeChallengeMethodsSupported, "S256") {
		return nil, fmt.Errorf("authorization server %q does not support PKCE with S256", issuer)
	}
	return asm, nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "404")
}
