// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build mcp_go_client_oauth

package oauthex

import (
	"encoding/json"
	"net/http"
)

// NewFakeMCPServerMux returns a handler serving a minimal, PKCE-requiring
// authorization server metadata document at the RFC 8414 well-known path,
// for use in tests of [GetAuthServerMeta] against an httptest.Server.
func NewFakeMCPServerMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wellKnownAuthServerMetadataPath, func(w http.ResponseWriter, r *http.Request) {
		issuer := "https://" + r.Host
		metadata := map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + "/authorize",
			"token_endpoint":                         issuer + "/token",
			"registration_endpoint":                  issuer + "/register",
			"scopes_supported":                       []string{"mcp"},
			"response_types_supported":               []string{"code"},
			"grant_types_supported":                  []string{"authorization_code"},
			"token_endpoint_auth_methods_supported":  []string{"none"},
			"code_challenge_methods_supported":       []string{"S256"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metadata)
	})
	return mux
}
