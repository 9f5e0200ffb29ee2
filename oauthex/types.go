// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file holds the metadata document shapes shared by the discovery and
// registration flows implemented elsewhere in the package.

//go:build mcp_go_client_oauth

package oauthex

// ProtectedResourceMetadata is the JSON document served at
// /.well-known/oauth-protected-resource, as defined by RFC 9728 section 2.
type ProtectedResourceMetadata struct {
	Resource                           string   `json:"resource"`
	AuthorizationServers               []string `json:"authorization_servers,omitempty"`
	JWKSURI                            string   `json:"jwks_uri,omitempty"`
	ScopesSupported                    []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported             []string `json:"bearer_methods_supported,omitempty"`
	ResourceSigningAlgValuesSupported  []string `json:"resource_signing_alg_values_supported,omitempty"`
	ResourceDocumentation              string   `json:"resource_documentation,omitempty"`
	ResourcePolicyURI                  string   `json:"resource_policy_uri,omitempty"`
	ResourceTOSURI                     string   `json:"resource_tos_uri,omitempty"`
}

// AuthServerMeta is the JSON document served at
// /.well-known/oauth-authorization-server, as defined by RFC 8414 section 2.
//
// Only the fields consulted by this package's client flows are included;
// unrecognized fields in the source document are ignored by [GetAuthServerMeta].
type AuthServerMeta struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`

	// ClientIDMetadataDocumentSupported reports whether the authorization
	// server supports Client ID Metadata Document based registration, per
	// https://datatracker.ietf.org/doc/html/draft-ietf-oauth-client-id-metadata-document-00.
	// This is not (yet) a registered metadata field name; servers that
	// support it advertise it via this boolean.
	ClientIDMetadataDocumentSupported bool `json:"client_id_metadata_document_supported,omitempty"`
}

// ClientRegistrationMetadata is the client metadata sent in a Dynamic Client
// Registration request, as defined by RFC 7591 section 2.
type ClientRegistrationMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientRegistrationResponse is the client information document returned by
// a successful Dynamic Client Registration, per RFC 7591 section 3.2.1.
type ClientRegistrationResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret             string `json:"client_secret,omitempty"`
	ClientIDIssuedAt         int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt    int64  `json:"client_secret_expires_at,omitempty"`
	TokenEndpointAuthMethod  string `json:"token_endpoint_auth_method,omitempty"`
}

// registrationErrorResponse is the error document returned by a failed
// Dynamic Client Registration, per RFC 7591 section 3.2.2.
type registrationErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
