// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoBearerToken is returned by VerifyBearer when the request carries no
// (or a malformed) Authorization header.
var ErrNoBearerToken = errors.New("auth: no bearer token presented")

// Principal is the verified identity extracted from a bearer token.
type Principal struct {
	Subject string
	Claims  jwt.MapClaims
}

// BearerVerifier verifies inbound bearer tokens. It only consults an
// externally issued token's signature and claims; it never issues tokens
// or runs an authorization flow itself (that's the authorization server's
// job, out of scope for this module).
type BearerVerifier struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewBearerVerifier creates a BearerVerifier that validates tokens using
// keyFunc to resolve the signing key per the token's header (as
// jwt.Keyfunc documents).
func NewBearerVerifier(keyFunc jwt.Keyfunc) *BearerVerifier {
	return &BearerVerifier{
		keyFunc: keyFunc,
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"})),
	}
}

// ExtractBearerToken pulls the token out of an Authorization: Bearer header
// value.
func ExtractBearerToken(authorizationHeader string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return "", ErrNoBearerToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, prefix))
	if token == "" {
		return "", ErrNoBearerToken
	}
	return token, nil
}

// Verify parses and validates tokenString, returning the resulting
// Principal.
func (v *BearerVerifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid bearer token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: bearer token failed validation")
	}
	sub, _ := claims.GetSubject()
	return &Principal{Subject: sub, Claims: claims}, nil
}
