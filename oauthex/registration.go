// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements OAuth 2.0 Dynamic Client Registration.
// See https://www.rfc-editor.org/rfc/rfc7591.html.

//go:build mcp_go_client_oauth

package oauthex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/conduit-mcp/conduit/internal/util"
)

// RegisterClient registers a new OAuth client with the authorization server
// at registrationEndpoint, using c (or [http.DefaultClient] if nil).
func RegisterClient(ctx context.Context, registrationEndpoint string, meta *ClientRegistrationMetadata, c *http.Client) (_ *ClientRegistrationResponse, err error) {
	defer util.Wrapf(&err, "RegisterClient(%q)", registrationEndpoint)

	if registrationEndpoint == "" {
		return nil, fmt.Errorf("server metadata does not contain a registration_endpoint")
	}
	if err := checkURLScheme(registrationEndpoint); err != nil {
		return nil, err
	}
	if c == nil {
		c = http.DefaultClient
	}

	body, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var regErr registrationErrorResponse
		if json.Unmarshal(respBody, &regErr) == nil && regErr.Error != "" {
			if regErr.ErrorDescription != "" {
				return nil, fmt.Errorf("registration failed: %s (%s)", regErr.Error, regErr.ErrorDescription)
			}
			return nil, fmt.Errorf("registration failed: %s", regErr.Error)
		}
		return nil, fmt.Errorf("registration failed with status %s", resp.Status)
	}

	var info ClientRegistrationResponse
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("decoding registration response: %w", err)
	}
	if info.ClientID == "" {
		return nil, fmt.Errorf("registration response is missing required 'client_id' field")
	}
	return &info, nil
}
