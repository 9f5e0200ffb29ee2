// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/conduit-mcp/conduit/internal/json"
)

// ElicitationHandler answers elicitation/create requests from a server by
// presenting params to the user and returning their response.
type ElicitationHandler interface {
	Elicit(rc *RequestContext, params *ElicitParams) (*ElicitResult, error)
}

// ElicitationHandlerFunc adapts a function to an ElicitationHandler.
type ElicitationHandlerFunc func(rc *RequestContext, params *ElicitParams) (*ElicitResult, error)

func (f ElicitationHandlerFunc) Elicit(rc *RequestContext, params *ElicitParams) (*ElicitResult, error) {
	return f(rc, params)
}

// RegisterElicitationHandler registers the client-side handler for
// elicitation/create, delegating to handler and validating the handler's
// response content against the requested schema before returning it.
func RegisterElicitationHandler(router *Router, handler ElicitationHandler) {
	router.Handle(methodElicit, func(rc *RequestContext) (any, error) {
		var params ElicitParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		result, err := handler.Elicit(rc, &params)
		if err != nil {
			return nil, asDomainError(err)
		}
		if result.Action == "accept" {
			if err := validateElicitationContent(&params, result.Content); err != nil {
				return nil, NewDomainError(KindInvalidParams, err.Error())
			}
		}
		return result, nil
	})
}

// validateElicitationContent checks an accepted elicitation's content
// against the server's requestedSchema, using the same jsonschema-go
// validator the tool/prompt schema machinery already depends on.
func validateElicitationContent(params *ElicitParams, content map[string]any) error {
	if params.RequestedSchema == nil {
		return nil
	}
	schemaJSON, err := json.Marshal(params.RequestedSchema)
	if err != nil {
		return fmt.Errorf("marshaling requested schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return fmt.Errorf("decoding requested schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return fmt.Errorf("resolving requested schema: %w", err)
	}
	if err := resolved.Validate(content); err != nil {
		return fmt.Errorf("elicitation content does not match requested schema: %w", err)
	}
	return nil
}
