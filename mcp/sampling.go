// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// SamplingHandler answers sampling/createMessage requests from a server,
// completing an LLM sampling request on the client's behalf. This module
// does not implement an LLM provider adapter (that's an explicit
// non-goal); SamplingHandler is the seam a caller plugs one into.
type SamplingHandler interface {
	CreateMessage(rc *RequestContext, params *CreateMessageParams) (*CreateMessageResult, error)
}

// SamplingHandlerFunc adapts a function to a SamplingHandler.
type SamplingHandlerFunc func(rc *RequestContext, params *CreateMessageParams) (*CreateMessageResult, error)

func (f SamplingHandlerFunc) CreateMessage(rc *RequestContext, params *CreateMessageParams) (*CreateMessageResult, error) {
	return f(rc, params)
}

// RegisterSamplingHandler registers the client-side handler for
// sampling/createMessage, delegating to handler.
func RegisterSamplingHandler(router *Router, handler SamplingHandler) {
	router.Handle(methodCreateMessage, func(rc *RequestContext) (any, error) {
		var params CreateMessageParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		result, err := handler.CreateMessage(rc, &params)
		if err != nil {
			return nil, asDomainError(err)
		}
		return result, nil
	})
}
