// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"

	"github.com/yosida95/uritemplate/v3"

	"github.com/conduit-mcp/conduit/internal/jsonrpc2"
)

const protocolVersion = "2025-06-18"

// newRouter builds the Router that serves every method this Server
// understands, bridging each typed ServerRequest[P] handler onto the
// Router's untyped Handler signature.
func (s *Server) newRouter() *Router {
	r := NewRouter(RouterOptions{Logger: s.logger})

	r.Handle(methodInitialize, func(rc *RequestContext) (any, error) {
		var params InitializeParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		if err := rc.Session.Lifecycle.BeginInitialize(); err != nil {
			return nil, NewDomainError(KindInvalidRequest, err.Error())
		}
		rc.Session.State.InitializeParams = &params
		serverCaps := s.capabilities()
		if err := rc.Session.Lifecycle.CompleteInitialize(params.Capabilities, serverCaps); err != nil {
			return nil, NewDomainError(KindInvalidRequest, err.Error())
		}
		return &InitializeResult{
			Capabilities:    serverCaps,
			Instructions:    s.opts.Instructions,
			ProtocolVersion: protocolVersion,
			ServerInfo:      s.impl,
		}, nil
	})

	r.HandleNotification(notificationInitialized, func(*RequestContext) {})

	r.Handle(methodPing, func(*RequestContext) (any, error) {
		return struct{}{}, nil
	})

	r.Handle(methodListTools, func(rc *RequestContext) (any, error) {
		var params ListToolsParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		tools := s.tools.list()
		s.mu.Unlock()
		start, end, next, err := paginate(len(tools), params.Cursor, s.opts.pageSize())
		if err != nil {
			return nil, err
		}
		return &ListToolsResult{Tools: tools[start:end], NextCursor: next}, nil
	})

	r.Handle(methodCallTool, func(rc *RequestContext) (any, error) {
		var params CallToolParamsRaw
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return s.callToolAny(rc.Context, newServerRequest(rc.Session, &params))
	})

	r.Handle(methodGetTask, func(rc *RequestContext) (any, error) {
		var params GetTaskParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return s.getTask(rc.Context, newServerRequest(rc.Session, &params))
	})
	r.Handle(methodListTasks, func(rc *RequestContext) (any, error) {
		var params ListTasksParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return s.listTasks(rc.Context, newServerRequest(rc.Session, &params))
	})
	r.Handle(methodCancelTask, func(rc *RequestContext) (any, error) {
		var params CancelTaskParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return s.cancelTask(rc.Context, newServerRequest(rc.Session, &params))
	})
	r.Handle(methodTaskResult, func(rc *RequestContext) (any, error) {
		var params TaskResultParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return s.taskResult(rc.Context, newServerRequest(rc.Session, &params))
	})

	r.Handle(methodListPrompts, func(rc *RequestContext) (any, error) {
		var params ListPromptsParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		prompts := make([]*Prompt, 0, len(s.promptOrder))
		for _, name := range s.promptOrder {
			prompts = append(prompts, s.prompts[name].prompt)
		}
		s.mu.Unlock()
		start, end, next, err := paginate(len(prompts), params.Cursor, s.opts.pageSize())
		if err != nil {
			return nil, err
		}
		return &ListPromptsResult{Prompts: prompts[start:end], NextCursor: next}, nil
	})

	r.Handle(methodGetPrompt, func(rc *RequestContext) (any, error) {
		var params GetPromptParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		p, ok := s.prompts[params.Name]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: unknown prompt %q", jsonrpc2.ErrInvalidParams, params.Name)
		}
		return p.handler(rc.Context, newServerRequest(rc.Session, &params))
	})

	r.Handle(methodListResources, func(rc *RequestContext) (any, error) {
		var params ListResourcesParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		resources := make([]*Resource, 0, len(s.resourceOrder))
		for _, uri := range s.resourceOrder {
			resources = append(resources, s.resources[uri].resource)
		}
		s.mu.Unlock()
		start, end, next, err := paginate(len(resources), params.Cursor, s.opts.pageSize())
		if err != nil {
			return nil, err
		}
		return &ListResourcesResult{Resources: resources[start:end], NextCursor: next}, nil
	})

	r.Handle(methodListResourceTemplates, func(rc *RequestContext) (any, error) {
		var params ListResourceTemplatesParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		templates := make([]*ResourceTemplate, 0, len(s.templateOrder))
		for _, uri := range s.templateOrder {
			templates = append(templates, s.resourceTemplates[uri].template)
		}
		s.mu.Unlock()
		start, end, next, err := paginate(len(templates), params.Cursor, s.opts.pageSize())
		if err != nil {
			return nil, err
		}
		return &ListResourceTemplatesResult{ResourceTemplates: templates[start:end], NextCursor: next}, nil
	})

	r.Handle(methodReadResource, func(rc *RequestContext) (any, error) {
		var params ReadResourceParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		handler, err := s.resourceHandlerFor(params.URI)
		if err != nil {
			return nil, err
		}
		return handler(rc.Context, newServerRequest(rc.Session, &params))
	})

	r.Handle(methodSubscribe, func(rc *RequestContext) (any, error) {
		if s.opts.SubscribeHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		var params SubscribeParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		if err := s.opts.SubscribeHandler(rc.Context, newServerRequest(rc.Session, &params)); err != nil {
			return nil, err
		}
		rc.Session.State.Subscriptions[params.URI] = true
		return struct{}{}, nil
	})
	r.Handle(methodUnsubscribe, func(rc *RequestContext) (any, error) {
		if s.opts.UnsubscribeHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		var params UnsubscribeParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		if err := s.opts.UnsubscribeHandler(rc.Context, newServerRequest(rc.Session, &params)); err != nil {
			return nil, err
		}
		delete(rc.Session.State.Subscriptions, params.URI)
		return struct{}{}, nil
	})

	r.Handle(methodComplete, func(rc *RequestContext) (any, error) {
		if s.opts.CompletionHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		var params CompleteParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return s.opts.CompletionHandler(rc.Context, newServerRequest(rc.Session, &params))
	})

	r.Handle(methodSetLevel, func(rc *RequestContext) (any, error) {
		var params SetLoggingLevelParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		rc.Session.State.LogLevel = params.Level
		return struct{}{}, nil
	})

	return r
}

// resourceHandlerFor resolves uri against the exact resources first, then
// falls back to matching a registered resource template, mirroring the
// precedence order resources/read uses throughout the rest of the pack's
// URI-template matching.
func (s *Server) resourceHandlerFor(uri string) (ResourceHandler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.resources[uri]; ok {
		return res.handler, nil
	}
	for _, tmplURI := range s.templateOrder {
		rt := s.resourceTemplates[tmplURI]
		if resourceTemplateMatches(rt.template.URITemplate, uri) {
			return rt.handler, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown resource %q", jsonrpc2.ErrInvalidParams, uri)
}

// resourceTemplateMatches reports whether uri satisfies the RFC 6570
// template raw.
func resourceTemplateMatches(raw, uri string) bool {
	tmpl, err := uritemplate.New(raw)
	if err != nil {
		return false
	}
	re, err := tmpl.Regexp()
	if err != nil {
		return false
	}
	return re.MatchString(uri)
}

// paginate slices a list of length n starting after cursor (an opaque,
// stringified offset), returning at most pageSize items and the cursor for
// the next page, or "" if there is none.
func paginate(n int, cursor string, pageSize int) (start, end int, next string, err error) {
	start = 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &start); err != nil || start < 0 || start > n {
			return 0, 0, "", fmt.Errorf("%w: invalid cursor %q", jsonrpc2.ErrInvalidParams, cursor)
		}
	}
	end = start + pageSize
	if end > n {
		end = n
	}
	if end < n {
		next = fmt.Sprintf("%d", end)
	}
	return start, end, next, nil
}
