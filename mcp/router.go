// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/conduit-mcp/conduit/internal/json"
	"github.com/conduit-mcp/conduit/internal/jsonrpc2"
)

// RequestContext carries everything a Handler needs to serve one inbound
// request or notification: which session it arrived on, the raw params,
// and ambient request metadata (headers, when the transport has them).
type RequestContext struct {
	Context context.Context
	Session *Session
	Method  string
	ID      JSONRPCID
	Params  json.RawMessage
	Headers http.Header

	// AuthPrincipal is set by the auth middleware once a bearer token has
	// been verified; nil if the request arrived unauthenticated.
	AuthPrincipal any
}

// Handler serves one request, returning either a JSON-marshalable result or
// a *DomainError.
type Handler func(rc *RequestContext) (any, error)

// NotificationHandler serves one inbound notification; it cannot reply.
type NotificationHandler func(rc *RequestContext)

// methodsAllowedBeforeReady lists methods the router will dispatch even
// before a session reaches StateReady; everything else is rejected with
// InvalidRequest until initialization completes.
var methodsAllowedBeforeReady = map[string]bool{
	methodInitialize:        true,
	notificationInitialized: true,
	methodPing:              true,
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Logger *slog.Logger
}

// Router performs C6: inbound dispatch. It decodes a message, checks the
// session's lifecycle state, looks up the registered handler for the
// method, runs it through the middleware chain, and produces a Response
// (or, for batches, a slice of them processed concurrently with
// index-preserving order).
type Router struct {
	mu            sync.RWMutex
	handlers      map[string]Handler
	notifications map[string]NotificationHandler
	chain         Chain
	logger        *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers:      make(map[string]Handler),
		notifications: make(map[string]NotificationHandler),
		logger:        logger,
	}
}

// Handle registers h to serve requests for method.
func (r *Router) Handle(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// HandleNotification registers h to serve notifications for method.
func (r *Router) HandleNotification(method string, h NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[method] = h
}

// Use appends middleware to the chain wrapped around every registered
// Handler, in registration order (handler = mw1(mw2(...mwN(core)))).
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chain = append(r.chain, mw...)
}

// Dispatch decodes and serves a single message (request, notification, or
// batch array) received on session, writing any response(s) back via
// session.Conn.
func (r *Router) Dispatch(ctx context.Context, session *Session, raw []byte) {
	msgs, isBatch, err := readBatch(raw)
	if err != nil {
		r.logger.Warn("failed to decode inbound message", "error", err)
		if !isBatch {
			r.writeError(ctx, session, JSONRPCID{}, NewDomainError(KindParseError, err.Error()))
		}
		return
	}
	if len(msgs) == 1 && !isBatch {
		r.dispatchOne(ctx, session, msgs[0])
		return
	}
	var wg sync.WaitGroup
	for _, m := range msgs {
		wg.Add(1)
		go func(m JSONRPCMessage) {
			defer wg.Done()
			r.dispatchOne(ctx, session, m)
		}(m)
	}
	wg.Wait()
}

func (r *Router) dispatchOne(ctx context.Context, session *Session, msg JSONRPCMessage) {
	session.touch()
	switch m := msg.(type) {
	case *JSONRPCRequest:
		r.serveRequest(ctx, session, m)
	case *JSONRPCNotification:
		r.serveNotification(ctx, session, m)
	case *JSONRPCResponse:
		// A response to a server-initiated call; hand it to the
		// correlation table rather than the handler registry.
		if !session.Correlation.Complete(m) {
			r.logger.Debug("dropping response with no matching pending request", "id", m.ID.String())
		}
	}
}

func (r *Router) serveRequest(ctx context.Context, session *Session, req *JSONRPCRequest) {
	if !methodsAllowedBeforeReady[req.Method] && !session.Lifecycle.IsReady() {
		r.writeError(ctx, session, req.ID, NewDomainError(KindInvalidRequest,
			fmt.Sprintf("method %q not allowed before session is ready", req.Method)))
		return
	}

	r.mu.RLock()
	h, ok := r.handlers[req.Method]
	chain := r.chain
	r.mu.RUnlock()
	if !ok {
		r.writeError(ctx, session, req.ID, NewDomainError(KindMethodNotFound, req.Method))
		return
	}

	// Let transports that route by request (StreamableServerTransport)
	// attribute messages sent while handling req to req's stream.
	ctx = context.WithValue(ctx, idContextKey{}, req.ID)
	rc := &RequestContext{Context: ctx, Session: session, Method: req.Method, ID: req.ID, Params: req.Params}
	result, err := chain.Then(h)(rc)
	if err != nil {
		r.writeError(ctx, session, req.ID, asDomainError(err))
		return
	}
	r.writeResult(ctx, session, req.ID, result)
}

func (r *Router) serveNotification(ctx context.Context, session *Session, n *JSONRPCNotification) {
	r.mu.RLock()
	h, ok := r.notifications[n.Method]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("no handler for notification", "method", n.Method)
		return
	}
	h(&RequestContext{Context: ctx, Session: session, Method: n.Method, Params: n.Params})
}

func (r *Router) writeResult(ctx context.Context, session *Session, id JSONRPCID, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		r.writeError(ctx, session, id, NewDomainError(KindInternal, err.Error()))
		return
	}
	if err := session.Conn.Write(ctx, &JSONRPCResponse{ID: id, Result: data}); err != nil {
		r.logger.Warn("failed to write response", "error", err, "session_id", session.ID)
	}
}

func (r *Router) writeError(ctx context.Context, session *Session, id JSONRPCID, derr *DomainError) {
	if err := session.Conn.Write(ctx, &JSONRPCResponse{ID: id, Error: ToWireError(derr)}); err != nil {
		r.logger.Warn("failed to write error response", "error", err, "session_id", session.ID)
	}
}

// unmarshalParams decodes raw into v, translating a decode failure into a
// KindInvalidParams DomainError.
func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewDomainError(KindInvalidParams, err.Error())
	}
	return nil
}

func asDomainError(err error) *DomainError {
	if de, ok := err.(*DomainError); ok {
		return de
	}
	switch {
	case errors.Is(err, jsonrpc2.ErrMethodNotFound):
		return WrapDomainError(KindMethodNotFound, "handler error", err)
	case errors.Is(err, jsonrpc2.ErrInvalidParams):
		return WrapDomainError(KindInvalidParams, "handler error", err)
	case errors.Is(err, jsonrpc2.ErrInvalidRequest):
		return WrapDomainError(KindInvalidRequest, "handler error", err)
	case errors.Is(err, jsonrpc2.ErrParseError):
		return WrapDomainError(KindParseError, "handler error", err)
	}
	return WrapDomainError(KindInternal, "handler error", err)
}
