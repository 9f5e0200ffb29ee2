// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/conduit-mcp/conduit/internal/json"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// DefaultTimeout bounds how long a server-initiated call waits for a
	// response before completing with a KindTimeout DomainError.
	DefaultTimeout time.Duration
}

// Dispatcher performs C7: the uniform algorithm behind every
// server-initiated call (ping, elicitation/create, sampling/createMessage,
// roots/list). Each call mints a fresh id, registers it in the session's
// correlation table, sends the request, and waits for either a matching
// response or a timeout — translating any wire error back to its original
// DomainError kind rather than collapsing it to KindInternal.
type Dispatcher struct {
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	timeout := opts.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{timeout: timeout}
}

// newRequestID mints a fresh, unguessable request id for an outbound call:
// a random (version 4) UUID in its canonical 8-4-4-4-12 hex form.
func newRequestID() JSONRPCID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant
	return NewStringID(fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]))
}

// Call sends method with the given params to session's client, blocks for
// a matching response, and unmarshals its result into result. It returns a
// *DomainError on any failure path: capability gating, send failure,
// timeout, or a wire error translated back to its original kind.
func (d *Dispatcher) Call(ctx context.Context, session *Session, method string, params any, result any) error {
	if !session.Lifecycle.IsReady() {
		return NewDomainError(KindInvalidRequest, "session is not ready for server-initiated calls")
	}
	if err := d.checkCapability(session, method); err != nil {
		return err
	}
	return rawCall(ctx, session, d.timeout, method, params, result)
}

// rawCall implements the request/correlate/wait algorithm shared by every
// outbound call this module makes over an established Session, regardless
// of which side (server or client) is making it: [Dispatcher.Call] wraps it
// with server-initiated capability gating, and the Client's typed methods
// (CallTool, ListTools, etc.) use it directly.
func rawCall(ctx context.Context, session *Session, timeout time.Duration, method string, params, result any) error {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return WrapDomainError(KindInternal, "marshaling request params", err)
	}

	id := newRequestID()
	done := session.Correlation.Register(id, method, timeout)

	req := &JSONRPCRequest{ID: id, Method: method, Params: paramsRaw}
	if err := session.Conn.Write(ctx, req); err != nil {
		session.Correlation.Cancel(id)
		return WrapDomainError(KindInternal, "sending request", err)
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case resp := <-done:
		if resp == nil {
			return WrapDomainError(KindTimeout, method, ErrCorrelationTimeout)
		}
		if resp.IsError() {
			return FromWireError(resp.Error)
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return WrapDomainError(KindInternal, "unmarshaling response result", err)
			}
		}
		return nil
	case <-timeoutC:
		session.Correlation.Cancel(id)
		return WrapDomainError(KindTimeout, method, ErrCorrelationTimeout)
	case <-ctx.Done():
		session.Correlation.Cancel(id)
		return WrapDomainError(KindTimeout, method, ctx.Err())
	}
}

func (d *Dispatcher) checkCapability(session *Session, method string) error {
	switch method {
	case methodPing:
		return nil
	case methodElicit:
		if !session.Lifecycle.SupportsElicitation() {
			return NewDomainError(KindCapabilityNotSupported, "client does not support elicitation")
		}
	case methodCreateMessage:
		if !session.Lifecycle.SupportsSampling() {
			return NewDomainError(KindCapabilityNotSupported, "client does not support sampling")
		}
	case methodListRoots:
		if !session.Lifecycle.SupportsRoots() {
			return NewDomainError(KindCapabilityNotSupported, "client does not support roots")
		}
	default:
		return NewDomainError(KindCapabilityNotSupported, "unknown server-initiated method "+method)
	}
	return nil
}

// Ping sends a ping and waits for the empty result.
func (d *Dispatcher) Ping(ctx context.Context, session *Session) error {
	return d.Call(ctx, session, methodPing, &PingParams{}, nil)
}

// Elicit sends an elicitation/create request and returns the client's
// ElicitResult.
func (d *Dispatcher) Elicit(ctx context.Context, session *Session, params *ElicitParams) (*ElicitResult, error) {
	var result ElicitResult
	if err := d.Call(ctx, session, methodElicit, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateMessage sends a sampling/createMessage request and returns the
// client's CreateMessageResult.
func (d *Dispatcher) CreateMessage(ctx context.Context, session *Session, params *CreateMessageParams) (*CreateMessageResult, error) {
	var result CreateMessageResult
	if err := d.Call(ctx, session, methodCreateMessage, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRoots sends a roots/list request and returns the client's
// ListRootsResult.
func (d *Dispatcher) ListRoots(ctx context.Context, session *Session) (*ListRootsResult, error) {
	var result ListRootsResult
	if err := d.Call(ctx, session, methodListRoots, &ListRootsParams{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
