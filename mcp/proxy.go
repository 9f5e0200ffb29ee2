// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/conduit-mcp/conduit/internal/idmap"
)

// ProxyOptions configures a Proxy's id-translation table.
type ProxyOptions struct {
	// MaxMappings bounds how many requests may be in flight across every
	// frontend sharing the backend connection at once. Defaults to 10000.
	MaxMappings int
	// MappingTTL bounds how long a forwarded request may stay
	// unanswered before its id mapping is evicted and the backend's
	// eventual (late) response is dropped as unroutable. Defaults to 5
	// minutes.
	MappingTTL time.Duration
}

// Proxy fans requests in from any number of upstream ServerSessions onto a
// single downstream Connection — one shared backend MCP peer — rewriting
// each request's id into one unique across the whole multiplexed
// connection, and reversing that rewrite on the matching response so it
// reaches the frontend session that actually issued it. This is the C4 ID
// translator's architectural role: letting multiple upstream callers share
// one downstream peer without id collisions.
type Proxy struct {
	backend Connection
	ids     *idmap.Map

	mu        sync.Mutex
	frontends map[string]*ServerSession
}

// NewProxy creates a Proxy fanning requests in onto backend.
func NewProxy(backend Connection, opts ProxyOptions) *Proxy {
	maxMappings := opts.MaxMappings
	if maxMappings <= 0 {
		maxMappings = 10000
	}
	ttl := opts.MappingTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Proxy{
		backend:   backend,
		ids:       idmap.New(maxMappings, ttl),
		frontends: make(map[string]*ServerSession),
	}
}

// Register makes frontend eligible to have its requests forwarded through
// this Proxy, and its responses routed back by ServeBackend.
func (p *Proxy) Register(frontend *ServerSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frontends[frontend.ID] = frontend
}

// Unregister stops forwarding for frontend. In-flight mappings for it
// expire on their own TTL; Unregister doesn't attempt to enumerate and
// release them, since the id table has no secondary index from session to
// mapping.
func (p *Proxy) Unregister(frontend *ServerSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.frontends, frontend.ID)
}

// Forward rewrites req's id into one unique across every frontend sharing
// this Proxy's backend connection, records the translation, and writes the
// rewritten request downstream. ServeBackend completes the round trip by
// routing the backend's response back to frontend using the original id.
func (p *Proxy) Forward(ctx context.Context, frontend *ServerSession, req *JSONRPCRequest) error {
	frontendKey := compositeID(frontend.ID, req.ID.String())
	backendID := newRequestID()
	if err := p.ids.Put(frontendKey, backendID.String()); err != nil {
		return WrapDomainError(KindRateLimit, "proxy id translation table", err)
	}
	out := &JSONRPCRequest{ID: backendID, Method: req.Method, Params: req.Params}
	if err := p.backend.Write(ctx, out); err != nil {
		p.ids.Release(frontendKey)
		return WrapDomainError(KindInternal, "forwarding request to backend", err)
	}
	return nil
}

// ServeBackend reads the backend connection until it closes or ctx is
// done, translating each response's id back to its originating frontend
// and session and writing it there. It does not return until the backend
// connection ends, so callers typically run it in its own goroutine.
func (p *Proxy) ServeBackend(ctx context.Context) {
	for {
		msg, err := p.backend.Read(ctx)
		if err != nil {
			return
		}
		resp, ok := msg.(*JSONRPCResponse)
		if !ok {
			// Requests or notifications originating from the backend peer
			// itself aren't addressed to any particular frontend and fall
			// outside this fan-in role; a caller wanting to broadcast
			// those composes a separate handler around the same backend
			// Connection.
			continue
		}
		frontendKey, ok := p.ids.Backward(resp.ID.String())
		if !ok {
			// Unknown, already-routed, or TTL-evicted id: nothing to
			// route this response to.
			continue
		}
		p.ids.Release(frontendKey)
		sessionID, frontendRawID, ok := splitCompositeID(frontendKey)
		if !ok {
			continue
		}
		p.mu.Lock()
		frontend := p.frontends[sessionID]
		p.mu.Unlock()
		if frontend == nil {
			continue
		}
		out := &JSONRPCResponse{ID: NewStringID(frontendRawID), Result: resp.Result, Error: resp.Error}
		_ = frontend.Conn.Write(ctx, out)
	}
}

// Close stops the id table's background eviction sweep.
func (p *Proxy) Close() {
	p.ids.Close()
}

const compositeIDSep = "\x1f" // unit separator: never appears in a session or wire id

func compositeID(sessionID, rawID string) string {
	return sessionID + compositeIDSep + rawID
}

func splitCompositeID(s string) (sessionID, rawID string, ok bool) {
	i := strings.LastIndex(s, compositeIDSep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
