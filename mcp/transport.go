// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"
)

// TransportState describes where a Connection sits in its own lifecycle,
// independent of the protocol-level session lifecycle in lifecycle.go.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosed
)

// TransportCapabilities reports what a given transport can do, so that the
// router and dispatcher can decide, for example, whether a transport can
// carry server-initiated requests at all (a one-shot POST-only connection
// cannot).
type TransportCapabilities struct {
	// Bidirectional reports whether the transport can carry
	// server-initiated requests in both directions over the same
	// connection.
	Bidirectional bool
	// Streaming reports whether the transport can deliver more than one
	// message per logical request (SSE, WebSocket).
	Streaming bool
}

// Connection is a single, already-established duplex channel of JSON-RPC
// messages. Every transport's Connect method returns one.
type Connection interface {
	// Read blocks until a message arrives, ctx is done, or the connection
	// is closed.
	Read(ctx context.Context) (JSONRPCMessage, error)
	// Write sends a message. It may be called concurrently with Read, but
	// concurrent calls to Write are the caller's responsibility to
	// serialize unless the Connection documents otherwise.
	Write(ctx context.Context, msg JSONRPCMessage) error
	// Close releases the connection's resources. It is safe to call more
	// than once.
	Close() error
	// SessionID returns the session identifier associated with this
	// connection, if any.
	SessionID() string
}

// Transport is anything capable of establishing a Connection: a listening
// stdio pair, an HTTP handler awaiting a client, a dialed WebSocket, and so
// on.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}

// ConnectionCapabilities is implemented by Connections that can report
// TransportCapabilities; transports that don't implement it are assumed
// non-streaming and unidirectional.
type ConnectionCapabilities interface {
	Capabilities() TransportCapabilities
}

// SharedTransport wraps a Connection so that Write calls from multiple
// goroutines are serialized behind a single lock, mirroring the locking
// discipline already used by the Streamable HTTP and WebSocket connection
// types (a single mu guarding the write path). It's useful for transports,
// like TCP and Unix-domain sockets, whose underlying io.Writer is not safe
// for concurrent use.
type SharedTransport struct {
	conn Connection
	mu   sync.Mutex
}

// NewSharedTransport wraps conn for concurrent-safe writes.
func NewSharedTransport(conn Connection) *SharedTransport {
	return &SharedTransport{conn: conn}
}

func (s *SharedTransport) Read(ctx context.Context) (JSONRPCMessage, error) {
	return s.conn.Read(ctx)
}

func (s *SharedTransport) Write(ctx context.Context, msg JSONRPCMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, msg)
}

func (s *SharedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *SharedTransport) SessionID() string {
	return s.conn.SessionID()
}

func (s *SharedTransport) Capabilities() TransportCapabilities {
	if cc, ok := s.conn.(ConnectionCapabilities); ok {
		return cc.Capabilities()
	}
	return TransportCapabilities{}
}
