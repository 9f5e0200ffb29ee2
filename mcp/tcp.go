// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"io"
	"net"
)

// TCPClientTransport dials a TCP address and speaks line-delimited JSON-RPC
// over the resulting connection.
type TCPClientTransport struct {
	// Address is the "host:port" to dial.
	Address string
	// Dialer is used to establish the connection. If nil, a zero-value
	// net.Dialer is used.
	Dialer *net.Dialer
}

// Connect dials Address and returns a Connection wrapping the socket.
func (t *TCPClientTransport) Connect(ctx context.Context) (Connection, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, fmt.Errorf("mcp: tcp dial %s: %w", t.Address, err)
	}
	return NewSharedTransport(newNetConn(conn, randText())), nil
}

// TCPServerTransport accepts a single already-listening net.Listener
// connection per Connect call; a caller serving many clients calls Connect
// once per accepted connection (mirroring how the Streamable HTTP
// transport hands the server one Connection per request).
type TCPServerTransport struct {
	Listener net.Listener
}

// Connect blocks until a client dials in, returning the accepted
// connection.
func (t *TCPServerTransport) Connect(ctx context.Context) (Connection, error) {
	conn, err := t.Listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("mcp: tcp accept: %w", err)
	}
	return NewSharedTransport(newNetConn(conn, randText())), nil
}

// newNetConn wraps a net.Conn as a pipeConn, deduplicating the close path
// since conn serves as both the reader and writer side.
func newNetConn(conn net.Conn, sessionID string) *pipeConn {
	c := newPipeConn(conn, conn, sessionID)
	c.closers = []io.Closer{conn}
	return c
}
