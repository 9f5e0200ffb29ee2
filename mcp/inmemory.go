// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"io"
)

// inMemoryTransport is a Transport whose single Connect call returns a
// fixed Connection, for wiring together a Server and Client in the same
// process without a real stdio, TCP, or HTTP transport underneath.
type inMemoryTransport struct {
	conn Connection
}

func (t *inMemoryTransport) Connect(ctx context.Context) (Connection, error) {
	return t.conn, nil
}

// NewInMemoryTransports returns a connected pair of transports, one for a
// Server and one for a Client, that exchange messages over an in-process
// pipe using the same newline-delimited JSON-RPC framing every other
// Connection in this package uses. It is intended for tests and for
// embedding a server and client in the same process.
func NewInMemoryTransports() (clientTransport, serverTransport Transport) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	id := randText()
	clientConn := newPipeConn(cr, cw, id)
	serverConn := newPipeConn(sr, sw, id)
	return &inMemoryTransport{conn: clientConn}, &inMemoryTransport{conn: serverConn}
}
