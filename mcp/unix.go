// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"net"
)

// UnixClientTransport dials a Unix-domain socket and speaks line-delimited
// JSON-RPC over the resulting connection. Useful for a server and its
// local clients sharing a single host without exposing a TCP port.
type UnixClientTransport struct {
	// Path is the socket path to dial.
	Path string
}

// Connect dials Path and returns a Connection wrapping the socket.
func (t *UnixClientTransport) Connect(ctx context.Context) (Connection, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", t.Path)
	if err != nil {
		return nil, fmt.Errorf("mcp: unix dial %s: %w", t.Path, err)
	}
	return NewSharedTransport(newNetConn(conn, randText())), nil
}

// UnixServerTransport accepts connections from a net.Listener bound to a
// Unix-domain socket (see net.Listen("unix", path)), one Connection per
// Connect call.
type UnixServerTransport struct {
	Listener net.Listener
}

// Connect blocks until a client dials in, returning the accepted
// connection.
func (t *UnixServerTransport) Connect(ctx context.Context) (Connection, error) {
	conn, err := t.Listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("mcp: unix accept: %w", err)
	}
	return NewSharedTransport(newNetConn(conn, randText())), nil
}
