// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"io"
	"testing"
	"time"
)

// pairedPipeConns returns two Connections, a and b, wired so that writes to
// one are readable from the other — enough to stand in for a backend peer
// and its client view in these tests, without a real transport.
func pairedPipeConns(t *testing.T) (a, b Connection) {
	t.Helper()
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	ac := newPipeConn(ar, aw, "a")
	bc := newPipeConn(br, bw, "b")
	t.Cleanup(func() {
		ac.Close()
		bc.Close()
	})
	return ac, bc
}

// TestProxyFansInTwoFrontends registers two frontend sessions with
// colliding request ids ("1") against one shared backend connection, and
// checks each frontend only ever sees the response to its own request —
// the id-collision scenario the C4 ID translator exists to prevent.
func TestProxyFansInTwoFrontends(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backendSide, proxySide := pairedPipeConns(t)
	proxy := NewProxy(proxySide, ProxyOptions{})
	defer proxy.Close()

	front1Conn, front1Peer := pairedPipeConns(t)
	front2Conn, front2Peer := pairedPipeConns(t)
	front1 := newSession("front-1", front1Conn)
	front2 := newSession("front-2", front2Conn)
	proxy.Register(front1)
	proxy.Register(front2)

	go proxy.ServeBackend(ctx)

	// Both frontends issue a request with the same id; the proxy must
	// mint distinct backend ids so the backend never sees a collision.
	if err := proxy.Forward(ctx, front1, &JSONRPCRequest{ID: NewStringID("1"), Method: "tools/call"}); err != nil {
		t.Fatalf("Forward(front1): %v", err)
	}
	if err := proxy.Forward(ctx, front2, &JSONRPCRequest{ID: NewStringID("1"), Method: "tools/call"}); err != nil {
		t.Fatalf("Forward(front2): %v", err)
	}

	seenIDs := make(map[string]bool)
	for i := 0; i < 2; i++ {
		msg, err := backendSide.Read(ctx)
		if err != nil {
			t.Fatalf("reading forwarded request %d: %v", i, err)
		}
		req, ok := msg.(*JSONRPCRequest)
		if !ok {
			t.Fatalf("forwarded message %d has type %T, want *JSONRPCRequest", i, msg)
		}
		if req.ID.String() == "1" {
			t.Errorf("forwarded request %d kept the original id %q; want a rewritten backend id", i, req.ID.String())
		}
		if seenIDs[req.ID.String()] {
			t.Errorf("backend saw duplicate id %q across two distinct frontend requests", req.ID.String())
		}
		seenIDs[req.ID.String()] = true

		// The backend answers with whatever id it was given.
		if err := backendSide.Write(ctx, &JSONRPCResponse{ID: req.ID, Result: []byte(`"ok"`)}); err != nil {
			t.Fatalf("writing backend response %d: %v", i, err)
		}
	}

	gotFront1, err := front1Peer.Read(ctx)
	if err != nil {
		t.Fatalf("front1 reading its routed response: %v", err)
	}
	resp1, ok := gotFront1.(*JSONRPCResponse)
	if !ok || resp1.ID.String() != "1" {
		t.Errorf("front1 got %#v, want a response with id \"1\"", gotFront1)
	}

	gotFront2, err := front2Peer.Read(ctx)
	if err != nil {
		t.Fatalf("front2 reading its routed response: %v", err)
	}
	resp2, ok := gotFront2.(*JSONRPCResponse)
	if !ok || resp2.ID.String() != "1" {
		t.Errorf("front2 got %#v, want a response with id \"1\"", gotFront2)
	}
}

// TestProxyExhaustedTable checks that Forward surfaces ErrExhausted (via a
// KindRateLimit DomainError) once MaxMappings in-flight requests
// are outstanding, rather than silently dropping one.
func TestProxyExhaustedTable(t *testing.T) {
	ctx := context.Background()
	_, proxySide := pairedPipeConns(t)
	proxy := NewProxy(proxySide, ProxyOptions{MaxMappings: 1})
	defer proxy.Close()

	frontConn, _ := pairedPipeConns(t)
	front := newSession("front-1", frontConn)
	proxy.Register(front)

	if err := proxy.Forward(ctx, front, &JSONRPCRequest{ID: NewStringID("1"), Method: "tools/call"}); err != nil {
		t.Fatalf("first Forward: unexpected error %v", err)
	}
	err := proxy.Forward(ctx, front, &JSONRPCRequest{ID: NewStringID("2"), Method: "tools/call"})
	if err == nil {
		t.Fatal("second Forward: got nil error, want KindRateLimit once MaxMappings is reached")
	}
	de, ok := err.(*DomainError)
	if !ok {
		t.Fatalf("second Forward: got error of type %T, want *DomainError", err)
	}
	if de.Kind != KindRateLimit {
		t.Errorf("second Forward: got error kind %v, want %v", de.Kind, KindRateLimit)
	}
}
