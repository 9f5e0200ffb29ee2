// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"testing"
	"time"
)

func TestSessionManagerCreateGetDelete(t *testing.T) {
	mgr := NewSessionManager(SessionManagerOptions{})
	defer mgr.Close()

	conn := &fakeConn{}
	mgr.Create("a", conn)
	if got, want := mgr.Len(), 1; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	s, ok := mgr.Get("a")
	if !ok {
		t.Fatal("Get(a) = false, want true")
	}
	if s.ID != "a" {
		t.Errorf("s.ID = %q, want %q", s.ID, "a")
	}

	mgr.Delete("a")
	if got, want := mgr.Len(), 0; got != want {
		t.Fatalf("Len() after Delete = %d, want %d", got, want)
	}
	if !conn.closed {
		t.Error("Delete must close the session's connection")
	}
	if _, ok := mgr.Get("a"); ok {
		t.Error("Get(a) after Delete = true, want false")
	}
}

func TestSessionManagerGetUnknownSession(t *testing.T) {
	mgr := NewSessionManager(SessionManagerOptions{})
	defer mgr.Close()
	if _, ok := mgr.Get("missing"); ok {
		t.Fatal("Get(missing) = true, want false")
	}
}

func TestSessionManagerDeleteUnknownSessionIsNoop(t *testing.T) {
	mgr := NewSessionManager(SessionManagerOptions{})
	defer mgr.Close()
	mgr.Delete("missing")
	if got, want := mgr.Len(), 0; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestSessionManagerEvictsIdleSessions(t *testing.T) {
	mgr := NewSessionManager(SessionManagerOptions{
		IdleTimeout:   20 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})
	defer mgr.Close()

	conn := &fakeConn{}
	mgr.Create("idle", conn)

	deadline := time.Now().Add(2 * time.Second)
	for mgr.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got, want := mgr.Len(), 0; got != want {
		t.Fatalf("Len() after idle sweep = %d, want %d", got, want)
	}
	if !conn.closed {
		t.Error("idle eviction must close the session's connection")
	}
}

func TestSessionManagerCloseClosesAllSessions(t *testing.T) {
	mgr := NewSessionManager(SessionManagerOptions{})
	connA := &fakeConn{}
	connB := &fakeConn{}
	mgr.Create("a", connA)
	mgr.Create("b", connB)

	mgr.Close()

	if !connA.closed || !connB.closed {
		t.Fatal("Close must close every live session's connection")
	}
	if got, want := mgr.Len(), 0; got != want {
		t.Fatalf("Len() after Close = %d, want %d", got, want)
	}
}
