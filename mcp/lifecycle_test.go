// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "testing"

func TestLifecycleHappyPath(t *testing.T) {
	l := NewLifecycle()
	if got, want := l.State(), StateUninitialized; got != want {
		t.Fatalf("initial state = %s, want %s", got, want)
	}
	if l.IsReady() {
		t.Fatal("IsReady() = true before initialize")
	}

	if err := l.BeginInitialize(); err != nil {
		t.Fatalf("BeginInitialize: %v", err)
	}
	if got, want := l.State(), StateInitializing; got != want {
		t.Fatalf("state after BeginInitialize = %s, want %s", got, want)
	}

	clientCaps := &ClientCapabilities{Sampling: &SamplingCapabilities{}}
	serverCaps := &ServerCapabilities{}
	if err := l.CompleteInitialize(clientCaps, serverCaps); err != nil {
		t.Fatalf("CompleteInitialize: %v", err)
	}
	if !l.IsReady() {
		t.Fatal("IsReady() = false after CompleteInitialize")
	}
	if !l.SupportsSampling() {
		t.Fatal("SupportsSampling() = false, want true")
	}
	if l.SupportsElicitation() {
		t.Fatal("SupportsElicitation() = true, want false")
	}
	if l.SupportsRoots() {
		t.Fatal("SupportsRoots() = true, want false")
	}

	if err := l.BeginClose(); err != nil {
		t.Fatalf("BeginClose: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got, want := l.State(), StateClosed; got != want {
		t.Fatalf("final state = %s, want %s", got, want)
	}
}

func TestLifecycleCompleteInitializeRequiresInitializing(t *testing.T) {
	l := NewLifecycle()
	if err := l.CompleteInitialize(nil, nil); err == nil {
		t.Fatal("CompleteInitialize from Uninitialized: want error, got nil")
	}
	if got := l.State(); got != StateUninitialized {
		t.Fatalf("state after rejected transition = %s, want unchanged %s", got, StateUninitialized)
	}
}

func TestLifecycleRejectsInvalidTransitions(t *testing.T) {
	l := NewLifecycle()
	if err := l.Transition(StateReady); err == nil {
		t.Fatal("Transition Uninitialized -> Ready: want error, got nil")
	}

	if err := l.BeginInitialize(); err != nil {
		t.Fatalf("BeginInitialize: %v", err)
	}
	if err := l.CompleteInitialize(&ClientCapabilities{}, &ServerCapabilities{}); err != nil {
		t.Fatalf("CompleteInitialize: %v", err)
	}
	if err := l.BeginInitialize(); err == nil {
		t.Fatal("BeginInitialize from Ready: want error, got nil")
	}
}

func TestLifecycleClosedIsTerminal(t *testing.T) {
	l := NewLifecycle()
	if err := l.BeginClose(); err != nil {
		t.Fatalf("BeginClose: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.BeginInitialize(); err == nil {
		t.Fatal("BeginInitialize from Closed: want error, got nil")
	}
	if err := l.Transition(StateClosed); err == nil {
		t.Fatal("re-entering Closed: want error, got nil")
	}
}

func TestLifecycleSupportsRootsViaRootsV2(t *testing.T) {
	l := NewLifecycle()
	if err := l.BeginInitialize(); err != nil {
		t.Fatalf("BeginInitialize: %v", err)
	}
	clientCaps := &ClientCapabilities{RootsV2: &RootCapabilities{}}
	if err := l.CompleteInitialize(clientCaps, &ServerCapabilities{}); err != nil {
		t.Fatalf("CompleteInitialize: %v", err)
	}
	if !l.SupportsRoots() {
		t.Fatal("SupportsRoots() = false, want true when RootsV2 is set")
	}
}

func TestLifecycleCapabilitiesNilBeforeReady(t *testing.T) {
	l := NewLifecycle()
	if l.ClientCapabilities() != nil {
		t.Fatal("ClientCapabilities() != nil before initialize")
	}
	if l.ServerCapabilities() != nil {
		t.Fatal("ServerCapabilities() != nil before initialize")
	}
	if l.SupportsSampling() || l.SupportsElicitation() || l.SupportsRoots() {
		t.Fatal("capability checks true before initialize")
	}
}
