// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"sync"
)

// LifecycleState is one state in the session lifecycle:
// Uninitialized -> Initializing -> Ready -> Closing -> Closed.
type LifecycleState int

const (
	StateUninitialized LifecycleState = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

func (s LifecycleState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// validTransitions enumerates the only state changes the lifecycle permits.
var validTransitions = map[LifecycleState][]LifecycleState{
	StateUninitialized: {StateInitializing, StateClosing},
	StateInitializing:  {StateReady, StateClosing},
	StateReady:         {StateClosing},
	StateClosing:       {StateClosed},
	StateClosed:        {},
}

// Lifecycle tracks one session's state-machine position and the
// capabilities negotiated during initialize, gating which methods the
// router will dispatch (e.g. nothing but "initialize" is legal before
// StateReady, per the capability-gate style already used by the tasks
// sub-protocol's tasksEnabled-style checks).
type Lifecycle struct {
	mu           sync.Mutex
	state        LifecycleState
	clientCaps   *ClientCapabilities
	serverCaps   *ServerCapabilities
}

// NewLifecycle creates a Lifecycle in StateUninitialized.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateUninitialized}
}

// State returns the current state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Transition attempts to move to next, returning an error if the
// transition is not permitted from the current state.
func (l *Lifecycle) Transition(next LifecycleState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, allowed := range validTransitions[l.state] {
		if allowed == next {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("mcp: invalid lifecycle transition %s -> %s", l.state, next)
}

// BeginInitialize transitions Uninitialized -> Initializing.
func (l *Lifecycle) BeginInitialize() error {
	return l.Transition(StateInitializing)
}

// CompleteInitialize records the negotiated capabilities and transitions
// Initializing -> Ready.
func (l *Lifecycle) CompleteInitialize(client *ClientCapabilities, server *ServerCapabilities) error {
	l.mu.Lock()
	if l.state != StateInitializing {
		st := l.state
		l.mu.Unlock()
		return fmt.Errorf("mcp: invalid lifecycle transition %s -> %s", st, StateReady)
	}
	l.clientCaps = client
	l.serverCaps = server
	l.state = StateReady
	l.mu.Unlock()
	return nil
}

// BeginClose transitions to StateClosing from Uninitialized, Initializing or
// Ready; from Closing or Closed it returns an error.
func (l *Lifecycle) BeginClose() error {
	return l.Transition(StateClosing)
}

// Close transitions Closing -> Closed.
func (l *Lifecycle) Close() error {
	return l.Transition(StateClosed)
}

// IsReady reports whether the session has completed initialization.
func (l *Lifecycle) IsReady() bool {
	return l.State() == StateReady
}

// ClientCapabilities returns the negotiated client capabilities, or nil if
// initialization hasn't completed.
func (l *Lifecycle) ClientCapabilities() *ClientCapabilities {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clientCaps
}

// ServerCapabilities returns the negotiated server capabilities, or nil if
// initialization hasn't completed.
func (l *Lifecycle) ServerCapabilities() *ServerCapabilities {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.serverCaps
}

// SupportsSampling reports whether the client advertised sampling support.
func (l *Lifecycle) SupportsSampling() bool {
	c := l.ClientCapabilities()
	return c != nil && c.Sampling != nil
}

// SupportsElicitation reports whether the client advertised elicitation
// support.
func (l *Lifecycle) SupportsElicitation() bool {
	c := l.ClientCapabilities()
	return c != nil && c.Elicitation != nil
}

// SupportsRoots reports whether the client advertised roots support.
func (l *Lifecycle) SupportsRoots() bool {
	c := l.ClientCapabilities()
	if c == nil {
		return false
	}
	return c.RootsV2 != nil || c.Roots.ListChanged
}
