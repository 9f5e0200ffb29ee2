// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"io/fs"
	"sync"
	"time"
)

// SessionState is the state of a session.
type SessionState struct {
	// InitializeParams are the parameters from the initialize request.
	InitializeParams *InitializeParams `json:"initializeParams"`

	// LogLevel is the logging level for the session.
	LogLevel LoggingLevel `json:"logLevel"`

	// Subscriptions holds the set of resource URIs this session has
	// subscribed to via resources/subscribe.
	Subscriptions map[string]bool `json:"subscriptions,omitempty"`

	// Events is a bounded ring of recently sent events, retained so a
	// reconnecting Streamable HTTP client can replay everything after its
	// Last-Event-ID.
	Events *EventRing `json:"events,omitempty"`
}

// StoredEvent is one entry in a session's replay ring.
type StoredEvent struct {
	ID        string
	Data      []byte
	StoredAt  time.Time
}

// EventRing is a fixed-capacity ring buffer of StoredEvents, used to
// support SSE resumption: once the ring has evicted the event a client asks
// to resume from, the caller must signal an explicit gap rather than
// silently skipping ahead.
type EventRing struct {
	mu       sync.Mutex
	cap      int
	events   []StoredEvent
	oldest   int // index, mod len(events), of the logically oldest live entry once full
	filled   bool
}

// NewEventRing creates a ring retaining up to capacity events.
func NewEventRing(capacity int) *EventRing {
	return &EventRing{cap: capacity, events: make([]StoredEvent, 0, capacity)}
}

// Append records a new event, evicting the oldest if the ring is full.
func (r *EventRing) Append(e StoredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) < r.cap {
		r.events = append(r.events, e)
		return
	}
	r.events[r.oldest] = e
	r.oldest = (r.oldest + 1) % r.cap
	r.filled = true
}

// Since returns every event after lastEventID, in order. gap is true when
// lastEventID is no longer in the ring, in which case the entire ring is
// returned. If lastEventID is empty, it returns the entire ring with
// gap=false.
func (r *EventRing) Since(lastEventID string) (events []StoredEvent, gap bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := r.orderedLocked()
	if lastEventID == "" {
		return append([]StoredEvent(nil), ordered...), false
	}
	for i, e := range ordered {
		if e.ID == lastEventID {
			return append([]StoredEvent(nil), ordered[i+1:]...), false
		}
	}
	return append([]StoredEvent(nil), ordered...), true
}

// Oldest returns the id of the oldest event still in the ring, or "" if
// empty; used to populate a gap-signal's oldestAvailableId.
func (r *EventRing) Oldest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := r.orderedLocked()
	if len(ordered) == 0 {
		return ""
	}
	return ordered[0].ID
}

func (r *EventRing) orderedLocked() []StoredEvent {
	if !r.filled {
		return r.events
	}
	ordered := make([]StoredEvent, 0, len(r.events))
	ordered = append(ordered, r.events[r.oldest:]...)
	ordered = append(ordered, r.events[:r.oldest]...)
	return ordered
}

// SessionStore is an interface for storing and retrieving session state.
type SessionStore interface {
	// Load retrieves the session state for the given session ID.
	// If there is none, it returns nil, fs.ErrNotExist.
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	// Store saves the session state for the given session ID.
	Store(ctx context.Context, sessionID string, state *SessionState) error
	// Delete removes the session state for the given session ID.
	Delete(ctx context.Context, sessionID string) error
}

// MemorySessionStore is an in-memory implementation of SessionStore.
// It is safe for concurrent use.
type MemorySessionStore struct {
	mu    sync.Mutex
	store map[string]*SessionState
}

// NewMemorySessionStore creates a new MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		store: make(map[string]*SessionState),
	}
}

// Load retrieves the session state for the given session ID.
func (s *MemorySessionStore) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.store[sessionID]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return state, nil
}

// Store saves the session state for the given session ID.
func (s *MemorySessionStore) Store(ctx context.Context, sessionID string, state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[sessionID] = state
	return nil
}

// Delete removes the session state for the given session ID.
func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, sessionID)
	return nil
}
