// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"
)

// Session is one negotiated, live connection: its wire-level Connection,
// its negotiated state, and the machinery (correlation table, lifecycle)
// that the router and dispatcher consult while serving it.
type Session struct {
	ID    string
	Conn  Connection
	State *SessionState

	Lifecycle   *Lifecycle
	Correlation *CorrelationTable

	mu         sync.Mutex
	lastActive time.Time
}

func newSession(id string, conn Connection) *Session {
	return &Session{
		ID:          id,
		Conn:        conn,
		State:       &SessionState{LogLevel: "info", Subscriptions: make(map[string]bool)},
		Lifecycle:   NewLifecycle(),
		Correlation: NewCorrelationTable(),
		lastActive:  time.Now(),
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long it has been since this session last sent or
// received a message.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

// SessionManagerOptions configures a SessionManager.
type SessionManagerOptions struct {
	// IdleTimeout is how long a session may go without activity before the
	// sweep evicts it. Zero disables idle eviction.
	IdleTimeout time.Duration
	// SweepInterval is how often the eviction sweep runs. Defaults to
	// IdleTimeout/2 if zero and IdleTimeout is set.
	SweepInterval time.Duration

	// Store, if set, persists session state across process restarts: Create
	// tries to restore a session's state from it before falling back to a
	// fresh SessionState, and Delete saves the session's final state to it
	// before closing the connection. Reconnecting with the same session ID
	// after a restart then picks up its prior log level and subscriptions
	// instead of starting over.
	Store SessionStore

	Logger *slog.Logger
}

// SessionManager is the registry of live sessions for a server or gateway
// that may be handling many concurrent connections at once, generalizing
// the session map the Streamable HTTP handler already keeps
// (sessionsMu+sessions) across every transport.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTimeout time.Duration
	store       SessionStore
	logger      *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSessionManager creates a SessionManager and, if opts.IdleTimeout is
// set, starts its background eviction sweep.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &SessionManager{
		sessions:    make(map[string]*Session),
		idleTimeout: opts.IdleTimeout,
		store:       opts.Store,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
	if opts.IdleTimeout > 0 {
		interval := opts.SweepInterval
		if interval == 0 {
			interval = opts.IdleTimeout / 2
		}
		m.wg.Add(1)
		go m.sweepLoop(interval)
	}
	return m
}

// Create registers a new session for conn, keyed by id. If a Store was
// configured and it holds state previously saved under id, that state is
// restored instead of the session starting fresh.
func (m *SessionManager) Create(id string, conn Connection) *Session {
	s := newSession(id, conn)
	if m.store != nil {
		if state, err := m.store.Load(context.Background(), id); err == nil && state != nil {
			s.State = state
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("loading persisted session state", "session_id", id, "error", err)
		}
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get retrieves the session for id, if any.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes the session for id, saving its final state to the
// configured Store (if any) and closing its connection.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.store != nil {
		if err := m.store.Store(context.Background(), id, s.State); err != nil {
			m.logger.Warn("persisting session state", "session_id", id, "error", err)
		}
	}
	_ = s.Conn.Close()
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) sweepLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCh:
			return
		}
	}
}

func (m *SessionManager) evictIdle() {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.IdleSince() > m.idleTimeout {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		m.logger.Debug("evicting idle session", "session_id", s.ID, "idle_for", s.IdleSince())
		if m.store != nil {
			if err := m.store.Store(context.Background(), s.ID, s.State); err != nil {
				m.logger.Warn("persisting session state", "session_id", s.ID, "error", err)
			}
		}
		_ = s.Conn.Close()
	}
}

// Close stops the background sweep and closes every session.
func (m *SessionManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Conn.Close()
	}
}
