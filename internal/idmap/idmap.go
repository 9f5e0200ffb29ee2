// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package idmap implements a bounded, TTL-evicting bidirectional map
// between frontend and backend request ids, for proxy/fan-in topologies
// where a gateway must translate a downstream client's id into one that's
// unique across all the upstream sessions it multiplexes.
package idmap

import (
	"sync"
	"time"
)

const shardCount = 16

// Map is a bounded bidirectional frontend-id <-> backend-id translator. It
// is safe for concurrent use; the stripe-by-hash-bucket locking mirrors the
// mutex-protected-map-plus-sweep shape used elsewhere in this module's rate
// limiting, generalized here to a bidirectional mapping instead of a single
// counter per key.
type Map struct {
	maxMappings int
	ttl         time.Duration

	shards [shardCount]*shard

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type mapping struct {
	backendID string
	expiresAt time.Time
}

type shard struct {
	mu       sync.Mutex
	forward  map[string]mapping // frontendID -> {backendID, expiresAt}
	backward map[string]string  // backendID -> frontendID
	count    *int               // shared total count across all shards, for MAX_MAPPINGS
	countMu  *sync.Mutex
}

// New creates a Map bounding the total number of live mappings at
// maxMappings and evicting each entry once ttl has passed since its Put
// (lookups do not extend an entry's lifetime). Call Close
// when the Map is no longer needed to stop its background sweep.
func New(maxMappings int, ttl time.Duration) *Map {
	count := 0
	countMu := &sync.Mutex{}
	m := &Map{
		maxMappings: maxMappings,
		ttl:         ttl,
		stopCh:      make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{
			forward:  make(map[string]mapping),
			backward: make(map[string]string),
			count:    &count,
			countMu:  countMu,
		}
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

func (m *Map) shardFor(frontendID string) *shard {
	return m.shards[hash(frontendID)%shardCount]
}

// hash is a small FNV-1a variant; it only needs to distribute ids across
// shards, not resist collisions adversarially.
func hash(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ErrExhausted is returned by Put when the map is at MAX_MAPPINGS capacity.
type ErrExhausted struct{}

func (ErrExhausted) Error() string { return "idmap: mapping table exhausted" }

// Put records a fresh frontendID <-> backendID mapping, returning
// ErrExhausted if doing so would exceed the configured MAX_MAPPINGS bound.
func (m *Map) Put(frontendID, backendID string) error {
	sh := m.shardFor(frontendID)

	sh.countMu.Lock()
	if *sh.count >= m.maxMappings {
		sh.countMu.Unlock()
		return ErrExhausted{}
	}
	*sh.count++
	sh.countMu.Unlock()

	sh.mu.Lock()
	sh.forward[frontendID] = mapping{backendID: backendID, expiresAt: time.Now().Add(m.ttl)}
	sh.backward[backendID] = frontendID
	sh.mu.Unlock()
	return nil
}

// Forward resolves a frontendID to its backendID.
func (m *Map) Forward(frontendID string) (string, bool) {
	sh := m.shardFor(frontendID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.forward[frontendID]
	if !ok {
		return "", false
	}
	return e.backendID, true
}

// Backward resolves a backendID to its frontendID. Shards are keyed by the
// frontend id's hash, so which shard holds a given backend id's reverse
// entry isn't known in advance; this checks all shards (there are few).
func (m *Map) Backward(backendID string) (string, bool) {
	for _, sh := range m.shards {
		sh.mu.Lock()
		frontendID, ok := sh.backward[backendID]
		sh.mu.Unlock()
		if ok {
			return frontendID, true
		}
	}
	return "", false
}

// Release removes the mapping for frontendID, but only removes the reverse
// (backward) entry if it still points back to frontendID — this keeps
// Release race-free against a concurrent Put that reassigned the same
// backendID to a new frontendID before this Release ran.
func (m *Map) Release(frontendID string) {
	sh := m.shardFor(frontendID)
	sh.mu.Lock()
	e, ok := sh.forward[frontendID]
	if ok {
		delete(sh.forward, frontendID)
		if sh.backward[e.backendID] == frontendID {
			delete(sh.backward, e.backendID)
		}
	}
	sh.mu.Unlock()
	if ok {
		sh.countMu.Lock()
		*sh.count--
		sh.countMu.Unlock()
	}
}

func (m *Map) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Map) sweepExpired() {
	now := time.Now()
	for _, sh := range m.shards {
		sh.mu.Lock()
		var expired []string
		for frontendID, e := range sh.forward {
			if now.After(e.expiresAt) {
				expired = append(expired, frontendID)
			}
		}
		for _, frontendID := range expired {
			e := sh.forward[frontendID]
			delete(sh.forward, frontendID)
			if sh.backward[e.backendID] == frontendID {
				delete(sh.backward, e.backendID)
			}
		}
		sh.mu.Unlock()
		if len(expired) > 0 {
			sh.countMu.Lock()
			*sh.count -= len(expired)
			sh.countMu.Unlock()
		}
	}
}

// Close stops the background sweep goroutine.
func (m *Map) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}
