// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"crypto/rand"

	"github.com/conduit-mcp/conduit/internal/json"
)

func assert(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

// randText returns a random, URL-safe string suitable for session IDs,
// request IDs minted on behalf of a caller, and other identifiers that must
// be hard to guess but need not be cryptographically unpredictable.
func randText() string {
	return rand.Text()
}

// remarshal marshals from to JSON, and then unmarshals into to, which must be
// a pointer type. Used to convert between the loose map[string]any shape a
// param type decodes into and a concrete Go struct it's convertible to (task
// result payloads, structured tool output) without hand-writing a field-by-
// field copy.
func remarshal(from, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, to); err != nil {
		return err
	}
	return nil
}
