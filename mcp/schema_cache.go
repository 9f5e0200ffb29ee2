// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"reflect"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaCache provides concurrent-safe caching for JSON schemas, keyed either
// by the Go type a schema was inferred from or by the *jsonschema.Schema
// pointer a caller already built, so a server that re-registers the same
// tools across many short-lived Server values (one per request, in a
// stateless deployment) doesn't redo reflection-based schema generation and
// resolution on every registration. Share one SchemaCache across those
// Server values via ServerOptions.SchemaCache.
type SchemaCache struct {
	// byType caches schemas generated from Go types via jsonschema.For.
	// Key: reflect.Type, Value: *cachedSchema
	byType sync.Map

	// bySchema caches resolved schemas for pre-defined Schema objects.
	// Key: *jsonschema.Schema (pointer identity), Value: *jsonschema.Resolved
	// This uses pointer identity because integrators typically reuse the same
	// Tool objects across requests, so the schema pointer remains stable.
	bySchema sync.Map
}

// cachedSchema holds both the generated schema and its resolved form.
type cachedSchema struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewSchemaCache creates a new schema cache for use with [ServerOptions.SchemaCache].
// Safe for concurrent use, unbounded.
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{}
}

// getByType retrieves a cached schema by Go type.
// Returns the schema, resolved schema, and whether the cache hit.
func (c *SchemaCache) getByType(t reflect.Type) (*jsonschema.Schema, *jsonschema.Resolved, bool) {
	if v, ok := c.byType.Load(t); ok {
		cs := v.(*cachedSchema)
		return cs.schema, cs.resolved, true
	}
	return nil, nil, false
}

// setByType caches a schema by Go type.
func (c *SchemaCache) setByType(t reflect.Type, schema *jsonschema.Schema, resolved *jsonschema.Resolved) {
	c.byType.Store(t, &cachedSchema{schema: schema, resolved: resolved})
}

// getBySchema retrieves a cached resolved schema by the original schema pointer.
// This is used when integrators provide pre-defined schemas (e.g., github-mcp-server pattern).
func (c *SchemaCache) getBySchema(schema *jsonschema.Schema) (*jsonschema.Resolved, bool) {
	if v, ok := c.bySchema.Load(schema); ok {
		return v.(*jsonschema.Resolved), true
	}
	return nil, false
}

// setBySchema caches a resolved schema by the original schema pointer.
func (c *SchemaCache) setBySchema(schema *jsonschema.Schema, resolved *jsonschema.Resolved) {
	c.bySchema.Store(schema, resolved)
}
