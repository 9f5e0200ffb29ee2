// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
)

// A ToolHandler handles a call to tools/call.
// req.Params.Arguments will contain a json.RawMessage containing the arguments.
// args will contain a value that has been validated against the input schema.
type ToolHandler func(ctx context.Context, req *CallToolRequest, args any) (*CallToolResult, error)

type rawToolHandler func(ctx context.Context, req *CallToolRequest) (*CallToolResult, error)

// A serverTool is a tool definition that is bound to a tool handler.
type serverTool struct {
	tool    *Tool
	handler rawToolHandler
	// Resolved tool schemas. Set in newServerTool.
	inputResolved, outputResolved *jsonschema.Resolved
}

// A TypedToolHandler handles a call to tools/call with typed arguments and results.
type TypedToolHandler[In, Out any] func(context.Context, *CallToolRequest, In) (*CallToolResult, Out, error)

// newServerTool resolves t's input/output schemas and binds them to h. If
// cache is non-nil, a resolved schema already seen by pointer identity is
// reused instead of re-resolved, and a newly resolved one is stored back for
// the next caller that passes the same *jsonschema.Schema.
func newServerTool(t *Tool, h ToolHandler, cache *SchemaCache) (*serverTool, error) {
	st := &serverTool{tool: t}
	if t.newArgs == nil {
		t.newArgs = func() any { return &map[string]any{} }
	}
	if t.InputSchema == nil {
		// This prevents the tool author from forgetting to write a schema where
		// one should be provided. If we papered over this by supplying the empty
		// schema, then every input would be validated and the problem wouldn't be
		// discovered until runtime, when the LLM sent bad data.
		return nil, errors.New("missing input schema")
	}
	var err error
	if cache != nil {
		if resolved, ok := cache.getBySchema(t.InputSchema); ok {
			st.inputResolved = resolved
		}
	}
	if st.inputResolved == nil {
		st.inputResolved, err = t.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return nil, fmt.Errorf("input schema: %w", err)
		}
		if cache != nil {
			cache.setBySchema(t.InputSchema, st.inputResolved)
		}
	}
	if t.OutputSchema != nil {
		if cache != nil {
			if resolved, ok := cache.getBySchema(t.OutputSchema); ok {
				st.outputResolved = resolved
			}
		}
		if st.outputResolved == nil {
			st.outputResolved, err = t.OutputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
			if err != nil {
				return nil, fmt.Errorf("output schema: %w", err)
			}
			if cache != nil {
				cache.setBySchema(t.OutputSchema, st.outputResolved)
			}
		}
	}
	// Ignore output schema.
	st.handler = func(ctx context.Context, req *CallToolRequest) (*CallToolResult, error) {
		rawArgs := req.Params.Arguments
		args := t.newArgs()
		if err := unmarshalSchema(rawArgs, st.inputResolved, args); err != nil {
			return nil, err
		}
		res, err := h(ctx, req, args)
		// TODO: investigate why server errors are embedded in this strange way,
		// rather than returned as jsonrpc2 server errors.
		if err != nil {
			return &CallToolResult{
				Content: []Content{&TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		// TODO(jba): if t.OutputSchema != nil, check that StructuredContent is present and validates.
		return res, nil
	}
	return st, nil
}

// newTypedServerTool creates a serverTool from a tool and a handler.
// If the tool doesn't have an input schema, it is inferred from In.
// If the tool doesn't have an output schema and Out != any, it is inferred from Out.
//
// If cache is non-nil, a schema previously generated for In (or Out) is
// reused instead of re-running reflection, and a freshly generated one is
// stored back for the next registration of the same Go type — the path a
// stateless deployment's per-request Server construction hits on every tool
// registration.
func newTypedServerTool[In, Out any](t *Tool, h TypedToolHandler[In, Out], cache *SchemaCache) (*serverTool, error) {
	assert(t.newArgs == nil, "newArgs is nil")
	t.newArgs = func() any { var x In; return &x }

	inType := reflect.TypeFor[In]()
	outType := reflect.TypeFor[Out]()
	hasOut := outType != reflect.TypeFor[any]()

	var cachedInResolved, cachedOutResolved *jsonschema.Resolved
	var err error
	if cache != nil {
		if schema, resolved, ok := cache.getByType(inType); ok {
			t.InputSchema, cachedInResolved = schema, resolved
		}
	}
	if t.InputSchema == nil {
		t.InputSchema, err = jsonschema.For[In](nil)
		if err != nil {
			return nil, err
		}
	}
	if hasOut {
		if cache != nil {
			if schema, resolved, ok := cache.getByType(outType); ok {
				t.OutputSchema, cachedOutResolved = schema, resolved
			}
		}
		if t.OutputSchema == nil {
			t.OutputSchema, err = jsonschema.For[Out](nil)
			if err != nil {
				return nil, err
			}
		}
	}

	toolHandler := func(ctx context.Context, req *CallToolRequest, args any) (*CallToolResult, error) {
		res, out, err := h(ctx, req, *args.(*In))
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = &CallToolResult{}
		}
		// TODO: return the serialized JSON in a TextContent block, as per spec?
		// https://modelcontextprotocol.io/specification/2025-06-18/server/tools#structured-content
		res.StructuredContent = out
		return res, nil
	}
	st, err := newServerTool(t, toolHandler, cache)
	if err != nil {
		return nil, err
	}
	// Prefer a resolved schema already returned by getByType above over one
	// newServerTool just resolved, so a cache hit skips Resolve too.
	if cachedInResolved != nil {
		st.inputResolved = cachedInResolved
	} else if cache != nil {
		cache.setByType(inType, t.InputSchema, st.inputResolved)
	}
	if hasOut {
		if cachedOutResolved != nil {
			st.outputResolved = cachedOutResolved
		} else if cache != nil {
			cache.setByType(outType, t.OutputSchema, st.outputResolved)
		}
	}
	return st, nil
}

// unmarshalSchema unmarshals data into v and validates the result according to
// the given resolved schema.
func unmarshalSchema(data json.RawMessage, resolved *jsonschema.Resolved, v any) error {
	applied, err := applySchema(data, resolved)
	if err != nil {
		return err
	}

	// Disallow unknown fields.
	// Otherwise, if the tool was built with a struct, the client could send extra
	// fields and json.Unmarshal would ignore them, so the schema would never get
	// a chance to declare the extra args invalid.
	dec := json.NewDecoder(bytes.NewReader(applied))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("unmarshaling: %w", err)
	}
	return nil
}

// applySchema validates data against resolved and returns data with any
// schema defaults applied. It builds a throwaway Go struct type from resolved
// reflectively (via globalReflectionValidator) and decodes data into it first,
// so a type mismatch (a string where the schema says integer) is caught here
// even when the eventual caller will only ever decode into a loose
// map[string]any — unmarshalSchema's DisallowUnknownFields decode afterward
// wouldn't catch that on its own for an untyped tool.
//
// Schemas using constructs SchemaTypeBuilder doesn't model (anyOf, enum,
// $ref, and non-object roots) fall back to applySchemaMapBased, which applies
// defaults and validates without attempting to build a Go type first — the
// same process unmarshalSchema used before ReflectionValidator existed.
func applySchema(data json.RawMessage, resolved *jsonschema.Resolved) (json.RawMessage, error) {
	if resolved == nil {
		return data, nil
	}
	result, err := globalReflectionValidator.ValidateAndApply(data, resolved)
	if err == nil {
		return result, nil
	}
	var sve *SchemaValidationError
	if errors.As(err, &sve) && sve.Operation == "schema_conversion" {
		return applySchemaMapBased(data, resolved)
	}
	return nil, err
}

// applySchemaMapBased applies resolved's defaults to data and validates the
// result, decoding data as a plain map rather than a reflectively built
// struct type. applySchema falls back to this for schemas
// SchemaTypeBuilder can't turn into a Go type.
func applySchemaMapBased(data json.RawMessage, resolved *jsonschema.Resolved) (json.RawMessage, error) {
	if resolved == nil {
		return data, nil
	}
	m := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("unmarshaling: %w", err)
		}
	}
	if err := resolved.ApplyDefaults(&m); err != nil {
		return nil, fmt.Errorf("applying defaults from \n\t%s\nto\n\t%s:\n%w", schemaJSON(resolved.Schema()), data, err)
	}
	if err := resolved.Validate(&m); err != nil {
		return nil, fmt.Errorf("validating\n\t%s\nagainst\n\t %s:\n %w", data, schemaJSON(resolved.Schema()), err)
	}
	return json.Marshal(m)
}

// schemaJSON returns the JSON value for s as a string, or a string indicating an error.
func schemaJSON(s *jsonschema.Schema) string {
	m, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("<!%s>", err)
	}
	return string(m)
}
