// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import "errors"

// Sentinel errors for the standard JSON-RPC 2.0 error classes. Callers wrap
// these with fmt.Errorf("%w: ...", ErrXxx) so that errors.Is still resolves
// to the right wire error code once the error reaches the dispatch layer.
var (
	ErrParseError     = errors.New("parse error")
	ErrInvalidRequest = errors.New("invalid request")
	ErrMethodNotFound = errors.New("method not found")
	ErrInvalidParams  = errors.New("invalid params")
	ErrInternal       = errors.New("internal error")
)
