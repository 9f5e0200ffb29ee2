// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "github.com/conduit-mcp/conduit/jsonrpc"

// These aliases let the rest of this package refer to the wire message
// types without an explicit "jsonrpc." prefix at every call site, matching
// the unqualified names used throughout the transport implementations.
type (
	JSONRPCMessage      = jsonrpc.Message
	JSONRPCID           = jsonrpc.ID
	JSONRPCRequest      = jsonrpc.Request
	JSONRPCResponse     = jsonrpc.Response
	JSONRPCNotification = jsonrpc.Notification
)

// NewStringID returns a JSONRPCID wrapping a string value.
func NewStringID(s string) JSONRPCID { return jsonrpc.NewStringID(s) }
