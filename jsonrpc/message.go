// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc defines the JSON-RPC 2.0 wire message types shared by
// every transport and both ends of the protocol. A [Message] is one of
// [*Request], [*Response], or [*Notification]; [ID] is a tagged union over
// the three shapes a JSON-RPC id can take on the wire.
package jsonrpc

import (
	"fmt"

	internaljson "github.com/conduit-mcp/conduit/internal/json"
)

// Version is the JSON-RPC protocol version carried on every wire message.
const Version = "2.0"

// Reserved JSON-RPC error codes, per the JSON-RPC 2.0 spec.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// CodeServerErrorStart and CodeServerErrorEnd bound the range reserved for
// application-defined error codes.
const (
	CodeServerErrorStart = -32099
	CodeServerErrorEnd   = -32000
)

// Message is implemented by *Request, *Response, and *Notification.
type Message interface {
	isMessage()
}

// ID is a JSON-RPC request id: a string, an integer, or (for
// locally-generated correlation ids that never need to match a peer's
// choice of representation) absent entirely on a Notification.
type ID struct {
	value any // nil, string, or int64
}

// NewStringID returns an ID wrapping a string value.
func NewStringID(s string) ID { return ID{value: s} }

// NewIntID returns an ID wrapping an integer value.
func NewIntID(i int64) ID { return ID{value: i} }

// IsValid reports whether the ID carries a value (i.e. is not the zero ID).
func (id ID) IsValid() bool { return id.value != nil }

// String renders the ID for logging and map keys, regardless of its
// underlying representation.
func (id ID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

// Raw returns the underlying value: a string, an int64, or nil.
func (id ID) Raw() any { return id.value }

func (id ID) MarshalJSON() ([]byte, error) {
	switch v := id.value.(type) {
	case string:
		return internaljson.Marshal(v)
	case int64:
		return internaljson.Marshal(v)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := internaljson.Unmarshal(data, &s); err == nil {
		id.value = s
		return nil
	}
	var i int64
	if err := internaljson.Unmarshal(data, &i); err == nil {
		id.value = i
		return nil
	}
	if string(data) == "null" {
		id.value = nil
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string or integer, got %s", data)
}

// Error is the JSON-RPC wire error shape, returned in a Response when a call
// fails.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an *Error with the given code and message.
func NewError(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

// wireMessage is the shape every JSON-RPC message marshals to/from; the
// three concrete Go types below project onto it.
type wireMessage struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      *ID                    `json:"id,omitempty"`
	Method  string                 `json:"method,omitempty"`
	Params  internaljson.RawMessage `json:"params,omitempty"`
	Result  internaljson.RawMessage `json:"result,omitempty"`
	Error   *Error                 `json:"error,omitempty"`
}

// Request is a JSON-RPC call that expects a matching Response.
type Request struct {
	ID     ID
	Method string
	Params internaljson.RawMessage
}

func (*Request) isMessage() {}

func (r *Request) MarshalJSON() ([]byte, error) {
	return internaljson.Marshal(wireMessage{
		JSONRPC: Version,
		ID:      &r.ID,
		Method:  r.Method,
		Params:  r.Params,
	})
}

// Notification is a JSON-RPC message with no id: the sender does not expect
// (and the receiver must not send) a Response.
type Notification struct {
	Method string
	Params internaljson.RawMessage
}

func (*Notification) isMessage() {}

func (n *Notification) MarshalJSON() ([]byte, error) {
	return internaljson.Marshal(wireMessage{
		JSONRPC: Version,
		Method:  n.Method,
		Params:  n.Params,
	})
}

// Response completes a Request, carrying exactly one of Result or Error.
type Response struct {
	ID     ID
	Result internaljson.RawMessage
	Error  *Error
}

func (*Response) isMessage() {}

// IsError reports whether this response carries an error rather than a
// result.
func (r *Response) IsError() bool { return r.Error != nil }

func (r *Response) MarshalJSON() ([]byte, error) {
	w := wireMessage{JSONRPC: Version, ID: &r.ID, Error: r.Error}
	if r.Error == nil {
		w.Result = r.Result
		if w.Result == nil {
			w.Result = internaljson.RawMessage("null")
		}
	}
	return internaljson.Marshal(w)
}

// DecodeMessage parses a single JSON-RPC message and returns the concrete
// Go type that represents it: *Request and *Notification are distinguished
// by the presence of an id; a message carrying "result" or "error" decodes
// to *Response.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := internaljson.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode: %w", err)
	}
	if w.JSONRPC != Version {
		return nil, fmt.Errorf("jsonrpc: unsupported version %q", w.JSONRPC)
	}
	switch {
	case w.Result != nil || w.Error != nil:
		if w.ID == nil {
			return nil, fmt.Errorf("jsonrpc: response missing id")
		}
		return &Response{ID: *w.ID, Result: w.Result, Error: w.Error}, nil
	case w.ID == nil:
		return &Notification{Method: w.Method, Params: w.Params}, nil
	default:
		return &Request{ID: *w.ID, Method: w.Method, Params: w.Params}, nil
	}
}

// EncodeMessage marshals any Message to its wire JSON form.
func EncodeMessage(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *Request:
		return v.MarshalJSON()
	case *Notification:
		return v.MarshalJSON()
	case *Response:
		return v.MarshalJSON()
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message type %T", m)
	}
}
