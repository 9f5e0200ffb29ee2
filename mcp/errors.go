// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"

	"github.com/conduit-mcp/conduit/jsonrpc"
)

// ErrorKind classifies a DomainError independently of its wire
// representation, so that callers can branch on errors.As without caring
// which JSON-RPC code a particular transport or middleware layer chose to
// send.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindParseError
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindCapabilityNotSupported
	KindTimeout
	KindRateLimit
	KindAuthRequired
	KindAuthDenied
	KindResourceExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindParseError:
		return "ParseError"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindMethodNotFound:
		return "MethodNotFound"
	case KindInvalidParams:
		return "InvalidParams"
	case KindCapabilityNotSupported:
		return "CapabilityNotSupported"
	case KindTimeout:
		return "Timeout"
	case KindRateLimit:
		return "RateLimit"
	case KindAuthRequired:
		return "AuthRequired"
	case KindAuthDenied:
		return "AuthDenied"
	case KindResourceExhausted:
		return "ResourceExhausted"
	default:
		return "Internal"
	}
}

// Application-defined wire codes, within the -32000..-32099 range the
// JSON-RPC 2.0 spec reserves for implementation-defined server errors.
const (
	codeCapabilityNotSupported int64 = -32001
	codeTimeout                int64 = -32002
	codeRateLimit              int64 = -32003
	codeAuthRequired           int64 = -32004
	codeAuthDenied             int64 = -32005
	codeResourceExhausted      int64 = -32006
)

// kindToCode and codeToKind translate between ErrorKind and the wire code a
// dispatched response carries, so that a server-initiated call's error kind
// survives the round trip through jsonrpc.Error.Code instead of collapsing
// to KindInternal.
var kindToCode = map[ErrorKind]int64{
	KindParseError:             jsonrpc.CodeParseError,
	KindInvalidRequest:         jsonrpc.CodeInvalidRequest,
	KindMethodNotFound:         jsonrpc.CodeMethodNotFound,
	KindInvalidParams:          jsonrpc.CodeInvalidParams,
	KindInternal:               jsonrpc.CodeInternalError,
	KindCapabilityNotSupported: codeCapabilityNotSupported,
	KindTimeout:                codeTimeout,
	KindRateLimit:              codeRateLimit,
	KindAuthRequired:           codeAuthRequired,
	KindAuthDenied:             codeAuthDenied,
	KindResourceExhausted:      codeResourceExhausted,
}

var codeToKind = func() map[int64]ErrorKind {
	m := make(map[int64]ErrorKind, len(kindToCode))
	for k, c := range kindToCode {
		m[c] = k
	}
	return m
}()

// DomainError is the error type returned by router, dispatcher, and
// middleware code throughout this module. It carries an ErrorKind that
// survives translation to and from the wire, plus an optional cause.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Cause }

// NewDomainError constructs a DomainError of the given kind.
func NewDomainError(kind ErrorKind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// WrapDomainError constructs a DomainError of the given kind wrapping cause.
func WrapDomainError(kind ErrorKind, message string, cause error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Cause: cause}
}

// ToWireError translates e to the jsonrpc.Error sent on the wire.
func ToWireError(e *DomainError) *jsonrpc.Error {
	code, ok := kindToCode[e.Kind]
	if !ok {
		code = jsonrpc.CodeInternalError
	}
	return &jsonrpc.Error{Code: code, Message: e.Message}
}

// FromWireError translates a jsonrpc.Error back into a DomainError, using
// the fixed code<->kind table so a server-initiated call's original error
// kind survives the round trip instead of collapsing to KindInternal.
func FromWireError(e *jsonrpc.Error) *DomainError {
	if e == nil {
		return nil
	}
	kind, ok := codeToKind[e.Code]
	if !ok {
		kind = KindInternal
	}
	return &DomainError{Kind: kind, Message: e.Message}
}
