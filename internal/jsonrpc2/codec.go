// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/conduit-mcp/conduit/internal/json"
	"github.com/conduit-mcp/conduit/jsonrpc"
)

// envelope mirrors the wire shape of a JSON-RPC message, used only to run
// StrictUnmarshal's case-smuggling checks before handing the bytes to
// jsonrpc.DecodeMessage for the real typed decode.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// DecodeMessage decodes a single JSON-RPC message, rejecting field-name case
// smuggling before the message is interpreted.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	var e envelope
	if err := StrictUnmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("jsonrpc2: %w", err)
	}
	return jsonrpc.DecodeMessage(data)
}

// EncodeMessage marshals m to its wire JSON form.
func EncodeMessage(m jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(m)
}

// ReadBatch decodes body as either a single JSON-RPC message or a JSON
// array of messages (a "batch", per the JSON-RPC 2.0 spec), returning the
// decoded messages and whether the body was a batch.
func ReadBatch(body []byte) ([]jsonrpc.Message, bool, error) {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("jsonrpc2: empty body")
	}
	if trimmed[0] != '[' {
		msg, err := DecodeMessage(body)
		if err != nil {
			return nil, false, err
		}
		return []jsonrpc.Message{msg}, false, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, true, fmt.Errorf("jsonrpc2: decoding batch: %w", err)
	}
	msgs := make([]jsonrpc.Message, 0, len(raw))
	for i, r := range raw {
		msg, err := DecodeMessage(r)
		if err != nil {
			return nil, true, fmt.Errorf("jsonrpc2: decoding batch element %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}

// ReadLine reads one line-delimited JSON-RPC message from r, as used by the
// stdio, TCP, and Unix-domain socket transports. It validates UTF-8 before
// attempting to decode, per the protocol's requirement that non-UTF-8 input
// on a line-delimited transport terminate the connection.
func ReadLine(r *bufio.Reader) (jsonrpc.Message, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	line = trimTrailingNewline(line)
	if len(line) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if !utf8.Valid(line) {
		return nil, fmt.Errorf("jsonrpc2: invalid UTF-8 in line-delimited message")
	}
	return DecodeMessage(line)
}

// WriteLine encodes m and writes it to w, terminated with a newline.
func WriteLine(w io.Writer, m jsonrpc.Message) error {
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func trimTrailingNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

