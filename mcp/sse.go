// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/conduit-mcp/conduit/internal/jsonrpc2"
)

// event is a single Server-Sent Event: an id, an event name, and a raw data
// payload. It's the framing unit the Streamable HTTP transport's SSE stream
// is built from.
type event struct {
	name string
	id   string
	data []byte
}

// writeEvent writes e to w in SSE wire format, flushing immediately if w
// supports it.
func writeEvent(w io.Writer, e event) (int, error) {
	var buf bytes.Buffer
	if e.id != "" {
		fmt.Fprintf(&buf, "id: %s\n", e.id)
	}
	if e.name != "" {
		fmt.Fprintf(&buf, "event: %s\n", e.name)
	}
	for _, line := range strings.Split(string(e.data), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return n, err
	}
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return n, nil
}

// scanEvents decodes a stream of SSE events from r, yielding one (event,
// nil) pair per blank-line-terminated block, or a final (zero, err) pair
// when the stream ends (err is io.EOF on a graceful close).
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		var cur event
		var data []string
		flush := func() (event, bool) {
			if len(data) == 0 && cur.id == "" && cur.name == "" {
				return event{}, false
			}
			cur.data = []byte(strings.Join(data, "\n"))
			e := cur
			cur = event{}
			data = nil
			return e, true
		}
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				if e, ok := flush(); ok {
					if !yield(e, nil) {
						return
					}
				}
				continue
			}
			switch {
			case strings.HasPrefix(line, "id:"):
				cur.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
			case strings.HasPrefix(line, "event:"):
				cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			case strings.HasPrefix(line, ":"):
				// comment / keep-alive line, ignored
			}
		}
		if err := sc.Err(); err != nil {
			yield(event{}, err)
			return
		}
		if e, ok := flush(); ok {
			yield(e, nil)
		}
		yield(event{}, io.EOF)
	}
}

// readBatch decodes body as one JSON-RPC message or a JSON-RPC batch array,
// returning the decoded messages and whether the body was a batch.
func readBatch(body []byte) ([]JSONRPCMessage, bool, error) {
	return jsonrpc2.ReadBatch(body)
}
