// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/conduit-mcp/conduit/internal/jsonrpc2"
)

// StdioTransport connects a server to its own process's stdin/stdout, the
// standard way an MCP server is launched as a subprocess by its client.
type StdioTransport struct{}

// Connect returns the single Connection backed by os.Stdin and os.Stdout.
func (StdioTransport) Connect(ctx context.Context) (Connection, error) {
	return newPipeConn(os.Stdin, os.Stdout, randText()), nil
}

// CommandTransport launches an MCP server as a subprocess and speaks
// line-delimited JSON-RPC over its stdin/stdout, forwarding stderr so the
// child's own logging surfaces to the parent process.
type CommandTransport struct {
	// Name is the executable to run.
	Name string
	// Args are passed to the executable.
	Args []string
	// Dir is the working directory for the subprocess, or "" for the
	// caller's own.
	Dir string
	// Env, if non-nil, replaces the subprocess's environment.
	Env []string
}

// Connect starts the subprocess and returns a Connection wrapping its
// stdin/stdout.
func (t *CommandTransport) Connect(ctx context.Context) (Connection, error) {
	cmd := exec.CommandContext(ctx, t.Name, t.Args...)
	if t.Dir != "" {
		cmd.Dir = t.Dir
	}
	if t.Env != nil {
		cmd.Env = t.Env
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: command transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("mcp: command transport: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("mcp: command transport: start %s: %w", t.Name, err)
	}

	conn := newPipeConn(stdout, stdin, randText())
	conn.cmd = cmd
	return conn, nil
}

// pipeConn implements Connection over a pair of io.Reader/io.Writer
// connected by newline-delimited JSON-RPC, the framing stdio, TCP, and
// Unix-domain socket transports all share.
type pipeConn struct {
	r         *bufio.Reader
	w         io.Writer
	sessionID string

	mu        sync.Mutex
	closeOnce sync.Once
	cmd       *exec.Cmd // non-nil only for a subprocess-backed connection
	closers   []io.Closer
}

func newPipeConn(r io.Reader, w io.Writer, sessionID string) *pipeConn {
	c := &pipeConn{r: bufio.NewReader(r), w: w, sessionID: sessionID}
	if rc, ok := r.(io.Closer); ok {
		c.closers = append(c.closers, rc)
	}
	if wc, ok := w.(io.Closer); ok {
		// Avoid closing the same underlying stream twice when r and w are
		// the same value (as with a single net.Conn).
		if rc, ok := r.(io.Closer); !ok || rc != wc {
			c.closers = append(c.closers, wc)
		}
	}
	return c
}

func (c *pipeConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	msg, err := jsonrpc2.ReadLine(c.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("mcp: stdio read: %w", err)
	}
	return msg, nil
}

func (c *pipeConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := jsonrpc2.WriteLine(c.w, msg); err != nil {
		return fmt.Errorf("mcp: stdio write: %w", err)
	}
	return nil
}

func (c *pipeConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		var errs []error
		for _, cl := range c.closers {
			if e := cl.Close(); e != nil {
				errs = append(errs, e)
			}
		}
		if c.cmd != nil && c.cmd.Process != nil {
			if e := c.cmd.Process.Kill(); e != nil && !errors.Is(e, os.ErrProcessDone) {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

func (c *pipeConn) SessionID() string {
	return c.sessionID
}

func (c *pipeConn) Capabilities() TransportCapabilities {
	return TransportCapabilities{Bidirectional: true, Streaming: false}
}
