// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CreateMessageHandler answers a sampling/createMessage request from the
// server, asking the client's host application to run a model completion.
type CreateMessageHandler func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error)

// ElicitationHandler answers an elicitation/create request from the
// server, asking the client's host application to collect input from the
// user.
type ElicitationHandler func(ctx context.Context, req *ElicitRequest) (*ElicitResult, error)

// RootsListHandler answers a roots/list request from the server. If unset
// but [ClientOptions.Roots] is non-nil, the client serves that static list
// instead.
type RootsListHandler func(ctx context.Context, req *ListRootsRequest) (*ListRootsResult, error)

// ClientOptions configures a Client. A nil *ClientOptions is equivalent to
// the zero value: a client that advertises no capabilities beyond what the
// protocol requires.
type ClientOptions struct {
	// CreateMessageHandler, if set, advertises sampling support and serves
	// sampling/createMessage requests from the server.
	CreateMessageHandler CreateMessageHandler
	// ElicitationHandler, if set, advertises elicitation support and
	// serves elicitation/create requests from the server.
	ElicitationHandler ElicitationHandler
	// Roots is the static root list reported in response to roots/list,
	// when RootsListHandler is nil. A non-nil value (even an empty slice)
	// advertises roots support.
	Roots []*Root
	// RootsListHandler, if set, advertises roots support and overrides
	// Roots with a dynamically computed list.
	RootsListHandler RootsListHandler

	// ProgressNotificationHandler is called for every
	// notifications/progress the server sends for a call this client made.
	ProgressNotificationHandler func(ctx context.Context, params *ProgressNotificationParams)
	// LoggingMessageHandler is called for every notifications/message the
	// server sends.
	LoggingMessageHandler func(ctx context.Context, params *LoggingMessageParams)
	// ResourceUpdatedHandler is called for every
	// notifications/resources/updated the server sends.
	ResourceUpdatedHandler func(ctx context.Context, params *ResourceUpdatedNotificationParams)
	// ToolListChangedHandler, PromptListChangedHandler, and
	// ResourceListChangedHandler are called for their respective
	// notifications/*/list_changed messages, if set.
	ToolListChangedHandler     func(ctx context.Context)
	PromptListChangedHandler   func(ctx context.Context)
	ResourceListChangedHandler func(ctx context.Context)

	// Capabilities overrides the capability set the client advertises
	// during initialize. If nil, capabilities are derived from which
	// handlers above are set.
	Capabilities *ClientCapabilities

	// CallTimeout bounds how long an outbound call (CallTool, ListTools,
	// etc.) waits for a response. Defaults to 30 seconds.
	CallTimeout time.Duration

	Logger *slog.Logger
}

func (o *ClientOptions) callTimeout() time.Duration {
	if o.CallTimeout > 0 {
		return o.CallTimeout
	}
	return 30 * time.Second
}

// Client is the bridging layer between the generics-based, typed handler
// API that sampling/elicitation/roots handlers are written against
// (ClientRequest[P]) and the low-level Router that dispatches inbound,
// server-initiated requests for a session. It mirrors Server's structure
// from the opposite side of the wire.
type Client struct {
	impl *Implementation
	opts *ClientOptions

	sessions *SessionManager
	router   *Router
	logger   *slog.Logger
}

// NewClient creates a Client identifying itself as impl. A nil opts is
// equivalent to the zero ClientOptions.
func NewClient(impl *Implementation, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		impl:     impl,
		opts:     opts,
		sessions: NewSessionManager(SessionManagerOptions{IdleTimeout: 0, Logger: logger}),
		logger:   logger,
	}
	c.router = c.newRouter()
	return c
}

// capabilities reports the capabilities this client advertises during
// initialize, derived from which optional handlers were configured.
func (c *Client) capabilities() *ClientCapabilities {
	caps := &ClientCapabilities{}
	if c.opts.CreateMessageHandler != nil {
		caps.Sampling = &SamplingCapabilities{}
	}
	if c.opts.ElicitationHandler != nil {
		caps.Elicitation = &ElicitationCapabilities{}
	}
	if c.opts.RootsListHandler != nil || c.opts.Roots != nil {
		caps.RootsV2 = &RootCapabilities{}
	}
	if c.opts.Capabilities != nil {
		caps = c.opts.Capabilities
	}
	return caps
}

// newRouter builds the Router that serves every method a server may send
// to this client: the three server-initiated call types, plus every
// notification this client understands.
func (c *Client) newRouter() *Router {
	r := NewRouter(RouterOptions{Logger: c.logger})

	r.Handle(methodCreateMessage, func(rc *RequestContext) (any, error) {
		if c.opts.CreateMessageHandler == nil {
			return nil, NewDomainError(KindMethodNotFound, methodCreateMessage)
		}
		var params CreateMessageParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return c.opts.CreateMessageHandler(rc.Context, newClientRequest(rc.Session, &params))
	})

	r.Handle(methodElicit, func(rc *RequestContext) (any, error) {
		if c.opts.ElicitationHandler == nil {
			return nil, NewDomainError(KindMethodNotFound, methodElicit)
		}
		var params ElicitParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		return c.opts.ElicitationHandler(rc.Context, newClientRequest(rc.Session, &params))
	})

	r.Handle(methodListRoots, func(rc *RequestContext) (any, error) {
		var params ListRootsParams
		if err := unmarshalParams(rc.Params, &params); err != nil {
			return nil, err
		}
		if c.opts.RootsListHandler != nil {
			return c.opts.RootsListHandler(rc.Context, newClientRequest(rc.Session, &params))
		}
		return &ListRootsResult{Roots: c.opts.Roots}, nil
	})

	r.Handle(methodPing, func(*RequestContext) (any, error) {
		return struct{}{}, nil
	})

	r.HandleNotification(notificationProgress, func(rc *RequestContext) {
		if c.opts.ProgressNotificationHandler == nil {
			return
		}
		var params ProgressNotificationParams
		if err := unmarshalParams(rc.Params, &params); err == nil {
			c.opts.ProgressNotificationHandler(rc.Context, &params)
		}
	})
	r.HandleNotification(notificationLoggingMessage, func(rc *RequestContext) {
		if c.opts.LoggingMessageHandler == nil {
			return
		}
		var params LoggingMessageParams
		if err := unmarshalParams(rc.Params, &params); err == nil {
			c.opts.LoggingMessageHandler(rc.Context, &params)
		}
	})
	r.HandleNotification(notificationResourceUpdated, func(rc *RequestContext) {
		if c.opts.ResourceUpdatedHandler == nil {
			return
		}
		var params ResourceUpdatedNotificationParams
		if err := unmarshalParams(rc.Params, &params); err == nil {
			c.opts.ResourceUpdatedHandler(rc.Context, &params)
		}
	})
	r.HandleNotification(notificationToolListChanged, func(rc *RequestContext) {
		if c.opts.ToolListChangedHandler != nil {
			c.opts.ToolListChangedHandler(rc.Context)
		}
	})
	r.HandleNotification(notificationPromptListChanged, func(rc *RequestContext) {
		if c.opts.PromptListChangedHandler != nil {
			c.opts.PromptListChangedHandler(rc.Context)
		}
	})
	r.HandleNotification(notificationResourceListChanged, func(rc *RequestContext) {
		if c.opts.ResourceListChangedHandler != nil {
			c.opts.ResourceListChangedHandler(rc.Context)
		}
	})

	return r
}

// Connect establishes a Connection over transport, starts a goroutine
// reading and dispatching inbound messages (responses and server-initiated
// messages) until the connection closes or ctx is done, and performs the
// initialize handshake. It returns once initialize completes successfully.
func (c *Client) Connect(ctx context.Context, transport Transport, opts *ConnectOptions) (*ClientSession, error) {
	conn, err := transport.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: connecting transport: %w", err)
	}
	id := conn.SessionID()
	session := c.sessions.Create(id, conn)
	go c.serve(ctx, session)

	if err := c.initialize(ctx, session); err != nil {
		conn.Close()
		c.sessions.Delete(id)
		return nil, err
	}
	return session, nil
}

func (c *Client) initialize(ctx context.Context, session *Session) error {
	if err := session.Lifecycle.BeginInitialize(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	clientCaps := c.capabilities()
	params := &InitializeParams{
		Capabilities:    clientCaps,
		ClientInfo:      c.impl,
		ProtocolVersion: protocolVersion,
	}
	var result InitializeResult
	if err := rawCall(ctx, session, c.opts.callTimeout(), methodInitialize, params, &result); err != nil {
		return err
	}
	if err := session.Lifecycle.CompleteInitialize(clientCaps, result.Capabilities); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return session.Conn.Write(ctx, &JSONRPCNotification{Method: notificationInitialized})
}

func (c *Client) serve(ctx context.Context, session *ClientSession) {
	defer c.sessions.Delete(session.ID)
	for {
		msg, err := session.Conn.Read(ctx)
		if err != nil {
			return
		}
		c.router.dispatchOne(ctx, session, msg)
	}
}

// call performs one client-initiated request/response round trip, per
// rawCall's shared algorithm (see dispatcher.go).
func (c *Client) call(ctx context.Context, session *ClientSession, method string, params, result any) error {
	if !session.Lifecycle.IsReady() {
		return NewDomainError(KindInvalidRequest, "session is not ready")
	}
	return rawCall(ctx, session, c.opts.callTimeout(), method, params, result)
}

// Ping sends a ping request and waits for the server's empty response.
func (c *Client) Ping(ctx context.Context, session *ClientSession) error {
	return c.call(ctx, session, methodPing, &PingParams{}, nil)
}

// ListTools lists the server's available tools.
func (c *Client) ListTools(ctx context.Context, session *ClientSession, params *ListToolsParams) (*ListToolsResult, error) {
	if params == nil {
		params = &ListToolsParams{}
	}
	var result ListToolsResult
	if err := c.call(ctx, session, methodListTools, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallTool invokes a tool by name with the given arguments.
func (c *Client) CallTool(ctx context.Context, session *ClientSession, params *CallToolParams) (*CallToolResult, error) {
	var result CallToolResult
	if err := c.call(ctx, session, methodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPrompts lists the server's available prompts.
func (c *Client) ListPrompts(ctx context.Context, session *ClientSession, params *ListPromptsParams) (*ListPromptsResult, error) {
	if params == nil {
		params = &ListPromptsParams{}
	}
	var result ListPromptsResult
	if err := c.call(ctx, session, methodListPrompts, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrompt fetches one prompt, rendered with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, session *ClientSession, params *GetPromptParams) (*GetPromptResult, error) {
	var result GetPromptResult
	if err := c.call(ctx, session, methodGetPrompt, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources lists the server's available resources.
func (c *Client) ListResources(ctx context.Context, session *ClientSession, params *ListResourcesParams) (*ListResourcesResult, error) {
	if params == nil {
		params = &ListResourcesParams{}
	}
	var result ListResourcesResult
	if err := c.call(ctx, session, methodListResources, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResourceTemplates lists the server's resource templates.
func (c *Client) ListResourceTemplates(ctx context.Context, session *ClientSession, params *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	if params == nil {
		params = &ListResourceTemplatesParams{}
	}
	var result ListResourceTemplatesResult
	if err := c.call(ctx, session, methodListResourceTemplates, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, session *ClientSession, params *ReadResourceParams) (*ReadResourceResult, error) {
	var result ReadResourceResult
	if err := c.call(ctx, session, methodReadResource, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe asks the server to notify this client of updates to one
// resource.
func (c *Client) Subscribe(ctx context.Context, session *ClientSession, params *SubscribeParams) error {
	return c.call(ctx, session, methodSubscribe, params, nil)
}

// Unsubscribe cancels a previous Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, session *ClientSession, params *UnsubscribeParams) error {
	return c.call(ctx, session, methodUnsubscribe, params, nil)
}

// SetLoggingLevel asks the server to only forward notifications/message
// entries at or above level.
func (c *Client) SetLoggingLevel(ctx context.Context, session *ClientSession, level LoggingLevel) error {
	return c.call(ctx, session, methodSetLevel, &SetLoggingLevelParams{Level: level}, nil)
}

// Complete requests autocompletion suggestions for one argument.
func (c *Client) Complete(ctx context.Context, session *ClientSession, params *CompleteParams) (*CompleteResult, error) {
	var result CompleteResult
	if err := c.call(ctx, session, methodComplete, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
