// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conduit-mcp/conduit/internal/json"
)

// ServerSession is the server-side view of a negotiated connection. It is
// an alias of Session rather than a distinct type, since the session
// machinery (correlation table, lifecycle, connection) is identical on
// both sides of the wire; only the typed request wrappers built on top of
// it differ.
type ServerSession = Session

// ClientSession is the client-side view of a negotiated connection.
type ClientSession = Session

// NotifyProgress sends a notifications/progress message over the session,
// used by ServerRequest[P].Progress to report incremental progress on a
// long-running request.
func (s *Session) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("mcp: marshaling progress notification: %w", err)
	}
	return s.Conn.Write(ctx, &JSONRPCNotification{Method: notificationProgress, Params: data})
}

// ServerRequest wraps an inbound request's session and typed params, and
// carries the Progress helper (see progress.go) that every method's
// request type exposes.
type ServerRequest[P Params] struct {
	Session *ServerSession
	Params  P

	progressMu   sync.Mutex
	lastProgress *float64
}

// ClientRequest wraps a server-initiated request's session and typed
// params, from the client's point of view.
type ClientRequest[P Params] struct {
	Session *ClientSession
	Params  P
}

func newServerRequest[P Params](session *ServerSession, params P) *ServerRequest[P] {
	return &ServerRequest[P]{Session: session, Params: params}
}

func newClientRequest[P Params](session *ClientSession, params P) *ClientRequest[P] {
	return &ClientRequest[P]{Session: session, Params: params}
}

// handleNotify sends method as a notification on req's session, marshaling
// req.Params as its payload. Errors are returned rather than logged so
// that callers can decide whether a failed notification (a client that has
// gone away mid-task, say) is worth surfacing.
func handleNotify[P Params](ctx context.Context, method string, req *ServerRequest[P]) error {
	data, err := json.Marshal(req.Params)
	if err != nil {
		return fmt.Errorf("mcp: marshaling %s params: %w", method, err)
	}
	return req.Session.Conn.Write(ctx, &JSONRPCNotification{Method: method, Params: data})
}

// PromptHandler answers a prompts/get request for one registered prompt.
type PromptHandler func(ctx context.Context, req *GetPromptRequest) (*GetPromptResult, error)

// ResourceHandler answers a resources/read request for one registered
// resource or resource template.
type ResourceHandler func(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error)

type serverPrompt struct {
	prompt  *Prompt
	handler PromptHandler
}

type serverResource struct {
	resource *Resource
	handler  ResourceHandler
}

type serverResourceTemplate struct {
	template *ResourceTemplate
	handler  ResourceHandler
}

// serverToolSet is the registry of tools a Server exposes, preserving
// registration order for tools/list the way a map alone could not.
type serverToolSet struct {
	order  []string
	byName map[string]*serverTool
}

func newServerToolSet() *serverToolSet {
	return &serverToolSet{byName: make(map[string]*serverTool)}
}

func (s *serverToolSet) get(name string) (*serverTool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

func (s *serverToolSet) add(t *serverTool) {
	if _, exists := s.byName[t.tool.Name]; !exists {
		s.order = append(s.order, t.tool.Name)
	}
	s.byName[t.tool.Name] = t
}

func (s *serverToolSet) remove(name string) {
	if _, ok := s.byName[name]; !ok {
		return
	}
	delete(s.byName, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *serverToolSet) list() []*Tool {
	out := make([]*Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name].tool)
	}
	return out
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Instructions describes how to use the server, surfaced to the client
	// in InitializeResult.
	Instructions string

	// PageSize bounds how many items a single tools/list, prompts/list,
	// resources/list, resources/templates/list, or tasks/list response
	// returns before it must hand back a NextCursor.
	PageSize int

	// KeepAlive is stored with the options, but no code path reads it: the
	// server sends no keepalive pings, whatever its value.
	KeepAlive time.Duration

	// HasPrompts, HasResources, and HasTools advertise the corresponding
	// capability even before any prompt, resource, or tool has been
	// registered, so that a client's initial capability negotiation can
	// rely on features registered after Connect.
	HasPrompts   bool
	HasResources bool
	HasTools     bool

	// SubscribeHandler and UnsubscribeHandler, if set, enable the
	// resources.subscribe capability.
	SubscribeHandler   func(context.Context, *SubscribeRequest) error
	UnsubscribeHandler func(context.Context, *UnsubscribeRequest) error

	// CompletionHandler, if set, enables the completions capability.
	CompletionHandler func(context.Context, *CompleteRequest) (*CompleteResult, error)

	// EnableTasks advertises the tasks sub-protocol capability.
	EnableTasks bool
	// TaskListPageSize bounds a tasks/list response, defaulting to
	// PageSize if zero.
	TaskListPageSize int

	// SchemaCache, if set, is consulted by the package-level AddTool function
	// before generating or resolving a tool's input/output schema, and
	// populated with the result. Share one SchemaCache across Server values
	// that register the same tool types repeatedly (e.g. one Server built
	// per incoming request) to skip redundant reflection-based schema work.
	SchemaCache *SchemaCache

	// SessionStore, if set, persists session state (log level, resource
	// subscriptions, replay events) across process restarts so a client that
	// reconnects with a previously issued session ID resumes where it left
	// off instead of renegotiating from scratch.
	SessionStore SessionStore

	Logger *slog.Logger
}

func (o *ServerOptions) pageSize() int {
	if o.PageSize > 0 {
		return o.PageSize
	}
	return 50
}

// Server is the bridging layer between the generics-based, typed request
// API that tool/prompt/resource handlers are written against
// (ServerRequest[P]) and the low-level Router that actually dispatches
// wire messages for a session.
type Server struct {
	impl *Implementation
	opts *ServerOptions

	mu                sync.Mutex
	tools             *serverToolSet
	prompts           map[string]*serverPrompt
	promptOrder       []string
	resources         map[string]*serverResource
	resourceOrder     []string
	resourceTemplates map[string]*serverResourceTemplate
	templateOrder     []string

	tasks *serverTasks

	sessions   *SessionManager
	router     *Router
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewServer creates a Server identifying itself as impl. A nil opts is
// equivalent to the zero ServerOptions.
func NewServer(impl *Implementation, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		impl:              impl,
		opts:              opts,
		tools:             newServerToolSet(),
		prompts:           make(map[string]*serverPrompt),
		resources:         make(map[string]*serverResource),
		resourceTemplates: make(map[string]*serverResourceTemplate),
		tasks:             newServerTasks(),
		sessions:          NewSessionManager(SessionManagerOptions{IdleTimeout: 0, Store: opts.SessionStore, Logger: logger}),
		dispatcher:        NewDispatcher(DispatcherOptions{}),
		logger:            logger,
	}
	s.router = s.newRouter()
	return s
}

// AddTool registers a raw tool handler. Most callers should prefer the
// AddTool package-level function, which infers the input/output schema
// from Go types; this method is for tools that want to manage their own
// schema and argument unmarshaling.
func (s *Server) AddTool(tool *Tool, handler rawToolHandler) {
	st := &serverTool{tool: tool, handler: handler}
	s.mu.Lock()
	s.tools.add(st)
	s.mu.Unlock()
}

// addTool registers an already-built serverTool, as produced by the
// AddTool/AddToolFor package-level functions.
func (s *Server) addTool(st *serverTool) {
	s.mu.Lock()
	s.tools.add(st)
	s.mu.Unlock()
}

// RemoveTool removes a previously registered tool by name.
func (s *Server) RemoveTool(name string) {
	s.mu.Lock()
	s.tools.remove(name)
	s.mu.Unlock()
}

// AddTool registers a tool whose arguments and structured output are
// described by the Go types In and Out, inferring JSON schemas for both.
// It panics if a schema cannot be derived from In or Out (e.g. In is not a
// JSON object type); this is a programming error, not a runtime one, so
// panicking at registration time surfaces it immediately instead of at the
// first call.
func AddTool[In, Out any](s *Server, tool *Tool, handler TypedToolHandler[In, Out]) {
	st, err := newTypedServerTool(tool, handler, s.opts.SchemaCache)
	if err != nil {
		panic(fmt.Sprintf("mcp: AddTool %q: %v", tool.Name, err))
	}
	s.addTool(st)
}

// AddPrompt registers a prompt.
func (s *Server) AddPrompt(prompt *Prompt, handler PromptHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.prompts[prompt.Name]; !exists {
		s.promptOrder = append(s.promptOrder, prompt.Name)
	}
	s.prompts[prompt.Name] = &serverPrompt{prompt: prompt, handler: handler}
}

// AddResource registers a single, statically-addressed resource.
func (s *Server) AddResource(resource *Resource, handler ResourceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[resource.URI]; !exists {
		s.resourceOrder = append(s.resourceOrder, resource.URI)
	}
	s.resources[resource.URI] = &serverResource{resource: resource, handler: handler}
}

// AddResourceTemplate registers a URI-templated family of resources.
func (s *Server) AddResourceTemplate(template *ResourceTemplate, handler ResourceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resourceTemplates[template.URITemplate]; !exists {
		s.templateOrder = append(s.templateOrder, template.URITemplate)
	}
	s.resourceTemplates[template.URITemplate] = &serverResourceTemplate{template: template, handler: handler}
}

// capabilities reports the server's current capability set, computed from
// what has actually been registered so a client that connects after more
// tools are added sees them reflected in the next initialize response.
func (s *Server) capabilities() *ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()

	caps := &ServerCapabilities{
		Logging: &LoggingCapabilities{},
	}
	if s.opts.HasPrompts || len(s.prompts) > 0 {
		caps.Prompts = &PromptCapabilities{}
	}
	if s.opts.HasResources || len(s.resources) > 0 || len(s.resourceTemplates) > 0 {
		caps.Resources = &ResourceCapabilities{
			Subscribe: s.opts.SubscribeHandler != nil,
		}
	}
	if s.opts.HasTools || len(s.tools.byName) > 0 {
		caps.Tools = &ToolCapabilities{}
	}
	if s.opts.CompletionHandler != nil {
		caps.Completions = &CompletionCapabilities{}
	}
	if s.opts.EnableTasks {
		caps.Tasks = &TaskCapabilities{
			List:   &TaskListCapabilities{},
			Cancel: &TaskCancelCapabilities{},
			Requests: &TaskRequestsCapabilities{
				Tools: &TaskToolsCapabilities{Call: &struct{}{}},
			},
		}
	}
	return caps
}

// ConnectOptions reserves room for per-connection overrides (a future
// per-session logger or session ID generator, say). A nil *ConnectOptions
// is equivalent to the zero value.
type ConnectOptions struct{}

// Connect begins serving transport: it establishes a Connection, registers
// a Session for it, and starts a goroutine reading and dispatching
// messages until the connection closes or ctx is done. It returns as soon
// as the session is created, without waiting for the session to end; use
// Run to block until the session completes.
func (s *Server) Connect(ctx context.Context, transport Transport, opts *ConnectOptions) (*ServerSession, error) {
	conn, err := transport.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: connecting transport: %w", err)
	}
	id := conn.SessionID()
	session := s.sessions.Create(id, conn)
	go s.serve(ctx, session)
	return session, nil
}

// Run connects transport and blocks until the resulting session's
// connection is closed or ctx is done.
func (s *Server) Run(ctx context.Context, transport Transport) error {
	conn, err := transport.Connect(ctx)
	if err != nil {
		return fmt.Errorf("mcp: connecting transport: %w", err)
	}
	id := conn.SessionID()
	session := s.sessions.Create(id, conn)
	s.serve(ctx, session)
	return nil
}

func (s *Server) serve(ctx context.Context, session *ServerSession) {
	defer s.sessions.Delete(session.ID)
	for {
		msg, err := session.Conn.Read(ctx)
		if err != nil {
			return
		}
		s.router.dispatchOne(ctx, session, msg)
	}
}
