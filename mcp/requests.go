// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file holds the typed request aliases handlers see, grouped by the
// sub-protocol (spec.md §6) each belongs to rather than alphabetically, so
// the router/dispatcher code in router.go and dispatcher.go that wires a
// method name to one of these types can be read alongside this file
// section by section.

package mcp

// Lifecycle and tool/prompt/resource listing — the core surface every
// server exposes regardless of which optional sub-protocols it opts into.
type (
	InitializedRequest           = ServerRequest[*InitializedParams]
	CallToolRequest              = ServerRequest[*CallToolParamsRaw]
	ListToolsRequest             = ServerRequest[*ListToolsParams]
	GetPromptRequest             = ServerRequest[*GetPromptParams]
	ListPromptsRequest           = ServerRequest[*ListPromptsParams]
	CompleteRequest              = ServerRequest[*CompleteParams]
	ReadResourceRequest          = ServerRequest[*ReadResourceParams]
	ListResourcesRequest         = ServerRequest[*ListResourcesParams]
	ListResourceTemplatesRequest = ServerRequest[*ListResourceTemplatesParams]
)

// Resource subscription bookkeeping (spec.md §6's session-scoped
// subscription set).
type (
	SubscribeRequest   = ServerRequest[*SubscribeParams]
	UnsubscribeRequest = ServerRequest[*UnsubscribeParams]
)

// Tasks sub-protocol (spec.md §6's tasks/* methods): a long-running tool
// call tracked by id independently of the request/response that started it.
type (
	GetTaskRequest                      = ServerRequest[*GetTaskParams]
	ListTasksRequest                    = ServerRequest[*ListTasksParams]
	CancelTaskRequest                   = ServerRequest[*CancelTaskParams]
	TaskResultRequest                   = ServerRequest[*TaskResultParams]
	TaskStatusNotificationServerRequest = ServerRequest[*TaskStatusNotificationParams]
)

// Progress notifications, inbound to the server on behalf of the client
// (rare — most progress flows the other way, see the client block below).
type ProgressNotificationServerRequest = ServerRequest[*ProgressNotificationParams]

// Roots list-changed, inbound to the server.
type RootsListChangedRequest = ServerRequest[*RootsListChangedParams]

// Client-side request types: server-initiated sampling/elicitation/roots
// calls, and the notifications a server pushes to a connected client.
type (
	InitializeRequest        = ClientRequest[*InitializeParams]
	initializedClientRequest = ClientRequest[*InitializedParams]
	CreateMessageRequest     = ClientRequest[*CreateMessageParams]
	ElicitRequest             = ClientRequest[*ElicitParams]
	ListRootsRequest          = ClientRequest[*ListRootsParams]
)

// Server-to-client notifications: list-changed signals, logging, progress,
// resource updates, task status, and elicitation completion.
type (
	ToolListChangedRequest                 = ClientRequest[*ToolListChangedParams]
	PromptListChangedRequest               = ClientRequest[*PromptListChangedParams]
	ResourceListChangedRequest             = ClientRequest[*ResourceListChangedParams]
	ResourceUpdatedNotificationRequest     = ClientRequest[*ResourceUpdatedNotificationParams]
	LoggingMessageRequest                  = ClientRequest[*LoggingMessageParams]
	ProgressNotificationClientRequest      = ClientRequest[*ProgressNotificationParams]
	TaskStatusNotificationRequest          = ClientRequest[*TaskStatusNotificationParams]
	ElicitationCompleteNotificationRequest = ClientRequest[*ElicitationCompleteParams]
)
