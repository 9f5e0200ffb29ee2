// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"

	"github.com/conduit-mcp/conduit/internal/json"
)

// RootsProvider supplies the roots a client exposes to a server via
// roots/list.
type RootsProvider interface {
	ListRoots(rc *RequestContext) ([]*Root, error)
}

// RootsProviderFunc adapts a function to a RootsProvider.
type RootsProviderFunc func(rc *RequestContext) ([]*Root, error)

func (f RootsProviderFunc) ListRoots(rc *RequestContext) ([]*Root, error) { return f(rc) }

// RegisterRootsHandler registers the client-side handler for roots/list,
// serving roots from provider.
func RegisterRootsHandler(router *Router, provider RootsProvider) {
	router.Handle(methodListRoots, func(rc *RequestContext) (any, error) {
		roots, err := provider.ListRoots(rc)
		if err != nil {
			return nil, asDomainError(err)
		}
		return &ListRootsResult{Roots: roots}, nil
	})
}

// NotifyRootsListChanged is called by the client side whenever its root set
// changes, to notify the server.
func NotifyRootsListChanged(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(&RootsListChangedParams{})
	if err != nil {
		return WrapDomainError(KindInternal, "marshaling notification", err)
	}
	return session.Conn.Write(ctx, &JSONRPCNotification{Method: notificationRootsListChanged, Params: raw})
}
