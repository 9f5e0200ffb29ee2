// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// Meta holds protocol-reserved, arbitrary metadata that clients and servers
// may attach to any request, notification, or result. It is embedded
// anonymously in every params and result type, so that GetMeta/SetMeta are
// promoted onto each of them for free.
type Meta map[string]any

// GetMeta returns m itself, satisfying the Params and Result interfaces for
// every type that embeds Meta.
func (m Meta) GetMeta() Meta { return m }

// SetMeta replaces the embedded Meta map.
func (m *Meta) SetMeta(v Meta) { *m = v }

// Params is implemented by every method's parameter type. isParams is
// unexported so that only types declared in this package can satisfy it.
type Params interface {
	isParams()
	GetProgressToken() any
	SetProgressToken(any)
	GetMeta() Meta
	SetMeta(Meta)
}

// Result is implemented by every method's result type.
type Result interface {
	isResult()
	GetMeta() Meta
	SetMeta(Meta)
}

// progressTokenKey is the reserved _meta key under which a progress token
// travels, per the protocol's progress notification sub-protocol.
const progressTokenKey = "progressToken"

// progressTokenHolder is satisfied by any *XxxParams pointer, via promotion
// of Meta's GetMeta/SetMeta methods.
type progressTokenHolder interface {
	GetMeta() Meta
	SetMeta(Meta)
}

func getProgressToken(p progressTokenHolder) any {
	m := p.GetMeta()
	if m == nil {
		return nil
	}
	return m[progressTokenKey]
}

func setProgressToken(p progressTokenHolder, token any) {
	m := p.GetMeta()
	if m == nil {
		m = Meta{}
	}
	m[progressTokenKey] = token
	p.SetMeta(m)
}
