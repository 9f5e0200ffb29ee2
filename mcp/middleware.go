// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/conduit-mcp/conduit/auth"
	"github.com/conduit-mcp/conduit/internal/json"
)

// Middleware wraps a Handler with cross-cutting behavior, the same
// func(Handler) Handler shape the interceptor pattern in this module's
// proxy-layer ancestry uses, generalized to request/response values instead
// of a passthrough-only *Message.
type Middleware func(Handler) Handler

// Chain is an ordered list of Middleware. Then composes them around core so
// that chain[0] runs outermost: handler = mw1(mw2(...mwN(core))).
type Chain []Middleware

// Then wraps core with every middleware in the chain, outermost first.
func (c Chain) Then(core Handler) Handler {
	h := core
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}

// AuthMiddleware verifies a bearer token (if present in rc.Headers) and
// attaches the resulting Principal to the RequestContext. A token that fails
// verification is rejected with KindAuthDenied for methods in requireAuth and
// otherwise leaves the request unauthenticated. Methods in requireAuth are
// rejected with KindAuthRequired if no valid principal is attached.
func AuthMiddleware(verifier *auth.BearerVerifier, requireAuth map[string]bool) Middleware {
	return func(next Handler) Handler {
		return func(rc *RequestContext) (any, error) {
			if rc.Headers != nil {
				if hdr := rc.Headers.Get("Authorization"); hdr != "" {
					if tok, err := auth.ExtractBearerToken(hdr); err == nil {
						principal, err := verifier.Verify(rc.Context, tok)
						if err != nil {
							if requireAuth[rc.Method] {
								return nil, NewDomainError(KindAuthDenied, err.Error())
							}
						} else {
							rc.AuthPrincipal = principal
						}
					}
				}
			}
			if requireAuth[rc.Method] && rc.AuthPrincipal == nil {
				return nil, NewDomainError(KindAuthRequired, "bearer token required for "+rc.Method)
			}
			return next(rc)
		}
	}
}

// RateLimitMiddleware refuses requests once a session exceeds limit
// requests/sec with the given burst, using a token bucket per session id.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(sessionID string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[sessionID]
		if !ok {
			l = rate.NewLimiter(limit, burst)
			limiters[sessionID] = l
		}
		return l
	}

	return func(next Handler) Handler {
		return func(rc *RequestContext) (any, error) {
			if !limiterFor(rc.Session.ID).Allow() {
				return nil, NewDomainError(KindRateLimit, "rate limit exceeded for method "+rc.Method)
			}
			return next(rc)
		}
	}
}

// idempotentMethods lists the methods whose response is safe to serve from
// cache or retry without side effects.
var idempotentMethods = map[string]bool{
	methodListTools:             true,
	methodListResources:         true,
	methodListPrompts:           true,
	methodListResourceTemplates: true,
	methodListRoots:             true,
	methodReadResource:          true,
	methodPing:                  true,
}

type cacheEntry struct {
	result any
	err    error
}

// CacheMiddleware memoizes responses to idempotent methods, keyed by
// method+params hash, for ttl. There is no pack dependency for in-process
// response caching, so this stays on a mutex-guarded map + crypto/sha256
// rather than a third-party cache library.
func CacheMiddleware(ttl time.Duration) Middleware {
	var mu sync.Mutex
	type timedEntry struct {
		cacheEntry
		expiresAt time.Time
	}
	cache := make(map[string]timedEntry)

	return func(next Handler) Handler {
		return func(rc *RequestContext) (any, error) {
			if !idempotentMethods[rc.Method] {
				return next(rc)
			}
			key := cacheKey(rc.Method, rc.Params)

			mu.Lock()
			e, ok := cache[key]
			mu.Unlock()
			if ok && time.Now().Before(e.expiresAt) {
				return e.result, e.err
			}

			result, err := next(rc)
			mu.Lock()
			cache[key] = timedEntry{cacheEntry: cacheEntry{result: result, err: err}, expiresAt: time.Now().Add(ttl)}
			mu.Unlock()
			return result, err
		}
	}
}

func cacheKey(method string, params json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write(params)
	return hex.EncodeToString(h.Sum(nil))
}

// RetryMiddleware retries idempotent methods up to maxRetries times with
// exponential backoff, mirroring the Streamable HTTP client connection's
// backoff loop. It never reuses a MessageId across attempts; each attempt
// is a fresh call into next, which (for outbound dispatch) mints its own
// fresh id, so a retried call is indistinguishable on the wire from an
// unrelated new call.
func RetryMiddleware(maxRetries int, initialBackoff time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(rc *RequestContext) (any, error) {
			if !idempotentMethods[rc.Method] {
				return next(rc)
			}
			backoff := initialBackoff
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				result, err := next(rc)
				if err == nil {
					return result, nil
				}
				lastErr = err
				de, ok := err.(*DomainError)
				if !ok || (de.Kind != KindTimeout && de.Kind != KindInternal) {
					return nil, err
				}
				select {
				case <-time.After(backoff):
				case <-rc.Context.Done():
					return nil, rc.Context.Err()
				}
				backoff *= 2
			}
			return nil, lastErr
		}
	}
}
