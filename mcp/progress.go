// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
)

var ErrNoProgressToken = errors.New("no progress token")

// ErrProgressNotIncreasing is returned by Progress when progress does not
// strictly increase over the request's previously reported value, per the
// protocol's requirement that progress notifications for a given token
// report monotonically increasing progress.
var ErrProgressNotIncreasing = errors.New("progress value did not increase over the last reported value")

// Progress reports progress on the current request.
//
// An error is returned if sending progress failed. If there was no progress
// token, this error is ErrNoProgressToken. If progress does not strictly
// increase over the value last reported on this request, the error is
// ErrProgressNotIncreasing and no notification is sent — a handler that
// computes progress from a noisy or non-monotonic source is a bug in the
// handler, not something a client should see as a wire message.
func (r *ServerRequest[P]) Progress(ctx context.Context, msg string, progress, total float64) error {
	token, ok := r.Params.GetMeta()[progressTokenKey]
	if !ok {
		return ErrNoProgressToken
	}

	r.progressMu.Lock()
	if r.lastProgress != nil && progress <= *r.lastProgress {
		r.progressMu.Unlock()
		return ErrProgressNotIncreasing
	}
	r.lastProgress = &progress
	r.progressMu.Unlock()

	params := &ProgressNotificationParams{
		Message:       msg,
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
	}
	return r.Session.NotifyProgress(ctx, params)
}
