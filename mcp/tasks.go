// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// Wire types for the tasks sub-protocol: augmenting a request (currently
// only tools/call) with a durable, pollable task instead of requiring the
// caller to hold the connection open until the work completes.

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusWorking   TaskStatus = "working"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task describes the current state of an asynchronous, task-augmented
// request.
type Task struct {
	Meta `json:"_meta,omitempty"`
	// TaskID uniquely identifies this task for the lifetime of the session
	// that created it.
	TaskID string `json:"taskId"`
	// Status is the task's current lifecycle state.
	Status TaskStatus `json:"status"`
	// StatusMessage is a human-readable description of Status.
	StatusMessage string `json:"statusMessage,omitempty"`
	// CreatedAt is an RFC 3339 timestamp of task creation.
	CreatedAt string `json:"createdAt"`
	// LastUpdatedAt is an RFC 3339 timestamp of the last status change.
	LastUpdatedAt string `json:"lastUpdatedAt"`
	// TTL is how long, in milliseconds, the task's result remains
	// retrievable after completion. Nil means no expiry.
	TTL *int64 `json:"ttl,omitempty"`
}

// TaskParams requests task augmentation on a supporting request.
type TaskParams struct {
	// TTL overrides the server's default task result retention, in
	// milliseconds.
	TTL *int64 `json:"ttl,omitempty"`
}

// CreateTaskResult is returned in place of a request's normal result when
// the request was accepted for asynchronous, task-augmented execution.
type CreateTaskResult struct {
	Meta `json:"_meta,omitempty"`
	Task *Task `json:"task"`
}

func (*CreateTaskResult) isResult() {}

// GetTaskParams identifies the task tasks/get should report on.
type GetTaskParams struct {
	Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

func (x *GetTaskParams) isParams()              {}
func (x *GetTaskParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *GetTaskParams) SetProgressToken(t any) { setProgressToken(x, t) }

// GetTaskResult is the tasks/get response: a snapshot of a Task's state.
type GetTaskResult Task

func (*GetTaskResult) isResult() {}

// ListTasksParams requests a page of the caller's tasks.
type ListTasksParams struct {
	Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

func (x *ListTasksParams) isParams()              {}
func (x *ListTasksParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *ListTasksParams) SetProgressToken(t any) { setProgressToken(x, t) }

// ListTasksResult is the tasks/list response.
type ListTasksResult struct {
	Meta       `json:"_meta,omitempty"`
	Tasks      []*Task `json:"tasks"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

func (*ListTasksResult) isResult() {}

// CancelTaskParams identifies the task tasks/cancel should cancel.
type CancelTaskParams struct {
	Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

func (x *CancelTaskParams) isParams()              {}
func (x *CancelTaskParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *CancelTaskParams) SetProgressToken(t any) { setProgressToken(x, t) }

// CancelTaskResult is the tasks/cancel response: the task's state after
// cancellation.
type CancelTaskResult Task

func (*CancelTaskResult) isResult() {}

// TaskResultParams identifies the task whose final result tasks/result
// should return.
type TaskResultParams struct {
	Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

func (x *TaskResultParams) isParams()              {}
func (x *TaskResultParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *TaskResultParams) SetProgressToken(t any) { setProgressToken(x, t) }

// TaskStatusNotificationParams is sent whenever a task's status changes.
type TaskStatusNotificationParams Task

func (x *TaskStatusNotificationParams) isParams()              {}
func (x *TaskStatusNotificationParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *TaskStatusNotificationParams) SetProgressToken(t any) { setProgressToken(x, t) }
