// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskwire provides the wire types for a JSON-RPC-over-HTTP protocol
// that delegates long-running tasks to a remote agent, with Server-Sent
// Events (SSE) pushing incremental task lifecycle updates back to the caller.
package taskwire

// Version is the current version of the taskwire protocol.
const Version = "0.1.0"

// Protocol path constants.
const (
	// AgentCardPath is the path for retrieving an agent's AgentCard,
	// relative to the agent's base URL.
	AgentCardPath = "/agent-card"

	// DefaultRPCPath is the default path for the JSON-RPC endpoint.
	// All task methods are POSTed to this path.
	DefaultRPCPath = "/"
)

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been received but not started.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the task is being worked on.
	TaskStateWorking TaskState = "working"

	// TaskStateInputRequired indicates the task is waiting on caller input.
	TaskStateInputRequired TaskState = "input-required"

	// TaskStateCompleted indicates the task has completed successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateCanceled indicates the task has been canceled.
	TaskStateCanceled TaskState = "canceled"

	// TaskStateFailed indicates the task has failed.
	TaskStateFailed TaskState = "failed"
)

// Terminal reports whether the state is final. Tasks in a terminal state
// cannot be canceled and emit no further updates.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	default:
		return false
	}
}

// Well-known capability names published in an [AgentCard].
const (
	// CapabilityStreaming indicates support for tasks/sendSubscribe and
	// tasks/resubscribe.
	CapabilityStreaming = "streaming"

	// CapabilityPushNotifications indicates support for
	// tasks/pushNotification/set and tasks/pushNotification/get.
	CapabilityPushNotifications = "pushNotifications"
)
