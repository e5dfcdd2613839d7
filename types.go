// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"
	"time"
)

// Role identifies the author of a [Message].
type Role string

const (
	// RoleUser marks a message authored by the caller.
	RoleUser Role = "user"

	// RoleAgent marks a message authored by the remote agent.
	RoleAgent Role = "agent"
)

// Part type discriminators.
const (
	// PartTypeText marks a plain-text part.
	PartTypeText = "text"

	// PartTypeFile marks a file part.
	PartTypeFile = "file"

	// PartTypeData marks a structured-data part.
	PartTypeData = "data"
)

// Part is one piece of a message or artifact. The Type field discriminates
// which of the payload fields is meaningful.
type Part struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitzero"`
	File     *FileContent   `json:"file,omitzero"`
	Data     map[string]any `json:"data,omitzero"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// NewTextPart returns a text [Part].
func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// NewDataPart returns a structured-data [Part].
func NewDataPart(data map[string]any) Part {
	return Part{Type: PartTypeData, Data: data}
}

// FileContent carries file bytes inline or by reference. Exactly one of
// Bytes and URI is set.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
	Bytes    string `json:"bytes,omitzero"`
	URI      string `json:"uri,omitzero"`
}

// Message is a single exchange turn between the caller and the agent.
type Message struct {
	Role     Role           `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Artifact is an output produced by a task. Append and LastChunk describe
// how a streamed artifact chunk relates to previously delivered chunks with
// the same name.
type Artifact struct {
	Name        string         `json:"name,omitzero"`
	Description string         `json:"description,omitzero"`
	Parts       []Part         `json:"parts"`
	Index       int            `json:"index,omitzero"`
	Append      bool           `json:"append,omitzero"`
	LastChunk   bool           `json:"lastChunk,omitzero"`
	Metadata    map[string]any `json:"metadata,omitzero"`
}

// TaskStatus is the current lifecycle position of a task, with an optional
// agent message explaining it.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitzero"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Task is a remote-computed unit of work, identified by an opaque id.
type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitzero"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitzero"`
	History   []Message      `json:"history,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// TaskSendParams are the parameters for tasks/send and tasks/sendSubscribe.
type TaskSendParams struct {
	ID                  string                  `json:"id"`
	SessionID           string                  `json:"sessionId,omitzero"`
	Message             Message                 `json:"message"`
	AcceptedOutputModes []string                `json:"acceptedOutputModes,omitzero"`
	PushNotification    *PushNotificationConfig `json:"pushNotification,omitzero"`
	HistoryLength       int                     `json:"historyLength,omitzero"`
	Metadata            map[string]any          `json:"metadata,omitzero"`
}

// Validate checks that the required identifying fields are present.
func (p *TaskSendParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if len(p.Message.Parts) == 0 {
		return fmt.Errorf("message must have at least one part")
	}
	return nil
}

// TaskQueryParams are the parameters for tasks/get. HistoryLength limits how
// many trailing history messages the agent returns; zero means none.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength int            `json:"historyLength,omitzero"`
	Metadata      map[string]any `json:"metadata,omitzero"`
}

// Validate checks that the required identifying fields are present.
func (p *TaskQueryParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task id is required")
	}
	return nil
}

// TaskIDParams are the parameters for methods addressed by task id alone,
// such as tasks/cancel, tasks/resubscribe, and tasks/pushNotification/get.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Validate checks that the required identifying fields are present.
func (p *TaskIDParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task id is required")
	}
	return nil
}

// PushNotificationConfig describes where and how the agent should deliver
// out-of-band task updates.
type PushNotificationConfig struct {
	URL            string              `json:"url"`
	Token          string              `json:"token,omitzero"`
	Authentication *AuthenticationInfo `json:"authentication,omitzero"`
}

// AuthenticationInfo describes the authentication the notification receiver
// expects.
type AuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitzero"`
}

// TaskPushNotificationConfig associates a task id with its notification
// target. Set and fetched as an opaque unit.
type TaskPushNotificationConfig struct {
	ID                     string                 `json:"id"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// Validate checks that the required identifying fields are present.
func (c *TaskPushNotificationConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if c.PushNotificationConfig.URL == "" {
		return fmt.Errorf("push notification url is required")
	}
	return nil
}

// Event is a streaming task update. Implemented by
// [TaskStatusUpdateEvent] and [TaskArtifactUpdateEvent].
type Event interface {
	// GetTaskID returns the id of the task the event belongs to.
	GetTaskID() string

	// Final reports whether the event terminates the stream.
	Final() bool
}

// TaskStatusUpdateEvent reports a task status transition on a stream. A
// final event is the last one the agent emits for the task.
type TaskStatusUpdateEvent struct {
	ID       string         `json:"id"`
	Status   TaskStatus     `json:"status"`
	IsFinal  bool           `json:"final,omitzero"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// GetTaskID implements [Event].
func (e *TaskStatusUpdateEvent) GetTaskID() string { return e.ID }

// Final implements [Event].
func (e *TaskStatusUpdateEvent) Final() bool { return e.IsFinal }

// TaskArtifactUpdateEvent delivers an artifact chunk on a stream.
type TaskArtifactUpdateEvent struct {
	ID       string         `json:"id"`
	Artifact Artifact       `json:"artifact"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// GetTaskID implements [Event].
func (e *TaskArtifactUpdateEvent) GetTaskID() string { return e.ID }

// Final implements [Event]. Artifact updates never terminate a stream.
func (e *TaskArtifactUpdateEvent) Final() bool { return false }

// AgentProvider identifies the organization behind an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitzero"`
}

// AgentSkill advertises one thing an agent can do.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitzero"`
	Tags        []string `json:"tags,omitzero"`
	Examples    []string `json:"examples,omitzero"`
	InputModes  []string `json:"inputModes,omitzero"`
	OutputModes []string `json:"outputModes,omitzero"`
}

// AgentCard is the static capability and metadata descriptor a peer serves
// at [AgentCardPath]. Immutable once fetched.
type AgentCard struct {
	Name               string          `json:"name"`
	Description        string          `json:"description,omitzero"`
	URL                string          `json:"url"`
	Provider           *AgentProvider  `json:"provider,omitzero"`
	Version            string          `json:"version"`
	DocumentationURL   string          `json:"documentationUrl,omitzero"`
	Capabilities       map[string]bool `json:"capabilities"`
	DefaultInputModes  []string        `json:"defaultInputModes,omitzero"`
	DefaultOutputModes []string        `json:"defaultOutputModes,omitzero"`
	Skills             []AgentSkill    `json:"skills,omitzero"`
}

// Supports reports whether the card advertises the named capability.
func (c *AgentCard) Supports(capability string) bool {
	if c == nil {
		return false
	}
	return c.Capabilities[capability]
}
