// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// JSON-RPC method names.
const (
	// MethodTasksSend is the method name for sending a task message.
	MethodTasksSend = "tasks/send"

	// MethodTasksGet is the method name for retrieving a task's state.
	MethodTasksGet = "tasks/get"

	// MethodTasksCancel is the method name for canceling a task.
	MethodTasksCancel = "tasks/cancel"

	// MethodTasksSendSubscribe is the method name for sending a task message
	// and subscribing to its updates over SSE.
	MethodTasksSendSubscribe = "tasks/sendSubscribe"

	// MethodTasksResubscribe is the method name for reattaching to an
	// existing task's update stream.
	MethodTasksResubscribe = "tasks/resubscribe"

	// MethodTasksPushNotificationSet is the method name for configuring push
	// notifications for a task.
	MethodTasksPushNotificationSet = "tasks/pushNotification/set"

	// MethodTasksPushNotificationGet is the method name for retrieving the
	// push notification configuration for a task.
	MethodTasksPushNotificationGet = "tasks/pushNotification/get"
)

// JSON-RPC error codes.
const (
	// ErrorCodeParseError indicates invalid JSON was received by the peer.
	ErrorCodeParseError = -32700

	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid request object.
	ErrorCodeInvalidRequest = -32600

	// ErrorCodeMethodNotFound indicates the method does not exist or is not available.
	ErrorCodeMethodNotFound = -32601

	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams = -32602

	// ErrorCodeInternalError indicates an internal JSON-RPC error. The client
	// also uses this code for locally synthesized faults such as transport
	// failures and malformed response envelopes.
	ErrorCodeInternalError = -32603

	// ErrorCodeTaskNotFound indicates the requested task ID was not found.
	ErrorCodeTaskNotFound = -32001

	// ErrorCodeTaskNotCancelable indicates the task is in a terminal state
	// and cannot be canceled.
	ErrorCodeTaskNotCancelable = -32002

	// ErrorCodePushNotificationNotSupported indicates the agent does not
	// support push notifications.
	ErrorCodePushNotificationNotSupported = -32003

	// ErrorCodeUnsupportedOperation indicates the requested operation is not
	// supported by the agent.
	ErrorCodeUnsupportedOperation = -32004

	// ErrorCodeIncompatibleContentTypes indicates no content type overlap
	// between client and agent.
	ErrorCodeIncompatibleContentTypes = -32005
)

// ID is a JSON-RPC request identifier. The wire representation is either a
// JSON string or a JSON number.
type ID struct {
	value any
}

// NewID returns a string-valued ID.
func NewID(s string) ID {
	return ID{value: s}
}

// NewNumberID returns a number-valued ID.
func NewNumberID(n int64) ID {
	return ID{value: n}
}

// IsZero reports whether the ID is unset. An unset ID is omitted from the
// wire envelope.
func (id ID) IsZero() bool {
	return id.value == nil
}

// String returns the ID's textual form.
func (id ID) String() string {
	switch v := id.value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MarshalJSON implements [json.Marshaler].
func (id ID) MarshalJSON() ([]byte, error) {
	switch v := id.value.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return json.Marshal(v)
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
	default:
		return nil, fmt.Errorf("taskwire: unsupported id type %T", v)
	}
}

// UnmarshalJSON implements [json.Unmarshaler].
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		id.value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("taskwire: unmarshal string id: %w", err)
		}
		id.value = s
		return nil
	}
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		id.value = n
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("taskwire: unmarshal id: %w", err)
	}
	id.value = f
	return nil
}

// JSONRPCMessage is the base structure shared by requests and responses.
type JSONRPCMessage struct {
	// JSONRPC is the protocol version. Always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier correlating a response to its request.
	ID ID `json:"id,omitzero"`
}

// JSONRPCRequest is a JSON-RPC 2.0 request envelope. Params is kept raw so
// each method can carry its own payload type.
type JSONRPCRequest struct {
	JSONRPCMessage

	// Method is the name of the method to invoke.
	Method string `json:"method"`

	// Params holds the method parameters, verbatim.
	Params jsontext.Value `json:"params,omitzero"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response envelope. Exactly one of Result
// and Error is populated in a well-formed response.
type JSONRPCResponse struct {
	JSONRPCMessage

	// Result holds the method result, verbatim. Absent when Error is set.
	Result jsontext.Value `json:"result,omitzero"`

	// Error holds the failure, if any.
	Error *JSONRPCError `json:"error,omitzero"`
}

// JSONRPCError is the single error shape every protocol failure is expressed
// in, whether it originated at the remote agent or was synthesized locally.
type JSONRPCError struct {
	// Code is the numeric error code.
	Code int `json:"code"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// Data carries optional structured detail.
	Data any `json:"data,omitzero"`
}

var _ error = (*JSONRPCError)(nil)

// Error implements the error interface.
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewParseError returns a *JSONRPCError with [ErrorCodeParseError].
func NewParseError(message string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeParseError, Message: message}
}

// NewInvalidRequestError returns a *JSONRPCError with [ErrorCodeInvalidRequest].
func NewInvalidRequestError(message string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeInvalidRequest, Message: message}
}

// NewMethodNotFoundError returns a *JSONRPCError with [ErrorCodeMethodNotFound].
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

// NewInvalidParamsError returns a *JSONRPCError with [ErrorCodeInvalidParams].
func NewInvalidParamsError(message string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeInvalidParams, Message: message}
}

// NewInternalError returns a *JSONRPCError with [ErrorCodeInternalError].
// Client-side faults such as unreachable peers and malformed envelopes are
// reported through this constructor so callers see one uniform error shape.
func NewInternalError(message string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeInternalError, Message: message}
}

// NewTaskNotFoundError returns a *JSONRPCError with [ErrorCodeTaskNotFound].
func NewTaskNotFoundError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeTaskNotFound, Message: "task not found", Data: taskID}
}

// NewTaskNotCancelableError returns a *JSONRPCError with [ErrorCodeTaskNotCancelable].
func NewTaskNotCancelableError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeTaskNotCancelable, Message: "task cannot be canceled", Data: taskID}
}

// NewPushNotificationNotSupportedError returns a *JSONRPCError with
// [ErrorCodePushNotificationNotSupported].
func NewPushNotificationNotSupportedError() *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodePushNotificationNotSupported, Message: "push notifications not supported"}
}

// NewUnsupportedOperationError returns a *JSONRPCError with
// [ErrorCodeUnsupportedOperation].
func NewUnsupportedOperationError(operation string) *JSONRPCError {
	return &JSONRPCError{Code: ErrorCodeUnsupportedOperation, Message: fmt.Sprintf("unsupported operation: %s", operation)}
}
