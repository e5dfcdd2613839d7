// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import "errors"

// AsJSONRPCError extracts the *JSONRPCError from err's chain, if any.
func AsJSONRPCError(err error) (*JSONRPCError, bool) {
	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

func errorCodeIs(err error, code int) bool {
	rpcErr, ok := AsJSONRPCError(err)
	return ok && rpcErr.Code == code
}

// IsTaskNotFound reports whether err carries [ErrorCodeTaskNotFound].
func IsTaskNotFound(err error) bool {
	return errorCodeIs(err, ErrorCodeTaskNotFound)
}

// IsTaskNotCancelable reports whether err carries [ErrorCodeTaskNotCancelable].
func IsTaskNotCancelable(err error) bool {
	return errorCodeIs(err, ErrorCodeTaskNotCancelable)
}

// IsPushNotificationNotSupported reports whether err carries
// [ErrorCodePushNotificationNotSupported].
func IsPushNotificationNotSupported(err error) bool {
	return errorCodeIs(err, ErrorCodePushNotificationNotSupported)
}

// IsInternalError reports whether err carries [ErrorCodeInternalError].
// True for every client-synthesized fault, including transport failures and
// malformed response envelopes.
func IsInternalError(err error) bool {
	return errorCodeIs(err, ErrorCodeInternalError)
}

// IsMethodNotFound reports whether err carries [ErrorCodeMethodNotFound].
func IsMethodNotFound(err error) bool {
	return errorCodeIs(err, ErrorCodeMethodNotFound)
}

// IsInvalidParams reports whether err carries [ErrorCodeInvalidParams].
func IsInvalidParams(err error) bool {
	return errorCodeIs(err, ErrorCodeInvalidParams)
}
