// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-taskwire/taskwire"
)

// maxErrorBodyLen bounds how much of an HTTP error body is echoed into a
// synthesized fault message.
const maxErrorBodyLen = 1 << 10

// decodeResponse validates a completed unary HTTP response and extracts the
// raw result. A nil result with a nil error means the peer returned no
// payload. Every failure is reported as a *taskwire.JSONRPCError: errors
// embedded by the peer are returned verbatim, everything else is synthesized
// with code -32603.
func decodeResponse(resp *http.Response) (jsontext.Value, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("read response body: %v", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// The peer may still have shipped a JSON-RPC error envelope on a
		// non-2xx status. Surface that error verbatim when present.
		var envelope taskwire.JSONRPCResponse
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
			return nil, envelope.Error
		}
		return nil, taskwire.NewInternalError(fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(body, maxErrorBodyLen)))
	}

	var envelope taskwire.JSONRPCResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("malformed response envelope: %v", err))
	}
	if envelope.JSONRPC != "2.0" {
		return nil, taskwire.NewInternalError(fmt.Sprintf("malformed response envelope: unexpected version %q", envelope.JSONRPC))
	}

	if envelope.Error != nil {
		return nil, envelope.Error
	}

	switch string(envelope.Result) {
	case "":
		// Neither result nor error present.
		return nil, taskwire.NewInternalError("malformed response envelope: missing result and error")
	case "null":
		// Explicit null result means success with no payload.
		return nil, nil
	default:
		return envelope.Result, nil
	}
}

// decodeResult decodes the raw result into out. A nil raw result leaves out
// untouched and reports false.
func decodeResult(raw jsontext.Value, out any) (bool, error) {
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, taskwire.NewInternalError(fmt.Sprintf("decode result: %v", err))
	}
	return true, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
