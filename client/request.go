// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/go-taskwire/taskwire"
)

// newRequestID generates a fresh correlation id for one call. It prefers a
// random UUID; if the system's entropy source fails it falls back to a
// timestamp id, which is not unique under rapid concurrent calls.
func newRequestID() taskwire.ID {
	if id, err := uuid.NewRandom(); err == nil {
		return taskwire.NewID(id.String())
	}
	return taskwire.NewID(strconv.FormatInt(time.Now().UnixNano(), 10))
}

// newRequest builds a JSON-RPC request envelope for method with the given
// typed params, assigning a fresh correlation id.
func newRequest(method string, params any) (*taskwire.JSONRPCRequest, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}

	return &taskwire.JSONRPCRequest{
		JSONRPCMessage: taskwire.JSONRPCMessage{
			JSONRPC: "2.0",
			ID:      newRequestID(),
		},
		Method: method,
		Params: raw,
	}, nil
}
