// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-json-experiment/json"

	"github.com/go-taskwire/taskwire"
)

// sseWriter writes JSON-RPC envelopes as SSE frames, one "data:" field per
// frame, flushed immediately so updates reach the client as they happen.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// newSSEWriter prepares w for event streaming. It fails when the underlying
// writer cannot flush incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For Nginx proxy
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// send writes one envelope frame.
func (s *sseWriter) send(envelope *taskwire.JSONRPCResponse) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal stream envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// sendResult writes a result frame correlated to the request id.
func (s *sseWriter) sendResult(id taskwire.ID, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal stream result: %w", err)
	}
	return s.send(&taskwire.JSONRPCResponse{
		JSONRPCMessage: taskwire.JSONRPCMessage{JSONRPC: "2.0", ID: id},
		Result:         raw,
	})
}

// sendError writes a terminal error frame correlated to the request id.
func (s *sseWriter) sendError(id taskwire.ID, rpcErr *taskwire.JSONRPCError) error {
	return s.send(&taskwire.JSONRPCResponse{
		JSONRPCMessage: taskwire.JSONRPCMessage{JSONRPC: "2.0", ID: id},
		Error:          rpcErr,
	})
}
