// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"

	"github.com/go-taskwire/taskwire"
)

// EventStream is a lazy, cancellable sequence of task update events decoded
// from an SSE response body. It is not restartable; once the channel closes,
// Err reports how the stream ended.
type EventStream struct {
	events chan taskwire.Event
	body   io.ReadCloser
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// newEventStream starts decoding body and returns the stream. The body is
// owned by the stream and released on Close, terminal error, or EOF.
func newEventStream(ctx context.Context, body io.ReadCloser, logger *slog.Logger) *EventStream {
	s := &EventStream{
		events: make(chan taskwire.Event),
		body:   body,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.readLoop(ctx)
	return s
}

// Events returns the channel of decoded events in arrival order. The channel
// is closed when the peer closes the stream, a fatal error occurs, or the
// stream is abandoned; check Err afterwards.
func (s *EventStream) Events() <-chan taskwire.Event {
	return s.events
}

// Err returns the terminal error, if any, once the event channel has closed.
// A peer-embedded error frame is returned verbatim as *taskwire.JSONRPCError.
// A clean close reports nil.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream and releases the underlying connection promptly.
// Safe to call multiple times and concurrently with event consumption.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.body.Close()
	})
	return nil
}

func (s *EventStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// readLoop reassembles SSE frames across arbitrary chunk boundaries. Frames
// are delimited by a blank line; each frame's payload is the concatenation
// of its "data:" field lines.
func (s *EventStream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.Close()

	var data []string
	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			// Blank line terminates the frame.
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if !s.handleFrame(ctx, payload) {
				return
			}
			continue
		}

		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(value))
		}
		// Other SSE fields (event:, id:, retry:, comments) are ignored.
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-s.done:
			// Reader failure caused by our own Close is not an error.
		default:
			if ctx.Err() != nil {
				s.setErr(ctx.Err())
			} else {
				s.setErr(taskwire.NewInternalError("read event stream: " + err.Error()))
			}
		}
		return
	}

	if len(data) > 0 {
		// Peer closed mid-frame. The stream already delivered every complete
		// frame, so this is logged and dropped rather than raised.
		s.logger.WarnContext(ctx, "discarding partial frame at stream end", slog.Int("lines", len(data)))
	}
}

// handleFrame decodes one complete frame. It reports false when the stream
// must terminate.
func (s *EventStream) handleFrame(ctx context.Context, payload string) bool {
	var envelope taskwire.JSONRPCResponse
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		s.logger.WarnContext(ctx, "skipping malformed stream frame", slog.Any("error", err))
		return true
	}
	if envelope.JSONRPC != "2.0" {
		s.logger.WarnContext(ctx, "skipping stream frame with unexpected version", slog.String("version", envelope.JSONRPC))
		return true
	}

	// Errors are fatal, never skipped.
	if envelope.Error != nil {
		s.setErr(envelope.Error)
		return false
	}

	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		s.logger.WarnContext(ctx, "skipping stream frame with no result")
		return true
	}

	event, err := decodeEvent(envelope.Result)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping undecodable stream event", slog.Any("error", err))
		return true
	}

	select {
	case s.events <- event:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		s.setErr(ctx.Err())
		return false
	}
}

// decodeEvent discriminates a raw stream result into a status or artifact
// update event.
func decodeEvent(raw []byte) (taskwire.Event, error) {
	var probe struct {
		ID       string               `json:"id"`
		Status   *taskwire.TaskStatus `json:"status,omitzero"`
		Artifact *taskwire.Artifact   `json:"artifact,omitzero"`
		Final    bool                 `json:"final,omitzero"`
		Metadata map[string]any       `json:"metadata,omitzero"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch {
	case probe.Status != nil:
		return &taskwire.TaskStatusUpdateEvent{
			ID:       probe.ID,
			Status:   *probe.Status,
			IsFinal:  probe.Final,
			Metadata: probe.Metadata,
		}, nil
	case probe.Artifact != nil:
		return &taskwire.TaskArtifactUpdateEvent{
			ID:       probe.ID,
			Artifact: *probe.Artifact,
			Metadata: probe.Metadata,
		}, nil
	default:
		return nil, taskwire.NewInternalError("stream event is neither a status nor an artifact update")
	}
}
