// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-json-experiment/json"
	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/go-taskwire/taskwire"
	"github.com/go-taskwire/taskwire/client"
)

func sendParams(id string) taskwire.TaskSendParams {
	return taskwire.TaskSendParams{
		ID: id,
		Message: taskwire.Message{
			Role:  taskwire.RoleUser,
			Parts: []taskwire.Part{taskwire.NewTextPart("do the thing")},
		},
	}
}

func TestSendTask(t *testing.T) {
	t.Parallel()

	var captured taskwire.JSONRPCRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":{"id":"t-1","status":{"state":"submitted"}}}`)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	task, err := c.SendTask(context.Background(), sendParams("t-1"))
	if err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	want := &taskwire.Task{
		ID:     "t-1",
		Status: taskwire.TaskStatus{State: taskwire.TaskStateSubmitted},
	}
	if diff := gocmp.Diff(want, task); diff != "" {
		t.Errorf("task mismatch (-want +got):\n%s", diff)
	}

	if captured.JSONRPC != "2.0" {
		t.Errorf("request version = %q, want 2.0", captured.JSONRPC)
	}
	if captured.Method != taskwire.MethodTasksSend {
		t.Errorf("request method = %q, want %q", captured.Method, taskwire.MethodTasksSend)
	}
	// Correlation ids are random UUIDs.
	if _, err := uuid.Parse(captured.ID.String()); err != nil {
		t.Errorf("request id %q is not a uuid: %v", captured.ID.String(), err)
	}
}

func TestRequestIDsAreUniquePerCall(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req taskwire.JSONRPCRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		if req.ID.IsZero() {
			t.Error("request id must not be empty")
		}
		if seen[req.ID.String()] {
			t.Errorf("duplicate request id %q", req.ID.String())
		}
		seen[req.ID.String()] = true
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":null}`)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	for range 5 {
		if _, err := c.GetTask(context.Background(), taskwire.TaskQueryParams{ID: "t-1"}); err != nil {
			t.Fatalf("GetTask: %v", err)
		}
	}
}

func TestUnaryDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status   int
		body     string
		wantCode int
		wantNil  bool
	}{
		"remote error verbatim": {
			status:   http.StatusOK,
			body:     `{"jsonrpc":"2.0","id":"1","error":{"code":-32001,"message":"task not found","data":"t-9"}}`,
			wantCode: -32001,
		},
		"missing result and error": {
			status:   http.StatusOK,
			body:     `{"jsonrpc":"2.0","id":"1"}`,
			wantCode: -32603,
		},
		"wrong protocol version": {
			status:   http.StatusOK,
			body:     `{"jsonrpc":"1.0","id":"1","result":{}}`,
			wantCode: -32603,
		},
		"not json": {
			status:   http.StatusOK,
			body:     `<html>hello</html>`,
			wantCode: -32603,
		},
		"null result is no payload": {
			status:  http.StatusOK,
			body:    `{"jsonrpc":"2.0","id":"1","result":null}`,
			wantNil: true,
		},
		"http error with embedded envelope": {
			status:   http.StatusInternalServerError,
			body:     `{"jsonrpc":"2.0","id":"1","error":{"code":-32002,"message":"task cannot be canceled"}}`,
			wantCode: -32002,
		},
		"http error with plain body": {
			status:   http.StatusBadGateway,
			body:     `bad gateway`,
			wantCode: -32603,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c, err := client.New(srv.URL)
			if err != nil {
				t.Fatal(err)
			}

			task, err := c.GetTask(context.Background(), taskwire.TaskQueryParams{ID: "t-1"})
			if tt.wantNil {
				if err != nil {
					t.Fatalf("GetTask: %v", err)
				}
				if task != nil {
					t.Errorf("task = %+v, want nil for null result", task)
				}
				return
			}

			rpcErr, ok := taskwire.AsJSONRPCError(err)
			if !ok {
				t.Fatalf("error %v is not a *JSONRPCError", err)
			}
			if rpcErr.Code != tt.wantCode {
				t.Errorf("error code = %d, want %d", rpcErr.Code, tt.wantCode)
			}
		})
	}
}

func TestRemoteErrorDataPreserved(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","error":{"code":-32002,"message":"task cannot be canceled","data":{"state":"completed"}}}`)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.CancelTask(context.Background(), taskwire.TaskIDParams{ID: "t-1"})
	rpcErr, ok := taskwire.AsJSONRPCError(err)
	if !ok {
		t.Fatalf("error %v is not a *JSONRPCError", err)
	}

	want := &taskwire.JSONRPCError{
		Code:    -32002,
		Message: "task cannot be canceled",
		Data:    map[string]any{"state": "completed"},
	}
	if diff := gocmp.Diff(want, rpcErr); diff != "" {
		t.Errorf("error mismatch (-want +got):\n%s", diff)
	}
}

func TestTransportFailureIsInternalError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Nothing is listening.

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.GetTask(context.Background(), taskwire.TaskQueryParams{ID: "t-1"})
	if !taskwire.IsInternalError(err) {
		t.Fatalf("error = %v, want internal error", err)
	}
}

func TestParamsValidationShortCircuits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.GetTask(context.Background(), taskwire.TaskQueryParams{}); err == nil {
		t.Error("expected validation error for empty task id")
	}
	if _, err := c.SendTask(context.Background(), taskwire.TaskSendParams{ID: "t-1"}); err == nil {
		t.Error("expected validation error for empty message")
	}
	if calls.Load() != 0 {
		t.Errorf("validation failures must not hit the network, got %d calls", calls.Load())
	}
}

func TestPushNotificationRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req taskwire.JSONRPCRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		// Echo the params back as the result.
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":"1","result":%s}`, req.Params)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	config := taskwire.TaskPushNotificationConfig{
		ID: "t-1",
		PushNotificationConfig: taskwire.PushNotificationConfig{
			URL:   "https://callback.example.com/notify",
			Token: "opaque",
		},
	}

	got, err := c.SetPushNotification(context.Background(), config)
	if err != nil {
		t.Fatalf("SetPushNotification: %v", err)
	}
	if diff := gocmp.Diff(&config, got); diff != "" {
		t.Errorf("set mismatch (-want +got):\n%s", diff)
	}
}

func TestSendTaskSubscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"result\":{\"id\":\"t-1\",\"status\":{\"state\":\"working\"}}}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"result\":{\"id\":\"t-1\",\"status\":{\"state\":\"completed\"},\"final\":true}}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	stream, err := c.SendTaskSubscribe(context.Background(), sendParams("t-1"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe: %v", err)
	}
	defer stream.Close()

	var states []taskwire.TaskState
	for ev := range stream.Events() {
		update, ok := ev.(*taskwire.TaskStatusUpdateEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
		states = append(states, update.Status.State)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	want := []taskwire.TaskState{taskwire.TaskStateWorking, taskwire.TaskStateCompleted}
	if diff := gocmp.Diff(want, states); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamOpenFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","error":{"code":-32004,"message":"unsupported operation: streaming"}}`)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Resubscribe(context.Background(), taskwire.TaskIDParams{ID: "t-1"})
	rpcErr, ok := taskwire.AsJSONRPCError(err)
	if !ok {
		t.Fatalf("error %v is not a *JSONRPCError", err)
	}
	if rpcErr.Code != taskwire.ErrorCodeUnsupportedOperation {
		t.Errorf("error code = %d, want %d", rpcErr.Code, taskwire.ErrorCodeUnsupportedOperation)
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	if _, err := client.New("not-a-url"); err == nil {
		t.Error("expected error for relative base url")
	}
}
