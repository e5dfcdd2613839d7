// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"

	"github.com/go-taskwire/taskwire"
	"github.com/go-taskwire/taskwire/client"
	"github.com/go-taskwire/taskwire/server"
)

func newTestServer(t *testing.T, cfg server.Config) *httptest.Server {
	t.Helper()

	if cfg.AgentCard == nil {
		cfg.AgentCard = &taskwire.AgentCard{Name: "echo-agent", URL: "http://test", Version: "0.1.0"}
	}
	if cfg.TaskManager == nil {
		cfg.TaskManager = server.NewInMemoryTaskManager(nil, echoHandler)
	}

	s, err := server.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func TestServerClientRoundTrip(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{EnableStreaming: true, EnablePushNotifications: true})

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	task, err := c.SendTask(ctx, newSendParams("t-1", "ping"))
	if err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	if task.Status.State != taskwire.TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}

	got, err := c.GetTask(ctx, taskwire.TaskQueryParams{ID: "t-1", HistoryLength: 1})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(got.History) != 1 {
		t.Errorf("history length = %d, want 1", len(got.History))
	}

	if _, err := c.GetTask(ctx, taskwire.TaskQueryParams{ID: "missing"}); !taskwire.IsTaskNotFound(err) {
		t.Errorf("err = %v, want task-not-found", err)
	}

	config := taskwire.TaskPushNotificationConfig{
		ID:                     "t-1",
		PushNotificationConfig: taskwire.PushNotificationConfig{URL: "https://callback.example.com"},
	}
	if _, err := c.SetPushNotification(ctx, config); err != nil {
		t.Fatalf("SetPushNotification: %v", err)
	}
	gotConfig, err := c.GetPushNotification(ctx, taskwire.TaskIDParams{ID: "t-1"})
	if err != nil {
		t.Fatalf("GetPushNotification: %v", err)
	}
	if gotConfig.PushNotificationConfig.URL != config.PushNotificationConfig.URL {
		t.Errorf("url = %q, want %q", gotConfig.PushNotificationConfig.URL, config.PushNotificationConfig.URL)
	}
}

func TestServerStreamingRoundTrip(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{EnableStreaming: true})

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	stream, err := c.SendTaskSubscribe(context.Background(), newSendParams("t-1", "ping"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe: %v", err)
	}
	defer stream.Close()

	var sawArtifact, sawFinal bool
	for event := range stream.Events() {
		switch e := event.(type) {
		case *taskwire.TaskStatusUpdateEvent:
			if e.IsFinal {
				sawFinal = true
				if e.Status.State != taskwire.TaskStateCompleted {
					t.Errorf("final state = %s, want completed", e.Status.State)
				}
			}
		case *taskwire.TaskArtifactUpdateEvent:
			sawArtifact = true
			if got := e.Artifact.Parts[0].Text; got != "ping" {
				t.Errorf("artifact text = %q, want ping", got)
			}
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if !sawArtifact || !sawFinal {
		t.Errorf("sawArtifact = %v, sawFinal = %v, want both", sawArtifact, sawFinal)
	}
}

func TestServerStreamingHandlerFailure(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, *taskwire.Task, taskwire.Message) (*taskwire.Task, error) {
		return nil, errors.New("model unavailable")
	}
	srv := newTestServer(t, server.Config{
		EnableStreaming: true,
		TaskManager:     server.NewInMemoryTaskManager(nil, failing),
	})

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	stream, err := c.SendTaskSubscribe(ctx, newSendParams("t-1", "ping"))
	if err != nil {
		t.Fatalf("SendTaskSubscribe: %v", err)
	}
	defer stream.Close()

	// The stream carries the working update, then terminates with the
	// handler's error rather than a result frame.
	var states []taskwire.TaskState
	for event := range stream.Events() {
		if e, ok := event.(*taskwire.TaskStatusUpdateEvent); ok {
			states = append(states, e.Status.State)
		}
	}
	if len(states) != 1 || states[0] != taskwire.TaskStateWorking {
		t.Errorf("states before failure = %v, want [working]", states)
	}
	if !taskwire.IsInternalError(stream.Err()) {
		t.Fatalf("stream error = %v, want internal error", stream.Err())
	}

	task, err := c.GetTask(ctx, taskwire.TaskQueryParams{ID: "t-1"})
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status.State != taskwire.TaskStateFailed {
		t.Errorf("persisted state = %s, want failed", task.Status.State)
	}
}

func TestServerAgentCard(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{EnableStreaming: true})

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	card, err := c.AgentCard(ctx)
	if err != nil {
		t.Fatalf("AgentCard: %v", err)
	}
	if card.Name != "echo-agent" {
		t.Errorf("name = %q, want echo-agent", card.Name)
	}
	if !c.Supports(ctx, taskwire.CapabilityStreaming) {
		t.Error("expected streaming capability")
	}
	if c.Supports(ctx, taskwire.CapabilityPushNotifications) {
		t.Error("push notifications should be disabled")
	}
}

func TestServerDisabledCapabilities(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_, err = c.SetPushNotification(ctx, taskwire.TaskPushNotificationConfig{
		ID:                     "t-1",
		PushNotificationConfig: taskwire.PushNotificationConfig{URL: "https://x.example.com"},
	})
	if !taskwire.IsPushNotificationNotSupported(err) {
		t.Errorf("err = %v, want push-notification-not-supported", err)
	}

	_, err = c.Resubscribe(ctx, taskwire.TaskIDParams{ID: "t-1"})
	rpcErr, ok := taskwire.AsJSONRPCError(err)
	if !ok || rpcErr.Code != taskwire.ErrorCodeUnsupportedOperation {
		t.Errorf("err = %v, want unsupported-operation", err)
	}
}

func TestServerDispatchErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})

	tests := map[string]struct {
		body     string
		wantCode int
	}{
		"unknown method": {
			body:     `{"jsonrpc":"2.0","id":"1","method":"tasks/unknown","params":{}}`,
			wantCode: taskwire.ErrorCodeMethodNotFound,
		},
		"parse error": {
			body:     `{not json`,
			wantCode: taskwire.ErrorCodeParseError,
		},
		"wrong version": {
			body:     `{"jsonrpc":"1.0","id":"1","method":"tasks/get","params":{"id":"t-1"}}`,
			wantCode: taskwire.ErrorCodeInvalidRequest,
		},
		"invalid params": {
			body:     `{"jsonrpc":"2.0","id":"1","method":"tasks/get","params":{"id":""}}`,
			wantCode: taskwire.ErrorCodeInvalidParams,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			resp, err := http.Post(srv.URL, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()

			var envelope taskwire.JSONRPCResponse
			if err := json.UnmarshalRead(resp.Body, &envelope); err != nil {
				t.Fatalf("decode envelope: %v", err)
			}
			if envelope.Error == nil {
				t.Fatal("expected error envelope")
			}
			if envelope.Error.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", envelope.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestServerRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := server.New(server.Config{TaskManager: server.NewInMemoryTaskManager(nil, nil)}); err == nil {
		t.Error("expected error without agent card")
	}
	if _, err := server.New(server.Config{AgentCard: &taskwire.AgentCard{Name: "x"}}); err == nil {
		t.Error("expected error without task manager")
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	s, err := server.New(server.Config{
		AgentCard:   &taskwire.AgentCard{Name: "echo-agent", URL: "http://test", Version: "0.1.0"},
		TaskManager: server.NewInMemoryTaskManager(nil, nil),
		Addr:        "127.0.0.1:0",
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("start returned: %v", err)
	}
}
