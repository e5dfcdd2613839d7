// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"

	"github.com/go-taskwire/taskwire"
	"github.com/go-taskwire/taskwire/client"
)

const cardJSON = `{
	"name": "echo-agent",
	"url": "https://agent.example.com",
	"version": "1.2.0",
	"capabilities": {"streaming": true}
}`

func TestAgentCardFetchedOnce(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != taskwire.AgentCardPath {
			t.Errorf("path = %q, want %q", r.URL.Path, taskwire.AgentCardPath)
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		fetches.Add(1)
		fmt.Fprint(w, cardJSON)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	want := &taskwire.AgentCard{
		Name:         "echo-agent",
		URL:          "https://agent.example.com",
		Version:      "1.2.0",
		Capabilities: map[string]bool{"streaming": true},
	}

	for range 3 {
		card, err := c.AgentCard(context.Background())
		if err != nil {
			t.Fatalf("AgentCard: %v", err)
		}
		if diff := gocmp.Diff(want, card); diff != "" {
			t.Fatalf("card mismatch (-want +got):\n%s", diff)
		}
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("card fetched %d times, want 1", got)
	}
}

func TestSupports(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cardJSON)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if !c.Supports(context.Background(), taskwire.CapabilityStreaming) {
		t.Error("expected streaming capability")
	}
	if c.Supports(context.Background(), taskwire.CapabilityPushNotifications) {
		t.Error("unexpected push notification capability")
	}
}

func TestSupportsFalseWhenCardUnavailable(t *testing.T) {
	t.Parallel()

	tests := map[string]http.HandlerFunc{
		"http error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"malformed card": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(handler)
			defer srv.Close()

			c, err := client.New(srv.URL)
			if err != nil {
				t.Fatal(err)
			}

			// Supports never raises; failure means false.
			if c.Supports(context.Background(), taskwire.CapabilityStreaming) {
				t.Error("Supports should report false when the card cannot be fetched")
			}
		})
	}
}

func TestAgentCardFailureIsNotCached(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, cardJSON)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.AgentCard(context.Background()); err == nil {
		t.Fatal("expected first fetch to fail")
	}

	card, err := c.AgentCard(context.Background())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if card.Name != "echo-agent" {
		t.Errorf("card name = %q, want echo-agent", card.Name)
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}
