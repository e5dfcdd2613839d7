// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the taskwire protocol server: JSON-RPC dispatch
// over HTTP, SSE fan-out of task updates, task persistence, and push
// notifications.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/go-taskwire/taskwire"
)

// Config holds configuration for the taskwire server.
type Config struct {
	// AgentCard describes this agent. Its Capabilities map is overwritten
	// from the Enable flags below.
	AgentCard *taskwire.AgentCard

	// TaskManager is the task management implementation.
	TaskManager TaskManager

	// Addr is the listen address for Start. Defaults to ":8080".
	Addr string

	// EnableStreaming enables tasks/sendSubscribe and tasks/resubscribe.
	EnableStreaming bool

	// EnablePushNotifications enables tasks/pushNotification endpoints.
	EnablePushNotifications bool

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server implements the taskwire protocol server.
type Server struct {
	taskManager TaskManager
	mux         *http.ServeMux
	agentCard   *taskwire.AgentCard
	logger      *slog.Logger
	httpServer  *http.Server
}

// New creates a new server instance with the provided configuration.
func New(cfg Config) (*Server, error) {
	if cfg.AgentCard == nil {
		return nil, errors.New("agent card is required")
	}
	if cfg.TaskManager == nil {
		return nil, errors.New("task manager is required")
	}

	cfg.AgentCard.Capabilities = map[string]bool{
		taskwire.CapabilityStreaming:         cfg.EnableStreaming,
		taskwire.CapabilityPushNotifications: cfg.EnablePushNotifications,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		taskManager: cfg.TaskManager,
		mux:         http.NewServeMux(),
		agentCard:   cfg.AgentCard,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.registerHandlers()
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins serving and blocks until the listener fails or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	s.logger.InfoContext(ctx, "server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests up
// to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET "+taskwire.AgentCardPath, s.handleAgentCard)
	s.mux.HandleFunc("POST "+taskwire.DefaultRPCPath, s.handleRPC)
}

// handleAgentCard serves the agent card.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, s.agentCard); err != nil {
		s.logger.ErrorContext(r.Context(), "encode agent card", slog.Any("error", err))
	}
}
