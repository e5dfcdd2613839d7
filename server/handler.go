// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"

	"github.com/go-taskwire/taskwire"
)

// handleRPC decodes one JSON-RPC envelope and routes it by method. Streaming
// methods take over the connection for SSE; everything else answers with a
// single envelope.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req taskwire.JSONRPCRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		s.writeError(w, taskwire.ID{}, taskwire.NewParseError(err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, taskwire.NewInvalidRequestError("unexpected protocol version"))
		return
	}

	ctx := r.Context()

	switch req.Method {
	case taskwire.MethodTasksSend:
		unary(ctx, s, w, req, func(ctx context.Context, params taskwire.TaskSendParams) (any, error) {
			return s.taskManager.OnSendTask(ctx, params)
		})
	case taskwire.MethodTasksGet:
		unary(ctx, s, w, req, func(ctx context.Context, params taskwire.TaskQueryParams) (any, error) {
			return s.taskManager.OnGetTask(ctx, params)
		})
	case taskwire.MethodTasksCancel:
		unary(ctx, s, w, req, func(ctx context.Context, params taskwire.TaskIDParams) (any, error) {
			return s.taskManager.OnCancelTask(ctx, params)
		})
	case taskwire.MethodTasksPushNotificationSet:
		if !s.agentCard.Supports(taskwire.CapabilityPushNotifications) {
			s.writeError(w, req.ID, taskwire.NewPushNotificationNotSupportedError())
			return
		}
		unary(ctx, s, w, req, func(ctx context.Context, config taskwire.TaskPushNotificationConfig) (any, error) {
			return s.taskManager.OnSetPushNotification(ctx, config)
		})
	case taskwire.MethodTasksPushNotificationGet:
		if !s.agentCard.Supports(taskwire.CapabilityPushNotifications) {
			s.writeError(w, req.ID, taskwire.NewPushNotificationNotSupportedError())
			return
		}
		unary(ctx, s, w, req, func(ctx context.Context, params taskwire.TaskIDParams) (any, error) {
			return s.taskManager.OnGetPushNotification(ctx, params)
		})
	case taskwire.MethodTasksSendSubscribe:
		if !s.agentCard.Supports(taskwire.CapabilityStreaming) {
			s.writeError(w, req.ID, taskwire.NewUnsupportedOperationError(req.Method))
			return
		}
		streaming(ctx, s, w, req, func(ctx context.Context, params taskwire.TaskSendParams) (<-chan taskwire.Event, error) {
			return s.taskManager.OnSendTaskSubscribe(ctx, params)
		})
	case taskwire.MethodTasksResubscribe:
		if !s.agentCard.Supports(taskwire.CapabilityStreaming) {
			s.writeError(w, req.ID, taskwire.NewUnsupportedOperationError(req.Method))
			return
		}
		streaming(ctx, s, w, req, func(ctx context.Context, params taskwire.TaskIDParams) (<-chan taskwire.Event, error) {
			return s.taskManager.OnResubscribe(ctx, params)
		})
	default:
		s.writeError(w, req.ID, taskwire.NewMethodNotFoundError(req.Method))
	}
}

// unary decodes the request params, invokes fn, and writes the response
// envelope.
func unary[P any](ctx context.Context, s *Server, w http.ResponseWriter, req taskwire.JSONRPCRequest, fn func(context.Context, P) (any, error)) {
	var params P
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, taskwire.NewInvalidParamsError(err.Error()))
		return
	}

	result, err := fn(ctx, params)
	if err != nil {
		s.writeError(w, req.ID, toRPCError(err))
		return
	}
	s.writeResult(w, req.ID, result)
}

// streaming decodes the request params, opens the event channel, and writes
// each event as an SSE frame until the final event or client disconnect. A
// manager error before any frame is sent degrades to a unary error response;
// a handler failure mid-stream becomes a terminal error frame.
func streaming[P any](ctx context.Context, s *Server, w http.ResponseWriter, req taskwire.JSONRPCRequest, fn func(context.Context, P) (<-chan taskwire.Event, error)) {
	var params P
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, taskwire.NewInvalidParamsError(err.Error()))
		return
	}

	events, err := fn(ctx, params)
	if err != nil {
		s.writeError(w, req.ID, toRPCError(err))
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, req.ID, taskwire.NewInternalError(err.Error()))
		return
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if failure, ok := event.(*taskFailure); ok {
				if err := stream.sendError(req.ID, failure.err); err != nil {
					s.logger.WarnContext(ctx, "stream write failed", slog.Any("error", err))
				}
				return
			}
			if err := stream.sendResult(req.ID, event); err != nil {
				s.logger.WarnContext(ctx, "stream write failed", slog.Any("error", err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// toRPCError maps a task manager failure onto the wire error shape.
func toRPCError(err error) *taskwire.JSONRPCError {
	if rpcErr, ok := taskwire.AsJSONRPCError(err); ok {
		return rpcErr
	}
	return taskwire.NewInternalError(err.Error())
}

func (s *Server) writeResult(w http.ResponseWriter, id taskwire.ID, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, id, taskwire.NewInternalError("marshal result: "+err.Error()))
		return
	}
	s.writeEnvelope(w, &taskwire.JSONRPCResponse{
		JSONRPCMessage: taskwire.JSONRPCMessage{JSONRPC: "2.0", ID: id},
		Result:         raw,
	})
}

func (s *Server) writeError(w http.ResponseWriter, id taskwire.ID, rpcErr *taskwire.JSONRPCError) {
	s.writeEnvelope(w, &taskwire.JSONRPCResponse{
		JSONRPCMessage: taskwire.JSONRPCMessage{JSONRPC: "2.0", ID: id},
		Error:          rpcErr,
	})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, envelope *taskwire.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, envelope); err != nil {
		s.logger.Error("encode response envelope", slog.Any("error", err))
	}
}
