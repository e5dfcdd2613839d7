// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the taskwire protocol client: JSON-RPC calls
// over HTTP for task delegation, SSE streams for incremental task updates,
// and agent-card capability discovery.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-taskwire/taskwire"
)

const defaultUserAgent = "taskwire-client/" + taskwire.Version

// Client is a taskwire protocol client bound to a single remote agent.
// It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	opts       Options
	httpClient *http.Client
	invoke     Invoker
	tracer     trace.Tracer

	cardMu sync.RWMutex
	card   *taskwire.AgentCard
}

// New creates a Client for the agent at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:    u,
		opts:       options,
		httpClient: httpClient,
		tracer:     options.tracer(),
	}
	c.invoke = chainInterceptors(options.Interceptors, func(_ context.Context, req *http.Request) (*http.Response, error) {
		return c.httpClient.Do(req)
	})

	return c, nil
}

// SendTask delegates a new message to the agent and returns the resulting
// task snapshot, or nil when the peer returns no payload.
func (c *Client) SendTask(ctx context.Context, params taskwire.TaskSendParams) (*taskwire.Task, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("send task: %w", err)
	}
	return c.callTask(ctx, taskwire.MethodTasksSend, params, params.ID)
}

// GetTask retrieves the current state of a task, or nil when the peer
// returns no payload.
func (c *Client) GetTask(ctx context.Context, params taskwire.TaskQueryParams) (*taskwire.Task, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return c.callTask(ctx, taskwire.MethodTasksGet, params, params.ID)
}

// CancelTask requests cancellation of a task and returns its resulting
// snapshot, or nil when the peer returns no payload.
func (c *Client) CancelTask(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.Task, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("cancel task: %w", err)
	}
	return c.callTask(ctx, taskwire.MethodTasksCancel, params, params.ID)
}

// SetPushNotification configures out-of-band update delivery for a task.
func (c *Client) SetPushNotification(ctx context.Context, config taskwire.TaskPushNotificationConfig) (*taskwire.TaskPushNotificationConfig, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("set push notification: %w", err)
	}

	raw, err := c.call(ctx, taskwire.MethodTasksPushNotificationSet, config, config.ID)
	if err != nil {
		return nil, err
	}

	var out taskwire.TaskPushNotificationConfig
	ok, err := decodeResult(raw, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// GetPushNotification retrieves the push notification configuration for a
// task.
func (c *Client) GetPushNotification(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.TaskPushNotificationConfig, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("get push notification: %w", err)
	}

	raw, err := c.call(ctx, taskwire.MethodTasksPushNotificationGet, params, params.ID)
	if err != nil {
		return nil, err
	}

	var out taskwire.TaskPushNotificationConfig
	ok, err := decodeResult(raw, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// SendTaskSubscribe delegates a new message and subscribes to the task's
// update stream. The caller must drain or Close the returned stream.
func (c *Client) SendTaskSubscribe(ctx context.Context, params taskwire.TaskSendParams) (*EventStream, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("send task subscribe: %w", err)
	}
	return c.stream(ctx, taskwire.MethodTasksSendSubscribe, params, params.ID)
}

// Resubscribe reattaches to the update stream of an existing task. The
// caller must drain or Close the returned stream.
func (c *Client) Resubscribe(ctx context.Context, params taskwire.TaskIDParams) (*EventStream, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("resubscribe: %w", err)
	}
	return c.stream(ctx, taskwire.MethodTasksResubscribe, params, params.ID)
}

// callTask performs a unary call whose result is a task snapshot.
func (c *Client) callTask(ctx context.Context, method string, params any, taskID string) (*taskwire.Task, error) {
	raw, err := c.call(ctx, method, params, taskID)
	if err != nil {
		return nil, err
	}

	var task taskwire.Task
	ok, err := decodeResult(raw, &task)
	if err != nil || !ok {
		return nil, err
	}
	return &task, nil
}

// call performs one unary JSON-RPC exchange and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params any, taskID string) (raw jsontext.Value, err error) {
	ctx, span := c.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("taskwire.task_id", taskID),
		),
	)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := c.post(ctx, method, params, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// stream performs one streaming JSON-RPC exchange and hands the response
// body to an EventStream. The unary timeout deliberately does not apply.
func (c *Client) stream(ctx context.Context, method string, params any, taskID string) (*EventStream, error) {
	ctx, span := c.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("taskwire.task_id", taskID),
		),
	)
	defer span.End()

	resp, err := c.post(ctx, method, params, "text/event-stream")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Reuse the unary path to surface an embedded error or synthesize
		// a transport fault from the status and body.
		_, err := decodeResponse(resp)
		if err == nil {
			err = taskwire.NewInternalError(fmt.Sprintf("unexpected http %d opening stream", resp.StatusCode))
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		err := taskwire.NewInternalError(fmt.Sprintf("unexpected stream content type %q", ct))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return newEventStream(ctx, resp.Body, c.opts.logger()), nil
}

// post sends one JSON-RPC envelope to the base endpoint.
func (c *Client) post(ctx context.Context, method string, params any, accept string) (*http.Response, error) {
	envelope, err := newRequest(method, params)
	if err != nil {
		return nil, taskwire.NewInternalError(err.Error())
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("marshal request envelope: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("build request: %v", err))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.invoke(ctx, req)
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("%s: %v", method, err))
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	for key, values := range c.opts.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	ua := c.opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
}
