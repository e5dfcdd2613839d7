// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options represents the configuration options for the taskwire client.
type Options struct {
	// HTTPClient is the HTTP client to use for requests.
	// If nil, http.DefaultClient will be used.
	HTTPClient *http.Client

	// Headers are additional HTTP headers to include in every request.
	Headers http.Header

	// Timeout is the default timeout for unary requests.
	// If zero, no timeout is set. Streaming requests are never subject to
	// this timeout; their lifetime is bounded by the caller's context.
	Timeout time.Duration

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Logger receives structured diagnostics such as skipped stream frames.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// TracerProvider supplies the tracer for per-call spans.
	// If nil, a no-op tracer is used.
	TracerProvider trace.TracerProvider

	// Interceptors wrap the underlying HTTP round trip, outermost first.
	Interceptors []Interceptor
}

// DefaultOptions returns the default client options.
func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Second,
	}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) tracer() trace.Tracer {
	tp := o.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return tp.Tracer("github.com/go-taskwire/taskwire/client")
}

// Option is a function that configures a Client.
type Option func(*Options)

// WithHTTPClient sets the HTTP client to use for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithTimeout sets the default timeout for unary requests.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithHeaders sets additional HTTP headers to include in requests.
func WithHeaders(headers http.Header) Option {
	return func(o *Options) {
		o.Headers = headers
	}
}

// WithBearerToken sets the Authorization header with a bearer token.
func WithBearerToken(token string) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = make(http.Header)
		}
		o.Headers.Set("Authorization", "Bearer "+token)
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		o.UserAgent = ua
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTracerProvider sets the tracer provider for per-call spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// WithInterceptors appends HTTP interceptors, applied outermost first.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(o *Options) {
		o.Interceptors = append(o.Interceptors, interceptors...)
	}
}
