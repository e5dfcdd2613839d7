// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"log/slog"
	"net/http"
)

// Interceptor is a middleware function that can observe and modify the HTTP
// round trip of a client call.
type Interceptor func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error)

// Invoker represents the next handler in the interceptor chain.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// chainInterceptors chains multiple interceptors together, outermost first.
func chainInterceptors(interceptors []Interceptor, invoker Invoker) Invoker {
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor := interceptors[i]
		next := invoker
		invoker = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return interceptor(ctx, req, next)
		}
	}
	return invoker
}

// LoggingInterceptor logs each request and its outcome.
func LoggingInterceptor(logger *slog.Logger) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		logger.InfoContext(ctx, "request", slog.String("method", req.Method), slog.String("url", req.URL.String()))

		resp, err := invoker(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
			return nil, err
		}
		logger.InfoContext(ctx, "response", slog.Int("status", resp.StatusCode))

		return resp, nil
	}
}
