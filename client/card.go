// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"

	"github.com/go-taskwire/taskwire"
)

// AgentCard returns the remote agent's capability descriptor. The card is
// fetched at most once per client lifetime; every later call returns the
// cached value without a network round trip.
func (c *Client) AgentCard(ctx context.Context) (*taskwire.AgentCard, error) {
	c.cardMu.RLock()
	card := c.card
	c.cardMu.RUnlock()
	if card != nil {
		return card, nil
	}

	card, err := c.fetchAgentCard(ctx)
	if err != nil {
		return nil, err
	}

	// Two concurrent first fetches may both land here. The card is
	// immutable once fetched, so last write wins without corruption.
	c.cardMu.Lock()
	c.card = card
	c.cardMu.Unlock()

	return card, nil
}

// Supports reports whether the remote agent advertises the named capability,
// fetching the agent card first if needed. It returns false, never an error,
// when the card cannot be retrieved.
func (c *Client) Supports(ctx context.Context, capability string) bool {
	card, err := c.AgentCard(ctx)
	if err != nil {
		c.opts.logger().WarnContext(ctx, "agent card unavailable, assuming capability unsupported",
			slog.String("capability", capability), slog.Any("error", err))
		return false
	}
	return card.Supports(capability)
}

func (c *Client) fetchAgentCard(ctx context.Context) (*taskwire.AgentCard, error) {
	cardURL := c.baseURL.JoinPath(taskwire.AgentCardPath).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("build agent card request: %v", err))
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.invoke(ctx, req)
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("fetch agent card: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("read agent card: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, taskwire.NewInternalError(fmt.Sprintf("fetch agent card: http %d: %s", resp.StatusCode, truncate(body, maxErrorBodyLen)))
	}

	var card taskwire.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, taskwire.NewInternalError(fmt.Sprintf("decode agent card: %v", err))
	}
	return &card, nil
}
