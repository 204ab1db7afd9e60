// Package mock provides a canned llm.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/reviewgate/reviewgate/internal/llm"
)

// Client replays configured responses and records requests.
type Client struct {
	mu       sync.Mutex
	Response *llm.Response
	Err      error
	Requests []llm.Request
}

// Review records the request and returns the configured result.
func (c *Client) Review(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Response != nil {
		return c.Response, nil
	}
	return &llm.Response{Summary: "looks fine"}, nil
}

// CallCount returns how many reviews were requested.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
