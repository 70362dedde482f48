// Package integration is a client of the scimm-srv HTTP API.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-scimm/scimm/internal/httputil"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type prefixRoundTripper struct {
	addr string
	rt   http.RoundTripper
}

func (p *prefixRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	u := r.URL
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Host == "" {
		u.Host = p.addr
	}

	return p.rt.RoundTrip(r)
}

// NewClient returns a client of the service at addr, authenticated as cfg
// says.
func NewClient(addr string, cfg httputil.HTTPClientConfig, timeout time.Duration) (*Client, error) {
	c, err := httputil.NewClientFromConfig(cfg, timeout)
	if err != nil {
		return nil, err
	}
	c.Transport = &prefixRoundTripper{addr: addr, rt: c.Transport}
	return &Client{client: c}, nil
}

type Client struct {
	client *http.Client
}

func (c *Client) Collect(ctx context.Context, r CollectRequest) (*CollectResponse, error) {
	var resp CollectResponse
	if err := c.post(ctx, "/collect", r, &resp); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	return &resp, nil
}

func (c *Client) Train(ctx context.Context, r TrainRequest) (*TrainResponse, error) {
	var resp TrainResponse
	if err := c.post(ctx, "/train", r, &resp); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return &resp, nil
}

func (c *Client) Score(ctx context.Context, r ScoreRequest) (*ScoreResponse, error) {
	var resp ScoreResponse
	if err := c.post(ctx, "/score", r, &resp); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	return &resp, nil
}

func (c *Client) Classify(ctx context.Context, r ClassifyRequest) (*ClassifyResponse, error) {
	var resp ClassifyResponse
	if err := c.post(ctx, "/classify", r, &resp); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return &resp, nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("create new request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("unable marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error with sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
