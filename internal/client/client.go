// Package client implements the SnapshotClient contract against the upstream
// aggregator HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

const (
	sourcePath = "/s"
	batchPath  = "/s/entire"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 4 << 20
)

// Client talks to the aggregator's single-source and batch endpoints.
//
// Per-attempt deadlines and retries belong to the caller; the embedded HTTP
// client timeout is only a hard upper bound against leaked connections.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option mutates client configuration.
type Option func(*Client)

// WithToken sets the bearer token attached to forced "latest" requests.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger injects a structured logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("new snapshot client: empty base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("new snapshot client: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// FetchSource retrieves the snapshot for one source.
func (c *Client) FetchSource(ctx context.Context, id newsfeed.SourceID, latest bool) (newsfeed.SourceSnapshot, error) {
	query := url.Values{}
	query.Set("id", string(id))
	if latest {
		query.Set("latest", "")
	}
	endpoint := c.baseURL + sourcePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return newsfeed.SourceSnapshot{}, fmt.Errorf("fetch source %s: %w", id, err)
	}
	if latest && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var snap newsfeed.SourceSnapshot
	if err := c.do(req, string(id), &snap); err != nil {
		return newsfeed.SourceSnapshot{}, fmt.Errorf("fetch source %s: %w", id, err)
	}

	return snap, nil
}

// FetchBatch retrieves snapshots for ids in one round-trip. The response may
// cover a subset of the requested ids.
func (c *Client) FetchBatch(ctx context.Context, ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
	body, err := json.Marshal(struct {
		Sources []newsfeed.SourceID `json:"sources"`
	}{Sources: ids})
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var snaps []newsfeed.SourceSnapshot
	if err := c.do(req, "entire", &snaps); err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	return snaps, nil
}

// do executes one request and decodes its JSON body into out.
//
// Transport failures, timeouts, and 5xx responses wrap ErrTransientNetwork
// so the caller's retry policy can distinguish them from permanent failures.
func (c *Client) do(req *http.Request, scope string, out any) error {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", newsfeed.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("aggregator request",
		"scope", scope,
		"request_id", requestID,
		"status", resp.StatusCode,
		"elapsed", time.Since(started),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", newsfeed.ErrTransientNetwork, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", newsfeed.ErrTransientNetwork, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
