// Package api is the HTTP client for the social feed backend.
//
// Every method takes the bearer token explicitly; an empty token sends no
// Authorization header. Reads are retried with exponential backoff on
// network errors and 5xx responses. Mutations are sent exactly once.
package api

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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for request handling.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetries       = 2
	DefaultRetryInterval = 200 * time.Millisecond

	maxBodyBytes = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each attempt. Zero disables the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets how many times a failed read is repeated.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryInterval = d
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client talks to one backend. It is safe for concurrent use.
type Client struct {
	baseURL       string
	http          *http.Client
	timeout       time.Duration
	retries       int
	retryInterval time.Duration
	logger        *slog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{},
		timeout:       DefaultTimeout,
		retries:       DefaultRetries,
		retryInterval: DefaultRetryInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	token  string
	body   any
	out    any
}

// idempotent reports whether the call may be repeated safely.
func (r call) idempotent() bool {
	return r.method == http.MethodGet
}

func (c *Client) do(ctx context.Context, r call) error {
	attempt := func() error {
		err := c.once(ctx, r)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	if !r.idempotent() || c.retries == 0 {
		return c.once(ctx, r)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx)

	return backoff.RetryNotify(attempt, b, func(err error, wait time.Duration) {
		c.logger.Debug("retrying request", "op", r.op, "wait", wait, "error", err)
	})
}

func (c *Client) once(ctx context.Context, r call) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", r.op, err)
	}

	c.logger.Debug("backend response", "op", r.op, "method", r.method, "path", r.path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: r.op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if r.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, r.out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
