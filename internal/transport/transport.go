// Package transport issues HTTP requests to environment backends and
// normalizes network-level failures into a single typed error so callers
// can distinguish retryable transport faults from semantic backend errors.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrTransport is the sentinel all transport-level failures unwrap to.
// Timeouts, connection resets and non-2xx statuses are all transport
// failures; they are the only class of error eligible for retry.
var ErrTransport = errors.New("transport failure")

// Error describes a failed HTTP exchange with a backend.
type Error struct {
	// Op is the logical operation being performed (e.g. "step").
	Op string
	// URL is the full request URL.
	URL string
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	// Timeout marks deadline-exceeded failures.
	Timeout bool
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: request timed out", e.Op, e.URL)
	case e.Status != 0:
		return fmt.Sprintf("%s %s: HTTP %d", e.Op, e.URL, e.Status)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
}

// Unwrap returns the sentinel for errors.Is compatibility.
func (e *Error) Unwrap() error {
	return ErrTransport
}

// IsTransport reports whether err originates at the transport layer.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Config tunes a Client. Zero values fall back to documented defaults.
type Config struct {
	// Timeout is the default per-request deadline. Default 30s.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing requests to one backend.
	// Zero disables throttling.
	RequestsPerSecond float64
	// Burst is the limiter burst size. Default 1 when throttled.
	Burst int
}

// Client wraps an http.Client with timeout classes, JSON handling and
// optional rate limiting for one backend base URL.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: cfg.Timeout,
		limiter: limiter,
	}
}

// BaseURL returns the backend base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CallOption adjusts a single request.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the client default deadline for one call.
// Step and reset calls use longer ceilings than observe calls since
// backend-side computation may be slow.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// GetJSON issues a GET and decodes the response into out.
// A text/plain body is delivered as a JSON string.
func (c *Client) GetJSON(ctx context.Context, op, endpoint string, out any, opts ...CallOption) error {
	return c.do(ctx, op, http.MethodGet, endpoint, nil, out, opts...)
}

// PostJSON issues a POST with a JSON body (nil means empty body) and
// decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, op, endpoint string, body, out any, opts ...CallOption) error {
	return c.do(ctx, op, http.MethodPost, endpoint, body, out, opts...)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any, opts ...CallOption) error {
	co := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&co)
	}

	url := c.baseURL + endpoint

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Op: op, URL: url, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, co.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{
			Op:      op,
			URL:     url,
			Timeout: errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, URL: url, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	}

	// Plain-text backends (connectivity probes, bare observations)
	// deliver the body as a JSON string.
	text := string(data)
	quoted, _ := json.Marshal(text)
	if err := json.Unmarshal(quoted, out); err != nil {
		return fmt.Errorf("%s: decode text response: %w", op, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
