// Package upstream is the HTTP plumbing shared by the BN site and osu! API
// sources: bounded retries on transport errors, status checks and JSON
// decoding.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"
)

// Default client configuration constants.
const (
	defaultAttempts = 5
	defaultTimeout  = 60 * time.Second
	maxBodyBytes    = 32 << 20
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithAttempts sets how many times a request is tried on transport errors.
func WithAttempts(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.attempts = n
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		if key != "" && value != "" {
			cl.headers.Set(key, value)
		}
	}
}

// WithCookie adds a cookie sent on every request.
func WithCookie(name, value string) Option {
	return func(cl *Client) {
		if name != "" && value != "" {
			cl.cookies = append(cl.cookies, &http.Cookie{Name: name, Value: value})
		}
	}
}

// WithName labels failures in logs and metrics.
func WithName(name string) Option {
	return func(cl *Client) {
		if name != "" {
			cl.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// Client performs GET requests against an upstream source.
type Client struct {
	http     *http.Client
	attempts int
	headers  http.Header
	cookies  []*http.Cookie
	name     string
	logger   logger.Logger
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		headers:  http.Header{},
		name:     "upstream",
		logger:   logger.Get().Named("upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches url and decodes the body into out. Transport errors are
// retried; HTTP errors are not. A body that is not valid JSON yields
// ErrSourceUnavailable.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		metrics.RecordSourceFailure(c.name)
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || !json.Valid(body) {
			metrics.RecordSourceFailure(c.name)
			return fmt.Errorf("%s: %w: %v", c.name, ErrSourceUnavailable, err)
		}
		return fmt.Errorf("%s: decode: %w", c.name, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", c.name, err)
		}
		for k, vs := range c.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for _, ck := range c.cookies {
			req.AddCookie(ck)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", c.name, ctx.Err())
			}
			lastErr = err
			c.logger.Warn(ctx, "request failed, retrying",
				logger.String("source", c.name),
				logger.Int("attempt", attempt),
				logger.Error(err))
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%s: %w: %d", c.name, ErrStatus, resp.StatusCode)
		}
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", c.name, c.attempts, lastErr)
}
