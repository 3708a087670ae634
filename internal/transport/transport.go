// Package transport executes HTTP requests against the coach backend with
// uniform retry, backoff, and error normalization. Every network call in the
// widget goes through here; no other package touches net/http directly.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultTimeout        = 30 * time.Second
)

// Client is a retry-capable request executor.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	sleep          func(context.Context, time.Duration) error
	logger         *zap.Logger
}

// Config holds transport tuning knobs.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
	}
}

// New creates a client with default config.
func New(logger *zap.Logger) *Client {
	return NewWithConfig(DefaultConfig(), logger)
}

// NewWithConfig creates a client with custom config.
func NewWithConfig(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		sleep:          sleepCtx,
		logger:         logger,
	}
}

// Options configures a single request.
type Options struct {
	// Body is JSON-encoded as the request body when non-nil.
	Body any
	// BearerToken sets the Authorization header when non-empty.
	BearerToken string
}

// Do executes the request, retrying 429/5xx/network failures with exponential
// backoff, and returns the response body. A 429 carrying a Retry-After header
// waits at least that long before the next attempt. Non-retryable statuses
// and exhausted retries return a *Error.
func (c *Client) Do(ctx context.Context, method, url string, opts Options) ([]byte, error) {
	var payload []byte
	if opts.Body != nil {
		var err error
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr *Error
	wait := c.initialBackoff

	// Bounded loop, never recursion: initial attempt plus maxRetries retries.
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, networkError(err)
			}
			wait *= 2
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if opts.BearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+opts.BearerToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, networkError(ctx.Err())
			}
			lastErr = networkError(err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = networkError(err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		httpErr := errorFromResponse(resp.StatusCode, body)
		switch httpErr.Kind {
		case KindRateLimited:
			// Retry-After overrides the exponential schedule for the next wait.
			if after := retryAfter(resp); after > 0 {
				wait = after
			}
			lastErr = httpErr
		case KindServer:
			lastErr = httpErr
		default:
			// 4xx other than 429 is not worth retrying.
			return nil, httpErr
		}
	}

	c.logger.Debug("Request retries exhausted",
		zap.String("url", url),
		zap.Int("max_retries", c.maxRetries),
		zap.Error(lastErr))
	return nil, lastErr
}

// DoJSON executes the request and unmarshals the response body into out.
func (c *Client) DoJSON(ctx context.Context, method, url string, opts Options, out any) error {
	body, err := c.Do(ctx, method, url, opts)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
