package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"folio/internal/config"
	"folio/internal/logging"
)

const maxResponseBytes = 16 << 20

// Source is the subset of the API the ingestion pipeline consumes.
type Source interface {
	Book(ctx context.Context, bookID uint32) (*BookMetadata, error)
	Chapter(ctx context.Context, bookID, chapterID uint32) (*Chapter, error)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
}

// Client provides access to the chapter API.
type Client struct {
	baseURL        string
	userAgent      string
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	httpClient     *http.Client
	limiter        *RateLimiter
	logger         *slog.Logger
	requests       atomic.Int64
}

var _ Source = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "remote")
		}
	}
}

// WithRateLimiter shares a limiter between clients.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// New creates an API client.
func New(opts Options, extra ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote base url required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	client := &Client{
		baseURL:        baseURL,
		userAgent:      strings.TrimSpace(opts.UserAgent),
		maxRetries:     retries,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        NewRateLimiter(opts.RequestsPerSecond),
		logger:         logging.NewNop(),
	}
	for _, opt := range extra {
		opt(client)
	}
	return client, nil
}

// NewFromConfig builds a client from the [remote] configuration section.
func NewFromConfig(cfg *config.Config, extra ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("remote: config required")
	}
	initial, ceiling := cfg.RemoteBackoff()
	return New(Options{
		BaseURL:           cfg.Remote.BaseURL,
		UserAgent:         cfg.Remote.UserAgent,
		Timeout:           cfg.RemoteTimeout(),
		MaxRetries:        cfg.Remote.MaxRetries,
		InitialBackoff:    initial,
		MaxBackoff:        ceiling,
		RequestsPerSecond: cfg.Remote.RequestsPerSec,
	}, extra...)
}

// Requests returns the number of HTTP requests sent, retries included.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// Book fetches book metadata.
func (c *Client) Book(ctx context.Context, bookID uint32) (*BookMetadata, error) {
	body, err := c.get(ctx, fmt.Sprintf("/books/%d", bookID))
	if err != nil {
		return nil, fmt.Errorf("fetch book %d: %w", bookID, err)
	}
	var meta BookMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode book %d: %w", bookID, err)
	}
	meta.Raw = json.RawMessage(body)
	if meta.ID == 0 {
		meta.ID = bookID
	}
	return &meta, nil
}

// Chapter fetches one chapter of a book by its remote ID.
func (c *Client) Chapter(ctx context.Context, bookID, chapterID uint32) (*Chapter, error) {
	body, err := c.get(ctx, fmt.Sprintf("/books/%d/chapters/%d", bookID, chapterID))
	if err != nil {
		return nil, fmt.Errorf("fetch chapter %d of book %d: %w", chapterID, bookID, err)
	}
	var ch Chapter
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, fmt.Errorf("decode chapter %d of book %d: %w", chapterID, bookID, err)
	}
	if ch.ID == 0 {
		ch.ID = chapterID
	}
	return &ch, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt, c.initialBackoff, c.maxBackoff)
			c.logger.Debug("remote retry scheduled",
				logging.String("path", path),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(lastErr),
			)
			if err := SleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, path)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetriable(err) {
			return nil, err
		}
		lastErr = err
	}
	logging.WarnWithContext(c.logger, "remote retries exhausted", "remote_retries_exhausted",
		logging.String("path", path),
		logging.Int("attempts", c.maxRetries+1),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check remote.base_url reachability or lower remote.requests_per_second"),
		logging.String(logging.FieldImpact, "book fails for this run; bundle keeps its last checkpoint"),
	)
	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.requests.Add(1)
	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response (latency=%v): %w", latency, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if resp.StatusCode == http.StatusTooManyRequests {
			if after := retryAfter(resp.Header.Get("Retry-After")); after > 0 {
				c.limiter.PauseUntil(time.Now().Add(after))
			}
		}
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Method: http.MethodGet, URL: endpoint, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}
