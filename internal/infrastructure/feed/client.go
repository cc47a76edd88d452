package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pricelens/backend/internal/domain"
)

const (
	maxAttempts     = 3
	baseBackoff     = 500 * time.Millisecond
	errorBodyLimit  = 512
	defaultTimeout  = 5 * time.Minute
	userAgentHeader = "PriceLens-Updater/1.0"
)

// Client downloads the external price feed over HTTP
type Client struct {
	httpClient  *http.Client
	feedURL     string
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	wait        func(ctx context.Context, d time.Duration) error
}

// ClientConfig holds configuration for the feed client
type ClientConfig struct {
	URL     string
	Timeout time.Duration
	// RequestsPerHour caps downloads across retries and scheduled runs
	RequestsPerHour int
}

// NewClient creates a new feed client
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if config.RequestsPerHour > 0 {
		limit = rate.Limit(float64(config.RequestsPerHour) / 3600)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		feedURL:     config.URL,
		rateLimiter: rate.NewLimiter(limit, maxAttempts),
		logger:      logger,
		wait:        sleepContext,
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exponentialBackoff returns the wait before retrying after the given attempt
func exponentialBackoff(attempt int) time.Duration {
	return baseBackoff * time.Duration(1<<(attempt-1))
}

// Fetch downloads the feed and returns its body, which the caller must
// close. Transport errors and 5xx responses are retried with exponential
// backoff; other non-200 responses fail immediately.
func (c *Client) Fetch(ctx context.Context) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
		}
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, ctxErr)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}

		body, retry, err := c.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		if attempt == maxAttempts {
			break
		}

		wait := exponentialBackoff(attempt)
		c.logger.Warn("feed.fetch_retry",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := c.wait(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, ctxErr)
	}
	c.logger.Error("feed.fetch_failed", zap.String("url", c.feedURL), zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) (io.ReadCloser, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgentHeader)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		err := fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet))
		return nil, resp.StatusCode >= 500, err
	}

	c.logger.Info("feed.fetched", zap.String("url", c.feedURL), zap.Int64("content_length", resp.ContentLength))
	return resp.Body, false, nil
}
