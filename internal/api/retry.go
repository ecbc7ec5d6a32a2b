package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 64 << 10

// RetryConfig bounds retries: up to MaxRetries further attempts, waiting
// InitialBackoff, doubled each time, never more than MaxBackoff.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is three retries from 500ms up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// allows reports whether another attempt is permitted after attempt failed.
// Transport errors are always retryable; statuses only when 429 or 5xx.
func (r *RetryConfig) allows(attempt int, transportErr error, status int) bool {
	if r == nil || attempt >= r.MaxRetries {
		return false
	}
	return transportErr != nil || status == http.StatusTooManyRequests || status >= 500
}

// delay is the exponential backoff for attempt, stretched to the server's
// Retry-After but never past MaxBackoff.
func (r *RetryConfig) delay(attempt int, retryAfter time.Duration) time.Duration {
	if r == nil {
		return 0
	}
	d := r.InitialBackoff << attempt
	if d <= 0 || d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return min(max(d, retryAfter), r.MaxBackoff)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// requestFunc creates and executes an HTTP request. It is called once per attempt.
type requestFunc func(ctx context.Context) (*http.Response, error)

// responseHandler decodes a successful response.
type responseHandler[T any] func(resp *http.Response) (T, error)

// doWithRetry runs reqFn until it succeeds, fails permanently or the retry
// budget is spent. Network errors and retryable statuses back off
// exponentially; a server-provided Retry-After is honored when it is longer,
// capped at the configured maximum.
func doWithRetry[T any](ctx context.Context, c *client, reqFn requestFunc, handleFn responseHandler[T]) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context error: %w", err)
		}

		resp, err := reqFn(ctx)
		if err != nil {
			if !c.retry.allows(attempt, err, 0) {
				return zero, fmt.Errorf("sending request: %w", err)
			}
			delay := c.retry.delay(attempt, 0)
			c.logger.Debug("retrying request", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return handleFn(resp)
		}

		apiErr := readAPIError(resp)
		if !c.retry.allows(attempt, nil, resp.StatusCode) {
			return zero, apiErr
		}
		delay := c.retry.delay(attempt, apiErr.RetryAfter)
		c.logger.Debug("retrying request",
			zap.Int("attempt", attempt+1),
			zap.Int("status", apiErr.StatusCode),
			zap.Duration("delay", delay))
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// readAPIError drains and closes a failed response.
func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error body: %v", err),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return newAPIError(resp.StatusCode, resp.Header, body)
}
