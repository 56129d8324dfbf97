package llm

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxAttempts      int
	Backoff          time.Duration
	MaxResponseBytes int64
}

// RetryResult represents the outcome of a retried request.
type RetryResult struct {
	StatusCode int
	Body       []byte
	Attempts   int
	LastError  error
}

// ShouldRetry determines if a response/error warrants a retry.
func ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// doWithRetry POSTs body to the completions endpoint, retrying transport
// errors, 429 and 5xx up to MaxAttempts. Context cancellation stops at once.
func (c *Client) doWithRetry(ctx context.Context, body []byte, headers http.Header) RetryResult {
	result := RetryResult{}

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result.Attempts = attempt
		if attempt > 1 {
			c.metrics.RecordLLMRetry()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			result.LastError = err
			return result
		}
		for k, v := range headers {
			req.Header[k] = v
		}
		req.ContentLength = int64(len(body))

		resp, err := c.http.Do(req)
		if err != nil {
			result.LastError = err
			if ctx.Err() != nil {
				return result
			}
			if attempt < c.retry.MaxAttempts && !c.wait(ctx) {
				return result
			}
			continue
		}

		if ShouldRetry(resp, nil) && attempt < c.retry.MaxAttempts {
			_ = resp.Body.Close()
			result.LastError = nil
			c.logger.Debug("llm retrying", "attempt", attempt, "status", resp.StatusCode)
			if !c.wait(ctx) {
				result.LastError = ctx.Err()
				return result
			}
			continue
		}

		result.StatusCode = resp.StatusCode
		result.LastError = nil
		b, err := readBodyLimit(resp.Body, c.retry.MaxResponseBytes)
		_ = resp.Body.Close()
		if err != nil {
			result.LastError = err
			return result
		}
		result.Body = b
		return result
	}

	return result
}

// wait sleeps for the backoff; false means the context ended first.
func (c *Client) wait(ctx context.Context) bool {
	if c.retry.Backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.retry.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
