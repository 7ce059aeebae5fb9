package supabase

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for idempotent requests. Writes are
// never routed through Retry; the creation saga owns its own failure
// handling and must not repeat inserts.
type RetryConfig struct {
	MaxRetries           int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) retryable(status int) bool {
	for _, code := range c.RetryableStatusCodes {
		if status == code {
			return true
		}
	}
	return false
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// Retry runs fn until it returns a non-retryable result, the attempt budget
// is exhausted, or the context is done. Transport errors are retried;
// responses with non-retryable status codes are returned as-is.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) (*Response, error)) (*Response, error) {
	var resp *Response
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = fn(ctx)
		if err == nil && !cfg.retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= cfg.MaxRetries {
			return resp, err
		}

		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(cfg.backoff(attempt)):
		}
	}
}
