package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	fetchMaxRetries = 3
	fetchBaseDelay  = 500 * time.Millisecond
)

// withRetry reattempts transient provider failures with exponential backoff
// and jitter. A definitive answer (not found, 4xx) is returned immediately.
func withRetry[T any](ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < fetchMaxRetries-1 {
			time.Sleep(backoff(attempt))
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrRecordNotFound) {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Network errors and timeouts from the HTTP client land here.
	return true
}

func backoff(attempt int) time.Duration {
	base := fetchBaseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	return base + jitter
}
