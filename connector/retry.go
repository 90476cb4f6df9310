package connector

import (
	"context"
	"time"
)

// retryConnect calls connectFn until it succeeds, the context ends, or
// the attempts run out. The delay doubles after each failure.
func retryConnect[T any](ctx context.Context, cfg *RetryConfig, connectFn func(context.Context) (T, error)) (T, error) {
	attempts := 1
	delay := time.Second
	var maxDelay time.Duration
	if cfg != nil {
		attempts += cfg.MaxRetries
		if cfg.BaseDelay > 0 {
			delay = cfg.BaseDelay
		}
		maxDelay = cfg.MaxDelay
	}

	var (
		conn T
		err  error
	)
	for i := 0; i < attempts; i++ {
		conn, err = connectFn(ctx)
		if err == nil {
			return conn, nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return conn, ctx.Err()
		case <-time.After(delay):
			delay *= 2
			if maxDelay > 0 && delay > maxDelay {
				delay = maxDelay
			}
		}
	}
	return conn, err
}
