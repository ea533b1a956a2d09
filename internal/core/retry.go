package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vovakirdan/duochat-server/internal/store"
)

// RetryPolicy bounds retries of store calls made while routing.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// store.ErrNotFound and context errors are never retried.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.Attempts <= 1 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(p.InitialInterval, time.Millisecond)
	b.MaxInterval = max(p.MaxInterval, b.InitialInterval)
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx))
}
