package service

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/pkg/apperror"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

// retryTransient runs op until it succeeds, fails terminally or the policy
// is exhausted. onRetry is called with the 1-based attempt that failed.
// The returned error is always an *apperror.AppError.
func retryTransient(ctx context.Context, p RetryPolicy, op func() error, onRetry func(attempt int, err error)) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !apperror.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		return err
	}, p.backOff(ctx))
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	// context cancellation surfaces bare from backoff
	return apperror.InternalError(err)
}
