package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryTransient_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int
	err := retryTransient(context.Background(), fastRetryPolicy(), func() error {
		calls++
		if calls < 3 {
			return apperror.ErrConcurrentModification(nil)
		}
		return nil
	}, func(attempt int, _ error) { retried = append(retried, attempt) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryTransient_StopsOnTerminalError(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), fastRetryPolicy(), func() error {
		calls++
		return apperror.ErrInsufficientBalance()
	}, nil)

	assertAppError(t, err, apperror.CodeInsufficientBalance)
	assert.Equal(t, 1, calls)
}

func TestRetryTransient_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), fastRetryPolicy(), func() error {
		calls++
		return apperror.ErrPersistenceFailure(errors.New("db gone"))
	}, nil)

	assertAppError(t, err, apperror.CodePersistenceFailure)
	assert.Equal(t, 4, calls, "one attempt plus MaxRetries retries")
}

func TestRetryTransient_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryTransient(ctx, fastRetryPolicy(), func() error {
		return apperror.ErrConcurrentModification(nil)
	}, nil)

	require.Error(t, err)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
