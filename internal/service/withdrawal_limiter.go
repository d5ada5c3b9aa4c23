package service

import (
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/apperror"
)

// WithdrawalLimiter enforces the rolling daily withdrawal allowance.
// The window restarts lazily: only a withdrawal attempt evaluates it.
type WithdrawalLimiter struct {
	window time.Duration
}

// NewWithdrawalLimiter creates a limiter with the given rolling window.
func NewWithdrawalLimiter(window time.Duration) *WithdrawalLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &WithdrawalLimiter{window: window}
}

// Check applies the reset rule to acct and then tests amount against what is
// left of the allowance. reset reports whether acct was modified, which the
// caller must persist even when err is non-nil.
func (l *WithdrawalLimiter) Check(acct *domain.WalletAccount, amount int64, now time.Time) (reset bool, err error) {
	if now.Sub(acct.LastWithdrawalReset) >= l.window {
		acct.DailyWithdrawn = 0
		acct.LastWithdrawalReset = now
		reset = true
	}
	if amount > acct.DailyWithdrawalLimit-acct.DailyWithdrawn {
		return reset, apperror.ErrDailyLimitExceeded()
	}
	return reset, nil
}

// Record books an accepted withdrawal against the allowance.
func (l *WithdrawalLimiter) Record(acct *domain.WalletAccount, amount int64) {
	acct.DailyWithdrawn += amount
}

// Remaining returns the allowance left at now without modifying acct.
func (l *WithdrawalLimiter) Remaining(acct *domain.WalletAccount, now time.Time) int64 {
	if now.Sub(acct.LastWithdrawalReset) >= l.window {
		return acct.DailyWithdrawalLimit
	}
	return acct.DailyWithdrawalLimit - acct.DailyWithdrawn
}
