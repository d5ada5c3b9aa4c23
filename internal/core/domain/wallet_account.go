package domain

import (
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNegativeBalance       = errors.New("balance must not be negative")
	ErrDailyWithdrawnOverCap = errors.New("daily withdrawn exceeds daily withdrawal limit")
	ErrNegativeAggregate     = errors.New("lifetime aggregates must not be negative")
)

// WalletAccount is the persisted balance aggregate of one owner.
// Balance only ever changes through the ledger service.
type WalletAccount struct {
	ID                   uuid.UUID  `json:"id"`
	OwnerID              string     `json:"owner_id"`
	DisplayAddress       string     `json:"display_address"`
	Balance              int64      `json:"balance"` // minor units
	Currency             Currency   `json:"currency"`
	IsActive             bool       `json:"is_active"`
	IsFrozen             bool       `json:"is_frozen"`
	FrozenReason         *string    `json:"frozen_reason,omitempty"`
	FrozenAt             *time.Time `json:"frozen_at,omitempty"`
	DailyWithdrawalLimit int64      `json:"daily_withdrawal_limit"`
	DailyWithdrawn       int64      `json:"daily_withdrawn"`
	LastWithdrawalReset  time.Time  `json:"last_withdrawal_reset"`
	TotalDeposited       int64      `json:"total_deposited"`
	TotalWithdrawn       int64      `json:"total_withdrawn"`
	TotalSpent           int64      `json:"total_spent"`
	TotalReceived        int64      `json:"total_received"`
	LastActivity         *time.Time `json:"last_activity,omitempty"`
	LastEntryHash        string     `json:"-"`
	LastEntrySequence    int64      `json:"-"`
	Version              int64      `json:"-"` // bumped on every persisted change
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewWalletAccount builds a fresh, active, empty account for ownerID.
func NewWalletAccount(ownerID string, currency Currency, dailyLimit int64, now time.Time) *WalletAccount {
	id := uuid.New()
	return &WalletAccount{
		ID:                   id,
		OwnerID:              ownerID,
		DisplayAddress:       DeriveDisplayAddress(id),
		Currency:             currency,
		IsActive:             true,
		DailyWithdrawalLimit: dailyLimit,
		LastWithdrawalReset:  now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// DeriveDisplayAddress returns an opaque 0x-prefixed 20-byte address for id.
func DeriveDisplayAddress(id uuid.UUID) string {
	sum := blake2b.Sum256(id[:])
	return "0x" + hex.EncodeToString(sum[:20])
}

// CheckInvariants verifies the state a mutation must leave the account in.
func (a *WalletAccount) CheckInvariants() error {
	if a.Balance < 0 {
		return ErrNegativeBalance
	}
	if a.DailyWithdrawn > a.DailyWithdrawalLimit {
		return ErrDailyWithdrawnOverCap
	}
	if a.TotalDeposited < 0 || a.TotalWithdrawn < 0 || a.TotalSpent < 0 || a.TotalReceived < 0 {
		return ErrNegativeAggregate
	}
	return nil
}

// AddToAggregate bumps the lifetime statistic that entryType feeds.
// Refunds and outgoing transfers have no aggregate.
func (a *WalletAccount) AddToAggregate(entryType EntryType, amount int64) {
	switch entryType {
	case EntryTypeDeposit:
		a.TotalDeposited += amount
	case EntryTypeWithdrawal:
		a.TotalWithdrawn += amount
	case EntryTypePayment:
		a.TotalSpent += amount
	case EntryTypeTransferIn:
		a.TotalReceived += amount
	}
}

// WouldOverflow reports whether applying amount of entryType would push the
// balance or the aggregate it feeds past math.MaxInt64.
func (a *WalletAccount) WouldOverflow(entryType EntryType, amount int64) bool {
	if entryType.IsCredit() && a.Balance > math.MaxInt64-amount {
		return true
	}
	var agg int64
	switch entryType {
	case EntryTypeDeposit:
		agg = a.TotalDeposited
	case EntryTypeWithdrawal:
		agg = a.TotalWithdrawn
	case EntryTypePayment:
		agg = a.TotalSpent
	case EntryTypeTransferIn:
		agg = a.TotalReceived
	default:
		return false
	}
	return agg > math.MaxInt64-amount
}

// Clone returns a deep copy.
func (a *WalletAccount) Clone() *WalletAccount {
	if a == nil {
		return nil
	}
	c := *a
	if a.FrozenReason != nil {
		r := *a.FrozenReason
		c.FrozenReason = &r
	}
	if a.FrozenAt != nil {
		t := *a.FrozenAt
		c.FrozenAt = &t
	}
	if a.LastActivity != nil {
		t := *a.LastActivity
		c.LastActivity = &t
	}
	return &c
}
