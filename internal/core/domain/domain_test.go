package domain

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryType_Classification(t *testing.T) {
	tests := []struct {
		entryType EntryType
		credit    bool
		debit     bool
	}{
		{EntryTypeDeposit, true, false},
		{EntryTypeTransferIn, true, false},
		{EntryTypeRefund, true, false},
		{EntryTypeWithdrawal, false, true},
		{EntryTypeTransferOut, false, true},
		{EntryTypePayment, false, true},
		{EntryType("bonus"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.entryType), func(t *testing.T) {
			assert.Equal(t, tt.credit, tt.entryType.IsCredit())
			assert.Equal(t, tt.debit, tt.entryType.IsDebit())
			assert.Equal(t, tt.credit || tt.debit, tt.entryType.IsValid())
		})
	}
}

func TestEntryType_SignedAmount(t *testing.T) {
	assert.Equal(t, int64(50), EntryTypeDeposit.SignedAmount(50))
	assert.Equal(t, int64(-50), EntryTypePayment.SignedAmount(50))
}

func TestParseEntryType(t *testing.T) {
	et, ok := ParseEntryType(" Transfer_In ")
	assert.True(t, ok)
	assert.Equal(t, EntryTypeTransferIn, et)

	_, ok = ParseEntryType("chargeback")
	assert.False(t, ok)
}

func TestLedgerEntry_IsBalanced(t *testing.T) {
	tests := []struct {
		name  string
		entry LedgerEntry
		want  bool
	}{
		{"credit ok", LedgerEntry{Type: EntryTypeDeposit, Amount: 10, BalanceBefore: 5, BalanceAfter: 15}, true},
		{"debit ok", LedgerEntry{Type: EntryTypeWithdrawal, Amount: 10, BalanceBefore: 15, BalanceAfter: 5}, true},
		{"credit wrong sign", LedgerEntry{Type: EntryTypeRefund, Amount: 10, BalanceBefore: 15, BalanceAfter: 5}, false},
		{"zero amount", LedgerEntry{Type: EntryTypeDeposit, Amount: 0, BalanceBefore: 5, BalanceAfter: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.IsBalanced())
		})
	}
}

func TestParseCurrency(t *testing.T) {
	c, ok := ParseCurrency("usdt")
	assert.True(t, ok)
	assert.Equal(t, CurrencyUSDT, c)

	_, ok = ParseCurrency("DOGE")
	assert.False(t, ok)
}

func TestNewWalletAccount(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	acct := NewWalletAccount("user-1", CurrencyTKN, 1000, now)

	assert.NotEqual(t, uuid.Nil, acct.ID)
	assert.True(t, acct.IsActive)
	assert.False(t, acct.IsFrozen)
	assert.Equal(t, int64(0), acct.Balance)
	assert.Equal(t, now, acct.LastWithdrawalReset)
	assert.True(t, strings.HasPrefix(acct.DisplayAddress, "0x"))
	assert.Len(t, acct.DisplayAddress, 42)
	assert.NoError(t, acct.CheckInvariants())
}

func TestDeriveDisplayAddress_Deterministic(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, DeriveDisplayAddress(id), DeriveDisplayAddress(id))
	assert.NotEqual(t, DeriveDisplayAddress(id), DeriveDisplayAddress(uuid.New()))
}

func TestWalletAccount_CheckInvariants(t *testing.T) {
	acct := &WalletAccount{Balance: -1, DailyWithdrawalLimit: 10}
	assert.ErrorIs(t, acct.CheckInvariants(), ErrNegativeBalance)

	acct = &WalletAccount{Balance: 1, DailyWithdrawalLimit: 10, DailyWithdrawn: 11}
	assert.ErrorIs(t, acct.CheckInvariants(), ErrDailyWithdrawnOverCap)

	acct = &WalletAccount{Balance: 1, DailyWithdrawalLimit: 10, TotalSpent: -3}
	assert.ErrorIs(t, acct.CheckInvariants(), ErrNegativeAggregate)
}

func TestWalletAccount_AddToAggregate(t *testing.T) {
	acct := &WalletAccount{}
	acct.AddToAggregate(EntryTypeDeposit, 1)
	acct.AddToAggregate(EntryTypeWithdrawal, 2)
	acct.AddToAggregate(EntryTypePayment, 3)
	acct.AddToAggregate(EntryTypeTransferIn, 4)
	acct.AddToAggregate(EntryTypeRefund, 100)
	acct.AddToAggregate(EntryTypeTransferOut, 100)

	assert.Equal(t, int64(1), acct.TotalDeposited)
	assert.Equal(t, int64(2), acct.TotalWithdrawn)
	assert.Equal(t, int64(3), acct.TotalSpent)
	assert.Equal(t, int64(4), acct.TotalReceived)
}

func TestWalletAccount_WouldOverflow(t *testing.T) {
	acct := &WalletAccount{Balance: 10, TotalDeposited: 10}
	assert.True(t, acct.WouldOverflow(EntryTypeDeposit, math.MaxInt64))
	assert.True(t, acct.WouldOverflow(EntryTypeRefund, math.MaxInt64-9))
	assert.False(t, acct.WouldOverflow(EntryTypeRefund, math.MaxInt64-10))
	assert.False(t, acct.WouldOverflow(EntryTypeWithdrawal, math.MaxInt64), "debits never grow the balance")

	acct = &WalletAccount{Balance: 0, TotalReceived: math.MaxInt64 - 1}
	assert.True(t, acct.WouldOverflow(EntryTypeTransferIn, 2))
	assert.False(t, acct.WouldOverflow(EntryTypeTransferIn, 1))
}

func TestWalletAccount_CloneIsDeep(t *testing.T) {
	reason := "kyc"
	now := time.Now()
	acct := &WalletAccount{FrozenReason: &reason, FrozenAt: &now, LastActivity: &now}

	c := acct.Clone()
	require.NotNil(t, c.FrozenReason)
	*c.FrozenReason = "changed"
	assert.Equal(t, "kyc", *acct.FrozenReason)
	assert.NotSame(t, acct.FrozenAt, c.FrozenAt)
}

func TestAuditActionForEntry(t *testing.T) {
	assert.Equal(t, AuditActionDeposit, AuditActionForEntry(EntryTypeDeposit))
	assert.Equal(t, AuditActionTransferOut, AuditActionForEntry(EntryTypeTransferOut))
	assert.Equal(t, AuditActionRefund, AuditActionForEntry(EntryTypeRefund))
}

func TestBuildIdempotencyKey(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	assert.Equal(t, "11111111-1111-1111-1111-111111111111:deposit:abc", BuildIdempotencyKey(id, EntryTypeDeposit, "abc"))
}
