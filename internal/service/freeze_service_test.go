package service

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/lock"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFreezeService_FreezeAndUnfreeze(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.openAccount(t, "alice", 100)

	acct, err := h.freeze.Freeze(ctx, id, " chargeback ", "admin-1")
	require.NoError(t, err)
	assert.True(t, acct.IsFrozen)
	require.NotNil(t, acct.FrozenReason)
	assert.Equal(t, "chargeback", *acct.FrozenReason)
	require.NotNil(t, acct.FrozenAt)
	assert.Equal(t, h.clock.Now(), *acct.FrozenAt)

	stored := h.account(t, id)
	assert.True(t, stored.IsFrozen)
	assert.Equal(t, int64(100), stored.Balance, "freezing never touches the balance")

	acct, err = h.freeze.Unfreeze(ctx, id, "admin-1")
	require.NoError(t, err)
	assert.False(t, acct.IsFrozen)
	assert.Nil(t, acct.FrozenReason)
	assert.Nil(t, acct.FrozenAt)
}

func TestFreezeService_RequiresReason(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 0)

	_, err := h.freeze.Freeze(context.Background(), id, "   ", "admin")
	assertAppError(t, err, apperror.CodeValidation)
	assert.False(t, h.account(t, id).IsFrozen)
}

func TestFreezeService_NotFound(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.freeze.Freeze(ctx, uuid.New(), "x", "admin")
	assertAppError(t, err, apperror.CodeWalletNotFound)
	_, err = h.freeze.Deactivate(ctx, uuid.New(), "admin")
	assertAppError(t, err, apperror.CodeWalletNotFound)
}

func TestFreezeService_DeactivateAndReactivate(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.openAccount(t, "alice", 100)

	acct, err := h.freeze.Deactivate(ctx, id, "admin")
	require.NoError(t, err)
	assert.False(t, acct.IsActive)

	_, err = h.ledger.Deposit(ctx, id, 10, "", svcCtx)
	assertAppError(t, err, apperror.CodeWalletInactive)

	acct, err = h.freeze.Reactivate(ctx, id, "admin")
	require.NoError(t, err)
	assert.True(t, acct.IsActive)

	_, err = h.ledger.Deposit(ctx, id, 10, "", svcCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(110), h.balance(t, id))
}

func TestFreezeService_RefreezeReplacesReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newLedgerHarness(t)
	audit := mocks.NewMockAuditService(ctrl)
	svc := NewFreezeService(h.accounts, h.store, lock.NewKeyedMutex(time.Second), audit, fastRetryPolicy(), zerolog.Nop())
	svc.now = h.clock.Now
	ctx := context.Background()
	id := h.openAccount(t, "alice", 0)

	var reasons []string
	audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, a *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionFreeze, a.Action)
		assert.Equal(t, "admin", a.ActorID)
		assert.Equal(t, id.String(), a.ResourceID)
		reasons = append(reasons, a.Details)
	}).Times(2)

	first, err := svc.Freeze(ctx, id, "aml review", "admin")
	require.NoError(t, err)
	firstAt := *first.FrozenAt

	h.clock.Advance(time.Hour)
	second, err := svc.Freeze(ctx, id, "court order", "admin")
	require.NoError(t, err)

	assert.True(t, second.IsFrozen)
	require.NotNil(t, second.FrozenReason)
	assert.Equal(t, "court order", *second.FrozenReason)
	assert.Equal(t, firstAt.Add(time.Hour), *second.FrozenAt)

	stored := h.account(t, id)
	require.NotNil(t, stored.FrozenReason)
	assert.Equal(t, "court order", *stored.FrozenReason)
	assert.Equal(t, firstAt.Add(time.Hour), *stored.FrozenAt)

	require.Len(t, reasons, 2)
	assert.Contains(t, reasons[0], `"reason":"aml review"`)
	assert.Contains(t, reasons[1], `"reason":"court order"`)
}

func TestFreezeService_RepeatedUnfreezeAuditsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newLedgerHarness(t)
	audit := mocks.NewMockAuditService(ctrl)
	svc := NewFreezeService(h.accounts, h.store, lock.NewKeyedMutex(time.Second), audit, fastRetryPolicy(), zerolog.Nop())
	ctx := context.Background()
	id := h.openAccount(t, "alice", 0)

	gomock.InOrder(
		audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, a *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionFreeze, a.Action)
		}),
		audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, a *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionUnfreeze, a.Action)
		}),
	)

	_, err := svc.Freeze(ctx, id, "aml review", "admin")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		acct, err := svc.Unfreeze(ctx, id, "admin")
		require.NoError(t, err)
		assert.False(t, acct.IsFrozen)
	}
}

func TestFreezeService_StatusChangeLeavesLedgerConsistent(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	id := h.openAccount(t, "alice", 300)

	_, err := h.freeze.Freeze(ctx, id, "x", "admin")
	require.NoError(t, err)
	_, err = h.freeze.Unfreeze(ctx, id, "admin")
	require.NoError(t, err)
	_, err = h.ledger.Withdraw(ctx, id, 100, svcCtx)
	require.NoError(t, err)

	h.requireConsistent(t, id)
}
