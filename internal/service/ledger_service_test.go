package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/lock"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var svcCtx = ports.MutationContext{Actor: "order-service"}

// ==================== Basic mutations ====================

func TestLedgerService_Deposit(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 0)

	entry, err := h.ledger.Deposit(context.Background(), id, 500, "card", svcCtx)
	require.NoError(t, err)

	assert.Equal(t, domain.EntryTypeDeposit, entry.Type)
	assert.Equal(t, int64(0), entry.BalanceBefore)
	assert.Equal(t, int64(500), entry.BalanceAfter)
	assert.Equal(t, domain.EntryStatusCompleted, entry.Status)
	assert.Equal(t, int64(1), entry.Sequence)
	assert.Equal(t, "card", entry.Metadata["source"])
	assert.Equal(t, "order-service", entry.Actor)
	assert.Equal(t, GenesisHash, entry.PrevHash)
	assert.NotEmpty(t, entry.Hash)

	acct := h.account(t, id)
	assert.Equal(t, int64(500), acct.Balance)
	assert.Equal(t, int64(500), acct.TotalDeposited)
	assert.Equal(t, entry.Hash, acct.LastEntryHash)
	require.NotNil(t, acct.LastActivity)
	assert.Equal(t, h.clock.Now(), *acct.LastActivity)
}

func TestLedgerService_AggregatesPerType(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 1000)
	ctx := context.Background()

	_, err := h.ledger.Withdraw(ctx, id, 100, svcCtx)
	require.NoError(t, err)
	pay, err := h.ledger.Pay(ctx, id, 200, "order-7", svcCtx)
	require.NoError(t, err)
	_, err = h.ledger.Refund(ctx, id, 50, "order-7", svcCtx)
	require.NoError(t, err)
	_, err = h.ledger.Apply(ctx, id, domain.EntryTypeTransferIn, 30, svcCtx)
	require.NoError(t, err)

	require.NotNil(t, pay.RelatedOrderID)
	assert.Equal(t, "order-7", *pay.RelatedOrderID)

	acct := h.account(t, id)
	assert.Equal(t, int64(1000-100-200+50+30), acct.Balance)
	assert.Equal(t, int64(1000), acct.TotalDeposited)
	assert.Equal(t, int64(100), acct.TotalWithdrawn)
	assert.Equal(t, int64(200), acct.TotalSpent)
	assert.Equal(t, int64(30), acct.TotalReceived)
	assert.Equal(t, int64(100), acct.DailyWithdrawn, "only withdrawals count against the daily limit")
	h.requireConsistent(t, id)
}

func TestLedgerService_WalletNotFound(t *testing.T) {
	h := newLedgerHarness(t)

	_, err := h.ledger.Deposit(context.Background(), uuid.New(), 10, "", svcCtx)
	assertAppError(t, err, apperror.CodeWalletNotFound)
}

// ==================== Validation order ====================

func TestLedgerService_ValidationOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown type", func(t *testing.T) {
		h := newLedgerHarness(t)
		_, err := h.ledger.Apply(ctx, uuid.New(), domain.EntryType("bonus"), 10, svcCtx)
		assertAppError(t, err, apperror.CodeInvalidEntryType)
	})

	t.Run("amount before anything else", func(t *testing.T) {
		h := newLedgerHarness(t)
		for _, amount := range []int64{0, -5} {
			_, err := h.ledger.Withdraw(ctx, uuid.New(), amount, svcCtx)
			assertAppError(t, err, apperror.CodeInvalidAmount)
		}
	})

	t.Run("inactive before frozen", func(t *testing.T) {
		h := newLedgerHarness(t)
		id := h.openAccount(t, "alice", 100)
		_, err := h.freeze.Freeze(ctx, id, "kyc", "admin")
		require.NoError(t, err)
		_, err = h.freeze.Deactivate(ctx, id, "admin")
		require.NoError(t, err)

		_, err = h.ledger.Withdraw(ctx, id, 10, svcCtx)
		assertAppError(t, err, apperror.CodeWalletInactive)
	})

	t.Run("frozen before insufficient balance", func(t *testing.T) {
		h := newLedgerHarness(t)
		id := h.openAccount(t, "alice", 100)
		_, err := h.freeze.Freeze(ctx, id, "kyc", "admin")
		require.NoError(t, err)

		_, err = h.ledger.Withdraw(ctx, id, 1000, svcCtx)
		assertAppError(t, err, apperror.CodeWalletFrozen)
	})

	t.Run("insufficient balance before daily limit", func(t *testing.T) {
		h := newLedgerHarness(t, withDailyLimit(50))
		id := h.openAccount(t, "alice", 100)

		_, err := h.ledger.Withdraw(ctx, id, 200, svcCtx)
		assertAppError(t, err, apperror.CodeInsufficientBalance)
	})
}

// ==================== Daily limit ====================

func TestLedgerService_DailyLimit(t *testing.T) {
	h := newLedgerHarness(t, withDailyLimit(1000))
	id := h.openAccount(t, "alice", 5000)
	ctx := context.Background()

	_, err := h.ledger.Withdraw(ctx, id, 600, svcCtx)
	require.NoError(t, err)

	_, err = h.ledger.Withdraw(ctx, id, 500, svcCtx)
	assertAppError(t, err, apperror.CodeDailyLimitExceeded)

	acct := h.account(t, id)
	assert.Equal(t, int64(4400), acct.Balance)
	assert.Equal(t, int64(600), acct.DailyWithdrawn)
	h.requireConsistent(t, id)
}

func TestLedgerService_RollingReset(t *testing.T) {
	h := newLedgerHarness(t, withDailyLimit(1000))
	id := h.openAccount(t, "alice", 5000)
	ctx := context.Background()

	_, err := h.ledger.Withdraw(ctx, id, 1000, svcCtx)
	require.NoError(t, err)

	h.clock.Advance(23 * time.Hour)
	_, err = h.ledger.Withdraw(ctx, id, 1, svcCtx)
	assertAppError(t, err, apperror.CodeDailyLimitExceeded)

	h.clock.Advance(time.Hour)
	_, err = h.ledger.Withdraw(ctx, id, 1000, svcCtx)
	require.NoError(t, err)

	acct := h.account(t, id)
	assert.Equal(t, int64(3000), acct.Balance)
	assert.Equal(t, int64(1000), acct.DailyWithdrawn)
	assert.Equal(t, h.clock.Now(), acct.LastWithdrawalReset)
}

func TestLedgerService_ResetPersistedWhenWithdrawalRejected(t *testing.T) {
	h := newLedgerHarness(t, withDailyLimit(1000))
	id := h.openAccount(t, "alice", 5000)
	ctx := context.Background()

	_, err := h.ledger.Withdraw(ctx, id, 900, svcCtx)
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)
	_, err = h.ledger.Withdraw(ctx, id, 1500, svcCtx)
	assertAppError(t, err, apperror.CodeDailyLimitExceeded)

	acct := h.account(t, id)
	assert.Equal(t, int64(0), acct.DailyWithdrawn)
	assert.Equal(t, h.clock.Now(), acct.LastWithdrawalReset)
	assert.Equal(t, int64(4100), acct.Balance)
	h.requireConsistent(t, id)
}

// ==================== Concurrency ====================

func TestLedgerService_NoDoubleSpend(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 100)
	ctx := context.Background()

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.ledger.Withdraw(ctx, id, 80, svcCtx)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if apperror.Kind(err) == apperror.CodeInsufficientBalance {
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(20), h.balance(t, id))
	h.requireConsistent(t, id)
}

func TestLedgerService_ConcurrentPaymentsNeverOverdraw(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 200)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.ledger.Pay(ctx, id, 10, "", svcCtx); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.Equal(t, apperror.CodeInsufficientBalance, apperror.Kind(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	acct := h.account(t, id)
	assert.Equal(t, int64(0), acct.Balance)
	assert.Equal(t, int64(200), acct.TotalSpent)
	h.requireConsistent(t, id)
}

func TestLedgerService_DifferentAccountsInParallel(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	ids := []uuid.UUID{h.openAccount(t, "a", 0), h.openAccount(t, "b", 0), h.openAccount(t, "c", 0)}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := h.ledger.Deposit(ctx, id, 7, "", svcCtx)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, int64(70), h.balance(t, id))
		h.requireConsistent(t, id)
	}
}

// ==================== Freeze ====================

func TestLedgerService_FreezeBlocksDebits(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 500)
	ctx := context.Background()

	_, err := h.freeze.Freeze(ctx, id, "dispute", "admin")
	require.NoError(t, err)

	_, err = h.ledger.Withdraw(ctx, id, 100, svcCtx)
	assertAppError(t, err, apperror.CodeWalletFrozen)
	_, err = h.ledger.Pay(ctx, id, 100, "o-1", svcCtx)
	assertAppError(t, err, apperror.CodeWalletFrozen)
	assert.Equal(t, int64(500), h.balance(t, id))

	_, err = h.freeze.Unfreeze(ctx, id, "admin")
	require.NoError(t, err)
	_, err = h.ledger.Withdraw(ctx, id, 100, svcCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(400), h.balance(t, id))
}

func TestLedgerService_FrozenCreditsFollowConfig(t *testing.T) {
	ctx := context.Background()

	blocked := newLedgerHarness(t)
	id := blocked.openAccount(t, "alice", 0)
	_, err := blocked.freeze.Freeze(ctx, id, "dispute", "admin")
	require.NoError(t, err)
	_, err = blocked.ledger.Deposit(ctx, id, 10, "", svcCtx)
	assertAppError(t, err, apperror.CodeWalletFrozen)

	allowed := newLedgerHarness(t, withCreditsAllowedWhenFrozen())
	id = allowed.openAccount(t, "alice", 0)
	_, err = allowed.freeze.Freeze(ctx, id, "dispute", "admin")
	require.NoError(t, err)
	_, err = allowed.ledger.Deposit(ctx, id, 10, "", svcCtx)
	require.NoError(t, err)
	_, err = allowed.ledger.Withdraw(ctx, id, 10, svcCtx)
	assertAppError(t, err, apperror.CodeWalletFrozen)
}

func TestLedgerService_CompensateBypassesHolds(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 0)
	ctx := context.Background()
	_, err := h.freeze.Freeze(ctx, id, "dispute", "admin")
	require.NoError(t, err)

	entry, err := h.ledger.Compensate(ctx, id, 40, svcCtx)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryTypeRefund, entry.Type)
	assert.Equal(t, int64(40), h.balance(t, id))
}

func TestLedgerService_CreditOverflowRejected(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 10)
	ctx := context.Background()

	_, err := h.ledger.Deposit(ctx, id, math.MaxInt64, "card", svcCtx)
	assertAppError(t, err, apperror.CodeInvalidAmount)
	_, err = h.ledger.Refund(ctx, id, math.MaxInt64-9, "ord-1", svcCtx)
	assertAppError(t, err, apperror.CodeInvalidAmount)
	_, err = h.ledger.Compensate(ctx, id, math.MaxInt64, svcCtx)
	assertAppError(t, err, apperror.CodeInvalidAmount)

	assert.Equal(t, int64(10), h.balance(t, id))
	h.requireConsistent(t, id)

	_, err = h.ledger.Refund(ctx, id, math.MaxInt64-10, "ord-1", svcCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), h.balance(t, id))
}

// ==================== Idempotency ====================

func TestLedgerService_ApplyOrReplayReportsReplay(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 100)
	ctx := context.Background()
	mc := ports.MutationContext{Actor: "svc", IdempotencyKey: "pay-1"}

	assert.Nil(t, h.ledger.Recorded(ctx, id, domain.EntryTypePayment, "pay-1"))

	first, replayed, err := h.ledger.ApplyOrReplay(ctx, id, domain.EntryTypePayment, 30, mc)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := h.ledger.ApplyOrReplay(ctx, id, domain.EntryTypePayment, 30, mc)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	recorded := h.ledger.Recorded(ctx, id, domain.EntryTypePayment, "pay-1")
	require.NotNil(t, recorded)
	assert.Equal(t, first.ID, recorded.ID)
	assert.Nil(t, h.ledger.Recorded(ctx, id, domain.EntryTypePayment, ""))
	assert.Equal(t, int64(70), h.balance(t, id))
}

func TestLedgerService_IdempotencyKeyReplaysEntry(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 0)
	ctx := context.Background()
	mc := ports.MutationContext{Actor: "svc", IdempotencyKey: "dep-1"}

	first, err := h.ledger.Deposit(ctx, id, 100, "card", mc)
	require.NoError(t, err)
	second, err := h.ledger.Deposit(ctx, id, 100, "card", mc)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(100), h.balance(t, id))

	// Same key on another operation is independent.
	_, err = h.ledger.Withdraw(ctx, id, 10, mc)
	require.NoError(t, err)
	assert.Equal(t, int64(90), h.balance(t, id))
}

func TestLedgerService_IdempotencyKeyUnderConcurrency(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 0)
	ctx := context.Background()
	mc := ports.MutationContext{Actor: "svc", IdempotencyKey: "dep-race"}

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := h.ledger.Deposit(ctx, id, 100, "", mc)
			if assert.NoError(t, err) {
				ids[i] = e.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), h.balance(t, id))
	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
}

// ==================== Retry and failure mapping (mocks) ====================

type mockLedgerDeps struct {
	ctrl       *gomock.Controller
	accounts   *mocks.MockWalletAccountRepository
	entries    *mocks.MockLedgerEntryRepository
	transactor *mocks.MockDBTransactor
	serializer *mocks.MockAccountSerializer
	audit      *mocks.MockAuditService
	svc        *LedgerServiceImpl
	metrics    *PrometheusMetrics
}

func setupMockLedger(t *testing.T) *mockLedgerDeps {
	ctrl := gomock.NewController(t)
	d := &mockLedgerDeps{
		ctrl:       ctrl,
		accounts:   mocks.NewMockWalletAccountRepository(ctrl),
		entries:    mocks.NewMockLedgerEntryRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		serializer: mocks.NewMockAccountSerializer(ctrl),
		audit:      mocks.NewMockAuditService(ctrl),
		metrics:    NewPrometheusMetrics(),
	}
	d.svc = NewLedgerService(d.accounts, d.entries, d.transactor, d.serializer, NewWithdrawalLimiter(24*time.Hour),
		LedgerConfig{Retry: fastRetryPolicy(), BlockCreditsWhenFrozen: true}, zerolog.Nop(),
		WithAudit(d.audit), WithMetrics(d.metrics))
	return d
}

func activeAccount(balance int64) *domain.WalletAccount {
	acct := domain.NewWalletAccount("alice", domain.CurrencyTKN, 100000, time.Now())
	acct.Balance = balance
	acct.TotalDeposited = balance
	return acct
}

func TestLedgerService_RetriesVersionConflict(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(100)
	tx := &mockTx{}

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() {}, nil).Times(2)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).DoAndReturn(
		func(context.Context, pgx.Tx, uuid.UUID) (*domain.WalletAccount, error) {
			return acct.Clone(), nil
		}).Times(2)
	gomock.InOrder(
		d.accounts.EXPECT().Update(ctx, tx, gomock.Any()).Return(ports.ErrVersionConflict),
		d.accounts.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil),
	)
	d.entries.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, a *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionPayment, a.Action)
		var details map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(a.Details), &details))
		assert.Equal(t, float64(100), details["balance_before"])
		assert.Equal(t, float64(60), details["balance_after"])
		assert.Equal(t, "order-service", details["actor"])
	})

	entry, err := d.svc.Pay(ctx, acct.ID, 40, "o-1", svcCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), entry.BalanceAfter)
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.retriesTotal.WithLabelValues("payment")))
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.mutationsTotal.WithLabelValues("payment", "ok")))
}

func TestLedgerService_PersistenceFailureExhaustsRetries(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(100)
	tx := &mockTx{}
	attempts := int(fastRetryPolicy().MaxRetries) + 1

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() {}, nil).Times(attempts)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(attempts)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).DoAndReturn(
		func(context.Context, pgx.Tx, uuid.UUID) (*domain.WalletAccount, error) {
			return acct.Clone(), nil
		}).Times(attempts)
	d.accounts.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil).Times(attempts)
	d.entries.EXPECT().Create(ctx, tx, gomock.Any()).Return(errors.New("connection reset")).Times(attempts)

	_, err := d.svc.Deposit(ctx, acct.ID, 10, "", svcCtx)
	assertAppError(t, err, apperror.CodePersistenceFailure)
	assert.NotContains(t, err.(*apperror.AppError).Message, "connection reset")
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.mutationsTotal.WithLabelValues("deposit", apperror.CodePersistenceFailure)))
}

func TestLedgerService_CommitErrorWithDurableEntrySucceeds(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(100)
	tx := &failingCommitTx{fails: 1, err: errors.New("connection reset during commit")}
	var written *domain.WalletAccount

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() {}, nil).Times(1)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(1)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).Return(acct.Clone(), nil)
	d.accounts.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, a *domain.WalletAccount) error {
			written = a.Clone()
			return nil
		})
	d.entries.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.accounts.EXPECT().GetByID(gomock.Any(), acct.ID).DoAndReturn(
		func(context.Context, uuid.UUID) (*domain.WalletAccount, error) {
			return written, nil
		})
	d.audit.EXPECT().Log(ctx, gomock.Any())

	entry, err := d.svc.Deposit(ctx, acct.ID, 25, "", svcCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(125), entry.BalanceAfter)
	assert.Equal(t, float64(0), testutil.ToFloat64(d.metrics.retriesTotal.WithLabelValues("deposit")))
}

func TestLedgerService_CommitErrorNotDurableIsRetried(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(100)
	tx := &failingCommitTx{fails: 1, err: errors.New("connection reset during commit")}

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() {}, nil).Times(2)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).DoAndReturn(
		func(context.Context, pgx.Tx, uuid.UUID) (*domain.WalletAccount, error) {
			return acct.Clone(), nil
		}).Times(2)
	d.accounts.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil).Times(2)
	d.entries.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil).Times(2)
	d.accounts.EXPECT().GetByID(gomock.Any(), acct.ID).Return(acct.Clone(), nil)
	d.audit.EXPECT().Log(ctx, gomock.Any())

	entry, err := d.svc.Deposit(ctx, acct.ID, 25, "", svcCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(125), entry.BalanceAfter)
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.retriesTotal.WithLabelValues("deposit")))
}

func TestLedgerService_CommitErrorUnknownOutcomeNotRetried(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(100)
	tx := &failingCommitTx{fails: 1, err: errors.New("connection reset during commit")}

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() {}, nil).Times(1)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(1)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).Return(acct.Clone(), nil)
	d.accounts.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.entries.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.accounts.EXPECT().GetByID(gomock.Any(), acct.ID).Return(nil, errors.New("pool closed"))

	_, err := d.svc.Withdraw(ctx, acct.ID, 25, svcCtx)
	assertAppError(t, err, apperror.CodeInternal)
	assert.False(t, apperror.IsTransient(err))
	assert.Equal(t, float64(0), testutil.ToFloat64(d.metrics.retriesTotal.WithLabelValues("withdrawal")))
}

func TestLedgerService_LockTimeoutIsConflict(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	id := uuid.New()

	d.serializer.EXPECT().Acquire(ctx, id).Return(nil, ports.ErrLockTimeout).Times(int(fastRetryPolicy().MaxRetries) + 1)

	_, err := d.svc.Deposit(ctx, id, 10, "", svcCtx)
	assertAppError(t, err, apperror.CodeConcurrentConflict)
}

func TestLedgerService_TerminalErrorNotRetried(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(5)
	tx := &mockTx{}

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() {}, nil).Times(1)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(1)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).Return(acct, nil).Times(1)

	_, err := d.svc.Withdraw(ctx, acct.ID, 10, svcCtx)
	assertAppError(t, err, apperror.CodeInsufficientBalance)
}

func TestLedgerService_ReleasesLockOnFailure(t *testing.T) {
	d := setupMockLedger(t)
	defer d.ctrl.Finish()
	ctx := context.Background()
	acct := activeAccount(5)
	tx := &mockTx{}
	released := 0

	d.serializer.EXPECT().Acquire(ctx, acct.ID).Return(func() { released++ }, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accounts.EXPECT().GetByIDForUpdate(ctx, tx, acct.ID).Return(acct, nil)

	_, err := d.svc.Pay(ctx, acct.ID, 10, "", svcCtx)
	require.Error(t, err)
	assert.Equal(t, 1, released)
}

// ==================== Lock contention timeout (real serializer) ====================

func TestLedgerService_ContentionTimeoutSurfacesConflict(t *testing.T) {
	h := newLedgerHarness(t)
	id := h.openAccount(t, "alice", 10)

	serializer := lock.NewKeyedMutex(5 * time.Millisecond)
	ledger := NewLedgerService(h.accounts, h.entries, h.store, serializer, NewWithdrawalLimiter(24*time.Hour),
		LedgerConfig{Retry: fastRetryPolicy()}, zerolog.Nop())

	release, err := serializer.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	_, err = ledger.Deposit(context.Background(), id, 1, "", svcCtx)
	assertAppError(t, err, apperror.CodeConcurrentConflict)
	assert.Equal(t, int64(10), h.balance(t, id))
}
