package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/lock"
	"wallet-ledger/internal/adapter/storage/memory"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mapCache is an in-process ports.IdempotencyCache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// failingCommitTx reports err from its first fails commits.
type failingCommitTx struct {
	pgx.Tx
	fails int
	err   error
}

func (m *failingCommitTx) Rollback(_ context.Context) error { return nil }
func (m *failingCommitTx) Commit(_ context.Context) error {
	if m.fails > 0 {
		m.fails--
		return m.err
	}
	return nil
}

type ledgerHarness struct {
	store    *memory.Store
	accounts *memory.WalletAccountRepo
	entries  *memory.LedgerEntryRepo
	clock    *fakeClock
	cache    *mapCache
	ledger   *LedgerServiceImpl
	acctSvc  *AccountServiceImpl
	freeze   *FreezeServiceImpl
	transfer *TransferServiceImpl
	history  *HistoryServiceImpl
}

type harnessOption func(*LedgerConfig, *AccountDefaults)

func withCreditsAllowedWhenFrozen() harnessOption {
	return func(c *LedgerConfig, _ *AccountDefaults) { c.BlockCreditsWhenFrozen = false }
}

func withDailyLimit(limit int64) harnessOption {
	return func(_ *LedgerConfig, d *AccountDefaults) { d.DailyWithdrawalLimit = limit }
}

func newLedgerHarness(t *testing.T, opts ...harnessOption) *ledgerHarness {
	t.Helper()

	cfg := LedgerConfig{
		Retry:                  fastRetryPolicy(),
		BlockCreditsWhenFrozen: true,
		IdempotencyTTL:         time.Hour,
	}
	defaults := AccountDefaults{Currency: domain.CurrencyTKN, DailyWithdrawalLimit: 100000}
	for _, opt := range opts {
		opt(&cfg, &defaults)
	}

	store := memory.NewStore()
	accounts := memory.NewWalletAccountRepo(store)
	entries := memory.NewLedgerEntryRepo(store)
	serializer := lock.NewKeyedMutex(time.Second)
	clock := newFakeClock()
	cache := newMapCache()
	log := zerolog.Nop()

	ledger := NewLedgerService(accounts, entries, store, serializer, NewWithdrawalLimiter(24*time.Hour), cfg, log,
		WithClock(clock.Now), WithIdempotencyCache(cache))
	freeze := NewFreezeService(accounts, store, serializer, nil, cfg.Retry, log)
	freeze.now = clock.Now
	acctSvc := NewAccountService(accounts, nil, defaults, nil, log)
	acctSvc.now = clock.Now

	return &ledgerHarness{
		store:    store,
		accounts: accounts,
		entries:  entries,
		clock:    clock,
		cache:    cache,
		ledger:   ledger,
		acctSvc:  acctSvc,
		freeze:   freeze,
		transfer: NewTransferService(ledger, accounts, nil, cfg.Retry, log),
		history:  NewHistoryService(accounts, entries, log),
	}
}

// openAccount creates an account for owner and deposits balance into it.
func (h *ledgerHarness) openAccount(t *testing.T, owner string, balance int64) uuid.UUID {
	t.Helper()
	view, _, err := h.acctSvc.GetOrCreate(context.Background(), owner, "")
	require.NoError(t, err)
	if balance > 0 {
		_, err = h.ledger.Deposit(context.Background(), view.Account.ID, balance, "seed", ports.MutationContext{Actor: "test"})
		require.NoError(t, err)
	}
	return view.Account.ID
}

func (h *ledgerHarness) account(t *testing.T, id uuid.UUID) *domain.WalletAccount {
	t.Helper()
	acct, err := h.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct
}

func (h *ledgerHarness) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	return h.account(t, id).Balance
}

func (h *ledgerHarness) requireConsistent(t *testing.T, id uuid.UUID) {
	t.Helper()
	report, err := h.history.Reconcile(context.Background(), id)
	require.NoError(t, err)
	require.Truef(t, report.Consistent, "reconcile: %v", report.Discrepancies)
}
