package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrVersionConflict is returned by repositories when a write raced with
// another writer (stale version, serialization failure, lock not available).
var ErrVersionConflict = errors.New("concurrent modification")

// WalletAccountRepository defines persistence operations for wallet accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletAccountRepository interface {
	// Insert stores acct unless an account for the same owner already exists.
	// Returns false when the insert was skipped.
	Insert(ctx context.Context, acct *domain.WalletAccount) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletAccount, error)
	GetByOwnerID(ctx context.Context, ownerID string) (*domain.WalletAccount, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WalletAccount, error)
	// Update writes acct if its stored version still equals acct.Version and
	// bumps acct.Version on success. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, tx pgx.Tx, acct *domain.WalletAccount) error
}

// LedgerEntryRepository defines persistence operations for ledger entries.
// Entries are append-only.
type LedgerEntryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	// List returns one page, newest first, plus the total match count.
	List(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
	// ListByAccount returns every entry of the account in replay order.
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error)
}

// EntryListParams holds filter + pagination for listing entries.
type EntryListParams struct {
	AccountID uuid.UUID
	Type      *domain.EntryType
	Status    *domain.EntryStatus
	From      *int64 // Unix timestamp
	To        *int64 // Unix timestamp
	Page      int
	PageSize  int
}

// AuditRepository persists audit rows.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
