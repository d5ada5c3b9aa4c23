package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, owner_id, display_address, balance, currency, is_active, is_frozen,
	frozen_reason, frozen_at, daily_withdrawal_limit, daily_withdrawn, last_withdrawal_reset,
	total_deposited, total_withdrawn, total_spent, total_received, last_activity,
	last_entry_hash, last_entry_sequence, version, created_at, updated_at`

// WalletAccountRepo implements ports.WalletAccountRepository.
type WalletAccountRepo struct {
	pool Pool
}

// NewWalletAccountRepo creates a new WalletAccountRepo.
func NewWalletAccountRepo(pool Pool) *WalletAccountRepo {
	return &WalletAccountRepo{pool: pool}
}

// Insert creates the account unless the owner already has one.
func (r *WalletAccountRepo) Insert(ctx context.Context, a *domain.WalletAccount) (bool, error) {
	query := `INSERT INTO wallet_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (owner_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.OwnerID, a.DisplayAddress, a.Balance, a.Currency, a.IsActive, a.IsFrozen,
		a.FrozenReason, a.FrozenAt, a.DailyWithdrawalLimit, a.DailyWithdrawn, a.LastWithdrawalReset,
		a.TotalDeposited, a.TotalWithdrawn, a.TotalSpent, a.TotalReceived, a.LastActivity,
		a.LastEntryHash, a.LastEntrySequence, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert wallet account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID fetches an account by its UUID (without locking).
func (r *WalletAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM wallet_accounts WHERE id = $1`
	acct, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet account by id: %w", err)
	}
	return acct, nil
}

// GetByOwnerID fetches an account by owner (without locking).
func (r *WalletAccountRepo) GetByOwnerID(ctx context.Context, ownerID string) (*domain.WalletAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM wallet_accounts WHERE owner_id = $1`
	acct, err := scanAccount(r.pool.QueryRow(ctx, query, ownerID))
	if err != nil {
		return nil, fmt.Errorf("get wallet account by owner: %w", err)
	}
	return acct, nil
}

// GetByIDForUpdate fetches an account with a row lock.
// This MUST be called within a transaction.
func (r *WalletAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WalletAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM wallet_accounts WHERE id = $1 FOR UPDATE`
	acct, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify("get wallet account for update", err)
	}
	return acct, nil
}

// Update writes every mutable column, guarded by the version read earlier.
// On success a.Version is advanced.
func (r *WalletAccountRepo) Update(ctx context.Context, tx pgx.Tx, a *domain.WalletAccount) error {
	query := `UPDATE wallet_accounts SET
		balance = $1, is_active = $2, is_frozen = $3, frozen_reason = $4, frozen_at = $5,
		daily_withdrawal_limit = $6, daily_withdrawn = $7, last_withdrawal_reset = $8,
		total_deposited = $9, total_withdrawn = $10, total_spent = $11, total_received = $12,
		last_activity = $13, last_entry_hash = $14, last_entry_sequence = $15,
		updated_at = $16, version = version + 1
		WHERE id = $17 AND version = $18`

	tag, err := tx.Exec(ctx, query,
		a.Balance, a.IsActive, a.IsFrozen, a.FrozenReason, a.FrozenAt,
		a.DailyWithdrawalLimit, a.DailyWithdrawn, a.LastWithdrawalReset,
		a.TotalDeposited, a.TotalWithdrawn, a.TotalSpent, a.TotalReceived,
		a.LastActivity, a.LastEntryHash, a.LastEntrySequence,
		a.UpdatedAt, a.ID, a.Version,
	)
	if err != nil {
		return classify("update wallet account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update wallet account %s at version %d: %w", a.ID, a.Version, ports.ErrVersionConflict)
	}
	a.Version++
	return nil
}

// scanAccount returns (nil, nil) when the row does not exist.
func scanAccount(row pgx.Row) (*domain.WalletAccount, error) {
	a := &domain.WalletAccount{}
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.DisplayAddress, &a.Balance, &a.Currency, &a.IsActive, &a.IsFrozen,
		&a.FrozenReason, &a.FrozenAt, &a.DailyWithdrawalLimit, &a.DailyWithdrawn, &a.LastWithdrawalReset,
		&a.TotalDeposited, &a.TotalWithdrawn, &a.TotalSpent, &a.TotalReceived, &a.LastActivity,
		&a.LastEntryHash, &a.LastEntrySequence, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}
