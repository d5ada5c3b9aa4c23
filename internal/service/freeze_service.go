package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FreezeServiceImpl implements ports.FreezeService. Status changes take the
// same per-account exclusive access as balance mutations, so a hold never
// interleaves with an in-flight apply.
type FreezeServiceImpl struct {
	accounts   ports.WalletAccountRepository
	transactor ports.DBTransactor
	serializer ports.AccountSerializer
	audit      ports.AuditService
	retry      RetryPolicy
	now        func() time.Time
	log        zerolog.Logger
}

// NewFreezeService creates a new FreezeServiceImpl. audit may be nil.
func NewFreezeService(
	accounts ports.WalletAccountRepository,
	transactor ports.DBTransactor,
	serializer ports.AccountSerializer,
	audit ports.AuditService,
	retry RetryPolicy,
	log zerolog.Logger,
) *FreezeServiceImpl {
	return &FreezeServiceImpl{
		accounts:   accounts,
		transactor: transactor,
		serializer: serializer,
		audit:      audit,
		retry:      retry,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// statusChange mutates acct in place and reports whether anything changed.
type statusChange func(acct *domain.WalletAccount, now time.Time) bool

// Freeze places a hold on the account. Freezing a frozen account replaces
// the reason and restamps frozenAt.
func (s *FreezeServiceImpl) Freeze(ctx context.Context, accountID uuid.UUID, reason, actor string) (*domain.WalletAccount, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("freeze reason is required")
	}
	return s.change(ctx, accountID, actor, domain.AuditActionFreeze, reason, func(a *domain.WalletAccount, now time.Time) bool {
		a.IsFrozen = true
		a.FrozenReason = &reason
		a.FrozenAt = &now
		return true
	})
}

// Unfreeze lifts the hold. Unfreezing an unfrozen account is a no-op.
func (s *FreezeServiceImpl) Unfreeze(ctx context.Context, accountID uuid.UUID, actor string) (*domain.WalletAccount, error) {
	return s.change(ctx, accountID, actor, domain.AuditActionUnfreeze, "", func(a *domain.WalletAccount, _ time.Time) bool {
		if !a.IsFrozen {
			return false
		}
		a.IsFrozen = false
		a.FrozenReason = nil
		a.FrozenAt = nil
		return true
	})
}

// Deactivate closes the account for all mutations. Accounts are never deleted.
func (s *FreezeServiceImpl) Deactivate(ctx context.Context, accountID uuid.UUID, actor string) (*domain.WalletAccount, error) {
	return s.change(ctx, accountID, actor, domain.AuditActionDeactivate, "", func(a *domain.WalletAccount, _ time.Time) bool {
		if !a.IsActive {
			return false
		}
		a.IsActive = false
		return true
	})
}

// Reactivate reopens a deactivated account.
func (s *FreezeServiceImpl) Reactivate(ctx context.Context, accountID uuid.UUID, actor string) (*domain.WalletAccount, error) {
	return s.change(ctx, accountID, actor, domain.AuditActionReactivate, "", func(a *domain.WalletAccount, _ time.Time) bool {
		if a.IsActive {
			return false
		}
		a.IsActive = true
		return true
	})
}

func (s *FreezeServiceImpl) change(ctx context.Context, accountID uuid.UUID, actor string, action domain.AuditAction, reason string, fn statusChange) (*domain.WalletAccount, error) {
	var (
		result  *domain.WalletAccount
		changed bool
	)
	err := retryTransient(ctx, s.retry, func() error {
		acct, ok, err := s.changeOnce(ctx, accountID, fn)
		if err != nil {
			return err
		}
		result, changed = acct, ok
		return nil
	}, func(attempt int, err error) {
		s.log.Warn().Err(err).Int("attempt", attempt).Str("account_id", accountID.String()).
			Str("action", string(action)).Msg("transient status change failure, retrying")
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		s.log.Debug().Str("account_id", accountID.String()).Str("action", string(action)).Msg("status already in requested state")
		return result, nil
	}

	s.log.Info().
		Str("account_id", accountID.String()).
		Str("action", string(action)).
		Str("actor", actor).
		Msg("wallet status changed")

	if s.audit != nil {
		d := map[string]interface{}{
			"is_active": result.IsActive,
			"is_frozen": result.IsFrozen,
			"actor":     actor,
		}
		if reason != "" {
			d["reason"] = reason
		}
		details, _ := json.Marshal(d)
		s.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actor,
			Action:       action,
			ResourceType: domain.ResourceTypeWalletAccount,
			ResourceID:   accountID.String(),
			Details:      string(details),
			CreatedAt:    result.UpdatedAt,
		})
	}
	return result, nil
}

func (s *FreezeServiceImpl) changeOnce(ctx context.Context, accountID uuid.UUID, fn statusChange) (*domain.WalletAccount, bool, error) {
	release, err := s.serializer.Acquire(ctx, accountID)
	if err != nil {
		return nil, false, lockError(err)
	}
	defer release()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	acct, err := s.accounts.GetByIDForUpdate(ctx, dbTx, accountID)
	if err != nil {
		return nil, false, storageError("lock wallet", err)
	}
	if acct == nil {
		return nil, false, apperror.ErrWalletNotFound()
	}

	now := s.now().Truncate(time.Microsecond)
	if !fn(acct, now) {
		return acct, false, nil
	}
	acct.UpdatedAt = now

	if err := s.accounts.Update(ctx, dbTx, acct); err != nil {
		return nil, false, storageError("update wallet status", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, false, storageError("commit", err)
	}
	return acct, true, nil
}
