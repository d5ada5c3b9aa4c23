package service

import (
	"context"
	"fmt"
	"sort"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HistoryServiceImpl implements ports.HistoryService. Reads never take the
// account lock; committed entries are immutable.
type HistoryServiceImpl struct {
	accounts ports.WalletAccountRepository
	entries  ports.LedgerEntryRepository
	hasher   *EntryHasher
	log      zerolog.Logger
}

// NewHistoryService creates a new HistoryServiceImpl.
func NewHistoryService(accounts ports.WalletAccountRepository, entries ports.LedgerEntryRepository, log zerolog.Logger) *HistoryServiceImpl {
	return &HistoryServiceImpl{
		accounts: accounts,
		entries:  entries,
		hasher:   NewEntryHasher(),
		log:      log,
	}
}

// GetHistory returns one page of entries, newest first.
func (s *HistoryServiceImpl) GetHistory(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.From != nil && params.To != nil && *params.From > *params.To {
		return nil, 0, apperror.Validation("from must not be after to")
	}

	acct, err := s.accounts.GetByID(ctx, params.AccountID)
	if err != nil {
		return nil, 0, storageError("get wallet", err)
	}
	if acct == nil {
		return nil, 0, apperror.ErrWalletNotFound()
	}

	entries, total, err := s.entries.List(ctx, params)
	if err != nil {
		return nil, 0, storageError("list entries", err)
	}
	return entries, total, nil
}

// Reconcile replays every entry of the account from a zero balance and
// reports any disagreement with the stored state.
func (s *HistoryServiceImpl) Reconcile(ctx context.Context, accountID uuid.UUID) (*ports.ReconcileReport, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, storageError("get wallet", err)
	}
	if acct == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	entries, err := s.entries.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storageError("list entries", err)
	}

	report := Replay(s.hasher, acct, entries)
	if !report.Consistent {
		s.log.Error().
			Str("account_id", accountID.String()).
			Int64("stored_balance", report.StoredBalance).
			Int64("replayed_balance", report.ReplayedBalance).
			Strs("discrepancies", report.Discrepancies).
			Msg("ledger reconciliation failed")
	}
	return report, nil
}

// Replay recomputes the balance of acct from entries in (timestamp,
// sequence) order and checks per-entry arithmetic plus the hash chain.
func Replay(hasher *EntryHasher, acct *domain.WalletAccount, entries []domain.LedgerEntry) *ports.ReconcileReport {
	ordered := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == domain.EntryStatusCompleted {
			ordered = append(ordered, e)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Sequence < ordered[j].Sequence
	})

	report := &ports.ReconcileReport{
		AccountID:      acct.ID,
		StoredBalance:  acct.Balance,
		EntryCount:     len(ordered),
		HashChainValid: true,
	}

	var balance int64
	prev := GenesisHash
	for i := range ordered {
		e := &ordered[i]
		if e.BalanceBefore != balance {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("entry %s (seq %d): balance_before %d, replay has %d", e.ID, e.Sequence, e.BalanceBefore, balance))
		}
		if !e.IsBalanced() {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("entry %s (seq %d): %d %s %d does not give %d", e.ID, e.Sequence, e.BalanceBefore, e.Type, e.Amount, e.BalanceAfter))
		}
		if !hasher.Verify(prev, e) {
			report.HashChainValid = false
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("entry %s (seq %d): hash chain broken", e.ID, e.Sequence))
		}
		balance += e.Type.SignedAmount(e.Amount)
		if balance < 0 {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("entry %s (seq %d): replayed balance negative", e.ID, e.Sequence))
		}
		prev = e.Hash
	}

	if prev != acct.LastEntryHash {
		report.HashChainValid = false
		report.Discrepancies = append(report.Discrepancies, "last entry hash does not match account head")
	}

	report.ReplayedBalance = balance
	if balance != acct.Balance {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("stored balance %d, replayed %d", acct.Balance, balance))
	}
	report.Consistent = len(report.Discrepancies) == 0
	return report
}
