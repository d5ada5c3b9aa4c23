package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Wallet accounts ---

// WalletAccountRepo implements ports.WalletAccountRepository.
type WalletAccountRepo struct {
	store *Store
}

// NewWalletAccountRepo creates a new WalletAccountRepo.
func NewWalletAccountRepo(store *Store) *WalletAccountRepo {
	return &WalletAccountRepo{store: store}
}

func (r *WalletAccountRepo) Insert(_ context.Context, acct *domain.WalletAccount) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[acct.OwnerID]; exists {
		return false, nil
	}
	if _, exists := s.accounts[acct.ID]; exists {
		return false, fmt.Errorf("insert wallet account: duplicate id %s", acct.ID)
	}
	s.accounts[acct.ID] = acct.Clone()
	s.owners[acct.OwnerID] = acct.ID
	return true, nil
}

func (r *WalletAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.WalletAccount, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[id].Clone(), nil
}

func (r *WalletAccountRepo) GetByOwnerID(_ context.Context, ownerID string) (*domain.WalletAccount, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owners[ownerID]
	if !ok {
		return nil, nil
	}
	return s.accounts[id].Clone(), nil
}

// GetByIDForUpdate reads through the transaction's staged state. Exclusion
// is provided by the AccountSerializer plus the version check at commit.
func (r *WalletAccountRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WalletAccount, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if staged, ok := mt.accounts[id]; ok {
		return staged.Clone(), nil
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[id].Clone(), nil
}

func (r *WalletAccountRepo) Update(_ context.Context, tx pgx.Tx, acct *domain.WalletAccount) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}

	s := r.store
	s.mu.RLock()
	cur, ok := s.accounts[acct.ID]
	var curVersion int64
	if ok {
		curVersion = cur.Version
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("wallet account not found: %s", acct.ID)
	}

	want, staged := mt.expected[acct.ID]
	if !staged {
		want = acct.Version
		if curVersion != want {
			return fmt.Errorf("update wallet account %s: %w", acct.ID, ports.ErrVersionConflict)
		}
		mt.expected[acct.ID] = want
	} else if mt.accounts[acct.ID].Version != acct.Version {
		return fmt.Errorf("update wallet account %s: %w", acct.ID, ports.ErrVersionConflict)
	}

	acct.Version++
	mt.accounts[acct.ID] = acct.Clone()
	return nil
}

// --- Ledger entries ---

// LedgerEntryRepo implements ports.LedgerEntryRepository.
type LedgerEntryRepo struct {
	store *Store
}

// NewLedgerEntryRepo creates a new LedgerEntryRepo.
func NewLedgerEntryRepo(store *Store) *LedgerEntryRepo {
	return &LedgerEntryRepo{store: store}
}

func (r *LedgerEntryRepo) Create(_ context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	mt.entries = append(mt.entries, *entry)
	return nil
}

func (r *LedgerEntryRepo) List(_ context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	s := r.store
	s.mu.RLock()
	all := s.entries[params.AccountID]
	matched := make([]domain.LedgerEntry, 0, len(all))
	for _, e := range all {
		if matches(e, params) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Sequence > matched[j].Sequence
	})

	total := int64(len(matched))
	offset := (params.Page - 1) * params.PageSize
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := offset + params.PageSize
	if params.PageSize <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *LedgerEntryRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LedgerEntry, len(s.entries[accountID]))
	copy(out, s.entries[accountID])
	return out, nil
}

func matches(e domain.LedgerEntry, p ports.EntryListParams) bool {
	if p.Type != nil && e.Type != *p.Type {
		return false
	}
	if p.Status != nil && e.Status != *p.Status {
		return false
	}
	if p.From != nil && e.CreatedAt.Before(time.Unix(*p.From, 0)) {
		return false
	}
	if p.To != nil && e.CreatedAt.After(time.Unix(*p.To, 0)) {
		return false
	}
	return true
}

// --- Audit ---

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *entry)
	return nil
}

// All returns a snapshot of the persisted audit rows.
func (r *AuditRepo) All() []domain.AuditLog {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, len(s.audits))
	copy(out, s.audits)
	return out
}
