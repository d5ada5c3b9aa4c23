// Package memory is a transactional in-memory implementation of the
// storage ports. Writes are staged on the transaction and applied
// atomically on Commit after re-validating account versions.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store holds committed state shared by the repositories built on it.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.WalletAccount
	owners   map[string]uuid.UUID
	entries  map[uuid.UUID][]domain.LedgerEntry
	audits   []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*domain.WalletAccount),
		owners:   make(map[string]uuid.UUID),
		entries:  make(map[uuid.UUID][]domain.LedgerEntry),
	}
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(_ context.Context) (pgx.Tx, error) {
	return &Tx{
		store:    s,
		accounts: make(map[uuid.UUID]*domain.WalletAccount),
		expected: make(map[uuid.UUID]int64),
	}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// Tx is a staged unit of work. Only Begin, Commit and Rollback carry
// meaning; the SQL methods exist to satisfy pgx.Tx and are unsupported.
type Tx struct {
	store    *Store
	accounts map[uuid.UUID]*domain.WalletAccount
	expected map[uuid.UUID]int64
	entries  []domain.LedgerEntry
	closed   bool
}

var errUnsupported = errors.New("memory tx: SQL is not supported")

func (t *Tx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, want := range t.expected {
		cur, ok := s.accounts[id]
		if !ok {
			return fmt.Errorf("commit: account %s vanished", id)
		}
		if cur.Version != want {
			return fmt.Errorf("commit account %s: %w", id, ports.ErrVersionConflict)
		}
	}
	for _, e := range t.entries {
		for _, existing := range s.entries[e.AccountID] {
			if existing.Sequence == e.Sequence {
				return fmt.Errorf("commit entry %s seq %d: %w", e.AccountID, e.Sequence, ports.ErrVersionConflict)
			}
		}
	}

	for id, acct := range t.accounts {
		s.accounts[id] = acct
	}
	for _, e := range t.entries {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
	}
	return nil
}

func (t *Tx) Rollback(_ context.Context) error {
	t.closed = true
	t.accounts = nil
	t.entries = nil
	return nil
}

func (t *Tx) Begin(_ context.Context) (pgx.Tx, error) { return nil, errUnsupported }
func (t *Tx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errUnsupported
}
func (t *Tx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *Tx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errUnsupported
}
func (t *Tx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errUnsupported
}
func (t *Tx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errUnsupported
}
func (t *Tx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }
func (t *Tx) Conn() *pgx.Conn                                         { return nil }

func asTx(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt == nil {
		return nil, fmt.Errorf("memory store: foreign transaction %T", tx)
	}
	if mt.closed {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}
