package service

import (
	"encoding/hex"
	"strconv"
	"strings"

	"wallet-ledger/internal/core/domain"

	"golang.org/x/crypto/blake2b"
)

// GenesisHash is the previous-hash value of an account's first entry.
const GenesisHash = ""

// EntryHasher chains ledger entries with BLAKE2b-256 so that a rewritten or
// removed entry breaks every hash after it.
type EntryHasher struct{}

// NewEntryHasher creates a new entry hasher.
func NewEntryHasher() *EntryHasher {
	return &EntryHasher{}
}

// Hash returns the hex digest of prevHash followed by the entry's canonical
// fields. Metadata is not covered.
func (h *EntryHasher) Hash(prevHash string, e *domain.LedgerEntry) string {
	sum := blake2b.Sum256([]byte(prevHash + "|" + canonical(e)))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether e.Hash matches its contents and prevHash.
func (h *EntryHasher) Verify(prevHash string, e *domain.LedgerEntry) bool {
	return e.PrevHash == prevHash && h.Hash(prevHash, e) == e.Hash
}

// canonical uses microsecond timestamps, the resolution Postgres stores.
func canonical(e *domain.LedgerEntry) string {
	fields := []string{
		e.ID.String(),
		e.AccountID.String(),
		strconv.FormatInt(e.Sequence, 10),
		string(e.Type),
		strconv.FormatInt(e.Amount, 10),
		strconv.FormatInt(e.BalanceBefore, 10),
		strconv.FormatInt(e.BalanceAfter, 10),
		deref(e.RelatedUserID),
		deref(e.RelatedOrderID),
		deref(e.ExternalTxHash),
		e.Description,
		string(e.Status),
		e.Actor,
		strconv.FormatInt(e.CreatedAt.UnixMicro(), 10),
	}
	return strings.Join(fields, "|")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
