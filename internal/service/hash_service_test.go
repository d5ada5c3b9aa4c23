package service

import (
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func sampleEntry() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     uuid.New(),
		Sequence:      1,
		Type:          domain.EntryTypeDeposit,
		Amount:        500,
		BalanceBefore: 0,
		BalanceAfter:  500,
		Status:        domain.EntryStatusCompleted,
		Actor:         "svc",
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC),
	}
}

func TestEntryHasher_Deterministic(t *testing.T) {
	h := NewEntryHasher()
	e := sampleEntry()

	first := h.Hash(GenesisHash, e)
	assert.Len(t, first, 64)
	assert.Equal(t, first, h.Hash(GenesisHash, e))
}

func TestEntryHasher_ChainsOnPrevHash(t *testing.T) {
	h := NewEntryHasher()
	e := sampleEntry()

	assert.NotEqual(t, h.Hash("aa", e), h.Hash("bb", e))
}

func TestEntryHasher_DetectsTampering(t *testing.T) {
	h := NewEntryHasher()
	e := sampleEntry()
	e.PrevHash = GenesisHash
	e.Hash = h.Hash(GenesisHash, e)

	assert.True(t, h.Verify(GenesisHash, e))

	e.Amount = 5000
	assert.False(t, h.Verify(GenesisHash, e))
}

func TestEntryHasher_IgnoresSubMicrosecond(t *testing.T) {
	h := NewEntryHasher()
	e := sampleEntry()
	before := h.Hash(GenesisHash, e)

	e.CreatedAt = e.CreatedAt.Add(999 * time.Nanosecond)
	assert.Equal(t, before, h.Hash(GenesisHash, e))
}
