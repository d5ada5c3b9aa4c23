package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryType is the kind of balance-affecting event.
type EntryType string

const (
	EntryTypeDeposit     EntryType = "deposit"
	EntryTypeWithdrawal  EntryType = "withdrawal"
	EntryTypeTransferIn  EntryType = "transfer_in"
	EntryTypeTransferOut EntryType = "transfer_out"
	EntryTypePayment     EntryType = "payment"
	EntryTypeRefund      EntryType = "refund"
)

// ParseEntryType reports whether s names a known entry type.
func ParseEntryType(s string) (EntryType, bool) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.IsValid()
}

// IsValid returns true for the six known entry types.
func (t EntryType) IsValid() bool {
	return t.IsCredit() || t.IsDebit()
}

// IsCredit returns true if the entry increases the balance.
func (t EntryType) IsCredit() bool {
	switch t {
	case EntryTypeDeposit, EntryTypeTransferIn, EntryTypeRefund:
		return true
	}
	return false
}

// IsDebit returns true if the entry decreases the balance.
func (t EntryType) IsDebit() bool {
	switch t {
	case EntryTypeWithdrawal, EntryTypeTransferOut, EntryTypePayment:
		return true
	}
	return false
}

// SignedAmount returns amount with the sign this type applies to a balance.
func (t EntryType) SignedAmount(amount int64) int64 {
	if t.IsDebit() {
		return -amount
	}
	return amount
}

// EntryStatus is the lifecycle state of a ledger entry.
// The ledger only ever writes completed entries; the other states are
// reserved for collaborators that stage work outside the ledger.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// LedgerEntry is an immutable record of one balance change.
type LedgerEntry struct {
	ID             uuid.UUID              `json:"id"`
	AccountID      uuid.UUID              `json:"account_id"`
	Sequence       int64                  `json:"sequence"`
	Type           EntryType              `json:"type"`
	Amount         int64                  `json:"amount"`
	BalanceBefore  int64                  `json:"balance_before"`
	BalanceAfter   int64                  `json:"balance_after"`
	RelatedUserID  *string                `json:"related_user_id,omitempty"`
	RelatedOrderID *string                `json:"related_order_id,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Status         EntryStatus            `json:"status"`
	ExternalTxHash *string                `json:"external_tx_hash,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Actor          string                 `json:"actor,omitempty"`
	PrevHash       string                 `json:"prev_hash"`
	Hash           string                 `json:"hash"`
	CreatedAt      time.Time              `json:"created_at"`
}

// IsBalanced returns true if before/after agree with type and amount.
func (e *LedgerEntry) IsBalanced() bool {
	return e.Amount > 0 && e.BalanceAfter == e.BalanceBefore+e.Type.SignedAmount(e.Amount)
}
