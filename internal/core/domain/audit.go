package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionDeposit        AuditAction = "DEPOSIT"
	AuditActionWithdrawal     AuditAction = "WITHDRAWAL"
	AuditActionPayment        AuditAction = "PAYMENT"
	AuditActionRefund         AuditAction = "REFUND"
	AuditActionTransferIn     AuditAction = "TRANSFER_IN"
	AuditActionTransferOut    AuditAction = "TRANSFER_OUT"
	AuditActionFreeze         AuditAction = "FREEZE"
	AuditActionUnfreeze       AuditAction = "UNFREEZE"
	AuditActionDeactivate     AuditAction = "DEACTIVATE"
	AuditActionReactivate     AuditAction = "REACTIVATE"
	AuditActionAccountCreated AuditAction = "ACCOUNT_CREATED"
)

// AuditActionForEntry maps a ledger entry type to its audit action.
func AuditActionForEntry(t EntryType) AuditAction {
	switch t {
	case EntryTypeDeposit:
		return AuditActionDeposit
	case EntryTypeWithdrawal:
		return AuditActionWithdrawal
	case EntryTypePayment:
		return AuditActionPayment
	case EntryTypeRefund:
		return AuditActionRefund
	case EntryTypeTransferIn:
		return AuditActionTransferIn
	default:
		return AuditActionTransferOut
	}
}

// ResourceTypeWalletAccount is the resource type of every ledger audit row.
const ResourceTypeWalletAccount = "wallet_account"

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      string      `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
