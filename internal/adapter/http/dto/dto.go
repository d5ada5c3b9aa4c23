package dto

import (
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
)

// CreateWalletRequest is the request body for get-or-create.
type CreateWalletRequest struct {
	OwnerID  string `json:"owner_id" binding:"required,max=128,safe_id"`
	Currency string `json:"currency" binding:"omitempty,currency_code"`
}

// MutationFields are shared by every balance-changing request. Identifier
// fields are stored exactly as sent.
type MutationFields struct {
	Amount         int64                  `json:"amount" binding:"required,gt=0"`
	Description    string                 `json:"description" binding:"max=500"`
	RelatedUserID  *string                `json:"related_user_id,omitempty" binding:"omitempty,max=128" sanitize:"-"`
	ExternalTxHash *string                `json:"external_tx_hash,omitempty" binding:"omitempty,max=128" sanitize:"-"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// DepositRequest is the request body for deposits.
type DepositRequest struct {
	MutationFields
	Source string `json:"source" binding:"max=64"`
}

// WithdrawRequest is the request body for withdrawals.
type WithdrawRequest struct {
	MutationFields
}

// OrderRequest is the request body for payments and refunds.
type OrderRequest struct {
	MutationFields
	OrderID string `json:"order_id" binding:"required,max=100" sanitize:"-"`
}

// TransferRequest is the request body for wallet-to-wallet transfers.
type TransferRequest struct {
	FromWalletID string                 `json:"from_wallet_id" binding:"required,uuid"`
	ToWalletID   string                 `json:"to_wallet_id" binding:"required,uuid"`
	Amount       int64                  `json:"amount" binding:"required,gt=0"`
	Description  string                 `json:"description" binding:"max=500"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// FreezeRequest is the request body for freezing a wallet.
type FreezeRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// HistoryQuery holds the query parameters of the history endpoint.
type HistoryQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Type     string `form:"type" binding:"omitempty,entry_type"`
	Status   string `form:"status" binding:"omitempty,oneof=pending completed failed cancelled"`
	From     *int64 `form:"from"`
	To       *int64 `form:"to"`
}

// WalletResponse is the public view of a wallet account.
type WalletResponse struct {
	ID                   string  `json:"id"`
	OwnerID              string  `json:"owner_id"`
	DisplayAddress       string  `json:"display_address"`
	Balance              int64   `json:"balance"`
	DisplayValue         string  `json:"display_value,omitempty"`
	Currency             string  `json:"currency"`
	IsActive             bool    `json:"is_active"`
	IsFrozen             bool    `json:"is_frozen"`
	FrozenReason         *string `json:"frozen_reason,omitempty"`
	FrozenAt             *string `json:"frozen_at,omitempty"`
	DailyWithdrawalLimit int64   `json:"daily_withdrawal_limit"`
	DailyWithdrawn       int64   `json:"daily_withdrawn"`
	TotalDeposited       int64   `json:"total_deposited"`
	TotalWithdrawn       int64   `json:"total_withdrawn"`
	TotalSpent           int64   `json:"total_spent"`
	TotalReceived        int64   `json:"total_received"`
	LastActivity         *string `json:"last_activity,omitempty"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

// EntryResponse is the public view of a ledger entry.
type EntryResponse struct {
	ID             string                 `json:"id"`
	WalletID       string                 `json:"wallet_id"`
	Sequence       int64                  `json:"sequence"`
	Type           string                 `json:"type"`
	Amount         int64                  `json:"amount"`
	BalanceBefore  int64                  `json:"balance_before"`
	BalanceAfter   int64                  `json:"balance_after"`
	RelatedUserID  *string                `json:"related_user_id,omitempty"`
	RelatedOrderID *string                `json:"related_order_id,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Status         string                 `json:"status"`
	ExternalTxHash *string                `json:"external_tx_hash,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Actor          string                 `json:"actor,omitempty"`
	Hash           string                 `json:"hash"`
	CreatedAt      string                 `json:"created_at"`
}

// TransferResponse is the response body of a completed transfer.
type TransferResponse struct {
	TransferID string        `json:"transfer_id"`
	Debit      EntryResponse `json:"debit"`
	Credit     EntryResponse `json:"credit"`
}

// ToWalletResponse converts an account view to its public representation.
func ToWalletResponse(v *ports.AccountView) WalletResponse {
	resp := ToAccountResponse(v.Account)
	resp.DisplayValue = v.DisplayValue.String()
	return resp
}

// ToAccountResponse converts a bare account; display_value is omitted.
func ToAccountResponse(a *domain.WalletAccount) WalletResponse {
	return WalletResponse{
		ID:                   a.ID.String(),
		OwnerID:              a.OwnerID,
		DisplayAddress:       a.DisplayAddress,
		Balance:              a.Balance,
		Currency:             string(a.Currency),
		IsActive:             a.IsActive,
		IsFrozen:             a.IsFrozen,
		FrozenReason:         a.FrozenReason,
		FrozenAt:             formatTimePtr(a.FrozenAt),
		DailyWithdrawalLimit: a.DailyWithdrawalLimit,
		DailyWithdrawn:       a.DailyWithdrawn,
		TotalDeposited:       a.TotalDeposited,
		TotalWithdrawn:       a.TotalWithdrawn,
		TotalSpent:           a.TotalSpent,
		TotalReceived:        a.TotalReceived,
		LastActivity:         formatTimePtr(a.LastActivity),
		CreatedAt:            formatTime(a.CreatedAt),
		UpdatedAt:            formatTime(a.UpdatedAt),
	}
}

// ToEntryResponse converts a ledger entry to its public representation.
func ToEntryResponse(e *domain.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:             e.ID.String(),
		WalletID:       e.AccountID.String(),
		Sequence:       e.Sequence,
		Type:           string(e.Type),
		Amount:         e.Amount,
		BalanceBefore:  e.BalanceBefore,
		BalanceAfter:   e.BalanceAfter,
		RelatedUserID:  e.RelatedUserID,
		RelatedOrderID: e.RelatedOrderID,
		Description:    e.Description,
		Status:         string(e.Status),
		ExternalTxHash: e.ExternalTxHash,
		Metadata:       e.Metadata,
		Actor:          e.Actor,
		Hash:           e.Hash,
		CreatedAt:      formatTime(e.CreatedAt),
	}
}

// ToEntryResponses converts a page of entries.
func ToEntryResponses(entries []domain.LedgerEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, ToEntryResponse(&entries[i]))
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
