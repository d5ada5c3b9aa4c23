package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the caller role carried in a bearer token.
type Role string

const (
	RoleService Role = "service"
	RoleAdmin   Role = "admin"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string, role Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    Role
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached value or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ErrLockTimeout is returned by an AccountSerializer when exclusive access
// could not be obtained in time.
var ErrLockTimeout = errors.New("account lock wait timed out")

// AccountSerializer grants at most one holder per account at a time.
// The returned release func must be called exactly once.
type AccountSerializer interface {
	Acquire(ctx context.Context, accountID uuid.UUID) (func(), error)
}

// LedgerMetrics records ledger activity. Implementations must be safe for
// concurrent use.
type LedgerMetrics interface {
	ObserveMutation(entryType domain.EntryType, outcome string, d time.Duration)
	ObserveLockWait(d time.Duration)
	IncRetry(entryType domain.EntryType)
	IncCompensation(outcome string)
}

// --- Service Ports (Business Logic) ---

// MutationContext carries the caller-supplied context of one balance change.
type MutationContext struct {
	Actor          string
	RelatedUserID  *string
	RelatedOrderID *string
	Description    string
	ExternalTxHash *string
	Metadata       map[string]interface{}
	IdempotencyKey string
	ClientIP       string
}

// LedgerService is the only component allowed to change a wallet balance.
type LedgerService interface {
	Apply(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, amount int64, mc MutationContext) (*domain.LedgerEntry, error)
	Deposit(ctx context.Context, accountID uuid.UUID, amount int64, source string, mc MutationContext) (*domain.LedgerEntry, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, mc MutationContext) (*domain.LedgerEntry, error)
	Pay(ctx context.Context, accountID uuid.UUID, amount int64, orderID string, mc MutationContext) (*domain.LedgerEntry, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int64, orderID string, mc MutationContext) (*domain.LedgerEntry, error)
}

// AccountView is an account plus its balance at the fixed display rate.
type AccountView struct {
	Account      *domain.WalletAccount
	DisplayValue decimal.Decimal
}

// AccountService defines wallet account lifecycle and lookups.
type AccountService interface {
	GetOrCreate(ctx context.Context, ownerID string, currency domain.Currency) (*AccountView, bool, error) // view, created, error
	Get(ctx context.Context, id uuid.UUID) (*AccountView, error)
	GetByOwner(ctx context.Context, ownerID string) (*AccountView, error)
}

// FreezeService defines administrative holds on accounts.
type FreezeService interface {
	Freeze(ctx context.Context, accountID uuid.UUID, reason, actor string) (*domain.WalletAccount, error)
	Unfreeze(ctx context.Context, accountID uuid.UUID, actor string) (*domain.WalletAccount, error)
	Deactivate(ctx context.Context, accountID uuid.UUID, actor string) (*domain.WalletAccount, error)
	Reactivate(ctx context.Context, accountID uuid.UUID, actor string) (*domain.WalletAccount, error)
}

// TransferRequest holds validated input for a wallet-to-wallet transfer.
type TransferRequest struct {
	From           uuid.UUID
	To             uuid.UUID
	Amount         int64
	Description    string
	Actor          string
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// TransferResult holds both legs of a completed transfer.
type TransferResult struct {
	TransferID uuid.UUID
	Debit      *domain.LedgerEntry
	Credit     *domain.LedgerEntry
}

// TransferService moves value between two wallets.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// ReconcileReport is the outcome of replaying an account's ledger.
type ReconcileReport struct {
	AccountID       uuid.UUID `json:"account_id"`
	StoredBalance   int64     `json:"stored_balance"`
	ReplayedBalance int64     `json:"replayed_balance"`
	EntryCount      int       `json:"entry_count"`
	HashChainValid  bool      `json:"hash_chain_valid"`
	Consistent      bool      `json:"consistent"`
	Discrepancies   []string  `json:"discrepancies,omitempty"`
}

// HistoryService defines read access to committed ledger entries.
type HistoryService interface {
	GetHistory(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconcileReport, error)
}

// AuditService records audit events asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
