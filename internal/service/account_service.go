package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountDefaults are applied to lazily created accounts.
type AccountDefaults struct {
	Currency             domain.Currency
	DailyWithdrawalLimit int64
}

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	accounts ports.WalletAccountRepository
	audit    ports.AuditService
	defaults AccountDefaults
	rates    map[domain.Currency]decimal.Decimal
	log      zerolog.Logger
	now      func() time.Time
}

// NewAccountService creates a new AccountServiceImpl. audit may be nil.
func NewAccountService(
	accounts ports.WalletAccountRepository,
	audit ports.AuditService,
	defaults AccountDefaults,
	rates map[domain.Currency]decimal.Decimal,
	log zerolog.Logger,
) *AccountServiceImpl {
	if defaults.Currency == "" {
		defaults.Currency = domain.CurrencyTKN
	}
	return &AccountServiceImpl{
		accounts: accounts,
		audit:    audit,
		defaults: defaults,
		rates:    rates,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ParseDisplayRates converts configured currency → decimal strings.
// Keys are matched case-insensitively.
func ParseDisplayRates(raw map[string]string) (map[domain.Currency]decimal.Decimal, error) {
	rates := make(map[domain.Currency]decimal.Decimal, len(raw))
	for k, v := range raw {
		c, ok := domain.ParseCurrency(k)
		if !ok {
			return nil, fmt.Errorf("display rate for unsupported currency %q", k)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("display rate for %s: %w", c, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("display rate for %s must not be negative", c)
		}
		rates[c] = rate
	}
	return rates, nil
}

// GetOrCreate returns the owner's account, creating it on first use.
// Concurrent first calls converge on a single account.
func (s *AccountServiceImpl) GetOrCreate(ctx context.Context, ownerID string, currency domain.Currency) (*ports.AccountView, bool, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, false, apperror.Validation("owner_id is required")
	}
	if currency == "" {
		currency = s.defaults.Currency
	}
	if !currency.IsValid() {
		return nil, false, apperror.ErrUnsupportedCurrency(string(currency))
	}

	existing, err := s.accounts.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, false, storageError("get wallet by owner", err)
	}
	if existing != nil {
		return s.view(existing), false, nil
	}

	acct := domain.NewWalletAccount(ownerID, currency, s.defaults.DailyWithdrawalLimit, s.now().Truncate(time.Microsecond))
	inserted, err := s.accounts.Insert(ctx, acct)
	if err != nil {
		return nil, false, storageError("insert wallet", err)
	}
	if !inserted {
		// Lost the race to a concurrent creator.
		existing, err = s.accounts.GetByOwnerID(ctx, ownerID)
		if err != nil {
			return nil, false, storageError("get wallet by owner", err)
		}
		if existing == nil {
			return nil, false, apperror.InternalError(fmt.Errorf("wallet for owner %s neither inserted nor found", ownerID))
		}
		return s.view(existing), false, nil
	}

	s.log.Info().
		Str("account_id", acct.ID.String()).
		Str("owner_id", ownerID).
		Str("currency", string(currency)).
		Msg("wallet account created")

	if s.audit != nil {
		details, _ := json.Marshal(map[string]interface{}{
			"owner_id":               ownerID,
			"currency":               currency,
			"daily_withdrawal_limit": acct.DailyWithdrawalLimit,
		})
		s.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      ownerID,
			Action:       domain.AuditActionAccountCreated,
			ResourceType: domain.ResourceTypeWalletAccount,
			ResourceID:   acct.ID.String(),
			Details:      string(details),
			CreatedAt:    acct.CreatedAt,
		})
	}

	return s.view(acct), true, nil
}

// Get returns an account by id.
func (s *AccountServiceImpl) Get(ctx context.Context, id uuid.UUID) (*ports.AccountView, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get wallet", err)
	}
	if acct == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return s.view(acct), nil
}

// GetByOwner returns an account by owner id.
func (s *AccountServiceImpl) GetByOwner(ctx context.Context, ownerID string) (*ports.AccountView, error) {
	acct, err := s.accounts.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, storageError("get wallet by owner", err)
	}
	if acct == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return s.view(acct), nil
}

func (s *AccountServiceImpl) view(acct *domain.WalletAccount) *ports.AccountView {
	rate, ok := s.rates[acct.Currency]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return &ports.AccountView{
		Account:      acct,
		DisplayValue: decimal.NewFromInt(acct.Balance).Mul(rate),
	}
}
