package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerConfig tunes the balance mutator.
type LedgerConfig struct {
	Retry                  RetryPolicy
	BlockCreditsWhenFrozen bool
	IdempotencyTTL         time.Duration
}

// LedgerOption customizes a LedgerServiceImpl.
type LedgerOption func(*LedgerServiceImpl)

// WithClock overrides the time source used for entry timestamps and the
// withdrawal window.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerServiceImpl) { s.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.LedgerMetrics) LedgerOption {
	return func(s *LedgerServiceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithIdempotencyCache enables Idempotency-Key handling.
func WithIdempotencyCache(c ports.IdempotencyCache) LedgerOption {
	return func(s *LedgerServiceImpl) { s.idempCache = c }
}

// WithAudit sets the audit sink notified after each commit.
func WithAudit(a ports.AuditService) LedgerOption {
	return func(s *LedgerServiceImpl) { s.audit = a }
}

// LedgerServiceImpl implements ports.LedgerService. It is the only writer
// of WalletAccount.Balance.
type LedgerServiceImpl struct {
	accounts   ports.WalletAccountRepository
	entries    ports.LedgerEntryRepository
	transactor ports.DBTransactor
	serializer ports.AccountSerializer
	limiter    *WithdrawalLimiter
	hasher     *EntryHasher
	idempCache ports.IdempotencyCache
	audit      ports.AuditService
	metrics    ports.LedgerMetrics
	cfg        LedgerConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	accounts ports.WalletAccountRepository,
	entries ports.LedgerEntryRepository,
	transactor ports.DBTransactor,
	serializer ports.AccountSerializer,
	limiter *WithdrawalLimiter,
	cfg LedgerConfig,
	log zerolog.Logger,
	opts ...LedgerOption,
) *LedgerServiceImpl {
	s := &LedgerServiceImpl{
		accounts:   accounts,
		entries:    entries,
		transactor: transactor,
		serializer: serializer,
		limiter:    limiter,
		hasher:     NewEntryHasher(),
		metrics:    noopMetrics{},
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply validates and commits one balance change. Validation order:
// entry type, amount, active, frozen, balance (debits), overflow, daily limit
// (withdrawals). Transient failures are retried with bounded backoff.
func (s *LedgerServiceImpl) Apply(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, amount int64, mc ports.MutationContext) (*domain.LedgerEntry, error) {
	entry, _, err := s.apply(ctx, accountID, entryType, amount, mc, false)
	return entry, err
}

// ApplyOrReplay is Apply that also reports whether the entry was committed
// by an earlier call with the same idempotency key.
func (s *LedgerServiceImpl) ApplyOrReplay(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, amount int64, mc ports.MutationContext) (*domain.LedgerEntry, bool, error) {
	return s.apply(ctx, accountID, entryType, amount, mc, false)
}

// Recorded returns the entry committed earlier under key, or nil when there
// is none or idempotency is disabled.
func (s *LedgerServiceImpl) Recorded(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, key string) *domain.LedgerEntry {
	if key == "" || s.idempCache == nil {
		return nil
	}
	return s.lookupIdempotent(ctx, domain.BuildIdempotencyKey(accountID, entryType, key))
}

// Deposit credits funds arriving from source (e.g. "card", "chain").
func (s *LedgerServiceImpl) Deposit(ctx context.Context, accountID uuid.UUID, amount int64, source string, mc ports.MutationContext) (*domain.LedgerEntry, error) {
	mc.Metadata = withMeta(mc.Metadata, "source", source)
	if mc.Description == "" && source != "" {
		mc.Description = "deposit via " + source
	}
	return s.Apply(ctx, accountID, domain.EntryTypeDeposit, amount, mc)
}

// Withdraw debits funds leaving the platform, subject to the daily limit.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, mc ports.MutationContext) (*domain.LedgerEntry, error) {
	return s.Apply(ctx, accountID, domain.EntryTypeWithdrawal, amount, mc)
}

// Pay debits the wallet for an order.
func (s *LedgerServiceImpl) Pay(ctx context.Context, accountID uuid.UUID, amount int64, orderID string, mc ports.MutationContext) (*domain.LedgerEntry, error) {
	if orderID != "" {
		mc.RelatedOrderID = &orderID
	}
	return s.Apply(ctx, accountID, domain.EntryTypePayment, amount, mc)
}

// Refund credits the wallet for a returned order.
func (s *LedgerServiceImpl) Refund(ctx context.Context, accountID uuid.UUID, amount int64, orderID string, mc ports.MutationContext) (*domain.LedgerEntry, error) {
	if orderID != "" {
		mc.RelatedOrderID = &orderID
	}
	return s.Apply(ctx, accountID, domain.EntryTypeRefund, amount, mc)
}

// Compensate credits amount back to an account whose transfer debit could
// not be matched by a credit. Freeze and active checks do not apply.
func (s *LedgerServiceImpl) Compensate(ctx context.Context, accountID uuid.UUID, amount int64, mc ports.MutationContext) (*domain.LedgerEntry, error) {
	entry, _, err := s.apply(ctx, accountID, domain.EntryTypeRefund, amount, mc, true)
	return entry, err
}

func (s *LedgerServiceImpl) apply(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, amount int64, mc ports.MutationContext, compensation bool) (*domain.LedgerEntry, bool, error) {
	if !entryType.IsValid() {
		return nil, false, apperror.ErrInvalidEntryType(string(entryType))
	}
	if amount <= 0 {
		return nil, false, apperror.ErrInvalidAmount()
	}

	start := time.Now()

	var idempKey string
	if mc.IdempotencyKey != "" && s.idempCache != nil {
		idempKey = domain.BuildIdempotencyKey(accountID, entryType, mc.IdempotencyKey)
		if cached := s.lookupIdempotent(ctx, idempKey); cached != nil {
			return cached, true, nil
		}
	}

	var (
		entry  *domain.LedgerEntry
		replay bool
	)
	err := retryTransient(ctx, s.cfg.Retry, func() error {
		e, cached, err := s.applyOnce(ctx, accountID, entryType, amount, mc, idempKey, compensation)
		if err != nil {
			return err
		}
		entry, replay = e, cached
		return nil
	}, func(attempt int, err error) {
		s.metrics.IncRetry(entryType)
		s.log.Warn().Err(err).
			Int("attempt", attempt).
			Str("account_id", accountID.String()).
			Str("type", string(entryType)).
			Msg("transient ledger failure, retrying")
	})
	if err != nil {
		s.metrics.ObserveMutation(entryType, apperror.Kind(err), time.Since(start))
		return nil, false, err
	}
	if replay {
		return entry, true, nil
	}

	s.metrics.ObserveMutation(entryType, "ok", time.Since(start))
	s.emitAudit(ctx, entry, mc)

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("account_id", accountID.String()).
		Str("type", string(entryType)).
		Int64("amount", amount).
		Int64("balance_before", entry.BalanceBefore).
		Int64("balance_after", entry.BalanceAfter).
		Str("actor", mc.Actor).
		Msg("balance mutated")

	return entry, false, nil
}

// applyOnce is a single attempt: exclusive access, fresh read, validate,
// write, commit. cached is true when an earlier attempt with the same
// idempotency key already committed.
func (s *LedgerServiceImpl) applyOnce(
	ctx context.Context,
	accountID uuid.UUID,
	entryType domain.EntryType,
	amount int64,
	mc ports.MutationContext,
	idempKey string,
	compensation bool,
) (entry *domain.LedgerEntry, cached bool, err error) {
	waitStart := time.Now()
	release, err := s.serializer.Acquire(ctx, accountID)
	s.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		return nil, false, lockError(err)
	}
	defer release()

	// Re-check under the lock: a concurrent request with the same key may
	// have committed while this one was waiting.
	if idempKey != "" {
		if prior := s.lookupIdempotent(ctx, idempKey); prior != nil {
			return prior, true, nil
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	acct, err := s.accounts.GetByIDForUpdate(ctx, dbTx, accountID)
	if err != nil {
		return nil, false, storageError("lock wallet", err)
	}
	if acct == nil {
		return nil, false, apperror.ErrWalletNotFound()
	}

	if !compensation {
		if err := s.checkStatus(acct, entryType); err != nil {
			return nil, false, err
		}
	}

	if entryType.IsDebit() && acct.Balance < amount {
		return nil, false, apperror.ErrInsufficientBalance()
	}
	if acct.WouldOverflow(entryType, amount) {
		return nil, false, apperror.ErrBalanceOverflow()
	}

	now := s.now().Truncate(time.Microsecond)

	if entryType == domain.EntryTypeWithdrawal {
		reset, err := s.limiter.Check(acct, amount, now)
		if err != nil {
			if reset {
				s.persistReset(ctx, dbTx, acct)
			}
			return nil, false, err
		}
		s.limiter.Record(acct, amount)
	}

	before := acct.Balance
	entry = &domain.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      acct.ID,
		Sequence:       acct.LastEntrySequence + 1,
		Type:           entryType,
		Amount:         amount,
		BalanceBefore:  before,
		BalanceAfter:   before + entryType.SignedAmount(amount),
		RelatedUserID:  mc.RelatedUserID,
		RelatedOrderID: mc.RelatedOrderID,
		Description:    mc.Description,
		Status:         domain.EntryStatusCompleted,
		ExternalTxHash: mc.ExternalTxHash,
		Metadata:       mc.Metadata,
		Actor:          mc.Actor,
		PrevHash:       acct.LastEntryHash,
		CreatedAt:      now,
	}
	entry.Hash = s.hasher.Hash(entry.PrevHash, entry)

	acct.Balance = entry.BalanceAfter
	acct.AddToAggregate(entryType, amount)
	acct.LastActivity = &now
	acct.LastEntryHash = entry.Hash
	acct.LastEntrySequence = entry.Sequence
	acct.UpdatedAt = now

	if err := acct.CheckInvariants(); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("invariant check on %s: %w", acct.ID, err))
	}

	if err := s.accounts.Update(ctx, dbTx, acct); err != nil {
		return nil, false, storageError("update wallet", err)
	}
	if err := s.entries.Create(ctx, dbTx, entry); err != nil {
		return nil, false, storageError("append entry", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		if err := s.resolveCommit(ctx, entry, err); err != nil {
			return nil, false, err
		}
	}

	if idempKey != "" {
		s.rememberIdempotent(ctx, idempKey, entry)
	}

	return entry, false, nil
}

// resolveCommit decides what a failed Commit means. The write may have
// landed before the error surfaced, so the account is re-read while the
// serializer is still held: nil means entry is durable, a transient error
// means it definitely is not, and anything else is reported as unknown.
func (s *LedgerServiceImpl) resolveCommit(ctx context.Context, entry *domain.LedgerEntry, commitErr error) error {
	if errors.Is(commitErr, ports.ErrVersionConflict) {
		return storageError("commit", commitErr)
	}

	acct, err := s.accounts.GetByID(context.WithoutCancel(ctx), entry.AccountID)
	if err != nil || acct == nil {
		s.log.Error().Err(commitErr).AnErr("reread_error", err).
			Str("account_id", entry.AccountID.String()).
			Int64("sequence", entry.Sequence).
			Msg("commit outcome unknown")
		return apperror.ErrOutcomeUnknown(fmt.Errorf("commit: %w", commitErr))
	}

	switch {
	case acct.LastEntrySequence < entry.Sequence:
		return storageError("commit", commitErr)
	case acct.LastEntrySequence == entry.Sequence && acct.LastEntryHash == entry.Hash:
		s.log.Warn().Err(commitErr).
			Str("account_id", entry.AccountID.String()).
			Int64("sequence", entry.Sequence).
			Msg("commit reported failure but entry is durable")
		return nil
	default:
		s.log.Error().Err(commitErr).
			Str("account_id", entry.AccountID.String()).
			Int64("sequence", entry.Sequence).
			Int64("stored_sequence", acct.LastEntrySequence).
			Msg("commit outcome unknown")
		return apperror.ErrOutcomeUnknown(fmt.Errorf("commit: %w", commitErr))
	}
}

func (s *LedgerServiceImpl) checkStatus(acct *domain.WalletAccount, entryType domain.EntryType) error {
	if !acct.IsActive {
		return apperror.ErrWalletInactive()
	}
	if acct.IsFrozen && (entryType.IsDebit() || s.cfg.BlockCreditsWhenFrozen) {
		return apperror.ErrWalletFrozen()
	}
	return nil
}

// persistReset commits a window reset on its own so that a rejected
// withdrawal still leaves the account with the fresh window.
func (s *LedgerServiceImpl) persistReset(ctx context.Context, dbTx pgx.Tx, acct *domain.WalletAccount) {
	acct.UpdatedAt = s.now()
	if err := s.accounts.Update(ctx, dbTx, acct); err != nil {
		s.log.Warn().Err(err).Str("account_id", acct.ID.String()).Msg("failed to persist withdrawal window reset")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		s.log.Warn().Err(err).Str("account_id", acct.ID.String()).Msg("failed to commit withdrawal window reset")
	}
}

func (s *LedgerServiceImpl) lookupIdempotent(ctx context.Context, key string) *domain.LedgerEntry {
	raw, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed, proceeding without it")
		return nil
	}
	if raw == nil {
		return nil
	}
	var entry domain.LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable idempotency record")
		return nil
	}
	return &entry
}

func (s *LedgerServiceImpl) rememberIdempotent(ctx context.Context, key string, entry *domain.LedgerEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.idempCache.Set(ctx, key, raw, s.cfg.IdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency record")
	}
}

type mutationAuditDetails struct {
	EntryID       string    `json:"entry_id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Actor         string    `json:"actor"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s *LedgerServiceImpl) emitAudit(ctx context.Context, entry *domain.LedgerEntry, mc ports.MutationContext) {
	if s.audit == nil {
		return
	}
	details, _ := json.Marshal(mutationAuditDetails{
		EntryID:       entry.ID.String(),
		Type:          string(entry.Type),
		Amount:        entry.Amount,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
		Actor:         mc.Actor,
		Timestamp:     entry.CreatedAt,
	})
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      mc.Actor,
		Action:       domain.AuditActionForEntry(entry.Type),
		ResourceType: domain.ResourceTypeWalletAccount,
		ResourceID:   entry.AccountID.String(),
		Details:      string(details),
		IPAddress:    mc.ClientIP,
		CreatedAt:    entry.CreatedAt,
	})
}

// lockError maps serializer failures. Timeouts are retryable conflicts.
func lockError(err error) error {
	if errors.Is(err, ports.ErrLockTimeout) {
		return apperror.ErrConcurrentModification(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperror.InternalError(fmt.Errorf("acquire account lock: %w", err))
	}
	return apperror.ErrPersistenceFailure(fmt.Errorf("acquire account lock: %w", err))
}

// storageError maps repository failures onto the two transient kinds.
func storageError(op string, err error) error {
	if errors.Is(err, ports.ErrVersionConflict) {
		return apperror.ErrConcurrentModification(fmt.Errorf("%s: %w", op, err))
	}
	return apperror.ErrPersistenceFailure(fmt.Errorf("%s: %w", op, err))
}

func withMeta(m map[string]interface{}, key string, value interface{}) map[string]interface{} {
	if value == "" {
		return m
	}
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}
