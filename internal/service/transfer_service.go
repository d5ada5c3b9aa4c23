package service

import (
	"context"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// compensatingLedger is the part of the ledger a transfer saga needs.
type compensatingLedger interface {
	ApplyOrReplay(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, amount int64, mc ports.MutationContext) (*domain.LedgerEntry, bool, error)
	Compensate(ctx context.Context, accountID uuid.UUID, amount int64, mc ports.MutationContext) (*domain.LedgerEntry, error)
	Recorded(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType, key string) *domain.LedgerEntry
}

// transferNamespace seeds transfer IDs derived from idempotency keys.
var transferNamespace = uuid.MustParse("8d3e52a4-6b0f-4f7e-9c1a-5e2b7d40c913")

// TransferServiceImpl implements ports.TransferService as a two-step saga:
// debit the source, then credit the destination, compensating the debit
// with a refund entry if the credit fails.
type TransferServiceImpl struct {
	ledger   compensatingLedger
	accounts ports.WalletAccountRepository
	metrics  ports.LedgerMetrics
	retry    RetryPolicy
	log      zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl. metrics may be nil.
func NewTransferService(
	ledger compensatingLedger,
	accounts ports.WalletAccountRepository,
	metrics ports.LedgerMetrics,
	retry RetryPolicy,
	log zerolog.Logger,
) *TransferServiceImpl {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TransferServiceImpl{
		ledger:   ledger,
		accounts: accounts,
		metrics:  metrics,
		retry:    retry,
		log:      log,
	}
}

// Transfer moves req.Amount from req.From to req.To. With an idempotency
// key the transfer ID and every leg key are derived from it, so a retry
// resumes the saga where the earlier attempt stopped instead of starting a
// new one.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.From == req.To {
		return nil, apperror.ErrInvalidTransfer("source and destination wallets must differ")
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := s.checkCounterparties(ctx, req.From, req.To); err != nil {
		return nil, err
	}

	transferID := transferIDFor(req)
	fromStr, toStr := req.From.String(), req.To.String()

	debitCtx := ports.MutationContext{
		Actor:          req.Actor,
		RelatedUserID:  &toStr,
		Description:    req.Description,
		Metadata:       transferMeta(req.Metadata, transferID, "counterparty", toStr),
		IdempotencyKey: legKey(req.IdempotencyKey, "debit"),
	}
	debit, replayed, err := s.ledger.ApplyOrReplay(ctx, req.From, domain.EntryTypeTransferOut, req.Amount, debitCtx)
	if err != nil {
		return nil, err
	}
	if replayed {
		if err := s.checkReplayedDebit(ctx, req, transferID, debit); err != nil {
			return nil, err
		}
	}

	creditCtx := ports.MutationContext{
		Actor:          req.Actor,
		RelatedUserID:  &fromStr,
		Description:    req.Description,
		Metadata:       transferMeta(req.Metadata, transferID, "counterparty", fromStr),
		IdempotencyKey: legKey(req.IdempotencyKey, "credit"),
	}
	credit, _, err := s.ledger.ApplyOrReplay(ctx, req.To, domain.EntryTypeTransferIn, req.Amount, creditCtx)
	if err != nil {
		s.log.Warn().Err(err).
			Str("transfer_id", transferID.String()).
			Str("from", fromStr).
			Str("to", toStr).
			Int64("amount", req.Amount).
			Bool("debit_replayed", replayed).
			Msg("transfer credit failed, compensating debit")

		if cerr := s.compensate(ctx, req, transferID, debit); cerr != nil {
			s.metrics.IncCompensation("failed")
			s.log.Error().Err(cerr).
				Str("transfer_id", transferID.String()).
				Str("debit_entry_id", debit.ID.String()).
				Str("from", fromStr).
				Int64("amount", req.Amount).
				Msg("transfer compensation failed, source debited without matching credit")
			return nil, apperror.ErrCompensationFailure(fmt.Errorf("transfer %s: credit failed (%v), compensation failed: %w", transferID, err, cerr))
		}
		s.metrics.IncCompensation("ok")
		return nil, err
	}

	s.log.Info().
		Str("transfer_id", transferID.String()).
		Str("from", fromStr).
		Str("to", toStr).
		Int64("amount", req.Amount).
		Bool("replayed", replayed).
		Msg("transfer completed")

	return &ports.TransferResult{
		TransferID: transferID,
		Debit:      debit,
		Credit:     credit,
	}, nil
}

// checkReplayedDebit decides whether a debit committed by an earlier call
// may carry this call forward. A debit that was already refunded, or that
// belongs to a different transfer, must not be credited again.
func (s *TransferServiceImpl) checkReplayedDebit(ctx context.Context, req ports.TransferRequest, transferID uuid.UUID, debit *domain.LedgerEntry) error {
	if debit.Amount != req.Amount || debit.Metadata["transfer_id"] != transferID.String() {
		return apperror.ErrInvalidTransfer("idempotency key was already used for a different transfer")
	}
	if s.ledger.Recorded(ctx, req.From, domain.EntryTypeRefund, compensationKey(transferID)) != nil {
		s.log.Info().
			Str("transfer_id", transferID.String()).
			Str("from", req.From.String()).
			Msg("transfer retried after compensation, rejecting")
		return apperror.ErrTransferReversed()
	}
	return nil
}

// checkCounterparties rejects transfers the credit leg could never accept
// before any money moves. The ledger still re-checks under the lock.
func (s *TransferServiceImpl) checkCounterparties(ctx context.Context, from, to uuid.UUID) error {
	src, err := s.accounts.GetByID(ctx, from)
	if err != nil {
		return storageError("get source wallet", err)
	}
	if src == nil {
		return apperror.ErrWalletNotFound()
	}
	dst, err := s.accounts.GetByID(ctx, to)
	if err != nil {
		return storageError("get destination wallet", err)
	}
	if dst == nil {
		return apperror.ErrWalletNotFound()
	}
	if src.Currency != dst.Currency {
		return apperror.ErrInvalidTransfer(fmt.Sprintf("currency mismatch: %s to %s", src.Currency, dst.Currency))
	}
	return nil
}

// compensate credits the debit back to the source. It runs detached from the
// caller's cancellation so an abandoned request cannot strand the debit.
func (s *TransferServiceImpl) compensate(ctx context.Context, req ports.TransferRequest, transferID uuid.UUID, debit *domain.LedgerEntry) error {
	cctx := context.WithoutCancel(ctx)
	mc := ports.MutationContext{
		Actor:       req.Actor,
		Description: "compensation for failed transfer " + transferID.String(),
		Metadata: map[string]interface{}{
			"compensates": debit.ID.String(),
			"transfer_id": transferID.String(),
		},
		IdempotencyKey: compensationKey(transferID),
	}
	return retryTransient(cctx, s.retry, func() error {
		_, err := s.ledger.Compensate(cctx, req.From, req.Amount, mc)
		return err
	}, func(attempt int, err error) {
		s.log.Warn().Err(err).Int("attempt", attempt).Str("transfer_id", transferID.String()).Msg("compensation attempt failed, retrying")
	})
}

func transferMeta(base map[string]interface{}, transferID uuid.UUID, key, value string) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	out["transfer_id"] = transferID.String()
	out[key] = value
	return out
}

// transferIDFor derives the transfer ID from the idempotency key when one
// is given. Without a key every call is a new transfer.
func transferIDFor(req ports.TransferRequest) uuid.UUID {
	if req.IdempotencyKey == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(transferNamespace, []byte(req.From.String()+"|"+req.To.String()+"|"+req.IdempotencyKey))
}

func compensationKey(transferID uuid.UUID) string {
	return "compensate:" + transferID.String()
}

func legKey(key, leg string) string {
	if key == "" {
		return ""
	}
	return key + ":" + leg
}
