package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet lookups and balance mutations.
type WalletHandler struct {
	accountSvc ports.AccountService
	ledgerSvc  ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(accountSvc ports.AccountService, ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{
		accountSvc: accountSvc,
		ledgerSvc:  ledgerSvc,
	}
}

// Create handles POST /api/v1/wallets (get-or-create by owner).
func (h *WalletHandler) Create(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	var currency domain.Currency
	if req.Currency != "" {
		parsed, ok := domain.ParseCurrency(req.Currency)
		if !ok {
			response.Error(c, apperror.ErrUnsupportedCurrency(req.Currency))
			return
		}
		currency = parsed
	}

	view, created, err := h.accountSvc.GetOrCreate(c.Request.Context(), req.OwnerID, currency)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, dto.ToWalletResponse(view))
		return
	}
	response.OK(c, dto.ToWalletResponse(view))
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	id, err := walletID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.accountSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToWalletResponse(view))
}

// GetByOwner handles GET /api/v1/wallets/owner/:owner_id.
func (h *WalletHandler) GetByOwner(c *gin.Context) {
	view, err := h.accountSvc.GetByOwner(c.Request.Context(), c.Param("owner_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToWalletResponse(view))
}

// Deposit handles POST /api/v1/wallets/:id/deposits.
func (h *WalletHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	h.mutate(c, &req, &req.MutationFields, func(id uuid.UUID, mc ports.MutationContext) (*domain.LedgerEntry, error) {
		return h.ledgerSvc.Deposit(c.Request.Context(), id, req.Amount, req.Source, mc)
	})
}

// Withdraw handles POST /api/v1/wallets/:id/withdrawals.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	h.mutate(c, &req, &req.MutationFields, func(id uuid.UUID, mc ports.MutationContext) (*domain.LedgerEntry, error) {
		return h.ledgerSvc.Withdraw(c.Request.Context(), id, req.Amount, mc)
	})
}

// Pay handles POST /api/v1/wallets/:id/payments.
func (h *WalletHandler) Pay(c *gin.Context) {
	var req dto.OrderRequest
	h.mutate(c, &req, &req.MutationFields, func(id uuid.UUID, mc ports.MutationContext) (*domain.LedgerEntry, error) {
		return h.ledgerSvc.Pay(c.Request.Context(), id, req.Amount, req.OrderID, mc)
	})
}

// Refund handles POST /api/v1/wallets/:id/refunds.
func (h *WalletHandler) Refund(c *gin.Context) {
	var req dto.OrderRequest
	h.mutate(c, &req, &req.MutationFields, func(id uuid.UUID, mc ports.MutationContext) (*domain.LedgerEntry, error) {
		return h.ledgerSvc.Refund(c.Request.Context(), id, req.Amount, req.OrderID, mc)
	})
}

// mutate binds req, builds the mutation context from fields and runs apply.
func (h *WalletHandler) mutate(
	c *gin.Context,
	req interface{},
	fields *dto.MutationFields,
	apply func(uuid.UUID, ports.MutationContext) (*domain.LedgerEntry, error),
) {
	id, err := walletID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(req)

	mc, err := mutationContext(c, *fields)
	if err != nil {
		response.Error(c, err)
		return
	}

	entry, err := apply(id, mc)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToEntryResponse(entry))
}
