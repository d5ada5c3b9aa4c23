package handler

import (
	"context"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler handles administrative holds and account status.
type AdminHandler struct {
	freezeSvc ports.FreezeService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(freezeSvc ports.FreezeService) *AdminHandler {
	return &AdminHandler{freezeSvc: freezeSvc}
}

// Freeze handles POST /api/v1/admin/wallets/:id/freeze.
func (h *AdminHandler) Freeze(c *gin.Context) {
	id, err := walletID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	acct, err := h.freezeSvc.Freeze(c.Request.Context(), id, req.Reason, middleware.Subject(c))
	respondAccount(c, acct, err)
}

// Unfreeze handles POST /api/v1/admin/wallets/:id/unfreeze.
func (h *AdminHandler) Unfreeze(c *gin.Context) {
	h.statusChange(c, h.freezeSvc.Unfreeze)
}

// Deactivate handles POST /api/v1/admin/wallets/:id/deactivate.
func (h *AdminHandler) Deactivate(c *gin.Context) {
	h.statusChange(c, h.freezeSvc.Deactivate)
}

// Reactivate handles POST /api/v1/admin/wallets/:id/reactivate.
func (h *AdminHandler) Reactivate(c *gin.Context) {
	h.statusChange(c, h.freezeSvc.Reactivate)
}

func (h *AdminHandler) statusChange(c *gin.Context, op func(context.Context, uuid.UUID, string) (*domain.WalletAccount, error)) {
	id, err := walletID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	acct, err := op(c.Request.Context(), id, middleware.Subject(c))
	respondAccount(c, acct, err)
}

// respondAccount renders an account in minor units only.
func respondAccount(c *gin.Context, acct *domain.WalletAccount, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToAccountResponse(acct))
}
