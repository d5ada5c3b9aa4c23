package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HistoryHandler serves ledger reads.
type HistoryHandler struct {
	historySvc ports.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historySvc ports.HistoryService) *HistoryHandler {
	return &HistoryHandler{historySvc: historySvc}
}

// History handles GET /api/v1/wallets/:id/history.
func (h *HistoryHandler) History(c *gin.Context) {
	id, err := walletID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.From != nil && q.To != nil && *q.From > *q.To {
		response.Error(c, apperror.Validation("from must not be after to"))
		return
	}

	params := ports.EntryListParams{
		AccountID: id,
		From:      q.From,
		To:        q.To,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if q.Type != "" {
		t, _ := domain.ParseEntryType(q.Type)
		params.Type = &t
	}
	if q.Status != "" {
		s := domain.EntryStatus(q.Status)
		params.Status = &s
	}

	entries, total, err := h.historySvc.GetHistory(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	page, size := normalizePage(q.Page, q.PageSize)
	response.Paged(c, dto.ToEntryResponses(entries), page, size, total)
}

// Reconcile handles GET /api/v1/admin/wallets/:id/reconcile.
func (h *HistoryHandler) Reconcile(c *gin.Context) {
	id, err := walletID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.historySvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// normalizePage mirrors the clamping the history service applies.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
