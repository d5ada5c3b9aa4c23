package handler

import (
	"strings"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey carries the caller's retry key for mutations.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// walletID parses the :id path parameter.
func walletID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid wallet id")
	}
	return id, nil
}

// mutationContext assembles the caller context of one balance change.
func mutationContext(c *gin.Context, f dto.MutationFields) (ports.MutationContext, error) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		return ports.MutationContext{}, apperror.Validation("Idempotency-Key too long")
	}
	return ports.MutationContext{
		Actor:          middleware.Subject(c),
		RelatedUserID:  f.RelatedUserID,
		Description:    f.Description,
		ExternalTxHash: f.ExternalTxHash,
		Metadata:       f.Metadata,
		IdempotencyKey: key,
		ClientIP:       c.ClientIP(),
	}, nil
}
