package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const healthKey = keyPrefix + "health"

// CoordinatorHealth reports whether Redis can still take the writes that
// account locks and idempotency records need. A read-only replica answers
// PING but fails here.
type CoordinatorHealth struct {
	client *goredis.Client
}

func NewCoordinatorHealth(client *goredis.Client) *CoordinatorHealth {
	return &CoordinatorHealth{client: client}
}

func (h *CoordinatorHealth) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthKey, time.Now().Unix(), 30*time.Second).Err(); err != nil {
		return fmt.Errorf("ledger coordinator: %w", err)
	}
	return nil
}

func (h *CoordinatorHealth) Name() string {
	return "ledger-redis"
}
