package postgres

import (
	"context"
	"fmt"
)

// schemaProbe touches the accounts table so a reachable server without the
// ledger schema still reports unhealthy.
const schemaProbe = `SELECT 1 FROM wallet_accounts LIMIT 1`

// StoreHealth reports whether the ledger's PostgreSQL store is usable.
type StoreHealth struct {
	pool Pool
}

func NewStoreHealth(pool Pool) *StoreHealth {
	return &StoreHealth{pool: pool}
}

func (h *StoreHealth) Ping(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, schemaProbe); err != nil {
		return fmt.Errorf("ledger store: %w", err)
	}
	return nil
}

func (h *StoreHealth) Name() string {
	return "ledger-postgres"
}
