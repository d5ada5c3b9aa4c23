package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// unlockScript deletes the lock only if it still carries our token, so an
// owner whose TTL lapsed cannot release a lock someone else now holds.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockPollInterval = 5 * time.Millisecond

// AccountLock implements ports.AccountSerializer across processes.
// The TTL bounds how long a crashed holder can block an account.
type AccountLock struct {
	client  *goredis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	log     zerolog.Logger
}

// NewAccountLock creates a Redis-backed per-account lock.
func NewAccountLock(client *goredis.Client, ttl, timeout time.Duration, log zerolog.Logger) *AccountLock {
	return &AccountLock{
		client:  client,
		prefix:  keyPrefix + "lock:account:",
		ttl:     ttl,
		timeout: timeout,
		log:     log,
	}
}

// Acquire polls SET NX PX until it wins, the timeout passes
// (ports.ErrLockTimeout) or ctx is done.
func (l *AccountLock) Acquire(ctx context.Context, accountID uuid.UUID) (func(), error) {
	key := l.prefix + accountID.String()
	token := uuid.NewString()

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis account lock: %w", err)
		}
		if ok {
			return l.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ports.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *AccountLock) releaser(key, token string) func() {
	var once sync.Once
	return func() { once.Do(func() { l.release(key, token) }) }
}

func (l *AccountLock) release(key, token string) {
	// Release must happen even if the request context is gone.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to release account lock, waiting for ttl")
		return
	}
	if n == 0 {
		l.log.Warn().Str("key", key).Msg("account lock expired before release")
	}
}
