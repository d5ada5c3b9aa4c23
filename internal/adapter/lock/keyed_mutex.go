// Package lock provides the in-process AccountSerializer.
package lock

import (
	"context"
	"sync"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

// KeyedMutex grants exclusive access per account id within one process.
// Slots are reference counted and dropped when no goroutine holds or waits
// on them, so the table only ever holds contended or active accounts.
type KeyedMutex struct {
	mu      sync.Mutex
	slots   map[uuid.UUID]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates a lock table. timeout <= 0 waits until ctx is done.
func NewKeyedMutex(timeout time.Duration) *KeyedMutex {
	return &KeyedMutex{
		slots:   make(map[uuid.UUID]*slot),
		timeout: timeout,
	}
}

// Acquire blocks until the account is free, the timeout elapses
// (ports.ErrLockTimeout) or ctx is done.
func (k *KeyedMutex) Acquire(ctx context.Context, accountID uuid.UUID) (func(), error) {
	s := k.ref(accountID)

	var expired <-chan time.Time
	if k.timeout > 0 {
		timer := time.NewTimer(k.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.unref(accountID, s)
			})
		}, nil
	case <-expired:
		k.unref(accountID, s)
		return nil, ports.ErrLockTimeout
	case <-ctx.Done():
		k.unref(accountID, s)
		return nil, ctx.Err()
	}
}

// Len returns the number of live slots.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *KeyedMutex) ref(id uuid.UUID) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[id] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) unref(id uuid.UUID, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, id)
	}
}
