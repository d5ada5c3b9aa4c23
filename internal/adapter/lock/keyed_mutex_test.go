package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_ExclusivePerKey(t *testing.T) {
	k := NewKeyedMutex(time.Second)
	id := uuid.New()

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(context.Background(), id)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
	assert.Equal(t, 0, k.Len(), "slots are dropped once released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex(50 * time.Millisecond)

	releaseA, err := k.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := k.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	releaseB()
}

func TestKeyedMutex_Timeout(t *testing.T) {
	k := NewKeyedMutex(20 * time.Millisecond)
	id := uuid.New()

	release, err := k.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	_, err = k.Acquire(context.Background(), id)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	k := NewKeyedMutex(0)
	id := uuid.New()

	release, err := k.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Acquire(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_ReleaseIsIdempotent(t *testing.T) {
	k := NewKeyedMutex(20 * time.Millisecond)
	id := uuid.New()

	release, err := k.Acquire(context.Background(), id)
	require.NoError(t, err)
	release()
	release()

	again, err := k.Acquire(context.Background(), id)
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, k.Len())
}
