package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLockSerializesSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, AccountKey(1, 1))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, m.Len())
}

func TestLockDistinctKeysDoNotBlock(t *testing.T) {
	m := New()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, AccountKey(1, 1))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, AccountKey(1, 2))
	require.NoError(t, err)
	unlockB()
}

func TestLockHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	unlock, err := m.Lock(context.Background(), AssignmentKey(7))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, AssignmentKey(7))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, m.Len())
}
