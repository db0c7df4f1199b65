package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	require.True(t, r.Acquire(1, ClassWithdraw))
	assert.False(t, r.Acquire(1, ClassWithdraw), "second acquire for same key must fail")

	// Different class or account is independent.
	assert.True(t, r.Acquire(1, ClassTransfer))
	assert.True(t, r.Acquire(2, ClassWithdraw))

	r.Release(1, ClassWithdraw)
	assert.True(t, r.Acquire(1, ClassWithdraw), "acquire after release must succeed")
}

func TestAcquireExpiredLock(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	current := time.Now()
	r.now = func() time.Time { return current }

	require.True(t, r.Acquire(7, ClassWithdraw))
	assert.False(t, r.Acquire(7, ClassWithdraw))

	// Past the TTL the stale lock is logically absent even before any sweep.
	current = current.Add(time.Minute + time.Second)
	assert.True(t, r.Acquire(7, ClassWithdraw))
}

func TestSweepRemovesExpired(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	current := time.Now()
	r.now = func() time.Time { return current }

	require.True(t, r.Acquire(1, ClassWithdraw))
	require.True(t, r.Acquire(2, ClassDeposit))
	require.Equal(t, 2, r.Len())

	current = current.Add(2 * time.Minute)
	r.sweepOnce()
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan bool, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.Acquire(42, ClassWithdraw)
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent acquire may win")

	// After the winner releases, a later caller succeeds again.
	r.Release(42, ClassWithdraw)
	assert.True(t, r.Acquire(42, ClassWithdraw))
}
