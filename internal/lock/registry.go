package lock

import (
	"context"
	"sync"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/metrics"
)

// Class scopes a lock to one kind of conflicting operation on an account.
type Class string

const (
	ClassTransfer Class = "transfer"
	ClassWithdraw Class = "withdraw"
	ClassDeposit  Class = "deposit"
	ClassConvert  Class = "convert"
)

type key struct {
	chatID int64
	op     Class
}

// Registry is the in-process mutual-exclusion table for financial operations.
// It only prevents a second conversational flow from starting on the same
// account; consistency of the balance writes themselves comes from the
// database transaction, so losing all locks on restart is safe.
//
// Expiry is checked lazily on every Acquire; the background sweep merely
// bounds memory and does not affect correctness.
type Registry struct {
	mu      sync.Mutex
	entries map[key]time.Time
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRegistry(ttl time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		entries: make(map[key]time.Time),
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
	}
}

// Acquire takes the (account, operation class) lock. A false return means a
// non-expired lock is already held; callers report "operation already in
// progress" and abandon the attempt, they never spin.
func (r *Registry) Acquire(chatID int64, op Class) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{chatID: chatID, op: op}
	now := r.now()

	if expiry, ok := r.entries[k]; ok {
		if now.Before(expiry) {
			if r.metrics != nil {
				r.metrics.LockRejections.WithLabelValues(string(op)).Inc()
			}
			return false
		}
		delete(r.entries, k)
	}

	r.entries[k] = now.Add(r.ttl)
	if r.metrics != nil {
		r.metrics.LocksActive.Set(float64(len(r.entries)))
	}
	return true
}

// Release removes the lock unconditionally. Releasing a lock that expired
// and was re-acquired by nobody is a harmless no-op.
func (r *Registry) Release(chatID int64, op Class) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key{chatID: chatID, op: op})
	if r.metrics != nil {
		r.metrics.LocksActive.Set(float64(len(r.entries)))
	}
}

// Sweep periodically deletes expired entries until ctx is cancelled.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, expiry := range r.entries {
		if now.After(expiry) {
			delete(r.entries, k)
		}
	}
	if r.metrics != nil {
		r.metrics.LocksActive.Set(float64(len(r.entries)))
	}
}

// Len reports the number of tracked entries, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
