package wallet

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingTransfer is a transfer awaiting the sender's explicit confirmation.
// Nothing is persisted until confirmation; an expired or cancelled token
// leaves no trace beyond a metric.
type pendingTransfer struct {
	Token     string
	SenderID  int64
	Recipient int64
	Amount    int64
	CreatedAt time.Time
	timer     *time.Timer
}

// confirmRegistry holds pending transfers keyed by a one-time token. Each
// entry carries its own expiry timer; the onExpire callback fires at most
// once per entry because take removes the entry under the same mutex.
type confirmRegistry struct {
	mu      sync.Mutex
	entries map[string]*pendingTransfer
}

func newConfirmRegistry() *confirmRegistry {
	return &confirmRegistry{entries: make(map[string]*pendingTransfer)}
}

func (r *confirmRegistry) put(p *pendingTransfer, ttl time.Duration, onExpire func(*pendingTransfer)) string {
	token := uuid.NewString()
	p.Token = token

	r.mu.Lock()
	defer r.mu.Unlock()

	p.timer = time.AfterFunc(ttl, func() {
		if expired := r.take(token); expired != nil {
			onExpire(expired)
		}
	})
	r.entries[token] = p
	return token
}

// take removes and returns the entry, or nil if it was already taken or
// expired. The caller that receives a non-nil entry owns its outcome.
func (r *confirmRegistry) take(token string) *pendingTransfer {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[token]
	if !ok {
		return nil
	}
	delete(r.entries, token)
	p.timer.Stop()
	return p
}

func (r *confirmRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
