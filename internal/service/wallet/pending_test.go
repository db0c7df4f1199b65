package wallet

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmRegistryTake(t *testing.T) {
	r := newConfirmRegistry()

	p := &pendingTransfer{SenderID: 1, Recipient: 2, Amount: 5000, CreatedAt: time.Now()}
	token := r.put(p, time.Minute, func(*pendingTransfer) {})
	require.NotEmpty(t, token)
	require.Equal(t, 1, r.len())

	got := r.take(token)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.SenderID)
	assert.Equal(t, 0, r.len())

	// second take finds nothing
	assert.Nil(t, r.take(token))
}

func TestConfirmRegistryUnknownToken(t *testing.T) {
	r := newConfirmRegistry()
	assert.Nil(t, r.take("no-such-token"))
}

func TestConfirmRegistryExpiry(t *testing.T) {
	r := newConfirmRegistry()

	var expired atomic.Int32
	p := &pendingTransfer{SenderID: 1, Recipient: 2, Amount: 5000, CreatedAt: time.Now()}
	token := r.put(p, 20*time.Millisecond, func(*pendingTransfer) {
		expired.Add(1)
	})

	require.Eventually(t, func() bool {
		return expired.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Nil(t, r.take(token))
	assert.Equal(t, 0, r.len())
}

func TestConfirmRegistryTakeBeatsExpiry(t *testing.T) {
	r := newConfirmRegistry()

	var expired atomic.Int32
	p := &pendingTransfer{SenderID: 1, Recipient: 2, Amount: 5000, CreatedAt: time.Now()}
	token := r.put(p, time.Hour, func(*pendingTransfer) {
		expired.Add(1)
	})

	require.NotNil(t, r.take(token))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), expired.Load())
}
