package domain

import "time"

// Account is one registered player's wallet. The chat id assigned by the bot
// front end is the stable account key; accounts are never deleted, a banned
// account keeps its balance but fails validation on every money operation.
type Account struct {
	ChatID        int64
	PhoneNumber   string
	Username      string
	Balance       int64 // spendable, in santim (1 ETB = 100 santim)
	Bonus         int64 // non-spendable until converted, in bonus points
	Version       int64
	ReferredBy    *int64
	ReferralCount int
	BonusReceived bool
	IsAdmin       bool
	Banned        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
