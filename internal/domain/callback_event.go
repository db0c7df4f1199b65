package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CallbackEventStatus string

const (
	CallbackEventStatusPending    CallbackEventStatus = "pending"
	CallbackEventStatusDispatched CallbackEventStatus = "dispatched"
	CallbackEventStatusFailed     CallbackEventStatus = "failed"
)

// CallbackEvent is a raw gateway notification persisted before processing.
// EventKey is the gateway's own event id and is unique, so a redelivered
// callback is rejected at insert time instead of being applied twice.
type CallbackEvent struct {
	ID          uuid.UUID
	EventKey    string
	Payload     json.RawMessage
	Status      CallbackEventStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}
