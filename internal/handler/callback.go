package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
)

type callbackEventRepository interface {
	Create(ctx context.Context, event *domain.CallbackEvent) error
}

// CallbackHandler receives gateway notifications. It only verifies and
// stores them; the reconciler applies them later, so the gateway gets its
// acknowledgement without waiting on ledger writes.
type CallbackHandler struct {
	events callbackEventRepository
	secret string
}

func NewCallbackHandler(events callbackEventRepository, secret string) *CallbackHandler {
	return &CallbackHandler{events: events, secret: secret}
}

type gatewayCallbackPayload struct {
	EventID string `json:"event_id"`
	TxnID   string `json:"txnId"`
	Status  string `json:"Status"`
}

func (p gatewayCallbackPayload) validate() []FieldError {
	var errs []FieldError
	if p.EventID == "" {
		errs = append(errs, FieldError{Field: "event_id", Message: "required"})
	}
	if p.TxnID == "" {
		errs = append(errs, FieldError{Field: "txnId", Message: "required"})
	}
	if p.Status == "" {
		errs = append(errs, FieldError{Field: "Status", Message: "required"})
	}
	return errs
}

func (h *CallbackHandler) ReceiveGatewayCallback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read callback body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	sig := r.Header.Get("X-Callback-Signature")
	if !verifyHMAC(body, sig, h.secret) {
		log.Warn("callback signature verification failed")
		RespondAppError(w, ErrInvalidCallback, nil)
		return
	}

	var payload gatewayCallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to parse callback payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := payload.validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	event := &domain.CallbackEvent{
		ID:        uuid.New(),
		EventKey:  payload.EventID,
		Payload:   body,
		Status:    domain.CallbackEventStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.events.Create(r.Context(), event); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			log.Info("duplicate callback received", "event_id", payload.EventID, "transaction_id", payload.TxnID)
			RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
			return
		}
		log.Error("failed to store callback event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	log.Info("callback event stored",
		"callback_event_id", event.ID,
		"gateway_event_id", payload.EventID,
		"transaction_id", payload.TxnID,
	)

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}

func verifyHMAC(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
