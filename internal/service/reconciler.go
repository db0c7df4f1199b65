package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/metrics"
)

type callbackEventRepo interface {
	GetPending(ctx context.Context, limit int) ([]domain.CallbackEvent, error)
	UpdateStatus(ctx context.Context, id string, status domain.CallbackEventStatus) error
}

type reconcileService interface {
	Reconcile(ctx context.Context, transactionID string, status domain.LedgerStatus, externalRef *string, reason *string) error
}

// Reconciler drains persisted gateway callbacks in the background and
// applies each one to its ledger entry. Storing first and processing here
// means the callback HTTP handler can acknowledge fast and a crash between
// the two loses nothing.
type Reconciler struct {
	events   callbackEventRepo
	wallet   reconcileService
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
}

func NewReconciler(
	events callbackEventRepo,
	wallet reconcileService,
	logger *slog.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	batch int,
) *Reconciler {
	return &Reconciler{
		events:   events,
		wallet:   wallet,
		logger:   logger,
		metrics:  m,
		interval: interval,
		batch:    batch,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("reconciler started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Reconciler) poll(ctx context.Context) {
	events, err := r.events.GetPending(ctx, r.batch)
	if err != nil {
		r.logger.Error("failed to fetch pending callback events", "error", err)
		return
	}

	for _, event := range events {
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error("failed to process callback event",
				"callback_event_id", event.ID,
				"error", err,
			)
		}
	}
}

// callbackPayload is the body SantimPay posts to the callback URL. TxnID is
// our transaction id echoed back; RefID is the gateway's own reference.
type callbackPayload struct {
	TxnID  string `json:"txnId"`
	RefID  string `json:"refId,omitempty"`
	Status string `json:"Status"`
	Reason string `json:"message,omitempty"`
}

func (r *Reconciler) processEvent(ctx context.Context, event domain.CallbackEvent) error {
	var payload callbackPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		r.logger.Error("malformed callback payload", "callback_event_id", event.ID, "error", err)
		r.countResult("malformed")
		return r.events.UpdateStatus(ctx, event.ID.String(), domain.CallbackEventStatusFailed)
	}

	if payload.TxnID == "" {
		r.logger.Error("callback missing txnId", "callback_event_id", event.ID)
		r.countResult("malformed")
		return r.events.UpdateStatus(ctx, event.ID.String(), domain.CallbackEventStatusFailed)
	}

	status, ok := terminalStatusFromCallback(payload.Status)
	if !ok {
		// PENDING and other non-terminal notifications carry no new
		// information; acknowledge and move on.
		r.countResult("skipped")
		return r.events.UpdateStatus(ctx, event.ID.String(), domain.CallbackEventStatusDispatched)
	}

	var ref *string
	if payload.RefID != "" {
		ref = &payload.RefID
	}
	var reason *string
	if payload.Reason != "" {
		reason = &payload.Reason
	}

	if err := r.wallet.Reconcile(ctx, payload.TxnID, status, ref, reason); err != nil {
		r.countResult("error")
		return fmt.Errorf("processEvent: %w", err)
	}

	r.countResult("applied")
	return r.events.UpdateStatus(ctx, event.ID.String(), domain.CallbackEventStatusDispatched)
}

func terminalStatusFromCallback(s string) (domain.LedgerStatus, bool) {
	switch s {
	case "COMPLETED":
		return domain.LedgerStatusCompleted, true
	case "FAILED":
		return domain.LedgerStatusFailed, true
	case "DECLINED":
		return domain.LedgerStatusDeclined, true
	default:
		return "", false
	}
}

func (r *Reconciler) countResult(result string) {
	if r.metrics != nil {
		r.metrics.CallbacksProcessed.WithLabelValues(result).Inc()
	}
}
