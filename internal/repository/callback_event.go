package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

type CallbackEventRepository struct {
	db *sql.DB
}

func NewCallbackEventRepository(db *sql.DB) *CallbackEventRepository {
	return &CallbackEventRepository{db: db}
}

func (r *CallbackEventRepository) Create(ctx context.Context, e *domain.CallbackEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO callback_events (id, event_key, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.EventKey, []byte(e.Payload), e.Status, e.Attempts, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "callback_events_event_key_key") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateTransaction)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetPending claims up to limit unprocessed events. SKIP LOCKED lets
// concurrent pollers drain the queue without contending on the same rows.
func (r *CallbackEventRepository) GetPending(ctx context.Context, limit int) ([]domain.CallbackEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_key, payload, status, attempts, last_attempt, created_at
		FROM callback_events
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.CallbackEvent
	for rows.Next() {
		var e domain.CallbackEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventKey, &payload, &e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *CallbackEventRepository) UpdateStatus(ctx context.Context, id string, status domain.CallbackEventStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE callback_events
		SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}
