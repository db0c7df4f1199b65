package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

const ledgerColumns = `transaction_id, kind, status, amount, source_chat_id, dest_chat_id,
	payment_method, account_number, bank_reference, external_ref, approved_by,
	failure_reason, compensated, created_at, updated_at, completed_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			transaction_id, kind, status, amount, source_chat_id, dest_chat_id,
			payment_method, account_number, bank_reference, external_ref, approved_by,
			failure_reason, compensated, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.TransactionID, e.Kind, e.Status, e.Amount, e.SourceChatID, e.DestChatID,
		e.PaymentMethod, e.AccountNumber, e.BankReference, e.ExternalRef, e.ApprovedBy,
		e.FailureReason, e.Compensated, e.CreatedAt, e.UpdatedAt, e.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "ledger_entries_pkey") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateTransaction)
		}
		if isUniqueViolation(err, "ledger_entries_bank_reference_key") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReference)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByTransactionID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE transaction_id = $1`, id,
	)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTransactionID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	return e, nil
}

// TerminalUpdate carries the fields written when an entry leaves
// PENDING_APPROVAL. The status guard in MarkTerminal makes terminal entries
// immutable: a second terminalization attempt affects zero rows.
type TerminalUpdate struct {
	Status        domain.LedgerStatus
	ExternalRef   *string
	ApprovedBy    *string
	FailureReason *string
	Compensated   bool
}

func (r *LedgerRepository) MarkTerminal(ctx context.Context, tx *sql.Tx, transactionID string, upd TerminalUpdate) error {
	if !upd.Status.IsTerminal() {
		return fmt.Errorf("MarkTerminal: %s is not terminal: %w", upd.Status, domain.ErrInvalidRequest)
	}

	var completedAt *time.Time
	if upd.Status == domain.LedgerStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries
		SET status = $1,
		    external_ref = COALESCE($2, external_ref),
		    approved_by = COALESCE($3, approved_by),
		    failure_reason = $4,
		    compensated = $5,
		    completed_at = $6,
		    updated_at = now()
		WHERE transaction_id = $7 AND status = 'PENDING_APPROVAL'`,
		upd.Status, upd.ExternalRef, upd.ApprovedBy, upd.FailureReason,
		upd.Compensated, completedAt, transactionID,
	)
	if err != nil {
		return fmt.Errorf("MarkTerminal: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkTerminal: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkTerminal: %w", domain.ErrEntryTerminal)
	}
	return nil
}

// SetExternalRef records the gateway's id on a still-pending entry.
func (r *LedgerRepository) SetExternalRef(ctx context.Context, transactionID, externalRef string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET external_ref = $1, updated_at = now()
		WHERE transaction_id = $2 AND external_ref IS NULL`,
		externalRef, transactionID,
	)
	if err != nil {
		return fmt.Errorf("SetExternalRef: %w", err)
	}
	return nil
}

// ListByChatID returns entries where the account is sender or recipient,
// newest first, with the total for paging.
func (r *LedgerRepository) ListByChatID(ctx context.Context, chatID int64, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE source_chat_id = $1 OR dest_chat_id = $1`, chatID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByChatID: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE source_chat_id = $1 OR dest_chat_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		chatID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByChatID: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByChatID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByChatID: rows: %w", err)
	}
	return entries, total, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.TransactionID, &e.Kind, &e.Status, &e.Amount, &e.SourceChatID, &e.DestChatID,
		&e.PaymentMethod, &e.AccountNumber, &e.BankReference, &e.ExternalRef, &e.ApprovedBy,
		&e.FailureReason, &e.Compensated, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
