package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

const accountColumns = `chat_id, phone_number, username, balance, bonus, version,
	referred_by, referral_count, bonus_received, is_admin, banned,
	created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			chat_id, phone_number, username, balance, bonus, version,
			referred_by, referral_count, bonus_received, is_admin, banned,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ChatID, a.PhoneNumber, a.Username, a.Balance, a.Bonus, a.Version,
		a.ReferredBy, a.ReferralCount, a.BonusReceived, a.IsAdmin, a.Banned,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "accounts_pkey") {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
		if isUniqueViolation(err, "accounts_phone_number_key") {
			return fmt.Errorf("Create: %w", domain.ErrPhoneExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByChatID(ctx context.Context, chatID int64) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE chat_id = $1`, chatID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByChatID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByChatID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE phone_number = $1`, phone,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPhone: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPhone: %w", err)
	}
	return a, nil
}

// GetForUpdate row-locks the account inside tx. Engines that touch two
// accounts lock them in ascending chat-id order to avoid deadlocks.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, chatID int64) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE chat_id = $1 FOR UPDATE`, chatID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// UpdateBalances writes both balances guarded by the optimistic version
// check. Zero rows affected means someone raced us despite the row lock
// (e.g. a writer outside GetForUpdate), surfaced as ErrVersionConflict.
func (r *AccountRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, chatID, balance, bonus, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, bonus = $2, version = $3, updated_at = now()
		WHERE chat_id = $4 AND version = $5`,
		balance, bonus, newVersion, chatID, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalances: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalances: %w", domain.ErrVersionConflict)
	}
	return nil
}

// MarkReferralPaid flips bonus_received on the referred account. A false
// return means the bonus for this account was already paid out.
func (r *AccountRepository) MarkReferralPaid(ctx context.Context, tx *sql.Tx, chatID int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET bonus_received = TRUE, updated_at = now()
		WHERE chat_id = $1 AND bonus_received = FALSE`,
		chatID,
	)
	if err != nil {
		return false, fmt.Errorf("MarkReferralPaid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkReferralPaid: rows affected: %w", err)
	}
	return rows > 0, nil
}

// RecordReferral credits the referrer's bonus and bumps the referral count.
func (r *AccountRepository) RecordReferral(ctx context.Context, tx *sql.Tx, chatID, bonusCredit int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts
		SET bonus = bonus + $1, referral_count = referral_count + 1,
		    version = version + 1, updated_at = now()
		WHERE chat_id = $2`,
		bonusCredit, chatID,
	)
	if err != nil {
		return fmt.Errorf("RecordReferral: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RecordReferral: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("RecordReferral: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) SetBanned(ctx context.Context, chatID int64, banned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET banned = $1, updated_at = now() WHERE chat_id = $2`,
		banned, chatID,
	)
	if err != nil {
		return fmt.Errorf("SetBanned: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetBanned: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetBanned: %w", domain.ErrNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ChatID, &a.PhoneNumber, &a.Username, &a.Balance, &a.Bonus, &a.Version,
		&a.ReferredBy, &a.ReferralCount, &a.BonusReceived, &a.IsAdmin, &a.Banned,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
