package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

func SeedAccount(t *testing.T, db *sql.DB, chatID int64, phone string, balance, bonus int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ChatID:      chatID,
		PhoneNumber: phone,
		Username:    phone,
		Balance:     balance,
		Bonus:       bonus,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (chat_id, phone_number, username, balance, bonus, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ChatID, a.PhoneNumber, a.Username, a.Balance, a.Bonus, a.Version, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %d: %v", chatID, err)
	}
	return a
}

func BanAccount(t *testing.T, db *sql.DB, chatID int64) {
	t.Helper()

	if _, err := db.Exec(`UPDATE accounts SET banned = TRUE WHERE chat_id = $1`, chatID); err != nil {
		t.Fatalf("ban account %d: %v", chatID, err)
	}
}

func GetBalance(t *testing.T, db *sql.DB, chatID int64) int64 {
	t.Helper()

	var balance int64
	if err := db.QueryRow(`SELECT balance FROM accounts WHERE chat_id = $1`, chatID).Scan(&balance); err != nil {
		t.Fatalf("get balance %d: %v", chatID, err)
	}
	return balance
}

func GetBonus(t *testing.T, db *sql.DB, chatID int64) int64 {
	t.Helper()

	var bonus int64
	if err := db.QueryRow(`SELECT bonus FROM accounts WHERE chat_id = $1`, chatID).Scan(&bonus); err != nil {
		t.Fatalf("get bonus %d: %v", chatID, err)
	}
	return bonus
}

func GetEntryStatus(t *testing.T, db *sql.DB, transactionID string) (string, bool) {
	t.Helper()

	var status string
	var compensated bool
	err := db.QueryRow(
		`SELECT status, compensated FROM ledger_entries WHERE transaction_id = $1`, transactionID,
	).Scan(&status, &compensated)
	if err != nil {
		t.Fatalf("get entry %s: %v", transactionID, err)
	}
	return status, compensated
}

func CountEntries(t *testing.T, db *sql.DB, chatID int64) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE source_chat_id = $1 OR dest_chat_id = $1`, chatID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count entries for %d: %v", chatID, err)
	}
	return count
}
