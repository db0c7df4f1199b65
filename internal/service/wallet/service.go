package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/mikiyas-z/bingo-wallet/internal/bonus"
	"github.com/mikiyas-z/bingo-wallet/internal/config"
	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/gateway"
	"github.com/mikiyas-z/bingo-wallet/internal/lock"
	"github.com/mikiyas-z/bingo-wallet/internal/metrics"
	"github.com/mikiyas-z/bingo-wallet/internal/repository"
)

type accountRepo interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByChatID(ctx context.Context, chatID int64) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, chatID int64) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, chatID, balance, bonus, newVersion int64) error
	MarkReferralPaid(ctx context.Context, tx *sql.Tx, chatID int64) (bool, error)
	RecordReferral(ctx context.Context, tx *sql.Tx, chatID, bonusCredit int64) error
	SetBanned(ctx context.Context, chatID int64, banned bool) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.LedgerEntry) error
	GetByTransactionID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	MarkTerminal(ctx context.Context, tx *sql.Tx, transactionID string, upd repository.TerminalUpdate) error
	SetExternalRef(ctx context.Context, transactionID, externalRef string) error
	ListByChatID(ctx context.Context, chatID int64, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type gatewayClient interface {
	InitiateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Ack, error)
	InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Ack, error)
	CheckStatus(ctx context.Context, transactionID string) (*gateway.StatusResult, error)
}

type Service struct {
	accounts  accountRepo
	ledger    ledgerRepo
	gateway   gatewayClient
	locks     *lock.Registry
	pending   *confirmRegistry
	converter *bonus.Converter
	db        *sql.DB
	config    *config.Config
	metrics   *metrics.Metrics
}

func NewService(
	accounts accountRepo,
	ledger ledgerRepo,
	gw gatewayClient,
	locks *lock.Registry,
	db *sql.DB,
	cfg *config.Config,
	m *metrics.Metrics,
) *Service {
	return &Service{
		accounts:  accounts,
		ledger:    ledger,
		gateway:   gw,
		locks:     locks,
		pending:   newConfirmRegistry(),
		converter: bonus.NewConverter(cfg.BonusRate),
		db:        db,
		config:    cfg,
		metrics:   m,
	}
}

// newTransactionID returns a 9-digit numeric id, the format users quote to
// support staff over Telegram. Collisions are caught by the primary key and
// the caller regenerates.
func newTransactionID() string {
	return fmt.Sprintf("%09d", rand.Int64N(1_000_000_000))
}

// createEntryWithFreshID inserts the entry, regenerating the transaction id
// on a primary-key collision. Other unique violations, like a replayed bank
// reference, are returned as-is.
func (s *Service) createEntryWithFreshID(ctx context.Context, tx *sql.Tx, e *domain.LedgerEntry) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.ledger.Create(ctx, tx, e)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateTransaction) {
			return err
		}
		e.TransactionID = newTransactionID()
	}
	return fmt.Errorf("createEntryWithFreshID: %w", domain.ErrDuplicateTransaction)
}

// withVersionRetry runs fn and retries it exactly once on an optimistic lock
// conflict. fn must begin its own transaction so the retry sees fresh rows.
func withVersionRetry(fn func() error) error {
	err := fn()
	if errors.Is(err, domain.ErrVersionConflict) {
		return fn()
	}
	return err
}

func (s *Service) countOperation(kind domain.LedgerKind, status domain.LedgerStatus) {
	if s.metrics != nil {
		s.metrics.Operations.WithLabelValues(string(kind), string(status)).Inc()
	}
}
