package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
	"github.com/mikiyas-z/bingo-wallet/internal/repository"
)

// Reconcile applies a gateway-reported outcome to a pending entry. It is
// the single write path for asynchronous settlement: callbacks, status
// polls and admin decisions all land here. Applying the same outcome twice
// is a no-op because the entry is already terminal.
func (s *Service) Reconcile(ctx context.Context, transactionID string, status domain.LedgerStatus, externalRef *string, reason *string) error {
	log := logging.FromContext(ctx)

	if !status.IsTerminal() {
		return fmt.Errorf("Reconcile: non-terminal status %s: %w", status, domain.ErrInvalidRequest)
	}

	err := s.applyTerminal(ctx, transactionID, status, externalRef, reason, nil)
	if err != nil {
		if errors.Is(err, domain.ErrEntryTerminal) {
			log.Info("reconcile skipped, entry already terminal", "transaction_id", transactionID)
			return nil
		}
		return fmt.Errorf("Reconcile: %w", err)
	}

	log.Info("entry reconciled", "transaction_id", transactionID, "status", status)
	return nil
}

// PollGatewayStatus asks the gateway for the current state of a pending
// entry and settles it if the answer is terminal.
func (s *Service) PollGatewayStatus(ctx context.Context, transactionID string) (*domain.LedgerEntry, error) {
	entry, err := s.ledger.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("PollGatewayStatus: %w", err)
	}
	if entry.Status.IsTerminal() {
		return entry, nil
	}

	res, err := s.gateway.CheckStatus(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("PollGatewayStatus: %w", err)
	}
	if !res.Status.IsTerminal() {
		return entry, nil
	}

	var reason *string
	if res.Reason != "" {
		reason = &res.Reason
	}
	var ref *string
	if res.ExternalRef != "" {
		ref = &res.ExternalRef
	}
	if err := s.Reconcile(ctx, transactionID, ledgerStatusFromGateway(res.Status), ref, reason); err != nil {
		return nil, fmt.Errorf("PollGatewayStatus: %w", err)
	}
	return s.ledger.GetByTransactionID(ctx, transactionID)
}

// applyTerminal moves one pending entry to a terminal state together with
// whatever balance movement that implies, all in one database transaction:
//
//   - completed deposit: credit the account
//   - failed or declined withdrawal: re-credit the debit and mark the entry
//     compensated
//   - completed withdrawal, failed deposit: ledger update only
//
// The status guard on the entry row makes the whole thing exactly-once; the
// optimistic version check on the account is retried once.
func (s *Service) applyTerminal(ctx context.Context, transactionID string, status domain.LedgerStatus, externalRef, reason, approvedBy *string) error {
	entry, err := s.ledger.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("applyTerminal: %w", err)
	}
	if entry.Status.IsTerminal() {
		return fmt.Errorf("applyTerminal: %w", domain.ErrEntryTerminal)
	}

	return withVersionRetry(func() error {
		return s.applyTerminalTx(ctx, entry, status, externalRef, reason, approvedBy)
	})
}

func (s *Service) applyTerminalTx(ctx context.Context, entry *domain.LedgerEntry, status domain.LedgerStatus, externalRef, reason, approvedBy *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("applyTerminalTx: begin tx: %w", err)
	}
	defer tx.Rollback()

	compensate := entry.Kind == domain.LedgerKindWithdrawal &&
		(status == domain.LedgerStatusFailed || status == domain.LedgerStatusDeclined) &&
		!entry.Compensated
	credit := entry.Kind == domain.LedgerKindDeposit && status == domain.LedgerStatusCompleted

	if err := s.ledger.MarkTerminal(ctx, tx, entry.TransactionID, repository.TerminalUpdate{
		Status:        status,
		ExternalRef:   externalRef,
		ApprovedBy:    approvedBy,
		FailureReason: reason,
		Compensated:   compensate,
	}); err != nil {
		return err
	}

	if compensate || credit {
		acct, err := s.accounts.GetForUpdate(ctx, tx, entry.SourceChatID)
		if err != nil {
			return fmt.Errorf("applyTerminalTx: %w", err)
		}
		if err := s.accounts.UpdateBalances(ctx, tx, acct.ChatID, acct.Balance+entry.Amount, acct.Bonus, acct.Version+1); err != nil {
			return fmt.Errorf("applyTerminalTx: credit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("applyTerminalTx: commit: %w", err)
	}

	if compensate && s.metrics != nil {
		s.metrics.CompensationsTotal.Inc()
	}
	return nil
}
