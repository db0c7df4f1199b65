package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/gateway"
	"github.com/mikiyas-z/bingo-wallet/internal/lock"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
)

type WithdrawRequest struct {
	ChatID        int64
	Amount        int64 // santim
	Method        string
	AccountNumber string // payout destination, phone or bank account
}

// Withdraw debits the account first and only then asks the gateway to pay
// out. A gateway that cannot be reached leaves the entry pending and the
// money held; reconciliation settles it once the gateway answers. The
// returned entry's status tells the caller which of those happened.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)

	if err := s.validateWithdraw(req); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	if !s.locks.Acquire(req.ChatID, lock.ClassWithdraw) {
		return nil, fmt.Errorf("Withdraw: %w", domain.ErrOperationInProgress)
	}
	defer s.locks.Release(req.ChatID, lock.ClassWithdraw)

	var entry *domain.LedgerEntry
	err := withVersionRetry(func() error {
		e, err := s.debitAndRecord(ctx, req)
		entry = e
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	ack, err := s.gateway.InitiatePayout(ctx, gateway.PayoutRequest{
		TransactionID: entry.TransactionID,
		Amount:        entry.Amount,
		Kind:          "withdrawal",
		PayeePhone:    req.AccountNumber,
		Method:        req.Method,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			log.Warn("payout submission failed, withdrawal stays pending",
				"transaction_id", entry.TransactionID,
				"error", err,
			)
			s.countOperation(domain.LedgerKindWithdrawal, domain.LedgerStatusPendingApproval)
			return entry, nil
		}
		// Definitive rejection before any money left the gateway. The
		// debit is reversed right away instead of waiting for a
		// callback that will never come.
		reason := err.Error()
		if applyErr := s.applyTerminal(ctx, entry.TransactionID, domain.LedgerStatusDeclined, nil, &reason, nil); applyErr != nil {
			return nil, fmt.Errorf("Withdraw: reverse declined payout: %w", applyErr)
		}
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	if ack.ExternalRef != "" {
		if err := s.ledger.SetExternalRef(ctx, entry.TransactionID, ack.ExternalRef); err != nil {
			log.Warn("failed to record external ref", "transaction_id", entry.TransactionID, "error", err)
		}
		entry.ExternalRef = &ack.ExternalRef
	}

	if ack.Status.IsTerminal() {
		status := ledgerStatusFromGateway(ack.Status)
		if err := s.applyTerminal(ctx, entry.TransactionID, status, entry.ExternalRef, nil, nil); err != nil && !errors.Is(err, domain.ErrEntryTerminal) {
			return nil, fmt.Errorf("Withdraw: %w", err)
		}
		entry.Status = status
		s.countOperation(domain.LedgerKindWithdrawal, status)
		log.Info("withdrawal settled synchronously",
			"transaction_id", entry.TransactionID,
			"status", status,
		)
		return entry, nil
	}

	s.countOperation(domain.LedgerKindWithdrawal, domain.LedgerStatusPendingApproval)
	log.Info("withdrawal submitted",
		"transaction_id", entry.TransactionID,
		"chat_id", req.ChatID,
		"amount", req.Amount,
	)
	return entry, nil
}

func (s *Service) validateWithdraw(req WithdrawRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if req.Amount < s.config.WithdrawMin || req.Amount > s.config.WithdrawMax {
		return domain.ErrAmountOutOfRange
	}
	if req.AccountNumber == "" {
		return fmt.Errorf("account number required: %w", domain.ErrInvalidRequest)
	}
	if req.Method == "" {
		return fmt.Errorf("payment method required: %w", domain.ErrInvalidRequest)
	}
	return nil
}

// debitAndRecord holds the debit and the pending ledger entry in one
// transaction so a crash between them cannot lose money.
func (s *Service) debitAndRecord(ctx context.Context, req WithdrawRequest) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("debitAndRecord: begin tx: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, req.ChatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("debitAndRecord: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("debitAndRecord: %w", err)
	}
	if acct.Banned {
		return nil, fmt.Errorf("debitAndRecord: %w", domain.ErrAccountBanned)
	}
	if acct.Balance < req.Amount {
		return nil, fmt.Errorf("debitAndRecord: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	acctNum := req.AccountNumber
	entry := &domain.LedgerEntry{
		TransactionID: newTransactionID(),
		Kind:          domain.LedgerKindWithdrawal,
		Status:        domain.LedgerStatusPendingApproval,
		Amount:        req.Amount,
		SourceChatID:  req.ChatID,
		PaymentMethod: req.Method,
		AccountNumber: &acctNum,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.createEntryWithFreshID(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("debitAndRecord: create entry: %w", err)
	}

	if err := s.accounts.UpdateBalances(ctx, tx, acct.ChatID, acct.Balance-req.Amount, acct.Bonus, acct.Version+1); err != nil {
		return nil, fmt.Errorf("debitAndRecord: debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("debitAndRecord: commit: %w", err)
	}
	return entry, nil
}

func ledgerStatusFromGateway(st gateway.Status) domain.LedgerStatus {
	switch st {
	case gateway.StatusCompleted:
		return domain.LedgerStatusCompleted
	case gateway.StatusDeclined:
		return domain.LedgerStatusDeclined
	default:
		return domain.LedgerStatusFailed
	}
}
