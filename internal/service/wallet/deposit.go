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

type DepositRequest struct {
	ChatID     int64
	Amount     int64 // santim
	Method     string
	PayerPhone string
}

type ManualDepositRequest struct {
	ChatID        int64
	Amount        int64 // santim
	Method        string
	BankReference string // slip or SMS reference quoted by the user
}

// Deposit records a pending entry and asks the gateway to charge the payer.
// The balance is only credited once the gateway confirms, through the
// callback or a status poll, so an abandoned charge costs nothing.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)

	if err := s.validateDeposit(req.Amount); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if req.PayerPhone == "" {
		return nil, fmt.Errorf("Deposit: payer phone required: %w", domain.ErrInvalidRequest)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("Deposit: payment method required: %w", domain.ErrInvalidRequest)
	}

	acct, err := s.accounts.GetByChatID(ctx, req.ChatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Deposit: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if acct.Banned {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrAccountBanned)
	}

	if !s.locks.Acquire(req.ChatID, lock.ClassDeposit) {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrOperationInProgress)
	}
	defer s.locks.Release(req.ChatID, lock.ClassDeposit)

	entry, err := s.recordPendingDeposit(ctx, req.ChatID, req.Amount, req.Method, nil)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	ack, err := s.gateway.InitiateCharge(ctx, gateway.ChargeRequest{
		TransactionID: entry.TransactionID,
		Amount:        entry.Amount,
		Memo:          "wallet deposit",
		PayerPhone:    req.PayerPhone,
		Method:        req.Method,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			log.Warn("charge submission failed, deposit stays pending",
				"transaction_id", entry.TransactionID,
				"error", err,
			)
			s.countOperation(domain.LedgerKindDeposit, domain.LedgerStatusPendingApproval)
			return entry, nil
		}
		reason := err.Error()
		if applyErr := s.applyTerminal(ctx, entry.TransactionID, domain.LedgerStatusDeclined, nil, &reason, nil); applyErr != nil {
			return nil, fmt.Errorf("Deposit: close declined charge: %w", applyErr)
		}
		return nil, fmt.Errorf("Deposit: %w", err)
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
			return nil, fmt.Errorf("Deposit: %w", err)
		}
		entry.Status = status
		s.countOperation(domain.LedgerKindDeposit, status)
		return entry, nil
	}

	s.countOperation(domain.LedgerKindDeposit, domain.LedgerStatusPendingApproval)
	log.Info("deposit initiated",
		"transaction_id", entry.TransactionID,
		"chat_id", req.ChatID,
		"amount", req.Amount,
	)
	return entry, nil
}

// SubmitManualDeposit records a bank-slip deposit awaiting admin approval.
// The slip reference is unique across all entries, so the same slip cannot
// be submitted twice, by anyone.
func (s *Service) SubmitManualDeposit(ctx context.Context, req ManualDepositRequest) (*domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)

	if err := s.validateDeposit(req.Amount); err != nil {
		return nil, fmt.Errorf("SubmitManualDeposit: %w", err)
	}
	if req.BankReference == "" {
		return nil, fmt.Errorf("SubmitManualDeposit: bank reference required: %w", domain.ErrInvalidRequest)
	}

	acct, err := s.accounts.GetByChatID(ctx, req.ChatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("SubmitManualDeposit: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("SubmitManualDeposit: %w", err)
	}
	if acct.Banned {
		return nil, fmt.Errorf("SubmitManualDeposit: %w", domain.ErrAccountBanned)
	}

	if !s.locks.Acquire(req.ChatID, lock.ClassDeposit) {
		return nil, fmt.Errorf("SubmitManualDeposit: %w", domain.ErrOperationInProgress)
	}
	defer s.locks.Release(req.ChatID, lock.ClassDeposit)

	method := req.Method
	if method == "" {
		method = "bank"
	}
	entry, err := s.recordPendingDeposit(ctx, req.ChatID, req.Amount, method, &req.BankReference)
	if err != nil {
		return nil, fmt.Errorf("SubmitManualDeposit: %w", err)
	}

	s.countOperation(domain.LedgerKindDeposit, domain.LedgerStatusPendingApproval)
	log.Info("manual deposit submitted",
		"transaction_id", entry.TransactionID,
		"chat_id", req.ChatID,
		"amount", req.Amount,
	)
	return entry, nil
}

// ApproveManualDeposit credits a pending manual deposit. Idempotent: a
// second approval of the same entry reports it as already settled.
func (s *Service) ApproveManualDeposit(ctx context.Context, transactionID, approvedBy string) error {
	if err := s.applyTerminal(ctx, transactionID, domain.LedgerStatusCompleted, nil, nil, &approvedBy); err != nil {
		return fmt.Errorf("ApproveManualDeposit: %w", err)
	}
	s.countOperation(domain.LedgerKindDeposit, domain.LedgerStatusCompleted)
	return nil
}

// RejectManualDeposit closes a pending manual deposit without crediting.
func (s *Service) RejectManualDeposit(ctx context.Context, transactionID, rejectedBy, reason string) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.applyTerminal(ctx, transactionID, domain.LedgerStatusDeclined, nil, reasonPtr, &rejectedBy); err != nil {
		return fmt.Errorf("RejectManualDeposit: %w", err)
	}
	s.countOperation(domain.LedgerKindDeposit, domain.LedgerStatusDeclined)
	return nil
}

func (s *Service) validateDeposit(amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if amount < s.config.DepositMin || amount > s.config.DepositMax {
		return domain.ErrAmountOutOfRange
	}
	return nil
}

func (s *Service) recordPendingDeposit(ctx context.Context, chatID, amount int64, method string, bankRef *string) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("recordPendingDeposit: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		TransactionID: newTransactionID(),
		Kind:          domain.LedgerKindDeposit,
		Status:        domain.LedgerStatusPendingApproval,
		Amount:        amount,
		SourceChatID:  chatID,
		PaymentMethod: method,
		BankReference: bankRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.createEntryWithFreshID(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("recordPendingDeposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("recordPendingDeposit: commit: %w", err)
	}
	return entry, nil
}
