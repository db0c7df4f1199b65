package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/lock"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
)

// TransferPreview is what the sender sees before confirming. The token is
// single-use and expires after the configured confirmation window.
type TransferPreview struct {
	Token             string
	RecipientChatID   int64
	RecipientUsername string
	Amount            int64
	ExpiresAt         time.Time
}

// InitiateTransfer validates the transfer and parks it until the sender
// confirms. The sender's transfer lock is held for the whole confirmation
// window so a second flow cannot start in parallel.
func (s *Service) InitiateTransfer(ctx context.Context, senderChatID int64, recipientPhone string, amount int64) (*TransferPreview, error) {
	log := logging.FromContext(ctx)

	if amount <= 0 {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrInvalidAmount)
	}
	if amount < s.config.TransferMin || amount > s.config.TransferMax {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrAmountOutOfRange)
	}

	sender, err := s.accounts.GetByChatID(ctx, senderChatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("InitiateTransfer: %w", err)
	}
	if sender.Banned {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrAccountBanned)
	}
	if sender.Balance < amount {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrInsufficientFunds)
	}

	recipient, err := s.accounts.GetByPhone(ctx, recipientPhone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrRecipientNotFound)
		}
		return nil, fmt.Errorf("InitiateTransfer: %w", err)
	}
	if recipient.ChatID == senderChatID {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrSelfTransfer)
	}
	if recipient.Banned {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrRecipientNotFound)
	}

	if !s.locks.Acquire(senderChatID, lock.ClassTransfer) {
		return nil, fmt.Errorf("InitiateTransfer: %w", domain.ErrOperationInProgress)
	}

	ttl := s.config.ConfirmTimeout()
	p := &pendingTransfer{
		SenderID:  senderChatID,
		Recipient: recipient.ChatID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	token := s.pending.put(p, ttl, func(expired *pendingTransfer) {
		s.locks.Release(expired.SenderID, lock.ClassTransfer)
		if s.metrics != nil {
			s.metrics.ConfirmExpirations.Inc()
		}
	})

	log.Info("transfer initiated",
		"sender", senderChatID,
		"recipient", recipient.ChatID,
		"amount", amount,
	)

	return &TransferPreview{
		Token:             token,
		RecipientChatID:   recipient.ChatID,
		RecipientUsername: recipient.Username,
		Amount:            amount,
		ExpiresAt:         p.CreatedAt.Add(ttl),
	}, nil
}

// ConfirmTransfer executes a previously initiated transfer. Debit and credit
// land in one database transaction with both accounts row-locked, so the
// recipient can never be credited without the sender being debited.
func (s *Service) ConfirmTransfer(ctx context.Context, senderChatID int64, token string) (*domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)

	p := s.pending.take(token)
	if p == nil {
		return nil, fmt.Errorf("ConfirmTransfer: %w", domain.ErrConfirmationExpired)
	}
	if p.SenderID != senderChatID {
		// Not the initiator's token. Put nothing back; the lock still
		// belongs to the real initiator and is released below only on
		// their behalf, so hand the entry back to the registry.
		s.requeue(p)
		return nil, fmt.Errorf("ConfirmTransfer: %w", domain.ErrConfirmationExpired)
	}
	defer s.locks.Release(p.SenderID, lock.ClassTransfer)

	var entry *domain.LedgerEntry
	err := withVersionRetry(func() error {
		e, err := s.executeTransfer(ctx, p)
		entry = e
		return err
	})
	if err != nil {
		s.countOperation(domain.LedgerKindTransfer, domain.LedgerStatusFailed)
		return nil, fmt.Errorf("ConfirmTransfer: %w", err)
	}

	s.countOperation(domain.LedgerKindTransfer, domain.LedgerStatusCompleted)
	log.Info("transfer completed",
		"transaction_id", entry.TransactionID,
		"sender", p.SenderID,
		"recipient", p.Recipient,
		"amount", p.Amount,
	)
	return entry, nil
}

// CancelTransfer abandons a pending transfer and frees the sender's lock.
func (s *Service) CancelTransfer(ctx context.Context, senderChatID int64, token string) error {
	p := s.pending.take(token)
	if p == nil {
		return fmt.Errorf("CancelTransfer: %w", domain.ErrConfirmationExpired)
	}
	if p.SenderID != senderChatID {
		s.requeue(p)
		return fmt.Errorf("CancelTransfer: %w", domain.ErrConfirmationExpired)
	}
	s.locks.Release(p.SenderID, lock.ClassTransfer)
	return nil
}

// requeue restores an entry taken by the wrong caller, preserving whatever
// remains of its original confirmation window.
func (s *Service) requeue(p *pendingTransfer) {
	remaining := time.Until(p.CreatedAt.Add(s.config.ConfirmTimeout()))
	if remaining <= 0 {
		s.locks.Release(p.SenderID, lock.ClassTransfer)
		return
	}
	token := p.Token
	s.pending.mu.Lock()
	p.timer = time.AfterFunc(remaining, func() {
		if expired := s.pending.take(token); expired != nil {
			s.locks.Release(expired.SenderID, lock.ClassTransfer)
			if s.metrics != nil {
				s.metrics.ConfirmExpirations.Inc()
			}
		}
	})
	s.pending.entries[token] = p
	s.pending.mu.Unlock()
}

func (s *Service) executeTransfer(ctx context.Context, p *pendingTransfer) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.lockAccountsInOrder(ctx, tx, p.SenderID, p.Recipient)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}
	sender := locked[p.SenderID]
	recipient := locked[p.Recipient]

	if sender.Banned {
		return nil, fmt.Errorf("executeTransfer: %w", domain.ErrAccountBanned)
	}
	if sender.Balance < p.Amount {
		return nil, fmt.Errorf("executeTransfer: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	dest := p.Recipient
	entry := &domain.LedgerEntry{
		TransactionID: newTransactionID(),
		Kind:          domain.LedgerKindTransfer,
		Status:        domain.LedgerStatusCompleted,
		Amount:        p.Amount,
		SourceChatID:  p.SenderID,
		DestChatID:    &dest,
		PaymentMethod: "internal",
		CreatedAt:     now,
		UpdatedAt:     now,
		CompletedAt:   &now,
	}
	if err := s.createEntryWithFreshID(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("executeTransfer: create entry: %w", err)
	}

	if err := s.accounts.UpdateBalances(ctx, tx, sender.ChatID, sender.Balance-p.Amount, sender.Bonus, sender.Version+1); err != nil {
		return nil, fmt.Errorf("executeTransfer: debit sender: %w", err)
	}
	if err := s.accounts.UpdateBalances(ctx, tx, recipient.ChatID, recipient.Balance+p.Amount, recipient.Bonus, recipient.Version+1); err != nil {
		return nil, fmt.Errorf("executeTransfer: credit recipient: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeTransfer: commit: %w", err)
	}
	return entry, nil
}

// lockAccountsInOrder takes row locks on both accounts in ascending chat id
// order, the same order every writer uses, so two concurrent transfers
// between the same pair cannot deadlock.
func (s *Service) lockAccountsInOrder(ctx context.Context, tx *sql.Tx, a, b int64) (map[int64]*domain.Account, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	out := make(map[int64]*domain.Account, 2)
	for _, id := range []int64{first, second} {
		acct, err := s.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("lockAccountsInOrder: account %d: %w", id, domain.ErrAccountNotFound)
			}
			return nil, fmt.Errorf("lockAccountsInOrder: account %d: %w", id, err)
		}
		out[id] = acct
	}
	return out, nil
}
