package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/lock"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
)

type RegisterRequest struct {
	ChatID      int64
	PhoneNumber string
	Username    string
	ReferredBy  *int64 // referrer's chat id, from the deep-link payload
}

// Register creates the account, granting the signup bonus and, when a valid
// referrer is named, the referrer's bonus points. Self-referral and unknown
// referrers are silently dropped rather than failing the signup.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if req.PhoneNumber == "" {
		return nil, fmt.Errorf("Register: phone number required: %w", domain.ErrInvalidRequest)
	}

	referredBy := req.ReferredBy
	if referredBy != nil {
		if *referredBy == req.ChatID {
			referredBy = nil
		} else if _, err := s.accounts.GetByChatID(ctx, *referredBy); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("Register: %w", err)
			}
			referredBy = nil
		}
	}

	now := time.Now().UTC()
	acct := &domain.Account{
		ChatID:      req.ChatID,
		PhoneNumber: req.PhoneNumber,
		Username:    req.Username,
		Bonus:       s.config.SignupBonus,
		Version:     1,
		ReferredBy:  referredBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	if referredBy != nil {
		if err := s.creditReferrer(ctx, *referredBy, acct.ChatID); err != nil {
			log.Warn("failed to credit referrer", "referrer", *referredBy, "error", err)
		}
	}

	log.Info("account registered", "chat_id", req.ChatID, "referred_by", referredBy)
	return acct, nil
}

// creditReferrer pays the referrer's bonus at most once per referred
// account, guarded by the bonus_received flag on the referred row.
func (s *Service) creditReferrer(ctx context.Context, referrerChatID, referredChatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("creditReferrer: begin tx: %w", err)
	}
	defer tx.Rollback()

	paid, err := s.accounts.MarkReferralPaid(ctx, tx, referredChatID)
	if err != nil {
		return fmt.Errorf("creditReferrer: %w", err)
	}
	if !paid {
		return nil
	}

	if err := s.accounts.RecordReferral(ctx, tx, referrerChatID, s.config.ReferralBonus); err != nil {
		return fmt.Errorf("creditReferrer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creditReferrer: commit: %w", err)
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, chatID int64) (*domain.Account, error) {
	acct, err := s.accounts.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetAccount: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acct, nil
}

// SetBanned flips the account's banned flag. Held locks and in-flight
// transactions are unaffected; the flag is re-checked at every debit.
func (s *Service) SetBanned(ctx context.Context, chatID int64, banned bool) error {
	log := logging.FromContext(ctx)

	if err := s.accounts.SetBanned(ctx, chatID, banned); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("SetBanned: %w", domain.ErrAccountNotFound)
		}
		return fmt.Errorf("SetBanned: %w", err)
	}

	log.Info("account ban flag updated", "chat_id", chatID, "banned", banned)
	return nil
}

// History returns the account's ledger entries, newest first.
func (s *Service) History(ctx context.Context, chatID int64, limit, offset int) ([]domain.LedgerEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	entries, total, err := s.ledger.ListByChatID(ctx, chatID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return entries, total, nil
}

// ConvertBonus exchanges bonus points for playable balance at the configured
// rate.
func (s *Service) ConvertBonus(ctx context.Context, chatID int64, points int64) (int64, error) {
	log := logging.FromContext(ctx)

	if !s.locks.Acquire(chatID, lock.ClassConvert) {
		return 0, fmt.Errorf("ConvertBonus: %w", domain.ErrOperationInProgress)
	}
	defer s.locks.Release(chatID, lock.ClassConvert)

	credit, err := s.converter.Convert(points)
	if err != nil {
		return 0, fmt.Errorf("ConvertBonus: %w", err)
	}

	err = withVersionRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		acct, err := s.accounts.GetForUpdate(ctx, tx, chatID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}
		if acct.Banned {
			return domain.ErrAccountBanned
		}
		if acct.Bonus < points {
			return domain.ErrInsufficientBonus
		}

		if err := s.accounts.UpdateBalances(ctx, tx, acct.ChatID, acct.Balance+credit, acct.Bonus-points, acct.Version+1); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("ConvertBonus: %w", err)
	}

	log.Info("bonus converted", "chat_id", chatID, "points", points, "credit", credit)
	return credit, nil
}
