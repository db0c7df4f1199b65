package wallet

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikiyas-z/bingo-wallet/internal/config"
	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/gateway"
	"github.com/mikiyas-z/bingo-wallet/internal/lock"
	"github.com/mikiyas-z/bingo-wallet/internal/repository"
	"github.com/mikiyas-z/bingo-wallet/internal/testutil"
)

type stubGateway struct {
	payoutAck  *gateway.Ack
	payoutErr  error
	chargeAck  *gateway.Ack
	chargeErr  error
	statusRes  *gateway.StatusResult
	statusErr  error
	payoutReqs []gateway.PayoutRequest
	chargeReqs []gateway.ChargeRequest
}

func (s *stubGateway) InitiateCharge(_ context.Context, req gateway.ChargeRequest) (*gateway.Ack, error) {
	s.chargeReqs = append(s.chargeReqs, req)
	if s.chargeErr != nil {
		return nil, s.chargeErr
	}
	if s.chargeAck != nil {
		return s.chargeAck, nil
	}
	return &gateway.Ack{ExternalRef: "ext-charge", Status: gateway.StatusPending}, nil
}

func (s *stubGateway) InitiatePayout(_ context.Context, req gateway.PayoutRequest) (*gateway.Ack, error) {
	s.payoutReqs = append(s.payoutReqs, req)
	if s.payoutErr != nil {
		return nil, s.payoutErr
	}
	if s.payoutAck != nil {
		return s.payoutAck, nil
	}
	return &gateway.Ack{ExternalRef: "ext-payout", Status: gateway.StatusPending}, nil
}

func (s *stubGateway) CheckStatus(_ context.Context, _ string) (*gateway.StatusResult, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	if s.statusRes != nil {
		return s.statusRes, nil
	}
	return &gateway.StatusResult{Status: gateway.StatusPending}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		TransferMin:     3000,
		TransferMax:     200000,
		WithdrawMin:     3000,
		WithdrawMax:     200000,
		DepositMin:      1000,
		DepositMax:      2000000,
		ConfirmTimeoutS: 120,
		LockTTLS:        60,
		ReferralBonus:   100,
		BonusRate:       0.1,
	}
}

func setupService(t *testing.T, db *sql.DB, gw *stubGateway, cfg *config.Config) *Service {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	return NewService(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		gw,
		lock.NewRegistry(cfg.LockTTL(), nil),
		db,
		cfg,
		nil,
	)
}

func TestTransfer_EndToEnd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0) // 100.00 birr
	testutil.SeedAccount(t, db, 200, "0911000002", 1000, 0)  // 10.00 birr

	preview, err := svc.InitiateTransfer(ctx, 100, "0911000002", 4000)
	require.NoError(t, err)
	assert.Equal(t, int64(200), preview.RecipientChatID)

	entry, err := svc.ConfirmTransfer(ctx, 100, preview.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusCompleted, entry.Status)
	require.NotNil(t, entry.CompletedAt)

	assert.Equal(t, int64(6000), testutil.GetBalance(t, db, 100))
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 200))

	// confirming again fails, the token is spent
	_, err = svc.ConfirmTransfer(ctx, 100, preview.Token)
	require.ErrorIs(t, err, domain.ErrConfirmationExpired)
}

func TestTransfer_InsufficientFundsLeavesBalancesUntouched(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 3500, 0)
	testutil.SeedAccount(t, db, 200, "0911000002", 0, 0)

	_, err := svc.InitiateTransfer(ctx, 100, "0911000002", 4000)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(3500), testutil.GetBalance(t, db, 100))
	assert.Equal(t, int64(0), testutil.GetBalance(t, db, 200))
	assert.Equal(t, 0, testutil.CountEntries(t, db, 100))
}

func TestTransfer_SelfTransferRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0)

	_, err := svc.InitiateTransfer(ctx, 100, "0911000001", 4000)
	require.ErrorIs(t, err, domain.ErrSelfTransfer)
}

func TestTransfer_SecondInitiateRejectedWhilePending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 20000, 0)
	testutil.SeedAccount(t, db, 200, "0911000002", 0, 0)

	_, err := svc.InitiateTransfer(ctx, 100, "0911000002", 4000)
	require.NoError(t, err)

	_, err = svc.InitiateTransfer(ctx, 100, "0911000002", 3000)
	require.ErrorIs(t, err, domain.ErrOperationInProgress)
}

func TestTransfer_CancelFreesLock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 20000, 0)
	testutil.SeedAccount(t, db, 200, "0911000002", 0, 0)

	preview, err := svc.InitiateTransfer(ctx, 100, "0911000002", 4000)
	require.NoError(t, err)

	require.NoError(t, svc.CancelTransfer(ctx, 100, preview.Token))

	// lock is gone, a new transfer can start
	_, err = svc.InitiateTransfer(ctx, 100, "0911000002", 3000)
	require.NoError(t, err)

	assert.Equal(t, int64(20000), testutil.GetBalance(t, db, 100))
}

func TestTransfer_ConfirmTimeoutAutoCancels(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.ConfirmTimeoutS = 0 // fires nearly immediately
	svc := setupService(t, db, &stubGateway{}, cfg)

	testutil.SeedAccount(t, db, 100, "0911000001", 20000, 0)
	testutil.SeedAccount(t, db, 200, "0911000002", 0, 0)

	preview, err := svc.InitiateTransfer(ctx, 100, "0911000002", 4000)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return svc.pending.len() == 0
	}, time.Second, 5*time.Millisecond)

	_, err = svc.ConfirmTransfer(ctx, 100, preview.Token)
	require.ErrorIs(t, err, domain.ErrConfirmationExpired)
	assert.Equal(t, int64(20000), testutil.GetBalance(t, db, 100))

	// expiry released the lock
	_, err = svc.InitiateTransfer(ctx, 100, "0911000002", 3000)
	require.NoError(t, err)
}

func TestWithdraw_PendingThenCompleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0)

	entry, err := svc.Withdraw(ctx, WithdrawRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", AccountNumber: "0911000001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusPendingApproval, entry.Status)
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))

	require.NoError(t, svc.Reconcile(ctx, entry.TransactionID, domain.LedgerStatusCompleted, nil, nil))

	status, compensated := testutil.GetEntryStatus(t, db, entry.TransactionID)
	assert.Equal(t, "COMPLETED", status)
	assert.False(t, compensated)
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))
}

func TestWithdraw_GatewayUnavailableKeepsDebit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	gw := &stubGateway{payoutErr: domain.ErrGatewayUnavailable}
	svc := setupService(t, db, gw, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0)

	entry, err := svc.Withdraw(ctx, WithdrawRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", AccountNumber: "0911000001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusPendingApproval, entry.Status)
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))
}

func TestWithdraw_FailureCompensatesExactlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0)

	entry, err := svc.Withdraw(ctx, WithdrawRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", AccountNumber: "0911000001",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))

	reason := "insufficient float"
	require.NoError(t, svc.Reconcile(ctx, entry.TransactionID, domain.LedgerStatusFailed, nil, &reason))

	status, compensated := testutil.GetEntryStatus(t, db, entry.TransactionID)
	assert.Equal(t, "FAILED", status)
	assert.True(t, compensated)
	assert.Equal(t, int64(10000), testutil.GetBalance(t, db, 100))

	// replaying the failure callback must not credit again
	require.NoError(t, svc.Reconcile(ctx, entry.TransactionID, domain.LedgerStatusFailed, nil, &reason))
	assert.Equal(t, int64(10000), testutil.GetBalance(t, db, 100))
}

func TestWithdraw_DeclinedAckReversesImmediately(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	gw := &stubGateway{payoutAck: &gateway.Ack{ExternalRef: "ext-1", Status: gateway.StatusDeclined}}
	svc := setupService(t, db, gw, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0)

	entry, err := svc.Withdraw(ctx, WithdrawRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", AccountNumber: "0911000001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusDeclined, entry.Status)

	status, compensated := testutil.GetEntryStatus(t, db, entry.TransactionID)
	assert.Equal(t, "DECLINED", status)
	assert.True(t, compensated)
	assert.Equal(t, int64(10000), testutil.GetBalance(t, db, 100))
}

func TestWithdraw_SecondAttemptRejectedWhileLocked(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 20000, 0)

	require.True(t, svc.locks.Acquire(100, lock.ClassWithdraw))
	defer svc.locks.Release(100, lock.ClassWithdraw)

	_, err := svc.Withdraw(ctx, WithdrawRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", AccountNumber: "0911000001",
	})
	require.ErrorIs(t, err, domain.ErrOperationInProgress)
	assert.Equal(t, int64(20000), testutil.GetBalance(t, db, 100))
}

func TestDeposit_PendingNeverCredits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 0, 0)

	entry, err := svc.Deposit(ctx, DepositRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", PayerPhone: "0911000001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusPendingApproval, entry.Status)
	assert.Equal(t, int64(0), testutil.GetBalance(t, db, 100))
}

func TestDeposit_DoubleCompletedCreditsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 0, 0)

	entry, err := svc.Deposit(ctx, DepositRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", PayerPhone: "0911000001",
	})
	require.NoError(t, err)

	ref := "ext-123"
	require.NoError(t, svc.Reconcile(ctx, entry.TransactionID, domain.LedgerStatusCompleted, &ref, nil))
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))

	// redelivered callback is a no-op
	require.NoError(t, svc.Reconcile(ctx, entry.TransactionID, domain.LedgerStatusCompleted, &ref, nil))
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))
}

func TestDeposit_FailedNeverCredits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 0, 0)

	entry, err := svc.Deposit(ctx, DepositRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", PayerPhone: "0911000001",
	})
	require.NoError(t, err)

	reason := "payer cancelled"
	require.NoError(t, svc.Reconcile(ctx, entry.TransactionID, domain.LedgerStatusFailed, nil, &reason))

	status, _ := testutil.GetEntryStatus(t, db, entry.TransactionID)
	assert.Equal(t, "FAILED", status)
	assert.Equal(t, int64(0), testutil.GetBalance(t, db, 100))
}

func TestManualDeposit_ApproveAndDecline(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 0, 0)

	entry, err := svc.SubmitManualDeposit(ctx, ManualDepositRequest{
		ChatID: 100, Amount: 5000, BankReference: "CBE-REF-001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusPendingApproval, entry.Status)

	// reusing the slip is rejected, even after the lock is free
	_, err = svc.SubmitManualDeposit(ctx, ManualDepositRequest{
		ChatID: 100, Amount: 5000, BankReference: "CBE-REF-001",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateReference)

	require.NoError(t, svc.ApproveManualDeposit(ctx, entry.TransactionID, "admin-1"))
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))

	// approving twice reports the entry as settled
	err = svc.ApproveManualDeposit(ctx, entry.TransactionID, "admin-2")
	require.ErrorIs(t, err, domain.ErrEntryTerminal)
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))

	declined, err := svc.SubmitManualDeposit(ctx, ManualDepositRequest{
		ChatID: 100, Amount: 3000, BankReference: "CBE-REF-002",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RejectManualDeposit(ctx, declined.TransactionID, "admin-1", "slip unreadable"))
	status, _ := testutil.GetEntryStatus(t, db, declined.TransactionID)
	assert.Equal(t, "DECLINED", status)
	assert.Equal(t, int64(5000), testutil.GetBalance(t, db, 100))
}

func TestConvertBonus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 0, 150)

	credit, err := svc.ConvertBonus(ctx, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), credit) // 100 points at 0.1 birr each

	assert.Equal(t, int64(1000), testutil.GetBalance(t, db, 100))
	assert.Equal(t, int64(50), testutil.GetBonus(t, db, 100))

	_, err = svc.ConvertBonus(ctx, 100, 100)
	require.ErrorIs(t, err, domain.ErrInsufficientBonus)
}

func TestRegister_WithReferral(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	referrer := testutil.SeedAccount(t, db, 100, "0911000001", 0, 0)

	referredBy := referrer.ChatID
	acct, err := svc.Register(ctx, RegisterRequest{
		ChatID:      200,
		PhoneNumber: "0911000002",
		Username:    "newplayer",
		ReferredBy:  &referredBy,
	})
	require.NoError(t, err)
	require.NotNil(t, acct.ReferredBy)
	assert.Equal(t, int64(100), *acct.ReferredBy)

	assert.Equal(t, int64(100), testutil.GetBonus(t, db, 100))

	var count int
	require.NoError(t, db.QueryRow(`SELECT referral_count FROM accounts WHERE chat_id = 100`).Scan(&count))
	assert.Equal(t, 1, count)

	var paid bool
	require.NoError(t, db.QueryRow(`SELECT bonus_received FROM accounts WHERE chat_id = 200`).Scan(&paid))
	assert.True(t, paid, "referral payout recorded on the referred account")

	// duplicate phone
	_, err = svc.Register(ctx, RegisterRequest{ChatID: 300, PhoneNumber: "0911000002"})
	require.ErrorIs(t, err, domain.ErrPhoneExists)

	// duplicate chat id
	_, err = svc.Register(ctx, RegisterRequest{ChatID: 200, PhoneNumber: "0911000003"})
	require.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestBannedAccountBlocked(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 10000, 0)
	testutil.SeedAccount(t, db, 200, "0911000002", 0, 0)
	testutil.BanAccount(t, db, 100)

	_, err := svc.InitiateTransfer(ctx, 100, "0911000002", 4000)
	require.ErrorIs(t, err, domain.ErrAccountBanned)

	_, err = svc.Withdraw(ctx, WithdrawRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", AccountNumber: "0911000001",
	})
	require.ErrorIs(t, err, domain.ErrAccountBanned)

	_, err = svc.Deposit(ctx, DepositRequest{
		ChatID: 100, Amount: 5000, Method: "telebirr", PayerPhone: "0911000001",
	})
	require.ErrorIs(t, err, domain.ErrAccountBanned)
}

func TestHistoryPaging(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupService(t, db, &stubGateway{}, nil)

	testutil.SeedAccount(t, db, 100, "0911000001", 1_000_000, 0)
	testutil.SeedAccount(t, db, 200, "0911000002", 0, 0)

	for range 3 {
		preview, err := svc.InitiateTransfer(ctx, 100, "0911000002", 3000)
		require.NoError(t, err)
		_, err = svc.ConfirmTransfer(ctx, 100, preview.Token)
		require.NoError(t, err)
	}

	entries, total, err := svc.History(ctx, 100, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, entries, 2)

	// recipient sees the same transfers
	_, recipientTotal, err := svc.History(ctx, 200, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, recipientTotal)
}
