package domain

import "time"

type LedgerKind string

const (
	LedgerKindDeposit    LedgerKind = "deposit"
	LedgerKindWithdrawal LedgerKind = "withdrawal"
	LedgerKindTransfer   LedgerKind = "transfer"
)

type LedgerStatus string

const (
	LedgerStatusPendingApproval LedgerStatus = "PENDING_APPROVAL"
	LedgerStatusCompleted       LedgerStatus = "COMPLETED"
	LedgerStatusFailed          LedgerStatus = "FAILED"
	LedgerStatusDeclined        LedgerStatus = "DECLINED"
)

// IsTerminal reports whether s is one of the immutable final states.
func (s LedgerStatus) IsTerminal() bool {
	switch s {
	case LedgerStatusCompleted, LedgerStatusFailed, LedgerStatusDeclined:
		return true
	default:
		return false
	}
}

// LedgerEntry records a single money movement. TransactionID is the
// externally visible identifier handed to the payment gateway and to users;
// it is generated by the core and regenerated on collision, never reused.
//
// Status transitions exactly once from PENDING_APPROVAL to a terminal state.
// Compensated marks that a failed withdrawal's debit has been re-credited,
// so reconciliation can never apply the compensation twice.
type LedgerEntry struct {
	TransactionID string
	Kind          LedgerKind
	Status        LedgerStatus
	Amount        int64 // santim, always positive
	SourceChatID  int64
	DestChatID    *int64 // transfers only
	PaymentMethod string
	AccountNumber *string // payout destination (phone or bank account)
	BankReference *string // user-supplied slip reference for manual deposits
	ExternalRef   *string // gateway's own id, nil until assigned
	ApprovedBy    *string
	FailureReason *string
	Compensated   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}
