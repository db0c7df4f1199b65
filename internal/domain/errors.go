package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrAccountExists        = errors.New("account already registered")
	ErrPhoneExists          = errors.New("phone number already registered")
	ErrAccountBanned        = errors.New("account is banned")
	ErrSelfTransfer         = errors.New("cannot transfer to yourself")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientBonus    = errors.New("insufficient bonus points")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrAmountOutOfRange     = errors.New("amount outside allowed range")
	ErrOperationInProgress  = errors.New("operation already in progress")
	ErrConfirmationExpired  = errors.New("confirmation expired or cancelled")
	ErrVersionConflict      = errors.New("optimistic lock conflict")
	ErrEntryTerminal        = errors.New("ledger entry already in terminal state")
	ErrDuplicateTransaction = errors.New("transaction id already exists")
	ErrDuplicateReference   = errors.New("bank reference already submitted")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)
