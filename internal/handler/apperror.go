package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInsufficientBonus   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BONUS", "Not enough bonus points"}
	ErrAccountBanned       = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_BANNED", "Account is banned"}
	ErrSelfTransfer        = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to yourself"}
	ErrRecipientNotFound   = &AppError{http.StatusUnprocessableEntity, "RECIPIENT_NOT_FOUND", "Recipient not found"}
	ErrAccountNotFound     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrAccountExists       = &AppError{http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", "Account already registered"}
	ErrPhoneExists         = &AppError{http.StatusConflict, "PHONE_ALREADY_REGISTERED", "Phone number already registered"}
	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrAmountOutOfRange    = &AppError{http.StatusUnprocessableEntity, "AMOUNT_OUT_OF_RANGE", "Amount outside allowed range"}
	ErrOperationInProgress = &AppError{http.StatusConflict, "OPERATION_IN_PROGRESS", "A similar operation is already in progress, try again later"}
	ErrConfirmationExpired = &AppError{http.StatusGone, "CONFIRMATION_EXPIRED", "Confirmation expired or was cancelled"}
	ErrVersionConflict     = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrDuplicateReference  = &AppError{http.StatusConflict, "DUPLICATE_REFERENCE", "Bank reference already submitted"}
	ErrEntryTerminal       = &AppError{http.StatusConflict, "ENTRY_ALREADY_SETTLED", "Transaction already settled"}
	ErrGatewayUnavailable  = &AppError{http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment gateway unavailable, try again later"}
	ErrInvalidCallback     = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Callback signature verification failed"}
)
