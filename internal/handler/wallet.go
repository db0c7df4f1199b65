package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
	"github.com/mikiyas-z/bingo-wallet/internal/service/wallet"
)

type walletService interface {
	Register(ctx context.Context, req wallet.RegisterRequest) (*domain.Account, error)
	GetAccount(ctx context.Context, chatID int64) (*domain.Account, error)
	History(ctx context.Context, chatID int64, limit, offset int) ([]domain.LedgerEntry, int, error)
	InitiateTransfer(ctx context.Context, senderChatID int64, recipientPhone string, amount int64) (*wallet.TransferPreview, error)
	ConfirmTransfer(ctx context.Context, senderChatID int64, token string) (*domain.LedgerEntry, error)
	CancelTransfer(ctx context.Context, senderChatID int64, token string) error
	Withdraw(ctx context.Context, req wallet.WithdrawRequest) (*domain.LedgerEntry, error)
	Deposit(ctx context.Context, req wallet.DepositRequest) (*domain.LedgerEntry, error)
	SubmitManualDeposit(ctx context.Context, req wallet.ManualDepositRequest) (*domain.LedgerEntry, error)
	ConvertBonus(ctx context.Context, chatID int64, points int64) (int64, error)
}

type WalletHandler struct {
	wallet walletService
}

func NewWalletHandler(svc walletService) *WalletHandler {
	return &WalletHandler{wallet: svc}
}

// parseAmount converts a decimal birr string like "40.50" into santim.
// More than two decimal places is rejected rather than rounded.
func parseAmount(s string) (int64, *FieldError) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &FieldError{Field: "amount", Message: "must be a decimal number"}
	}
	if d.Exponent() < -2 {
		return 0, &FieldError{Field: "amount", Message: "at most two decimal places"}
	}
	santim := d.Mul(decimal.NewFromInt(100))
	if !santim.IsInteger() {
		return 0, &FieldError{Field: "amount", Message: "at most two decimal places"}
	}
	if !santim.IsPositive() {
		return 0, &FieldError{Field: "amount", Message: "must be greater than 0"}
	}
	return santim.IntPart(), nil
}

func formatSantim(v int64) string {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func chatIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("chatID"), 10, 64)
	return id, err == nil
}

type registerRequest struct {
	ChatID      int64  `json:"chat_id"`
	PhoneNumber string `json:"phone_number"`
	Username    string `json:"username"`
	ReferredBy  *int64 `json:"referred_by,omitempty"`
}

func (r registerRequest) Validate() []FieldError {
	var errs []FieldError
	if r.ChatID == 0 {
		errs = append(errs, FieldError{Field: "chat_id", Message: "required"})
	}
	if r.PhoneNumber == "" {
		errs = append(errs, FieldError{Field: "phone_number", Message: "required"})
	}
	return errs
}

type accountDTO struct {
	ChatID        int64     `json:"chat_id"`
	PhoneNumber   string    `json:"phone_number"`
	Username      string    `json:"username,omitempty"`
	Balance       string    `json:"balance"`
	Bonus         int64     `json:"bonus"`
	ReferralCount int       `json:"referral_count"`
	Banned        bool      `json:"banned"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ChatID:        a.ChatID,
		PhoneNumber:   a.PhoneNumber,
		Username:      a.Username,
		Balance:       formatSantim(a.Balance),
		Bonus:         a.Bonus,
		ReferralCount: a.ReferralCount,
		Banned:        a.Banned,
		CreatedAt:     a.CreatedAt,
	}
}

type entryDTO struct {
	TransactionID string     `json:"transaction_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	SourceChatID  int64      `json:"source_chat_id"`
	DestChatID    *int64     `json:"dest_chat_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	BankReference *string    `json:"bank_reference,omitempty"`
	ExternalRef   *string    `json:"external_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toEntryDTO(e *domain.LedgerEntry) entryDTO {
	return entryDTO{
		TransactionID: e.TransactionID,
		Kind:          string(e.Kind),
		Status:        string(e.Status),
		Amount:        formatSantim(e.Amount),
		SourceChatID:  e.SourceChatID,
		DestChatID:    e.DestChatID,
		PaymentMethod: e.PaymentMethod,
		BankReference: e.BankReference,
		ExternalRef:   e.ExternalRef,
		FailureReason: e.FailureReason,
		CreatedAt:     e.CreatedAt,
		CompletedAt:   e.CompletedAt,
	}
}

// operationResult is the envelope for money-moving endpoints. Status tells
// the bot layer what to say to the user; a pending status means the outcome
// arrives later through reconciliation.
type operationResult struct {
	Status        string   `json:"status"`
	LedgerEntryID string   `json:"ledger_entry_id"`
	Message       string   `json:"message,omitempty"`
	Entry         entryDTO `json:"entry"`
}

func toOperationResult(e *domain.LedgerEntry, msg string) operationResult {
	return operationResult{
		Status:        string(e.Status),
		LedgerEntryID: e.TransactionID,
		Message:       msg,
		Entry:         toEntryDTO(e),
	}
}

func (h *WalletHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	acct, err := h.wallet.Register(r.Context(), wallet.RegisterRequest{
		ChatID:      req.ChatID,
		PhoneNumber: req.PhoneNumber,
		Username:    req.Username,
		ReferredBy:  req.ReferredBy,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusCreated, toAccountDTO(acct))
}

func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(r)
	if !ok {
		RespondValidationError(w, []FieldError{{Field: "chatID", Message: "must be an integer"}})
		return
	}

	acct, err := h.wallet.GetAccount(r.Context(), chatID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(acct))
}

func (h *WalletHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(r)
	if !ok {
		RespondValidationError(w, []FieldError{{Field: "chatID", Message: "must be an integer"}})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, total, err := h.wallet.History(r.Context(), chatID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]entryDTO, 0, len(entries))
	for i := range entries {
		dtos = append(dtos, toEntryDTO(&entries[i]))
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"entries": dtos,
		"total":   total,
	})
}

type createTransferRequest struct {
	SenderChatID   int64  `json:"sender_chat_id"`
	RecipientPhone string `json:"recipient_phone"`
	Amount         string `json:"amount"`
}

func (h *WalletHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.SenderChatID == 0 {
		fields = append(fields, FieldError{Field: "sender_chat_id", Message: "required"})
	}
	if req.RecipientPhone == "" {
		fields = append(fields, FieldError{Field: "recipient_phone", Message: "required"})
	}
	amount, amountErr := parseAmount(req.Amount)
	if amountErr != nil {
		fields = append(fields, *amountErr)
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	preview, err := h.wallet.InitiateTransfer(r.Context(), req.SenderChatID, req.RecipientPhone, amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusCreated, map[string]any{
		"token":              preview.Token,
		"recipient_chat_id":  preview.RecipientChatID,
		"recipient_username": preview.RecipientUsername,
		"amount":             formatSantim(preview.Amount),
		"expires_at":         preview.ExpiresAt.Format(time.RFC3339),
	})
}

type confirmTransferRequest struct {
	SenderChatID int64 `json:"sender_chat_id"`
}

func (h *WalletHandler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	var req confirmTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	entry, err := h.wallet.ConfirmTransfer(r.Context(), req.SenderChatID, r.PathValue("token"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toOperationResult(entry, "transfer completed"))
}

func (h *WalletHandler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	var req confirmTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.wallet.CancelTransfer(r.Context(), req.SenderChatID, r.PathValue("token")); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type createWithdrawalRequest struct {
	ChatID        int64  `json:"chat_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	AccountNumber string `json:"account_number"`
}

func (h *WalletHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.ChatID == 0 {
		fields = append(fields, FieldError{Field: "chat_id", Message: "required"})
	}
	if req.Method == "" {
		fields = append(fields, FieldError{Field: "method", Message: "required"})
	}
	if req.AccountNumber == "" {
		fields = append(fields, FieldError{Field: "account_number", Message: "required"})
	}
	amount, amountErr := parseAmount(req.Amount)
	if amountErr != nil {
		fields = append(fields, *amountErr)
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entry, err := h.wallet.Withdraw(r.Context(), wallet.WithdrawRequest{
		ChatID:        req.ChatID,
		Amount:        amount,
		Method:        req.Method,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	msg := "withdrawal submitted"
	if entry.Status == domain.LedgerStatusCompleted {
		msg = "withdrawal completed"
	}
	log.Info("withdrawal request accepted", "transaction_id", entry.TransactionID, "status", entry.Status)
	RespondSuccess(w, http.StatusAccepted, toOperationResult(entry, msg))
}

type createDepositRequest struct {
	ChatID     int64  `json:"chat_id"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	PayerPhone string `json:"payer_phone"`
}

func (h *WalletHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.ChatID == 0 {
		fields = append(fields, FieldError{Field: "chat_id", Message: "required"})
	}
	if req.Method == "" {
		fields = append(fields, FieldError{Field: "method", Message: "required"})
	}
	if req.PayerPhone == "" {
		fields = append(fields, FieldError{Field: "payer_phone", Message: "required"})
	}
	amount, amountErr := parseAmount(req.Amount)
	if amountErr != nil {
		fields = append(fields, *amountErr)
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entry, err := h.wallet.Deposit(r.Context(), wallet.DepositRequest{
		ChatID:     req.ChatID,
		Amount:     amount,
		Method:     req.Method,
		PayerPhone: req.PayerPhone,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusAccepted, toOperationResult(entry, "deposit initiated"))
}

type manualDepositRequest struct {
	ChatID        int64  `json:"chat_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	BankReference string `json:"bank_reference"`
}

func (h *WalletHandler) CreateManualDeposit(w http.ResponseWriter, r *http.Request) {
	var req manualDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.ChatID == 0 {
		fields = append(fields, FieldError{Field: "chat_id", Message: "required"})
	}
	if req.BankReference == "" {
		fields = append(fields, FieldError{Field: "bank_reference", Message: "required"})
	}
	amount, amountErr := parseAmount(req.Amount)
	if amountErr != nil {
		fields = append(fields, *amountErr)
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entry, err := h.wallet.SubmitManualDeposit(r.Context(), wallet.ManualDepositRequest{
		ChatID:        req.ChatID,
		Amount:        amount,
		Method:        req.Method,
		BankReference: req.BankReference,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusAccepted, toOperationResult(entry, "deposit awaiting approval"))
}

type convertBonusRequest struct {
	ChatID int64 `json:"chat_id"`
	Points int64 `json:"points"`
}

func (h *WalletHandler) ConvertBonus(w http.ResponseWriter, r *http.Request) {
	var req convertBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.ChatID == 0 {
		fields = append(fields, FieldError{Field: "chat_id", Message: "required"})
	}
	if req.Points <= 0 {
		fields = append(fields, FieldError{Field: "points", Message: "must be greater than 0"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	credit, err := h.wallet.ConvertBonus(r.Context(), req.ChatID, req.Points)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"points_converted": req.Points,
		"credited":         formatSantim(credit),
	})
}
