package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

type adminWalletService interface {
	ApproveManualDeposit(ctx context.Context, transactionID, approvedBy string) error
	RejectManualDeposit(ctx context.Context, transactionID, rejectedBy, reason string) error
	PollGatewayStatus(ctx context.Context, transactionID string) (*domain.LedgerEntry, error)
	SetBanned(ctx context.Context, chatID int64, banned bool) error
}

// AdminHandler exposes the operator actions the bot's admin group uses:
// settling manual bank-slip deposits and force-polling the gateway for a
// stuck transaction.
type AdminHandler struct {
	wallet adminWalletService
}

func NewAdminHandler(svc adminWalletService) *AdminHandler {
	return &AdminHandler{wallet: svc}
}

type adminDecisionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

func (h *AdminHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	var req adminDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Actor == "" {
		RespondValidationError(w, []FieldError{{Field: "actor", Message: "required"}})
		return
	}

	if err := h.wallet.ApproveManualDeposit(r.Context(), r.PathValue("txID"), req.Actor); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *AdminHandler) DeclineDeposit(w http.ResponseWriter, r *http.Request) {
	var req adminDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Actor == "" {
		RespondValidationError(w, []FieldError{{Field: "actor", Message: "required"}})
		return
	}

	if err := h.wallet.RejectManualDeposit(r.Context(), r.PathValue("txID"), req.Actor, req.Reason); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "declined"})
}

type banRequest struct {
	Banned bool `json:"banned"`
}

func (h *AdminHandler) SetBanned(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(r)
	if !ok {
		RespondValidationError(w, []FieldError{{Field: "chatID", Message: "must be an integer"}})
		return
	}

	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.wallet.SetBanned(r.Context(), chatID, req.Banned); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"chat_id": chatID, "banned": req.Banned})
}

func (h *AdminHandler) PollTransaction(w http.ResponseWriter, r *http.Request) {
	entry, err := h.wallet.PollGatewayStatus(r.Context(), r.PathValue("txID"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toEntryDTO(entry))
}
