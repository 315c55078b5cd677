/**
 * @description
 * This file contains the HTTP handlers for the wallet service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write the HTTP response. They act as the bridge between the web layer
 * and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameters.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/irfan-maish/inaf-e-wallet/internal/app"
	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// accountResponse mirrors the balance pair the wallet UI renders.
type accountResponse struct {
	ID              string `json:"id"`
	CashBalance     int64  `json:"cash_balance"`
	CardBalance     int64  `json:"card_balance"`
	HasActiveCard   bool   `json:"has_active_card"`
	CardActivatedAt string `json:"card_activated_at,omitempty"`
}

// transactionResponse is a single ledger entry as the history view expects
// it: the raw positive amount plus the signed display amount.
type transactionResponse struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Amount        int64   `json:"amount"`
	DisplayAmount int64   `json:"display_amount"`
	Direction     *string `json:"direction,omitempty"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	Reference     *string `json:"reference,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// transactionInitiationResponse is sent back immediately after a deposit,
// withdrawal or transfer request has been accepted.
type transactionInitiationResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Amount        int64  `json:"amount"`
}

// cardResponse is the card view: status plus credentials once verified. The
// card number is returned pre-formatted in blocks of four.
type cardResponse struct {
	Status      string  `json:"status"`
	Name        string  `json:"name"`
	SubmittedAt string  `json:"submitted_at"`
	VerifiedAt  *string `json:"verified_at,omitempty"`
	CardNumber  *string `json:"card_number,omitempty"`
	ExpiryDate  *string `json:"expiry_date,omitempty"`
	CVV         *string `json:"cvv,omitempty"`
}

func buildAccountResponse(account *domain.Account) accountResponse {
	resp := accountResponse{
		ID:            account.ID,
		CashBalance:   account.CashBalance,
		CardBalance:   account.CardBalance,
		HasActiveCard: account.HasActiveCard(),
	}
	if account.CardActivatedAt != nil {
		resp.CardActivatedAt = account.CardActivatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func buildTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID.String(),
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		DisplayAmount: tx.DisplayAmount(),
		Direction:     tx.Direction,
		Method:        tx.Method,
		Status:        tx.Status,
		Reference:     tx.Reference,
		Timestamp:     tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func buildCardResponse(application *domain.CardApplication) cardResponse {
	resp := cardResponse{
		Status:      application.Status,
		Name:        application.Name,
		SubmittedAt: application.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiryDate:  application.ExpiryDate,
		CVV:         application.CVV,
	}
	if application.VerifiedAt != nil {
		verifiedAt := application.VerifiedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.VerifiedAt = &verifiedAt
	}
	if application.CardNumber != nil {
		formatted := domain.FormatCardNumber(*application.CardNumber)
		resp.CardNumber = &formatted
	}
	return resp
}

// GetAccountHandler returns the authenticated account's balances,
// provisioning the account on first touch.
func (h *WalletHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, "get_account", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildAccountResponse(account))
}

// ListTransactionsHandler returns the account's ledger, newest first.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, "list_transactions", accountID, err)
		return
	}

	response := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		response = append(response, buildTransactionResponse(&transactions[i]))
	}
	h.writeJSON(w, http.StatusOK, response)
}

// DepositHandler accepts a deposit request and schedules its settlement.
func (h *WalletHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.Deposit(r.Context(), accountID, req)
	if err != nil {
		h.writeServiceError(w, "deposit", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transactionInitiationResponse{
		TransactionID: tx.ID.String(),
		Status:        tx.Status,
		Message:       "Deposit request submitted",
		Amount:        tx.Amount,
	})
}

// WithdrawHandler accepts a withdrawal request and schedules its settlement.
func (h *WalletHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.Withdraw(r.Context(), accountID, req)
	if err != nil {
		h.writeServiceError(w, "withdraw", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transactionInitiationResponse{
		TransactionID: tx.ID.String(),
		Status:        tx.Status,
		Message:       "Withdrawal request submitted",
		Amount:        tx.Amount,
	})
}

// CardTransferHandler moves value between the cash and card balances in the
// direction named by the request.
func (h *WalletHandlers) CardTransferHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CardTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var tx *domain.Transaction
	var err error
	switch req.Direction {
	case domain.TransferDirectionToCard:
		tx, err = h.service.TransferToCard(r.Context(), accountID, req.Amount)
	case domain.TransferDirectionToAccount:
		tx, err = h.service.TransferToAccount(r.Context(), accountID, req.Amount)
	default:
		h.writeError(w, http.StatusBadRequest, "Direction must be 'to_card' or 'to_account'")
		return
	}
	if err != nil {
		h.writeServiceError(w, "card_transfer", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transactionInitiationResponse{
		TransactionID: tx.ID.String(),
		Status:        tx.Status,
		Message:       "Transfer completed",
		Amount:        tx.Amount,
	})
}

// ApplyForCardHandler submits the account's card application.
func (h *WalletHandlers) ApplyForCardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CardApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.DOB == "" || req.Phone == "" || req.Email == "" {
		h.writeError(w, http.StatusBadRequest, "Name, DOB, phone and email are required")
		return
	}

	application, err := h.service.ApplyForCard(r.Context(), accountID, req)
	if err != nil {
		h.writeServiceError(w, "apply_for_card", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, buildCardResponse(application))
}

// VerifyCardHandler runs manual verification of the account's pending card
// application. Refused while the verification window is still open.
func (h *WalletHandlers) VerifyCardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	application, err := h.service.VerifyCard(r.Context(), accountID, false)
	if err != nil {
		h.writeServiceError(w, "verify_card", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildCardResponse(application))
}

// GetCardHandler returns the account's card application, if any.
func (h *WalletHandlers) GetCardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	application, err := h.service.GetCardApplication(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, "get_card", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildCardResponse(application))
}

// CancelSettlementHandler is the internal endpoint for cancelling a scheduled
// settlement before it fires.
func (h *WalletHandlers) CancelSettlementHandler(w http.ResponseWriter, r *http.Request) {
	txIDStr := chi.URLParam(r, "txID")
	txID, err := uuid.Parse(txIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	if err := h.service.CancelSettlement(r.Context(), txID); err != nil {
		h.writeServiceError(w, "cancel_settlement", txIDStr, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ForceVerifyCardHandler is the internal endpoint that verifies a pending
// application without waiting out the verification window.
func (h *WalletHandlers) ForceVerifyCardHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		h.writeError(w, http.StatusBadRequest, "Account ID is required")
		return
	}

	application, err := h.service.VerifyCard(r.Context(), accountID, true)
	if err != nil {
		h.writeServiceError(w, "force_verify_card", accountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildCardResponse(application))
}

// writeServiceError maps service and store errors onto HTTP responses.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, endpoint, subject string, err error) {
	var rateLimitErr *app.RateLimitError
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, "User not authenticated")
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be greater than 0")
	case errors.Is(err, app.ErrNoVerifiedCard):
		h.writeError(w, http.StatusBadRequest, "No verified card available")
	case errors.Is(err, app.ErrVerificationWindowOpen):
		h.writeError(w, http.StatusConflict, "Verification window has not elapsed yet")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient balance")
	case errors.Is(err, store.ErrInsufficientCardFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient card balance")
	case errors.Is(err, store.ErrCardAlreadyApplied):
		h.writeError(w, http.StatusConflict, "A card application already exists for this account")
	case errors.Is(err, store.ErrCardApplicationNotFound):
		h.writeError(w, http.StatusNotFound, "No card application found")
	case errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, store.ErrSettlementTaskNotFound):
		h.writeError(w, http.StatusConflict, "Settlement is no longer cancellable")
	case errors.As(err, &rateLimitErr):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", rateLimitErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again shortly.")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"request failed\" subject=%s err=%v", endpoint, subject, err)
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError writes a JSON error payload with the given status code.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
