package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/irfan-maish/inaf-e-wallet/internal/app"
	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
)

type handlerRepoStub struct {
	store.Repository

	account      *domain.Account
	transactions []domain.Transaction
	createDueAt  time.Time
}

func (s *handlerRepoStub) FindOrCreateAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if s.account != nil {
		return s.account, nil
	}
	return &domain.Account{ID: accountID}, nil
}

func (s *handlerRepoStub) FindTransactionsByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	return s.transactions, nil
}

func (s *handlerRepoStub) CreateTransactionWithSettlementTask(ctx context.Context, tx *domain.Transaction, dueAt time.Time) error {
	s.createDueAt = dueAt
	return nil
}

func newHandlerService(repo store.Repository) *app.Service {
	return app.NewService(repo, nil, 10*time.Second, 15*time.Second, 120*time.Second)
}

func authedRequest(method, target string, body []byte, accountID string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), AccountIDContextKey, accountID)
	return req.WithContext(ctx)
}

func TestGetAccountHandler_ReturnsBalances(t *testing.T) {
	activated := time.Now().UTC()
	repo := &handlerRepoStub{account: &domain.Account{
		ID:              "acct-1",
		CashBalance:     2500,
		CardBalance:     700,
		CardActivatedAt: &activated,
	}}
	h := NewWalletHandlers(newHandlerService(repo))

	rec := httptest.NewRecorder()
	h.GetAccountHandler(rec, authedRequest(http.MethodGet, "/account", nil, "acct-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CashBalance != 2500 || resp.CardBalance != 700 {
		t.Fatalf("unexpected balances: %+v", resp)
	}
	if !resp.HasActiveCard {
		t.Fatal("expected has_active_card to be true")
	}
}

func TestDepositHandler_RejectsInvalidAmount(t *testing.T) {
	h := NewWalletHandlers(newHandlerService(&handlerRepoStub{}))

	body := []byte(`{"amount": -100, "method": "bkash"}`)
	rec := httptest.NewRecorder()
	h.DepositHandler(rec, authedRequest(http.MethodPost, "/deposits", body, "acct-1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDepositHandler_AcceptsPendingDeposit(t *testing.T) {
	repo := &handlerRepoStub{}
	h := NewWalletHandlers(newHandlerService(repo))

	before := time.Now().UTC()
	body := []byte(`{"amount": 1000, "method": "bkash"}`)
	rec := httptest.NewRecorder()
	h.DepositHandler(rec, authedRequest(http.MethodPost, "/deposits", body, "acct-1"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := repo.createDueAt.Sub(before); got < 10*time.Second || got > 15*time.Second {
		t.Fatalf("expected settlement due ~10s out, got %v", got)
	}

	var resp transactionInitiationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.TransactionStatusPending {
		t.Fatalf("expected pending status, got %q", resp.Status)
	}
	if resp.Amount != 1000 {
		t.Fatalf("expected amount 1000, got %d", resp.Amount)
	}
}

func TestWithdrawHandler_InsufficientBalanceReturns422(t *testing.T) {
	repo := &handlerRepoStub{account: &domain.Account{ID: "acct-1", CashBalance: 100}}
	h := NewWalletHandlers(newHandlerService(repo))

	body := []byte(`{"amount": 1000, "method": "bank"}`)
	rec := httptest.NewRecorder()
	h.WithdrawHandler(rec, authedRequest(http.MethodPost, "/withdrawals", body, "acct-1"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCardTransferHandler_RejectsUnknownDirection(t *testing.T) {
	h := NewWalletHandlers(newHandlerService(&handlerRepoStub{}))

	body := []byte(`{"amount": 500, "direction": "sideways"}`)
	rec := httptest.NewRecorder()
	h.CardTransferHandler(rec, authedRequest(http.MethodPost, "/card/transfers", body, "acct-1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCardTransferHandler_NoVerifiedCardReturns400(t *testing.T) {
	repo := &handlerRepoStub{account: &domain.Account{ID: "acct-1", CashBalance: 5000}}
	h := NewWalletHandlers(newHandlerService(repo))

	body := []byte(`{"amount": 500, "direction": "to_card"}`)
	rec := httptest.NewRecorder()
	h.CardTransferHandler(rec, authedRequest(http.MethodPost, "/card/transfers", body, "acct-1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListTransactionsHandler_IncludesDisplayAmount(t *testing.T) {
	toAccount := domain.TransferDirectionToAccount
	repo := &handlerRepoStub{transactions: []domain.Transaction{
		{Kind: domain.TransactionKindCardTransfer, Amount: 300, Direction: &toAccount, Status: domain.TransactionStatusCompleted},
	}}
	h := NewWalletHandlers(newHandlerService(repo))

	rec := httptest.NewRecorder()
	h.ListTransactionsHandler(rec, authedRequest(http.MethodGet, "/transactions", nil, "acct-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp []transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected one transaction, got %d", len(resp))
	}
	if resp[0].Amount != 300 || resp[0].DisplayAmount != -300 {
		t.Fatalf("expected amount 300 with display -300, got %+v", resp[0])
	}
}

func TestInternalAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := InternalAuthMiddleware("secret-key")(next)

	tests := []struct {
		name     string
		provided string
		want     int
	}{
		{name: "missing key", provided: "", want: http.StatusUnauthorized},
		{name: "wrong key", provided: "nope", want: http.StatusUnauthorized},
		{name: "correct key", provided: "secret-key", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/settlements/x/cancel", nil)
			if tt.provided != "" {
				req.Header.Set("X-Internal-API-Key", tt.provided)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestInternalAuthMiddleware_EmptyKeyAllowsAll(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := InternalAuthMiddleware("")(next)

	req := httptest.NewRequest(http.MethodPost, "/internal/settlements/x/cancel", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
