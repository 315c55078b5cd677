/**
 * @description
 * This file contains the core business logic for the wallet ledger. The
 * `Service` struct orchestrates every value-moving operation: deposits,
 * withdrawals and cash/card transfers, plus the synchronous account and
 * transaction-history queries.
 *
 * Key features:
 * - Validation errors abort before any log append or balance mutation, so a
 *   failed call leaves state exactly as it was.
 * - Deposits and withdrawals append a pending record together with a durable
 *   settlement task; the settlement worker applies the balance effect later.
 * - Card transfers settle synchronously inside one store transaction.
 * - Publishes outcome events to RabbitMQ for notification collaborators.
 *
 * @dependencies
 * - context, errors, fmt, log, sort, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For outcome event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
	"github.com/irfan-maish/inaf-e-wallet/pkg/rabbitmq"
)

// Validation errors surfaced to callers before any state change.
var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrInvalidAmount   = errors.New("amount must be greater than 0")
	ErrNoVerifiedCard  = errors.New("no verified card available")
)

// RateLimitError reports that an account exceeded its submission budget.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// WalletRateLimiter is the distributed rate limiter consulted before deposit
// and withdrawal submissions. Implementations must fail open.
type WalletRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the wallet ledger.
type Service struct {
	repo   store.Repository
	events rabbitmq.Publisher

	depositDelay       time.Duration
	withdrawalDelay    time.Duration
	verificationWindow time.Duration

	rateLimiter        WalletRateLimiter
	rateLimitPerMinute int
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, depositDelay, withdrawalDelay, verificationWindow time.Duration) *Service {
	return &Service{
		repo:               repo,
		events:             producer,
		depositDelay:       depositDelay,
		withdrawalDelay:    withdrawalDelay,
		verificationWindow: verificationWindow,
	}
}

// SetWalletRateLimiter enables per-account submission rate limiting for
// deposits and withdrawals.
func (s *Service) SetWalletRateLimiter(limiter WalletRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.rateLimitPerMinute = perMinute
}

// GetAccount returns the account for the given id, provisioning a zero-balance
// account on first touch.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	account, err := s.repo.FindOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// ListTransactions returns the account's ledger sorted newest first, the
// order the history view renders.
func (s *Service) ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	transactions, err := s.repo.FindTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})
	return transactions, nil
}

// Deposit appends a pending deposit and schedules its settlement. The cash
// balance is not touched here; the settlement worker credits it when the task
// fires.
func (s *Service) Deposit(ctx context.Context, accountID string, req domain.DepositRequest) (*domain.Transaction, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.consumeRateLimit(ctx, "deposit", accountID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindOrCreateAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	now := time.Now().UTC()
	txRecord := &domain.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.TransactionKindDeposit,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
	}
	if req.Reference != "" {
		txRecord.Reference = &req.Reference
	}

	if err := s.repo.CreateTransactionWithSettlementTask(ctx, txRecord, now.Add(s.depositDelay)); err != nil {
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}

	s.publishEvent(ctx, accountID, domain.WalletEventInfo, "Deposit request submitted")
	return txRecord, nil
}

// Withdraw appends a pending withdrawal and schedules its settlement. The
// balance check here is against the balance known at call time; the
// settlement worker re-checks at firing time.
func (s *Service) Withdraw(ctx context.Context, accountID string, req domain.WithdrawRequest) (*domain.Transaction, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.consumeRateLimit(ctx, "withdraw", accountID); err != nil {
		return nil, err
	}

	account, err := s.repo.FindOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if req.Amount > account.CashBalance {
		return nil, store.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	txRecord := &domain.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.TransactionKindWithdraw,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
	}
	if req.AccountDetails != "" {
		txRecord.Reference = &req.AccountDetails
	}

	if err := s.repo.CreateTransactionWithSettlementTask(ctx, txRecord, now.Add(s.withdrawalDelay)); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	s.publishEvent(ctx, accountID, domain.WalletEventInfo, "Withdrawal request submitted")
	return txRecord, nil
}

// TransferToCard moves value from the cash balance onto the card. The record
// append and both balance legs run in one store transaction.
func (s *Service) TransferToCard(ctx context.Context, accountID string, amount int64) (*domain.Transaction, error) {
	return s.cardTransfer(ctx, accountID, amount, domain.TransferDirectionToCard)
}

// TransferToAccount is the mirror operation, moving value from the card back
// to the cash balance.
func (s *Service) TransferToAccount(ctx context.Context, accountID string, amount int64) (*domain.Transaction, error) {
	return s.cardTransfer(ctx, accountID, amount, domain.TransferDirectionToAccount)
}

func (s *Service) cardTransfer(ctx context.Context, accountID string, amount int64, direction string) (*domain.Transaction, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.FindOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.HasActiveCard() {
		return nil, ErrNoVerifiedCard
	}

	txRecord := &domain.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.TransactionKindCardTransfer,
		Amount:    amount,
		Direction: &direction,
		Method:    "internal",
		Status:    domain.TransactionStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.CreateCardTransfer(ctx, txRecord); err != nil {
		if errors.Is(err, store.ErrCardNotActivated) {
			return nil, ErrNoVerifiedCard
		}
		if errors.Is(err, store.ErrInsufficientFunds) || errors.Is(err, store.ErrInsufficientCardFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to execute card transfer: %w", err)
	}

	if direction == domain.TransferDirectionToCard {
		s.publishEvent(ctx, accountID, domain.WalletEventSuccess, fmt.Sprintf("Successfully transferred %d Tk to card", amount))
	} else {
		s.publishEvent(ctx, accountID, domain.WalletEventSuccess, fmt.Sprintf("Successfully transferred %d Tk to account", amount))
	}
	return txRecord, nil
}

// CancelSettlement cancels a scheduled settlement (e.g., a withdrawal
// reversal requested before clearing) and rejects the pending record. Only
// settlements that have not fired can be cancelled.
func (s *Service) CancelSettlement(ctx context.Context, transactionID uuid.UUID) error {
	txRecord, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if err := s.repo.CancelSettlementTask(ctx, transactionID); err != nil {
		return err
	}
	log.Printf("level=info component=wallet_service msg=\"settlement cancelled\" transaction_id=%s account_id=%s", transactionID, txRecord.AccountID)
	s.publishEvent(ctx, txRecord.AccountID, domain.WalletEventInfo, fmt.Sprintf("%s of %d Tk was cancelled", titleKind(txRecord.Kind), txRecord.Amount))
	return nil
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, accountID string) error {
	if s.rateLimiter == nil || s.rateLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, accountID, s.rateLimitPerMinute, time.Minute)
	if err != nil {
		// Fail open: the limiter is protection, not a correctness gate.
		log.Printf("level=warn component=wallet_service msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > s.rateLimitPerMinute {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// publishEvent emits a fire-and-forget outcome event. Failures are logged and
// ignored; notifications are not part of ledger correctness.
func (s *Service) publishEvent(ctx context.Context, accountID, level, message string) {
	if s.events == nil {
		return
	}
	event := domain.WalletEvent{
		AccountID: accountID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.PublishWalletEvent(ctx, event); err != nil {
		log.Printf("level=warn component=wallet_service msg=\"wallet event publish failed\" account_id=%s err=%v", accountID, err)
	}
}

func titleKind(kind string) string {
	switch kind {
	case domain.TransactionKindDeposit:
		return "Deposit"
	case domain.TransactionKindWithdraw:
		return "Withdrawal"
	default:
		return "Transfer"
	}
}
