/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access performed by the wallet service. The interface decouples the ledger
 * logic from the PostgreSQL implementation, which keeps the service testable
 * against in-memory stubs.
 *
 * Atomicity rules enforced at this layer:
 * - A card transfer writes the transaction record and both balance legs in a
 *   single database transaction.
 * - A deposit/withdrawal append and its settlement task are written together.
 * - Settling a transaction promotes its status and applies the balance delta
 *   in one database transaction, using the balance in effect at firing time.
 *   Balance values are never carried across a suspension point by callers.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Transaction identifiers.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
)

// Sentinel errors surfaced by repository implementations.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient balance")
	ErrInsufficientCardFunds   = errors.New("insufficient card balance")
	ErrCardNotActivated        = errors.New("card balance not activated")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrSettlementTaskNotFound  = errors.New("settlement task not found or no longer scheduled")
	ErrCardAlreadyApplied      = errors.New("card application already exists")
	ErrCardApplicationNotFound = errors.New("card application not found")
)

// Settlement outcomes. A settlement either applies the balance effect and
// completes the record, or rejects a withdrawal that would overdraw the
// account at firing time.
const (
	SettlementOutcomeCompleted = "completed"
	SettlementOutcomeRejected  = "rejected"
)

// SettlementResult describes what a settlement did, so the worker can publish
// the matching outcome event.
type SettlementResult struct {
	TransactionID uuid.UUID
	AccountID     string
	Kind          string
	Amount        int64
	Outcome       string
}

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Account methods. FindOrCreateAccount provisions a zero-balance account
	// on first touch; a missing account reads as zero balances.
	FindOrCreateAccount(ctx context.Context, accountID string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)

	// Transaction log methods. The log is append-only; listing imposes no
	// ordering, callers sort for display.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionsByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error)

	// CreateCardTransfer atomically appends a completed card-transfer record
	// and moves the amount between the cash and card balances according to
	// the record's direction. Fails without side effects on insufficient
	// funds or a non-activated card balance.
	CreateCardTransfer(ctx context.Context, tx *domain.Transaction) error

	// Settlement task methods. CreateTransactionWithSettlementTask appends a
	// pending record and schedules its settlement in one database transaction.
	CreateTransactionWithSettlementTask(ctx context.Context, tx *domain.Transaction, dueAt time.Time) error
	FindDueSettlementTasks(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error)
	SettleTransaction(ctx context.Context, transactionID uuid.UUID) (*SettlementResult, error)
	RecordSettlementAttempt(ctx context.Context, transactionID uuid.UUID) error
	CancelSettlementTask(ctx context.Context, transactionID uuid.UUID) error

	// Card application methods. VerifyCardApplication performs the
	// pending->verified transition, stamps the credentials and activates the
	// card balance (first time only) in one database transaction; calling it
	// against an already verified application returns the existing record
	// unchanged.
	CreateCardApplication(ctx context.Context, app *domain.CardApplication) error
	FindCardApplicationByAccountID(ctx context.Context, accountID string) (*domain.CardApplication, error)
	VerifyCardApplication(ctx context.Context, accountID string, creds domain.CardCredentials, verifiedAt time.Time) (*domain.CardApplication, error)
	FindVerifiableCardApplications(ctx context.Context, submittedBefore time.Time, limit int) ([]domain.CardApplication, error)
}
