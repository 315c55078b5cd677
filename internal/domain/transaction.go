/**
 * @description
 * This file defines the core ledger domain models for the wallet service.
 * These structs represent the entities persisted by the store layer and the
 * data transfer objects (DTOs) accepted by the API layer.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest whole currency unit (taka),
 *   which avoids floating-point inaccuracies with financial data.
 * - The transaction log is append-only: historical records are never updated
 *   except for the status promotion performed by the settlement worker.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. Every value movement in the system is one of these.
const (
	TransactionKindDeposit      = "deposit"
	TransactionKindWithdraw     = "withdraw"
	TransactionKindCardTransfer = "card-transfer"
)

// Transaction statuses. Deposits and withdrawals are created `pending` and
// promoted to `completed` by the settlement worker; card transfers settle
// synchronously and are created `completed`. `rejected` is reserved for
// settlements that can no longer be applied.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusRejected  = "rejected"
)

// Card transfer directions. Direction is carried as an explicit tag rather
// than encoded in the sign of the amount, so amounts stay positive for every
// transaction kind.
const (
	TransferDirectionToCard    = "to_card"
	TransferDirectionToAccount = "to_account"
)

// Transaction is a single record in an account's append-only ledger.
// This struct maps directly to the `transactions` table.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	AccountID string    `json:"account_id"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"` // always positive; direction/kind carries the sign
	Direction *string   `json:"direction,omitempty"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Reference *string   `json:"reference,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// DisplayAmount returns the signed amount history views render:
// card-to-account transfers show as negative, everything else as positive.
func (t Transaction) DisplayAmount() int64 {
	if t.Kind == TransactionKindCardTransfer && t.Direction != nil && *t.Direction == TransferDirectionToAccount {
		return -t.Amount
	}
	return t.Amount
}

// Settlement task statuses. A task is the durable, resumable form of a
// deferred approval: it survives restarts where an in-process timer would not.
const (
	SettlementTaskScheduled = "scheduled"
	SettlementTaskDone      = "done"
	SettlementTaskCancelled = "cancelled"
)

// SettlementTask schedules the deferred confirmation of a pending deposit or
// withdrawal. Tasks are keyed by transaction id so a restart resumes exactly
// where the previous process stopped.
type SettlementTask struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Kind          string    `json:"kind"`
	Amount        int64     `json:"amount"`
	DueAt         time.Time `json:"due_at"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
}

// DepositRequest is the DTO for incoming deposit API requests.
type DepositRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// WithdrawRequest is the DTO for incoming withdrawal API requests.
// AccountDetails identifies the payout destination at the chosen provider.
type WithdrawRequest struct {
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	AccountDetails string `json:"account_details"`
}

// CardTransferRequest is the DTO for moving value between the cash balance
// and the card balance.
type CardTransferRequest struct {
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"` // "to_card" or "to_account"
}
