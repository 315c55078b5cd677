/**
 * @description
 * This file implements the settlement worker, the stand-in for an external
 * clearing process. Deposits and withdrawals are appended as pending records
 * with a durable settlement task; this worker polls for due tasks and applies
 * each one atomically through the store.
 *
 * The worker never reads a balance and writes it back: the store applies the
 * delta against the balance in effect at firing time, so concurrent
 * settlements and transfers against the same account cannot lose updates.
 * Tasks survive process restarts, and transient failures are retried on the
 * next poll with the attempt counter bumped.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
	"github.com/irfan-maish/inaf-e-wallet/pkg/rabbitmq"
)

// SettlementWorker drains due settlement tasks.
type SettlementWorker struct {
	repo      store.Repository
	events    rabbitmq.Publisher
	logger    *slog.Logger
	batchSize int
}

// NewSettlementWorker creates a settlement worker.
func NewSettlementWorker(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger, batchSize int) *SettlementWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SettlementWorker{
		repo:      repo,
		events:    producer,
		logger:    logger,
		batchSize: batchSize,
	}
}

// ProcessDueSettlements settles every task that has come due. It is invoked
// on a schedule and is safe to run concurrently with user operations; the
// store's row locking makes each settlement apply exactly once.
func (w *SettlementWorker) ProcessDueSettlements() {
	ctx := context.Background()

	tasks, err := w.repo.FindDueSettlementTasks(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to list due settlement tasks", "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	w.logger.Info("settling due tasks", "count", len(tasks))

	for _, task := range tasks {
		result, err := w.repo.SettleTransaction(ctx, task.TransactionID)
		if err != nil {
			if errors.Is(err, store.ErrSettlementTaskNotFound) {
				// Raced with a cancellation or another worker; nothing to do.
				continue
			}
			// Transient failure: leave the task scheduled so the next poll
			// retries it, and keep the failure visible.
			w.logger.Error("settlement failed; will retry", "transaction_id", task.TransactionID, "attempts", task.Attempts+1, "error", err)
			if recErr := w.repo.RecordSettlementAttempt(ctx, task.TransactionID); recErr != nil {
				w.logger.Error("failed to record settlement attempt", "transaction_id", task.TransactionID, "error", recErr)
			}
			continue
		}

		w.logger.Info("settlement applied",
			"transaction_id", result.TransactionID,
			"account_id", result.AccountID,
			"kind", result.Kind,
			"amount", result.Amount,
			"outcome", result.Outcome,
		)
		w.publishOutcome(ctx, result)
	}
}

func (w *SettlementWorker) publishOutcome(ctx context.Context, result *store.SettlementResult) {
	if w.events == nil {
		return
	}

	var event domain.WalletEvent
	switch {
	case result.Outcome == store.SettlementOutcomeRejected:
		event = domain.WalletEvent{
			AccountID: result.AccountID,
			Level:     domain.WalletEventError,
			Message:   fmt.Sprintf("Withdrawal of %d Tk was rejected due to insufficient balance", result.Amount),
		}
	case result.Kind == domain.TransactionKindDeposit:
		event = domain.WalletEvent{
			AccountID: result.AccountID,
			Level:     domain.WalletEventSuccess,
			Message:   fmt.Sprintf("Deposit of %d Tk approved!", result.Amount),
		}
	default:
		event = domain.WalletEvent{
			AccountID: result.AccountID,
			Level:     domain.WalletEventSuccess,
			Message:   fmt.Sprintf("Withdrawal of %d Tk approved!", result.Amount),
		}
	}
	event.Timestamp = time.Now().UTC()

	if err := w.events.PublishWalletEvent(ctx, event); err != nil {
		w.logger.Warn("settlement event publish failed", "account_id", result.AccountID, "error", err)
	}
}
