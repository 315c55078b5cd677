/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL used against the ledger tables:
 * `accounts`, `transactions`, `settlement_tasks` and `card_applications`.
 *
 * Balance mutations are always expressed as conditional deltas
 * (`SET x = x + $1 ... AND x + $1 >= 0`) or run under a row lock, never as a
 * blind overwrite of a previously read value. This is what makes concurrent
 * settlements and transfers against the same account safe.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOrCreateAccount returns the account for the given id, provisioning a
// zero-balance row on first touch.
func (r *PostgresRepository) FindOrCreateAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, cash_balance, card_balance)
		VALUES ($1, 0, 0)
		ON CONFLICT (id) DO UPDATE SET updated_at = accounts.updated_at
		RETURNING id, cash_balance, card_balance, card_activated_at, created_at, updated_at
	`
	var account domain.Account
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID,
		&account.CashBalance,
		&account.CardBalance,
		&account.CardActivatedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves an account without provisioning it.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, cash_balance, card_balance, card_activated_at, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID,
		&account.CashBalance,
		&account.CardBalance,
		&account.CardActivatedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CreateTransaction appends a record to the account's ledger.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, account_id, kind, amount, direction, method, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.Kind,
		tx.Amount,
		tx.Direction,
		tx.Method,
		tx.Status,
		tx.Reference,
		tx.CreatedAt,
	)
	return err
}

// FindTransactionByID retrieves a single ledger record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT id, account_id, kind, amount, direction, method, status, reference, created_at FROM transactions WHERE id = $1`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.Direction, &tx.Method, &tx.Status, &tx.Reference, &tx.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindTransactionsByAccountID returns every ledger record for an account.
// The log imposes no ordering guarantee; callers sort for display.
func (r *PostgresRepository) FindTransactionsByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	query := `SELECT id, account_id, kind, amount, direction, method, status, reference, created_at FROM transactions WHERE account_id = $1`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.Direction, &tx.Method, &tx.Status, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CreateCardTransfer appends a completed card-transfer record and moves the
// amount between the cash and card balances in a single database transaction.
func (r *PostgresRepository) CreateCardTransfer(ctx context.Context, txRecord *domain.Transaction) error {
	if txRecord.Direction == nil {
		return fmt.Errorf("card transfer requires a direction")
	}

	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx)

	// Lock the account row so both legs apply against the same snapshot.
	var cashBalance, cardBalance int64
	var cardActivatedAt *time.Time
	err = dbTx.QueryRow(ctx,
		"SELECT cash_balance, card_balance, card_activated_at FROM accounts WHERE id = $1 FOR UPDATE",
		txRecord.AccountID,
	).Scan(&cashBalance, &cardBalance, &cardActivatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrAccountNotFound
		}
		return err
	}
	if cardActivatedAt == nil {
		return ErrCardNotActivated
	}

	switch *txRecord.Direction {
	case domain.TransferDirectionToCard:
		if cashBalance < txRecord.Amount {
			return ErrInsufficientFunds
		}
		_, err = dbTx.Exec(ctx,
			"UPDATE accounts SET cash_balance = cash_balance - $1, card_balance = card_balance + $1, updated_at = NOW() WHERE id = $2",
			txRecord.Amount, txRecord.AccountID,
		)
	case domain.TransferDirectionToAccount:
		if cardBalance < txRecord.Amount {
			return ErrInsufficientCardFunds
		}
		_, err = dbTx.Exec(ctx,
			"UPDATE accounts SET cash_balance = cash_balance + $1, card_balance = card_balance - $1, updated_at = NOW() WHERE id = $2",
			txRecord.Amount, txRecord.AccountID,
		)
	default:
		return fmt.Errorf("unknown card transfer direction %q", *txRecord.Direction)
	}
	if err != nil {
		return err
	}

	_, err = dbTx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, kind, amount, direction, method, status, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txRecord.ID, txRecord.AccountID, txRecord.Kind, txRecord.Amount, txRecord.Direction,
		txRecord.Method, txRecord.Status, txRecord.Reference, txRecord.CreatedAt,
	)
	if err != nil {
		return err
	}

	return dbTx.Commit(ctx)
}

// CreateTransactionWithSettlementTask appends a pending record and schedules
// its settlement task in one database transaction, so a crash can never leave
// a pending record with no task (or a task with no record).
func (r *PostgresRepository) CreateTransactionWithSettlementTask(ctx context.Context, txRecord *domain.Transaction, dueAt time.Time) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx)

	_, err = dbTx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, kind, amount, direction, method, status, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txRecord.ID, txRecord.AccountID, txRecord.Kind, txRecord.Amount, txRecord.Direction,
		txRecord.Method, txRecord.Status, txRecord.Reference, txRecord.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = dbTx.Exec(ctx,
		`INSERT INTO settlement_tasks (transaction_id, account_id, kind, amount, due_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		txRecord.ID, txRecord.AccountID, txRecord.Kind, txRecord.Amount, dueAt, domain.SettlementTaskScheduled,
	)
	if err != nil {
		return err
	}

	return dbTx.Commit(ctx)
}

// FindDueSettlementTasks returns scheduled tasks whose due time has passed.
func (r *PostgresRepository) FindDueSettlementTasks(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
	query := `
		SELECT transaction_id, account_id, kind, amount, due_at, status, attempts, created_at
		FROM settlement_tasks
		WHERE status = 'scheduled' AND due_at <= $1
		ORDER BY due_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.SettlementTask
	for rows.Next() {
		var task domain.SettlementTask
		if err := rows.Scan(&task.TransactionID, &task.AccountID, &task.Kind, &task.Amount, &task.DueAt, &task.Status, &task.Attempts, &task.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SettleTransaction applies a due settlement atomically: the task is closed,
// the transaction status is promoted, and the balance delta lands against the
// balance in effect right now. Deposits credit unconditionally; a withdrawal
// that would overdraw the account is rejected instead of applied.
func (r *PostgresRepository) SettleTransaction(ctx context.Context, transactionID uuid.UUID) (*SettlementResult, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx)

	// Lock the task row; a task that is done or cancelled is not settled twice.
	var task domain.SettlementTask
	err = dbTx.QueryRow(ctx,
		`SELECT transaction_id, account_id, kind, amount FROM settlement_tasks
		 WHERE transaction_id = $1 AND status = 'scheduled' FOR UPDATE`,
		transactionID,
	).Scan(&task.TransactionID, &task.AccountID, &task.Kind, &task.Amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSettlementTaskNotFound
		}
		return nil, err
	}

	result := &SettlementResult{
		TransactionID: task.TransactionID,
		AccountID:     task.AccountID,
		Kind:          task.Kind,
		Amount:        task.Amount,
		Outcome:       SettlementOutcomeCompleted,
	}

	switch task.Kind {
	case domain.TransactionKindDeposit:
		_, err = dbTx.Exec(ctx,
			"UPDATE accounts SET cash_balance = cash_balance + $1, updated_at = NOW() WHERE id = $2",
			task.Amount, task.AccountID,
		)
		if err != nil {
			return nil, err
		}
	case domain.TransactionKindWithdraw:
		// Conditional delta: zero rows means the account can no longer
		// cover the withdrawal, so the settlement rejects it.
		tag, execErr := dbTx.Exec(ctx,
			"UPDATE accounts SET cash_balance = cash_balance - $1, updated_at = NOW() WHERE id = $2 AND cash_balance >= $1",
			task.Amount, task.AccountID,
		)
		if execErr != nil {
			return nil, execErr
		}
		if tag.RowsAffected() == 0 {
			result.Outcome = SettlementOutcomeRejected
		}
	default:
		return nil, fmt.Errorf("settlement task %s has unexpected kind %q", task.TransactionID, task.Kind)
	}

	status := domain.TransactionStatusCompleted
	if result.Outcome == SettlementOutcomeRejected {
		status = domain.TransactionStatusRejected
	}
	_, err = dbTx.Exec(ctx,
		"UPDATE transactions SET status = $1 WHERE id = $2 AND status = 'pending'",
		status, task.TransactionID,
	)
	if err != nil {
		return nil, err
	}

	_, err = dbTx.Exec(ctx,
		"UPDATE settlement_tasks SET status = 'done' WHERE transaction_id = $1",
		task.TransactionID,
	)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordSettlementAttempt bumps the attempt counter after a transient failure
// so repeated failures stay visible.
func (r *PostgresRepository) RecordSettlementAttempt(ctx context.Context, transactionID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		"UPDATE settlement_tasks SET attempts = attempts + 1 WHERE transaction_id = $1",
		transactionID,
	)
	return err
}

// CancelSettlementTask cancels a settlement that has not fired yet and marks
// the underlying transaction rejected. Tasks that already settled are left
// untouched.
func (r *PostgresRepository) CancelSettlementTask(ctx context.Context, transactionID uuid.UUID) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx)

	tag, err := dbTx.Exec(ctx,
		"UPDATE settlement_tasks SET status = 'cancelled' WHERE transaction_id = $1 AND status = 'scheduled'",
		transactionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementTaskNotFound
	}

	_, err = dbTx.Exec(ctx,
		"UPDATE transactions SET status = 'rejected' WHERE id = $1 AND status = 'pending'",
		transactionID,
	)
	if err != nil {
		return err
	}

	return dbTx.Commit(ctx)
}

// CreateCardApplication inserts the account's card application. At most one
// application exists per account, whatever its status.
func (r *PostgresRepository) CreateCardApplication(ctx context.Context, app *domain.CardApplication) error {
	query := `
		INSERT INTO card_applications (account_id, name, dob, phone, email, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, app.AccountID, app.Name, app.DOB, app.Phone, app.Email, app.Status, app.SubmittedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCardAlreadyApplied
	}
	return nil
}

// FindCardApplicationByAccountID retrieves the account's card application.
func (r *PostgresRepository) FindCardApplicationByAccountID(ctx context.Context, accountID string) (*domain.CardApplication, error) {
	var app domain.CardApplication
	query := `
		SELECT account_id, name, dob, phone, email, status, submitted_at, verified_at, card_number, expiry_date, cvv
		FROM card_applications WHERE account_id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&app.AccountID, &app.Name, &app.DOB, &app.Phone, &app.Email, &app.Status,
		&app.SubmittedAt, &app.VerifiedAt, &app.CardNumber, &app.ExpiryDate, &app.CVV,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCardApplicationNotFound
		}
		return nil, err
	}
	return &app, nil
}

// VerifyCardApplication transitions a pending application to verified, stamps
// the generated credentials and activates the card balance, all in one
// database transaction. If the application is already verified the stored
// record is returned unchanged, so repeated calls yield identical credentials
// and never reset the card balance.
func (r *PostgresRepository) VerifyCardApplication(ctx context.Context, accountID string, creds domain.CardCredentials, verifiedAt time.Time) (*domain.CardApplication, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx)

	tag, err := dbTx.Exec(ctx,
		`UPDATE card_applications
		 SET status = 'verified', verified_at = $2, card_number = $3, expiry_date = $4, cvv = $5
		 WHERE account_id = $1 AND status = 'pending'`,
		accountID, verifiedAt, creds.CardNumber, creds.ExpiryDate, creds.CVV,
	)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() > 0 {
		// First verification: activate the card balance. The guard keeps a
		// re-verification from ever clobbering an existing balance.
		_, err = dbTx.Exec(ctx,
			"UPDATE accounts SET card_balance = 0, card_activated_at = $2, updated_at = NOW() WHERE id = $1 AND card_activated_at IS NULL",
			accountID, verifiedAt,
		)
		if err != nil {
			return nil, err
		}
	}

	var app domain.CardApplication
	err = dbTx.QueryRow(ctx,
		`SELECT account_id, name, dob, phone, email, status, submitted_at, verified_at, card_number, expiry_date, cvv
		 FROM card_applications WHERE account_id = $1`,
		accountID,
	).Scan(
		&app.AccountID, &app.Name, &app.DOB, &app.Phone, &app.Email, &app.Status,
		&app.SubmittedAt, &app.VerifiedAt, &app.CardNumber, &app.ExpiryDate, &app.CVV,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCardApplicationNotFound
		}
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindVerifiableCardApplications returns pending applications whose
// verification window has elapsed, for the auto-verification job.
func (r *PostgresRepository) FindVerifiableCardApplications(ctx context.Context, submittedBefore time.Time, limit int) ([]domain.CardApplication, error) {
	query := `
		SELECT account_id, name, dob, phone, email, status, submitted_at, verified_at, card_number, expiry_date, cvv
		FROM card_applications
		WHERE status = 'pending' AND submitted_at <= $1
		ORDER BY submitted_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, submittedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.CardApplication
	for rows.Next() {
		var app domain.CardApplication
		if err := rows.Scan(
			&app.AccountID, &app.Name, &app.DOB, &app.Phone, &app.Email, &app.Status,
			&app.SubmittedAt, &app.VerifiedAt, &app.CardNumber, &app.ExpiryDate, &app.CVV,
		); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
