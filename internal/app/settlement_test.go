package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
)

// memoryLedgerRepo is a mutex-guarded in-memory ledger used to exercise the
// settlement worker, including settlement runs racing each other.
type memoryLedgerRepo struct {
	store.Repository

	mu       sync.Mutex
	balances map[string]int64
	tasks    map[uuid.UUID]*domain.SettlementTask
	txStatus map[uuid.UUID]string
	failOnce map[uuid.UUID]bool
	attempts map[uuid.UUID]int
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		balances: make(map[string]int64),
		tasks:    make(map[uuid.UUID]*domain.SettlementTask),
		txStatus: make(map[uuid.UUID]string),
		failOnce: make(map[uuid.UUID]bool),
		attempts: make(map[uuid.UUID]int),
	}
}

func (m *memoryLedgerRepo) schedule(accountID, kind string, amount int64, dueAt time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.tasks[id] = &domain.SettlementTask{
		TransactionID: id,
		AccountID:     accountID,
		Kind:          kind,
		Amount:        amount,
		DueAt:         dueAt,
		Status:        domain.SettlementTaskScheduled,
	}
	m.txStatus[id] = domain.TransactionStatusPending
	return id
}

func (m *memoryLedgerRepo) FindDueSettlementTasks(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []domain.SettlementTask
	for _, task := range m.tasks {
		if task.Status == domain.SettlementTaskScheduled && !task.DueAt.After(now) {
			due = append(due, *task)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *memoryLedgerRepo) SettleTransaction(ctx context.Context, transactionID uuid.UUID) (*store.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[transactionID]
	if !ok || task.Status != domain.SettlementTaskScheduled {
		return nil, store.ErrSettlementTaskNotFound
	}
	if m.failOnce[transactionID] {
		m.failOnce[transactionID] = false
		return nil, errors.New("transient store failure")
	}

	result := &store.SettlementResult{
		TransactionID: task.TransactionID,
		AccountID:     task.AccountID,
		Kind:          task.Kind,
		Amount:        task.Amount,
		Outcome:       store.SettlementOutcomeCompleted,
	}

	switch task.Kind {
	case domain.TransactionKindDeposit:
		m.balances[task.AccountID] += task.Amount
	case domain.TransactionKindWithdraw:
		if m.balances[task.AccountID] < task.Amount {
			result.Outcome = store.SettlementOutcomeRejected
		} else {
			m.balances[task.AccountID] -= task.Amount
		}
	}

	if result.Outcome == store.SettlementOutcomeRejected {
		m.txStatus[transactionID] = domain.TransactionStatusRejected
	} else {
		m.txStatus[transactionID] = domain.TransactionStatusCompleted
	}
	task.Status = domain.SettlementTaskDone
	return result, nil
}

func (m *memoryLedgerRepo) RecordSettlementAttempt(ctx context.Context, transactionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[transactionID]++
	return nil
}

func (m *memoryLedgerRepo) balance(accountID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessDueSettlements_DepositsCreditOnTopOfCurrentBalance(t *testing.T) {
	repo := newMemoryLedgerRepo()
	events := &publisherStub{}
	worker := NewSettlementWorker(repo, events, testLogger(), 50)

	past := time.Now().UTC().Add(-time.Second)
	repo.mu.Lock()
	repo.balances["acct-1"] = 1000
	repo.mu.Unlock()
	repo.schedule("acct-1", domain.TransactionKindDeposit, 500, past)

	worker.ProcessDueSettlements()

	if got := repo.balance("acct-1"); got != 1500 {
		t.Fatalf("expected balance 1500, got %d", got)
	}
	if len(events.events) != 1 || events.events[0].Level != domain.WalletEventSuccess {
		t.Fatalf("expected one success event, got %+v", events.events)
	}
	if !strings.Contains(events.events[0].Message, "500") {
		t.Fatalf("expected event to carry the amount, got %q", events.events[0].Message)
	}
}

func TestProcessDueSettlements_ConcurrentRunsApplyEachDepositOnce(t *testing.T) {
	repo := newMemoryLedgerRepo()
	worker := NewSettlementWorker(repo, &publisherStub{}, testLogger(), 50)

	past := time.Now().UTC().Add(-time.Second)
	const deposits = 20
	for i := 0; i < deposits; i++ {
		repo.schedule("acct-1", domain.TransactionKindDeposit, 100, past)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.ProcessDueSettlements()
		}()
	}
	wg.Wait()

	if got := repo.balance("acct-1"); got != deposits*100 {
		t.Fatalf("expected balance %d, got %d", deposits*100, got)
	}
}

func TestProcessDueSettlements_WithdrawalOverdrawIsRejected(t *testing.T) {
	repo := newMemoryLedgerRepo()
	events := &publisherStub{}
	worker := NewSettlementWorker(repo, events, testLogger(), 50)

	past := time.Now().UTC().Add(-time.Second)
	repo.mu.Lock()
	repo.balances["acct-1"] = 300
	repo.mu.Unlock()
	txID := repo.schedule("acct-1", domain.TransactionKindWithdraw, 500, past)

	worker.ProcessDueSettlements()

	if got := repo.balance("acct-1"); got != 300 {
		t.Fatalf("expected balance untouched at 300, got %d", got)
	}
	repo.mu.Lock()
	status := repo.txStatus[txID]
	repo.mu.Unlock()
	if status != domain.TransactionStatusRejected {
		t.Fatalf("expected rejected status, got %q", status)
	}
	if len(events.events) != 1 || events.events[0].Level != domain.WalletEventError {
		t.Fatalf("expected one error event, got %+v", events.events)
	}
}

func TestProcessDueSettlements_TransientFailureRetriesOnNextPoll(t *testing.T) {
	repo := newMemoryLedgerRepo()
	worker := NewSettlementWorker(repo, &publisherStub{}, testLogger(), 50)

	past := time.Now().UTC().Add(-time.Second)
	txID := repo.schedule("acct-1", domain.TransactionKindDeposit, 700, past)
	repo.mu.Lock()
	repo.failOnce[txID] = true
	repo.mu.Unlock()

	worker.ProcessDueSettlements()

	repo.mu.Lock()
	attempts := repo.attempts[txID]
	status := repo.tasks[txID].Status
	repo.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", attempts)
	}
	if status != domain.SettlementTaskScheduled {
		t.Fatalf("expected task still scheduled after transient failure, got %q", status)
	}
	if got := repo.balance("acct-1"); got != 0 {
		t.Fatalf("expected no balance effect after failure, got %d", got)
	}

	worker.ProcessDueSettlements()

	if got := repo.balance("acct-1"); got != 700 {
		t.Fatalf("expected deposit applied on retry, got %d", got)
	}
}

func TestProcessDueSettlements_SkipsTasksSettledByAnotherWorker(t *testing.T) {
	repo := newMemoryLedgerRepo()
	events := &publisherStub{}
	worker := NewSettlementWorker(repo, events, testLogger(), 50)

	past := time.Now().UTC().Add(-time.Second)
	txID := repo.schedule("acct-1", domain.TransactionKindDeposit, 100, past)

	// Simulate a cancellation racing the poll.
	repo.mu.Lock()
	repo.tasks[txID].Status = domain.SettlementTaskCancelled
	repo.mu.Unlock()

	worker.ProcessDueSettlements()

	if got := repo.balance("acct-1"); got != 0 {
		t.Fatalf("expected no balance effect for a cancelled task, got %d", got)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events, got %+v", events.events)
	}
}
