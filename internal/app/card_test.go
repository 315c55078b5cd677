package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irfan-maish/inaf-e-wallet/internal/domain"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
)

type cardRepoStub struct {
	store.Repository

	application *domain.CardApplication
	createErr   error

	createCalled bool
	verifyCalled bool
	verifiedWith domain.CardCredentials
}

func (s *cardRepoStub) FindOrCreateAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return &domain.Account{ID: accountID}, nil
}

func (s *cardRepoStub) CreateCardApplication(ctx context.Context, app *domain.CardApplication) error {
	s.createCalled = true
	if s.createErr != nil {
		return s.createErr
	}
	s.application = app
	return nil
}

func (s *cardRepoStub) FindCardApplicationByAccountID(ctx context.Context, accountID string) (*domain.CardApplication, error) {
	if s.application == nil {
		return nil, store.ErrCardApplicationNotFound
	}
	return s.application, nil
}

func (s *cardRepoStub) VerifyCardApplication(ctx context.Context, accountID string, creds domain.CardCredentials, verifiedAt time.Time) (*domain.CardApplication, error) {
	s.verifyCalled = true
	s.verifiedWith = creds
	verified := *s.application
	verified.Status = domain.CardApplicationVerified
	verified.VerifiedAt = &verifiedAt
	verified.CardNumber = &creds.CardNumber
	verified.ExpiryDate = &creds.ExpiryDate
	verified.CVV = &creds.CVV
	s.application = &verified
	return &verified, nil
}

func TestApplyForCard_CreatesPendingApplication(t *testing.T) {
	repo := &cardRepoStub{}
	events := &publisherStub{}
	svc := newTestService(repo, events)

	app, err := svc.ApplyForCard(context.Background(), "acct-1", domain.CardApplicationRequest{
		Name:  "Irfan Maish",
		DOB:   "1999-04-12",
		Phone: "01712345678",
		Email: "irfan@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if app.Status != domain.CardApplicationPending {
		t.Fatalf("expected pending status, got %q", app.Status)
	}
	if app.CardNumber != nil {
		t.Fatal("expected no credentials before verification")
	}
	if len(events.events) != 1 || events.events[0].Level != domain.WalletEventSuccess {
		t.Fatalf("expected one success event, got %+v", events.events)
	}
}

func TestApplyForCard_RejectsDuplicateApplication(t *testing.T) {
	repo := &cardRepoStub{createErr: store.ErrCardAlreadyApplied}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.ApplyForCard(context.Background(), "acct-1", domain.CardApplicationRequest{Name: "Irfan"})
	if !errors.Is(err, store.ErrCardAlreadyApplied) {
		t.Fatalf("expected ErrCardAlreadyApplied, got %v", err)
	}
}

func TestVerifyCard_RefusedWhileWindowOpen(t *testing.T) {
	repo := &cardRepoStub{
		application: &domain.CardApplication{
			AccountID:   "acct-1",
			Status:      domain.CardApplicationPending,
			SubmittedAt: time.Now().UTC().Add(-30 * time.Second),
		},
	}
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.VerifyCard(context.Background(), "acct-1", false)
	if !errors.Is(err, ErrVerificationWindowOpen) {
		t.Fatalf("expected ErrVerificationWindowOpen, got %v", err)
	}
	if repo.verifyCalled {
		t.Fatal("expected no verification while the window is open")
	}
}

func TestVerifyCard_ForceBypassesWindow(t *testing.T) {
	repo := &cardRepoStub{
		application: &domain.CardApplication{
			AccountID:   "acct-1",
			Status:      domain.CardApplicationPending,
			SubmittedAt: time.Now().UTC().Add(-30 * time.Second),
		},
	}
	svc := newTestService(repo, &publisherStub{})

	app, err := svc.VerifyCard(context.Background(), "acct-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !app.IsVerified() {
		t.Fatalf("expected verified status, got %q", app.Status)
	}
	if app.CardNumber == nil || app.ExpiryDate == nil || app.CVV == nil {
		t.Fatal("expected credentials to be stamped on verification")
	}
}

func TestVerifyCard_AfterWindowGeneratesCredentials(t *testing.T) {
	repo := &cardRepoStub{
		application: &domain.CardApplication{
			AccountID:   "acct-1",
			Status:      domain.CardApplicationPending,
			SubmittedAt: time.Now().UTC().Add(-121 * time.Second),
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, events)

	app, err := svc.VerifyCard(context.Background(), "acct-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.verifyCalled {
		t.Fatal("expected repository verification to run")
	}
	if len(*app.CardNumber) != 16 {
		t.Fatalf("expected 16-digit card number, got %q", *app.CardNumber)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one event, got %+v", events.events)
	}
}

func TestVerifyCard_AlreadyVerifiedIsIdempotent(t *testing.T) {
	verifiedAt := time.Now().UTC().Add(-time.Hour)
	number := "5123456789012345"
	repo := &cardRepoStub{
		application: &domain.CardApplication{
			AccountID:   "acct-1",
			Status:      domain.CardApplicationVerified,
			SubmittedAt: verifiedAt.Add(-2 * time.Minute),
			VerifiedAt:  &verifiedAt,
			CardNumber:  &number,
		},
	}
	events := &publisherStub{}
	svc := newTestService(repo, events)

	app, err := svc.VerifyCard(context.Background(), "acct-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.verifyCalled {
		t.Fatal("expected no re-verification of a verified application")
	}
	if *app.CardNumber != number {
		t.Fatalf("expected stored card number unchanged, got %q", *app.CardNumber)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events for an idempotent verify, got %+v", events.events)
	}
}

type verifierRepoStub struct {
	cardRepoStub

	due []domain.CardApplication
}

func (s *verifierRepoStub) FindVerifiableCardApplications(ctx context.Context, submittedBefore time.Time, limit int) ([]domain.CardApplication, error) {
	return s.due, nil
}

func TestProcessDueVerifications_VerifiesElapsedApplications(t *testing.T) {
	pending := domain.CardApplication{
		AccountID:   "acct-1",
		Status:      domain.CardApplicationPending,
		SubmittedAt: time.Now().UTC().Add(-3 * time.Minute),
	}
	repo := &verifierRepoStub{
		cardRepoStub: cardRepoStub{application: &pending},
		due:          []domain.CardApplication{pending},
	}
	svc := newTestService(repo, &publisherStub{})
	verifier := NewCardAutoVerifier(svc, repo, testLogger(), 120*time.Second, 50)

	verifier.ProcessDueVerifications()

	if !repo.verifyCalled {
		t.Fatal("expected the due application to be verified")
	}
	if !repo.application.IsVerified() {
		t.Fatalf("expected verified status, got %q", repo.application.Status)
	}
}
