/**
 * @description
 * This file implements the card issuance workflow: the state machine that
 * takes an account from no application, through a pending application inside
 * a timed verification window, to a verified card with generated credentials.
 *
 * Manual verification after the window and the auto-verification job share
 * the same code path (`VerifyCard`), so a card can never be issued twice no
 * matter which trigger fires first. Verifying an already verified application
 * is a no-op that returns the stored credentials unchanged.
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
)

// ErrVerificationWindowOpen is returned when verification is attempted before
// the window has elapsed and the caller did not ask to bypass the timer.
var ErrVerificationWindowOpen = errors.New("verification window has not elapsed yet")

// ApplyForCard creates the account's card application in the pending state.
// An account holds at most one application, whatever its status.
func (s *Service) ApplyForCard(ctx context.Context, accountID string, req domain.CardApplicationRequest) (*domain.CardApplication, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := s.repo.FindOrCreateAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	application := &domain.CardApplication{
		AccountID:   accountID,
		Name:        req.Name,
		DOB:         req.DOB,
		Phone:       req.Phone,
		Email:       req.Email,
		Status:      domain.CardApplicationPending,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateCardApplication(ctx, application); err != nil {
		if errors.Is(err, store.ErrCardAlreadyApplied) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create card application: %w", err)
	}

	s.publishEvent(ctx, accountID, domain.WalletEventSuccess, "Card application submitted successfully!")
	return application, nil
}

// GetCardApplication returns the account's card application, if any.
func (s *Service) GetCardApplication(ctx context.Context, accountID string) (*domain.CardApplication, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.FindCardApplicationByAccountID(ctx, accountID)
}

// VerifyCard runs the pending->verified transition. Unless force is set the
// call is refused while the verification window is still open. A verified
// application is returned as-is: credentials are generated exactly once and
// the card balance is never re-initialized.
func (s *Service) VerifyCard(ctx context.Context, accountID string, force bool) (*domain.CardApplication, error) {
	if accountID == "" {
		return nil, ErrUnauthenticated
	}

	application, err := s.repo.FindCardApplicationByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if application.IsVerified() {
		return application, nil
	}

	now := time.Now().UTC()
	if !force && !application.WindowElapsed(now, s.verificationWindow) {
		return nil, ErrVerificationWindowOpen
	}

	creds, err := domain.GenerateCardCredentials(now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate card credentials: %w", err)
	}

	verified, err := s.repo.VerifyCardApplication(ctx, accountID, creds, now)
	if err != nil {
		return nil, fmt.Errorf("failed to verify card application: %w", err)
	}

	s.publishEvent(ctx, accountID, domain.WalletEventSuccess, "Card application verified!")
	return verified, nil
}

// CardAutoVerifier is the countdown owner: when a pending application's
// verification window runs out, it triggers verification without user action.
type CardAutoVerifier struct {
	service   *Service
	repo      store.Repository
	logger    *slog.Logger
	window    time.Duration
	batchSize int
}

// NewCardAutoVerifier creates the auto-verification worker.
func NewCardAutoVerifier(service *Service, repo store.Repository, logger *slog.Logger, window time.Duration, batchSize int) *CardAutoVerifier {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &CardAutoVerifier{
		service:   service,
		repo:      repo,
		logger:    logger,
		window:    window,
		batchSize: batchSize,
	}
}

// ProcessDueVerifications verifies every pending application whose window has
// elapsed. It goes through the same VerifyCard path as manual verification,
// so racing with a user-triggered verify is harmless.
func (v *CardAutoVerifier) ProcessDueVerifications() {
	ctx := context.Background()

	deadline := time.Now().UTC().Add(-v.window)
	applications, err := v.repo.FindVerifiableCardApplications(ctx, deadline, v.batchSize)
	if err != nil {
		v.logger.Error("failed to list verifiable card applications", "error", err)
		return
	}
	if len(applications) == 0 {
		return
	}

	v.logger.Info("auto-verifying card applications", "count", len(applications))

	for _, application := range applications {
		if _, err := v.service.VerifyCard(ctx, application.AccountID, false); err != nil {
			if errors.Is(err, ErrVerificationWindowOpen) {
				continue
			}
			v.logger.Error("auto-verification failed", "account_id", application.AccountID, "error", err)
			continue
		}
		v.logger.Info("card application auto-verified", "account_id", application.AccountID)
	}
}
