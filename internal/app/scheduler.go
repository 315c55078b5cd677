/**
 * @description
 * Cron scheduler setup for the background workers: the settlement poll and
 * the card auto-verification poll.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron               *cron.Cron
	settlements        *SettlementWorker
	cardVerifier       *CardAutoVerifier
	logger             *slog.Logger
	settlementSchedule string
	cardVerifySchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(settlements *SettlementWorker, cardVerifier *CardAutoVerifier, logger *slog.Logger, settlementSchedule, cardVerifySchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:               c,
		settlements:        settlements,
		cardVerifier:       cardVerifier,
		logger:             logger,
		settlementSchedule: settlementSchedule,
		cardVerifySchedule: cardVerifySchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.settlementSchedule, s.settlements.ProcessDueSettlements); err != nil {
		s.logger.Error("failed to schedule settlement poll", "error", err)
	} else {
		s.logger.Info("scheduled settlement poll", "schedule", s.settlementSchedule)
	}

	if _, err := s.cron.AddFunc(s.cardVerifySchedule, s.cardVerifier.ProcessDueVerifications); err != nil {
		s.logger.Error("failed to schedule card auto-verification poll", "error", err)
	} else {
		s.logger.Info("scheduled card auto-verification poll", "schedule", s.cardVerifySchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
