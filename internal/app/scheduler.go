/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/upkeephq/marketplace-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.ChangeOrderExpirySchedule, s.jobs.ExpireChangeOrders); err != nil {
		s.logger.Error("failed to schedule change order expiry job", "error", err)
	} else {
		s.logger.Info("scheduled change order expiry job", "schedule", s.config.ChangeOrderExpirySchedule)
	}

	if _, err := s.cron.AddFunc(s.config.EstimateExpirySchedule, s.jobs.ExpireEstimates); err != nil {
		s.logger.Error("failed to schedule estimate expiry job", "error", err)
	} else {
		s.logger.Info("scheduled estimate expiry job", "schedule", s.config.EstimateExpirySchedule)
	}

	if _, err := s.cron.AddFunc(s.config.TaskReminderSchedule, s.jobs.PublishDueSoonReminders); err != nil {
		s.logger.Error("failed to schedule task reminder job", "error", err)
	} else {
		s.logger.Info("scheduled task reminder job", "schedule", s.config.TaskReminderSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
