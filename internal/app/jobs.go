/**
 * @description
 * Scheduled job implementations: sweeping expired change orders and stale
 * estimates into their terminal statuses, and publishing reminders for tasks
 * entering the due-soon window. The sweeps are tidy-ups; the read-time checks
 * in the services remain authoritative, so a request racing a sweep still gets
 * the right answer.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
	"github.com/upkeephq/marketplace-service/internal/store"
	"github.com/upkeephq/marketplace-service/pkg/rabbitmq"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo        store.Repository
	publisher   rabbitmq.Publisher
	logger      *slog.Logger
	dueSoonDays int
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, publisher rabbitmq.Publisher, logger *slog.Logger, dueSoonDays int) *Jobs {
	return &Jobs{
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
		dueSoonDays: dueSoonDays,
	}
}

// ExpireChangeOrders marks pending change orders past their expiry as expired.
func (j *Jobs) ExpireChangeOrders() {
	j.logger.Info("starting change order expiry job")
	ctx := context.Background()

	count, err := j.repo.ExpireStaleChangeOrders(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("failed to expire change orders", "error", err)
		return
	}

	j.logger.Info("change order expiry job finished", "expired", count)
}

// ExpireEstimates marks sent or viewed estimates past their expiry as expired.
func (j *Jobs) ExpireEstimates() {
	j.logger.Info("starting estimate expiry job")
	ctx := context.Background()

	count, err := j.repo.ExpireStaleEstimates(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("failed to expire estimates", "error", err)
		return
	}

	j.logger.Info("estimate expiry job finished", "expired", count)
}

// PublishDueSoonReminders publishes one reminder event per task whose due date
// enters the due-soon window today. Running daily keeps the job naturally
// idempotent: each task crosses the window boundary once.
func (j *Jobs) PublishDueSoonReminders() {
	j.logger.Info("starting task reminder job")
	ctx := context.Background()

	boundary := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, j.dueSoonDays)
	tasks, err := j.repo.ListTasksEnteringDueSoon(ctx, boundary, boundary.AddDate(0, 0, 1))
	if err != nil {
		j.logger.Error("failed to list tasks entering due-soon window", "error", err)
		return
	}

	if len(tasks) == 0 {
		j.logger.Info("no tasks entering due-soon window")
		return
	}

	published := 0
	for _, task := range tasks {
		if task.NextDueDate == nil {
			continue
		}
		event := domain.TaskReminderEvent{
			TaskID:      task.ID,
			PropertyID:  task.PropertyID,
			Title:       task.Title,
			NextDueDate: *task.NextDueDate,
			Timestamp:   time.Now().UTC(),
		}
		if err := j.publisher.Publish(ctx, rabbitmq.MarketplaceExchange, domain.EventTaskReminderDue, event); err != nil {
			j.logger.Error("failed to publish task reminder", "task_id", task.ID, "error", err)
			continue
		}
		published++
	}

	j.logger.Info("task reminder job finished", "published", published, "total", len(tasks))
}
