package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/domain"
	"github.com/upkeephq/marketplace-service/internal/store"
)

type jobsStubRepo struct {
	store.Repository

	dueSoonTasks       []domain.MaintenanceTask
	expiredChangeCount int64
	expiredEstimates   int64
	listErr            error
}

func (r *jobsStubRepo) ListTasksEnteringDueSoon(ctx context.Context, from, to time.Time) ([]domain.MaintenanceTask, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.dueSoonTasks, nil
}

func (r *jobsStubRepo) ExpireStaleChangeOrders(ctx context.Context, now time.Time) (int64, error) {
	return r.expiredChangeCount, nil
}

func (r *jobsStubRepo) ExpireStaleEstimates(ctx context.Context, now time.Time) (int64, error) {
	return r.expiredEstimates, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishDueSoonReminders(t *testing.T) {
	due := time.Now().UTC().AddDate(0, 0, 7)

	t.Run("publishes one event per task", func(t *testing.T) {
		repo := &jobsStubRepo{
			dueSoonTasks: []domain.MaintenanceTask{
				{ID: uuid.New(), PropertyID: uuid.New(), Title: "Gutter cleaning", NextDueDate: &due},
				{ID: uuid.New(), PropertyID: uuid.New(), Title: "HVAC filter", NextDueDate: &due},
			},
		}
		publisher := &stubPublisher{}
		jobs := NewJobs(repo, publisher, discardLogger(), 7)

		jobs.PublishDueSoonReminders()

		if len(publisher.routingKeys) != 2 {
			t.Fatalf("expected 2 reminder events, got %d", len(publisher.routingKeys))
		}
		for _, key := range publisher.routingKeys {
			if key != domain.EventTaskReminderDue {
				t.Fatalf("expected task.reminder.due, got %s", key)
			}
		}
	})

	t.Run("tasks without a due date are skipped", func(t *testing.T) {
		repo := &jobsStubRepo{
			dueSoonTasks: []domain.MaintenanceTask{
				{ID: uuid.New(), Title: "Unscheduled"},
			},
		}
		publisher := &stubPublisher{}
		jobs := NewJobs(repo, publisher, discardLogger(), 7)

		jobs.PublishDueSoonReminders()

		if len(publisher.routingKeys) != 0 {
			t.Fatalf("expected no events, got %v", publisher.routingKeys)
		}
	})

	t.Run("a listing failure publishes nothing", func(t *testing.T) {
		repo := &jobsStubRepo{listErr: errors.New("db down")}
		publisher := &stubPublisher{}
		jobs := NewJobs(repo, publisher, discardLogger(), 7)

		jobs.PublishDueSoonReminders()

		if len(publisher.routingKeys) != 0 {
			t.Fatalf("expected no events on failure, got %v", publisher.routingKeys)
		}
	})
}

func TestExpirySweeps(t *testing.T) {
	repo := &jobsStubRepo{expiredChangeCount: 3, expiredEstimates: 2}
	jobs := NewJobs(repo, &stubPublisher{}, discardLogger(), 7)

	// The sweeps are fire-and-forget; they must not panic with a healthy repo.
	jobs.ExpireChangeOrders()
	jobs.ExpireEstimates()
}
