package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/domain"
	"github.com/upkeephq/marketplace-service/internal/store"
)

type taskStubRepo struct {
	store.Repository

	property *domain.Property
	task     *domain.MaintenanceTask
	template *domain.TaskTemplate

	createdTask       *domain.MaintenanceTask
	createdCompletion *domain.TaskCompletion
	updatedNextDue    *time.Time
	nextDueUpdated    bool
}

func (r *taskStubRepo) FindPropertyByID(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	if r.property == nil {
		return nil, store.ErrPropertyNotFound
	}
	return r.property, nil
}

func (r *taskStubRepo) FindMaintenanceTaskByID(ctx context.Context, id uuid.UUID) (*domain.MaintenanceTask, error) {
	if r.task == nil {
		return nil, store.ErrTaskNotFound
	}
	return r.task, nil
}

func (r *taskStubRepo) FindTaskTemplateByID(ctx context.Context, id uuid.UUID) (*domain.TaskTemplate, error) {
	if r.template == nil {
		return nil, store.ErrTemplateNotFound
	}
	return r.template, nil
}

func (r *taskStubRepo) CreateMaintenanceTask(ctx context.Context, task *domain.MaintenanceTask) error {
	r.createdTask = task
	return nil
}

func (r *taskStubRepo) CreateTaskCompletion(ctx context.Context, completion *domain.TaskCompletion) error {
	r.createdCompletion = completion
	return nil
}

func (r *taskStubRepo) UpdateTaskNextDueDate(ctx context.Context, taskID uuid.UUID, nextDue *time.Time) error {
	r.updatedNextDue = nextDue
	r.nextDueUpdated = true
	return nil
}

func TestCreateTask(t *testing.T) {
	ownerID := uuid.New()
	property := &domain.Property{ID: uuid.New(), OwnerID: ownerID}

	t.Run("computes the first due date from the rule", func(t *testing.T) {
		repo := &taskStubRepo{property: property}
		svc := NewMaintenanceService(repo, 7)

		task, err := svc.CreateTask(context.Background(), ownerID, domain.CreateTaskPayload{
			PropertyID:        property.ID,
			Title:             "Replace HVAC filter",
			FrequencyType:     domain.FrequencyIntervalMonths,
			FrequencyInterval: 3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.NextDueDate == nil {
			t.Fatal("expected an initial due date")
		}
		want := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 3, 0)
		// Clamping can move the day earlier in short months, never later.
		if task.NextDueDate.After(want) {
			t.Fatalf("due date %s past expected %s", task.NextDueDate, want)
		}
		if task.Status != domain.TaskStatusActive {
			t.Fatalf("expected active task, got %s", task.Status)
		}
	})

	t.Run("template instantiation fills missing fields", func(t *testing.T) {
		repo := &taskStubRepo{
			property: property,
			template: &domain.TaskTemplate{
				ID:                uuid.New(),
				Title:             "Clean gutters",
				Category:          "exterior",
				FrequencyType:     domain.FrequencySeasonalMonths,
				SuggestedMonths:   []int{4, 10},
			},
		}
		svc := NewMaintenanceService(repo, 7)

		task, err := svc.CreateTask(context.Background(), ownerID, domain.CreateTaskPayload{
			PropertyID: property.ID,
			TemplateID: &repo.template.ID,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.Title != "Clean gutters" || task.FrequencyType != domain.FrequencySeasonalMonths {
			t.Fatalf("template fields not applied: %+v", task)
		}
		if task.NextDueDate == nil || task.NextDueDate.Day() != 1 {
			t.Fatalf("seasonal due date should pin to the 1st, got %v", task.NextDueDate)
		}
	})

	t.Run("someone else's property is rejected", func(t *testing.T) {
		repo := &taskStubRepo{property: &domain.Property{ID: property.ID, OwnerID: uuid.New()}}
		svc := NewMaintenanceService(repo, 7)

		_, err := svc.CreateTask(context.Background(), ownerID, domain.CreateTaskPayload{
			PropertyID:        property.ID,
			Title:             "Nope",
			FrequencyType:     domain.FrequencyIntervalDays,
			FrequencyInterval: 30,
		})
		if !errors.Is(err, ErrNotPropertyOwner) {
			t.Fatalf("expected ErrNotPropertyOwner, got %v", err)
		}
	})

	t.Run("broken frequency rule rejects creation", func(t *testing.T) {
		repo := &taskStubRepo{property: property}
		svc := NewMaintenanceService(repo, 7)

		_, err := svc.CreateTask(context.Background(), ownerID, domain.CreateTaskPayload{
			PropertyID:        property.ID,
			Title:             "Bad rule",
			FrequencyType:     domain.FrequencyIntervalMonths,
			FrequencyInterval: 0,
		})
		if err == nil {
			t.Fatal("expected an error for a zero interval")
		}
		if repo.createdTask != nil {
			t.Fatal("task must not be persisted with a broken rule")
		}
	})
}

func TestCompleteTask(t *testing.T) {
	ownerID := uuid.New()
	property := &domain.Property{ID: uuid.New(), OwnerID: ownerID}
	oldDue := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	buildRepo := func() *taskStubRepo {
		return &taskStubRepo{
			property: property,
			task: &domain.MaintenanceTask{
				ID:                uuid.New(),
				PropertyID:        property.ID,
				Title:             "Replace HVAC filter",
				FrequencyType:     domain.FrequencyIntervalMonths,
				FrequencyInterval: 3,
				NextDueDate:       &oldDue,
				Status:            domain.TaskStatusActive,
			},
		}
	}

	t.Run("advances the due date from the completion, not the old due date", func(t *testing.T) {
		repo := buildRepo()
		svc := NewMaintenanceService(repo, 7)

		completedAt := time.Date(2026, time.February, 10, 15, 0, 0, 0, time.UTC)
		completion, task, err := svc.CompleteTask(context.Background(), ownerID, repo.task.ID, domain.CompleteTaskPayload{
			CompletedAt: &completedAt,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if completion.Source != domain.CompletionSourceManual {
			t.Fatalf("expected manual source, got %s", completion.Source)
		}
		want := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
		if task.NextDueDate == nil || !task.NextDueDate.Equal(want) {
			t.Fatalf("expected next due %s, got %v", want.Format(time.DateOnly), task.NextDueDate)
		}
		if !repo.nextDueUpdated {
			t.Fatal("expected the due date to be persisted")
		}
	})

	t.Run("completion is recorded before the due date moves", func(t *testing.T) {
		repo := buildRepo()
		svc := NewMaintenanceService(repo, 7)

		if _, _, err := svc.CompleteTask(context.Background(), ownerID, repo.task.ID, domain.CompleteTaskPayload{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.createdCompletion == nil {
			t.Fatal("expected a completion record")
		}
		if repo.createdCompletion.CompletedBy != ownerID {
			t.Fatalf("completion should carry the acting user, got %s", repo.createdCompletion.CompletedBy)
		}
	})

	t.Run("non-owner cannot complete", func(t *testing.T) {
		repo := buildRepo()
		svc := NewMaintenanceService(repo, 7)

		_, _, err := svc.CompleteTask(context.Background(), uuid.New(), repo.task.ID, domain.CompleteTaskPayload{})
		if !errors.Is(err, ErrNotPropertyOwner) {
			t.Fatalf("expected ErrNotPropertyOwner, got %v", err)
		}
		if repo.createdCompletion != nil {
			t.Fatal("no completion should be recorded for a non-owner")
		}
	})
}
