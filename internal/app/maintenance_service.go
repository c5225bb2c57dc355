/**
 * @description
 * Core business logic for maintenance tracking. The service loads task state
 * through the repository, delegates recurrence and classification to the
 * schedule package, and persists the results. The engine itself never touches
 * I/O; this service is the boundary that does.
 *
 * @dependencies
 * - internal/domain, internal/schedule, internal/store.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/domain"
	"github.com/upkeephq/marketplace-service/internal/schedule"
	"github.com/upkeephq/marketplace-service/internal/store"
)

var (
	ErrNotPropertyOwner = errors.New("property does not belong to the requesting user")
	ErrEmptyTitle       = errors.New("task title must not be empty")
)

// MaintenanceService provides the business logic for maintenance tasks.
type MaintenanceService struct {
	repo        store.Repository
	dueSoonDays int
}

// NewMaintenanceService creates a new maintenance service instance.
func NewMaintenanceService(repo store.Repository, dueSoonDays int) *MaintenanceService {
	if dueSoonDays <= 0 {
		dueSoonDays = schedule.DefaultDueSoonDays
	}
	return &MaintenanceService{repo: repo, dueSoonDays: dueSoonDays}
}

// ResolveUserID converts an auth provider subject from a validated JWT into
// the internal UUID used by the database.
func (s *MaintenanceService) ResolveUserID(ctx context.Context, subject string) (uuid.UUID, error) {
	return s.repo.FindUserIDBySubject(ctx, subject)
}

// TaskWithStatus pairs a task with its computed bucket for list views.
type TaskWithStatus struct {
	domain.MaintenanceTask
	Bucket schedule.Bucket `json:"bucket"`
}

// CreateTask creates a custom task or instantiates a template. The first due
// date is computed from today using the task's frequency rule.
func (s *MaintenanceService) CreateTask(ctx context.Context, userID uuid.UUID, payload domain.CreateTaskPayload) (*domain.MaintenanceTask, error) {
	property, err := s.repo.FindPropertyByID(ctx, payload.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find property: %w", err)
	}
	if property.OwnerID != userID {
		return nil, ErrNotPropertyOwner
	}

	task := &domain.MaintenanceTask{
		ID:                uuid.New(),
		PropertyID:        payload.PropertyID,
		Title:             strings.TrimSpace(payload.Title),
		Category:          payload.Category,
		FrequencyType:     payload.FrequencyType,
		FrequencyInterval: payload.FrequencyInterval,
		SuggestedMonths:   payload.SuggestedMonths,
		Status:            domain.TaskStatusActive,
		Notes:             payload.Notes,
	}

	if payload.TemplateID != nil {
		template, err := s.repo.FindTaskTemplateByID(ctx, *payload.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to find task template: %w", err)
		}
		task.TemplateID = &template.ID
		if task.Title == "" {
			task.Title = template.Title
		}
		if task.Category == "" {
			task.Category = template.Category
		}
		if task.FrequencyType == "" {
			task.FrequencyType = template.FrequencyType
			task.FrequencyInterval = template.FrequencyInterval
			task.SuggestedMonths = template.SuggestedMonths
		}
	}

	if task.Title == "" {
		return nil, ErrEmptyTitle
	}

	nextDue, err := schedule.NextDueDate(schedule.FrequencyFromTask(*task), time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid frequency rule: %w", err)
	}
	task.NextDueDate = &nextDue

	if err := s.repo.CreateMaintenanceTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// UpdateTask applies a manual edit. When the frequency rule changes and the
// caller did not pin an explicit due date, the next due date is recomputed
// from today under the new rule.
func (s *MaintenanceService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, payload domain.UpdateTaskPayload) (*domain.MaintenanceTask, error) {
	task, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	frequencyChanged := false
	if payload.Title != nil {
		trimmed := strings.TrimSpace(*payload.Title)
		if trimmed == "" {
			return nil, ErrEmptyTitle
		}
		task.Title = trimmed
	}
	if payload.Category != nil {
		task.Category = *payload.Category
	}
	if payload.FrequencyType != nil {
		task.FrequencyType = *payload.FrequencyType
		frequencyChanged = true
	}
	if payload.FrequencyInterval != nil {
		task.FrequencyInterval = *payload.FrequencyInterval
		frequencyChanged = true
	}
	if payload.SuggestedMonths != nil {
		task.SuggestedMonths = payload.SuggestedMonths
		frequencyChanged = true
	}
	if payload.Notes != nil {
		task.Notes = payload.Notes
	}

	switch {
	case payload.NextDueDate != nil:
		task.NextDueDate = payload.NextDueDate
	case frequencyChanged:
		nextDue, err := schedule.NextDueDate(schedule.FrequencyFromTask(*task), time.Now())
		if err != nil {
			return nil, fmt.Errorf("invalid frequency rule: %w", err)
		}
		task.NextDueDate = &nextDue
	}

	if err := s.repo.UpdateMaintenanceTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// ArchiveTask soft-deletes a task.
func (s *MaintenanceService) ArchiveTask(ctx context.Context, userID, taskID uuid.UUID) error {
	if _, err := s.ownedTask(ctx, userID, taskID); err != nil {
		return err
	}
	return s.repo.ArchiveMaintenanceTask(ctx, taskID)
}

// CompleteTask appends an immutable completion record and advances the task's
// due date anchored at the completion date, not the old due date.
func (s *MaintenanceService) CompleteTask(ctx context.Context, userID, taskID uuid.UUID, payload domain.CompleteTaskPayload) (*domain.TaskCompletion, *domain.MaintenanceTask, error) {
	task, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, nil, err
	}

	completedAt := time.Now().UTC()
	if payload.CompletedAt != nil {
		completedAt = payload.CompletedAt.UTC()
	}
	source := payload.Source
	if source == "" {
		source = domain.CompletionSourceManual
	}

	completion := &domain.TaskCompletion{
		ID:          uuid.New(),
		TaskID:      task.ID,
		CompletedAt: completedAt,
		CompletedBy: userID,
		Source:      source,
		CostCents:   payload.CostCents,
		Attachments: payload.Attachments,
		JobID:       payload.JobID,
	}
	if err := s.repo.CreateTaskCompletion(ctx, completion); err != nil {
		return nil, nil, fmt.Errorf("failed to record completion: %w", err)
	}

	nextDue, err := schedule.NextAfterCompletion(schedule.FrequencyFromTask(*task), completedAt)
	if err != nil {
		// The completion is recorded; a broken rule leaves the task unscheduled
		// rather than rolling back the immutable record.
		log.Printf("level=WARN component=maintenance_service msg=\"task left unscheduled after completion\" task_id=%s error=%v", task.ID, err)
		task.NextDueDate = nil
	} else {
		task.NextDueDate = &nextDue
	}

	if err := s.repo.UpdateTaskNextDueDate(ctx, task.ID, task.NextDueDate); err != nil {
		return nil, nil, fmt.Errorf("failed to advance due date: %w", err)
	}
	return completion, task, nil
}

// ListTasks returns a property's tasks annotated with their computed buckets.
func (s *MaintenanceService) ListTasks(ctx context.Context, userID, propertyID uuid.UUID, includeArchived bool) ([]TaskWithStatus, error) {
	if err := s.checkPropertyOwner(ctx, userID, propertyID); err != nil {
		return nil, err
	}

	tasks, err := s.repo.ListMaintenanceTasksByProperty(ctx, propertyID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	today := time.Now()
	annotated := make([]TaskWithStatus, 0, len(tasks))
	for _, task := range tasks {
		annotated = append(annotated, TaskWithStatus{
			MaintenanceTask: task,
			Bucket:          schedule.TaskStatusFor(task.NextDueDate, today, s.dueSoonDays),
		})
	}
	return annotated, nil
}

// Calendar builds the bucketed month view for a property, including
// completions recorded inside the month.
func (s *MaintenanceService) Calendar(ctx context.Context, userID, propertyID uuid.UUID, year int, month time.Month) (*schedule.CalendarView, error) {
	if err := s.checkPropertyOwner(ctx, userID, propertyID); err != nil {
		return nil, err
	}

	tasks, err := s.repo.ListMaintenanceTasksByProperty(ctx, propertyID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	completions, err := s.repo.ListTaskCompletionsInWindow(ctx, propertyID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	view := schedule.BuildCalendarView(tasks, completions, time.Now(), s.dueSoonDays)
	return &view, nil
}

// ListTemplates returns the curated template catalogue.
func (s *MaintenanceService) ListTemplates(ctx context.Context) ([]domain.TaskTemplate, error) {
	return s.repo.ListTaskTemplates(ctx)
}

// TaskHistory returns a task's completion records, newest first.
func (s *MaintenanceService) TaskHistory(ctx context.Context, userID, taskID uuid.UUID) ([]domain.TaskCompletion, error) {
	if _, err := s.ownedTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListTaskCompletionsByTask(ctx, taskID)
}

func (s *MaintenanceService) ownedTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.MaintenanceTask, error) {
	task, err := s.repo.FindMaintenanceTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPropertyOwner(ctx, userID, task.PropertyID); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *MaintenanceService) checkPropertyOwner(ctx context.Context, userID, propertyID uuid.UUID) error {
	property, err := s.repo.FindPropertyByID(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("failed to find property: %w", err)
	}
	if property.OwnerID != userID {
		return ErrNotPropertyOwner
	}
	return nil
}
