/**
 * @description
 * This file defines the domain models for home maintenance tracking: properties,
 * maintenance tasks, the frequency rules that drive their recurrence, and the
 * immutable completion records appended when a task is done.
 *
 * @notes
 * - Tasks are archived rather than hard-deleted so completion history stays intact.
 * - `NextDueDate` is nullable: a task is "unscheduled" until its first due date
 *   has been computed from the frequency rule.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Frequency types supported by maintenance tasks. The interval kinds advance the
// due date by a fixed number of units; seasonal tasks are pinned to a set of
// suggested calendar months.
const (
	FrequencyIntervalDays   = "interval_days"
	FrequencyIntervalWeeks  = "interval_weeks"
	FrequencyIntervalMonths = "interval_months"
	FrequencyIntervalYears  = "interval_years"
	FrequencySeasonalMonths = "seasonal_months"
)

// Task lifecycle statuses.
const (
	TaskStatusActive   = "active"
	TaskStatusArchived = "archived"
)

// Completion sources.
const (
	CompletionSourceManual      = "manual"
	CompletionSourceProviderJob = "provider_job"
)

// Property represents a homeowner's property that maintenance tasks belong to.
type Property struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Nickname  string    `json:"nickname"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaintenanceTask represents a recurring maintenance item on a property.
// This struct maps directly to the `maintenance_tasks` table.
type MaintenanceTask struct {
	ID                uuid.UUID  `json:"id"`
	PropertyID        uuid.UUID  `json:"property_id"`
	TemplateID        *uuid.UUID `json:"template_id,omitempty"`
	Title             string     `json:"title"`
	Category          string     `json:"category"`
	FrequencyType     string     `json:"frequency_type"`
	FrequencyInterval int        `json:"frequency_interval"`
	SuggestedMonths   []int      `json:"suggested_months,omitempty"` // 1-12, seasonal_months only
	NextDueDate       *time.Time `json:"next_due_date,omitempty"`
	Status            string     `json:"status"`
	Notes             *string    `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TaskTemplate is a curated task definition homeowners can instantiate.
type TaskTemplate struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Category          string    `json:"category"`
	FrequencyType     string    `json:"frequency_type"`
	FrequencyInterval int       `json:"frequency_interval"`
	SuggestedMonths   []int     `json:"suggested_months,omitempty"`
	Description       *string   `json:"description,omitempty"`
}

// TaskCompletion is an immutable record of a task being completed. Rows are
// appended, never edited.
type TaskCompletion struct {
	ID          uuid.UUID  `json:"id"`
	TaskID      uuid.UUID  `json:"task_id"`
	CompletedAt time.Time  `json:"completed_at"`
	CompletedBy uuid.UUID  `json:"completed_by"`
	Source      string     `json:"source"`
	CostCents   *int64     `json:"cost_cents,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	JobID       *uuid.UUID `json:"job_id,omitempty"` // set when source is provider_job
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateTaskPayload is the DTO for creating a custom task or instantiating a template.
type CreateTaskPayload struct {
	PropertyID        uuid.UUID  `json:"property_id"`
	TemplateID        *uuid.UUID `json:"template_id,omitempty"`
	Title             string     `json:"title"`
	Category          string     `json:"category"`
	FrequencyType     string     `json:"frequency_type"`
	FrequencyInterval int        `json:"frequency_interval"`
	SuggestedMonths   []int      `json:"suggested_months,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
}

// UpdateTaskPayload is the DTO for manual edits to an existing task. Nil fields
// are left unchanged.
type UpdateTaskPayload struct {
	Title             *string    `json:"title,omitempty"`
	Category          *string    `json:"category,omitempty"`
	FrequencyType     *string    `json:"frequency_type,omitempty"`
	FrequencyInterval *int       `json:"frequency_interval,omitempty"`
	SuggestedMonths   []int      `json:"suggested_months,omitempty"`
	NextDueDate       *time.Time `json:"next_due_date,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
}

// CompleteTaskPayload is the DTO for recording a task completion.
type CompleteTaskPayload struct {
	CompletedAt *time.Time `json:"completed_at,omitempty"` // defaults to now
	CostCents   *int64     `json:"cost_cents,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	Source      string     `json:"source,omitempty"` // defaults to manual
	JobID       *uuid.UUID `json:"job_id,omitempty"`
}
