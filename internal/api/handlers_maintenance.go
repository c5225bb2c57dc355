/**
 * @description
 * HTTP handlers for the maintenance tracking endpoints: task CRUD, template
 * instantiation, completions, list views and the monthly calendar.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/domain"
)

// ListTaskTemplatesHandler returns the curated template catalogue.
func (h *Handlers) ListTaskTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	templates, err := h.maintenance.ListTemplates(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, templates)
}

// CreateTaskHandler creates a custom task or instantiates a template.
func (h *Handlers) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	var payload domain.CreateTaskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	task, err := h.maintenance.CreateTask(r.Context(), userID, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, task)
}

// UpdateTaskHandler applies a manual edit to a task.
func (h *Handlers) UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathUUID(w, chi.URLParam(r, "task_id"), "task ID")
	if !ok {
		return
	}

	var payload domain.UpdateTaskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	task, err := h.maintenance.UpdateTask(r.Context(), userID, taskID, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

// ArchiveTaskHandler soft-deletes a task; completion history stays intact.
func (h *Handlers) ArchiveTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathUUID(w, chi.URLParam(r, "task_id"), "task ID")
	if !ok {
		return
	}

	if err := h.maintenance.ArchiveTask(r.Context(), userID, taskID); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": domain.TaskStatusArchived})
}

// CompleteTaskHandler records a completion and advances the due date.
func (h *Handlers) CompleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathUUID(w, chi.URLParam(r, "task_id"), "task ID")
	if !ok {
		return
	}

	var payload domain.CompleteTaskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	completion, task, err := h.maintenance.CompleteTask(r.Context(), userID, taskID, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"completion": completion,
		"task":       task,
	})
}

// TaskHistoryHandler returns a task's completion records, newest first.
func (h *Handlers) TaskHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathUUID(w, chi.URLParam(r, "task_id"), "task ID")
	if !ok {
		return
	}

	completions, err := h.maintenance.TaskHistory(r.Context(), userID, taskID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, completions)
}

// internalCompleteTaskRequest is the payload for service-to-service task
// completion, recorded when a provider job linked to a task finishes.
type internalCompleteTaskRequest struct {
	UserID      uuid.UUID  `json:"user_id"`
	JobID       *uuid.UUID `json:"job_id,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CostCents   *int64     `json:"cost_cents,omitempty"`
}

// InternalCompleteTaskHandler records a provider-job completion for a linked
// maintenance task. Called by the job service, not by end users.
func (h *Handlers) InternalCompleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.pathUUID(w, chi.URLParam(r, "task_id"), "task ID")
	if !ok {
		return
	}

	var req internalCompleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.UserID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	completion, task, err := h.maintenance.CompleteTask(r.Context(), req.UserID, taskID, domain.CompleteTaskPayload{
		CompletedAt: req.CompletedAt,
		CostCents:   req.CostCents,
		Source:      domain.CompletionSourceProviderJob,
		JobID:       req.JobID,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"completion": completion,
		"task":       task,
	})
}

// ListTasksHandler returns a property's tasks annotated with status buckets.
func (h *Handlers) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	propertyID, ok := h.pathUUID(w, chi.URLParam(r, "property_id"), "property ID")
	if !ok {
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"
	tasks, err := h.maintenance.ListTasks(r.Context(), userID, propertyID, includeArchived)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// CalendarHandler returns the bucketed month view for a property. Month and
// year default to the current month.
func (h *Handlers) CalendarHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	propertyID, ok := h.pathUUID(w, chi.URLParam(r, "property_id"), "property ID")
	if !ok {
		return
	}

	now := time.Now()
	year := now.Year()
	month := now.Month()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = parsed
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			h.writeError(w, http.StatusBadRequest, "Invalid month")
			return
		}
		month = time.Month(parsed)
	}

	view, err := h.maintenance.Calendar(r.Context(), userID, propertyID, year, month)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}
