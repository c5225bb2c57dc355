/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. Contains all SQL
 * for maintenance tasks, completions, service requests, estimates, change
 * orders, invoices and disputes.
 *
 * @notes
 * - Status transitions are compare-and-swap conditional updates
 *   (`UPDATE ... WHERE id = $1 AND status = ANY(...) RETURNING *`). A losing
 *   concurrent request fails its guard and gets a ConflictError naming the
 *   current status instead of corrupting state.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/upkeephq/marketplace-service/internal/domain"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrPropertyNotFound       = errors.New("property not found")
	ErrTaskNotFound           = errors.New("maintenance task not found")
	ErrTemplateNotFound       = errors.New("task template not found")
	ErrServiceRequestNotFound = errors.New("service request not found")
	ErrProviderNotFound       = errors.New("provider not found")
	ErrEstimateNotFound       = errors.New("estimate not found")
	ErrChangeOrderNotFound    = errors.New("change order not found")
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrDiagnosticFeeNotFound  = errors.New("diagnostic fee payment not found")
)

// ConflictError reports a conditional status update that matched no rows
// because the entity was not in a required status.
type ConflictError struct {
	Entity   string
	Current  string
	Required []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is %q, expected one of %v", e.Entity, e.Current, e.Required)
}

// PostgresRepository is the concrete Repository backed by a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDBySubject resolves the internal UUID from an auth provider subject
// (the `sub` claim of a validated JWT).
func (r *PostgresRepository) FindUserIDBySubject(ctx context.Context, subject string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE auth_subject = $1", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// FindPropertyByID retrieves a property by its ID.
func (r *PostgresRepository) FindPropertyByID(ctx context.Context, propertyID uuid.UUID) (*domain.Property, error) {
	var p domain.Property
	query := `SELECT id, owner_id, nickname, address, created_at, updated_at FROM properties WHERE id = $1`
	err := r.db.QueryRow(ctx, query, propertyID).Scan(&p.ID, &p.OwnerID, &p.Nickname, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}
	return &p, nil
}

const taskColumns = `id, property_id, template_id, title, category, frequency_type, frequency_interval, suggested_months, next_due_date, status, notes, created_at, updated_at`

func scanTask(row pgx.Row) (*domain.MaintenanceTask, error) {
	var t domain.MaintenanceTask
	err := row.Scan(
		&t.ID,
		&t.PropertyID,
		&t.TemplateID,
		&t.Title,
		&t.Category,
		&t.FrequencyType,
		&t.FrequencyInterval,
		&t.SuggestedMonths,
		&t.NextDueDate,
		&t.Status,
		&t.Notes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateMaintenanceTask inserts a new task row.
func (r *PostgresRepository) CreateMaintenanceTask(ctx context.Context, task *domain.MaintenanceTask) error {
	query := `
		INSERT INTO maintenance_tasks
			(id, property_id, template_id, title, category, frequency_type, frequency_interval, suggested_months, next_due_date, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		task.ID,
		task.PropertyID,
		task.TemplateID,
		task.Title,
		task.Category,
		task.FrequencyType,
		task.FrequencyInterval,
		task.SuggestedMonths,
		task.NextDueDate,
		task.Status,
		task.Notes,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

// FindMaintenanceTaskByID retrieves a task by its ID.
func (r *PostgresRepository) FindMaintenanceTaskByID(ctx context.Context, taskID uuid.UUID) (*domain.MaintenanceTask, error) {
	query := `SELECT ` + taskColumns + ` FROM maintenance_tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRow(ctx, query, taskID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListMaintenanceTasksByProperty lists a property's tasks ordered for stable
// presentation: ascending due date (nulls last), then title.
func (r *PostgresRepository) ListMaintenanceTasksByProperty(ctx context.Context, propertyID uuid.UUID, includeArchived bool) ([]domain.MaintenanceTask, error) {
	query := `SELECT ` + taskColumns + ` FROM maintenance_tasks WHERE property_id = $1`
	if !includeArchived {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY next_due_date ASC NULLS LAST, title ASC`

	rows, err := r.db.Query(ctx, query, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.MaintenanceTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateMaintenanceTask persists a manual edit. Archived tasks are not
// editable.
func (r *PostgresRepository) UpdateMaintenanceTask(ctx context.Context, task *domain.MaintenanceTask) error {
	query := `
		UPDATE maintenance_tasks
		SET title = $2,
		    category = $3,
		    frequency_type = $4,
		    frequency_interval = $5,
		    suggested_months = $6,
		    next_due_date = $7,
		    notes = $8,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'`
	tag, err := r.db.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Category,
		task.FrequencyType,
		task.FrequencyInterval,
		task.SuggestedMonths,
		task.NextDueDate,
		task.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.taskConflict(ctx, task.ID, []string{domain.TaskStatusActive})
	}
	return nil
}

// UpdateTaskNextDueDate advances a task's due date after a completion.
func (r *PostgresRepository) UpdateTaskNextDueDate(ctx context.Context, taskID uuid.UUID, nextDue *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_tasks SET next_due_date = $2, updated_at = NOW() WHERE id = $1`,
		taskID, nextDue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ArchiveMaintenanceTask soft-deletes a task. Tasks are archived, never
// hard-deleted, so completion history survives.
func (r *PostgresRepository) ArchiveMaintenanceTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_tasks SET status = 'archived', updated_at = NOW() WHERE id = $1 AND status = 'active'`,
		taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.taskConflict(ctx, taskID, []string{domain.TaskStatusActive})
	}
	return nil
}

// ListTasksEnteringDueSoon returns active tasks whose due date falls inside
// (from, to], used by the reminder job.
func (r *PostgresRepository) ListTasksEnteringDueSoon(ctx context.Context, from, to time.Time) ([]domain.MaintenanceTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM maintenance_tasks
		WHERE status = 'active'
		  AND next_due_date IS NOT NULL
		  AND next_due_date > $1
		  AND next_due_date <= $2
		ORDER BY next_due_date ASC, title ASC`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.MaintenanceTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *PostgresRepository) taskConflict(ctx context.Context, taskID uuid.UUID, required []string) error {
	task, err := r.FindMaintenanceTaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	return &ConflictError{Entity: "maintenance task", Current: task.Status, Required: required}
}

// ListTaskTemplates returns the curated template catalogue.
func (r *PostgresRepository) ListTaskTemplates(ctx context.Context) ([]domain.TaskTemplate, error) {
	query := `SELECT id, title, category, frequency_type, frequency_interval, suggested_months, description FROM task_templates ORDER BY category, title`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.TaskTemplate
	for rows.Next() {
		var t domain.TaskTemplate
		if err := rows.Scan(&t.ID, &t.Title, &t.Category, &t.FrequencyType, &t.FrequencyInterval, &t.SuggestedMonths, &t.Description); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// FindTaskTemplateByID retrieves a template by its ID.
func (r *PostgresRepository) FindTaskTemplateByID(ctx context.Context, templateID uuid.UUID) (*domain.TaskTemplate, error) {
	var t domain.TaskTemplate
	query := `SELECT id, title, category, frequency_type, frequency_interval, suggested_months, description FROM task_templates WHERE id = $1`
	err := r.db.QueryRow(ctx, query, templateID).Scan(&t.ID, &t.Title, &t.Category, &t.FrequencyType, &t.FrequencyInterval, &t.SuggestedMonths, &t.Description)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateTaskCompletion appends an immutable completion record.
func (r *PostgresRepository) CreateTaskCompletion(ctx context.Context, completion *domain.TaskCompletion) error {
	query := `
		INSERT INTO task_completions (id, task_id, completed_at, completed_by, source, cost_cents, attachments, job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		completion.ID,
		completion.TaskID,
		completion.CompletedAt,
		completion.CompletedBy,
		completion.Source,
		completion.CostCents,
		completion.Attachments,
		completion.JobID,
	).Scan(&completion.CreatedAt)
}

const completionColumns = `id, task_id, completed_at, completed_by, source, cost_cents, attachments, job_id, created_at`

// ListTaskCompletionsByTask lists a task's completion history, newest first.
func (r *PostgresRepository) ListTaskCompletionsByTask(ctx context.Context, taskID uuid.UUID) ([]domain.TaskCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM task_completions WHERE task_id = $1 ORDER BY completed_at DESC`
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// ListTaskCompletionsInWindow lists completions on a property inside a time
// window, for the calendar view.
func (r *PostgresRepository) ListTaskCompletionsInWindow(ctx context.Context, propertyID uuid.UUID, from, to time.Time) ([]domain.TaskCompletion, error) {
	query := `
		SELECT c.id, c.task_id, c.completed_at, c.completed_by, c.source, c.cost_cents, c.attachments, c.job_id, c.created_at
		FROM task_completions c
		JOIN maintenance_tasks t ON t.id = c.task_id
		WHERE t.property_id = $1
		  AND c.completed_at >= $2
		  AND c.completed_at < $3
		ORDER BY c.completed_at ASC`
	rows, err := r.db.Query(ctx, query, propertyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompletions(rows)
}

func scanCompletions(rows pgx.Rows) ([]domain.TaskCompletion, error) {
	var completions []domain.TaskCompletion
	for rows.Next() {
		var c domain.TaskCompletion
		if err := rows.Scan(&c.ID, &c.TaskID, &c.CompletedAt, &c.CompletedBy, &c.Source, &c.CostCents, &c.Attachments, &c.JobID, &c.CreatedAt); err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// FindServiceRequestByID retrieves a service request by its ID.
func (r *PostgresRepository) FindServiceRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.ServiceRequest, error) {
	var sr domain.ServiceRequest
	query := `
		SELECT id, property_id, homeowner_id, provider_id, category, description, status, stripe_customer_id, maintenance_task_id, created_at, updated_at
		FROM service_requests WHERE id = $1`
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&sr.ID,
		&sr.PropertyID,
		&sr.HomeownerID,
		&sr.ProviderID,
		&sr.Category,
		&sr.Description,
		&sr.Status,
		&sr.StripeCustomerID,
		&sr.MaintenanceTaskID,
		&sr.CreatedAt,
		&sr.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrServiceRequestNotFound
		}
		return nil, err
	}
	return &sr, nil
}

// UpdateServiceRequestStatus moves a service request between lifecycle states.
// The update only matches when the request is currently in one of fromStatuses.
func (r *PostgresRepository) UpdateServiceRequestStatus(ctx context.Context, requestID uuid.UUID, fromStatuses []string, toStatus string) error {
	query := `
		UPDATE service_requests
		SET status = $3, updated_at = NOW()
		WHERE id = $1
		  AND status = ANY($2)`
	tag, err := r.db.Exec(ctx, query, requestID, fromStatuses, toStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		sr, err := r.FindServiceRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		return &ConflictError{Entity: "service request", Current: sr.Status, Required: fromStatuses}
	}
	return nil
}

// FindProviderByID retrieves a provider and its connected payout account.
func (r *PostgresRepository) FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error) {
	var p domain.Provider
	query := `SELECT id, business_name, stripe_account_id, payouts_enabled, created_at FROM providers WHERE id = $1`
	err := r.db.QueryRow(ctx, query, providerID).Scan(&p.ID, &p.BusinessName, &p.StripeAccountID, &p.PayoutsEnabled, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateDiagnosticFeePayment records a diagnostic fee charge. The unique index
// on service_request_id makes double charges fail closed at the database.
func (r *PostgresRepository) CreateDiagnosticFeePayment(ctx context.Context, payment *domain.DiagnosticFeePayment) error {
	query := `
		INSERT INTO diagnostic_fee_payments (id, service_request_id, category, fee_cents, stripe_charge_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		payment.ID,
		payment.ServiceRequestID,
		payment.Category,
		payment.FeeCents,
		payment.StripeChargeID,
	).Scan(&payment.CreatedAt)
}

// FindDiagnosticFeePaymentByServiceRequest returns the fee payment for a
// request if one exists.
func (r *PostgresRepository) FindDiagnosticFeePaymentByServiceRequest(ctx context.Context, requestID uuid.UUID) (*domain.DiagnosticFeePayment, error) {
	var p domain.DiagnosticFeePayment
	query := `SELECT id, service_request_id, category, fee_cents, stripe_charge_id, created_at FROM diagnostic_fee_payments WHERE service_request_id = $1`
	err := r.db.QueryRow(ctx, query, requestID).Scan(&p.ID, &p.ServiceRequestID, &p.Category, &p.FeeCents, &p.StripeChargeID, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDiagnosticFeeNotFound
		}
		return nil, err
	}
	return &p, nil
}

const estimateColumns = `id, service_request_id, provider_id, total_cents, status, authorized_amount_cents, buffer_amount_cents, payment_intent_id, line_items, expires_at, sent_at, viewed_at, approved_at, created_at, updated_at`

func scanEstimate(row pgx.Row) (*domain.Estimate, error) {
	var e domain.Estimate
	var lineItems []byte
	err := row.Scan(
		&e.ID,
		&e.ServiceRequestID,
		&e.ProviderID,
		&e.TotalCents,
		&e.Status,
		&e.AuthorizedAmountCents,
		&e.BufferAmountCents,
		&e.PaymentIntentID,
		&lineItems,
		&e.ExpiresAt,
		&e.SentAt,
		&e.ViewedAt,
		&e.ApprovedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &e.LineItems); err != nil {
			return nil, fmt.Errorf("failed to decode estimate line items: %w", err)
		}
	}
	return &e, nil
}

// CreateEstimate inserts a draft estimate.
func (r *PostgresRepository) CreateEstimate(ctx context.Context, estimate *domain.Estimate) error {
	lineItems, err := json.Marshal(estimate.LineItems)
	if err != nil {
		return fmt.Errorf("failed to encode estimate line items: %w", err)
	}
	query := `
		INSERT INTO estimates
			(id, service_request_id, provider_id, total_cents, status, buffer_amount_cents, line_items, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		estimate.ID,
		estimate.ServiceRequestID,
		estimate.ProviderID,
		estimate.TotalCents,
		estimate.Status,
		estimate.BufferAmountCents,
		lineItems,
		estimate.ExpiresAt,
	).Scan(&estimate.CreatedAt, &estimate.UpdatedAt)
}

// FindEstimateByID retrieves an estimate by its ID.
func (r *PostgresRepository) FindEstimateByID(ctx context.Context, estimateID uuid.UUID) (*domain.Estimate, error) {
	query := `SELECT ` + estimateColumns + ` FROM estimates WHERE id = $1`
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query, estimateID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEstimateNotFound
		}
		return nil, err
	}
	return estimate, nil
}

// FindEstimateByServiceRequest retrieves the most recent estimate on a request.
func (r *PostgresRepository) FindEstimateByServiceRequest(ctx context.Context, requestID uuid.UUID) (*domain.Estimate, error) {
	query := `SELECT ` + estimateColumns + ` FROM estimates WHERE service_request_id = $1 ORDER BY created_at DESC LIMIT 1`
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEstimateNotFound
		}
		return nil, err
	}
	return estimate, nil
}

// MarkEstimateSent transitions draft -> sent.
func (r *PostgresRepository) MarkEstimateSent(ctx context.Context, estimateID uuid.UUID, sentAt time.Time) (*domain.Estimate, error) {
	query := `
		UPDATE estimates
		SET status = 'sent', sent_at = $2, updated_at = NOW()
		WHERE id = $1
		  AND status = 'draft'
		RETURNING ` + estimateColumns
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query, estimateID, sentAt))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.estimateConflict(ctx, estimateID, []string{domain.EstimateStatusDraft})
		}
		return nil, err
	}
	return estimate, nil
}

// MarkEstimateViewed transitions sent -> viewed. Viewed is the one reversible
// edge in the estimate machine (viewed estimates can be re-sent), so a viewed
// estimate marked viewed again is a no-op success.
func (r *PostgresRepository) MarkEstimateViewed(ctx context.Context, estimateID uuid.UUID, viewedAt time.Time) (*domain.Estimate, error) {
	query := `
		UPDATE estimates
		SET status = 'viewed', viewed_at = COALESCE(viewed_at, $2), updated_at = NOW()
		WHERE id = $1
		  AND status IN ('sent', 'viewed')
		RETURNING ` + estimateColumns
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query, estimateID, viewedAt))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.estimateConflict(ctx, estimateID, []string{domain.EstimateStatusSent, domain.EstimateStatusViewed})
		}
		return nil, err
	}
	return estimate, nil
}

// ApproveEstimate transitions sent/viewed -> approved and records the
// authorization hold in the same statement.
func (r *PostgresRepository) ApproveEstimate(ctx context.Context, estimateID uuid.UUID, params ApproveEstimateParams) (*domain.Estimate, error) {
	query := `
		UPDATE estimates
		SET status = 'approved',
		    authorized_amount_cents = $2,
		    buffer_amount_cents = $3,
		    payment_intent_id = $4,
		    approved_at = $5,
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('sent', 'viewed')
		RETURNING ` + estimateColumns
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query,
		estimateID,
		params.AuthorizedAmountCents,
		params.BufferAmountCents,
		params.PaymentIntentID,
		params.ApprovedAt,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.estimateConflict(ctx, estimateID, []string{domain.EstimateStatusSent, domain.EstimateStatusViewed})
		}
		return nil, err
	}
	return estimate, nil
}

// RejectEstimate transitions sent/viewed -> rejected.
func (r *PostgresRepository) RejectEstimate(ctx context.Context, estimateID uuid.UUID) (*domain.Estimate, error) {
	query := `
		UPDATE estimates
		SET status = 'rejected', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('sent', 'viewed')
		RETURNING ` + estimateColumns
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query, estimateID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.estimateConflict(ctx, estimateID, []string{domain.EstimateStatusSent, domain.EstimateStatusViewed})
		}
		return nil, err
	}
	return estimate, nil
}

// ExpireStaleEstimates marks sent or viewed estimates past their expiry.
func (r *PostgresRepository) ExpireStaleEstimates(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE estimates
		SET status = 'expired', updated_at = NOW()
		WHERE status IN ('sent', 'viewed')
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) estimateConflict(ctx context.Context, estimateID uuid.UUID, required []string) error {
	estimate, err := r.FindEstimateByID(ctx, estimateID)
	if err != nil {
		return err
	}
	return &ConflictError{Entity: "estimate", Current: estimate.Status, Required: required}
}

const changeOrderColumns = `id, estimate_id, original_total_cents, additional_cents, new_total_cents, reason, status, payment_intent_id, expires_at, responded_at, created_at, updated_at`

func scanChangeOrder(row pgx.Row) (*domain.ChangeOrder, error) {
	var co domain.ChangeOrder
	err := row.Scan(
		&co.ID,
		&co.EstimateID,
		&co.OriginalTotalCents,
		&co.AdditionalCents,
		&co.NewTotalCents,
		&co.Reason,
		&co.Status,
		&co.PaymentIntentID,
		&co.ExpiresAt,
		&co.RespondedAt,
		&co.CreatedAt,
		&co.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &co, nil
}

// CreateChangeOrder inserts a pending change order.
func (r *PostgresRepository) CreateChangeOrder(ctx context.Context, order *domain.ChangeOrder) error {
	query := `
		INSERT INTO change_orders
			(id, estimate_id, original_total_cents, additional_cents, new_total_cents, reason, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		order.ID,
		order.EstimateID,
		order.OriginalTotalCents,
		order.AdditionalCents,
		order.NewTotalCents,
		order.Reason,
		order.Status,
		order.ExpiresAt,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

// FindChangeOrderByID retrieves a change order by its ID.
func (r *PostgresRepository) FindChangeOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.ChangeOrder, error) {
	query := `SELECT ` + changeOrderColumns + ` FROM change_orders WHERE id = $1`
	order, err := scanChangeOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrChangeOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// AcceptChangeOrder transitions pending -> accepted and raises the parent
// estimate's authorization ceiling in the same transaction.
func (r *PostgresRepository) AcceptChangeOrder(ctx context.Context, orderID uuid.UUID, params AcceptChangeOrderParams) (*domain.ChangeOrder, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE change_orders
		SET status = 'accepted', payment_intent_id = $2, responded_at = $3, updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING ` + changeOrderColumns
	order, err := scanChangeOrder(tx.QueryRow(ctx, query, orderID, params.PaymentIntentID, params.RespondedAt))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.changeOrderConflict(ctx, orderID, []string{domain.ChangeOrderStatusPending})
		}
		return nil, err
	}

	estimateQuery := `
		UPDATE estimates
		SET total_cents = $2,
		    authorized_amount_cents = $3,
		    payment_intent_id = $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'approved'`
	tag, err := tx.Exec(ctx, estimateQuery, order.EstimateID, order.NewTotalCents, params.AuthorizedAmountCents, params.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, r.estimateConflict(ctx, order.EstimateID, []string{domain.EstimateStatusApproved})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// RejectChangeOrder transitions pending -> rejected.
func (r *PostgresRepository) RejectChangeOrder(ctx context.Context, orderID uuid.UUID) (*domain.ChangeOrder, error) {
	query := `
		UPDATE change_orders
		SET status = 'rejected', responded_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING ` + changeOrderColumns
	order, err := scanChangeOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.changeOrderConflict(ctx, orderID, []string{domain.ChangeOrderStatusPending})
		}
		return nil, err
	}
	return order, nil
}

// ExpireStaleChangeOrders marks pending change orders past their expiry.
func (r *PostgresRepository) ExpireStaleChangeOrders(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE change_orders
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending'
		  AND expires_at <= $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) changeOrderConflict(ctx context.Context, orderID uuid.UUID, required []string) error {
	order, err := r.FindChangeOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	return &ConflictError{Entity: "change order", Current: order.Status, Required: required}
}

const invoiceColumns = `id, service_request_id, estimate_id, total_cents, status, captured_amount_cents, platform_fee_cents, provider_payout_cents, stripe_charge_id, stripe_transfer_id, captured_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.ServiceRequestID,
		&inv.EstimateID,
		&inv.TotalCents,
		&inv.Status,
		&inv.CapturedAmountCents,
		&inv.PlatformFeeCents,
		&inv.ProviderPayoutCents,
		&inv.StripeChargeID,
		&inv.StripeTransferID,
		&inv.CapturedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice inserts a pending-approval invoice.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		INSERT INTO invoices (id, service_request_id, estimate_id, total_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		invoice.ID,
		invoice.ServiceRequestID,
		invoice.EstimateID,
		invoice.TotalCents,
		invoice.Status,
	).Scan(&invoice.CreatedAt, &invoice.UpdatedAt)
}

// FindInvoiceByID retrieves an invoice by its ID.
func (r *PostgresRepository) FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	invoice, err := scanInvoice(r.db.QueryRow(ctx, query, invoiceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return invoice, nil
}

// MarkInvoiceCaptured transitions pending_approval -> paid and records the
// settlement split.
func (r *PostgresRepository) MarkInvoiceCaptured(ctx context.Context, invoiceID uuid.UUID, params CaptureInvoiceParams) (*domain.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = 'paid',
		    captured_amount_cents = $2,
		    platform_fee_cents = $3,
		    provider_payout_cents = $4,
		    stripe_charge_id = $5,
		    stripe_transfer_id = $6,
		    captured_at = $7,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending_approval'
		RETURNING ` + invoiceColumns
	invoice, err := scanInvoice(r.db.QueryRow(ctx, query,
		invoiceID,
		params.CapturedAmountCents,
		params.PlatformFeeCents,
		params.ProviderPayoutCents,
		params.StripeChargeID,
		params.StripeTransferID,
		params.CapturedAt,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.invoiceConflict(ctx, invoiceID, []string{domain.InvoiceStatusPendingApproval})
		}
		return nil, err
	}
	return invoice, nil
}

// MarkInvoiceDisputed transitions pending_approval/paid -> disputed.
func (r *PostgresRepository) MarkInvoiceDisputed(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = 'disputed', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending_approval', 'paid')
		RETURNING ` + invoiceColumns
	invoice, err := scanInvoice(r.db.QueryRow(ctx, query, invoiceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, r.invoiceConflict(ctx, invoiceID, []string{domain.InvoiceStatusPendingApproval, domain.InvoiceStatusPaid})
		}
		return nil, err
	}
	return invoice, nil
}

func (r *PostgresRepository) invoiceConflict(ctx context.Context, invoiceID uuid.UUID, required []string) error {
	invoice, err := r.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	return &ConflictError{Entity: "invoice", Current: invoice.Status, Required: required}
}

// CreateDispute records an opened dispute.
func (r *PostgresRepository) CreateDispute(ctx context.Context, dispute *domain.Dispute) error {
	query := `
		INSERT INTO disputes (id, invoice_id, opened_by, reason, description, amount_disputed_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		dispute.ID,
		dispute.InvoiceID,
		dispute.OpenedBy,
		dispute.Reason,
		dispute.Description,
		dispute.AmountDisputedCents,
		dispute.Status,
	).Scan(&dispute.CreatedAt)
}
