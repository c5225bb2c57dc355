/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the marketplace service needs. The interface decouples business logic
 * from the PostgreSQL implementation so services can be tested against stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
// Status transitions are conditional updates (update-where-status-equals); a
// zero affected-row count surfaces as a conflict error rather than a race.
type Repository interface {
	// Identity
	FindUserIDBySubject(ctx context.Context, subject string) (uuid.UUID, error)

	// Properties and tasks
	FindPropertyByID(ctx context.Context, propertyID uuid.UUID) (*domain.Property, error)
	CreateMaintenanceTask(ctx context.Context, task *domain.MaintenanceTask) error
	FindMaintenanceTaskByID(ctx context.Context, taskID uuid.UUID) (*domain.MaintenanceTask, error)
	ListMaintenanceTasksByProperty(ctx context.Context, propertyID uuid.UUID, includeArchived bool) ([]domain.MaintenanceTask, error)
	UpdateMaintenanceTask(ctx context.Context, task *domain.MaintenanceTask) error
	UpdateTaskNextDueDate(ctx context.Context, taskID uuid.UUID, nextDue *time.Time) error
	ArchiveMaintenanceTask(ctx context.Context, taskID uuid.UUID) error
	ListTasksEnteringDueSoon(ctx context.Context, from, to time.Time) ([]domain.MaintenanceTask, error)

	// Task templates
	ListTaskTemplates(ctx context.Context) ([]domain.TaskTemplate, error)
	FindTaskTemplateByID(ctx context.Context, templateID uuid.UUID) (*domain.TaskTemplate, error)

	// Task completions (append-only)
	CreateTaskCompletion(ctx context.Context, completion *domain.TaskCompletion) error
	ListTaskCompletionsByTask(ctx context.Context, taskID uuid.UUID) ([]domain.TaskCompletion, error)
	ListTaskCompletionsInWindow(ctx context.Context, propertyID uuid.UUID, from, to time.Time) ([]domain.TaskCompletion, error)

	// Service requests
	FindServiceRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.ServiceRequest, error)
	UpdateServiceRequestStatus(ctx context.Context, requestID uuid.UUID, fromStatuses []string, toStatus string) error

	// Providers
	FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error)

	// Diagnostic fees
	CreateDiagnosticFeePayment(ctx context.Context, payment *domain.DiagnosticFeePayment) error
	FindDiagnosticFeePaymentByServiceRequest(ctx context.Context, requestID uuid.UUID) (*domain.DiagnosticFeePayment, error)

	// Estimates
	CreateEstimate(ctx context.Context, estimate *domain.Estimate) error
	FindEstimateByID(ctx context.Context, estimateID uuid.UUID) (*domain.Estimate, error)
	FindEstimateByServiceRequest(ctx context.Context, requestID uuid.UUID) (*domain.Estimate, error)
	MarkEstimateSent(ctx context.Context, estimateID uuid.UUID, sentAt time.Time) (*domain.Estimate, error)
	MarkEstimateViewed(ctx context.Context, estimateID uuid.UUID, viewedAt time.Time) (*domain.Estimate, error)
	ApproveEstimate(ctx context.Context, estimateID uuid.UUID, params ApproveEstimateParams) (*domain.Estimate, error)
	RejectEstimate(ctx context.Context, estimateID uuid.UUID) (*domain.Estimate, error)
	ExpireStaleEstimates(ctx context.Context, now time.Time) (int64, error)

	// Change orders
	CreateChangeOrder(ctx context.Context, order *domain.ChangeOrder) error
	FindChangeOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.ChangeOrder, error)
	AcceptChangeOrder(ctx context.Context, orderID uuid.UUID, params AcceptChangeOrderParams) (*domain.ChangeOrder, error)
	RejectChangeOrder(ctx context.Context, orderID uuid.UUID) (*domain.ChangeOrder, error)
	ExpireStaleChangeOrders(ctx context.Context, now time.Time) (int64, error)

	// Invoices
	CreateInvoice(ctx context.Context, invoice *domain.Invoice) error
	FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)
	MarkInvoiceCaptured(ctx context.Context, invoiceID uuid.UUID, params CaptureInvoiceParams) (*domain.Invoice, error)
	MarkInvoiceDisputed(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)

	// Disputes
	CreateDispute(ctx context.Context, dispute *domain.Dispute) error
}

// ApproveEstimateParams carries the authorization details persisted when an
// estimate transitions to approved.
type ApproveEstimateParams struct {
	AuthorizedAmountCents int64
	BufferAmountCents     int64
	PaymentIntentID       string
	ApprovedAt            time.Time
}

// AcceptChangeOrderParams carries the re-authorization details persisted when a
// change order is accepted. The parent estimate's ceiling moves with it.
type AcceptChangeOrderParams struct {
	PaymentIntentID       string
	AuthorizedAmountCents int64
	RespondedAt           time.Time
}

// CaptureInvoiceParams carries the settlement recorded on successful capture.
type CaptureInvoiceParams struct {
	CapturedAmountCents int64
	PlatformFeeCents    int64
	ProviderPayoutCents int64
	StripeChargeID      string
	StripeTransferID    string
	CapturedAt          time.Time
}
