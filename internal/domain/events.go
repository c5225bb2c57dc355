/**
 * @description
 * Event payloads published to RabbitMQ for asynchronous processing by the
 * notification layer (email/SMS/push delivery is out of scope for this service;
 * it only emits the facts).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the marketplace events exchange.
const (
	EventEstimateApproved    = "estimate.approved"
	EventChangeOrderCreated  = "change_order.created"
	EventChangeOrderAccepted = "change_order.accepted"
	EventInvoiceCaptured     = "invoice.captured"
	EventDisputeOpened       = "dispute.opened"
	EventTaskReminderDue     = "task.reminder.due"
)

// EstimateApprovedEvent is published when a homeowner approves an estimate and
// the authorization hold has been placed.
type EstimateApprovedEvent struct {
	EstimateID       uuid.UUID `json:"estimate_id"`
	ServiceRequestID uuid.UUID `json:"service_request_id"`
	AuthorizedAmount int64     `json:"authorized_amount"`
	Timestamp        time.Time `json:"timestamp"`
}

// ChangeOrderEvent is published when a change order is created or accepted.
type ChangeOrderEvent struct {
	ChangeOrderID   uuid.UUID `json:"change_order_id"`
	EstimateID      uuid.UUID `json:"estimate_id"`
	AdditionalCents int64     `json:"additional_cents"`
	NewTotalCents   int64     `json:"new_total_cents"`
	ExpiresAt       time.Time `json:"expires_at"`
	Timestamp       time.Time `json:"timestamp"`
}

// InvoiceCapturedEvent is published after a successful capture and payout split.
type InvoiceCapturedEvent struct {
	InvoiceID      uuid.UUID `json:"invoice_id"`
	CapturedAmount int64     `json:"captured_amount"`
	ProviderAmount int64     `json:"provider_amount"`
	PlatformFee    int64     `json:"platform_fee"`
	Timestamp      time.Time `json:"timestamp"`
}

// DisputeOpenedEvent is published when a homeowner opens a dispute.
type DisputeOpenedEvent struct {
	DisputeID       uuid.UUID `json:"dispute_id"`
	InvoiceID       uuid.UUID `json:"invoice_id"`
	AmountDisputed  int64     `json:"amount_disputed"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}

// TaskReminderEvent is published by the reminder job for tasks entering the
// due-soon window.
type TaskReminderEvent struct {
	TaskID      uuid.UUID `json:"task_id"`
	PropertyID  uuid.UUID `json:"property_id"`
	Title       string    `json:"title"`
	NextDueDate time.Time `json:"next_due_date"`
	Timestamp   time.Time `json:"timestamp"`
}
