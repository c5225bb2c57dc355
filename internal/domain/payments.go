/**
 * @description
 * This file defines the domain models for the marketplace money flow: service
 * requests, diagnostic fees, estimates with authorization holds, change orders,
 * invoices, and disputes.
 *
 * @notes
 * - Amounts are stored as `int64` in cents to avoid floating-point inaccuracies
 *   with financial data.
 * - Status transitions are one-directional except the sent/viewed pair on
 *   estimates; the store layer enforces them as conditional updates.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Service request statuses follow the money lifecycle of a job.
const (
	ServiceRequestStatusOpen                = "open"
	ServiceRequestStatusDiagnosticCharged   = "diagnostic_fee_charged"
	ServiceRequestStatusEstimateSent        = "estimate_sent"
	ServiceRequestStatusEstimateApproved    = "estimate_approved"
	ServiceRequestStatusInvoicePending      = "invoice_pending_approval"
	ServiceRequestStatusInvoicePaid         = "invoice_paid"
	ServiceRequestStatusDisputed            = "disputed"
)

// Estimate statuses.
const (
	EstimateStatusDraft    = "draft"
	EstimateStatusSent     = "sent"
	EstimateStatusViewed   = "viewed"
	EstimateStatusApproved = "approved"
	EstimateStatusRejected = "rejected"
	EstimateStatusExpired  = "expired"
)

// Change order statuses.
const (
	ChangeOrderStatusPending  = "pending"
	ChangeOrderStatusAccepted = "accepted"
	ChangeOrderStatusRejected = "rejected"
	ChangeOrderStatusExpired  = "expired"
)

// Invoice statuses.
const (
	InvoiceStatusPendingApproval = "pending_approval"
	InvoiceStatusPaid            = "paid"
	InvoiceStatusDisputed        = "disputed"
)

// Dispute statuses. Resolution is a manual support process; the service never
// transitions a dispute out of open.
const (
	DisputeStatusOpen = "open"
)

// ServiceRequest represents a homeowner's request for provider work on a
// property. It is the parent of the whole money lifecycle.
type ServiceRequest struct {
	ID                uuid.UUID  `json:"id"`
	PropertyID        uuid.UUID  `json:"property_id"`
	HomeownerID       uuid.UUID  `json:"homeowner_id"`
	ProviderID        *uuid.UUID `json:"provider_id,omitempty"`
	Category          string     `json:"category"`
	Description       string     `json:"description"`
	Status            string     `json:"status"`
	StripeCustomerID  *string    `json:"stripe_customer_id,omitempty"`
	MaintenanceTaskID *uuid.UUID `json:"maintenance_task_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Provider represents the subset of a service provider that the payment flow
// needs: identity plus the processor's connected account for payouts.
type Provider struct {
	ID                    uuid.UUID `json:"id"`
	BusinessName          string    `json:"business_name"`
	StripeAccountID       string    `json:"stripe_account_id"`
	PayoutsEnabled        bool      `json:"payouts_enabled"`
	CreatedAt             time.Time `json:"created_at"`
}

// DiagnosticFeePayment records the one-shot upfront fee charged before a
// provider assesses the job. At most one exists per service request.
type DiagnosticFeePayment struct {
	ID               uuid.UUID `json:"id"`
	ServiceRequestID uuid.UUID `json:"service_request_id"`
	Category         string    `json:"category"`
	FeeCents         int64     `json:"fee_cents"`
	StripeChargeID   string    `json:"stripe_charge_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Estimate represents a provider's quote. Once approved it carries the
// authorization hold that bounds everything captured downstream.
type Estimate struct {
	ID                    uuid.UUID  `json:"id"`
	ServiceRequestID      uuid.UUID  `json:"service_request_id"`
	ProviderID            uuid.UUID  `json:"provider_id"`
	TotalCents            int64      `json:"total_cents"`
	Status                string     `json:"status"`
	AuthorizedAmountCents *int64     `json:"authorized_amount_cents,omitempty"` // >= TotalCents once set
	BufferAmountCents     int64      `json:"buffer_amount_cents"`
	PaymentIntentID       *string    `json:"payment_intent_id,omitempty"`
	LineItems             []EstimateLineItem `json:"line_items,omitempty"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	SentAt                *time.Time `json:"sent_at,omitempty"`
	ViewedAt              *time.Time `json:"viewed_at,omitempty"`
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// EstimateLineItem is one priced line on an estimate.
type EstimateLineItem struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

// ChangeOrder is a provider-initiated request to raise the authorized amount
// beyond the original estimate plus its buffer. Only increases above the
// configured percentage threshold produce a change order; smaller increases
// are absorbed by the buffer.
type ChangeOrder struct {
	ID                 uuid.UUID  `json:"id"`
	EstimateID         uuid.UUID  `json:"estimate_id"`
	OriginalTotalCents int64      `json:"original_total_cents"`
	AdditionalCents    int64      `json:"additional_cents"`
	NewTotalCents      int64      `json:"new_total_cents"`
	Reason             string     `json:"reason"`
	Status             string     `json:"status"`
	PaymentIntentID    *string    `json:"payment_intent_id,omitempty"` // set on accept (re-authorization)
	ExpiresAt          time.Time  `json:"expires_at"`                  // creation + 48h, checked at read time
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Invoice is the provider's final bill. Its total may never exceed the
// authorization ceiling on the parent estimate.
type Invoice struct {
	ID                  uuid.UUID  `json:"id"`
	ServiceRequestID    uuid.UUID  `json:"service_request_id"`
	EstimateID          uuid.UUID  `json:"estimate_id"`
	TotalCents          int64      `json:"total_cents"`
	Status              string     `json:"status"`
	CapturedAmountCents *int64     `json:"captured_amount_cents,omitempty"`
	PlatformFeeCents    *int64     `json:"platform_fee_cents,omitempty"`
	ProviderPayoutCents *int64     `json:"provider_payout_cents,omitempty"`
	StripeChargeID      *string    `json:"stripe_charge_id,omitempty"`
	StripeTransferID    *string    `json:"stripe_transfer_id,omitempty"`
	CapturedAt          *time.Time `json:"captured_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Dispute records a homeowner contesting an invoice inside the dispute window.
type Dispute struct {
	ID                  uuid.UUID `json:"id"`
	InvoiceID           uuid.UUID `json:"invoice_id"`
	OpenedBy            uuid.UUID `json:"opened_by"`
	Reason              string    `json:"reason"`
	Description         string    `json:"description"`
	AmountDisputedCents int64     `json:"amount_disputed_cents"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
}

// CreateEstimatePayload is the DTO for a provider drafting an estimate.
type CreateEstimatePayload struct {
	ServiceRequestID uuid.UUID          `json:"service_request_id"`
	TotalCents       int64              `json:"total_cents"`
	LineItems        []EstimateLineItem `json:"line_items,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
}

// CreateChangeOrderPayload is the DTO for a provider requesting more budget.
type CreateChangeOrderPayload struct {
	AdditionalCents int64  `json:"additional_cents"`
	Reason          string `json:"reason"`
}

// CreateInvoicePayload is the DTO for a provider submitting the final bill.
type CreateInvoicePayload struct {
	ServiceRequestID uuid.UUID `json:"service_request_id"`
	TotalCents       int64     `json:"total_cents"`
}

// OpenDisputePayload is the DTO for a homeowner contesting an invoice.
type OpenDisputePayload struct {
	Reason              string `json:"reason"`
	Description         string `json:"description"`
	AmountDisputedCents int64  `json:"amount_disputed_cents"`
}

// AuthorizationResult is returned after an estimate approval succeeds.
type AuthorizationResult struct {
	ClientSecret     string `json:"client_secret"`
	PaymentIntentID  string `json:"payment_intent_id"`
	AuthorizedAmount int64  `json:"authorized_amount"`
	BufferAmount     int64  `json:"buffer_amount"`
	PlatformFee      int64  `json:"platform_fee"`
}

// CaptureResult is returned after an invoice capture succeeds.
type CaptureResult struct {
	ChargeID           string `json:"charge_id"`
	ProviderTransferID string `json:"provider_transfer_id"`
	CapturedAmount     int64  `json:"captured_amount"`
	ProviderAmount     int64  `json:"provider_amount"`
	PlatformFee        int64  `json:"platform_fee"`
}
