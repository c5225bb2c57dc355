/**
 * @description
 * Guard evaluation for the payment state machine: change-order thresholds,
 * capture invariants, and the dispute window. These functions operate on plain
 * values loaded by the caller and return typed errors that the API layer maps
 * to precise responses.
 */

package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
)

var (
	ErrInvalidAmount          = errors.New("amount must be a positive number of cents")
	ErrAuthorizationMissing   = errors.New("estimate has no authorization reference")
	ErrDisputeWindowClosed    = errors.New("dispute window has closed")
)

// Defaults for threshold and window configuration.
const (
	DefaultChangeOrderThresholdPercent = 10.0
	DefaultDisputeWindowHours          = 72
	ChangeOrderExpiryWindow            = 48 * time.Hour
)

// StateConflictError reports an entity that is not in the status a transition
// requires. It carries the current status so callers can render a precise
// message.
type StateConflictError struct {
	Entity   string
	Current  string
	Required []string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s is %q, expected one of %v", e.Entity, e.Current, e.Required)
}

// AuthorizationExceededError reports an invoice total above the authorization
// ceiling. Capture is rejected outright; there are no partial captures.
type AuthorizationExceededError struct {
	TotalCents      int64
	AuthorizedCents int64
}

func (e *AuthorizationExceededError) Error() string {
	return fmt.Sprintf("invoice total %d exceeds authorized amount %d", e.TotalCents, e.AuthorizedCents)
}

// BelowThresholdError reports a change-order increase small enough to be
// absorbed by the existing authorization buffer.
type BelowThresholdError struct {
	PercentIncrease  float64
	ThresholdPercent float64
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("increase of %.2f%% is within the %.2f%% buffer threshold", e.PercentIncrease, e.ThresholdPercent)
}

// ChangeOrderPolicy evaluates whether an increase warrants a change order.
type ChangeOrderPolicy struct {
	ThresholdPercent float64
}

// ChangeOrderEvaluation is the outcome of evaluating a proposed increase.
type ChangeOrderEvaluation struct {
	PercentIncrease float64
	NewTotalCents   int64
	ExpiresAt       time.Time
}

// Evaluate checks a proposed increase against the threshold. Increases at or
// below the threshold are rejected with a BelowThresholdError carrying the
// computed percentage; increases above it yield the new total and a fixed
// 48-hour expiry from `at`.
func (p ChangeOrderPolicy) Evaluate(originalTotalCents, additionalCents int64, at time.Time) (ChangeOrderEvaluation, error) {
	if originalTotalCents <= 0 || additionalCents <= 0 {
		return ChangeOrderEvaluation{}, ErrInvalidAmount
	}

	threshold := p.ThresholdPercent
	if threshold <= 0 {
		threshold = DefaultChangeOrderThresholdPercent
	}

	percentIncrease := float64(additionalCents) / float64(originalTotalCents) * 100
	if percentIncrease <= threshold {
		return ChangeOrderEvaluation{}, &BelowThresholdError{
			PercentIncrease:  percentIncrease,
			ThresholdPercent: threshold,
		}
	}

	return ChangeOrderEvaluation{
		PercentIncrease: percentIncrease,
		NewTotalCents:   originalTotalCents + additionalCents,
		ExpiresAt:       at.Add(ChangeOrderExpiryWindow),
	}, nil
}

// ValidateCapture checks the three capture invariants in order: invoice status,
// authorization reference, and the authorization ceiling. Any violation rejects
// the whole capture.
func ValidateCapture(invoiceStatus string, paymentIntentID *string, totalCents int64, authorizedCents *int64) error {
	if invoiceStatus != domain.InvoiceStatusPendingApproval {
		return &StateConflictError{
			Entity:   "invoice",
			Current:  invoiceStatus,
			Required: []string{domain.InvoiceStatusPendingApproval},
		}
	}
	if paymentIntentID == nil || *paymentIntentID == "" || authorizedCents == nil {
		return ErrAuthorizationMissing
	}
	if totalCents > *authorizedCents {
		return &AuthorizationExceededError{
			TotalCents:      totalCents,
			AuthorizedCents: *authorizedCents,
		}
	}
	return nil
}

// DisputePolicy bounds when an invoice may be contested.
type DisputePolicy struct {
	WindowHours int
}

// CanOpen permits a dispute only while the invoice is pending approval or paid
// and the elapsed time since invoice creation is within the window.
func (p DisputePolicy) CanOpen(invoiceStatus string, invoiceCreatedAt, now time.Time) error {
	if invoiceStatus != domain.InvoiceStatusPendingApproval && invoiceStatus != domain.InvoiceStatusPaid {
		return &StateConflictError{
			Entity:   "invoice",
			Current:  invoiceStatus,
			Required: []string{domain.InvoiceStatusPendingApproval, domain.InvoiceStatusPaid},
		}
	}

	window := p.WindowHours
	if window <= 0 {
		window = DefaultDisputeWindowHours
	}
	if now.Sub(invoiceCreatedAt).Hours() > float64(window) {
		return ErrDisputeWindowClosed
	}
	return nil
}

// EstimateApprovable reports whether an estimate can transition to approved.
// Only sent or viewed estimates qualify.
func EstimateApprovable(status string) error {
	if status != domain.EstimateStatusSent && status != domain.EstimateStatusViewed {
		return &StateConflictError{
			Entity:   "estimate",
			Current:  status,
			Required: []string{domain.EstimateStatusSent, domain.EstimateStatusViewed},
		}
	}
	return nil
}
