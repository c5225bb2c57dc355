package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
)

func TestChangeOrderPolicyEvaluate(t *testing.T) {
	policy := ChangeOrderPolicy{ThresholdPercent: 10}
	at := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)

	t.Run("increase at the threshold is absorbed by the buffer", func(t *testing.T) {
		_, err := policy.Evaluate(10000, 1000, at)
		var below *BelowThresholdError
		if !errors.As(err, &below) {
			t.Fatalf("expected BelowThresholdError, got %v", err)
		}
		if below.PercentIncrease != 10 {
			t.Fatalf("expected 10%% increase, got %.2f", below.PercentIncrease)
		}
	})

	t.Run("increase above the threshold yields a change order", func(t *testing.T) {
		eval, err := policy.Evaluate(10000, 1500, at)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eval.NewTotalCents != 11500 {
			t.Fatalf("expected new total 11500, got %d", eval.NewTotalCents)
		}
		if eval.PercentIncrease != 15 {
			t.Fatalf("expected 15%% increase, got %.2f", eval.PercentIncrease)
		}
		if want := at.Add(48 * time.Hour); !eval.ExpiresAt.Equal(want) {
			t.Fatalf("expected expiry %s, got %s", want, eval.ExpiresAt)
		}
	})

	t.Run("non-positive amounts are invalid", func(t *testing.T) {
		if _, err := policy.Evaluate(0, 1000, at); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
		if _, err := policy.Evaluate(10000, -5, at); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("zero threshold falls back to the default", func(t *testing.T) {
		_, err := ChangeOrderPolicy{}.Evaluate(10000, 900, at)
		var below *BelowThresholdError
		if !errors.As(err, &below) {
			t.Fatalf("expected BelowThresholdError under default threshold, got %v", err)
		}
		if below.ThresholdPercent != DefaultChangeOrderThresholdPercent {
			t.Fatalf("expected default threshold, got %.2f", below.ThresholdPercent)
		}
	})
}

func TestValidateCapture(t *testing.T) {
	intentID := "pi_123"
	authorized := int64(11000)

	t.Run("valid capture passes", func(t *testing.T) {
		if err := ValidateCapture(domain.InvoiceStatusPendingApproval, &intentID, 9000, &authorized); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("capture at the ceiling passes", func(t *testing.T) {
		if err := ValidateCapture(domain.InvoiceStatusPendingApproval, &intentID, 11000, &authorized); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("wrong invoice status is a conflict", func(t *testing.T) {
		err := ValidateCapture(domain.InvoiceStatusPaid, &intentID, 9000, &authorized)
		var conflict *StateConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected StateConflictError, got %v", err)
		}
		if conflict.Current != domain.InvoiceStatusPaid {
			t.Fatalf("conflict should name the current status, got %q", conflict.Current)
		}
	})

	t.Run("missing authorization reference", func(t *testing.T) {
		if err := ValidateCapture(domain.InvoiceStatusPendingApproval, nil, 9000, &authorized); !errors.Is(err, ErrAuthorizationMissing) {
			t.Fatalf("expected ErrAuthorizationMissing, got %v", err)
		}
		if err := ValidateCapture(domain.InvoiceStatusPendingApproval, &intentID, 9000, nil); !errors.Is(err, ErrAuthorizationMissing) {
			t.Fatalf("expected ErrAuthorizationMissing, got %v", err)
		}
	})

	t.Run("total above the ceiling is rejected outright", func(t *testing.T) {
		err := ValidateCapture(domain.InvoiceStatusPendingApproval, &intentID, 11001, &authorized)
		var exceeded *AuthorizationExceededError
		if !errors.As(err, &exceeded) {
			t.Fatalf("expected AuthorizationExceededError, got %v", err)
		}
		if exceeded.TotalCents != 11001 || exceeded.AuthorizedCents != 11000 {
			t.Fatalf("unexpected amounts in error: %+v", exceeded)
		}
	})

	t.Run("status is checked before the ceiling", func(t *testing.T) {
		err := ValidateCapture(domain.InvoiceStatusDisputed, &intentID, 99999, &authorized)
		var conflict *StateConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected status conflict first, got %v", err)
		}
	})
}

func TestDisputePolicyCanOpen(t *testing.T) {
	policy := DisputePolicy{WindowHours: 72}
	createdAt := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  string
		elapsed time.Duration
		wantErr error
	}{
		{name: "inside the window on a paid invoice", status: domain.InvoiceStatusPaid, elapsed: 70 * time.Hour},
		{name: "exactly at the window boundary", status: domain.InvoiceStatusPaid, elapsed: 72 * time.Hour},
		{name: "pending approval qualifies too", status: domain.InvoiceStatusPendingApproval, elapsed: 1 * time.Hour},
		{name: "past the window", status: domain.InvoiceStatusPaid, elapsed: 73 * time.Hour, wantErr: ErrDisputeWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.CanOpen(tt.status, createdAt, createdAt.Add(tt.elapsed))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("already disputed invoice is a conflict", func(t *testing.T) {
		err := policy.CanOpen(domain.InvoiceStatusDisputed, createdAt, createdAt.Add(time.Hour))
		var conflict *StateConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected StateConflictError, got %v", err)
		}
	})
}

func TestEstimateApprovable(t *testing.T) {
	for _, status := range []string{domain.EstimateStatusSent, domain.EstimateStatusViewed} {
		if err := EstimateApprovable(status); err != nil {
			t.Fatalf("expected %s to be approvable, got %v", status, err)
		}
	}
	for _, status := range []string{domain.EstimateStatusDraft, domain.EstimateStatusApproved, domain.EstimateStatusRejected, domain.EstimateStatusExpired} {
		err := EstimateApprovable(status)
		var conflict *StateConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected conflict for %s, got %v", status, err)
		}
	}
}
