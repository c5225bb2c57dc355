package billing

import "testing"

func TestAuthorizationPolicyBuffer(t *testing.T) {
	tests := []struct {
		name           string
		policy         AuthorizationPolicy
		amountCents    int64
		wantAuthorized int64
		wantBuffer     int64
	}{
		{
			name:           "ten percent buffer on a small estimate",
			policy:         AuthorizationPolicy{BufferPercent: 10, BufferCapCents: 50000},
			amountCents:    10000,
			wantAuthorized: 11000,
			wantBuffer:     1000,
		},
		{
			name:           "buffer is capped on large estimates",
			policy:         AuthorizationPolicy{BufferPercent: 10, BufferCapCents: 50000},
			amountCents:    1000000,
			wantAuthorized: 1050000,
			wantBuffer:     50000,
		},
		{
			name:           "zero-valued policy falls back to defaults",
			policy:         AuthorizationPolicy{},
			amountCents:    20000,
			wantAuthorized: 22000,
			wantBuffer:     2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authorized, buffer := tt.policy.AuthorizedTotal(tt.amountCents)
			if authorized != tt.wantAuthorized {
				t.Fatalf("expected authorized=%d, got %d", tt.wantAuthorized, authorized)
			}
			if buffer != tt.wantBuffer {
				t.Fatalf("expected buffer=%d, got %d", tt.wantBuffer, buffer)
			}
		})
	}
}

func TestHomeownerFeeScheduleFee(t *testing.T) {
	schedule := HomeownerFeeSchedule{
		Tiers: []FeeTier{
			{MinCents: 0, MaxCents: 9999, FeeCents: 500},
			{MinCents: 10000, MaxCents: 49999, FeeCents: 1000},
			{MinCents: 50000, MaxCents: 99999, FeeCents: 2500},
		},
		DefaultFeeCents: 5000,
	}

	tests := []struct {
		name        string
		amountCents int64
		want        int64
	}{
		{name: "first band", amountCents: 5000, want: 500},
		{name: "band boundary belongs to the next band", amountCents: 10000, want: 1000},
		{name: "top of a band", amountCents: 49999, want: 1000},
		{name: "above all bands uses the default", amountCents: 250000, want: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schedule.Fee(tt.amountCents); got != tt.want {
				t.Fatalf("expected fee=%d, got %d", tt.want, got)
			}
		})
	}

	t.Run("empty schedule uses the built-in default", func(t *testing.T) {
		empty := HomeownerFeeSchedule{}
		if got := empty.Fee(12345); got != DefaultHomeownerFeeCents {
			t.Fatalf("expected fee=%d, got %d", DefaultHomeownerFeeCents, got)
		}
	})
}

func TestProviderFeeScheduleFee(t *testing.T) {
	schedule := ProviderFeeSchedule{Percent: 8, MinimumCents: 500}

	tests := []struct {
		name        string
		amountCents int64
		want        int64
	}{
		{name: "percentage applies above the floor", amountCents: 100000, want: 8000},
		{name: "minimum applies to small amounts", amountCents: 1000, want: 500},
		{name: "exactly at the crossover", amountCents: 6250, want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schedule.Fee(tt.amountCents); got != tt.want {
				t.Fatalf("expected fee=%d, got %d", tt.want, got)
			}
		})
	}
}

func TestSettleCapture(t *testing.T) {
	fees := ProviderFeeSchedule{Percent: 8, MinimumCents: 500}

	tests := []struct {
		name       string
		totalCents int64
		wantPayout int64
		wantFee    int64
	}{
		{name: "standard split", totalCents: 100000, wantPayout: 92000, wantFee: 8000},
		{name: "minimum fee split", totalCents: 2000, wantPayout: 1500, wantFee: 500},
		{name: "fee never exceeds the total", totalCents: 300, wantPayout: 0, wantFee: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settlement := SettleCapture(tt.totalCents, fees)
			if settlement.ProviderPayoutCents != tt.wantPayout {
				t.Fatalf("expected payout=%d, got %d", tt.wantPayout, settlement.ProviderPayoutCents)
			}
			if settlement.PlatformFeeCents != tt.wantFee {
				t.Fatalf("expected fee=%d, got %d", tt.wantFee, settlement.PlatformFeeCents)
			}
			if settlement.ProviderPayoutCents+settlement.PlatformFeeCents != settlement.CapturedCents {
				t.Fatalf("payout %d + fee %d != captured %d",
					settlement.ProviderPayoutCents, settlement.PlatformFeeCents, settlement.CapturedCents)
			}
		})
	}
}
