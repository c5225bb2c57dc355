/**
 * @description
 * Fee computation for the marketplace: the authorization buffer added on top of
 * approved estimates, the tiered homeowner platform fee, and the percentage
 * provider fee with an enforced minimum. All math is integer cents.
 *
 * @notes
 * - Every constant here is configuration-driven; the zero values of the policy
 *   structs fall back to the documented defaults so an absent or partial
 *   configuration never crashes a fee computation.
 */

package billing

// Defaults applied when configuration is absent or zero-valued.
const (
	DefaultBufferPercent      = 10.0
	DefaultBufferCapCents     = 50000 // $500
	DefaultProviderFeePercent = 8.0
	DefaultProviderFeeMinimum = 500 // $5
	DefaultHomeownerFeeCents  = 1500
)

// AuthorizationPolicy computes the hold amount for an approved estimate: the
// estimate total plus a percentage buffer, with the buffer capped.
type AuthorizationPolicy struct {
	BufferPercent  float64
	BufferCapCents int64
}

// Buffer returns the buffer amount for an estimate total.
func (p AuthorizationPolicy) Buffer(amountCents int64) int64 {
	percent := p.BufferPercent
	if percent <= 0 {
		percent = DefaultBufferPercent
	}
	cap := p.BufferCapCents
	if cap <= 0 {
		cap = DefaultBufferCapCents
	}

	buffer := amountCents * int64(percent*100) / 10000
	if buffer > cap {
		buffer = cap
	}
	return buffer
}

// AuthorizedTotal returns the full hold amount and the buffer portion.
func (p AuthorizationPolicy) AuthorizedTotal(amountCents int64) (authorized, buffer int64) {
	buffer = p.Buffer(amountCents)
	return amountCents + buffer, buffer
}

// FeeTier is one band of the homeowner platform fee schedule. Bands are
// ordered, contiguous and non-overlapping; that is a configuration invariant,
// not something enforced here beyond first-match-wins.
type FeeTier struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
	FeeCents int64 `json:"fee_cents"`
}

// HomeownerFeeSchedule is the tiered platform fee charged to homeowners.
type HomeownerFeeSchedule struct {
	Tiers           []FeeTier
	DefaultFeeCents int64
}

// Fee returns the fee from the first matching band, or the default fee when no
// band matches.
func (s HomeownerFeeSchedule) Fee(amountCents int64) int64 {
	for _, tier := range s.Tiers {
		if amountCents >= tier.MinCents && amountCents <= tier.MaxCents {
			return tier.FeeCents
		}
	}
	if s.DefaultFeeCents > 0 {
		return s.DefaultFeeCents
	}
	return DefaultHomeownerFeeCents
}

// ProviderFeeSchedule is the percentage-with-minimum platform fee withheld
// from provider payouts.
type ProviderFeeSchedule struct {
	Percent      float64
	MinimumCents int64
}

// Fee returns max(floor(amount * percent / 100), minimum).
func (s ProviderFeeSchedule) Fee(amountCents int64) int64 {
	percent := s.Percent
	if percent <= 0 {
		percent = DefaultProviderFeePercent
	}
	minimum := s.MinimumCents
	if minimum <= 0 {
		minimum = DefaultProviderFeeMinimum
	}

	fee := amountCents * int64(percent*100) / 10000
	if fee < minimum {
		fee = minimum
	}
	return fee
}

// CaptureSettlement is the split of a captured invoice amount. The invariant
// ProviderPayoutCents + PlatformFeeCents == CapturedCents always holds.
type CaptureSettlement struct {
	CapturedCents       int64
	ProviderPayoutCents int64
	PlatformFeeCents    int64
}

// SettleCapture splits a captured amount into provider payout and platform fee
// using the provider fee schedule.
func SettleCapture(totalCents int64, fees ProviderFeeSchedule) CaptureSettlement {
	fee := fees.Fee(totalCents)
	if fee > totalCents {
		fee = totalCents
	}
	return CaptureSettlement{
		CapturedCents:       totalCents,
		ProviderPayoutCents: totalCents - fee,
		PlatformFeeCents:    fee,
	}
}
