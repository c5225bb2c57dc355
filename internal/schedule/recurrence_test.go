package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDueDateIntervals(t *testing.T) {
	tests := []struct {
		name string
		freq Frequency
		from time.Time
		want time.Time
	}{
		{
			name: "days advance by the interval",
			freq: Frequency{Type: domain.FrequencyIntervalDays, Interval: 10},
			from: date(2026, time.March, 5),
			want: date(2026, time.March, 15),
		},
		{
			name: "weeks advance by seven day multiples",
			freq: Frequency{Type: domain.FrequencyIntervalWeeks, Interval: 2},
			from: date(2026, time.March, 5),
			want: date(2026, time.March, 19),
		},
		{
			name: "months preserve the day of month",
			freq: Frequency{Type: domain.FrequencyIntervalMonths, Interval: 3},
			from: date(2026, time.January, 15),
			want: date(2026, time.April, 15),
		},
		{
			name: "jan 31 plus one month clamps to feb 28",
			freq: Frequency{Type: domain.FrequencyIntervalMonths, Interval: 1},
			from: date(2026, time.January, 31),
			want: date(2026, time.February, 28),
		},
		{
			name: "jan 31 plus one month clamps to feb 29 in a leap year",
			freq: Frequency{Type: domain.FrequencyIntervalMonths, Interval: 1},
			from: date(2028, time.January, 31),
			want: date(2028, time.February, 29),
		},
		{
			name: "may 31 plus one month clamps to june 30",
			freq: Frequency{Type: domain.FrequencyIntervalMonths, Interval: 1},
			from: date(2026, time.May, 31),
			want: date(2026, time.June, 30),
		},
		{
			name: "year preserves the day",
			freq: Frequency{Type: domain.FrequencyIntervalYears, Interval: 1},
			from: date(2026, time.July, 4),
			want: date(2027, time.July, 4),
		},
		{
			name: "feb 29 plus one year clamps to feb 28",
			freq: Frequency{Type: domain.FrequencyIntervalYears, Interval: 1},
			from: date(2028, time.February, 29),
			want: date(2029, time.February, 28),
		},
		{
			name: "time of day is dropped before computing",
			freq: Frequency{Type: domain.FrequencyIntervalDays, Interval: 1},
			from: time.Date(2026, time.March, 5, 23, 45, 0, 0, time.UTC),
			want: date(2026, time.March, 6),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDueDate(tt.freq, tt.from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want.Format(time.DateOnly), got.Format(time.DateOnly))
			}
		})
	}
}

func TestNextDueDateSeasonal(t *testing.T) {
	tests := []struct {
		name   string
		months []int
		from   time.Time
		want   time.Time
	}{
		{
			name:   "picks the next suggested month in the same year",
			months: []int{3, 9},
			from:   date(2026, time.June, 10),
			want:   date(2026, time.September, 1),
		},
		{
			name:   "wraps to the first suggested month of the next year",
			months: []int{3, 9},
			from:   date(2026, time.October, 2),
			want:   date(2027, time.March, 1),
		},
		{
			name:   "current month counts as passed",
			months: []int{6},
			from:   date(2026, time.June, 1),
			want:   date(2027, time.June, 1),
		},
		{
			name:   "unordered and duplicated months are normalized",
			months: []int{11, 4, 4},
			from:   date(2026, time.May, 20),
			want:   date(2026, time.November, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDueDate(Frequency{Type: domain.FrequencySeasonalMonths, SuggestedMonths: tt.months}, tt.from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want.Format(time.DateOnly), got.Format(time.DateOnly))
			}
		})
	}
}

func TestNextDueDateErrors(t *testing.T) {
	tests := []struct {
		name    string
		freq    Frequency
		wantErr error
	}{
		{
			name:    "zero interval",
			freq:    Frequency{Type: domain.FrequencyIntervalMonths, Interval: 0},
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "negative interval",
			freq:    Frequency{Type: domain.FrequencyIntervalDays, Interval: -3},
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "seasonal without months",
			freq:    Frequency{Type: domain.FrequencySeasonalMonths},
			wantErr: ErrNoSuggestedMonths,
		},
		{
			name:    "seasonal month out of range",
			freq:    Frequency{Type: domain.FrequencySeasonalMonths, SuggestedMonths: []int{13}},
			wantErr: ErrInvalidMonth,
		},
		{
			name:    "unknown frequency type",
			freq:    Frequency{Type: "fortnightly"},
			wantErr: ErrUnknownFrequency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NextDueDate(tt.freq, date(2026, time.January, 1))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNextAfterCompletionAnchorsAtCompletionDate(t *testing.T) {
	freq := Frequency{Type: domain.FrequencyIntervalMonths, Interval: 3}

	// Completed late: 2026-02-10 against an old due date of 2026-01-01. The next
	// due date anchors at the completion, not the missed schedule.
	got, err := NextAfterCompletion(freq, date(2026, time.February, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := date(2026, time.May, 10)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format(time.DateOnly), got.Format(time.DateOnly))
	}
}
