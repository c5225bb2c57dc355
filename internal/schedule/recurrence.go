/**
 * @description
 * Recurrence computation for maintenance tasks. Given a frequency rule this
 * package computes the next due date on or after an anchor date. It is pure
 * computation over its inputs; callers load task state and persist the result.
 *
 * @notes
 * - Month and year addition preserves the day-of-month, clamping to the last
 *   valid day of the target month (Jan 31 + 1 month is Feb 28, or Feb 29 in a
 *   leap year, never Mar 3).
 * - Seasonal frequencies define month granularity only; the due day is pinned
 *   to the 1st of the chosen month.
 */

package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
)

var (
	ErrInvalidInterval     = errors.New("frequency interval must be a positive integer")
	ErrNoSuggestedMonths   = errors.New("seasonal frequency requires at least one suggested month")
	ErrUnknownFrequency    = errors.New("unknown frequency type")
	ErrInvalidMonth        = errors.New("suggested months must be between 1 and 12")
)

// Frequency is the plain-data recurrence rule extracted from a task.
type Frequency struct {
	Type            string
	Interval        int
	SuggestedMonths []int
}

// FrequencyFromTask extracts the recurrence rule from a maintenance task.
func FrequencyFromTask(task domain.MaintenanceTask) Frequency {
	return Frequency{
		Type:            task.FrequencyType,
		Interval:        task.FrequencyInterval,
		SuggestedMonths: task.SuggestedMonths,
	}
}

// NextDueDate computes the next due date on or after `from` for the given rule.
// The result is a date at midnight UTC.
func NextDueDate(freq Frequency, from time.Time) (time.Time, error) {
	anchor := truncateToDay(from)

	switch freq.Type {
	case domain.FrequencyIntervalDays:
		if freq.Interval <= 0 {
			return time.Time{}, ErrInvalidInterval
		}
		return anchor.AddDate(0, 0, freq.Interval), nil

	case domain.FrequencyIntervalWeeks:
		if freq.Interval <= 0 {
			return time.Time{}, ErrInvalidInterval
		}
		return anchor.AddDate(0, 0, freq.Interval*7), nil

	case domain.FrequencyIntervalMonths:
		if freq.Interval <= 0 {
			return time.Time{}, ErrInvalidInterval
		}
		return addMonthsClamped(anchor, freq.Interval), nil

	case domain.FrequencyIntervalYears:
		if freq.Interval <= 0 {
			return time.Time{}, ErrInvalidInterval
		}
		return addMonthsClamped(anchor, freq.Interval*12), nil

	case domain.FrequencySeasonalMonths:
		return nextSeasonalDate(freq.SuggestedMonths, anchor)

	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq.Type)
	}
}

// NextAfterCompletion recomputes the due date anchored at the completion date,
// not the old due date. This is the only recompute path besides manual edit.
func NextAfterCompletion(freq Frequency, completedAt time.Time) (time.Time, error) {
	return NextDueDate(freq, completedAt)
}

// nextSeasonalDate finds the smallest suggested month strictly after the
// anchor's month in the same year, wrapping to the smallest suggested month of
// the following year when none remains.
func nextSeasonalDate(suggestedMonths []int, anchor time.Time) (time.Time, error) {
	if len(suggestedMonths) == 0 {
		return time.Time{}, ErrNoSuggestedMonths
	}

	months := make([]int, 0, len(suggestedMonths))
	seen := make(map[int]bool, len(suggestedMonths))
	for _, m := range suggestedMonths {
		if m < 1 || m > 12 {
			return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidMonth, m)
		}
		if !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	sort.Ints(months)

	currentMonth := int(anchor.Month())
	for _, m := range months {
		if m > currentMonth {
			return time.Date(anchor.Year(), time.Month(m), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	// All suggested months are at or before the current month; wrap to next year.
	return time.Date(anchor.Year()+1, time.Month(months[0]), 1, 0, 0, 0, 0, time.UTC), nil
}

// addMonthsClamped adds months preserving the day-of-month, clamping to the
// last valid day of the target month when the source day does not exist there.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	// First day of the target month; time.Date normalizes month overflow.
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// daysInMonth returns the number of days in the given month. Day zero of the
// following month normalizes to the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
