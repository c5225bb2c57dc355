/**
 * @description
 * Task status classification. A pure function of (next_due_date, today,
 * due-soon threshold); no hidden state, deterministic, idempotent.
 */

package schedule

import "time"

// Bucket classifies a task relative to today.
type Bucket string

const (
	BucketOverdue     Bucket = "overdue"
	BucketDueSoon     Bucket = "due_soon"
	BucketUpcoming    Bucket = "upcoming"
	BucketUnscheduled Bucket = "unscheduled"
)

// DefaultDueSoonDays is the due-soon window used when configuration is absent.
const DefaultDueSoonDays = 7

// TaskStatusFor classifies a task's next due date against today. A nil due
// date is unscheduled. A due date equal to today is due_soon, not overdue.
func TaskStatusFor(nextDue *time.Time, today time.Time, dueSoonDays int) Bucket {
	if nextDue == nil {
		return BucketUnscheduled
	}
	if dueSoonDays <= 0 {
		dueSoonDays = DefaultDueSoonDays
	}

	day := truncateToDay(today)
	due := truncateToDay(*nextDue)

	switch {
	case due.Before(day):
		return BucketOverdue
	case !due.After(day.AddDate(0, 0, dueSoonDays)):
		return BucketDueSoon
	default:
		return BucketUpcoming
	}
}
