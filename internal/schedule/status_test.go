package schedule

import (
	"testing"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
)

func TestTaskStatusFor(t *testing.T) {
	today := date(2026, time.April, 10)

	tests := []struct {
		name    string
		nextDue *time.Time
		days    int
		want    Bucket
	}{
		{
			name:    "nil due date is unscheduled",
			nextDue: nil,
			days:    7,
			want:    BucketUnscheduled,
		},
		{
			name:    "past due date is overdue",
			nextDue: ptrTime(date(2026, time.April, 9)),
			days:    7,
			want:    BucketOverdue,
		},
		{
			name:    "due today is due soon, not overdue",
			nextDue: ptrTime(date(2026, time.April, 10)),
			days:    7,
			want:    BucketDueSoon,
		},
		{
			name:    "due on the window boundary is due soon",
			nextDue: ptrTime(date(2026, time.April, 17)),
			days:    7,
			want:    BucketDueSoon,
		},
		{
			name:    "due past the window is upcoming",
			nextDue: ptrTime(date(2026, time.April, 18)),
			days:    7,
			want:    BucketUpcoming,
		},
		{
			name:    "zero threshold falls back to the default window",
			nextDue: ptrTime(date(2026, time.April, 17)),
			days:    0,
			want:    BucketDueSoon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaskStatusFor(tt.nextDue, today, tt.days)
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTaskStatusForIsIdempotent(t *testing.T) {
	today := date(2026, time.April, 10)
	due := ptrTime(date(2026, time.April, 12))

	first := TaskStatusFor(due, today, 7)
	for i := 0; i < 5; i++ {
		if got := TaskStatusFor(due, today, 7); got != first {
			t.Fatalf("classification changed between calls: %s then %s", first, got)
		}
	}
}

func TestBuildCalendarViewOrdering(t *testing.T) {
	today := date(2026, time.April, 10)

	tasks := []domain.MaintenanceTask{
		{Title: "Gutter cleaning", NextDueDate: ptrTime(date(2026, time.April, 20))},
		{Title: "HVAC filter", NextDueDate: ptrTime(date(2026, time.April, 5))},
		{Title: "Smoke detectors", NextDueDate: ptrTime(date(2026, time.April, 11))},
		{Title: "Chimney sweep"},
		{Title: "Dryer vent", NextDueDate: ptrTime(date(2026, time.April, 11))},
	}

	view := BuildCalendarView(tasks, nil, today, 7)

	if len(view.Overdue) != 1 || view.Overdue[0].Title != "HVAC filter" {
		t.Fatalf("expected HVAC filter overdue, got %+v", view.Overdue)
	}
	if len(view.DueSoon) != 2 {
		t.Fatalf("expected 2 due-soon tasks, got %d", len(view.DueSoon))
	}
	// Same due date sorts by title.
	if view.DueSoon[0].Title != "Dryer vent" || view.DueSoon[1].Title != "Smoke detectors" {
		t.Fatalf("unexpected due-soon order: %s, %s", view.DueSoon[0].Title, view.DueSoon[1].Title)
	}
	if len(view.Upcoming) != 1 || view.Upcoming[0].Title != "Gutter cleaning" {
		t.Fatalf("expected Gutter cleaning upcoming, got %+v", view.Upcoming)
	}
	if len(view.Unscheduled) != 1 || view.Unscheduled[0].Title != "Chimney sweep" {
		t.Fatalf("expected Chimney sweep unscheduled, got %+v", view.Unscheduled)
	}
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
