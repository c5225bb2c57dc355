/**
 * @description
 * Calendar bucketing for list and month views. Groups tasks into overdue,
 * due-soon, upcoming and completed buckets with a stable, deterministic order
 * (ascending due date, then title) so rendered views do not jitter between
 * requests.
 */

package schedule

import (
	"sort"
	"time"

	"github.com/upkeephq/marketplace-service/internal/domain"
)

// CalendarView groups tasks for presentation.
type CalendarView struct {
	Overdue     []domain.MaintenanceTask `json:"overdue"`
	DueSoon     []domain.MaintenanceTask `json:"due_soon"`
	Upcoming    []domain.MaintenanceTask `json:"upcoming"`
	Unscheduled []domain.MaintenanceTask `json:"unscheduled"`
	Completed   []domain.TaskCompletion  `json:"completed"`
}

// BuildCalendarView buckets active tasks by status and attaches completions
// recorded in the query window.
func BuildCalendarView(tasks []domain.MaintenanceTask, completions []domain.TaskCompletion, today time.Time, dueSoonDays int) CalendarView {
	view := CalendarView{}

	sortTasks(tasks)
	for _, task := range tasks {
		switch TaskStatusFor(task.NextDueDate, today, dueSoonDays) {
		case BucketOverdue:
			view.Overdue = append(view.Overdue, task)
		case BucketDueSoon:
			view.DueSoon = append(view.DueSoon, task)
		case BucketUpcoming:
			view.Upcoming = append(view.Upcoming, task)
		default:
			view.Unscheduled = append(view.Unscheduled, task)
		}
	}

	sort.SliceStable(completions, func(i, j int) bool {
		return completions[i].CompletedAt.Before(completions[j].CompletedAt)
	})
	view.Completed = completions

	return view
}

// sortTasks orders by ascending next due date, ties broken by title. Tasks
// without a due date sort last.
func sortTasks(tasks []domain.MaintenanceTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].NextDueDate, tasks[j].NextDueDate
		switch {
		case a == nil && b == nil:
			return tasks[i].Title < tasks[j].Title
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return tasks[i].Title < tasks[j].Title
		default:
			return a.Before(*b)
		}
	})
}
