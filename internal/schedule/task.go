// Package schedule defines the data model shared by the scheduling engine:
// tasks, dependency edges, projects and snapshots, along with calendar
// dates, closed typed values and the error taxonomy.
package schedule

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusOnHold     Status = "on_hold"
)

// Active reports whether a task in this state still consumes capacity.
func (s Status) Active() bool {
	return s != StatusCompleted && s != StatusCancelled
}

// Task is a unit of scheduled work.
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status,omitempty"`

	PlannedStart        Date `json:"planned_start_date"`
	PlannedEnd          Date `json:"planned_end_date"`
	ActualStart         Date `json:"actual_start_date"`
	ActualEnd           Date `json:"actual_end_date"`
	PlannedDurationDays int  `json:"planned_duration_days,omitempty"`
	ActualDurationDays  int  `json:"actual_duration_days,omitempty"`

	Progress       int             `json:"progress_percentage"`
	EstimatedHours float64         `json:"estimated_hours,omitempty"`
	ActualHours    float64         `json:"actual_hours,omitempty"`
	BudgetedCost   decimal.Decimal `json:"budgeted_cost"`
	ActualCost     decimal.Decimal `json:"actual_cost"`

	AssignedTo   string   `json:"assigned_to,omitempty"`
	Predecessors []string `json:"predecessor_tasks,omitempty"`
	Successors   []string `json:"successor_tasks,omitempty"`
	LagDays      int      `json:"lag_days,omitempty"`

	Demand       Demand   `json:"resource_demand,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	CustomFields Fields   `json:"custom_fields,omitempty"`

	// Computed by the CPM engine; never authored.
	IsCriticalPath bool `json:"is_critical_path"`
	SlackDays      int  `json:"slack_days"`
}

// Duration returns the planned duration in days: the planned date span when
// both dates are set, otherwise PlannedDurationDays.
func (t Task) Duration() int {
	if !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero() {
		return t.PlannedStart.DaysUntil(t.PlannedEnd)
	}
	return t.PlannedDurationDays
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	t.Predecessors = slices.Clone(t.Predecessors)
	t.Successors = slices.Clone(t.Successors)
	t.Tags = slices.Clone(t.Tags)
	t.Demand = t.Demand.Clone()
	t.CustomFields = t.CustomFields.Clone()
	return t
}

// Normalize clamps progress into [0,100] and fills the planned duration from
// the planned dates when both are present.
func (t *Task) Normalize() {
	t.Progress = min(max(t.Progress, 0), 100)
	if !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero() {
		t.PlannedDurationDays = t.PlannedStart.DaysUntil(t.PlannedEnd)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// Validate checks the per-task invariants.
func (t Task) Validate() error {
	if t.ID == "" {
		return &ValidationError{Category: ValCatMissingField, Field: "id", Reason: "task id is required"}
	}
	if !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero() && t.PlannedEnd.Before(t.PlannedStart) {
		return &ValidationError{
			Category: ValCatDateOrder, TaskID: t.ID, Field: "planned_end_date",
			Reason: fmt.Sprintf("ends %s before it starts %s", t.PlannedEnd, t.PlannedStart),
		}
	}
	if !t.ActualStart.IsZero() && !t.ActualEnd.IsZero() && t.ActualEnd.Before(t.ActualStart) {
		return &ValidationError{
			Category: ValCatDateOrder, TaskID: t.ID, Field: "actual_end_date",
			Reason: fmt.Sprintf("ends %s before it starts %s", t.ActualEnd, t.ActualStart),
		}
	}
	if t.PlannedDurationDays < 0 {
		return &ValidationError{Category: ValCatBoundsViolation, TaskID: t.ID, Field: "planned_duration_days", Reason: "must not be negative"}
	}
	if t.EstimatedHours < 0 || t.ActualHours < 0 {
		return &ValidationError{Category: ValCatBoundsViolation, TaskID: t.ID, Field: "hours", Reason: "must not be negative"}
	}
	if t.BudgetedCost.IsNegative() {
		return &ValidationError{Category: ValCatBoundsViolation, TaskID: t.ID, Field: "budgeted_cost", Reason: "must not be negative"}
	}
	if t.ActualCost.IsNegative() {
		return &ValidationError{Category: ValCatBoundsViolation, TaskID: t.ID, Field: "actual_cost", Reason: "must not be negative"}
	}
	for res, units := range t.Demand {
		if units < 0 {
			return &ValidationError{Category: ValCatBoundsViolation, TaskID: t.ID, Field: "resource_demand." + res, Reason: "must not be negative"}
		}
	}
	return nil
}

// ValidateTasks checks a task list as a whole: it must be non-empty, every
// task must be valid and IDs must be unique.
func ValidateTasks(tasks []Task) error {
	if len(tasks) == 0 {
		return &ValidationError{Category: ValCatEmpty, Reason: "task list is empty"}
	}
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return &ValidationError{Category: ValCatDuplicateID, TaskID: t.ID, Reason: "duplicate task id"}
		}
		seen[t.ID] = true
	}
	return nil
}

// CloneTasks deep-copies a task list.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// Index maps task IDs to their position in tasks.
func Index(tasks []Task) map[string]int {
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		idx[t.ID] = i
	}
	return idx
}
