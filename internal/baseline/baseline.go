// Package baseline snapshots the planned state of a project's tasks under a
// monotonically increasing version and diffs live tasks against it.
package baseline

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// versionLayout is the timestamp part of a baseline version.
const versionLayout = "20060102_150405"

// FormatVersion renders the version string for a baseline created at t with
// sequence number seq.
func FormatVersion(t time.Time, seq int64) string {
	return fmt.Sprintf("BL_%s_%d", t.UTC().Format(versionLayout), seq)
}

// TaskSnapshot is the frozen planned state of one task.
type TaskSnapshot struct {
	TaskID              string          `json:"task_id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	PlannedStart        schedule.Date   `json:"planned_start_date"`
	PlannedEnd          schedule.Date   `json:"planned_end_date"`
	PlannedDurationDays int             `json:"planned_duration_days"`
	BudgetedCost        decimal.Decimal `json:"budgeted_cost"`
	EstimatedHours      float64         `json:"estimated_hours"`
	Predecessors        []string        `json:"predecessor_tasks"`
	Successors          []string        `json:"successor_tasks"`
	LagDays             int             `json:"lag_days"`
}

// SnapshotOf freezes the trackable fields of t.
func SnapshotOf(t schedule.Task) TaskSnapshot {
	return TaskSnapshot{
		TaskID:              t.ID,
		Name:                t.Name,
		Description:         t.Description,
		PlannedStart:        t.PlannedStart,
		PlannedEnd:          t.PlannedEnd,
		PlannedDurationDays: t.Duration(),
		BudgetedCost:        t.BudgetedCost,
		EstimatedHours:      t.EstimatedHours,
		Predecessors:        slices.Clone(t.Predecessors),
		Successors:          slices.Clone(t.Successors),
		LagDays:             t.LagDays,
	}
}

func (s TaskSnapshot) clone() TaskSnapshot {
	s.Predecessors = slices.Clone(s.Predecessors)
	s.Successors = slices.Clone(s.Successors)
	return s
}

// Baseline is an immutable project snapshot. Stores hand out copies.
type Baseline struct {
	ID                  string          `json:"id"`
	Version             string          `json:"baseline_version"`
	Sequence            int64           `json:"sequence"`
	ProjectID           string          `json:"project_id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	CreatedBy           string          `json:"created_by,omitempty"`
	Tasks               []TaskSnapshot  `json:"task_baselines"`
	TotalBudget         decimal.Decimal `json:"total_budget"`
	PlannedDurationDays int             `json:"planned_duration_days"`
}

// Clone returns a deep copy.
func (b Baseline) Clone() Baseline {
	tasks := make([]TaskSnapshot, len(b.Tasks))
	for i, t := range b.Tasks {
		tasks[i] = t.clone()
	}
	b.Tasks = tasks
	return b
}

// Task returns the frozen state of one task.
func (b Baseline) Task(id string) (TaskSnapshot, bool) {
	for _, t := range b.Tasks {
		if t.TaskID == id {
			return t.clone(), true
		}
	}
	return TaskSnapshot{}, false
}

// totals computes the project budget and the planned span in days between
// the earliest start and the latest end.
func totals(tasks []TaskSnapshot) (decimal.Decimal, int) {
	budget := decimal.Zero
	var start, end schedule.Date
	for _, t := range tasks {
		budget = budget.Add(t.BudgetedCost)
		start = schedule.MinDate(start, t.PlannedStart)
		end = schedule.MaxDate(end, t.PlannedEnd)
	}
	if start.IsZero() || end.IsZero() {
		return budget, 0
	}
	return budget, start.DaysUntil(end)
}

// AuditEntry records one restore.
type AuditEntry struct {
	ID        string        `json:"id"`
	TaskID    string        `json:"task_id"`
	ProjectID string        `json:"project_id,omitempty"`
	Version   string        `json:"baseline_version"`
	Action    string        `json:"action"`
	Changes   []FieldChange `json:"changes"`
	Actor     string        `json:"actor,omitempty"`
	At        time.Time     `json:"at"`
}

// ActionRestore marks audit entries written by Restore.
const ActionRestore = "restore"
