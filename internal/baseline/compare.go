package baseline

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// ChangeType classifies a changed field.
type ChangeType string

// Change types reported per field.
const (
	ScheduleChange   ChangeType = "schedule_change"
	DurationChange   ChangeType = "duration_change"
	CostChange       ChangeType = "cost_change"
	ContentChange    ChangeType = "content_change"
	DependencyChange ChangeType = "dependency_change"
)

// Severity is the overall rating of a comparison.
type Severity string

// Severity levels, lowest first.
const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityOf maps a 0-5 score onto a Severity.
func severityOf(score int) Severity {
	switch {
	case score >= 4:
		return SeverityCritical
	case score == 3:
		return SeverityHigh
	case score == 2:
		return SeverityMedium
	case score == 1:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// field describes one trackable task field.
type field struct {
	name  string
	label string
	kind  ChangeType
	get   func(TaskSnapshot) schedule.Value
	set   func(*schedule.Task, TaskSnapshot)
	score func(old, cur schedule.Value) int
}

func fixed(n int) func(schedule.Value, schedule.Value) int {
	return func(schedule.Value, schedule.Value) int { return n }
}

// sortedList compares dependency lists as sets.
func sortedList(ids []string) schedule.Value {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return schedule.ListValue(slices.Compact(ids))
}

// fields lists the trackable fields in comparison order.
var fields = []field{
	{
		name: "name", label: "Task name", kind: ContentChange, score: fixed(2),
		get: func(s TaskSnapshot) schedule.Value { return schedule.StringValue(s.Name) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.Name = s.Name },
	},
	{
		name: "description", label: "Description", kind: ContentChange, score: fixed(2),
		get: func(s TaskSnapshot) schedule.Value { return schedule.StringValue(s.Description) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.Description = s.Description },
	},
	{
		name: "planned_start_date", label: "Planned start date", kind: ScheduleChange, score: fixed(4),
		get: func(s TaskSnapshot) schedule.Value { return schedule.DateValue(s.PlannedStart) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.PlannedStart = s.PlannedStart },
	},
	{
		name: "planned_end_date", label: "Planned end date", kind: ScheduleChange, score: fixed(4),
		get: func(s TaskSnapshot) schedule.Value { return schedule.DateValue(s.PlannedEnd) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.PlannedEnd = s.PlannedEnd },
	},
	{
		name: "planned_duration_days", label: "Planned duration", kind: DurationChange, score: fixed(4),
		get: func(s TaskSnapshot) schedule.Value { return schedule.IntValue(s.PlannedDurationDays) },
		set: func(t *schedule.Task, s TaskSnapshot) {
			t.PlannedDurationDays = s.PlannedDurationDays
			if !t.PlannedStart.IsZero() {
				t.PlannedEnd = t.PlannedStart.AddDays(s.PlannedDurationDays)
			}
		},
	},
	{
		name: "budgeted_cost", label: "Budgeted cost", kind: CostChange, score: costScore,
		get: func(s TaskSnapshot) schedule.Value { return schedule.DecimalValue(s.BudgetedCost) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.BudgetedCost = s.BudgetedCost },
	},
	{
		name: "estimated_hours", label: "Estimated hours", kind: CostChange, score: costScore,
		get: func(s TaskSnapshot) schedule.Value { return schedule.NumberValue(s.EstimatedHours) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.EstimatedHours = s.EstimatedHours },
	},
	{
		name: "predecessor_tasks", label: "Predecessor tasks", kind: DependencyChange, score: fixed(3),
		get: func(s TaskSnapshot) schedule.Value { return sortedList(s.Predecessors) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.Predecessors = slices.Clone(s.Predecessors) },
	},
	{
		name: "successor_tasks", label: "Successor tasks", kind: DependencyChange, score: fixed(3),
		get: func(s TaskSnapshot) schedule.Value { return sortedList(s.Successors) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.Successors = slices.Clone(s.Successors) },
	},
	{
		name: "lag_days", label: "Lag", kind: DependencyChange, score: fixed(1),
		get: func(s TaskSnapshot) schedule.Value { return schedule.IntValue(s.LagDays) },
		set: func(t *schedule.Task, s TaskSnapshot) { t.LagDays = s.LagDays },
	},
}

func lookupField(name string) (field, bool) {
	for _, f := range fields {
		if f.name == name {
			return f, true
		}
	}
	return field{}, false
}

// FieldNames lists the trackable fields in comparison order.
func FieldNames() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

var hundred = decimal.NewFromInt(100)

// costScore rates a cost or effort change by its relative size. Changes
// from or to zero score 3.
func costScore(old, cur schedule.Value) int {
	o, c := asDecimal(old), asDecimal(cur)
	if o.IsZero() || c.IsZero() {
		return 3
	}
	pct := c.Sub(o).Div(o).Mul(hundred).Abs()
	switch {
	case pct.GreaterThan(decimal.NewFromInt(50)):
		return 5
	case pct.GreaterThan(decimal.NewFromInt(25)):
		return 4
	default:
		return 3
	}
}

func asDecimal(v schedule.Value) decimal.Decimal {
	if v.Kind() == schedule.KindDecimal {
		return v.Decimal()
	}
	return decimal.NewFromFloat(v.Number())
}

// FieldChange is one field that differs from the baseline.
type FieldChange struct {
	Field      string         `json:"field"`
	Label      string         `json:"field_name"`
	Old        schedule.Value `json:"old_value"`
	New        schedule.Value `json:"new_value"`
	ChangeType ChangeType     `json:"change_type"`
	Score      int            `json:"severity_score"`
}

// Comparison is the diff of one task against a baseline version.
type Comparison struct {
	TaskID     string                 `json:"task_id"`
	Version    string                 `json:"baseline_version"`
	Changes    map[string]FieldChange `json:"changes"`
	Score      int                    `json:"severity_score"`
	Severity   Severity               `json:"severity"`
	Summary    string                 `json:"change_summary"`
	ComparedAt time.Time              `json:"compared_at"`
}

// diff compares a live task with its frozen state.
func diff(base TaskSnapshot, task schedule.Task, version string, now time.Time) Comparison {
	cur := SnapshotOf(task)
	cmp := Comparison{
		TaskID:     task.ID,
		Version:    version,
		Changes:    make(map[string]FieldChange),
		ComparedAt: now,
	}
	for _, f := range fields {
		old, nv := f.get(base), f.get(cur)
		if old.Equal(nv) {
			continue
		}
		score := f.score(old, nv)
		cmp.Changes[f.name] = FieldChange{Field: f.name, Label: f.label, Old: old, New: nv, ChangeType: f.kind, Score: score}
		cmp.Score = max(cmp.Score, score)
	}
	cmp.Severity = severityOf(cmp.Score)
	cmp.Summary = changeSummary(cmp.Changes, cmp.Severity)
	return cmp
}

var severityWords = map[Severity]string{
	SeverityCritical: "critical",
	SeverityHigh:     "significant",
	SeverityMedium:   "moderate",
	SeverityLow:      "minor",
}

var changeLabels = []struct {
	kind  ChangeType
	label string
}{
	{ScheduleChange, "schedule changes"},
	{DurationChange, "duration changes"},
	{CostChange, "cost/budget changes"},
	{DependencyChange, "dependency changes"},
	{ContentChange, "content changes"},
}

func changeSummary(changes map[string]FieldChange, sev Severity) string {
	if len(changes) == 0 {
		return "No changes detected since baseline"
	}
	present := make(map[ChangeType]bool)
	for _, c := range changes {
		present[c.ChangeType] = true
	}
	var labels []string
	for _, l := range changeLabels {
		if present[l.kind] {
			labels = append(labels, l.label)
		}
	}
	return fmt.Sprintf("Detected %d %s change(s) including %s", len(changes), severityWords[sev], strings.Join(labels, ", "))
}

// ProjectComparison aggregates task comparisons for a whole project.
type ProjectComparison struct {
	ProjectID            string          `json:"project_id"`
	Version              string          `json:"baseline_version"`
	Tasks                []Comparison    `json:"changed_tasks"`
	Unchanged            int             `json:"unchanged_tasks"`
	Added                []string        `json:"added_tasks"`
	Removed              []string        `json:"removed_tasks"`
	BaselineBudget       decimal.Decimal `json:"baseline_budget"`
	CurrentBudget        decimal.Decimal `json:"current_budget"`
	BudgetVariance       decimal.Decimal `json:"budget_variance"`
	BaselineDurationDays int             `json:"baseline_duration_days"`
	CurrentDurationDays  int             `json:"current_duration_days"`
	DurationVarianceDays int             `json:"duration_variance_days"`
	Score                int             `json:"severity_score"`
	Severity             Severity        `json:"severity"`
	ComparedAt           time.Time       `json:"compared_at"`
}

func diffProject(b Baseline, tasks []schedule.Task, now time.Time) ProjectComparison {
	pc := ProjectComparison{
		ProjectID:      b.ProjectID,
		Version:        b.Version,
		BaselineBudget: b.TotalBudget,
		ComparedAt:     now,
	}
	live := make(map[string]bool, len(tasks))
	current := make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		live[t.ID] = true
		current = append(current, SnapshotOf(t))
		base, ok := b.Task(t.ID)
		if !ok {
			pc.Added = append(pc.Added, t.ID)
			continue
		}
		c := diff(base, t, b.Version, now)
		if len(c.Changes) == 0 {
			pc.Unchanged++
			continue
		}
		pc.Tasks = append(pc.Tasks, c)
		pc.Score = max(pc.Score, c.Score)
	}
	for _, s := range b.Tasks {
		if !live[s.TaskID] {
			pc.Removed = append(pc.Removed, s.TaskID)
		}
	}
	slices.Sort(pc.Added)
	slices.Sort(pc.Removed)
	if len(pc.Added) > 0 || len(pc.Removed) > 0 {
		pc.Score = max(pc.Score, 3)
	}

	pc.CurrentBudget, pc.CurrentDurationDays = totals(current)
	pc.BaselineDurationDays = b.PlannedDurationDays
	pc.BudgetVariance = pc.CurrentBudget.Sub(pc.BaselineBudget)
	pc.DurationVarianceDays = pc.CurrentDurationDays - pc.BaselineDurationDays
	pc.Severity = severityOf(pc.Score)
	return pc
}
