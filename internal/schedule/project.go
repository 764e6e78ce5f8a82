package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Project carries the project-scoped inputs of scheduling and EVM.
type Project struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Start    Date            `json:"start_date"`
	End      Date            `json:"end_date"`
	Budget   decimal.Decimal `json:"budget"`
	Capacity Capacity        `json:"capacity,omitempty"`
}

// Capacity maps a resource type to its maximum concurrent units.
type Capacity map[string]int

// ConstraintKind enumerates declarative optimizer constraints.
type ConstraintKind string

const (
	ConstraintStartAfter    ConstraintKind = "start_after"
	ConstraintFinishBefore  ConstraintKind = "finish_before"
	ConstraintMaxDuration   ConstraintKind = "max_duration"
	ConstraintResourceLimit ConstraintKind = "resource_limit"
)

// Constraint is one declarative restriction on the optimized schedule. Which
// fields apply depends on Kind.
type Constraint struct {
	Kind     ConstraintKind `json:"kind"`
	TaskID   string         `json:"task_id,omitempty"`
	Date     Date           `json:"date"`
	Days     int            `json:"days,omitempty"`
	Resource string         `json:"resource,omitempty"`
	MaxUnits int            `json:"max_units,omitempty"`
}

// StartAfter requires the task to start on or after d.
func StartAfter(taskID string, d Date) Constraint {
	return Constraint{Kind: ConstraintStartAfter, TaskID: taskID, Date: d}
}

// FinishBefore requires the task to finish on or before d.
func FinishBefore(taskID string, d Date) Constraint {
	return Constraint{Kind: ConstraintFinishBefore, TaskID: taskID, Date: d}
}

// MaxDuration caps the task's duration in days.
func MaxDuration(taskID string, days int) Constraint {
	return Constraint{Kind: ConstraintMaxDuration, TaskID: taskID, Days: days}
}

// ResourceLimit caps concurrent usage of a resource type.
func ResourceLimit(resource string, maxUnits int) Constraint {
	return Constraint{Kind: ConstraintResourceLimit, Resource: resource, MaxUnits: maxUnits}
}

// Validate checks that the fields required by Kind are present.
func (c Constraint) Validate() error {
	bad := func(field, reason string) error {
		return &ValidationError{Category: ValCatMissingField, TaskID: c.TaskID, Field: field, Reason: reason}
	}
	switch c.Kind {
	case ConstraintStartAfter, ConstraintFinishBefore:
		if c.TaskID == "" {
			return bad("task_id", string(c.Kind)+" needs a task")
		}
		if c.Date.IsZero() {
			return bad("date", string(c.Kind)+" needs a date")
		}
	case ConstraintMaxDuration:
		if c.TaskID == "" {
			return bad("task_id", "max_duration needs a task")
		}
		if c.Days < 0 {
			return bad("days", "max_duration must not be negative")
		}
	case ConstraintResourceLimit:
		if c.Resource == "" {
			return bad("resource", "resource_limit needs a resource type")
		}
		if c.MaxUnits < 0 {
			return bad("max_units", "resource_limit must not be negative")
		}
	default:
		return &ValidationError{Category: ValCatBoundsViolation, Field: "kind", Reason: fmt.Sprintf("unknown constraint kind %q", c.Kind)}
	}
	return nil
}

// Snapshot is an immutable view of one project handed to the engine.
type Snapshot struct {
	Project     Project      `json:"project"`
	Tasks       []Task       `json:"tasks"`
	Edges       []Edge       `json:"dependencies,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// AllEdges returns explicit edges merged with those implied by task lists.
func (s Snapshot) AllEdges() []Edge {
	return MergeEdges(s.Tasks, s.Edges)
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Tasks = CloneTasks(s.Tasks)
	out.Edges = append([]Edge(nil), s.Edges...)
	out.Constraints = append([]Constraint(nil), s.Constraints...)
	if s.Project.Capacity != nil {
		out.Project.Capacity = make(Capacity, len(s.Project.Capacity))
		for k, v := range s.Project.Capacity {
			out.Project.Capacity[k] = v
		}
	}
	return out
}
