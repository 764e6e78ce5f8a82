// Package snapshot reads and writes project snapshots as TOML files and
// watches a directory of them for changes.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// Ext is the file extension of snapshot files.
const Ext = ".toml"

// ErrNoProject indicates a file without a [project] id.
var ErrNoProject = errors.New("snapshot has no project id")

// File is the on-disk layout of one project.
type File struct {
	Project      ProjectSpec      `toml:"project"`
	Capacity     map[string]int   `toml:"capacity,omitempty"`
	Tasks        []TaskSpec       `toml:"tasks"`
	Dependencies []DependencySpec `toml:"dependencies,omitempty"`
	Constraints  []ConstraintSpec `toml:"constraints,omitempty"`
}

// ProjectSpec is the [project] table.
type ProjectSpec struct {
	ID        string `toml:"id"`
	Name      string `toml:"name,omitempty"`
	StartDate string `toml:"start_date,omitempty"`
	EndDate   string `toml:"end_date,omitempty"`
	Budget    any    `toml:"budget,omitempty"`
}

// TaskSpec is one [[tasks]] entry.
type TaskSpec struct {
	ID                 string         `toml:"id"`
	Name               string         `toml:"name,omitempty"`
	Description        string         `toml:"description,omitempty"`
	Status             string         `toml:"status,omitempty"`
	PlannedStartDate   string         `toml:"planned_start_date,omitempty"`
	PlannedEndDate     string         `toml:"planned_end_date,omitempty"`
	ActualStartDate    string         `toml:"actual_start_date,omitempty"`
	ActualEndDate      string         `toml:"actual_end_date,omitempty"`
	DurationDays       int            `toml:"duration_days,omitempty"`
	ActualDurationDays int            `toml:"actual_duration_days,omitempty"`
	Progress           int            `toml:"progress,omitempty"`
	EstimatedHours     float64        `toml:"estimated_hours,omitempty"`
	ActualHours        float64        `toml:"actual_hours,omitempty"`
	BudgetedCost       any            `toml:"budgeted_cost,omitempty"`
	ActualCost         any            `toml:"actual_cost,omitempty"`
	AssignedTo         string         `toml:"assigned_to,omitempty"`
	Predecessors       []string       `toml:"predecessors,omitempty"`
	Successors         []string       `toml:"successors,omitempty"`
	LagDays            int            `toml:"lag_days,omitempty"`
	Tags               []string       `toml:"tags,omitempty"`
	Demand             map[string]int `toml:"demand,omitempty"`
	CustomFields       map[string]any `toml:"custom_fields,omitempty"`
}

// DependencySpec is one [[dependencies]] entry. Type accepts the long names
// and the FS/SS/FF/SF shorthands.
type DependencySpec struct {
	Predecessor string `toml:"predecessor"`
	Successor   string `toml:"successor"`
	Type        string `toml:"type,omitempty"`
	LagDays     int    `toml:"lag_days,omitempty"`
}

// ConstraintSpec is one [[constraints]] entry.
type ConstraintSpec struct {
	Kind     string `toml:"kind"`
	TaskID   string `toml:"task_id,omitempty"`
	Date     string `toml:"date,omitempty"`
	Days     int    `toml:"days,omitempty"`
	Resource string `toml:"resource,omitempty"`
	MaxUnits int    `toml:"max_units,omitempty"`
}

// Load reads and decodes a snapshot file.
func Load(path string) (schedule.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schedule.Snapshot{}, fmt.Errorf("reading %s: %w", path, err)
	}
	snap, err := Parse(data)
	if err != nil {
		return snap, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return snap, nil
}

// Parse decodes TOML into a snapshot. Tasks inherit the project id.
func Parse(data []byte) (schedule.Snapshot, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return schedule.Snapshot{}, err
	}
	return f.Snapshot()
}

// Snapshot converts the decoded file into the engine model.
func (f File) Snapshot() (schedule.Snapshot, error) {
	var snap schedule.Snapshot
	if f.Project.ID == "" {
		return snap, ErrNoProject
	}
	p := &snap.Project
	p.ID, p.Name = f.Project.ID, f.Project.Name
	var err error
	if p.Start, err = date("", "project.start_date", f.Project.StartDate); err != nil {
		return snap, err
	}
	if p.End, err = date("", "project.end_date", f.Project.EndDate); err != nil {
		return snap, err
	}
	if p.Budget, err = money("", "project.budget", f.Project.Budget); err != nil {
		return snap, err
	}
	if len(f.Capacity) > 0 {
		p.Capacity = schedule.Capacity(f.Capacity)
	}

	for _, ts := range f.Tasks {
		t, err := ts.task(p.ID)
		if err != nil {
			return snap, err
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	for _, ds := range f.Dependencies {
		kind, err := schedule.ParseDependencyType(ds.Type)
		if err != nil {
			return snap, err
		}
		snap.Edges = append(snap.Edges, schedule.Edge{Predecessor: ds.Predecessor, Successor: ds.Successor, LagDays: ds.LagDays, Type: kind})
	}
	for _, cs := range f.Constraints {
		d, err := date(cs.TaskID, "constraints.date", cs.Date)
		if err != nil {
			return snap, err
		}
		c := schedule.Constraint{Kind: schedule.ConstraintKind(cs.Kind), TaskID: cs.TaskID, Date: d, Days: cs.Days, Resource: cs.Resource, MaxUnits: cs.MaxUnits}
		if err := c.Validate(); err != nil {
			return snap, err
		}
		snap.Constraints = append(snap.Constraints, c)
	}
	return snap, nil
}

func (ts TaskSpec) task(projectID string) (schedule.Task, error) {
	t := schedule.Task{
		ID:                  ts.ID,
		ProjectID:           projectID,
		Name:                ts.Name,
		Description:         ts.Description,
		Status:              schedule.Status(ts.Status),
		PlannedDurationDays: ts.DurationDays,
		ActualDurationDays:  ts.ActualDurationDays,
		Progress:            ts.Progress,
		EstimatedHours:      ts.EstimatedHours,
		ActualHours:         ts.ActualHours,
		AssignedTo:          ts.AssignedTo,
		Predecessors:        slices.Clone(ts.Predecessors),
		Successors:          slices.Clone(ts.Successors),
		LagDays:             ts.LagDays,
		Tags:                slices.Clone(ts.Tags),
	}
	var err error
	dates := []struct {
		field string
		raw   string
		dst   *schedule.Date
	}{
		{"planned_start_date", ts.PlannedStartDate, &t.PlannedStart},
		{"planned_end_date", ts.PlannedEndDate, &t.PlannedEnd},
		{"actual_start_date", ts.ActualStartDate, &t.ActualStart},
		{"actual_end_date", ts.ActualEndDate, &t.ActualEnd},
	}
	for _, d := range dates {
		if *d.dst, err = date(ts.ID, d.field, d.raw); err != nil {
			return t, err
		}
	}
	if t.BudgetedCost, err = money(ts.ID, "budgeted_cost", ts.BudgetedCost); err != nil {
		return t, err
	}
	if t.ActualCost, err = money(ts.ID, "actual_cost", ts.ActualCost); err != nil {
		return t, err
	}
	if len(ts.Demand) > 0 {
		t.Demand = schedule.Demand(ts.Demand)
	}
	if len(ts.CustomFields) > 0 {
		t.CustomFields = make(schedule.Fields, len(ts.CustomFields))
		for k, raw := range ts.CustomFields {
			v, err := schedule.ValueOf(raw)
			if err != nil {
				return t, &schedule.ValidationError{Category: schedule.ValCatBoundsViolation, TaskID: ts.ID, Field: "custom_fields." + k, Reason: err.Error()}
			}
			t.CustomFields[k] = v
		}
	}
	return t, nil
}

func date(taskID, field, raw string) (schedule.Date, error) {
	if raw == "" {
		return schedule.Date{}, nil
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		return d, &schedule.ValidationError{Category: schedule.ValCatBoundsViolation, TaskID: taskID, Field: field, Reason: err.Error()}
	}
	return d, nil
}

// money accepts a quoted decimal or a TOML integer or float.
func money(taskID, field string, raw any) (decimal.Decimal, error) {
	bad := func(reason string) error {
		return &schedule.ValidationError{Category: schedule.ValCatBoundsViolation, TaskID: taskID, Field: field, Reason: reason}
	}
	switch x := raw.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return d, bad(err.Error())
		}
		return d, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	}
	return decimal.Zero, bad(fmt.Sprintf("unsupported amount %v (%T)", raw, raw))
}

// FromSnapshot converts a snapshot to its on-disk layout. Amounts are
// written as quoted decimals so they survive a round trip exactly.
func FromSnapshot(snap schedule.Snapshot) File {
	p := snap.Project
	f := File{
		Project: ProjectSpec{ID: p.ID, Name: p.Name, StartDate: p.Start.String(), EndDate: p.End.String(), Budget: amount(p.Budget)},
	}
	if len(p.Capacity) > 0 {
		f.Capacity = map[string]int(p.Capacity)
	}
	for _, t := range snap.Tasks {
		ts := TaskSpec{
			ID: t.ID, Name: t.Name, Description: t.Description, Status: string(t.Status),
			PlannedStartDate: t.PlannedStart.String(), PlannedEndDate: t.PlannedEnd.String(),
			ActualStartDate: t.ActualStart.String(), ActualEndDate: t.ActualEnd.String(),
			DurationDays: t.PlannedDurationDays, ActualDurationDays: t.ActualDurationDays,
			Progress: t.Progress, EstimatedHours: t.EstimatedHours, ActualHours: t.ActualHours,
			BudgetedCost: amount(t.BudgetedCost), ActualCost: amount(t.ActualCost),
			AssignedTo: t.AssignedTo, Predecessors: t.Predecessors, Successors: t.Successors,
			LagDays: t.LagDays, Tags: t.Tags,
		}
		if len(t.Demand) > 0 {
			ts.Demand = map[string]int(t.Demand)
		}
		if len(t.CustomFields) > 0 {
			ts.CustomFields = make(map[string]any, len(t.CustomFields))
			for k, v := range t.CustomFields {
				ts.CustomFields[k] = rawValue(v)
			}
		}
		f.Tasks = append(f.Tasks, ts)
	}
	for _, e := range snap.Edges {
		f.Dependencies = append(f.Dependencies, DependencySpec{Predecessor: e.Predecessor, Successor: e.Successor, Type: string(e.Kind()), LagDays: e.LagDays})
	}
	for _, c := range snap.Constraints {
		f.Constraints = append(f.Constraints, ConstraintSpec{
			Kind: string(c.Kind), TaskID: c.TaskID, Date: c.Date.String(), Days: c.Days, Resource: c.Resource, MaxUnits: c.MaxUnits,
		})
	}
	return f
}

// amount leaves zero amounts out of the file.
func amount(d decimal.Decimal) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

// rawValue renders a typed value in the form ValueOf reads back.
func rawValue(v schedule.Value) any {
	switch v.Kind() {
	case schedule.KindString:
		return v.Str()
	case schedule.KindNumber:
		return v.Number()
	case schedule.KindBool:
		return v.Bool()
	case schedule.KindDate:
		return v.Date().String()
	case schedule.KindDecimal:
		return v.Decimal().String()
	case schedule.KindList:
		return v.List()
	}
	return ""
}

// Marshal encodes a snapshot as TOML.
func Marshal(snap schedule.Snapshot) ([]byte, error) {
	return toml.Marshal(FromSnapshot(snap))
}

// Write encodes snap to path through a temporary file and a rename, so a
// watcher never sees a half-written file.
func Write(path string, snap schedule.Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", snap.Project.ID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// Paths lists the snapshot files in dir in file name order.
func Paths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// LoadDir reads every snapshot file in dir, in file name order.
func LoadDir(dir string) ([]schedule.Snapshot, error) {
	paths, err := Paths(dir)
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Snapshot, 0, len(paths))
	for _, p := range paths {
		snap, err := Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
