package engine

import (
	"context"
	"fmt"

	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/optimize"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/telemetry"
)

// ScheduleResult is a project schedule from either tier. Approximate is set
// when the optimizer was needed but could not deliver, and Reason says why.
type ScheduleResult struct {
	ProjectID    string           `json:"project_id"`
	Method       string           `json:"method"`
	Approximate  bool             `json:"approximate"`
	Reason       error            `json:"-"`
	ReasonText   string           `json:"reason,omitempty"`
	CriticalPath *cpm.Result      `json:"critical_path"`
	Optimization *optimize.Result `json:"optimization,omitempty"`
	Tasks        []schedule.Task  `json:"tasks"`

	today      schedule.Date
	unanchored map[string]schedule.Date
}

// PersistTasks returns the scheduled tasks as they should be saved. Source
// tasks that had no planned start and still sit on the reference day keep
// their start unset, since that date only fed the computation.
func (r *ScheduleResult) PersistTasks() []schedule.Task {
	out := schedule.CloneTasks(r.Tasks)
	for i := range out {
		end, ok := r.unanchored[out[i].ID]
		if !ok || !out[i].PlannedStart.Equal(r.today) {
			continue
		}
		out[i].PlannedStart = schedule.Date{}
		out[i].PlannedEnd = end
	}
	return out
}

// unanchoredSources maps each source task without a planned start to its
// original planned end.
func unanchoredSources(tasks []schedule.Task, edges []schedule.Edge) map[string]schedule.Date {
	hasPred := make(map[string]bool, len(edges))
	for _, e := range edges {
		hasPred[e.Successor] = true
	}
	out := make(map[string]schedule.Date)
	for _, t := range tasks {
		if t.PlannedStart.IsZero() && !hasPred[t.ID] {
			out[t.ID] = t.PlannedEnd
		}
	}
	return out
}

// needsSolver reports whether a snapshot carries resource capacities or
// constraints that only the optimizer honours.
func needsSolver(snap schedule.Snapshot) bool {
	return len(snap.Project.Capacity) > 0 || len(snap.Constraints) > 0
}

// Schedule computes a project schedule. Snapshots with capacities or
// constraints go to the optimizer first; the deterministic forward and
// backward passes serve everything else and every optimizer failure.
// Graph and validation errors are returned from either tier.
func (e *Engine) Schedule(ctx context.Context, snap schedule.Snapshot) (*ScheduleResult, error) {
	start := e.clock.Now()
	res, err := e.schedule(ctx, snap)
	data := map[string]any{"tasks": len(snap.Tasks)}
	if res != nil {
		res.today = e.cpmOptions().Today
		res.unanchored = unanchoredSources(snap.Tasks, snap.AllEdges())
		data["method"] = res.Method
		data["approximate"] = res.Approximate
	}
	e.record(telemetry.KindSchedule, snap.Project.ID, start, data, err)
	return res, err
}

func (e *Engine) schedule(ctx context.Context, snap schedule.Snapshot) (*ScheduleResult, error) {
	edges := snap.AllEdges()
	var reason error

	if needsSolver(snap) {
		opt, err := e.optimizeWith(ctx, snap.Tasks, edges, snap.Project.Capacity, snap.Constraints, optimize.GoalMinimizeDuration)
		if err != nil {
			return nil, fmt.Errorf("engine: schedule %s: %w", snap.Project.ID, err)
		}
		if opt.SolutionFound {
			cp, err := cpm.Calculate(opt.OptimizedTasks, edges, e.cpmOptions())
			if err != nil {
				return nil, fmt.Errorf("engine: schedule %s: critical path of optimized tasks: %w", snap.Project.ID, err)
			}
			return &ScheduleResult{
				ProjectID:    snap.Project.ID,
				Method:       opt.Method,
				CriticalPath: cp,
				Optimization: opt,
				Tasks:        cp.ApplyTo(opt.OptimizedTasks),
			}, nil
		}
		reason = opt.Reason
		e.logger.Warn("optimizer fell back to critical path schedule",
			"project", snap.Project.ID, "status", opt.Status, "reason", opt.ReasonText)
	}

	cp, err := e.CalculateCriticalPath(snap.Tasks, edges)
	if err != nil {
		return nil, fmt.Errorf("engine: schedule %s: %w", snap.Project.ID, err)
	}
	cp.Approximate = reason != nil
	res := &ScheduleResult{
		ProjectID:    snap.Project.ID,
		Method:       cp.Method,
		Approximate:  cp.Approximate,
		Reason:       reason,
		CriticalPath: cp,
		Tasks:        earliestTasks(cp, snap.Tasks),
	}
	if reason != nil {
		res.ReasonText = reason.Error()
	}
	return res, nil
}

// earliestTasks copies tasks onto their early-start dates with the
// critical flags and slack filled in.
func earliestTasks(cp *cpm.Result, tasks []schedule.Task) []schedule.Task {
	out := cp.ApplyTo(tasks)
	for i := range out {
		s, ok := cp.Schedule(out[i].ID)
		if !ok {
			continue
		}
		out[i].PlannedStart = s.EarliestStart
		out[i].PlannedEnd = s.EarliestFinish
		out[i].PlannedDurationDays = s.DurationDays
	}
	return out
}
