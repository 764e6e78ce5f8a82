package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/papapumpkin/parsec/internal/conflict"
	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/telemetry"
	"github.com/papapumpkin/parsec/internal/validate"
)

// Repository loads and persists project snapshots. ApplyTasks must write
// every task or none.
type Repository interface {
	LoadSnapshot(ctx context.Context, projectID string) (schedule.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap schedule.Snapshot) error
	ApplyTasks(ctx context.Context, projectID string, tasks []schedule.Task) error
	Projects(ctx context.Context) ([]string, error)
}

// Plan is the full pipeline output for one project.
type Plan struct {
	ProjectID       string              `json:"project_id"`
	Validation      validate.Result     `json:"validation"`
	Fixes           []validate.Fix      `json:"suggested_fixes,omitempty"`
	Schedule        *ScheduleResult     `json:"schedule,omitempty"`
	Conflicts       []conflict.Conflict `json:"conflicts"`
	ConflictStats   conflict.Statistics `json:"conflict_statistics"`
	ConflictSummary string              `json:"conflict_summary"`
	EVM             *evm.Metrics        `json:"evm,omitempty"`
	Analysis        *evm.Analysis       `json:"evm_analysis,omitempty"`
	Elapsed         time.Duration       `json:"elapsed"`
}

// Plan validates, schedules, checks for conflicts and, when the project
// has a date window, computes earned value. An invalid graph returns the
// partial plan, with fix suggestions, alongside the error.
func (e *Engine) Plan(ctx context.Context, snap schedule.Snapshot) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := e.clock.Now()
	e.record(telemetry.KindPlanStart, snap.Project.ID, start, map[string]any{"tasks": len(snap.Tasks)}, nil)

	plan, err := e.plan(ctx, snap.Clone())
	if plan != nil {
		plan.Elapsed = e.clock.Now().Sub(start)
	}
	e.record(telemetry.KindPlanDone, snap.Project.ID, start, nil, err)
	return plan, err
}

func (e *Engine) plan(ctx context.Context, snap schedule.Snapshot) (*Plan, error) {
	for i := range snap.Tasks {
		snap.Tasks[i].Normalize()
	}
	id := snap.Project.ID
	edges := snap.AllEdges()
	p := &Plan{ProjectID: id}

	p.Validation = e.ValidateDependencies(snap.Tasks, edges)
	if err := p.Validation.Err(); err != nil {
		p.Fixes = validate.SuggestFixes(p.Validation)
		return p, fmt.Errorf("engine: plan %s: %w", id, err)
	}

	sched, err := e.Schedule(ctx, snap)
	if err != nil {
		return p, err
	}
	p.Schedule = sched

	p.Conflicts = e.DetectConflicts(snap.Project, sched.Tasks, edges)
	p.ConflictStats = conflict.Stats(p.Conflicts)
	p.ConflictSummary = conflict.Summary(p.Conflicts)

	if !snap.Project.Start.IsZero() && !snap.Project.End.IsZero() {
		m, err := e.CalculateEVM(id, snap.Tasks, snap.Project.Budget, snap.Project.Start, snap.Project.End)
		if err != nil {
			return p, fmt.Errorf("engine: plan %s: %w", id, err)
		}
		a := e.AnalyzeEVM(m)
		p.EVM, p.Analysis = &m, &a
	}
	return p, nil
}

// Outcome is one project's result in a batch.
type Outcome struct {
	ProjectID string `json:"project_id"`
	Plan      *Plan  `json:"plan,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// PlanAll plans many projects in parallel on a bounded worker pool.
// Per-project failures are reported in their Outcome; the returned error
// is set only when ctx ends before the batch completes.
func (e *Engine) PlanAll(ctx context.Context, snaps []schedule.Snapshot) ([]Outcome, error) {
	out := make([]Outcome, len(snaps))
	p := pool.New().WithMaxGoroutines(e.opts.Workers).WithContext(ctx)
	for i, snap := range snaps {
		p.Go(func(ctx context.Context) error {
			plan, err := e.Plan(ctx, snap)
			out[i] = Outcome{ProjectID: snap.Project.ID, Plan: plan, Err: err}
			if err != nil {
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

// PlanStored plans a project loaded from repo. With apply set, the
// scheduled tasks are written back in one transaction.
func (e *Engine) PlanStored(ctx context.Context, repo Repository, projectID string, apply bool) (*Plan, error) {
	snap, err := repo.LoadSnapshot(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("engine: load %s: %w", projectID, err)
	}
	plan, err := e.Plan(ctx, snap)
	if err != nil || !apply {
		return plan, err
	}
	if err := repo.ApplyTasks(ctx, projectID, plan.Schedule.PersistTasks()); err != nil {
		return plan, fmt.Errorf("engine: apply %s: %w", projectID, err)
	}
	e.logger.Info("schedule applied", "project", projectID, "tasks", len(plan.Schedule.Tasks), "method", plan.Schedule.Method)
	return plan, nil
}

// PlanAllStored plans every project in repo in parallel. With apply set,
// each successful schedule is then written back, one project at a time.
func (e *Engine) PlanAllStored(ctx context.Context, repo Repository, apply bool) ([]Outcome, error) {
	ids, err := repo.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list projects: %w", err)
	}
	snaps := make([]schedule.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := repo.LoadSnapshot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("engine: load %s: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	out, err := e.PlanAll(ctx, snaps)
	if err != nil || !apply {
		return out, err
	}
	for i := range out {
		if out[i].Err != nil {
			continue
		}
		if err := repo.ApplyTasks(ctx, out[i].ProjectID, out[i].Plan.Schedule.PersistTasks()); err != nil {
			out[i].Err = fmt.Errorf("engine: apply %s: %w", out[i].ProjectID, err)
			out[i].Error = out[i].Err.Error()
		}
	}
	return out, nil
}
