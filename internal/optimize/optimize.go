// Package optimize reschedules tasks under resource capacity and
// declarative constraints. Each call builds an interval model, runs several
// priority-rule passes of a serial schedule generator in parallel under a
// time and step budget, and keeps the best verified solution. When no pass
// succeeds the CPM schedule is returned, tagged approximate.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/dag"
	"github.com/papapumpkin/parsec/internal/schedule"
)

// MethodListScheduling tags schedules produced by the solver.
const MethodListScheduling = "serial_schedule_generation"

// Goal selects the objective to minimize.
type Goal string

// Supported goals.
const (
	GoalMinimizeDuration Goal = "minimize_duration"
	GoalMinimizeCost     Goal = "minimize_cost"
)

// ParseGoal accepts a goal name; the empty string means minimize_duration.
func ParseGoal(s string) (Goal, error) {
	switch Goal(s) {
	case "", GoalMinimizeDuration:
		return GoalMinimizeDuration, nil
	case GoalMinimizeCost:
		return GoalMinimizeCost, nil
	}
	return "", &schedule.ValidationError{Category: schedule.ValCatBoundsViolation, Field: "goal", Reason: fmt.Sprintf("unknown goal %q", s)}
}

// Status describes how a solve ended.
type Status string

// Solve outcomes.
const (
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusTimedOut   Status = "timed_out"
	StatusCancelled  Status = "cancelled"
)

// Budget bounds one optimization call.
type Budget struct {
	TimeLimit   time.Duration
	MaxSteps    int64
	Passes      int
	Seed        uint64
	HorizonDays int
}

// DefaultBudget returns the limits used when nothing is configured.
func DefaultBudget() Budget {
	return Budget{TimeLimit: 5 * time.Second, MaxSteps: 200_000, Passes: 8, Seed: 1, HorizonDays: 3650}
}

// Assignment is the optimized timing of one task.
type Assignment struct {
	TaskID        string        `json:"task_id"`
	Name          string        `json:"task_name,omitempty"`
	OriginalStart schedule.Date `json:"original_start"`
	OriginalEnd   schedule.Date `json:"original_end"`
	Start         schedule.Date `json:"optimized_start"`
	End           schedule.Date `json:"optimized_end"`
	DelayDays     int           `json:"delay_days"`
}

// Result is the outcome of optimize_schedule_with_constraints.
type Result struct {
	Goal           Goal              `json:"goal"`
	Status         Status            `json:"status"`
	SolutionFound  bool              `json:"solution_found"`
	Approximate    bool              `json:"approximate"`
	Method         string            `json:"method"`
	ObjectiveValue float64           `json:"objective_value"`
	MakespanDays   int               `json:"makespan_days"`
	Schedule       []Assignment      `json:"schedule"`
	OptimizedTasks []schedule.Task   `json:"optimized_tasks"`
	Rule           string            `json:"rule,omitempty"`
	Steps          int64             `json:"steps"`
	Elapsed        time.Duration     `json:"elapsed"`
	Reason         error             `json:"-"`
	ReasonText     string            `json:"reason,omitempty"`
	Resources      []string          `json:"resources,omitempty"`
	Capacity       schedule.Capacity `json:"capacity,omitempty"`

	start []int
	model *model
}

// Optimizer runs bounded schedule optimizations. It holds configuration
// only; every call builds its own model and solvers, so one Optimizer may
// serve concurrent callers.
type Optimizer struct {
	budget  Budget
	cpmOpts cpm.Options
	logger  *slog.Logger
}

// New creates an Optimizer. A nil logger discards output.
func New(budget Budget, cpmOpts cpm.Options, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if budget.Passes <= 0 {
		budget.Passes = DefaultBudget().Passes
	}
	return &Optimizer{budget: budget, cpmOpts: cpmOpts, logger: logger}
}

// WithToday returns a copy of o anchoring unscheduled source tasks on today.
func (o *Optimizer) WithToday(today schedule.Date) *Optimizer {
	c := *o
	c.cpmOpts.Today = today
	return &c
}

// candidate is one pass's verified solution.
type candidate struct {
	rule     string
	start    []int
	primary  float64
	makespan int
	delay    int
}

func (c *candidate) better(o *candidate) bool {
	if o == nil {
		return true
	}
	if c.primary != o.primary {
		return c.primary < o.primary
	}
	if c.makespan != o.makespan {
		return c.makespan < o.makespan
	}
	return c.delay < o.delay
}

// Optimize schedules tasks so that precedence, capacity and constraints
// hold, minimizing goal. Only malformed input and invalid graphs are
// returned as errors; an infeasible or timed-out solve yields the CPM
// schedule with SolutionFound=false and Approximate=true.
func (o *Optimizer) Optimize(ctx context.Context, tasks []schedule.Task, edges []schedule.Edge, capacity schedule.Capacity, constraints []schedule.Constraint, goal Goal) (*Result, error) {
	began := time.Now()
	if _, err := ParseGoal(string(goal)); err != nil {
		return nil, err
	}
	if goal == "" {
		goal = GoalMinimizeDuration
	}
	for _, c := range constraints {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	for res, units := range capacity {
		if units < 0 {
			return nil, &schedule.ValidationError{Category: schedule.ValCatBoundsViolation, Field: "capacity." + res, Reason: "must not be negative"}
		}
	}

	base, err := cpm.Calculate(tasks, edges, o.cpmOpts)
	if err != nil {
		return nil, err
	}
	g, err := dag.Build(tasks, edges)
	if err != nil {
		return nil, err
	}
	m, err := buildModel(tasks, g, base, capacity, constraints, o.budget.HorizonDays)
	if err != nil {
		return nil, err
	}

	if m.infeasible != "" {
		res := o.fallback(m, goal, StatusInfeasible, errors.New(m.infeasible))
		res.Elapsed = time.Since(began)
		return res, nil
	}

	solveCtx := ctx
	if o.budget.TimeLimit > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, o.budget.TimeLimit)
		defer cancel()
	}

	var steps atomic.Int64
	passRules := rules(o.budget.Passes)
	found := make([]*candidate, len(passRules))
	failures := make([]error, len(passRules))

	eg, egCtx := errgroup.WithContext(solveCtx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for k, r := range passRules {
		eg.Go(func() error {
			s := newSolver(m, r, o.budget.Seed+uint64(k), &steps, o.budget.MaxSteps)
			start, err := s.run(egCtx)
			if err == nil {
				err = m.verify(start)
			}
			if err != nil {
				failures[k] = err
				o.logger.Debug("optimizer pass failed", "rule", r.name, "err", err)
				return nil
			}
			found[k] = o.score(m, start, goal, r.name)
			o.logger.Debug("optimizer pass", "rule", r.name, "makespan", found[k].makespan, "objective", found[k].primary)
			return nil
		})
	}
	_ = eg.Wait()

	var best *candidate
	for _, c := range found {
		if c != nil && c.better(best) {
			best = c
		}
	}

	if best == nil {
		status, reason := classify(ctx, solveCtx, failures)
		res := o.fallback(m, goal, status, reason)
		res.Steps = steps.Load()
		res.Elapsed = time.Since(began)
		o.logger.Info("optimizer fell back to critical path schedule", "status", status, "reason", reason)
		return res, nil
	}

	res := o.result(m, goal, best.start)
	res.Status = StatusFeasible
	res.SolutionFound = true
	res.Method = MethodListScheduling
	res.Rule = best.rule
	res.ObjectiveValue = best.primary
	res.Steps = steps.Load()
	res.Elapsed = time.Since(began)
	return res, nil
}

// classify explains why no pass produced a solution.
func classify(parent, solveCtx context.Context, failures []error) (Status, error) {
	switch {
	case parent.Err() != nil:
		return StatusCancelled, parent.Err()
	case solveCtx.Err() != nil:
		return StatusTimedOut, solveCtx.Err()
	}
	for _, err := range failures {
		if errors.Is(err, errStepBudget) {
			return StatusTimedOut, err
		}
	}
	for _, err := range failures {
		if err != nil {
			return StatusInfeasible, err
		}
	}
	return StatusInfeasible, errNoPlacement
}

func (o *Optimizer) score(m *model, start []int, goal Goal, rule string) *candidate {
	c := &candidate{rule: rule, start: start, makespan: m.makespan(start)}
	for i, s := range start {
		c.delay += max(0, s-m.es[i])
	}
	switch goal {
	case GoalMinimizeCost:
		total := decimal.Zero
		for _, t := range m.tasks {
			total = total.Add(t.BudgetedCost)
		}
		c.primary = total.InexactFloat64()
	default:
		c.primary = float64(c.makespan)
	}
	return c
}

// fallback returns the unmodified CPM schedule tagged approximate.
func (o *Optimizer) fallback(m *model, goal Goal, status Status, cause error) *Result {
	start := make([]int, len(m.es))
	copy(start, m.es)
	res := o.result(m, goal, start)
	res.Status = status
	res.Approximate = true
	res.Method = cpm.MethodForwardBackward
	res.Reason = fmt.Errorf("%w: %w", schedule.ErrInfeasibleOrTimedOut, cause)
	res.ReasonText = res.Reason.Error()
	res.ObjectiveValue = o.score(m, start, goal, "").primary
	return res
}

// result renders an assignment as dates and updated task copies.
func (o *Optimizer) result(m *model, goal Goal, start []int) *Result {
	res := &Result{
		Goal:         goal,
		MakespanDays: m.makespan(start),
		Resources:    m.resources,
		start:        start,
		model:        m,
	}
	if len(m.resources) > 0 {
		res.Capacity = make(schedule.Capacity, len(m.resources))
		for k, r := range m.resources {
			res.Capacity[r] = m.capacity[k]
		}
	}
	order, _ := m.g.Order()
	for _, i := range order {
		t := m.tasks[i]
		origStart := t.PlannedStart
		if origStart.IsZero() {
			origStart = m.epoch.AddDays(m.es[i])
		}
		newStart := m.epoch.AddDays(start[i])
		res.Schedule = append(res.Schedule, Assignment{
			TaskID:        t.ID,
			Name:          t.Name,
			OriginalStart: origStart,
			OriginalEnd:   origStart.AddDays(m.dur[i]),
			Start:         newStart,
			End:           newStart.AddDays(m.dur[i]),
			DelayDays:     origStart.DaysUntil(newStart),
		})
		updated := t.Clone()
		updated.PlannedStart = newStart
		updated.PlannedEnd = newStart.AddDays(m.dur[i])
		updated.PlannedDurationDays = m.dur[i]
		res.OptimizedTasks = append(res.OptimizedTasks, updated)
	}
	return res
}
