// Package engine exposes the scheduling operations behind one facade: it
// wires the validator, CPM engine, optimizer, conflict detector, baseline
// manager and EVM calculator to a shared clock, logger and telemetry
// stream, and adds the two-tier schedule strategy and batch planning.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/config"
	"github.com/papapumpkin/parsec/internal/conflict"
	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/optimize"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/telemetry"
	"github.com/papapumpkin/parsec/internal/validate"
)

// Options configure an Engine. Zero fields take the defaults of
// DefaultOptions.
type Options struct {
	Clock     schedule.Clock
	Logger    *slog.Logger
	Telemetry *telemetry.Emitter
	Baselines baseline.Store

	Budget                  optimize.Budget
	Limits                  conflict.Limits
	Bands                   evm.Bands
	BottleneckMinSuccessors int
	BottleneckMaxSlack      int
	Workers                 int
}

// DefaultOptions returns the built-in thresholds with the system clock, a
// discarding logger and an in-memory baseline store.
func DefaultOptions() Options {
	return Options{
		Clock:                   schedule.SystemClock{},
		Logger:                  slog.New(slog.DiscardHandler),
		Baselines:               baseline.NewMemoryStore(),
		Budget:                  optimize.DefaultBudget(),
		Limits:                  conflict.DefaultLimits(),
		Bands:                   evm.DefaultBands(),
		BottleneckMinSuccessors: 3,
		BottleneckMaxSlack:      1,
		Workers:                 4,
	}
}

// OptionsFromConfig maps loaded configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	opts.Budget = optimize.Budget{
		TimeLimit:   cfg.Optimizer.TimeLimit,
		MaxSteps:    cfg.Optimizer.MaxSteps,
		Passes:      cfg.Optimizer.Passes,
		Seed:        cfg.Optimizer.Seed,
		HorizonDays: cfg.Optimizer.HorizonDays,
	}
	opts.Limits = conflict.Limits{
		DailyHours:      cfg.Capacity.DailyHours,
		MonthlyHours:    cfg.Capacity.MonthlyHours,
		OverlapHighDays: cfg.Conflicts.OverlapHighDays,
		OverloadHighPct: cfg.Conflicts.OverloadHighPct,
	}
	opts.Bands = evm.Bands{Cost: cfg.EVM.CostBand, Schedule: cfg.EVM.ScheduleBand}
	opts.BottleneckMinSuccessors = cfg.CPM.BottleneckMinSuccessors
	opts.BottleneckMaxSlack = cfg.CPM.BottleneckMaxSlack
	opts.Workers = cfg.Workers
	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.Baselines == nil {
		o.Baselines = def.Baselines
	}
	if o.Budget == (optimize.Budget{}) {
		o.Budget = def.Budget
	}
	if o.Limits == (conflict.Limits{}) {
		o.Limits = def.Limits
	}
	if o.Bands == (evm.Bands{}) {
		o.Bands = def.Bands
	}
	if o.BottleneckMinSuccessors <= 0 {
		o.BottleneckMinSuccessors = def.BottleneckMinSuccessors
		o.BottleneckMaxSlack = def.BottleneckMaxSlack
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	return o
}

// Engine is safe for concurrent use; every call works on copies of its
// inputs.
type Engine struct {
	opts      Options
	clock     schedule.Clock
	logger    *slog.Logger
	tel       *telemetry.Emitter
	optimizer *optimize.Optimizer
	detector  *conflict.Detector
	resolver  *conflict.Resolver
	baselines *baseline.Manager
	evm       *evm.Calculator
}

// New creates an Engine.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger,
		tel:       opts.Telemetry,
		detector:  conflict.NewDetector(opts.Limits, opts.Clock),
		resolver:  conflict.NewResolver(opts.Limits, opts.Clock),
		baselines: baseline.NewManager(opts.Baselines, opts.Clock, opts.Logger),
		evm:       evm.New(opts.Clock, opts.Bands),
	}
	e.optimizer = optimize.New(opts.Budget, e.cpmOptions(), opts.Logger)
	return e
}

// cpmOptions anchors unscheduled source tasks on today.
func (e *Engine) cpmOptions() cpm.Options {
	return cpm.Options{
		Today:                   e.clock.Today(),
		BottleneckMinSuccessors: e.opts.BottleneckMinSuccessors,
		BottleneckMaxSlack:      e.opts.BottleneckMaxSlack,
	}
}

// record emits a telemetry event and logs emitter failures.
func (e *Engine) record(kind, projectID string, start time.Time, data any, opErr error) {
	if err := e.tel.Record(kind, projectID, start, data, opErr); err != nil {
		e.logger.Warn("telemetry write failed", "kind", kind, "error", err)
	}
}

// Baselines exposes the baseline manager for listing and history queries.
func (e *Engine) Baselines() *baseline.Manager { return e.baselines }

// ValidateDependencies checks the dependency graph.
func (e *Engine) ValidateDependencies(tasks []schedule.Task, edges []schedule.Edge) validate.Result {
	start := e.clock.Now()
	res := validate.Validate(tasks, edges)
	e.record(telemetry.KindValidate, projectOf(tasks), start, map[string]any{
		"valid": res.IsValid, "errors": len(res.Errors), "warnings": len(res.Warnings), "cycles": len(res.Cycles),
	}, nil)
	return res
}

// CalculateCriticalPath runs the forward and backward passes.
func (e *Engine) CalculateCriticalPath(tasks []schedule.Task, edges []schedule.Edge) (*cpm.Result, error) {
	start := e.clock.Now()
	res, err := cpm.Calculate(tasks, edges, e.cpmOptions())
	data := map[string]any{"tasks": len(tasks)}
	if res != nil {
		data["critical"] = len(res.CriticalPath)
		data["total_duration_days"] = res.TotalDurationDays
	}
	e.record(telemetry.KindCriticalPath, projectOf(tasks), start, data, err)
	return res, err
}

// OptimizeResourceLeveling levels tasks under per-resource capacity.
func (e *Engine) OptimizeResourceLeveling(ctx context.Context, tasks []schedule.Task, edges []schedule.Edge, capacity schedule.Capacity) (*optimize.LevelingResult, error) {
	start := e.clock.Now()
	res, err := e.optimizer.WithToday(e.clock.Today()).Level(ctx, tasks, edges, capacity)
	data := map[string]any{"tasks": len(tasks)}
	if res != nil {
		data["status"] = res.Status
		data["total_delay_days"] = res.TotalDelayDays
		data["score"] = res.OptimizationScore
	}
	e.record(telemetry.KindLeveling, projectOf(tasks), start, data, err)
	return res, err
}

// OptimizeScheduleWithConstraints searches for a schedule honouring the
// declarative constraints. Resource capacity comes from resource_limit
// constraints.
func (e *Engine) OptimizeScheduleWithConstraints(ctx context.Context, tasks []schedule.Task, edges []schedule.Edge, constraints []schedule.Constraint, goal optimize.Goal) (*optimize.Result, error) {
	return e.optimizeWith(ctx, tasks, edges, nil, constraints, goal)
}

func (e *Engine) optimizeWith(ctx context.Context, tasks []schedule.Task, edges []schedule.Edge, capacity schedule.Capacity, constraints []schedule.Constraint, goal optimize.Goal) (*optimize.Result, error) {
	start := e.clock.Now()
	res, err := e.optimizer.WithToday(e.clock.Today()).Optimize(ctx, tasks, edges, capacity, constraints, goal)
	data := map[string]any{"tasks": len(tasks), "constraints": len(constraints), "goal": goal}
	if res != nil {
		data["status"] = res.Status
		data["objective"] = res.ObjectiveValue
		data["steps"] = res.Steps
	}
	e.record(telemetry.KindOptimize, projectOf(tasks), start, data, err)
	return res, err
}

// DetectConflicts runs every detection rule.
func (e *Engine) DetectConflicts(project schedule.Project, tasks []schedule.Task, edges []schedule.Edge) []conflict.Conflict {
	start := e.clock.Now()
	out := e.detector.Detect(project, tasks, edges)
	e.record(telemetry.KindConflictsFound, project.ID, start, map[string]any{"conflicts": len(out)}, nil)
	return out
}

// ResolveConflicts applies a resolution strategy to detected conflicts.
func (e *Engine) ResolveConflicts(tasks []schedule.Task, edges []schedule.Edge, conflicts []conflict.Conflict, strategy conflict.Strategy) conflict.Resolution {
	start := e.clock.Now()
	res := e.resolver.Resolve(tasks, edges, conflicts, strategy)
	e.record(telemetry.KindConflictsFixed, projectOf(tasks), start, map[string]any{
		"detected": res.ConflictsDetected, "resolved": res.ConflictsResolved, "unresolved": len(res.Unresolved),
	}, nil)
	return res
}

// CreateBaseline freezes tasks into a new baseline version.
func (e *Engine) CreateBaseline(ctx context.Context, tasks []schedule.Task, req baseline.CreateRequest) (baseline.Baseline, error) {
	start := e.clock.Now()
	b, err := e.baselines.Create(ctx, tasks, req)
	e.record(telemetry.KindBaselineCreated, b.ProjectID, start, map[string]any{"version": b.Version, "tasks": len(tasks)}, err)
	return b, err
}

// CompareToBaseline diffs a task against a baseline version.
func (e *Engine) CompareToBaseline(ctx context.Context, task schedule.Task, version string) (baseline.Comparison, error) {
	return e.baselines.Compare(ctx, task, version)
}

// RestoreFromBaseline writes baseline values back into a copy of task.
func (e *Engine) RestoreFromBaseline(ctx context.Context, task schedule.Task, version string, fields []string, restoredBy string) (baseline.RestoreResult, error) {
	start := e.clock.Now()
	res, err := e.baselines.Restore(ctx, task, version, fields, restoredBy)
	e.record(telemetry.KindBaselineRestored, task.ProjectID, start, map[string]any{"task": task.ID, "version": version, "fields": len(res.Restored)}, err)
	return res, err
}

// CalculateEVM computes earned value metrics as of today.
func (e *Engine) CalculateEVM(projectID string, tasks []schedule.Task, budget decimal.Decimal, startDate, endDate schedule.Date) (evm.Metrics, error) {
	start := e.clock.Now()
	m, err := e.evm.Calculate(projectID, tasks, budget, startDate, endDate)
	e.record(telemetry.KindEVM, projectID, start, map[string]any{"spi": m.SPI, "cpi": m.CPI}, err)
	return m, err
}

// AnalyzeEVM interprets metrics.
func (e *Engine) AnalyzeEVM(m evm.Metrics) evm.Analysis { return e.evm.Analyze(m) }

// PredictEVM forecasts the project outcome.
func (e *Engine) PredictEVM(m evm.Metrics, historical []evm.Historical) evm.Prediction {
	return e.evm.Predict(m, historical)
}

func projectOf(tasks []schedule.Task) string {
	if len(tasks) == 0 {
		return ""
	}
	return tasks[0].ProjectID
}
