package engine

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/conflict"
	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/optimize"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/telemetry"
)

var day0 = schedule.MustDate("2024-01-01")

func newEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = schedule.FixedClock{At: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)}
	return New(opts)
}

func crewTask(id string, dur, crew int) schedule.Task {
	return schedule.Task{ID: id, ProjectID: "p1", Name: id, PlannedStart: day0, PlannedDurationDays: dur, Demand: schedule.Demand{"crew": crew}}
}

func snapshot(id string, tasks ...schedule.Task) schedule.Snapshot {
	for i := range tasks {
		tasks[i].ProjectID = id
	}
	return schedule.Snapshot{Project: schedule.Project{ID: id, Name: id}, Tasks: tasks}
}

func taskByID(t *testing.T, tasks []schedule.Task, id string) schedule.Task {
	t.Helper()
	for _, task := range tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("no task %s", id)
	return schedule.Task{}
}

func TestSchedule_UsesCriticalPathWithoutResources(t *testing.T) {
	t.Parallel()
	snap := snapshot("p1", crewTask("A", 3, 1), schedule.Task{ID: "B", PlannedDurationDays: 2, Predecessors: []string{"A"}})

	res, err := newEngine(t).Schedule(context.Background(), snap)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Method != cpm.MethodForwardBackward || res.Approximate || res.Optimization != nil {
		t.Errorf("method=%q approximate=%v optimization=%v", res.Method, res.Approximate, res.Optimization)
	}
	b := taskByID(t, res.Tasks, "B")
	if !b.PlannedStart.Equal(day0.AddDays(3)) || !b.PlannedEnd.Equal(day0.AddDays(5)) || !b.IsCriticalPath {
		t.Errorf("B = %s..%s critical=%v", b.PlannedStart, b.PlannedEnd, b.IsCriticalPath)
	}
	if !slices.Equal(res.CriticalPath.CriticalPath, []string{"A", "B"}) {
		t.Errorf("critical path = %v", res.CriticalPath.CriticalPath)
	}
	if !snap.Tasks[1].PlannedStart.IsZero() {
		t.Error("input snapshot was modified")
	}
}

func TestSchedule_UsesOptimizerWithCapacity(t *testing.T) {
	t.Parallel()
	snap := snapshot("p1", crewTask("A", 3, 1), crewTask("B", 2, 1))
	snap.Project.Capacity = schedule.Capacity{"crew": 1}

	res, err := newEngine(t).Schedule(context.Background(), snap)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Method != optimize.MethodListScheduling || res.Approximate || res.Optimization == nil {
		t.Fatalf("method=%q approximate=%v reason=%v", res.Method, res.Approximate, res.Reason)
	}
	a, b := taskByID(t, res.Tasks, "A"), taskByID(t, res.Tasks, "B")
	if a.PlannedStart.Before(b.PlannedEnd) && b.PlannedStart.Before(a.PlannedEnd) {
		t.Errorf("A %s..%s overlaps B %s..%s under capacity 1", a.PlannedStart, a.PlannedEnd, b.PlannedStart, b.PlannedEnd)
	}
	if res.CriticalPath.TotalDurationDays != 5 {
		t.Errorf("total duration = %d, want 5", res.CriticalPath.TotalDurationDays)
	}
}

func TestSchedule_FallsBackWhenInfeasible(t *testing.T) {
	t.Parallel()
	snap := snapshot("p1", crewTask("A", 3, 1), crewTask("B", 2, 1))
	snap.Project.Capacity = schedule.Capacity{"crew": 0}

	res, err := newEngine(t).Schedule(context.Background(), snap)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Method != cpm.MethodForwardBackward || !res.Approximate || !res.CriticalPath.Approximate {
		t.Errorf("method=%q approximate=%v", res.Method, res.Approximate)
	}
	if !errors.Is(res.Reason, schedule.ErrInfeasibleOrTimedOut) || res.ReasonText == "" {
		t.Errorf("reason = %v (%q)", res.Reason, res.ReasonText)
	}
	if b := taskByID(t, res.Tasks, "B"); !b.PlannedStart.Equal(day0) {
		t.Errorf("fallback B starts %s, want %s", b.PlannedStart, day0)
	}
}

func TestSchedule_RejectsCycles(t *testing.T) {
	t.Parallel()
	snap := snapshot("p1",
		schedule.Task{ID: "A", PlannedDurationDays: 1, Predecessors: []string{"B"}},
		schedule.Task{ID: "B", PlannedDurationDays: 1, Predecessors: []string{"A"}},
	)
	for _, capacity := range []schedule.Capacity{nil, {"crew": 1}} {
		snap.Project.Capacity = capacity
		_, err := newEngine(t).Schedule(context.Background(), snap)
		if !errors.Is(err, schedule.ErrInvalidGraph) {
			t.Errorf("capacity %v: err = %v, want ErrInvalidGraph", capacity, err)
		}
	}
}

func TestPlan_InvalidGraphReturnsFixes(t *testing.T) {
	t.Parallel()
	snap := snapshot("p1",
		schedule.Task{ID: "A", PlannedDurationDays: 1, Predecessors: []string{"B"}},
		schedule.Task{ID: "B", PlannedDurationDays: 1, Predecessors: []string{"A"}},
	)
	plan, err := newEngine(t).Plan(context.Background(), snap)
	if !errors.Is(err, schedule.ErrInvalidGraph) {
		t.Fatalf("err = %v, want ErrInvalidGraph", err)
	}
	if plan == nil || plan.Validation.IsValid || len(plan.Fixes) == 0 {
		t.Fatalf("plan = %+v, want invalid validation with fixes", plan)
	}
	if plan.Schedule != nil {
		t.Error("schedule computed for an invalid graph")
	}
}

func TestPlan_FullPipeline(t *testing.T) {
	t.Parallel()
	a := schedule.Task{ID: "A", Name: "Frame", AssignedTo: "ana", PlannedStart: day0, PlannedEnd: schedule.MustDate("2024-01-05"),
		BudgetedCost: decimal.NewFromInt(400), ActualCost: decimal.NewFromInt(200), Progress: 50}
	b := schedule.Task{ID: "B", Name: "Wire", AssignedTo: "ana", PlannedStart: schedule.MustDate("2024-01-03"), PlannedEnd: schedule.MustDate("2024-01-08"),
		BudgetedCost: decimal.NewFromInt(600), Progress: 150}
	snap := snapshot("p1", a, b)
	snap.Project.Start = day0
	snap.Project.End = schedule.MustDate("2024-01-10")
	snap.Project.Budget = decimal.NewFromInt(1000)

	plan, err := newEngine(t).Plan(context.Background(), snap)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Validation.IsValid || plan.Schedule == nil {
		t.Fatalf("validation=%+v schedule=%v", plan.Validation, plan.Schedule)
	}
	var types []conflict.Type
	for _, c := range plan.Conflicts {
		types = append(types, c.Type)
	}
	if diff := cmp.Diff([]conflict.Type{conflict.TypeResourceOverlap}, types); diff != "" {
		t.Errorf("conflict types (-want +got):\n%s", diff)
	}
	if plan.ConflictStats.Total != 1 || !strings.HasPrefix(plan.ConflictSummary, "Detected 1 conflict(s)") {
		t.Errorf("stats=%+v summary=%q", plan.ConflictStats, plan.ConflictSummary)
	}
	if plan.EVM == nil || plan.Analysis == nil {
		t.Fatal("EVM not computed for a dated project")
	}
	// Progress is clamped to 100 before earned value is taken.
	if want := decimal.NewFromInt(800); !plan.EVM.EV.Equal(want) {
		t.Errorf("EV = %s, want %s", plan.EVM.EV, want)
	}
	if snap.Tasks[1].Progress != 150 {
		t.Error("input snapshot was modified")
	}
}

func TestPlan_SkipsEVMWithoutProjectDates(t *testing.T) {
	t.Parallel()
	plan, err := newEngine(t).Plan(context.Background(), snapshot("p1", crewTask("A", 2, 1)))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.EVM != nil || plan.Analysis != nil {
		t.Errorf("EVM = %+v, want nil", plan.EVM)
	}
}

func TestPlan_EmitsTelemetry(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Clock = schedule.FixedClock{At: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)}
	opts.Telemetry = telemetry.NewWriterEmitter(&buf)
	e := New(opts)

	if _, err := e.Plan(context.Background(), snapshot("p1", crewTask("A", 2, 1))); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	out := buf.String()
	for _, kind := range []string{telemetry.KindPlanStart, telemetry.KindValidate, telemetry.KindSchedule, telemetry.KindConflictsFound, telemetry.KindPlanDone} {
		if !strings.Contains(out, `"kind":"`+kind+`"`) {
			t.Errorf("no %s event in:\n%s", kind, out)
		}
	}
}

func TestPlanAll_KeepsInputOrder(t *testing.T) {
	t.Parallel()
	bad := snapshot("bad", schedule.Task{ID: "X", PlannedDurationDays: 1, Predecessors: []string{"missing"}})
	snaps := []schedule.Snapshot{
		snapshot("p1", crewTask("A", 2, 1)),
		bad,
		snapshot("p3", crewTask("A", 4, 1)),
	}
	out, err := newEngine(t).PlanAll(context.Background(), snaps)
	if err != nil {
		t.Fatalf("PlanAll: %v", err)
	}
	var ids []string
	for _, o := range out {
		ids = append(ids, o.ProjectID)
	}
	if diff := cmp.Diff([]string{"p1", "bad", "p3"}, ids); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if out[0].Err != nil || out[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", out[0].Err, out[2].Err)
	}
	if !errors.Is(out[1].Err, schedule.ErrInvalidGraph) || out[1].Error == "" {
		t.Errorf("bad project err = %v", out[1].Err)
	}
	if got := out[2].Plan.Schedule.CriticalPath.TotalDurationDays; got != 4 {
		t.Errorf("p3 duration = %d, want 4", got)
	}
}

func TestPlanAll_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := newEngine(t).PlanAll(ctx, []schedule.Snapshot{snapshot("p1", crewTask("A", 2, 1))})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(out) != 1 {
		t.Errorf("outcomes = %d, want 1", len(out))
	}
}

type memRepo struct {
	mu      sync.Mutex
	snaps   map[string]schedule.Snapshot
	applied map[string][]schedule.Task
}

func newMemRepo(snaps ...schedule.Snapshot) *memRepo {
	r := &memRepo{snaps: map[string]schedule.Snapshot{}, applied: map[string][]schedule.Task{}}
	for _, s := range snaps {
		r.snaps[s.Project.ID] = s
	}
	return r
}

func (r *memRepo) LoadSnapshot(_ context.Context, id string) (schedule.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snaps[id]
	if !ok {
		return schedule.Snapshot{}, &schedule.NotFoundError{Kind: "project", Key: id}
	}
	return s.Clone(), nil
}

func (r *memRepo) SaveSnapshot(_ context.Context, s schedule.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[s.Project.ID] = s.Clone()
	return nil
}

func (r *memRepo) ApplyTasks(_ context.Context, id string, tasks []schedule.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[id] = schedule.CloneTasks(tasks)
	return nil
}

func (r *memRepo) Projects(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.snaps))
	for id := range r.snaps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func TestPlanStored(t *testing.T) {
	t.Parallel()
	next := schedule.Task{ID: "B", PlannedDurationDays: 2, Predecessors: []string{"A"}}
	repo := newMemRepo(snapshot("p1", crewTask("A", 3, 1), next))
	e := newEngine(t)

	if _, err := e.PlanStored(context.Background(), repo, "p1", false); err != nil {
		t.Fatalf("PlanStored: %v", err)
	}
	if len(repo.applied) != 0 {
		t.Error("tasks applied without apply")
	}
	if _, err := e.PlanStored(context.Background(), repo, "p1", true); err != nil {
		t.Fatalf("PlanStored apply: %v", err)
	}
	b := taskByID(t, repo.applied["p1"], "B")
	if !b.PlannedStart.Equal(day0.AddDays(3)) {
		t.Errorf("applied B start = %s, want %s", b.PlannedStart, day0.AddDays(3))
	}

	_, err := e.PlanStored(context.Background(), repo, "nope", false)
	if !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPlanAllStored_AppliesOnlySuccesses(t *testing.T) {
	t.Parallel()
	repo := newMemRepo(
		snapshot("good", crewTask("A", 2, 1)),
		snapshot("bad", schedule.Task{ID: "X", PlannedDurationDays: 1, Predecessors: []string{"X"}}),
	)
	out, err := newEngine(t).PlanAllStored(context.Background(), repo, true)
	if err != nil {
		t.Fatalf("PlanAllStored: %v", err)
	}
	if len(out) != 2 || out[0].ProjectID != "bad" || out[0].Err == nil || out[1].Err != nil {
		t.Fatalf("outcomes = %+v", out)
	}
	if _, ok := repo.applied["bad"]; ok {
		t.Error("failed project was applied")
	}
	if len(repo.applied["good"]) != 1 {
		t.Errorf("good applied = %v", repo.applied["good"])
	}
}

func TestOptionsFromDefaults(t *testing.T) {
	t.Parallel()
	e := New(Options{})
	if e.opts.Workers != 4 || e.opts.Limits != conflict.DefaultLimits() || e.Baselines() == nil {
		t.Errorf("defaults not applied: %+v", e.opts)
	}
}
