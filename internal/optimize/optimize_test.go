package optimize

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var day0 = schedule.MustDate("2024-01-01")

func newOptimizer(budget Budget) *Optimizer {
	return New(budget, cpm.DefaultOptions(day0), nil)
}

func crewTask(id string, dur, crew int) schedule.Task {
	return schedule.Task{ID: id, Name: id, PlannedStart: day0, PlannedDurationDays: dur, Demand: schedule.Demand{"crew": crew}}
}

func assignment(t *testing.T, res []Assignment, id string) Assignment {
	t.Helper()
	for _, a := range res {
		if a.TaskID == id {
			return a
		}
	}
	t.Fatalf("no assignment for %s", id)
	return Assignment{}
}

func TestLevel_SerializesSharedResource(t *testing.T) {
	t.Parallel()
	tasks := []schedule.Task{crewTask("A", 3, 1), crewTask("B", 2, 1)}
	res, err := newOptimizer(DefaultBudget()).Level(context.Background(), tasks, nil, schedule.Capacity{"crew": 1})
	if err != nil {
		t.Fatalf("Level: %v", err)
	}
	if !res.SolutionFound || res.Approximate {
		t.Fatalf("solution_found=%v approximate=%v reason=%v", res.SolutionFound, res.Approximate, res.Reason)
	}
	if res.MakespanDays != 5 {
		t.Errorf("makespan = %d, want 5", res.MakespanDays)
	}
	a, b := assignment(t, res.Schedule, "A"), assignment(t, res.Schedule, "B")
	if !b.Start.Equal(day0) || !a.Start.Equal(day0.AddDays(2)) {
		t.Errorf("A starts %s, B starts %s; want B first then A", a.Start, b.Start)
	}
	if res.TotalDelayDays != 2 {
		t.Errorf("total delay = %d, want 2", res.TotalDelayDays)
	}
	if res.OptimizationScore != 0.967 {
		t.Errorf("score = %v, want 0.967", res.OptimizationScore)
	}
	samples := res.Utilization["crew"]
	if len(samples) != 5 {
		t.Fatalf("utilization samples = %d, want 5", len(samples))
	}
	for _, s := range samples {
		if s.Usage != 1 || s.Percent != 100 {
			t.Errorf("sample %s = %+v, want full single use", s.Date, s)
		}
	}
}

func TestLevel_NothingToMoveScoresOne(t *testing.T) {
	t.Parallel()
	tasks := []schedule.Task{crewTask("A", 3, 1), crewTask("B", 2, 1)}
	res, err := newOptimizer(DefaultBudget()).Level(context.Background(), tasks, nil, schedule.Capacity{"crew": 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalDelayDays != 0 || res.OptimizationScore != 1 {
		t.Errorf("delay=%d score=%v, want 0 and 1", res.TotalDelayDays, res.OptimizationScore)
	}
}

func TestOptimize_RandomInstancesSatisfyConstraints(t *testing.T) {
	t.Parallel()
	for seed := range uint64(20) {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			t.Parallel()
			r := rand.New(rand.NewPCG(seed, 3))
			tasks, edges := randomProject(r, 25)
			capacity := schedule.Capacity{"crew": 3, "crane": 1}

			res, err := newOptimizer(DefaultBudget()).Optimize(context.Background(), tasks, edges, capacity, nil, GoalMinimizeDuration)
			if err != nil {
				t.Fatalf("Optimize: %v", err)
			}
			if !res.SolutionFound {
				t.Fatalf("no solution: %v", res.Reason)
			}
			checkPrecedence(t, res, edges)
			checkCapacity(t, res, tasks, capacity)
		})
	}
}

func randomProject(r *rand.Rand, n int) ([]schedule.Task, []schedule.Edge) {
	tasks := make([]schedule.Task, n)
	var edges []schedule.Edge
	types := []schedule.DependencyType{schedule.FinishToStart, schedule.StartToStart, schedule.FinishToFinish}
	for i := range n {
		tasks[i] = schedule.Task{
			ID:                  fmt.Sprintf("t%02d", i),
			PlannedStart:        day0,
			PlannedDurationDays: 1 + r.IntN(5),
			Demand:              schedule.Demand{"crew": r.IntN(4), "crane": r.IntN(2)},
		}
		for j := range i {
			if r.IntN(6) == 0 {
				edges = append(edges, schedule.Edge{
					Predecessor: tasks[j].ID, Successor: tasks[i].ID,
					LagDays: r.IntN(3), Type: types[r.IntN(len(types))],
				})
			}
		}
	}
	return tasks, edges
}

func checkPrecedence(t *testing.T, res *Result, edges []schedule.Edge) {
	t.Helper()
	byID := map[string]Assignment{}
	for _, a := range res.Schedule {
		byID[a.TaskID] = a
	}
	for _, e := range edges {
		p, s := byID[e.Predecessor], byID[e.Successor]
		dur := s.Start.DaysUntil(s.End)
		bound := e.StartBound(day0.DaysUntil(p.Start), day0.DaysUntil(p.End), dur)
		if day0.DaysUntil(s.Start) < bound {
			t.Errorf("edge %s (%s, lag %d) violated: successor at %s", e, e.Kind(), e.LagDays, s.Start)
		}
	}
}

func checkCapacity(t *testing.T, res *Result, tasks []schedule.Task, capacity schedule.Capacity) {
	t.Helper()
	demand := map[string]schedule.Demand{}
	for _, tk := range tasks {
		demand[tk.ID] = tk.Demand
	}
	usage := map[string]map[string]int{}
	for _, a := range res.Schedule {
		for d := a.Start; d.Before(a.End); d = d.AddDays(1) {
			for resName, units := range demand[a.TaskID] {
				if usage[resName] == nil {
					usage[resName] = map[string]int{}
				}
				usage[resName][d.String()] += units
				if usage[resName][d.String()] > capacity[resName] {
					t.Fatalf("%s over capacity on %s", resName, d)
				}
			}
		}
	}
}

func TestOptimize_FallsBackWhenInfeasible(t *testing.T) {
	t.Parallel()
	tasks := []schedule.Task{crewTask("A", 3, 1), crewTask("B", 2, 1)}
	edges := []schedule.Edge{{Predecessor: "A", Successor: "B"}}

	tests := []struct {
		name        string
		capacity    schedule.Capacity
		constraints []schedule.Constraint
	}{
		{"demand above capacity", schedule.Capacity{"crew": 0}, nil},
		{"deadline too early", nil, []schedule.Constraint{schedule.FinishBefore("B", day0.AddDays(4))}},
		{"duration over maximum", nil, []schedule.Constraint{schedule.MaxDuration("A", 2)}},
		{"resource limit zero", schedule.Capacity{"crew": 2}, []schedule.Constraint{schedule.ResourceLimit("crew", 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := newOptimizer(DefaultBudget()).Optimize(context.Background(), tasks, edges, tt.capacity, tt.constraints, GoalMinimizeDuration)
			if err != nil {
				t.Fatalf("Optimize returned error %v, want fallback", err)
			}
			if res.SolutionFound || !res.Approximate || res.Status != StatusInfeasible {
				t.Errorf("solution_found=%v approximate=%v status=%s", res.SolutionFound, res.Approximate, res.Status)
			}
			if !errors.Is(res.Reason, schedule.ErrInfeasibleOrTimedOut) {
				t.Errorf("reason = %v, want ErrInfeasibleOrTimedOut", res.Reason)
			}
			if res.Method != cpm.MethodForwardBackward {
				t.Errorf("method = %q", res.Method)
			}
			b := assignment(t, res.Schedule, "B")
			if !b.Start.Equal(day0.AddDays(3)) {
				t.Errorf("fallback B starts %s, want CPM start %s", b.Start, day0.AddDays(3))
			}
		})
	}
}

func TestOptimize_BudgetExhaustion(t *testing.T) {
	t.Parallel()
	tasks := []schedule.Task{crewTask("A", 3, 1), crewTask("B", 2, 1), crewTask("C", 2, 1)}
	capacity := schedule.Capacity{"crew": 1}

	t.Run("step limit", func(t *testing.T) {
		t.Parallel()
		budget := DefaultBudget()
		budget.MaxSteps = 1
		res, err := newOptimizer(budget).Optimize(context.Background(), tasks, nil, capacity, nil, GoalMinimizeDuration)
		if err != nil {
			t.Fatal(err)
		}
		if res.SolutionFound || res.Status != StatusTimedOut || !res.Approximate {
			t.Errorf("status=%s solution_found=%v approximate=%v", res.Status, res.SolutionFound, res.Approximate)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		budget := DefaultBudget()
		budget.TimeLimit = time.Minute
		res, err := newOptimizer(budget).Optimize(ctx, tasks, nil, capacity, nil, GoalMinimizeDuration)
		if err != nil {
			t.Fatal(err)
		}
		if res.SolutionFound || res.Status != StatusCancelled || !errors.Is(res.Reason, schedule.ErrInfeasibleOrTimedOut) {
			t.Errorf("solution_found=%v status=%s reason=%v", res.SolutionFound, res.Status, res.Reason)
		}
	})
}

func TestOptimize_StartAfterShiftsTask(t *testing.T) {
	t.Parallel()
	tasks := []schedule.Task{crewTask("A", 2, 0), crewTask("B", 2, 0)}
	edges := []schedule.Edge{{Predecessor: "A", Successor: "B"}}
	constraints := []schedule.Constraint{schedule.StartAfter("A", day0.AddDays(5))}

	res, err := newOptimizer(DefaultBudget()).Optimize(context.Background(), tasks, edges, nil, constraints, GoalMinimizeDuration)
	if err != nil {
		t.Fatal(err)
	}
	a, b := assignment(t, res.Schedule, "A"), assignment(t, res.Schedule, "B")
	if !a.Start.Equal(day0.AddDays(5)) || !b.Start.Equal(day0.AddDays(7)) {
		t.Errorf("A=%s B=%s, want 2024-01-06 and 2024-01-08", a.Start, b.Start)
	}
	if res.ObjectiveValue != 9 {
		t.Errorf("objective = %v, want makespan 9", res.ObjectiveValue)
	}
	if len(res.OptimizedTasks) != 2 || !res.OptimizedTasks[1].PlannedEnd.Equal(day0.AddDays(9)) {
		t.Errorf("optimized tasks = %+v", res.OptimizedTasks)
	}
}

func TestOptimize_MinimizeCostObjective(t *testing.T) {
	t.Parallel()
	tasks := []schedule.Task{crewTask("A", 2, 1), crewTask("B", 2, 1)}
	tasks[0].BudgetedCost = decimal.NewFromInt(1200)
	tasks[1].BudgetedCost = decimal.RequireFromString("300.50")

	res, err := newOptimizer(DefaultBudget()).Optimize(context.Background(), tasks, nil, schedule.Capacity{"crew": 1}, nil, GoalMinimizeCost)
	if err != nil {
		t.Fatal(err)
	}
	if !res.SolutionFound || res.ObjectiveValue != 1500.5 {
		t.Errorf("solution_found=%v objective=%v, want 1500.5", res.SolutionFound, res.ObjectiveValue)
	}
	if res.MakespanDays != 4 {
		t.Errorf("makespan = %d, want 4", res.MakespanDays)
	}
}

func TestOptimize_Errors(t *testing.T) {
	t.Parallel()
	o := newOptimizer(DefaultBudget())
	ctx := context.Background()
	tasks := []schedule.Task{crewTask("A", 1, 0), crewTask("B", 1, 0)}

	if _, err := o.Optimize(ctx, tasks, []schedule.Edge{{Predecessor: "A", Successor: "B"}, {Predecessor: "B", Successor: "A"}}, nil, nil, GoalMinimizeDuration); !errors.Is(err, schedule.ErrInvalidGraph) {
		t.Errorf("cycle: got %v, want ErrInvalidGraph", err)
	}
	if _, err := o.Optimize(ctx, tasks, nil, nil, []schedule.Constraint{schedule.StartAfter("Z", day0)}, GoalMinimizeDuration); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("unknown task: got %v, want ErrNotFound", err)
	}
	if _, err := o.Optimize(ctx, tasks, nil, nil, nil, Goal("maximize_fun")); !errors.Is(err, schedule.ErrValidation) {
		t.Errorf("bad goal: got %v, want ErrValidation", err)
	}
	if _, err := o.Optimize(ctx, nil, nil, nil, nil, GoalMinimizeDuration); !errors.Is(err, schedule.ErrValidation) {
		t.Errorf("empty: got %v, want ErrValidation", err)
	}
}

func TestOptimize_ConcurrentCallsAreIndependent(t *testing.T) {
	t.Parallel()
	o := newOptimizer(DefaultBudget())
	tasks, edges := randomProject(rand.New(rand.NewPCG(42, 42)), 20)
	capacity := schedule.Capacity{"crew": 3, "crane": 1}

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for k := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Optimize(context.Background(), tasks, edges, capacity, nil, GoalMinimizeDuration)
			if err != nil {
				t.Errorf("call %d: %v", k, err)
				return
			}
			results[k] = res
		}()
	}
	wg.Wait()
	for k, res := range results {
		if res == nil || !res.SolutionFound {
			t.Fatalf("call %d found no solution", k)
		}
		checkPrecedence(t, res, edges)
		checkCapacity(t, res, tasks, capacity)
	}
}
