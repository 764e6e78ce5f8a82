package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/engine"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var _ engine.Repository = (*SQLiteStore)(nil)

// testStore creates a temporary SQLite store and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "parsec.db")
	s, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot() schedule.Snapshot {
	return schedule.Snapshot{
		Project: schedule.Project{
			ID:       "p1",
			Name:     "Warehouse",
			Start:    schedule.MustDate("2024-01-01"),
			End:      schedule.MustDate("2024-02-01"),
			Budget:   decimal.RequireFromString("1500.50"),
			Capacity: schedule.Capacity{"crane": 1},
		},
		Tasks: []schedule.Task{
			{
				ID: "A", ProjectID: "p1", Name: "Foundation", Status: schedule.StatusInProgress,
				PlannedStart: schedule.MustDate("2024-01-01"), PlannedEnd: schedule.MustDate("2024-01-05"), PlannedDurationDays: 4,
				Progress: 40, BudgetedCost: decimal.NewFromInt(1000), ActualCost: decimal.NewFromInt(300),
				AssignedTo: "ana", Demand: schedule.Demand{"crane": 1},
				CustomFields: schedule.Fields{"zone": schedule.StringValue("north"), "weight": schedule.NumberValue(2.5)},
			},
			{ID: "B", ProjectID: "p1", Name: "Frame", PlannedDurationDays: 3, Predecessors: []string{"A"}, BudgetedCost: decimal.NewFromInt(500)},
		},
		Edges:       []schedule.Edge{{Predecessor: "A", Successor: "B", LagDays: 1, Type: schedule.StartToStart}},
		Constraints: []schedule.Constraint{schedule.FinishBefore("B", schedule.MustDate("2024-01-20")), schedule.ResourceLimit("crane", 1)},
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
	for _, table := range []string{"projects", "tasks", "dependencies", "constraints", "baselines", "baseline_audit"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not created: %v", table, err)
		}
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	want := sampleSnapshot()

	if err := s.SaveSnapshot(ctx, want); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := s.LoadSnapshot(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveSnapshot_ReplacesPreviousContent(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	snap := sampleSnapshot()
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap.Tasks = snap.Tasks[:1]
	snap.Edges, snap.Constraints = nil, nil
	snap.Project.Name = "Warehouse v2"
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot again: %v", err)
	}
	got, err := s.LoadSnapshot(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(got.Tasks) != 1 || len(got.Edges) != 0 || len(got.Constraints) != 0 || got.Project.Name != "Warehouse v2" {
		t.Errorf("got %d tasks, %d edges, %d constraints, name %q", len(got.Tasks), len(got.Edges), len(got.Constraints), got.Project.Name)
	}
}

func TestSaveSnapshot_RequiresProjectID(t *testing.T) {
	t.Parallel()
	err := testStore(t).SaveSnapshot(context.Background(), schedule.Snapshot{})
	if !errors.Is(err, schedule.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestLoadSnapshot_NotFound(t *testing.T) {
	t.Parallel()
	_, err := testStore(t).LoadSnapshot(context.Background(), "ghost")
	if !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("updates every task", func(t *testing.T) {
		t.Parallel()
		s := testStore(t)
		if err := s.SaveSnapshot(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
		tasks := sampleSnapshot().Tasks
		tasks[1].PlannedStart = schedule.MustDate("2024-01-06")
		tasks[1].IsCriticalPath = true
		if err := s.ApplyTasks(ctx, "p1", tasks); err != nil {
			t.Fatalf("ApplyTasks: %v", err)
		}
		got, _ := s.LoadSnapshot(ctx, "p1")
		if b := got.Tasks[1]; !b.PlannedStart.Equal(schedule.MustDate("2024-01-06")) || !b.IsCriticalPath {
			t.Errorf("B = %+v", b)
		}
	})

	t.Run("unknown task rolls back", func(t *testing.T) {
		t.Parallel()
		s := testStore(t)
		if err := s.SaveSnapshot(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
		tasks := sampleSnapshot().Tasks
		tasks[0].Name = "changed"
		tasks = append(tasks, schedule.Task{ID: "ghost"})
		err := s.ApplyTasks(ctx, "p1", tasks)
		if !errors.Is(err, schedule.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		got, _ := s.LoadSnapshot(ctx, "p1")
		if got.Tasks[0].Name != "Foundation" {
			t.Errorf("A name = %q, want the update rolled back", got.Tasks[0].Name)
		}
	})
}

func TestProjects(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	for _, id := range []string{"zeta", "alpha"} {
		snap := sampleSnapshot()
		snap.Project.ID = id
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot(%s): %v", id, err)
		}
	}

	ids, err := s.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, ids); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	infos, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(infos) != 2 || infos[0].Tasks != 2 || infos[0].UpdatedAt.IsZero() {
		t.Errorf("infos = %+v", infos)
	}

	if err := s.DeleteProject(ctx, "alpha"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tasks WHERE project_id = 'alpha'").Scan(&n); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if n != 0 {
		t.Errorf("%d tasks left after delete, want cascade", n)
	}
	if err := s.DeleteProject(ctx, "alpha"); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestBaselineStore(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	clock := schedule.FixedClock{At: time.Date(2024, 3, 1, 14, 30, 5, 0, time.UTC)}
	m := baseline.NewManager(s, clock, nil)
	tasks := sampleSnapshot().Tasks

	first, err := m.Create(ctx, tasks, baseline.CreateRequest{ProjectID: "p1", Name: "Kickoff", CreatedBy: "ana"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := m.Create(ctx, tasks, baseline.CreateRequest{ProjectID: "p1", Name: "Replan"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Version != "BL_20240301_143005_1" || second.Version != "BL_20240301_143005_2" {
		t.Errorf("versions = %s, %s", first.Version, second.Version)
	}

	got, err := s.Get(ctx, first.Version)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(first, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("baseline mismatch (-want +got):\n%s", diff)
	}

	list, err := s.List(ctx, "p1")
	if err != nil || len(list) != 2 || list[1].Version != second.Version {
		t.Fatalf("List = %v, %v", list, err)
	}
	if others, _ := s.List(ctx, "p2"); len(others) != 0 {
		t.Errorf("List(p2) = %v", others)
	}

	changed := tasks[0].Clone()
	changed.BudgetedCost = decimal.NewFromInt(1500)
	res, err := m.Restore(ctx, changed, first.Version, []string{"budgeted_cost"}, "ana")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !res.Task.BudgetedCost.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("restored cost = %s", res.Task.BudgetedCost)
	}
	audit, err := s.Audit(ctx, "A")
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(audit) != 1 || audit[0].Action != baseline.ActionRestore || audit[0].Actor != "ana" || len(audit[0].Changes) != 1 {
		t.Errorf("audit = %+v", audit)
	}

	if err := s.Delete(ctx, first.Version); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, first.Version); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := s.Delete(ctx, first.Version); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestBaselineStore_SequenceSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parsec.db")
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s1, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s1.Insert(ctx, baseline.Baseline{ProjectID: "p1", Name: "one", CreatedAt: at}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s1.Close()

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	b, err := s2.Insert(ctx, baseline.Baseline{ProjectID: "p1", Name: "two", CreatedAt: at})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if b.Sequence != 2 || b.Version != "BL_20240301_090000_2" {
		t.Errorf("sequence=%d version=%s", b.Sequence, b.Version)
	}
}

func TestPlanStored_AppliesSchedule(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	snap := sampleSnapshot()
	snap.Project.Capacity = nil
	snap.Constraints = nil
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	opts := engine.DefaultOptions()
	opts.Clock = schedule.FixedClock{At: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)}
	opts.Baselines = s
	if _, err := engine.New(opts).PlanStored(ctx, s, "p1", true); err != nil {
		t.Fatalf("PlanStored: %v", err)
	}
	got, err := s.LoadSnapshot(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	// The explicit start-to-start edge replaces the finish-to-start implied
	// by B's predecessor list.
	if b := got.Tasks[1]; !b.PlannedStart.Equal(schedule.MustDate("2024-01-02")) || !b.IsCriticalPath {
		t.Errorf("B start=%s critical=%v", b.PlannedStart, b.IsCriticalPath)
	}
}
