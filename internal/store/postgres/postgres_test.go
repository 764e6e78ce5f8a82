package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/engine"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var _ engine.Repository = (*PGStore)(nil)

// testStore connects to PARSEC_TEST_DATABASE_URL with a fresh schema. Tests
// using it share one database, so they run sequentially.
func testStore(t *testing.T) *PGStore {
	t.Helper()
	dsn := os.Getenv("PARSEC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PARSEC_TEST_DATABASE_URL not set; skipping Postgres tests")
	}
	ctx := context.Background()
	s, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.DropSchema(ctx); err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if err := s.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DropSchema(context.Background())
		s.Close()
	})
	return s
}

func sampleSnapshot() schedule.Snapshot {
	return schedule.Snapshot{
		Project: schedule.Project{
			ID: "p1", Name: "Warehouse",
			Start: schedule.MustDate("2024-01-01"), End: schedule.MustDate("2024-02-01"),
			Budget: decimal.RequireFromString("1500.50"), Capacity: schedule.Capacity{"crane": 1},
		},
		Tasks: []schedule.Task{
			{ID: "A", ProjectID: "p1", Name: "Foundation", PlannedStart: schedule.MustDate("2024-01-01"), PlannedEnd: schedule.MustDate("2024-01-05"),
				PlannedDurationDays: 4, BudgetedCost: decimal.NewFromInt(1000), Demand: schedule.Demand{"crane": 1}},
			{ID: "B", ProjectID: "p1", Name: "Frame", PlannedDurationDays: 3, Predecessors: []string{"A"}},
		},
		Edges:       []schedule.Edge{{Predecessor: "A", Successor: "B", LagDays: 2, Type: schedule.FinishToStart}},
		Constraints: []schedule.Constraint{schedule.MaxDuration("B", 5)},
	}
}

func TestPGStore_Snapshots(t *testing.T) {
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

	if _, err := s.LoadSnapshot(ctx, "ghost"); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("LoadSnapshot(ghost) err = %v", err)
	}

	tasks := append(want.Tasks, schedule.Task{ID: "ghost"})
	if err := s.ApplyTasks(ctx, "p1", tasks); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("ApplyTasks with unknown task err = %v", err)
	}

	ids, err := s.Projects(ctx)
	if err != nil || !cmp.Equal(ids, []string{"p1"}) {
		t.Errorf("Projects = %v, %v", ids, err)
	}
	if err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if err := s.DeleteProject(ctx, "p1"); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("second DeleteProject err = %v", err)
	}
}

func TestPGStore_Baselines(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := baseline.NewManager(s, schedule.FixedClock{At: time.Date(2024, 3, 1, 14, 30, 5, 0, time.UTC)}, nil)

	b, err := m.Create(ctx, sampleSnapshot().Tasks, baseline.CreateRequest{ProjectID: "p1", Name: "Kickoff"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Version != "BL_20240301_143005_1" {
		t.Errorf("version = %s", b.Version)
	}
	got, err := s.Get(ctx, b.Version)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(b, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("baseline mismatch (-want +got):\n%s", diff)
	}

	changed := sampleSnapshot().Tasks[0]
	changed.Name = "Renamed"
	if _, err := m.Restore(ctx, changed, b.Version, []string{"name"}, "ana"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	audit, err := s.Audit(ctx, "A")
	if err != nil || len(audit) != 1 {
		t.Fatalf("Audit = %v, %v", audit, err)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 1 {
		t.Fatalf("List = %v, %v", all, err)
	}
	if err := s.Delete(ctx, b.Version); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, b.Version); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}
