package baseline

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/parsec/internal/schedule"
)

func TestRestore_DurationMovesPlannedEnd(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	task := costed("A", 1000)
	b := mustCreate(t, m, []schedule.Task{task}, "kickoff")

	task.PlannedEnd = schedule.MustDate("2024-01-10")
	task.PlannedDurationDays = 9

	res, err := m.Restore(context.Background(), task, b.Version, []string{"planned_duration_days"}, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Task.Duration(); got != 5 {
		t.Errorf("duration after restore = %d, want 5", got)
	}
	if !res.Task.PlannedEnd.Equal(schedule.MustDate("2024-01-06")) {
		t.Errorf("planned end = %s, want 2024-01-06", res.Task.PlannedEnd)
	}
	var names []string
	for _, r := range res.Restored {
		names = append(names, r.Field)
	}
	if diff := cmp.Diff([]string{"planned_duration_days", "planned_end_date"}, names); diff != "" {
		t.Errorf("restored fields (-want +got):\n%s", diff)
	}

	c, err := m.Compare(context.Background(), res.Task, b.Version)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Changes) != 0 {
		t.Errorf("changes after duration restore: %+v", c.Changes)
	}
}

func TestRestore_DurationWithoutStartKeepsEndUnset(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	task := schedule.Task{ID: "A", ProjectID: "P1", Name: "Task A", PlannedDurationDays: 3}
	b := mustCreate(t, m, []schedule.Task{task}, "kickoff")

	task.PlannedDurationDays = 8
	res, err := m.Restore(context.Background(), task, b.Version, []string{"planned_duration_days"}, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if res.Task.PlannedDurationDays != 3 || !res.Task.PlannedEnd.IsZero() {
		t.Errorf("restored task = %d days ending %s, want 3 days and no end", res.Task.PlannedDurationDays, res.Task.PlannedEnd)
	}
	if len(res.Restored) != 1 {
		t.Errorf("restored = %+v, want only the duration", res.Restored)
	}
}
