package validate

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/papapumpkin/parsec/internal/schedule"
)

func tasks(ids ...string) []schedule.Task {
	out := make([]schedule.Task, len(ids))
	for i, id := range ids {
		out[i] = schedule.Task{ID: id, PlannedDurationDays: 1}
	}
	return out
}

func fs(from, to string) schedule.Edge {
	return schedule.Edge{Predecessor: from, Successor: to, Type: schedule.FinishToStart}
}

func TestValidate_ScenarioOneIsValid(t *testing.T) {
	t.Parallel()
	ts := []schedule.Task{
		{ID: "T1", PlannedStart: schedule.MustDate("2024-01-01"), PlannedEnd: schedule.MustDate("2024-01-05")},
		{ID: "T2", PlannedStart: schedule.MustDate("2024-01-05"), PlannedEnd: schedule.MustDate("2024-01-10")},
	}
	res := Validate(ts, []schedule.Edge{fs("T1", "T2")})
	if !res.IsValid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v, want nil", res.Err())
	}
	if !slices.Equal(res.LongestPath, []string{"T1", "T2"}) || res.LongestPathDays != 9 {
		t.Errorf("longest path = %v (%d days), want [T1 T2] (9)", res.LongestPath, res.LongestPathDays)
	}
}

func TestValidate_CycleReportsFullLoop(t *testing.T) {
	t.Parallel()
	res := Validate(tasks("A", "B", "C"), []schedule.Edge{fs("A", "B"), fs("B", "C"), fs("C", "A")})
	if res.IsValid {
		t.Fatal("expected invalid graph")
	}
	if len(res.Cycles) != 1 {
		t.Fatalf("cycles = %v, want exactly one", res.Cycles)
	}
	members := map[string]bool{}
	for _, id := range res.Cycles[0] {
		members[id] = true
	}
	if len(members) != 3 || !members["A"] || !members["B"] || !members["C"] {
		t.Errorf("cycle members = %v, want exactly {A,B,C}", res.Cycles[0])
	}
	if !errors.Is(res.Err(), schedule.ErrInvalidGraph) {
		t.Errorf("Err() = %v, want ErrInvalidGraph", res.Err())
	}
	var ge *GraphError
	if !errors.As(res.Err(), &ge) || len(ge.Cycles) != 1 {
		t.Errorf("expected *GraphError carrying the cycle, got %v", res.Err())
	}
	if res.LongestPath != nil {
		t.Errorf("longest path should be skipped on cyclic graphs, got %v", res.LongestPath)
	}
}

func TestValidate_InvalidEdges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		edge  schedule.Edge
		issue Issue
	}{
		{"unknown predecessor", fs("X", "A"), IssuePredecessorNotFound},
		{"unknown successor", fs("A", "X"), IssueSuccessorNotFound},
		{"self loop", fs("A", "A"), IssueSelfDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Validate(tasks("A", "B"), []schedule.Edge{tt.edge})
			if res.IsValid {
				t.Fatal("expected invalid")
			}
			if len(res.InvalidEdges) != 1 || res.InvalidEdges[0].Issue != tt.issue {
				t.Errorf("invalid edges = %+v, want one %s", res.InvalidEdges, tt.issue)
			}
			if !errors.Is(res.Err(), schedule.ErrInvalidGraph) {
				t.Errorf("Err() = %v, want ErrInvalidGraph", res.Err())
			}
		})
	}
}

func TestValidate_DuplicateIsWarning(t *testing.T) {
	t.Parallel()
	res := Validate(tasks("A", "B"), []schedule.Edge{fs("A", "B"), fs("A", "B")})
	if !res.IsValid {
		t.Fatalf("duplicates must not invalidate the graph: %v", res.Errors)
	}
	if len(res.Warnings) != 1 || len(res.DuplicateEdges) != 1 {
		t.Errorf("warnings = %v, duplicates = %v", res.Warnings, res.DuplicateEdges)
	}
}

func TestValidate_LogicalWarnings(t *testing.T) {
	t.Parallel()
	t.Run("date inconsistency", func(t *testing.T) {
		t.Parallel()
		ts := []schedule.Task{
			{ID: "A", PlannedStart: schedule.MustDate("2024-01-01"), PlannedEnd: schedule.MustDate("2024-01-10")},
			{ID: "B", PlannedStart: schedule.MustDate("2024-01-05"), PlannedEnd: schedule.MustDate("2024-01-12")},
		}
		res := Validate(ts, []schedule.Edge{fs("A", "B")})
		if !res.IsValid || len(res.Warnings) != 1 {
			t.Errorf("valid=%v warnings=%v, want valid with one warning", res.IsValid, res.Warnings)
		}
	})
	t.Run("heavy fan-in", func(t *testing.T) {
		t.Parallel()
		ids := []string{"sink"}
		var edges []schedule.Edge
		for i := range MaxPredecessors + 1 {
			id := fmt.Sprintf("p%02d", i)
			ids = append(ids, id)
			edges = append(edges, fs(id, "sink"))
		}
		res := Validate(tasks(ids...), edges)
		if !res.IsValid || len(res.Warnings) != 1 {
			t.Errorf("valid=%v warnings=%v, want valid with one warning", res.IsValid, res.Warnings)
		}
	})
}

func TestSuggestFixes(t *testing.T) {
	t.Parallel()
	res := Validate(tasks("A", "B"), []schedule.Edge{
		fs("A", "B"), fs("B", "A"), fs("A", "A"), fs("A", "Z"), fs("A", "B"),
	})
	fixes := SuggestFixes(res)
	kinds := map[FixKind]int{}
	for _, f := range fixes {
		kinds[f.Kind]++
		if f.Description == "" {
			t.Errorf("fix %v has no description", f)
		}
	}
	want := map[FixKind]int{FixRemoveCircular: 1, FixRemoveSelf: 1, FixRemoveInvalid: 1, FixRemoveDuplicate: 1}
	for k, n := range want {
		if kinds[k] != n {
			t.Errorf("fix %s count = %d, want %d (all: %v)", k, kinds[k], n, fixes)
		}
	}
	for _, f := range fixes {
		if f.Kind == FixRemoveCircular && (f.Edge.Predecessor != "B" || f.Edge.Successor != "A") {
			t.Errorf("closing edge = %s, want B -> A", f.Edge)
		}
	}
}
