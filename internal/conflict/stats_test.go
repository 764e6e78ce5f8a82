package conflict

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStats(t *testing.T) {
	t.Parallel()
	conflicts := []Conflict{
		{Type: TypeResourceOverlap, Severity: SeverityHigh, TaskIDs: []string{"A", "B"}},
		{Type: TypeResourceOverlap, Severity: SeverityMedium, TaskIDs: []string{"A", "C"}},
		{Type: TypeDeadlineViolation, Severity: SeverityHigh, TaskIDs: []string{"C"}},
		{Type: TypeCapacityViolation, Severity: SeverityMedium, TaskIDs: []string{"A"}},
		{Type: TypeCapacityViolation, Severity: SeverityMedium, TaskIDs: []string{"D"}},
		{Type: TypeCapacityViolation, Severity: SeverityMedium, TaskIDs: []string{"E"}},
		{Type: TypeCapacityViolation, Severity: SeverityMedium, TaskIDs: []string{"F"}},
	}
	want := Statistics{
		Total: 7,
		ByType: map[Type]int{
			TypeResourceOverlap:   2,
			TypeDeadlineViolation: 1,
			TypeCapacityViolation: 4,
		},
		BySeverity: map[Severity]int{SeverityHigh: 2, SeverityMedium: 5},
		MostAffected: []TaskCount{
			{TaskID: "A", Count: 3},
			{TaskID: "C", Count: 2},
			{TaskID: "B", Count: 1},
			{TaskID: "D", Count: 1},
			{TaskID: "E", Count: 1},
		},
	}
	if diff := cmp.Diff(want, Stats(conflicts)); diff != "" {
		t.Errorf("Stats (-want +got):\n%s", diff)
	}

	summary := Summary(conflicts)
	for _, part := range []string{"Detected 7 conflict(s)", "2 high, 5 medium", "most common: capacity_violation (4)"} {
		if !strings.Contains(summary, part) {
			t.Errorf("summary %q missing %q", summary, part)
		}
	}
	if got := Summary(nil); got != "No conflicts detected." {
		t.Errorf("Summary(nil) = %q", got)
	}
}
