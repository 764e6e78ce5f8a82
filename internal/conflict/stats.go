package conflict

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// mostAffectedLimit caps Statistics.MostAffected.
const mostAffectedLimit = 5

// TaskCount pairs a task with the number of conflicts it appears in.
type TaskCount struct {
	TaskID string `json:"task_id"`
	Count  int    `json:"conflict_count"`
}

// Statistics aggregates a conflict list.
type Statistics struct {
	Total        int              `json:"total_conflicts"`
	ByType       map[Type]int     `json:"conflicts_by_type"`
	BySeverity   map[Severity]int `json:"conflicts_by_severity"`
	MostAffected []TaskCount      `json:"most_affected_tasks"`
}

// Stats counts conflicts by type and severity and ranks the tasks involved
// in the most conflicts.
func Stats(conflicts []Conflict) Statistics {
	s := Statistics{
		Total:      len(conflicts),
		ByType:     make(map[Type]int),
		BySeverity: make(map[Severity]int),
	}
	perTask := make(map[string]int)
	for _, c := range conflicts {
		s.ByType[c.Type]++
		s.BySeverity[c.Severity]++
		for _, id := range c.TaskIDs {
			perTask[id]++
		}
	}
	for id, n := range perTask {
		s.MostAffected = append(s.MostAffected, TaskCount{TaskID: id, Count: n})
	}
	slices.SortFunc(s.MostAffected, func(a, b TaskCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskID, b.TaskID)
	})
	if len(s.MostAffected) > mostAffectedLimit {
		s.MostAffected = s.MostAffected[:mostAffectedLimit]
	}
	return s
}

// Summary renders a one-line description of a conflict list.
func Summary(conflicts []Conflict) string {
	if len(conflicts) == 0 {
		return "No conflicts detected."
	}
	st := Stats(conflicts)
	var sev []string
	for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		if n := st.BySeverity[s]; n > 0 {
			sev = append(sev, fmt.Sprintf("%d %s", n, s))
		}
	}
	types := make([]Type, 0, len(st.ByType))
	for t := range st.ByType {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b Type) int {
		if c := cmp.Compare(st.ByType[b], st.ByType[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return fmt.Sprintf("Detected %d conflict(s) (%s); most common: %s (%d)",
		st.Total, strings.Join(sev, ", "), types[0], st.ByType[types[0]])
}
