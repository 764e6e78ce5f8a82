package schedule

import (
	"cmp"
	"fmt"
	"slices"
)

// DependencyType selects which endpoints of two tasks an edge links.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

// ParseDependencyType accepts the long names and the FS/SS/FF/SF shorthands.
// The empty string means finish-to-start.
func ParseDependencyType(s string) (DependencyType, error) {
	switch s {
	case "", "FS", "fs", string(FinishToStart):
		return FinishToStart, nil
	case "SS", "ss", string(StartToStart):
		return StartToStart, nil
	case "FF", "ff", string(FinishToFinish):
		return FinishToFinish, nil
	case "SF", "sf", string(StartToFinish):
		return StartToFinish, nil
	}
	return "", &ValidationError{Category: ValCatBoundsViolation, Field: "type", Reason: fmt.Sprintf("unknown dependency type %q", s)}
}

// Edge is a dependency: Successor is constrained by Predecessor.
type Edge struct {
	Predecessor string         `json:"predecessor_id"`
	Successor   string         `json:"successor_id"`
	LagDays     int            `json:"lag_days"`
	Type        DependencyType `json:"dependency_type"`
}

// String renders the edge as "pred -> succ".
func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.Predecessor, e.Successor)
}

// Kind returns the edge type, defaulting to finish-to-start.
func (e Edge) Kind() DependencyType {
	if e.Type == "" {
		return FinishToStart
	}
	return e.Type
}

// StartBound returns the earliest start the edge permits for a successor of
// duration dur, given the predecessor's start and finish offsets.
func (e Edge) StartBound(predStart, predFinish, dur int) int {
	switch e.Kind() {
	case StartToStart:
		return predStart + e.LagDays
	case FinishToFinish:
		return predFinish + e.LagDays - dur
	case StartToFinish:
		return predStart + e.LagDays - dur
	default:
		return predFinish + e.LagDays
	}
}

// FinishBound returns the latest finish the edge permits for a predecessor
// of duration dur, given the successor's latest start and finish offsets.
func (e Edge) FinishBound(succStart, succFinish, dur int) int {
	switch e.Kind() {
	case StartToStart:
		return succStart - e.LagDays + dur
	case FinishToFinish:
		return succFinish - e.LagDays
	case StartToFinish:
		return succFinish - e.LagDays + dur
	default:
		return succStart - e.LagDays
	}
}

// Anchors picks the predecessor and successor endpoints the edge relates:
// start or finish of each side depending on the type.
func (e Edge) Anchors(predStart, predFinish, succStart, succFinish Date) (pred, succ Date) {
	switch e.Kind() {
	case StartToStart:
		return predStart, succStart
	case FinishToFinish:
		return predFinish, succFinish
	case StartToFinish:
		return predStart, succFinish
	default:
		return predFinish, succStart
	}
}

// MergeEdges combines explicit edges with the finish-to-start edges implied
// by each task's predecessor and successor lists. Explicit edges win for a
// given pair, and the result is sorted by (predecessor, successor). Pairs
// referencing unknown tasks are kept so validation can report them.
func MergeEdges(tasks []Task, explicit []Edge) []Edge {
	type pair struct{ from, to string }
	seen := make(map[pair]bool, len(explicit))
	out := make([]Edge, 0, len(explicit))
	for _, e := range explicit {
		seen[pair{e.Predecessor, e.Successor}] = true
		out = append(out, e)
	}
	lag := make(map[string]int, len(tasks))
	for _, t := range tasks {
		lag[t.ID] = t.LagDays
	}
	add := func(from, to string, lagDays int) {
		p := pair{from, to}
		if seen[p] {
			return
		}
		seen[p] = true
		out = append(out, Edge{Predecessor: from, Successor: to, LagDays: lagDays, Type: FinishToStart})
	}
	for _, t := range tasks {
		for _, pred := range t.Predecessors {
			add(pred, t.ID, t.LagDays)
		}
		for _, succ := range t.Successors {
			add(t.ID, succ, lag[succ])
		}
	}
	slices.SortStableFunc(out, func(a, b Edge) int {
		if c := cmp.Compare(a.Predecessor, b.Predecessor); c != 0 {
			return c
		}
		return cmp.Compare(a.Successor, b.Successor)
	})
	return out
}
