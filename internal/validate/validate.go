// Package validate checks a task dependency graph before it is scheduled:
// cycles, dangling and self references, duplicate edges, logical warnings
// and an approximate longest chain.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/papapumpkin/parsec/internal/dag"
	"github.com/papapumpkin/parsec/internal/schedule"
)

// MaxPredecessors is the fan-in above which a task draws a warning.
const MaxPredecessors = 10

// Issue names why an edge was rejected.
type Issue string

// Edge issues.
const (
	IssuePredecessorNotFound Issue = "predecessor_task_not_found"
	IssueSuccessorNotFound   Issue = "successor_task_not_found"
	IssueSelfDependency      Issue = "self_dependency"
)

// InvalidEdge pairs a rejected edge with the reason.
type InvalidEdge struct {
	Edge  schedule.Edge `json:"edge"`
	Issue Issue         `json:"issue"`
}

// Result is the outcome of validating a dependency graph.
type Result struct {
	IsValid         bool            `json:"is_valid"`
	Errors          []string        `json:"errors"`
	Warnings        []string        `json:"warnings"`
	Cycles          [][]string      `json:"cycles"`
	InvalidEdges    []InvalidEdge   `json:"invalid_dependencies"`
	DuplicateEdges  []schedule.Edge `json:"duplicate_dependencies,omitempty"`
	LongestPath     []string        `json:"longest_path,omitempty"`
	LongestPathDays int             `json:"longest_path_days"`
}

// GraphError reports why a graph cannot be scheduled.
type GraphError struct {
	Cycles       [][]string
	InvalidEdges []InvalidEdge
}

// Error lists every cycle and rejected edge.
func (e *GraphError) Error() string {
	var parts []string
	for _, c := range e.Cycles {
		parts = append(parts, "cycle "+strings.Join(c, " -> "))
	}
	for _, ie := range e.InvalidEdges {
		parts = append(parts, fmt.Sprintf("%s (%s)", ie.Edge, ie.Issue))
	}
	return schedule.ErrInvalidGraph.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap returns ErrInvalidGraph so callers can use errors.Is.
func (e *GraphError) Unwrap() error {
	return schedule.ErrInvalidGraph
}

// Err returns a *GraphError when the result is invalid, nil otherwise.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &GraphError{Cycles: r.Cycles, InvalidEdges: r.InvalidEdges}
}

// Validate checks tasks and edges. It never fails; problems are reported
// in the result. Only cycles, dangling references and self references make
// the graph invalid. Duplicates and logical issues are warnings.
func Validate(tasks []schedule.Task, edges []schedule.Edge) Result {
	res := Result{
		Errors:       []string{},
		Warnings:     []string{},
		Cycles:       [][]string{},
		InvalidEdges: []InvalidEdge{},
	}

	g := dag.New()
	byID := make(map[string]schedule.Task, len(tasks))
	for _, t := range tasks {
		if err := g.AddNode(t.ID, t.Duration()); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate task id %s", t.ID))
			continue
		}
		byID[t.ID] = t
	}

	for _, e := range edges {
		err := g.AddEdge(e)
		switch {
		case err == nil:
		case errors.Is(err, dag.ErrSelfEdge):
			res.InvalidEdges = append(res.InvalidEdges, InvalidEdge{Edge: e, Issue: IssueSelfDependency})
			res.Errors = append(res.Errors, fmt.Sprintf("task %s depends on itself", e.Predecessor))
		case errors.Is(err, dag.ErrNodeNotFound):
			issue := IssueSuccessorNotFound
			missing := e.Successor
			if _, ok := byID[e.Predecessor]; !ok {
				issue, missing = IssuePredecessorNotFound, e.Predecessor
			}
			res.InvalidEdges = append(res.InvalidEdges, InvalidEdge{Edge: e, Issue: issue})
			res.Errors = append(res.Errors, fmt.Sprintf("dependency %s references unknown task %s", e, missing))
		case errors.Is(err, dag.ErrDuplicateEdge):
			res.DuplicateEdges = append(res.DuplicateEdges, e)
			res.Warnings = append(res.Warnings, fmt.Sprintf("duplicate dependency %s ignored", e))
		default:
			res.Errors = append(res.Errors, err.Error())
		}
	}

	for _, cycle := range g.Cycles() {
		res.Cycles = append(res.Cycles, cycle)
		res.Errors = append(res.Errors, "circular dependency: "+strings.Join(cycle, " -> "))
	}

	res.Warnings = append(res.Warnings, logicalWarnings(g, byID)...)

	if len(res.Cycles) == 0 {
		if path, days, err := g.LongestPath(); err == nil {
			res.LongestPath = path
			res.LongestPathDays = days
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// logicalWarnings flags heavy fan-in and planned dates that contradict a
// finish-to-start dependency.
func logicalWarnings(g *dag.Graph, byID map[string]schedule.Task) []string {
	var out []string
	for _, id := range g.IDs() {
		i, _ := g.Index(id)
		preds := g.In(i)
		if len(preds) > MaxPredecessors {
			out = append(out, fmt.Sprintf("task %s has %d predecessors; consider splitting it", id, len(preds)))
		}
		succ := byID[id]
		for _, a := range preds {
			pred := byID[g.ID(a.Node)]
			if a.Edge.Kind() != schedule.FinishToStart || pred.PlannedEnd.IsZero() || succ.PlannedStart.IsZero() {
				continue
			}
			earliest := pred.PlannedEnd.AddDays(a.Edge.LagDays)
			if succ.PlannedStart.Before(earliest) {
				out = append(out, fmt.Sprintf("task %s starts %s before predecessor %s allows (%s)",
					id, succ.PlannedStart, pred.ID, earliest))
			}
		}
	}
	return out
}
