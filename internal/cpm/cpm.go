// Package cpm implements the Critical Path Method: a forward and a backward
// pass over a validated dependency graph producing earliest and latest
// dates, slack, the critical set, total duration and bottleneck hints.
package cpm

import (
	"cmp"
	"slices"

	"github.com/papapumpkin/parsec/internal/dag"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/validate"
)

// MethodForwardBackward tags results produced by the deterministic passes.
const MethodForwardBackward = "forward_backward_pass"

// Options tune a calculation. Today is the reference day used for tasks
// without predecessors or a planned start; it is never read from a clock
// here so identical inputs give identical results.
type Options struct {
	Today                   schedule.Date
	BottleneckMinSuccessors int
	BottleneckMaxSlack      int
}

// DefaultOptions returns the standard bottleneck thresholds.
func DefaultOptions(today schedule.Date) Options {
	return Options{Today: today, BottleneckMinSuccessors: 3, BottleneckMaxSlack: 1}
}

// TaskSchedule is the computed timing of one task.
type TaskSchedule struct {
	TaskID         string        `json:"task_id"`
	Name           string        `json:"name,omitempty"`
	EarliestStart  schedule.Date `json:"earliest_start"`
	EarliestFinish schedule.Date `json:"earliest_finish"`
	LatestStart    schedule.Date `json:"latest_start"`
	LatestFinish   schedule.Date `json:"latest_finish"`
	DurationDays   int           `json:"duration_days"`
	SlackDays      int           `json:"slack_days"`
	IsCritical     bool          `json:"is_critical"`
	Component      int           `json:"component"`
}

// Bottleneck is a task with heavy fan-out and little or no slack.
type Bottleneck struct {
	TaskID       string  `json:"task_id"`
	Name         string  `json:"name,omitempty"`
	Successors   int     `json:"successor_count"`
	Predecessors int     `json:"predecessor_count"`
	SlackDays    int     `json:"slack_days"`
	Severity     string  `json:"severity"`
	Impact       float64 `json:"impact"`
}

// Component is one independently scheduled connected subgraph.
type Component struct {
	TaskIDs      []string      `json:"task_ids"`
	CriticalPath []string      `json:"critical_path"`
	Start        schedule.Date `json:"start"`
	End          schedule.Date `json:"end"`
	DurationDays int           `json:"duration_days"`
}

// Result is the outcome of a CPM calculation.
type Result struct {
	CriticalPath      []string       `json:"critical_path"`
	TotalDurationDays int            `json:"total_duration_days"`
	ProjectStart      schedule.Date  `json:"project_start"`
	ProjectEnd        schedule.Date  `json:"project_end"`
	Schedules         []TaskSchedule `json:"schedules"`
	Bottlenecks       []Bottleneck   `json:"bottlenecks"`
	Components        []Component    `json:"components"`
	Method            string         `json:"method"`
	Approximate       bool           `json:"approximate"`

	index map[string]int
}

// Schedule returns the computed timing of a task.
func (r *Result) Schedule(id string) (TaskSchedule, bool) {
	if r.index == nil {
		for _, s := range r.Schedules {
			if s.TaskID == id {
				return s, true
			}
		}
		return TaskSchedule{}, false
	}
	i, ok := r.index[id]
	if !ok {
		return TaskSchedule{}, false
	}
	return r.Schedules[i], true
}

// ApplyTo returns copies of tasks with IsCriticalPath and SlackDays set.
// The input is not modified.
func (r *Result) ApplyTo(tasks []schedule.Task) []schedule.Task {
	out := schedule.CloneTasks(tasks)
	for i := range out {
		if s, ok := r.Schedule(out[i].ID); ok {
			out[i].IsCriticalPath = s.IsCritical
			out[i].SlackDays = s.SlackDays
		}
	}
	return out
}

// Calculate runs the critical path method. It fails with a validation
// error on malformed tasks and with ErrInvalidGraph when the dependency
// graph has cycles or bad references.
func Calculate(tasks []schedule.Task, edges []schedule.Edge, opts Options) (*Result, error) {
	if err := schedule.ValidateTasks(tasks); err != nil {
		return nil, err
	}
	if opts.BottleneckMinSuccessors <= 0 {
		defaults := DefaultOptions(opts.Today)
		opts.BottleneckMinSuccessors = defaults.BottleneckMinSuccessors
		if opts.BottleneckMaxSlack == 0 {
			opts.BottleneckMaxSlack = defaults.BottleneckMaxSlack
		}
	}
	if err := validate.Validate(tasks, edges).Err(); err != nil {
		return nil, err
	}
	g, err := dag.Build(tasks, edges)
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]schedule.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	epoch, err := epochOf(g, byID, opts.Today)
	if err != nil {
		return nil, err
	}

	p := newPasses(g)
	p.forward(order, func(i int) int {
		start := byID[g.ID(i)].PlannedStart
		if start.IsZero() {
			start = opts.Today
		}
		return epoch.DaysUntil(start)
	})

	res := &Result{Method: MethodForwardBackward, index: make(map[string]int, len(order))}
	componentOf := make([]int, g.Len())
	for c, members := range g.Components() {
		end := p.backward(members)
		comp := Component{End: epoch.AddDays(end)}
		minCriticalES := end
		startES := end
		for _, i := range members {
			componentOf[i] = c
			comp.TaskIDs = append(comp.TaskIDs, g.ID(i))
			startES = min(startES, p.es[i])
			if p.slack(i) <= 0 {
				comp.CriticalPath = append(comp.CriticalPath, g.ID(i))
				minCriticalES = min(minCriticalES, p.es[i])
			}
		}
		comp.Start = epoch.AddDays(startES)
		comp.DurationDays = end - minCriticalES
		res.Components = append(res.Components, comp)
		res.TotalDurationDays = max(res.TotalDurationDays, comp.DurationDays)
	}

	var first, last int
	for k, i := range order {
		s := TaskSchedule{
			TaskID:         g.ID(i),
			Name:           byID[g.ID(i)].Name,
			EarliestStart:  epoch.AddDays(p.es[i]),
			EarliestFinish: epoch.AddDays(p.ef[i]),
			LatestStart:    epoch.AddDays(p.ls[i]),
			LatestFinish:   epoch.AddDays(p.lf[i]),
			DurationDays:   g.Duration(i),
			SlackDays:      p.slack(i),
			IsCritical:     p.slack(i) <= 0,
			Component:      componentOf[i],
		}
		res.index[s.TaskID] = len(res.Schedules)
		res.Schedules = append(res.Schedules, s)
		if s.IsCritical {
			res.CriticalPath = append(res.CriticalPath, s.TaskID)
		}
		if k == 0 || p.es[i] < first {
			first = p.es[i]
		}
		if k == 0 || p.ef[i] > last {
			last = p.ef[i]
		}
	}
	res.ProjectStart = epoch.AddDays(first)
	res.ProjectEnd = epoch.AddDays(last)
	res.Bottlenecks = findBottlenecks(g, p, byID, opts)
	return res, nil
}

// epochOf picks the day all offsets are measured from: the earliest start
// among source tasks.
func epochOf(g *dag.Graph, byID map[string]schedule.Task, today schedule.Date) (schedule.Date, error) {
	var epoch schedule.Date
	for i := range g.Len() {
		if len(g.In(i)) > 0 {
			continue
		}
		start := byID[g.ID(i)].PlannedStart
		if start.IsZero() {
			if today.IsZero() {
				return schedule.Date{}, &schedule.ValidationError{
					Category: schedule.ValCatMissingField, TaskID: g.ID(i), Field: "planned_start_date",
					Reason: "no planned start and no reference date",
				}
			}
			start = today
		}
		epoch = schedule.MinDate(epoch, start)
	}
	return epoch, nil
}

// passes holds per-node offsets indexed by arena position.
type passes struct {
	g              *dag.Graph
	es, ef, ls, lf []int
}

func newPasses(g *dag.Graph) *passes {
	n := g.Len()
	return &passes{g: g, es: make([]int, n), ef: make([]int, n), ls: make([]int, n), lf: make([]int, n)}
}

func (p *passes) slack(i int) int { return p.ls[i] - p.es[i] }

// forward computes earliest dates in topological order. Sources take their
// release offset; other tasks take the tightest incoming edge bound.
func (p *passes) forward(order []int, release func(int) int) {
	for _, i := range order {
		dur := p.g.Duration(i)
		preds := p.g.In(i)
		if len(preds) == 0 {
			p.es[i] = release(i)
		} else {
			first := true
			for _, a := range preds {
				bound := a.Edge.StartBound(p.es[a.Node], p.ef[a.Node], dur)
				if first || bound > p.es[i] {
					p.es[i] = bound
					first = false
				}
			}
		}
		p.ef[i] = p.es[i] + dur
	}
}

// backward computes latest dates for one component, whose members are in
// topological order, and returns the component's end offset. No task may
// finish later than the component end, whatever its outgoing edges allow.
func (p *passes) backward(members []int) int {
	end := p.ef[members[0]]
	for _, i := range members {
		end = max(end, p.ef[i])
	}
	for k := len(members) - 1; k >= 0; k-- {
		i := members[k]
		dur := p.g.Duration(i)
		p.lf[i] = end
		for _, a := range p.g.Out(i) {
			p.lf[i] = min(p.lf[i], a.Edge.FinishBound(p.ls[a.Node], p.lf[a.Node], dur))
		}
		p.ls[i] = p.lf[i] - dur
	}
	return end
}

// findBottlenecks flags high fan-out tasks with little slack, ranked by
// successor count.
func findBottlenecks(g *dag.Graph, p *passes, byID map[string]schedule.Task, opts Options) []Bottleneck {
	var out []Bottleneck
	var impact map[string]float64
	for i := range g.Len() {
		succ := len(g.Out(i))
		if succ < opts.BottleneckMinSuccessors || p.slack(i) > opts.BottleneckMaxSlack {
			continue
		}
		if impact == nil {
			impact = g.Betweenness()
		}
		sev := "medium"
		if p.slack(i) <= 0 {
			sev = "high"
		}
		out = append(out, Bottleneck{
			TaskID:       g.ID(i),
			Name:         byID[g.ID(i)].Name,
			Successors:   succ,
			Predecessors: len(g.In(i)),
			SlackDays:    p.slack(i),
			Severity:     sev,
			Impact:       impact[g.ID(i)],
		})
	}
	slices.SortFunc(out, func(a, b Bottleneck) int {
		if c := cmp.Compare(b.Successors, a.Successors); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskID, b.TaskID)
	})
	return out
}
