package optimize

import (
	"fmt"
	"math"
	"slices"

	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/dag"
	"github.com/papapumpkin/parsec/internal/schedule"
)

const (
	noDeadline = math.MaxInt32
	noRelease  = math.MinInt32
)

// use is one resource demand of a task: units of resource index res.
type use struct {
	res   int
	units int
}

// model is the immutable interval formulation shared by every pass of one
// call. Day offsets are relative to epoch, the CPM project start, so every
// feasible start is non-negative.
type model struct {
	g       *dag.Graph
	tasks   []schedule.Task // by arena index
	epoch   schedule.Date
	horizon int

	dur      []int
	release  []int
	deadline []int
	demand   [][]use

	resources []string
	capacity  []int

	// CPM offsets and fan-out used by the priority rules.
	es, lf, slack []int
	succCount     []int

	// infeasible is set when the constraints cannot be met by any order.
	infeasible string
}

// buildModel turns a validated graph, its CPM schedule, capacities and
// declarative constraints into a model.
func buildModel(tasks []schedule.Task, g *dag.Graph, base *cpm.Result, capacity schedule.Capacity, constraints []schedule.Constraint, horizonDays int) (*model, error) {
	n := g.Len()
	m := &model{
		g:         g,
		tasks:     make([]schedule.Task, n),
		epoch:     base.ProjectStart,
		dur:       make([]int, n),
		release:   make([]int, n),
		deadline:  make([]int, n),
		demand:    make([][]use, n),
		es:        make([]int, n),
		lf:        make([]int, n),
		slack:     make([]int, n),
		succCount: make([]int, n),
	}
	for _, t := range tasks {
		i, _ := g.Index(t.ID)
		m.tasks[i] = t
	}

	limits := make(map[string]int, len(capacity))
	for res, units := range capacity {
		limits[res] = units
	}
	for _, c := range constraints {
		if c.Kind != schedule.ConstraintResourceLimit {
			continue
		}
		if cur, ok := limits[c.Resource]; !ok || c.MaxUnits < cur {
			limits[c.Resource] = c.MaxUnits
		}
	}
	m.resources = make([]string, 0, len(limits))
	for res := range limits {
		m.resources = append(m.resources, res)
	}
	slices.Sort(m.resources)
	resIndex := make(map[string]int, len(m.resources))
	m.capacity = make([]int, len(m.resources))
	for k, res := range m.resources {
		resIndex[res] = k
		m.capacity[k] = limits[res]
	}

	end := 0
	totalDur := 0
	for i := range n {
		t := m.tasks[i]
		sched, _ := base.Schedule(t.ID)
		m.dur[i] = g.Duration(i)
		totalDur += m.dur[i]
		m.es[i] = m.epoch.DaysUntil(sched.EarliestStart)
		m.lf[i] = m.epoch.DaysUntil(sched.LatestFinish)
		m.slack[i] = sched.SlackDays
		m.succCount[i] = len(g.Out(i))
		end = max(end, m.es[i]+m.dur[i])

		m.release[i] = noRelease
		if len(g.In(i)) == 0 {
			m.release[i] = m.es[i]
		}
		m.deadline[i] = noDeadline

		resNames := make([]string, 0, len(t.Demand))
		for res := range t.Demand {
			resNames = append(resNames, res)
		}
		slices.Sort(resNames)
		for _, res := range resNames {
			units := t.Demand[res]
			k, constrained := resIndex[res]
			if !constrained || units == 0 {
				continue
			}
			if units > m.capacity[k] {
				m.infeasible = fmt.Sprintf("task %s needs %d %s but capacity is %d", t.ID, units, res, m.capacity[k])
			}
			m.demand[i] = append(m.demand[i], use{res: k, units: units})
		}
	}

	latestRelease := 0
	for _, c := range constraints {
		if c.Kind == schedule.ConstraintResourceLimit {
			continue
		}
		i, ok := g.Index(c.TaskID)
		if !ok {
			return nil, &schedule.NotFoundError{Kind: "task", Key: c.TaskID}
		}
		switch c.Kind {
		case schedule.ConstraintStartAfter:
			off := m.epoch.DaysUntil(c.Date)
			m.release[i] = max(m.release[i], off)
			latestRelease = max(latestRelease, off)
		case schedule.ConstraintFinishBefore:
			m.deadline[i] = min(m.deadline[i], m.epoch.DaysUntil(c.Date))
		case schedule.ConstraintMaxDuration:
			if m.dur[i] > c.Days {
				m.infeasible = fmt.Sprintf("task %s lasts %d days, over its %d day maximum", c.TaskID, m.dur[i], c.Days)
			}
		}
	}

	lagSlack := 0
	for i := range n {
		for _, a := range g.Out(i) {
			lagSlack += max(0, a.Edge.LagDays)
		}
	}
	m.horizon = max(end, latestRelease) + totalDur + lagSlack
	if horizonDays > 0 {
		m.horizon = min(m.horizon, horizonDays)
	}
	return m, nil
}

// makespan is the latest finish offset of a full assignment.
func (m *model) makespan(start []int) int {
	end := 0
	for i, s := range start {
		end = max(end, s+m.dur[i])
	}
	return end
}
