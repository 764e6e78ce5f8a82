package optimize

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync/atomic"
)

var (
	// errStepBudget ends a pass once the shared step budget is spent.
	errStepBudget = errors.New("step budget exhausted")
	// errNoPlacement ends a pass that cannot place a task in time.
	errNoPlacement = errors.New("no feasible placement")
)

// rule orders eligible tasks; the task with the smallest key goes first.
type rule struct {
	name string
	key  func(m *model, i int) int
	// random picks a uniformly random eligible task with this probability.
	random float64
}

// rules returns the deterministic priority rules followed by extra
// randomized passes, total entries in all.
func rules(total int) []rule {
	base := []rule{
		{name: "latest_finish", key: func(m *model, i int) int { return m.lf[i] }},
		{name: "min_slack", key: func(m *model, i int) int { return m.slack[i] }},
		{name: "earliest_start", key: func(m *model, i int) int { return m.es[i] }},
		{name: "most_successors", key: func(m *model, i int) int { return -m.succCount[i] }},
		{name: "longest_duration", key: func(m *model, i int) int { return -m.dur[i] }},
	}
	if total < len(base) {
		total = len(base)
	}
	for k := len(base); k < total; k++ {
		base = append(base, rule{
			name:   fmt.Sprintf("randomized_%d", k-len(base)+1),
			key:    func(m *model, i int) int { return m.lf[i] },
			random: 0.3,
		})
	}
	return base
}

// solver is a serial schedule generator owning all of its mutable state.
// A fresh solver is built for every pass; solvers are never shared.
type solver struct {
	m        *model
	rule     rule
	rng      *rand.Rand
	steps    *atomic.Int64
	maxSteps int64

	start []int
	usage [][]int // per resource, per day offset
}

func newSolver(m *model, r rule, seed uint64, steps *atomic.Int64, maxSteps int64) *solver {
	s := &solver{
		m:        m,
		rule:     r,
		rng:      rand.New(rand.NewPCG(seed, uint64(len(r.name)))),
		steps:    steps,
		maxSteps: maxSteps,
		start:    make([]int, m.g.Len()),
		usage:    make([][]int, len(m.resources)),
	}
	for k := range s.usage {
		s.usage[k] = make([]int, m.horizon+1)
	}
	return s
}

// run schedules every task once, in an order chosen by the rule, each at
// the earliest offset that satisfies precedence, release, and capacity.
func (s *solver) run(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := s.m
	n := m.g.Len()
	waiting := make([]int, n)
	var eligible []int
	for i := range n {
		waiting[i] = len(m.g.In(i))
		if waiting[i] == 0 {
			eligible = append(eligible, i)
		}
	}

	for done := 0; done < n; done++ {
		pick := s.choose(eligible)
		i := eligible[pick]
		eligible = slices.Delete(eligible, pick, pick+1)

		at, err := s.place(ctx, i)
		if err != nil {
			return nil, err
		}
		s.commit(i, at)

		for _, a := range m.g.Out(i) {
			waiting[a.Node]--
			if waiting[a.Node] == 0 {
				eligible = append(eligible, a.Node)
			}
		}
	}
	return s.start, nil
}

func (s *solver) choose(eligible []int) int {
	if s.rule.random > 0 && len(eligible) > 1 && s.rng.Float64() < s.rule.random {
		return s.rng.IntN(len(eligible))
	}
	best := 0
	for k := 1; k < len(eligible); k++ {
		if s.less(eligible[k], eligible[best]) {
			best = k
		}
	}
	return best
}

func (s *solver) less(a, b int) bool {
	ka, kb := s.rule.key(s.m, a), s.rule.key(s.m, b)
	if ka != kb {
		return ka < kb
	}
	return cmp.Less(s.m.g.ID(a), s.m.g.ID(b))
}

// place finds the earliest feasible start for task i.
func (s *solver) place(ctx context.Context, i int) (int, error) {
	m := s.m
	dur := m.dur[i]
	at := m.release[i]
	for _, a := range m.g.In(i) {
		p := a.Node
		at = max(at, a.Edge.StartBound(s.start[p], s.start[p]+m.dur[p], dur))
	}
	at = max(at, 0)

	for ; at+dur <= m.horizon; at++ {
		if at+dur > m.deadline[i] {
			return 0, fmt.Errorf("%w: task %s cannot finish by its deadline", errNoPlacement, m.g.ID(i))
		}
		n := s.steps.Add(1)
		if s.maxSteps > 0 && n > s.maxSteps {
			return 0, errStepBudget
		}
		if n%512 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if s.fits(i, at) {
			return at, nil
		}
	}
	return 0, fmt.Errorf("%w: task %s does not fit before day %d", errNoPlacement, m.g.ID(i), m.horizon)
}

func (s *solver) fits(i, at int) bool {
	for _, u := range s.m.demand[i] {
		limit := s.m.capacity[u.res] - u.units
		row := s.usage[u.res]
		for d := at; d < at+s.m.dur[i]; d++ {
			if row[d] > limit {
				return false
			}
		}
	}
	return true
}

func (s *solver) commit(i, at int) {
	s.start[i] = at
	for _, u := range s.m.demand[i] {
		row := s.usage[u.res]
		for d := at; d < at+s.m.dur[i]; d++ {
			row[d] += u.units
		}
	}
}
