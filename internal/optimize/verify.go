package optimize

import "fmt"

// verify re-checks a complete assignment against every hard constraint of
// the model: release, deadline, precedence and per-day capacity.
func (m *model) verify(start []int) error {
	for i := range m.g.Len() {
		if start[i] < m.release[i] {
			return fmt.Errorf("task %s starts at day %d before its release %d", m.g.ID(i), start[i], m.release[i])
		}
		if start[i]+m.dur[i] > m.deadline[i] {
			return fmt.Errorf("task %s finishes at day %d after its deadline %d", m.g.ID(i), start[i]+m.dur[i], m.deadline[i])
		}
		for _, a := range m.g.In(i) {
			p := a.Node
			bound := a.Edge.StartBound(start[p], start[p]+m.dur[p], m.dur[i])
			if start[i] < bound {
				return fmt.Errorf("dependency %s violated: successor starts day %d, needs %d", a.Edge, start[i], bound)
			}
		}
	}

	for k, res := range m.resources {
		usage := make(map[int]int)
		for i := range m.g.Len() {
			for _, u := range m.demand[i] {
				if u.res != k {
					continue
				}
				for d := start[i]; d < start[i]+m.dur[i]; d++ {
					usage[d] += u.units
					if usage[d] > m.capacity[k] {
						return fmt.Errorf("resource %s over capacity on day %d: %d > %d", res, d, usage[d], m.capacity[k])
					}
				}
			}
		}
	}
	return nil
}
