package dag

// LongestPath returns the duration-weighted longest chain of dependent
// tasks and its length in days. Each node's best chain is memoized in
// topological order, so the search is linear in nodes plus edges. Lags
// and dependency types are ignored; this is an estimate for ranking, not
// a schedule.
func (g *Graph) LongestPath() ([]string, int, error) {
	order, err := g.Order()
	if err != nil {
		return nil, 0, err
	}
	if len(order) == 0 {
		return nil, 0, nil
	}
	best := make([]int, len(g.ids))
	prev := make([]int, len(g.ids))
	end := order[0]
	for _, i := range order {
		prev[i] = -1
		best[i] = g.duration[i]
		for _, a := range g.in[i] {
			if cand := best[a.Node] + g.duration[i]; cand > best[i] {
				best[i] = cand
				prev[i] = a.Node
			}
		}
		if best[i] > best[end] {
			end = i
		}
	}

	var rev []string
	for i := end; i >= 0; i = prev[i] {
		rev = append(rev, g.ids[i])
	}
	path := make([]string, len(rev))
	for k, id := range rev {
		path[len(rev)-1-k] = id
	}
	return path, best[end], nil
}

// Betweenness computes normalized betweenness centrality with Brandes'
// algorithm along successor arcs. A task sitting on many dependency
// chains scores close to 1.
func (g *Graph) Betweenness() map[string]float64 {
	n := len(g.ids)
	cb := make([]float64, n)
	if n >= 3 {
		for s := range n {
			g.brandesFrom(s, cb)
		}
		norm := float64((n - 1) * (n - 2))
		for i := range cb {
			cb[i] /= norm
		}
	}
	out := make(map[string]float64, n)
	for i, v := range cb {
		out[g.ids[i]] = v
	}
	return out
}

func (g *Graph) brandesFrom(s int, cb []float64) {
	n := len(g.ids)
	sigma := make([]float64, n)
	dist := make([]int, n)
	pred := make([][]int, n)
	for i := range dist {
		dist[i] = -1
	}
	sigma[s], dist[s] = 1, 0

	stack := make([]int, 0, n)
	queue := []int{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for _, a := range g.out[v] {
			w := a.Node
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				pred[w] = append(pred[w], v)
			}
		}
	}

	delta := make([]float64, n)
	for k := len(stack) - 1; k >= 0; k-- {
		w := stack[k]
		for _, v := range pred[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != s {
			cb[w] += delta[w]
		}
	}
}
