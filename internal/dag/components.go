package dag

import (
	"cmp"
	"slices"
)

// disjointSet is a union-find over arena indices with path halving and
// union by size.
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), size: make([]int, n)}
	for i := range n {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

func (ds *disjointSet) find(x int) int {
	for ds.parent[x] != x {
		ds.parent[x] = ds.parent[ds.parent[x]]
		x = ds.parent[x]
	}
	return x
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	if ds.size[ra] < ds.size[rb] {
		ra, rb = rb, ra
	}
	ds.parent[rb] = ra
	ds.size[ra] += ds.size[rb]
}

// Components partitions the graph into weakly connected subgraphs. Each
// component lists its node indices in topological order when the graph is
// acyclic, otherwise in ID order. Components are ordered by their smallest
// member ID.
func (g *Graph) Components() [][]int {
	n := len(g.ids)
	if n == 0 {
		return nil
	}
	ds := newDisjointSet(n)
	for i := range n {
		for _, a := range g.out[i] {
			ds.union(i, a.Node)
		}
	}

	rank := make([]int, n)
	if order, err := g.Order(); err == nil {
		for pos, i := range order {
			rank[i] = pos
		}
	} else {
		byID := make([]int, n)
		for i := range byID {
			byID[i] = i
		}
		slices.SortFunc(byID, func(a, b int) int { return cmp.Compare(g.ids[a], g.ids[b]) })
		for pos, i := range byID {
			rank[i] = pos
		}
	}

	groups := make(map[int][]int)
	for i := range n {
		root := ds.find(i)
		groups[root] = append(groups[root], i)
	}
	out := make([][]int, 0, len(groups))
	for _, members := range groups {
		slices.SortFunc(members, func(a, b int) int { return cmp.Compare(rank[a], rank[b]) })
		out = append(out, members)
	}
	minID := func(members []int) string {
		m := g.ids[members[0]]
		for _, i := range members[1:] {
			m = min(m, g.ids[i])
		}
		return m
	}
	slices.SortFunc(out, func(a, b []int) int { return cmp.Compare(minID(a), minID(b)) })
	return out
}

// ComponentIDs is Components with indices resolved to task IDs.
func (g *Graph) ComponentIDs() [][]string {
	comps := g.Components()
	out := make([][]string, len(comps))
	for k, members := range comps {
		ids := make([]string, len(members))
		for j, i := range members {
			ids[j] = g.ids[i]
		}
		out[k] = ids
	}
	return out
}
