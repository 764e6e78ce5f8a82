// Package dag holds the task dependency graph: an arena of nodes addressed
// by integer index, with a string ID lookup, typed and lagged arcs in both
// directions, deterministic topological ordering, cycle reconstruction,
// component partitioning and longest-path search.
package dag

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// ErrCycle is returned when the graph contains a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrNodeNotFound is returned when an operation references a non-existent node.
var ErrNodeNotFound = errors.New("node not found")

// ErrDuplicateNode is returned when adding a node that already exists.
var ErrDuplicateNode = errors.New("duplicate node")

// ErrDuplicateEdge is returned when the (predecessor, successor) pair is
// already present.
var ErrDuplicateEdge = errors.New("duplicate edge")

// ErrSelfEdge is returned when an edge would create a self-loop.
var ErrSelfEdge = errors.New("self-referencing edge")

// Arc is one direction of a dependency edge. Node is the index of the node
// at the other end.
type Arc struct {
	Node int
	Edge schedule.Edge
}

// Graph is a directed dependency graph. Unlike a strict DAG it accepts
// cycles on insertion so they can be found and reported; ordering
// operations fail with ErrCycle instead.
type Graph struct {
	ids      []string
	index    map[string]int
	duration []int
	out      [][]Arc // successors of each node
	in       [][]Arc // predecessors of each node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Build creates a graph holding every task and edge. It fails on the first
// duplicate task, unknown endpoint, self-loop or duplicate edge, so it
// should be called on input that already passed validation.
func Build(tasks []schedule.Task, edges []schedule.Edge) (*Graph, error) {
	g := New()
	for _, t := range tasks {
		if err := g.AddNode(t.ID, t.Duration()); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode appends a node with the given duration in days.
func (g *Graph) AddNode(id string, duration int) error {
	if _, exists := g.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	g.index[id] = len(g.ids)
	g.ids = append(g.ids, id)
	g.duration = append(g.duration, duration)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return nil
}

// AddEdge links two existing nodes. Cycles are accepted.
func (g *Graph) AddEdge(e schedule.Edge) error {
	if e.Predecessor == e.Successor {
		return fmt.Errorf("%w: %s", ErrSelfEdge, e.Predecessor)
	}
	from, ok := g.index[e.Predecessor]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.Predecessor)
	}
	to, ok := g.index[e.Successor]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.Successor)
	}
	for _, a := range g.out[from] {
		if a.Node == to {
			return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
		}
	}
	g.out[from] = insertArc(g.out[from], Arc{Node: to, Edge: e}, g.ids)
	g.in[to] = insertArc(g.in[to], Arc{Node: from, Edge: e}, g.ids)
	return nil
}

// insertArc keeps arc lists sorted by the ID at the far end so every
// traversal is deterministic.
func insertArc(arcs []Arc, a Arc, ids []string) []Arc {
	i, _ := slices.BinarySearchFunc(arcs, a, func(x, y Arc) int {
		return cmp.Compare(ids[x.Node], ids[y.Node])
	})
	return slices.Insert(arcs, i, a)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// ID returns the task ID stored at index i.
func (g *Graph) ID(i int) string { return g.ids[i] }

// Index returns the arena index of id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Duration returns the duration of the node at index i.
func (g *Graph) Duration(i int) int { return g.duration[i] }

// Out returns the successor arcs of node i, sorted by successor ID.
func (g *Graph) Out(i int) []Arc { return g.out[i] }

// In returns the predecessor arcs of node i, sorted by predecessor ID.
func (g *Graph) In(i int) []Arc { return g.in[i] }

// IDs returns all node IDs sorted alphabetically.
func (g *Graph) IDs() []string {
	ids := slices.Clone(g.ids)
	slices.Sort(ids)
	return ids
}

// Successors returns the IDs of the direct successors of id.
func (g *Graph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.out[i])
}

// Predecessors returns the IDs of the direct predecessors of id.
func (g *Graph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.in[i])
}

func (g *Graph) names(arcs []Arc) []string {
	out := make([]string, len(arcs))
	for k, a := range arcs {
		out[k] = g.ids[a.Node]
	}
	return out
}

// Sources returns nodes without predecessors, sorted by ID.
func (g *Graph) Sources() []string {
	var out []string
	for i := range g.ids {
		if len(g.in[i]) == 0 {
			out = append(out, g.ids[i])
		}
	}
	slices.Sort(out)
	return out
}

// Sinks returns nodes without successors, sorted by ID.
func (g *Graph) Sinks() []string {
	var out []string
	for i := range g.ids {
		if len(g.out[i]) == 0 {
			out = append(out, g.ids[i])
		}
	}
	slices.Sort(out)
	return out
}

// Order returns node indices in topological order using Kahn's algorithm.
// Among nodes that become ready together the smallest ID goes first, so
// the order is a pure function of the graph. On a cycle it returns
// ErrCycle naming the nodes that could not be ordered.
func (g *Graph) Order() ([]int, error) {
	inDegree := make([]int, len(g.ids))
	var ready []int
	for i := range g.ids {
		inDegree[i] = len(g.in[i])
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	byID := func(a, b int) int { return cmp.Compare(g.ids[a], g.ids[b]) }
	slices.SortFunc(ready, byID)

	order := make([]int, 0, len(g.ids))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, a := range g.out[cur] {
			inDegree[a.Node]--
			if inDegree[a.Node] == 0 {
				pos, _ := slices.BinarySearchFunc(ready, a.Node, byID)
				ready = slices.Insert(ready, pos, a.Node)
			}
		}
	}

	if len(order) != len(g.ids) {
		var stuck []string
		for i, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, g.ids[i])
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("%w: %d of %d nodes could not be ordered %v",
			ErrCycle, len(g.ids)-len(order), len(g.ids), stuck)
	}
	return order, nil
}

// TopologicalSort returns node IDs in dependency order.
func (g *Graph) TopologicalSort() ([]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(order))
	for k, i := range order {
		out[k] = g.ids[i]
	}
	return out, nil
}

// Descendants returns every node reachable from id, sorted by ID.
func (g *Graph) Descendants(id string) []string {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.ids))
	queue := []int{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range g.out[cur] {
			if !seen[a.Node] {
				seen[a.Node] = true
				out = append(out, g.ids[a.Node])
				queue = append(queue, a.Node)
			}
		}
	}
	slices.Sort(out)
	return out
}
