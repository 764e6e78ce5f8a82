package dag

import (
	"slices"
	"strings"
)

const (
	white uint8 = iota // unvisited
	gray               // on the current DFS path
	black              // finished
)

// Cycles finds dependency cycles with an iterative depth-first search.
// Every back edge yields one cycle, reported as the full loop of IDs with
// the first ID repeated at the end (A, B, C, A). Rotations of the same loop
// are reported once, starting from their smallest ID. The result is sorted.
func (g *Graph) Cycles() [][]string {
	n := len(g.ids)
	color := make([]uint8, n)
	pathPos := make([]int, n)
	seen := make(map[string]bool)
	var cycles [][]string

	type frame struct {
		node int
		next int
	}

	roots := make([]int, n)
	for i := range roots {
		roots[i] = i
	}
	slices.SortFunc(roots, func(a, b int) int { return strings.Compare(g.ids[a], g.ids[b]) })

	for _, root := range roots {
		if color[root] != white {
			continue
		}
		color[root] = gray
		pathPos[root] = 0
		path := []int{root}
		stack := []frame{{node: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(g.out[top.node]) {
				nxt := g.out[top.node][top.next].Node
				top.next++
				switch color[nxt] {
				case white:
					color[nxt] = gray
					pathPos[nxt] = len(path)
					path = append(path, nxt)
					stack = append(stack, frame{node: nxt})
				case gray:
					loop := g.canonicalLoop(path[pathPos[nxt]:])
					key := strings.Join(loop, "\x00")
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, loop)
					}
				}
				continue
			}
			color[top.node] = black
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	slices.SortFunc(cycles, func(a, b []string) int {
		return strings.Compare(strings.Join(a, ","), strings.Join(b, ","))
	})
	return cycles
}

// canonicalLoop rotates the loop to start at its smallest ID and closes it.
func (g *Graph) canonicalLoop(members []int) []string {
	start := 0
	for k, m := range members {
		if g.ids[m] < g.ids[members[start]] {
			start = k
		}
	}
	loop := make([]string, 0, len(members)+1)
	for k := range members {
		loop = append(loop, g.ids[members[(start+k)%len(members)]])
	}
	return append(loop, loop[0])
}

// HasCycle reports whether any cycle exists.
func (g *Graph) HasCycle() bool {
	_, err := g.Order()
	return err != nil
}
