// Package calcseq implements the topology analysis of spec §4.6:
// strongly-connected-component partitioning of the unit graph, a
// topological ordering of the condensation, and a tear-edge heuristic
// per non-trivial SCC.
//
// Tarjan's algorithm is implemented with an explicit stack rather than
// recursion, following the iterative-traversal style astar.go and
// pathfinding.go use for their own graph search — flowsheets can have
// hundreds of units and an explicit stack avoids relying on the Go
// runtime's goroutine stack growth for deep graphs.
package calcseq

import (
	"fmt"
	"sort"
)

// Edge is a directed unit->unit dependency, keyed by unit key, carrying
// the stream key that induces it.
type Edge struct {
	From, To  string
	StreamKey string
}

// Partition is an ordered list of unit keys plus the set of tear-stream
// keys whose removal makes the partition acyclic (spec §3.6).
type Partition struct {
	Units []string
	Tears []string // stream keys
}

// Trivial reports whether this is a single-unit, acyclic partition with
// no tear streams (spec §4.7.2's "trivial partition" fast path).
func (p Partition) Trivial() bool {
	return len(p.Units) == 1 && len(p.Tears) == 0
}

// Sequence is the ordered list of partitions produced by Analyse.
type Sequence struct {
	Partitions []Partition
}

// Analyse builds the calculation sequence from a unit-key list and an
// edge list (spec §4.6 steps 1-5).
func Analyse(units []string, edges []Edge) (*Sequence, error) {
	g := newGraph(units, edges)

	sccs := g.tarjanSCCs()

	order, err := topoOrderOfCondensation(g, sccs)
	if err != nil {
		return nil, err
	}

	var partitions []Partition
	for _, sccIdx := range order {
		scc := sccs[sccIdx]
		if len(scc) == 1 {
			u := scc[0]
			if g.hasSelfLoop(u) {
				return nil, fmt.Errorf("StructuralError: unit %q has a self-loop on a port", u)
			}
			partitions = append(partitions, Partition{Units: scc})
			continue
		}
		tears := g.chooseTearEdges(scc)
		partitions = append(partitions, Partition{Units: scc, Tears: tearStreamKeys(tears)})
	}

	return &Sequence{Partitions: partitions}, nil
}

func tearStreamKeys(edges []Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.StreamKey)
	}
	return out
}

// graph is the adjacency representation used internally.
type graph struct {
	units   []string
	index   map[string]int
	adj     [][]int   // adjacency by unit index
	edgeOf  map[[2]int][]Edge // (from,to) -> edges (parallel edges possible)
}

func newGraph(units []string, edges []Edge) *graph {
	g := &graph{
		units:  units,
		index:  make(map[string]int, len(units)),
		edgeOf: make(map[[2]int][]Edge),
	}
	for i, u := range units {
		g.index[u] = i
	}
	g.adj = make([][]int, len(units))
	for _, e := range edges {
		fi, fok := g.index[e.From]
		ti, tok := g.index[e.To]
		if !fok || !tok {
			continue // surfaced as a validation error separately
		}
		g.adj[fi] = append(g.adj[fi], ti)
		key := [2]int{fi, ti}
		g.edgeOf[key] = append(g.edgeOf[key], e)
	}
	return g
}

func (g *graph) hasSelfLoop(unitKey string) bool {
	i := g.index[unitKey]
	for _, j := range g.adj[i] {
		if j == i {
			return true
		}
	}
	return false
}

// tarjanSCCs computes strongly connected components using an explicit
// stack, returning each SCC as a list of unit keys.
func (g *graph) tarjanSCCs() [][]string {
	n := len(g.units)
	indices := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indices {
		indices[i] = -1
	}
	var stack []int
	var result [][]string
	counter := 0

	type frame struct {
		v       int
		childIx int
	}

	for start := 0; start < n; start++ {
		if indices[start] != -1 {
			continue
		}
		var work []frame
		work = append(work, frame{v: start, childIx: 0})
		indices[start] = counter
		lowlink[start] = counter
		counter++
		stack = append(stack, start)
		onStack[start] = true

		for len(work) > 0 {
			top := &work[len(work)-1]
			v := top.v
			if top.childIx < len(g.adj[v]) {
				w := g.adj[v][top.childIx]
				top.childIx++
				if indices[w] == -1 {
					indices[w] = counter
					lowlink[w] = counter
					counter++
					stack = append(stack, w)
					onStack[w] = true
					work = append(work, frame{v: w, childIx: 0})
				} else if onStack[w] {
					if indices[w] < lowlink[v] {
						lowlink[v] = indices[w]
					}
				}
			} else {
				work = work[:len(work)-1]
				if len(work) > 0 {
					parent := &work[len(work)-1]
					if lowlink[v] < lowlink[parent.v] {
						lowlink[parent.v] = lowlink[v]
					}
				}
				if lowlink[v] == indices[v] {
					var scc []string
					for {
						n := len(stack) - 1
						w := stack[n]
						stack = stack[:n]
						onStack[w] = false
						scc = append(scc, g.units[w])
						if w == v {
							break
						}
					}
					result = append(result, scc)
				}
			}
		}
	}
	return result
}

// topoOrderOfCondensation orders the SCCs so that every edge in the
// condensation points from an earlier SCC to a later one.
func topoOrderOfCondensation(g *graph, sccs [][]string) ([]int, error) {
	sccOf := make(map[string]int, len(g.units))
	for i, scc := range sccs {
		for _, u := range scc {
			sccOf[u] = i
		}
	}
	m := len(sccs)
	indeg := make([]int, m)
	adj := make([][]int, m)
	seen := make(map[[2]int]bool)
	for fi, tos := range g.adj {
		from := sccOf[g.units[fi]]
		for _, ti := range tos {
			to := sccOf[g.units[ti]]
			if from == to {
				continue
			}
			key := [2]int{from, to}
			if seen[key] {
				continue
			}
			seen[key] = true
			adj[from] = append(adj[from], to)
			indeg[to]++
		}
	}
	var queue []int
	for i := 0; i < m; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	sort.Ints(queue)
	var order []int
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		var unlocked []int
		for _, w := range adj[v] {
			indeg[w]--
			if indeg[w] == 0 {
				unlocked = append(unlocked, w)
			}
		}
		sort.Ints(unlocked)
		queue = append(queue, unlocked...)
		sort.Ints(queue)
	}
	if len(order) != m {
		return nil, fmt.Errorf("StructuralError: condensation is not acyclic (internal invariant violated)")
	}
	return order, nil
}

// chooseTearEdges selects a feedback-arc set for one SCC using the
// heuristic of spec §4.6 step 4: repeatedly remove the edge whose
// removal reduces the SCC's feedback-arc count the most; ties broken by
// upstream in-SCC out-degree, final ties lexicographic by key.
func (g *graph) chooseTearEdges(scc []string) []Edge {
	inSCC := make(map[int]bool, len(scc))
	for _, u := range scc {
		inSCC[g.index[u]] = true
	}

	// collect intra-SCC edges
	type intraEdge = struct {
		from, to int
		edges    []Edge
	}
	var intra []intraEdge
	for fi := range g.adj {
		if !inSCC[fi] {
			continue
		}
		for _, ti := range g.adj[fi] {
			if inSCC[ti] {
				es := g.edgeOf[[2]int{fi, ti}]
				intra = append(intra, intraEdge{from: fi, to: ti, edges: es})
			}
		}
	}

	var torn []Edge
	remaining := append([]intraEdge(nil), intra...)

	for stillCyclic(scc, remaining, g) {
		// score each remaining edge by whether removing it alone makes
		// the residual subgraph acyclic (score 2) or not (score 1); ties
		// go to the higher in-SCC out-degree, then the smaller sort key.
		bestIdx := -1
		bestScore := -1
		bestOutDeg := -1
		var bestKey string
		for i, e := range remaining {
			score := scoreRemoval(scc, remaining, i, g)
			outDeg := outDegreeInSCC(e.from, remaining)
			key := edgeSortKey(e.edges)
			if score > bestScore ||
				(score == bestScore && outDeg > bestOutDeg) ||
				(score == bestScore && outDeg == bestOutDeg && (bestIdx == -1 || key < bestKey)) {
				bestScore = score
				bestOutDeg = outDeg
				bestKey = key
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		torn = append(torn, remaining[bestIdx].edges...)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return torn
}

func edgeSortKey(es []Edge) string {
	if len(es) == 0 {
		return ""
	}
	key := es[0].StreamKey
	for _, e := range es[1:] {
		if e.StreamKey < key {
			key = e.StreamKey
		}
	}
	return key
}

func outDegreeInSCC(from int, edges []struct {
	from, to int
	edges    []Edge
}) int {
	count := 0
	for _, e := range edges {
		if e.from == from {
			count++
		}
	}
	return count
}

// stillCyclic reports whether the subgraph induced by scc and the given
// edge set still contains a cycle.
func stillCyclic(scc []string, remaining []struct {
	from, to int
	edges    []Edge
}, g *graph) bool {
	n := len(scc)
	if n <= 1 {
		return false
	}
	idxInScc := make(map[int]int)
	for i, u := range scc {
		idxInScc[g.index[u]] = i
	}
	adj := make([][]int, n)
	for _, e := range remaining {
		adj[idxInScc[e.from]] = append(adj[idxInScc[e.from]], idxInScc[e.to])
	}
	visited := make([]int, n) // 0 unvisited, 1 on stack, 2 done
	var dfs func(v int) bool
	dfs = func(v int) bool {
		visited[v] = 1
		for _, w := range adj[v] {
			if visited[w] == 1 {
				return true
			}
			if visited[w] == 0 && dfs(w) {
				return true
			}
		}
		visited[v] = 2
		return false
	}
	for i := 0; i < n; i++ {
		if visited[i] == 0 && dfs(i) {
			return true
		}
	}
	return false
}

// scoreRemoval scores removing remaining[idx]: 2 if the residual
// intra-SCC edges are then acyclic, 1 otherwise.
func scoreRemoval(scc []string, remaining []struct {
	from, to int
	edges    []Edge
}, idx int, g *graph) int {
	without := append(append([]struct {
		from, to int
		edges    []Edge
	}{}, remaining[:idx]...), remaining[idx+1:]...)
	if !stillCyclic(scc, without, g) {
		return 2
	}
	return 1
}
