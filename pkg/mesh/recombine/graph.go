package recombine

import (
	"math"
	"sort"

	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// Candidate is a pair of adjacent triangles that may merge into a quad.
type Candidate struct {
	// T and U index the triangles, T < U.
	T, U int
	// Quad holds the merged quadrilateral counter-clockwise.
	Quad [4]int
	// Quality is in (0, 1], 1 for a square.
	Quality float64
	// Cost is 1 - Quality.
	Cost float64
}

// Graph is the matching graph: triangles are nodes, candidates are edges.
type Graph struct {
	Nodes      int
	Candidates []Candidate

	// adj lists the candidates incident to each node.
	adj [][]int
}

// PairQuality scores the quadrilateral (a, b, c, d): the angle quality of
// mesh.QuadQuality damped by the square root of its side aspect ratio.
// Non-convex quadrilaterals score 0.
func PairQuality(vs []mesh.Vertex, a, b, c, d int) float64 {
	q := mesh.QuadQuality(vs, a, b, c, d)
	if q <= 0 {
		return 0
	}
	return q / math.Sqrt(mesh.QuadAspect(vs, a, b, c, d))
}

// BuildGraph connects every pair of triangles of the same surface that
// share an edge and merge into a convex quad of at least minQuality. The
// N fields of tris must be filled (mesh.BuildAdjacency). Edges listed in
// fixed are never removed.
func BuildGraph(vs []mesh.Vertex, tris []mesh.Triangle, fixed map[mesh.EdgeKey]bool, minQuality float64) *Graph {
	g := &Graph{Nodes: len(tris), adj: make([][]int, len(tris))}
	for i, t := range tris {
		for k := 0; k < 3; k++ {
			j := t.N[k]
			if j <= i || tris[j].Surface != t.Surface {
				continue
			}
			a, b, c := t.V[k], t.V[(k+1)%3], t.V[(k+2)%3]
			if fixed[mesh.Key(b, c)] {
				continue
			}
			d := apex(tris[j], b, c)
			if d < 0 {
				continue
			}
			q := PairQuality(vs, a, b, d, c)
			if q <= 0 || q < minQuality {
				continue
			}
			idx := len(g.Candidates)
			g.Candidates = append(g.Candidates, Candidate{
				T: i, U: j,
				Quad:    [4]int{a, b, d, c},
				Quality: q,
				Cost:    1 - q,
			})
			g.adj[i] = append(g.adj[i], idx)
			g.adj[j] = append(g.adj[j], idx)
		}
	}
	return g
}

// filter returns the subgraph of the candidates satisfying keep.
func (g *Graph) filter(keep func(Candidate) bool) *Graph {
	out := &Graph{Nodes: g.Nodes, adj: make([][]int, g.Nodes)}
	for _, c := range g.Candidates {
		if !keep(c) {
			continue
		}
		idx := len(out.Candidates)
		out.Candidates = append(out.Candidates, c)
		out.adj[c.T] = append(out.adj[c.T], idx)
		out.adj[c.U] = append(out.adj[c.U], idx)
	}
	return out
}

// apex returns the vertex of t not on edge (b, c), or -1.
func apex(t mesh.Triangle, b, c int) int {
	for _, v := range t.V {
		if v != b && v != c {
			return v
		}
	}
	return -1
}

// Degree returns the number of candidates incident to node i.
func (g *Graph) Degree(i int) int { return len(g.adj[i]) }

// component is a connected set of nodes with the candidates among them.
type component struct {
	nodes []int
	cands []int
}

// components splits the graph into connected components, ordered by their
// smallest node. Isolated nodes are omitted.
func (g *Graph) components() []component {
	comp := make([]int, g.Nodes)
	for i := range comp {
		comp[i] = -1
	}
	var out []component
	for s := 0; s < g.Nodes; s++ {
		if comp[s] >= 0 || len(g.adj[s]) == 0 {
			continue
		}
		id := len(out)
		c := component{}
		comp[s] = id
		stack := []int{s}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c.nodes = append(c.nodes, v)
			for _, e := range g.adj[v] {
				cd := g.Candidates[e]
				w := cd.T
				if w == v {
					w = cd.U
				}
				if comp[w] < 0 {
					comp[w] = id
					stack = append(stack, w)
				}
				if cd.T == v {
					c.cands = append(c.cands, e)
				}
			}
		}
		sort.Ints(c.nodes)
		sort.Ints(c.cands)
		out = append(out, c)
	}
	return out
}
