package recombine

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// Algorithm selects how triangle pairs are chosen.
type Algorithm int

const (
	// Greedy merges candidates in order of increasing cost.
	Greedy Algorithm = iota
	// Blossom merges as many pairs as possible, then minimizes total cost.
	Blossom
)

func (a Algorithm) String() string {
	switch a {
	case Greedy:
		return "greedy"
	case Blossom:
		return "blossom"
	default:
		return "unknown"
	}
}

// Options tunes recombination.
type Options struct {
	Algorithm Algorithm

	// MinQuality is the lowest PairQuality a merged quad may have.
	MinQuality float64

	// Surfaces restricts recombination to triangles of the listed surfaces.
	// Nil means every surface.
	Surfaces []int

	// Workers bounds the number of graph components matched concurrently.
	// Zero means GOMAXPROCS.
	Workers int
}

// weightScale converts costs to the integer weights the matcher works with.
const weightScale = 1 << 24

// RecombineTriangles merges the triangles of m into quads.
func RecombineTriangles(ctx context.Context, m *mesh.TriangleMesh, opts Options) (*mesh.HybridMesh, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil mesh").At(errors.StageRecombine)
	}
	return Recombine(ctx, m.Hybrid(), opts)
}

// Recombine merges pairs of adjacent triangles of h into quads. Existing
// quads, vertices and boundary segments are kept; every triangle of h ends
// up either unchanged or in the Source of exactly one new quad. A mesh
// without triangles is returned unchanged.
func Recombine(ctx context.Context, h *mesh.HybridMesh, opts Options) (*mesh.HybridMesh, error) {
	if h == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil mesh").At(errors.StageRecombine)
	}
	if len(h.Triangles) == 0 {
		return h.Clone(), nil
	}

	tris := append([]mesh.Triangle(nil), h.Triangles...)
	mesh.BuildAdjacency(tris)
	fixed := make(map[mesh.EdgeKey]bool, len(h.Boundary))
	for _, s := range h.Boundary {
		fixed[mesh.Key(s.V[0], s.V[1])] = true
	}
	g := BuildGraph(h.Vertices, tris, fixed, opts.MinQuality)
	if opts.Surfaces != nil {
		allowed := make(map[int]bool, len(opts.Surfaces))
		for _, s := range opts.Surfaces {
			allowed[s] = true
		}
		g = g.filter(func(c Candidate) bool { return allowed[tris[c.T].Surface] })
	}

	chosen, err := Match(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	return assemble(h, tris, g, chosen), nil
}

// Match selects a set of disjoint candidates of g and returns their indices
// in increasing order. Components of g are matched concurrently.
func Match(ctx context.Context, g *Graph, opts Options) ([]int, error) {
	comps := g.components()
	if len(comps) == 0 {
		return nil, nil
	}

	// local maps a node to its index within its component.
	local := make([]int, g.Nodes)
	for _, c := range comps {
		for i, v := range c.nodes {
			local[v] = i
		}
	}

	results := make([][]int, len(comps))
	eg, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)
	for i, c := range comps {
		eg.Go(func() error {
			var (
				sel []int
				err error
			)
			switch opts.Algorithm {
			case Blossom:
				sel, err = matchBlossom(gctx, g, c, local)
			default:
				sel = matchGreedy(g, c)
			}
			if err != nil {
				return err
			}
			results[i] = sel
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []int
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Ints(out)
	return out, nil
}

func matchGreedy(g *Graph, c component) []int {
	order := append([]int(nil), c.cands...)
	sort.SliceStable(order, func(a, b int) bool {
		return g.Candidates[order[a]].Cost < g.Candidates[order[b]].Cost
	})
	used := make(map[int]bool, len(c.nodes))
	var sel []int
	for _, e := range order {
		cd := g.Candidates[e]
		if used[cd.T] || used[cd.U] {
			continue
		}
		used[cd.T], used[cd.U] = true, true
		sel = append(sel, e)
	}
	return sel
}

func matchBlossom(ctx context.Context, g *Graph, c component, local []int) ([]int, error) {
	edges := make([]wedge, len(c.cands))
	for k, e := range c.cands {
		cd := g.Candidates[e]
		edges[k] = wedge{
			i: local[cd.T],
			j: local[cd.U],
			w: int64(math.Round((2 - cd.Cost) * weightScale)),
		}
	}
	mate, err := newMatcher(len(c.nodes), edges, true).run(ctx)
	if err != nil {
		return nil, err
	}
	used := make([]bool, len(c.nodes))
	var sel []int
	for k, e := range edges {
		if mate[e.i] == e.j && !used[e.i] && !used[e.j] {
			used[e.i], used[e.j] = true, true
			sel = append(sel, c.cands[k])
		}
	}
	return sel, nil
}

// assemble builds the output mesh. Unmatched triangles keep their order
// and IDs; new quads follow the existing ones, ordered by their first
// source triangle.
func assemble(h *mesh.HybridMesh, tris []mesh.Triangle, g *Graph, chosen []int) *mesh.HybridMesh {
	out := &mesh.HybridMesh{
		Vertices: append([]mesh.Vertex(nil), h.Vertices...),
		Boundary: append([]mesh.Segment(nil), h.Boundary...),
	}
	nextID := 0
	for _, q := range h.Quads {
		q.Source = append([]int(nil), q.Source...)
		out.Quads = append(out.Quads, q)
		nextID = max(nextID, q.ID+1)
	}

	pair := make([]int, len(tris))
	for i := range pair {
		pair[i] = -1
	}
	for _, e := range chosen {
		cd := g.Candidates[e]
		pair[cd.T], pair[cd.U] = e, e
	}
	for i, t := range tris {
		e := pair[i]
		if e < 0 {
			out.Triangles = append(out.Triangles, t)
			continue
		}
		cd := g.Candidates[e]
		if cd.T != i {
			continue
		}
		out.Quads = append(out.Quads, mesh.Quad{
			ID:      nextID,
			V:       cd.Quad,
			Source:  []int{tris[cd.T].ID, tris[cd.U].ID},
			Surface: t.Surface,
		})
		nextID++
	}
	mesh.BuildAdjacency(out.Triangles)
	return out
}
