package triangulate

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/mesh/cdt"
)

// Options tunes triangulation.
type Options struct {
	// Anisotropic measures lengths and circumcircles in the field's metric
	// instead of the Euclidean norm.
	Anisotropic bool

	// Frontal places interior points by advancing from the boundary along
	// a local frame, producing right-angled triangle pairs suitable for
	// recombination, before the regular refinement pass.
	Frontal bool

	// AnisoMax bounds the ratio between the largest and smallest metric
	// lengths. Values below 1 disable the bound.
	AnisoMax float64

	// SizeFactor multiplies every target size. Zero means 1.
	SizeFactor float64

	// SizeMin and SizeMax clamp target sizes after scaling. Zero disables
	// a bound.
	SizeMin, SizeMax float64

	// MaxVertices caps the number of mesh vertices. Zero means unlimited.
	MaxVertices int

	// Workers bounds the number of surfaces meshed concurrently. Zero means
	// GOMAXPROCS.
	Workers int
}

// refineThreshold is the metric length above which an edge is split, so no
// unconstrained edge ends longer than √2 times the target size. Halves of a
// split edge are at least 1/√2, but edges to nearby vertices may be shorter;
// there is no lower bound. The small slack keeps exact lattice diagonals
// from being split by rounding.
var refineThreshold = math.Sqrt2 * (1 + 1e-6)

// generator holds the state shared by the per-surface workers.
type generator struct {
	model *geom.Model
	sizer *sizer
	opts  Options

	// curve holds the interior points of each discretized model edge.
	curve map[geom.EdgeID][][2]float64
	// curveID is the global id of the first interior point of each edge.
	curveID map[geom.EdgeID]int

	vertices atomic.Int64
}

// surfaceResult is the triangulation of one surface before global
// numbering. Local vertex v maps to global[v] when non-negative; the others
// are new interior points numbered in insertion order.
type surfaceResult struct {
	pts    []cdt.Point
	global []int
	tris   [][3]int
}

// Generate triangulates every surface of a finalized model so that edge
// lengths follow the size field f.
//
// Model edges are discretized once and shared by the surfaces they bound.
// Surfaces are then meshed in parallel; vertex ids are assigned after all
// workers finish, so the output is identical for any worker count: model
// vertices first (in id order), then curve points (by edge id), then
// interior points (by surface id and insertion order).
func Generate(ctx context.Context, model *geom.Model, f field.Field, opts Options) (*mesh.TriangleMesh, error) {
	if !model.Finalized() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "geometry model is not finalized").At(errors.StageTriangulate)
	}
	if f == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no size field").At(errors.StageTriangulate)
	}
	b := model.Bound()
	extent := math.Hypot(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])

	g := &generator{
		model:   model,
		sizer:   newSizer(f, opts, extent),
		opts:    opts,
		curve:   make(map[geom.EdgeID][][2]float64),
		curveID: make(map[geom.EdgeID]int),
	}

	out := &mesh.TriangleMesh{}
	for _, v := range model.Vertices() {
		out.Vertices = append(out.Vertices, mesh.Vertex{ID: int(v.ID), X: v.X, Y: v.Y})
	}

	if err := g.discretizeEdges(ctx, out); err != nil {
		return nil, err
	}
	g.vertices.Store(int64(len(out.Vertices)))
	if err := g.checkBudget(errors.Entity{Kind: errors.KindMesh}); err != nil {
		return nil, err
	}

	surfaces := model.Surfaces()
	results := make([]*surfaceResult, len(surfaces))
	eg, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)
	for i, s := range surfaces {
		eg.Go(func() error {
			r, err := g.meshSurface(gctx, s)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var area float64
	for i, r := range results {
		sid := int(surfaces[i].ID)
		area += model.Area(surfaces[i].ID)
		for v, p := range r.pts {
			if v < cdt.NumSuper || r.global[v] >= 0 {
				continue
			}
			r.global[v] = len(out.Vertices)
			out.Vertices = append(out.Vertices, mesh.Vertex{ID: len(out.Vertices), X: p.X, Y: p.Y})
		}
		for _, t := range r.tris {
			out.Triangles = append(out.Triangles, mesh.Triangle{
				ID:      len(out.Triangles),
				V:       [3]int{r.global[t[0]], r.global[t[1]], r.global[t[2]]},
				Surface: sid,
			})
		}
	}
	mesh.BuildAdjacency(out.Triangles)

	if lim := opts.MaxVertices; lim > 0 && len(out.Vertices) > lim {
		return nil, errors.VertexBudgetExceeded(errors.Entity{Kind: errors.KindMesh}, lim)
	}
	h := out.Hybrid()
	if err := mesh.Validate(h, area, errors.StageTriangulate); err != nil {
		return nil, err
	}
	if err := mesh.CheckConformance(h, model, errors.StageTriangulate); err != nil {
		return nil, err
	}
	return out, nil
}

// discretizeEdges places points on every edge that bounds a surface and
// records the boundary segments.
func (g *generator) discretizeEdges(ctx context.Context, out *mesh.TriangleMesh) error {
	used := make(map[geom.EdgeID]bool)
	for _, s := range g.model.Surfaces() {
		for _, e := range g.model.SurfaceEdges(s.ID) {
			used[e] = true
		}
	}
	for _, e := range g.model.Edges() {
		if !used[e.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		a, _ := g.model.Vertex(e.V1)
		b, _ := g.model.Vertex(e.V2)
		pts, err := g.sizer.discretize(a, b, errors.Edge(int(e.ID)))
		if err != nil {
			return err
		}
		g.curve[e.ID] = pts
		g.curveID[e.ID] = len(out.Vertices)

		prev := int(e.V1)
		for _, p := range pts {
			id := len(out.Vertices)
			out.Vertices = append(out.Vertices, mesh.Vertex{ID: id, X: p[0], Y: p[1]})
			out.Boundary = append(out.Boundary, mesh.Segment{V: [2]int{prev, id}, Edge: int(e.ID)})
			prev = id
		}
		out.Boundary = append(out.Boundary, mesh.Segment{V: [2]int{prev, int(e.V2)}, Edge: int(e.ID)})
	}
	return nil
}

// meshSurface triangulates one surface: boundary insertion, constraint
// recovery, region classification, optional frontal placement and
// size-driven refinement.
func (g *generator) meshSurface(ctx context.Context, s geom.Surface) (*surfaceResult, error) {
	ent := errors.Surface(int(s.ID))
	poly := g.model.Polygon(s.ID)
	b := poly.Bound()
	cm := cdt.New(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	r := &surfaceResult{global: []int{-1, -1, -1}}

	insert := func(gid int, x, y float64) (int, error) {
		v, err := cm.Insert(x, y, nil)
		if err != nil {
			return -1, errors.Wrap(errors.ErrCodeMeshingFailed, err, "inserting boundary point").On(ent).At(errors.StageTriangulate)
		}
		for len(r.global) <= v {
			r.global = append(r.global, -1)
		}
		if r.global[v] >= 0 && r.global[v] != gid {
			return -1, errors.Unmeshable(ent, "boundary points %d and %d coincide", r.global[v], gid)
		}
		r.global[v] = gid
		return v, nil
	}

	local := make(map[int]int)
	var fronts []seed
	var segs [][2]int
	for _, eid := range g.model.SurfaceEdges(s.ID) {
		e, _ := g.model.Edge(eid)
		chain := []int{int(e.V1)}
		for k := range g.curve[eid] {
			chain = append(chain, g.curveID[eid]+k)
		}
		chain = append(chain, int(e.V2))

		a, _ := g.model.Vertex(e.V1)
		bv, _ := g.model.Vertex(e.V2)
		pos := func(k int) (float64, float64) {
			switch k {
			case 0:
				return a.X, a.Y
			case len(chain) - 1:
				return bv.X, bv.Y
			}
			p := g.curve[eid][k-1]
			return p[0], p[1]
		}
		l := math.Hypot(bv.X-a.X, bv.Y-a.Y)
		tx, ty := (bv.X-a.X)/l, (bv.Y-a.Y)/l

		for k, gid := range chain {
			if _, ok := local[gid]; ok {
				continue
			}
			x, y := pos(k)
			v, err := insert(gid, x, y)
			if err != nil {
				return nil, err
			}
			local[gid] = v
			fronts = append(fronts, seed{x: x, y: y, ux: tx, uy: ty})
		}
		for k := 0; k+1 < len(chain); k++ {
			segs = append(segs, [2]int{local[chain[k]], local[chain[k+1]]})
		}
	}
	for _, sg := range segs {
		if err := cm.Enforce(sg[0], sg[1]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMeshingFailed, err, "recovering boundary segment").
				On(ent).At(errors.StageTriangulate)
		}
	}
	cm.Classify(func(x, y float64) bool {
		return planar.PolygonContains(poly, orb.Point{x, y})
	})

	if g.opts.Frontal {
		if err := g.placeFrontal(ctx, cm, s, poly, segs, fronts); err != nil {
			return nil, err
		}
	}
	if err := g.refine(ctx, cm, ent); err != nil {
		return nil, err
	}

	r.pts = cm.Pts
	for len(r.global) < len(cm.Pts) {
		r.global = append(r.global, -1)
	}
	for _, t := range cm.InsideTriangles() {
		r.tris = append(r.tris, cm.Tris[t].V)
	}
	if len(r.tris) == 0 {
		return nil, errors.Unmeshable(ent, "surface produced no triangles")
	}
	return r, nil
}

// refine splits the longest over-sized unconstrained edge of every inside
// triangle until all edges are within refineThreshold in the metric.
// Constrained edges are never split, so curve discretizations stay shared.
func (g *generator) refine(ctx context.Context, cm *cdt.Mesh, ent errors.Entity) error {
	queue := cm.InsideTriangles()
	for head := 0; head < len(queue); head++ {
		if head%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if head > 1<<16 && head > len(queue)/2 {
				queue = append(queue[:0], queue[head:]...)
				head = 0
			}
		}
		t := queue[head]
		tri := cm.Tris[t]
		if !tri.Inside {
			continue
		}

		best, bestLen := -1, refineThreshold
		var bestMet geom.Metric
		var mx, my float64
		for i := 0; i < 3; i++ {
			if tri.C[i] {
				continue
			}
			a, b := cm.Edge(t, i)
			pa, pb := cm.Pts[a], cm.Pts[b]
			cx, cy := (pa.X+pb.X)/2, (pa.Y+pb.Y)/2
			m, err := g.sizer.metric(cx, cy, ent)
			if err != nil {
				return err
			}
			if l := m.Length(pb.X-pa.X, pb.Y-pa.Y); l > bestLen {
				best, bestLen, bestMet, mx, my = i, l, m, cx, cy
			}
		}
		if best < 0 {
			continue
		}
		if err := g.addVertex(ent); err != nil {
			return err
		}
		var met *geom.Metric
		if g.opts.Anisotropic {
			met = &bestMet
		}
		if _, err := cm.SplitEdge(t, best, mx, my, met); err != nil {
			return errors.Wrap(errors.ErrCodeMeshingFailed, err, "refining").On(ent).At(errors.StageTriangulate)
		}
		queue = append(queue, cm.Touched()...)
	}
	return nil
}

// addVertex reserves one vertex from the global budget.
func (g *generator) addVertex(ent errors.Entity) error {
	g.vertices.Add(1)
	return g.checkBudget(ent)
}

func (g *generator) checkBudget(ent errors.Entity) error {
	if lim := g.opts.MaxVertices; lim > 0 && g.vertices.Load() > int64(lim) {
		return errors.VertexBudgetExceeded(ent, lim)
	}
	return nil
}
