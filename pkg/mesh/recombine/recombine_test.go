package recombine

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/mesh/triangulate"
)

func rectangle(t *testing.T, x, y, dx, dy float64) *geom.Model {
	t.Helper()
	m := geom.NewModel()
	if _, err := m.AddRectangle(x, y, dx, dy); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	return m
}

func generate(t *testing.T, model *geom.Model, f field.Field, opts triangulate.Options) *mesh.TriangleMesh {
	t.Helper()
	m, err := triangulate.Generate(context.Background(), model, f, opts)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	return m
}

// checkRecombined verifies the invariants every recombination must keep.
func checkRecombined(t *testing.T, src *mesh.TriangleMesh, h *mesh.HybridMesh) {
	t.Helper()
	area := src.Area()
	if err := mesh.Validate(h, area, errors.StageRecombine); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if err := mesh.CheckPartition(src, h); err != nil {
		t.Fatalf("CheckPartition() error: %v", err)
	}
	if got := h.Area(); got > area*(1+1e-12) {
		t.Errorf("Area() = %g, above source area %g", got, area)
	}
	if got, want := h.NumElements(), len(h.Quads)+len(src.Triangles)-2*len(h.Quads); got != want {
		t.Errorf("NumElements() = %d, want %d", got, want)
	}
	if !reflect.DeepEqual(h.Boundary, src.Boundary) {
		t.Error("boundary segments changed")
	}
	for _, q := range h.Quads {
		if len(q.Source) != 2 {
			t.Errorf("quad %d has %d sources, want 2", q.ID, len(q.Source))
		}
	}
}

func TestPairQuality(t *testing.T) {
	vs := []mesh.Vertex{{0, 0, 0}, {1, 1, 0}, {2, 1, 1}, {3, 0, 1}, {4, 2, 0}, {5, 2, 1}}
	if got := PairQuality(vs, 0, 1, 2, 3); math.Abs(got-1) > 1e-12 {
		t.Errorf("unit square quality = %g, want 1", got)
	}
	// 2x1 rectangle: right angles, aspect 2.
	if got, want := PairQuality(vs, 0, 4, 5, 3), 1/math.Sqrt2; math.Abs(got-want) > 1e-12 {
		t.Errorf("rectangle quality = %g, want %g", got, want)
	}
	// Clockwise order is not a valid quad.
	if got := PairQuality(vs, 0, 3, 2, 1); got != 0 {
		t.Errorf("clockwise quality = %g, want 0", got)
	}
}

func TestBuildGraph(t *testing.T) {
	vs := []mesh.Vertex{{0, 0, 0}, {1, 1, 0}, {2, 1, 1}, {3, 0, 1}}
	tris := []mesh.Triangle{
		{ID: 0, V: [3]int{0, 1, 2}},
		{ID: 1, V: [3]int{0, 2, 3}},
	}
	mesh.BuildAdjacency(tris)

	g := BuildGraph(vs, tris, nil, 0)
	if len(g.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(g.Candidates))
	}
	c := g.Candidates[0]
	if c.T != 0 || c.U != 1 {
		t.Errorf("candidate = (%d, %d), want (0, 1)", c.T, c.U)
	}
	if c.Cost > 1e-12 {
		t.Errorf("cost = %g, want 0", c.Cost)
	}
	if mesh.SignedArea(vs, c.Quad[:]...) <= 0 {
		t.Errorf("quad %v is not counter-clockwise", c.Quad)
	}
	if g.Degree(0) != 1 || g.Degree(1) != 1 {
		t.Errorf("degrees = %d, %d, want 1, 1", g.Degree(0), g.Degree(1))
	}

	// A fixed diagonal or a different surface removes the candidate.
	if g := BuildGraph(vs, tris, map[mesh.EdgeKey]bool{mesh.Key(0, 2): true}, 0); len(g.Candidates) != 0 {
		t.Errorf("fixed edge: candidates = %d, want 0", len(g.Candidates))
	}
	tris[1].Surface = 1
	if g := BuildGraph(vs, tris, nil, 0); len(g.Candidates) != 0 {
		t.Errorf("two surfaces: candidates = %d, want 0", len(g.Candidates))
	}
}

func TestRecombineScenario(t *testing.T) {
	// Rosenbrock-type sizing on the square (-1.25,-0.5)-(1.25,1.25).
	model := rectangle(t, -1.25, -0.5, 2.5, 1.75)
	src := generate(t, model, field.MustAnalytic("0.01*(1+30*(y-x^2)^2+(1-x)^2)"), triangulate.Options{SizeFactor: 5})

	for _, alg := range []Algorithm{Greedy, Blossom} {
		t.Run(alg.String(), func(t *testing.T) {
			h, err := RecombineTriangles(context.Background(), src, Options{Algorithm: alg, MinQuality: 0.01})
			if err != nil {
				t.Fatalf("RecombineTriangles() error: %v", err)
			}
			checkRecombined(t, src, h)
			if err := mesh.CheckConformance(h, model, errors.StageRecombine); err != nil {
				t.Errorf("CheckConformance() error: %v", err)
			}
			if len(h.Quads) == 0 {
				t.Error("no quads produced")
			}
		})
	}
}

func TestBlossomMatchesMoreThanGreedy(t *testing.T) {
	model := rectangle(t, 0, 0, 2, 1)
	src := generate(t, model, field.MustAnalytic("0.05 + 0.05*x"), triangulate.Options{})

	greedy, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Greedy})
	if err != nil {
		t.Fatal(err)
	}
	blossom, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}
	checkRecombined(t, src, blossom)
	if len(blossom.Quads) < len(greedy.Quads) {
		t.Errorf("blossom quads = %d, fewer than greedy %d", len(blossom.Quads), len(greedy.Quads))
	}
}

func TestRecombineFrontal(t *testing.T) {
	model := rectangle(t, 0, 0, 2, 1)
	src := generate(t, model, field.Constant(0.1), triangulate.Options{Frontal: true})

	h, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}
	checkRecombined(t, src, h)
	if frac := float64(2*len(h.Quads)) / float64(len(src.Triangles)); frac < 0.8 {
		t.Errorf("%.0f%% of triangles recombined, want at least 80%%", 100*frac)
	}
}

func TestRecombineMinQuality(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	src := generate(t, model, field.Constant(0.08), triangulate.Options{})

	loose, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}
	strict, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom, MinQuality: 0.7})
	if err != nil {
		t.Fatal(err)
	}
	checkRecombined(t, src, strict)
	for _, q := range strict.Quads {
		if got := PairQuality(strict.Vertices, q.V[0], q.V[1], q.V[2], q.V[3]); got < 0.7 {
			t.Errorf("quad %d quality %g below threshold", q.ID, got)
		}
	}
	if len(strict.Quads) > len(loose.Quads) {
		t.Errorf("threshold 0.7 gave %d quads, more than %d without threshold", len(strict.Quads), len(loose.Quads))
	}
}

func TestRecombineIdempotent(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	src := generate(t, model, field.Constant(0.1), triangulate.Options{})
	h, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}

	// An all-quad mesh is left unchanged.
	quads := Subdivide(h)
	again, err := Recombine(context.Background(), quads, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again, quads) {
		t.Error("recombining an all-quad mesh changed it")
	}

	// A second blossom pass finds nothing left to merge.
	twice, err := Recombine(context.Background(), h, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(twice, h) {
		t.Errorf("second pass changed the mesh: %d -> %d quads", len(h.Quads), len(twice.Quads))
	}
}

func TestRecombineDeterministic(t *testing.T) {
	model := rectangle(t, 0, 0, 2, 1)
	src := generate(t, model, field.MustAnalytic("0.04 + 0.03*y"), triangulate.Options{})
	a, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom, Workers: 8})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("results differ between 1 and 8 workers")
	}
}

func TestRecombineErrors(t *testing.T) {
	if _, err := RecombineTriangles(context.Background(), nil, Options{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil mesh: error = %v, want INVALID_INPUT", err)
	}

	model := rectangle(t, 0, 0, 1, 1)
	src := generate(t, model, field.Constant(0.1), triangulate.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RecombineTriangles(ctx, src, Options{Algorithm: Blossom}); err == nil {
		t.Error("cancelled context: expected error")
	}
}

func TestSubdivide(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	src := generate(t, model, field.Constant(0.2), triangulate.Options{})
	h, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}

	s := Subdivide(h)
	if len(s.Triangles) != 0 {
		t.Errorf("triangles = %d, want 0", len(s.Triangles))
	}
	if got, want := len(s.Quads), 3*len(h.Triangles)+4*len(h.Quads); got != want {
		t.Errorf("quads = %d, want %d", got, want)
	}
	if got, want := len(s.Boundary), 2*len(h.Boundary); got != want {
		t.Errorf("boundary segments = %d, want %d", got, want)
	}
	if err := mesh.Validate(s, 1, errors.StageSubdivide); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := mesh.CheckConformance(s, model, errors.StageSubdivide); err != nil {
		t.Errorf("CheckConformance() error: %v", err)
	}
	for i, v := range h.Vertices {
		if s.Vertices[i] != v {
			t.Fatalf("vertex %d moved: %v -> %v", i, v, s.Vertices[i])
		}
	}
}

func TestSmooth(t *testing.T) {
	square := &mesh.HybridMesh{
		Vertices: []mesh.Vertex{{0, 0, 0}, {1, 2, 0}, {2, 2, 2}, {3, 0, 2}, {4, 0.6, 0.7}},
		Triangles: []mesh.Triangle{
			{ID: 0, V: [3]int{0, 1, 4}},
			{ID: 1, V: [3]int{1, 2, 4}},
			{ID: 2, V: [3]int{2, 3, 4}},
			{ID: 3, V: [3]int{3, 0, 4}},
		},
		Boundary: []mesh.Segment{{V: [2]int{0, 1}, Edge: 0}, {V: [2]int{1, 2}, Edge: 1}, {V: [2]int{2, 3}, Edge: 2}, {V: [2]int{3, 0}, Edge: 3}},
	}
	if n := Smooth(square, 1); n != 1 {
		t.Errorf("Smooth() moved %d vertices, want 1", n)
	}
	if v := square.Vertices[4]; v.X != 1 || v.Y != 1 {
		t.Errorf("center = (%g, %g), want (1, 1)", v.X, v.Y)
	}
	if err := mesh.Validate(square, 4, errors.StageSmooth); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	// In an L-shaped star the neighbour mean lies outside; the move is
	// rejected.
	pts := [][2]float64{{0, 0}, {10, 0}, {10, 1}, {1, 1}, {1, 10}, {0, 10}}
	ell := &mesh.HybridMesh{}
	for i, p := range pts {
		ell.Vertices = append(ell.Vertices, mesh.Vertex{ID: i, X: p[0], Y: p[1]})
		ell.Boundary = append(ell.Boundary, mesh.Segment{V: [2]int{i, (i + 1) % len(pts)}, Edge: i})
	}
	ell.Vertices = append(ell.Vertices, mesh.Vertex{ID: 6, X: 0.5, Y: 0.5})
	for i := range pts {
		ell.Triangles = append(ell.Triangles, mesh.Triangle{ID: i, V: [3]int{i, (i + 1) % len(pts), 6}})
	}
	if n := Smooth(ell, 3); n != 0 {
		t.Errorf("Smooth() moved %d vertices, want 0", n)
	}
	if v := ell.Vertices[6]; v.X != 0.5 || v.Y != 0.5 {
		t.Errorf("vertex moved to (%g, %g)", v.X, v.Y)
	}
}

func TestSmoothRecombined(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	src := generate(t, model, field.MustAnalytic("0.03 + 0.1*x*y"), triangulate.Options{})
	h, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom})
	if err != nil {
		t.Fatal(err)
	}
	before := mesh.ComputeStats(h)
	Smooth(h, 5)
	if err := mesh.Validate(h, 1, errors.StageSmooth); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if err := mesh.CheckConformance(h, model, errors.StageSmooth); err != nil {
		t.Errorf("CheckConformance() error: %v", err)
	}
	after := mesh.ComputeStats(h)
	if after.Quads != before.Quads || after.Triangles != before.Triangles {
		t.Errorf("element counts changed: %+v -> %+v", before, after)
	}
}

func TestRecombineSurfaces(t *testing.T) {
	model := geom.NewModel()
	for _, x := range []float64{0, 2} {
		if _, err := model.AddRectangle(x, 0, 1, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := model.Finalize(); err != nil {
		t.Fatal(err)
	}
	src := generate(t, model, field.Constant(0.25), triangulate.Options{Frontal: true})
	h, err := RecombineTriangles(context.Background(), src, Options{Algorithm: Blossom, Surfaces: []int{0}})
	if err != nil {
		t.Fatalf("RecombineTriangles() error: %v", err)
	}
	checkRecombined(t, src, h)
	if len(h.Quads) == 0 {
		t.Fatal("no quads on the selected surface")
	}
	for _, q := range h.Quads {
		if q.Surface != 0 {
			t.Errorf("quad %d lies on surface %d, want 0", q.ID, q.Surface)
		}
	}
	var untouched int
	for _, tr := range src.Triangles {
		if tr.Surface == 1 {
			untouched++
		}
	}
	var kept int
	for _, tr := range h.Triangles {
		if tr.Surface == 1 {
			kept++
		}
	}
	if kept != untouched {
		t.Errorf("surface 1 kept %d of %d triangles", kept, untouched)
	}
}
