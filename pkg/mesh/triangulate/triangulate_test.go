package triangulate

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
	"github.com/matzehuels/quadmesh/pkg/mesh"
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

// twoSquares returns [0,2]x[0,1] split into two surfaces sharing edge 1.
func twoSquares(t *testing.T) *geom.Model {
	t.Helper()
	m := geom.NewModel()
	var v []geom.VertexID
	for _, p := range [][2]float64{{0, 0}, {1, 0}, {2, 0}, {2, 1}, {1, 1}, {0, 1}} {
		id, err := m.AddVertex(p[0], p[1])
		if err != nil {
			t.Fatal(err)
		}
		v = append(v, id)
	}
	edge := func(a, b int) geom.EdgeID {
		e, err := m.AddEdge(v[a], v[b])
		if err != nil {
			t.Fatal(err)
		}
		return e
	}
	e0, e1, e2, e3 := edge(0, 1), edge(1, 4), edge(4, 5), edge(5, 0)
	e4, e5, e6 := edge(1, 2), edge(2, 3), edge(3, 4)
	for _, loop := range [][]geom.EdgeID{{e0, e1, e2, e3}, {e4, e5, e6, e1}} {
		l, err := m.AddLoop(loop...)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.AddSurface(l); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	return m
}

// squareWithHole returns [0,3]x[0,3] minus [1,2]x[1,2], both loops
// counter-clockwise.
func squareWithHole(t *testing.T) *geom.Model {
	t.Helper()
	return woundSquareWithHole(t, false, false)
}

// woundSquareWithHole builds the squareWithHole domain with the outer loop
// and the hole traversed clockwise when requested.
func woundSquareWithHole(t *testing.T, outerCW, holeCW bool) *geom.Model {
	t.Helper()
	m := geom.NewModel()
	loop := func(pts [][2]float64) geom.LoopID {
		var vs []geom.VertexID
		for _, p := range pts {
			id, err := m.AddVertex(p[0], p[1])
			if err != nil {
				t.Fatal(err)
			}
			vs = append(vs, id)
		}
		var es []geom.EdgeID
		for i := range vs {
			e, err := m.AddEdge(vs[i], vs[(i+1)%len(vs)])
			if err != nil {
				t.Fatal(err)
			}
			es = append(es, e)
		}
		l, err := m.AddLoop(es...)
		if err != nil {
			t.Fatal(err)
		}
		return l
	}
	wind := func(pts [][2]float64, cw bool) [][2]float64 {
		if cw {
			for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
				pts[i], pts[j] = pts[j], pts[i]
			}
		}
		return pts
	}
	outer := loop(wind([][2]float64{{0, 0}, {3, 0}, {3, 3}, {0, 3}}, outerCW))
	hole := loop(wind([][2]float64{{1, 1}, {2, 1}, {2, 2}, {1, 2}}, holeCW))
	if _, err := m.AddSurface(outer, hole); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	return m
}

func edgeSet(m *mesh.TriangleMesh) map[mesh.EdgeKey]int {
	out := make(map[mesh.EdgeKey]int)
	for _, tri := range m.Triangles {
		for k := 0; k < 3; k++ {
			out[mesh.Key(tri.V[k], tri.V[(k+1)%3])]++
		}
	}
	return out
}

func TestGenerateConstant(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	h := 0.1
	m, err := Generate(context.Background(), model, field.Constant(h), Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got := m.Area(); math.Abs(got-1) > 1e-9 {
		t.Errorf("Area() = %g, want 1", got)
	}
	if got := len(m.Boundary); got != 40 {
		t.Errorf("boundary segments = %d, want 40", got)
	}
	edges := edgeSet(m)
	for _, s := range m.Boundary {
		if n := edges[mesh.Key(s.V[0], s.V[1])]; n != 1 {
			t.Errorf("boundary segment %v used %d times, want 1", s.V, n)
		}
	}
	for e := range edges {
		if l := mesh.Length(m.Vertices, e[0], e[1]); l > math.Sqrt2*h*(1+1e-6) {
			t.Errorf("edge %v has length %g, above %g", e, l, math.Sqrt2*h)
		}
	}
	// Model vertices keep their ids.
	for i, v := range model.Vertices() {
		if m.Vertices[i].X != v.X || m.Vertices[i].Y != v.Y {
			t.Errorf("vertex %d = (%g, %g), want (%g, %g)", i, m.Vertices[i].X, m.Vertices[i].Y, v.X, v.Y)
		}
	}
}

func TestGenerateEdgeBand(t *testing.T) {
	// Splitting caps every edge at √2·h; nothing removes short edges, so
	// only most of them land in [0.7, 1.3]·h.
	model := rectangle(t, 0, 0, 2, 1)
	h := 0.1
	m, err := Generate(context.Background(), model, field.Constant(h), Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	edges := edgeSet(m)
	inBand := 0
	for e := range edges {
		r := mesh.Length(m.Vertices, e[0], e[1]) / h
		if r > math.Sqrt2*(1+1e-6) {
			t.Errorf("edge %v has ratio %g, above √2", e, r)
		}
		if r >= 0.7 && r <= 1.3 {
			inBand++
		}
	}
	if frac := float64(inBand) / float64(len(edges)); frac < 0.6 {
		t.Errorf("%d of %d edges (%.2f) in [0.7, 1.3]·h, want at least 0.6", inBand, len(edges), frac)
	}
}

func TestGenerateAnalytic(t *testing.T) {
	// Rosenbrock-type sizing on the square (-1.25,-0.5)-(1.25,1.25).
	model := rectangle(t, -1.25, -0.5, 2.5, 1.75)
	f := field.MustAnalytic("0.01*(1+30*(y-x^2)^2+(1-x)^2)")
	m, err := Generate(context.Background(), model, f, Options{SizeFactor: 5})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got := m.Area(); math.Abs(got-4.375) > 1e-9 {
		t.Errorf("Area() = %g, want 4.375", got)
	}
	if err := mesh.Validate(m.Hybrid(), 4.375, errors.StageValidate); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	// The mesh is finer near the valley y = x² than far from it.
	mean := func(pred func(x, y float64) bool) float64 {
		var sum float64
		var n int
		for _, tri := range m.Triangles {
			a, b, c := m.Vertices[tri.V[0]], m.Vertices[tri.V[1]], m.Vertices[tri.V[2]]
			cx, cy := (a.X+b.X+c.X)/3, (a.Y+b.Y+c.Y)/3
			if pred(cx, cy) {
				sum += mesh.SignedArea(m.Vertices, tri.V[:]...)
				n++
			}
		}
		return sum / float64(n)
	}
	valley := mean(func(x, y float64) bool { return math.Abs(y-x*x) < 0.05 && x > 0.5 })
	far := mean(func(x, y float64) bool { return y > 0.8 && x < -0.3 })
	if !(valley < far) {
		t.Errorf("mean triangle area near valley %g not below far field %g", valley, far)
	}
}

func TestGenerateAnisotropic(t *testing.T) {
	model := rectangle(t, -1, -1, 2, 2)
	var samples []field.Sample
	for _, x := range []float64{-1, 0, 1} {
		for _, y := range []float64{-1, 0, 1} {
			m := geom.Anisotropic(0.4, 0.04, 0)
			samples = append(samples, field.Sample{X: x, Y: y, Tensor: &m})
		}
	}
	bg, err := field.NewBackground(samples, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	elongation := func(opts Options) float64 {
		t.Helper()
		m, err := Generate(context.Background(), model, bg, opts)
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if got := m.Area(); math.Abs(got-4) > 1e-9 {
			t.Errorf("Area() = %g, want 4", got)
		}
		var sum float64
		for _, tri := range m.Triangles {
			minX, minY, maxX, maxY := mesh.Bound([]mesh.Vertex{
				m.Vertices[tri.V[0]], m.Vertices[tri.V[1]], m.Vertices[tri.V[2]],
			})
			sum += (maxX - minX) / (maxY - minY)
		}
		return sum / float64(len(m.Triangles))
	}

	aniso := elongation(Options{Anisotropic: true})
	if aniso < 3 {
		t.Errorf("mean x/y extent ratio = %g, want elongated triangles (>= 3)", aniso)
	}
	clamped := elongation(Options{Anisotropic: true, AnisoMax: 2})
	if !(clamped < aniso) {
		t.Errorf("AnisoMax=2 ratio %g not below unclamped %g", clamped, aniso)
	}
}

func TestGenerateUnmeshable(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	for _, src := range []string{"0", "-0.1", "x - 5"} {
		t.Run(src, func(t *testing.T) {
			_, err := Generate(context.Background(), model, field.MustAnalytic(src), Options{})
			if !errors.Is(err, errors.ErrCodeUnmeshable) {
				t.Fatalf("Generate() error = %v, want UNMESHABLE", err)
			}
			if errors.CategoryOf(err) != errors.CategoryMeshing {
				t.Errorf("category = %s, want %s", errors.CategoryOf(err), errors.CategoryMeshing)
			}
			if ent, ok := errors.EntityOf(err); !ok || ent.Kind != errors.KindEdge {
				t.Errorf("entity = %v, want an edge", ent)
			}
		})
	}
}

func TestGenerateFieldDomain(t *testing.T) {
	model := rectangle(t, 0, 0, 2, 2)
	samples := []field.Sample{{X: 0, Y: 0, Size: 0.5}, {X: 1, Y: 0, Size: 0.5}, {X: 0, Y: 1, Size: 0.5}}
	bg, err := field.NewBackground(samples, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Generate(context.Background(), model, bg, Options{})
	if !errors.Is(err, errors.ErrCodeDomain) {
		t.Errorf("Generate() error = %v, want DOMAIN", err)
	}
}

func TestGenerateSharedEdge(t *testing.T) {
	model := twoSquares(t)
	m, err := Generate(context.Background(), model, field.Constant(0.25), Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	edges := edgeSet(m)
	for _, s := range m.Boundary {
		want := 1
		if s.Edge == 1 {
			want = 2
		}
		if n := edges[mesh.Key(s.V[0], s.V[1])]; n != want {
			t.Errorf("segment %v of edge %d used %d times, want %d", s.V, s.Edge, n, want)
		}
	}
	surfaces := map[int]int{}
	for _, tri := range m.Triangles {
		surfaces[tri.Surface]++
	}
	if len(surfaces) != 2 {
		t.Errorf("triangles per surface = %v, want two surfaces", surfaces)
	}
}

func TestGenerateHole(t *testing.T) {
	model := squareWithHole(t)
	m, err := Generate(context.Background(), model, field.Constant(0.3), Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got := m.Area(); math.Abs(got-8) > 1e-9 {
		t.Errorf("Area() = %g, want 8", got)
	}
	for _, tri := range m.Triangles {
		a, b, c := m.Vertices[tri.V[0]], m.Vertices[tri.V[1]], m.Vertices[tri.V[2]]
		cx, cy := (a.X+b.X+c.X)/3, (a.Y+b.Y+c.Y)/3
		if cx > 1 && cx < 2 && cy > 1 && cy < 2 {
			t.Fatalf("triangle %d lies inside the hole", tri.ID)
		}
	}
}

func TestGenerateWinding(t *testing.T) {
	tests := []struct {
		name            string
		outerCW, holeCW bool
	}{
		{"ccw outer, ccw hole", false, false},
		{"cw outer, ccw hole", true, false},
		{"ccw outer, cw hole", false, true},
		{"cw outer, cw hole", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := woundSquareWithHole(t, tt.outerCW, tt.holeCW)
			if got := model.Area(0); math.Abs(got-8) > 1e-12 {
				t.Errorf("model Area() = %g, want 8", got)
			}
			m, err := Generate(context.Background(), model, field.Constant(0.3), Options{})
			if err != nil {
				t.Fatalf("Generate() error: %v", err)
			}
			h := m.Hybrid()
			if err := mesh.Validate(h, 8, errors.StageTriangulate); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
			if err := mesh.CheckConformance(h, model, errors.StageTriangulate); err != nil {
				t.Errorf("CheckConformance() error: %v", err)
			}
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	model := twoSquares(t)
	f := field.MustAnalytic("0.05 + 0.1*x")
	a, err := Generate(context.Background(), model, f, Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(context.Background(), model, f, Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("output depends on the worker count")
	}
}

func TestGenerateFrontal(t *testing.T) {
	model := rectangle(t, 0, 0, 2, 1)
	m, err := Generate(context.Background(), model, field.Constant(0.1), Options{Frontal: true})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got := m.Area(); math.Abs(got-2) > 1e-9 {
		t.Errorf("Area() = %g, want 2", got)
	}
	// A lattice of right triangle pairs has about 2·A/h² triangles.
	if n := len(m.Triangles); n < 300 || n > 600 {
		t.Errorf("triangles = %d, want about 400", n)
	}
}

func TestGenerateBudget(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	_, err := Generate(context.Background(), model, field.Constant(0.01), Options{MaxVertices: 500})
	if !errors.Is(err, errors.ErrCodeVertexBudget) {
		t.Errorf("Generate() error = %v, want VERTEX_BUDGET", err)
	}
}

func TestGenerateOptions(t *testing.T) {
	model := rectangle(t, 0, 0, 1, 1)
	coarse, err := Generate(context.Background(), model, field.Constant(0.05), Options{SizeFactor: 2})
	if err != nil {
		t.Fatal(err)
	}
	fine, err := Generate(context.Background(), model, field.Constant(0.05), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !(len(coarse.Triangles) < len(fine.Triangles)) {
		t.Errorf("SizeFactor=2 gave %d triangles, not fewer than %d", len(coarse.Triangles), len(fine.Triangles))
	}
	clamped, err := Generate(context.Background(), model, field.Constant(0.05), Options{SizeMin: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(clamped.Boundary); got != 20 {
		t.Errorf("SizeMin=0.2 boundary segments = %d, want 20", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	open := geom.NewModel()
	if _, err := open.AddRectangle(0, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := Generate(context.Background(), open, field.Constant(0.1), Options{}); err == nil {
		t.Error("unfinalized model accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Generate(ctx, rectangle(t, 0, 0, 1, 1), field.Constant(0.1), Options{}); err == nil {
		t.Error("cancelled context ignored")
	}
}
