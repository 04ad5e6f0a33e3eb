package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// square builds the unit square loop and returns the model and loop id.
func square(t *testing.T, m *Model, x0, y0, side float64) LoopID {
	t.Helper()
	var vs [4]VertexID
	pts := [4][2]float64{{x0, y0}, {x0 + side, y0}, {x0 + side, y0 + side}, {x0, y0 + side}}
	for i, p := range pts {
		v, err := m.AddVertex(p[0], p[1])
		if err != nil {
			t.Fatalf("AddVertex: %v", err)
		}
		vs[i] = v
	}
	var es [4]EdgeID
	for i := range vs {
		e, err := m.AddEdge(vs[i], vs[(i+1)%4])
		if err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		es[i] = e
	}
	l, err := m.AddLoop(es[:]...)
	if err != nil {
		t.Fatalf("AddLoop: %v", err)
	}
	return l
}

func TestInsertionOrderIDs(t *testing.T) {
	m := NewModel()
	for i := 0; i < 3; i++ {
		id, err := m.AddVertex(float64(i), float64(i*i))
		if err != nil {
			t.Fatal(err)
		}
		if int(id) != i {
			t.Errorf("AddVertex() id = %d, want %d", id, i)
		}
	}
	e, _ := m.AddEdge(0, 1)
	if e != 0 {
		t.Errorf("AddEdge() id = %d, want 0", e)
	}
}

func TestAddEdgeDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		build  func(m *Model) (VertexID, VertexID)
		code   errors.Code
		entity errors.EntityKind
	}{
		{
			name: "same vertex",
			build: func(m *Model) (VertexID, VertexID) {
				v, _ := m.AddVertex(0, 0)
				return v, v
			},
			code:   errors.ErrCodeDegenerateGeometry,
			entity: errors.KindEdge,
		},
		{
			name: "coincident vertices",
			build: func(m *Model) (VertexID, VertexID) {
				a, _ := m.AddVertex(1, 1)
				b, _ := m.AddVertex(1, 1)
				return a, b
			},
			code:   errors.ErrCodeDegenerateGeometry,
			entity: errors.KindEdge,
		},
		{
			name: "duplicate reversed",
			build: func(m *Model) (VertexID, VertexID) {
				a, _ := m.AddVertex(0, 0)
				b, _ := m.AddVertex(1, 0)
				_, _ = m.AddEdge(a, b)
				return b, a
			},
			code:   errors.ErrCodeDegenerateGeometry,
			entity: errors.KindEdge,
		},
		{
			name: "unknown vertex",
			build: func(m *Model) (VertexID, VertexID) {
				a, _ := m.AddVertex(0, 0)
				return a, 42
			},
			code:   errors.ErrCodeUnknownEntity,
			entity: errors.KindVertex,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel()
			a, b := tt.build(m)
			_, err := m.AddEdge(a, b)
			if !errors.Is(err, tt.code) {
				t.Fatalf("AddEdge() error = %v, want %v", err, tt.code)
			}
			if ent, ok := errors.EntityOf(err); !ok || ent.Kind != tt.entity {
				t.Errorf("EntityOf() = %v, want kind %v", ent, tt.entity)
			}
			if errors.CategoryOf(err) != errors.CategoryGeometry {
				t.Errorf("CategoryOf() = %v", errors.CategoryOf(err))
			}
		})
	}
}

func TestAddLoop(t *testing.T) {
	m := NewModel()
	a, _ := m.AddVertex(0, 0)
	b, _ := m.AddVertex(1, 0)
	c, _ := m.AddVertex(1, 1)
	d, _ := m.AddVertex(0, 1)
	ab, _ := m.AddEdge(a, b)
	cb, _ := m.AddEdge(c, b) // reversed on purpose
	cd, _ := m.AddEdge(c, d)
	da, _ := m.AddEdge(d, a)

	l, err := m.AddLoop(ab, cb, cd, da)
	if err != nil {
		t.Fatalf("AddLoop() error = %v", err)
	}
	loop, _ := m.Loop(l)
	wantVerts := []VertexID{a, b, c, d}
	for i, v := range wantVerts {
		if loop.Vertices[i] != v {
			t.Errorf("Vertices[%d] = %d, want %d", i, loop.Vertices[i], v)
		}
	}
	if !loop.Reversed[1] || loop.Reversed[0] {
		t.Errorf("Reversed = %v, want [false true false false]", loop.Reversed)
	}

	if _, err := m.AddLoop(ab, cd, da); !errors.Is(err, errors.ErrCodeOpenLoop) {
		t.Errorf("AddLoop(open) error = %v, want %v", err, errors.ErrCodeOpenLoop)
	}
	if _, err := m.AddLoop(ab, cb); !errors.Is(err, errors.ErrCodeOpenLoop) {
		t.Errorf("AddLoop(two edges) error = %v, want %v", err, errors.ErrCodeOpenLoop)
	}
}

// loopThrough registers a closed loop through pts in the given order.
func loopThrough(t *testing.T, m *Model, pts [][2]float64) (LoopID, error) {
	t.Helper()
	var vs []VertexID
	for _, p := range pts {
		v, err := m.AddVertex(p[0], p[1])
		if err != nil {
			t.Fatalf("AddVertex: %v", err)
		}
		vs = append(vs, v)
	}
	var es []EdgeID
	for i := range vs {
		e, err := m.AddEdge(vs[i], vs[(i+1)%len(vs)])
		if err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		es = append(es, e)
	}
	return m.AddLoop(es...)
}

func TestAddLoopClockwise(t *testing.T) {
	m := NewModel()
	outer, err := loopThrough(t, m, [][2]float64{{0, 0}, {0, 4}, {4, 4}, {4, 0}})
	if err != nil {
		t.Fatalf("AddLoop(clockwise square) error = %v", err)
	}
	hole, err := loopThrough(t, m, [][2]float64{{1, 1}, {1, 2}, {2, 2}, {2, 1}})
	if err != nil {
		t.Fatalf("AddLoop(clockwise hole) error = %v", err)
	}
	s, err := m.AddSurface(outer, hole)
	if err != nil {
		t.Fatalf("AddSurface() error = %v", err)
	}
	if got := m.Area(s); math.Abs(got-15) > 1e-12 {
		t.Errorf("Area() = %g, want 15", got)
	}
	poly := m.Polygon(s)
	if poly[0].Orientation() != orb.CCW || poly[1].Orientation() != orb.CW {
		t.Errorf("Polygon() orientations = %v, %v, want CCW outer and CW hole",
			poly[0].Orientation(), poly[1].Orientation())
	}

	flat := NewModel()
	if _, err := loopThrough(t, flat, [][2]float64{{0, 0}, {2, 0}, {1, 0}}); !errors.Is(err, errors.ErrCodeDegenerateGeometry) {
		t.Errorf("AddLoop(zero area) error = %v, want %v", err, errors.ErrCodeDegenerateGeometry)
	}
}

func TestAddLoopCollinear(t *testing.T) {
	m := NewModel()
	a, _ := m.AddVertex(0, 0)
	b, _ := m.AddVertex(1, 0)
	c, _ := m.AddVertex(2, 0)
	e1, _ := m.AddEdge(a, b)
	e2, _ := m.AddEdge(b, c)
	e3, _ := m.AddEdge(c, a)
	if _, err := m.AddLoop(e1, e2, e3); !errors.Is(err, errors.ErrCodeDegenerateGeometry) {
		t.Errorf("AddLoop(collinear) error = %v, want %v", err, errors.ErrCodeDegenerateGeometry)
	}
}

func TestAddSurfaceSelfIntersection(t *testing.T) {
	// Asymmetric bow-tie: edges (0,0)-(2,1) and (2,0)-(0,2) cross.
	m := NewModel()
	a, _ := m.AddVertex(0, 0)
	b, _ := m.AddVertex(2, 1)
	c, _ := m.AddVertex(2, 0)
	d, _ := m.AddVertex(0, 2)
	e1, _ := m.AddEdge(a, b)
	e2, _ := m.AddEdge(b, c)
	e3, _ := m.AddEdge(c, d)
	e4, _ := m.AddEdge(d, a)
	l, err := m.AddLoop(e1, e2, e3, e4)
	if err != nil {
		t.Fatalf("AddLoop() error = %v", err)
	}
	if _, err := m.AddSurface(l); !errors.Is(err, errors.ErrCodeSelfIntersection) {
		t.Errorf("AddSurface() error = %v, want %v", err, errors.ErrCodeSelfIntersection)
	}
}

func TestAddSurfaceWithHole(t *testing.T) {
	m := NewModel()
	outer := square(t, m, 0, 0, 4)
	hole := square(t, m, 1, 1, 1)
	s, err := m.AddSurface(outer, hole)
	if err != nil {
		t.Fatalf("AddSurface() error = %v", err)
	}
	if got := m.Area(s); math.Abs(got-15) > 1e-12 {
		t.Errorf("Area() = %v, want 15", got)
	}
	poly := m.Polygon(s)
	if len(poly) != 2 {
		t.Fatalf("Polygon() rings = %d, want 2", len(poly))
	}

	outside := square(t, m, 10, 10, 1)
	if _, err := m.AddSurface(outer, outside); !errors.Is(err, errors.ErrCodeDegenerateGeometry) {
		t.Errorf("AddSurface(hole outside) error = %v, want %v", err, errors.ErrCodeDegenerateGeometry)
	}

	crossing := square(t, m, 3, 3, 2)
	if _, err := m.AddSurface(outer, crossing); !errors.Is(err, errors.ErrCodeSelfIntersection) {
		t.Errorf("AddSurface(crossing hole) error = %v, want %v", err, errors.ErrCodeSelfIntersection)
	}
}

func TestFinalize(t *testing.T) {
	m := NewModel()
	if err := m.Finalize(); err == nil {
		t.Error("Finalize() on empty model = nil, want error")
	}
	if _, err := m.AddRectangle(0, 0, 2, 1); err != nil {
		t.Fatalf("AddRectangle() error = %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Errorf("second Finalize() error = %v", err)
	}
	if _, err := m.AddVertex(5, 5); !errors.Is(err, errors.ErrCodeModelFinalized) {
		t.Errorf("AddVertex() after Finalize error = %v, want %v", err, errors.ErrCodeModelFinalized)
	}
	if got := m.Area(0); math.Abs(got-2) > 1e-12 {
		t.Errorf("Area() = %v, want 2", got)
	}
}

func TestPredicates(t *testing.T) {
	if Orient2D(0, 0, 1, 0, 0, 1) <= 0 {
		t.Error("Orient2D(ccw) <= 0")
	}
	if InCircle(0, 0, 1, 0, 0, 1, 0.5, 0.5) <= 0 {
		t.Error("InCircle(inside) <= 0")
	}
	if InCircle(0, 0, 1, 0, 0, 1, 2, 2) >= 0 {
		t.Error("InCircle(outside) >= 0")
	}
	if !SegmentsCross(0, 0, 1, 1, 0, 1, 1, 0) {
		t.Error("SegmentsCross(x) = false")
	}
	if SegmentsCross(0, 0, 1, 0, 1, 0, 2, 1) {
		t.Error("SegmentsCross(touching) = true")
	}
	if !SegmentsIntersect(0, 0, 1, 0, 1, 0, 2, 1) {
		t.Error("SegmentsIntersect(touching) = false")
	}
	if d := PointSegmentDistance(0.5, 1, 0, 0, 1, 0); math.Abs(d-1) > 1e-15 {
		t.Errorf("PointSegmentDistance() = %v, want 1", d)
	}
}
