package mesh

import (
	"math"
	"testing"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// unitSquare returns the unit square split along its diagonal 0-2.
func unitSquare() *TriangleMesh {
	m := &TriangleMesh{
		Vertices: []Vertex{{0, 0, 0}, {1, 1, 0}, {2, 1, 1}, {3, 0, 1}},
		Triangles: []Triangle{
			{ID: 0, V: [3]int{0, 1, 2}},
			{ID: 1, V: [3]int{0, 2, 3}},
		},
		Boundary: []Segment{
			{V: [2]int{0, 1}, Edge: 0},
			{V: [2]int{1, 2}, Edge: 1},
			{V: [2]int{2, 3}, Edge: 2},
			{V: [2]int{3, 0}, Edge: 3},
		},
	}
	BuildAdjacency(m.Triangles)
	return m
}

func TestBuildAdjacency(t *testing.T) {
	m := unitSquare()
	// Edge 0-2 is opposite vertex 1 in triangle 0 and vertex 3 in triangle 1.
	if got := m.Triangles[0].N; got != [3]int{-1, 1, -1} {
		t.Errorf("N[0] = %v, want [-1 1 -1]", got)
	}
	if got := m.Triangles[1].N; got != [3]int{-1, -1, 0} {
		t.Errorf("N[1] = %v, want [-1 -1 0]", got)
	}
}

func TestValidate(t *testing.T) {
	m := unitSquare()
	if err := Validate(m.Hybrid(), 1, errors.StageValidate); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(h *HybridMesh)
		area   float64
	}{
		{"inverted", func(h *HybridMesh) { h.Triangles[0].V = [3]int{0, 2, 1} }, 1},
		{"missing boundary", func(h *HybridMesh) { h.Boundary = h.Boundary[:3] }, 1},
		{"absent boundary", func(h *HybridMesh) {
			h.Boundary = append(h.Boundary, Segment{V: [2]int{1, 3}, Edge: 9})
		}, 1},
		{"wrong area", func(h *HybridMesh) {}, 2},
		{"overlap", func(h *HybridMesh) {
			h.Triangles = append(h.Triangles, Triangle{ID: 2, V: [3]int{0, 1, 2}})
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := unitSquare().Hybrid()
			tt.mutate(h)
			err := Validate(h, tt.area, errors.StageValidate)
			if !errors.Is(err, errors.ErrCodeMeshingFailed) {
				t.Errorf("Validate() error = %v, want MESHING_FAILED", err)
			}
			if errors.StageOf(err) != errors.StageValidate {
				t.Errorf("stage = %q, want %q", errors.StageOf(err), errors.StageValidate)
			}
		})
	}
}

func TestValidateQuads(t *testing.T) {
	m := unitSquare()
	h := &HybridMesh{
		Vertices: m.Vertices,
		Quads:    []Quad{{ID: 0, V: [4]int{0, 1, 2, 3}, Source: []int{0, 1}}},
		Boundary: m.Boundary,
	}
	if err := Validate(h, 1, errors.StageRecombine); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if err := CheckPartition(m, h); err != nil {
		t.Errorf("CheckPartition() error: %v", err)
	}

	h.Quads[0].V = [4]int{0, 2, 1, 3}
	if err := Validate(h, 1, errors.StageRecombine); err == nil {
		t.Error("self-crossing quad accepted")
	}
}

func TestCheckPartition(t *testing.T) {
	m := unitSquare()
	tests := []struct {
		name string
		h    *HybridMesh
		ok   bool
	}{
		{"all triangles", m.Hybrid(), true},
		{"missing", &HybridMesh{Triangles: m.Triangles[:1]}, false},
		{"twice", &HybridMesh{
			Triangles: m.Triangles[:1],
			Quads:     []Quad{{V: [4]int{0, 1, 2, 3}, Source: []int{0, 1}}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPartition(m, tt.h)
			if (err == nil) != tt.ok {
				t.Errorf("CheckPartition() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestCheckConformance(t *testing.T) {
	model := geom.NewModel()
	if _, err := model.AddRectangle(0, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := model.Finalize(); err != nil {
		t.Fatal(err)
	}
	h := unitSquare().Hybrid()
	if err := CheckConformance(h, model, errors.StageValidate); err != nil {
		t.Fatalf("CheckConformance() error: %v", err)
	}
	h.Vertices[1].Y = 0.1
	if err := CheckConformance(h, model, errors.StageValidate); err == nil {
		t.Error("vertex off the model edge accepted")
	}
}

func TestQuality(t *testing.T) {
	vs := []Vertex{{0, 0, 0}, {1, 2, 0}, {2, 2, 2}, {3, 0, 2}, {4, 0.9, 0.2}}
	if q := QuadQuality(vs, 0, 1, 2, 3); math.Abs(q-1) > 1e-12 {
		t.Errorf("QuadQuality(square) = %g, want 1", q)
	}
	if q := QuadQuality(vs, 0, 1, 4, 3); q != 0 {
		t.Errorf("QuadQuality(non-convex) = %g, want 0", q)
	}
	if r := QuadAspect(vs, 0, 1, 2, 3); r != 1 {
		t.Errorf("QuadAspect(square) = %g, want 1", r)
	}

	eq := []Vertex{{0, 0, 0}, {1, 1, 0}, {2, 0.5, math.Sqrt(3) / 2}}
	if q := TriangleQuality(eq, 0, 1, 2); math.Abs(q-1) > 1e-12 {
		t.Errorf("TriangleQuality(equilateral) = %g, want 1", q)
	}
	if q := TriangleQuality(eq, 0, 2, 1); q != 0 {
		t.Errorf("TriangleQuality(clockwise) = %g, want 0", q)
	}
}

func TestComputeStats(t *testing.T) {
	m := unitSquare()
	h := &HybridMesh{Vertices: m.Vertices, Quads: []Quad{{V: [4]int{0, 1, 2, 3}}}}
	s := ComputeStats(h)
	if s.Quads != 1 || s.MinQuadQuality != 1 || s.Area != 1 {
		t.Errorf("ComputeStats() = %+v", s)
	}
}
