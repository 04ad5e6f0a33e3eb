package mesh

import (
	"fmt"
	"math"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// Validate checks the structural invariants of a planar mesh:
//
//   - every element has positive area and every quadrilateral is convex;
//   - no directed edge is used twice, so elements sharing an edge lie on
//     opposite sides of it;
//   - every boundary segment is an element edge, and every edge used by a
//     single element is a boundary segment (segments on an edge shared by
//     two surfaces are used twice);
//   - the element areas sum to area.
//
// Together these rule out overlaps and gaps. Failures are reported as
// MeshingFailed errors attributed to stage.
func Validate(h *HybridMesh, area float64, stage errors.Stage) error {
	directed := make(map[[2]int]bool, 4*h.NumElements())
	use := func(a, b int) bool {
		k := [2]int{a, b}
		if directed[k] {
			return false
		}
		directed[k] = true
		return true
	}

	for _, t := range h.Triangles {
		if orient(h.Vertices, t.V[0], t.V[1], t.V[2]) <= 0 {
			return errors.MeshingFailed(stage, errors.Triangle(t.ID), "non-positive area")
		}
		for k := 0; k < 3; k++ {
			if !use(t.V[k], t.V[(k+1)%3]) {
				return errors.MeshingFailed(stage, errors.Triangle(t.ID),
					"edge %d-%d overlaps another element", t.V[k], t.V[(k+1)%3])
			}
		}
	}
	for _, q := range h.Quads {
		if !Convex(h.Vertices, q.V[0], q.V[1], q.V[2], q.V[3]) {
			return errors.MeshingFailed(stage, errors.Quad(q.ID), "quadrilateral is not convex")
		}
		for k := 0; k < 4; k++ {
			if !use(q.V[k], q.V[(k+1)%4]) {
				return errors.MeshingFailed(stage, errors.Quad(q.ID),
					"edge %d-%d overlaps another element", q.V[k], q.V[(k+1)%4])
			}
		}
	}

	free := make(map[EdgeKey]bool)
	for k := range directed {
		if !directed[[2]int{k[1], k[0]}] {
			free[Key(k[0], k[1])] = true
		}
	}
	for _, s := range h.Boundary {
		a, b := s.V[0], s.V[1]
		if !directed[[2]int{a, b}] && !directed[[2]int{b, a}] {
			return errors.MeshingFailed(stage, errors.Edge(s.Edge),
				"boundary segment %d-%d is missing", a, b)
		}
		delete(free, Key(a, b))
	}
	if len(free) > 0 {
		first := EdgeKey{math.MaxInt, math.MaxInt}
		for k := range free {
			if k[0] < first[0] || (k[0] == first[0] && k[1] < first[1]) {
				first = k
			}
		}
		return errors.MeshingFailed(stage, errors.Entity{Kind: errors.KindMeshEdge, Name: fmt.Sprintf("%d-%d", first[0], first[1])},
			"free edge is not on the model boundary")
	}

	got := h.Area()
	if math.Abs(got-area) > 1e-9*math.Max(1, math.Abs(area)) {
		return errors.MeshingFailed(stage, errors.Entity{Kind: errors.KindMesh},
			"element area %.12g differs from domain area %.12g", got, area)
	}
	return nil
}

// CheckConformance verifies that the boundary segments of every model edge
// lie on it and cover it exactly.
func CheckConformance(h *HybridMesh, model *geom.Model, stage errors.Stage) error {
	covered := make(map[int]float64)
	for _, s := range h.Boundary {
		e, ok := model.Edge(geom.EdgeID(s.Edge))
		if !ok {
			return errors.MeshingFailed(stage, errors.Edge(s.Edge), "segment references an unknown model edge")
		}
		a, _ := model.Vertex(e.V1)
		b, _ := model.Vertex(e.V2)
		tol := 1e-9 * math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y))
		for _, v := range s.V {
			p := h.Vertices[v]
			if geom.PointSegmentDistance(p.X, p.Y, a.X, a.Y, b.X, b.Y) > tol {
				return errors.MeshingFailed(stage, errors.Edge(s.Edge), "mesh vertex %d leaves the model edge", v)
			}
		}
		covered[s.Edge] += Length(h.Vertices, s.V[0], s.V[1])
	}
	for id, l := range covered {
		e, _ := model.Edge(geom.EdgeID(id))
		a, _ := model.Vertex(e.V1)
		b, _ := model.Vertex(e.V2)
		want := math.Hypot(b.X-a.X, b.Y-a.Y)
		if math.Abs(l-want) > 1e-9*math.Max(1, want) {
			return errors.MeshingFailed(stage, errors.Edge(id), "segments cover length %g of %g", l, want)
		}
	}
	return nil
}

// CheckPartition verifies that the triangles and quadrilaterals of h use
// every triangle of src exactly once.
func CheckPartition(src *TriangleMesh, h *HybridMesh) error {
	seen := make([]bool, len(src.Triangles))
	mark := func(id int) error {
		if id < 0 || id >= len(seen) {
			return errors.MatchingFailed("element references unknown triangle %d", id)
		}
		if seen[id] {
			return errors.MatchingFailed("triangle %d used twice", id).On(errors.Triangle(id))
		}
		seen[id] = true
		return nil
	}
	for _, t := range h.Triangles {
		if err := mark(t.ID); err != nil {
			return err
		}
	}
	for _, q := range h.Quads {
		for _, id := range q.Source {
			if err := mark(id); err != nil {
				return err
			}
		}
	}
	for id, ok := range seen {
		if !ok {
			return errors.MatchingFailed("triangle %d is not covered", id).On(errors.Triangle(id))
		}
	}
	return nil
}
