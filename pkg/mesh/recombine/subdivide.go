package recombine

import (
	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// Subdivide returns an all-quad mesh: every quad is split into four and
// every triangle into three quads through its edge midpoints and centroid.
// Midpoints are shared between neighbouring elements and boundary segments
// are split in two, keeping their model edge and order. Original vertices
// keep their IDs; new vertices and all elements are numbered in element
// order. Sources are not carried over.
func Subdivide(h *mesh.HybridMesh) *mesh.HybridMesh {
	out := &mesh.HybridMesh{
		Vertices: append([]mesh.Vertex(nil), h.Vertices...),
	}
	add := func(x, y float64) int {
		id := len(out.Vertices)
		out.Vertices = append(out.Vertices, mesh.Vertex{ID: id, X: x, Y: y})
		return id
	}
	mids := make(map[mesh.EdgeKey]int)
	mid := func(a, b int) int {
		k := mesh.Key(a, b)
		if id, ok := mids[k]; ok {
			return id
		}
		id := add((h.Vertices[a].X+h.Vertices[b].X)/2, (h.Vertices[a].Y+h.Vertices[b].Y)/2)
		mids[k] = id
		return id
	}
	center := func(ids ...int) int {
		var x, y float64
		for _, id := range ids {
			x += h.Vertices[id].X
			y += h.Vertices[id].Y
		}
		n := float64(len(ids))
		return add(x/n, y/n)
	}
	quad := func(surface int, a, b, c, d int) {
		out.Quads = append(out.Quads, mesh.Quad{ID: len(out.Quads), V: [4]int{a, b, c, d}, Surface: surface})
	}

	// Boundary midpoints first, so they are numbered along each model edge.
	for _, s := range h.Boundary {
		m := mid(s.V[0], s.V[1])
		out.Boundary = append(out.Boundary,
			mesh.Segment{V: [2]int{s.V[0], m}, Edge: s.Edge},
			mesh.Segment{V: [2]int{m, s.V[1]}, Edge: s.Edge},
		)
	}

	for _, t := range h.Triangles {
		v := t.V
		m01, m12, m20 := mid(v[0], v[1]), mid(v[1], v[2]), mid(v[2], v[0])
		c := center(v[:]...)
		quad(t.Surface, v[0], m01, c, m20)
		quad(t.Surface, v[1], m12, c, m01)
		quad(t.Surface, v[2], m20, c, m12)
	}
	for _, q := range h.Quads {
		v := q.V
		m01, m12, m23, m30 := mid(v[0], v[1]), mid(v[1], v[2]), mid(v[2], v[3]), mid(v[3], v[0])
		c := center(v[:]...)
		quad(q.Surface, v[0], m01, c, m30)
		quad(q.Surface, m01, v[1], m12, c)
		quad(q.Surface, c, m12, v[2], m23)
		quad(q.Surface, m30, c, m23, v[3])
	}
	return out
}
