package mesh

import (
	"math"

	"github.com/matzehuels/quadmesh/pkg/geom"
)

// Vertex is a mesh node. IDs are dense, starting at zero.
type Vertex struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Triangle is a counter-clockwise triangle. N[i] is the triangle across the
// edge opposite V[i], or -1 on the boundary.
type Triangle struct {
	ID      int    `json:"id"`
	V       [3]int `json:"v"`
	N       [3]int `json:"-"`
	Surface int    `json:"surface"`
}

// Quad is a counter-clockwise quadrilateral. Source lists the IDs of the
// triangles it was built from.
type Quad struct {
	ID      int    `json:"id"`
	V       [4]int `json:"v"`
	Source  []int  `json:"source,omitempty"`
	Surface int    `json:"surface"`
}

// Segment is a boundary mesh edge lying on model edge Edge. Segments of one
// model edge are ordered from the edge's first vertex to its second.
type Segment struct {
	V    [2]int `json:"v"`
	Edge int    `json:"edge"`
}

// TriangleMesh is the output of triangulation.
type TriangleMesh struct {
	Vertices  []Vertex   `json:"vertices"`
	Triangles []Triangle `json:"triangles"`
	Boundary  []Segment  `json:"boundary"`
}

// HybridMesh mixes triangles and quadrilaterals. Triangles keep the IDs they
// had in the TriangleMesh they came from until a subdivision renumbers
// elements.
type HybridMesh struct {
	Vertices  []Vertex   `json:"vertices"`
	Triangles []Triangle `json:"triangles"`
	Quads     []Quad     `json:"quads"`
	Boundary  []Segment  `json:"boundary"`
}

// Hybrid returns m as a hybrid mesh with no quadrilaterals.
func (m *TriangleMesh) Hybrid() *HybridMesh {
	return &HybridMesh{
		Vertices:  append([]Vertex(nil), m.Vertices...),
		Triangles: append([]Triangle(nil), m.Triangles...),
		Boundary:  append([]Segment(nil), m.Boundary...),
	}
}

// Clone returns a deep copy of h.
func (h *HybridMesh) Clone() *HybridMesh {
	out := &HybridMesh{
		Vertices:  append([]Vertex(nil), h.Vertices...),
		Triangles: append([]Triangle(nil), h.Triangles...),
		Quads:     make([]Quad, len(h.Quads)),
		Boundary:  append([]Segment(nil), h.Boundary...),
	}
	for i, q := range h.Quads {
		q.Source = append([]int(nil), q.Source...)
		out.Quads[i] = q
	}
	return out
}

// NumElements returns the number of triangles plus quadrilaterals.
func (h *HybridMesh) NumElements() int { return len(h.Triangles) + len(h.Quads) }

// =============================================================================
// Areas
// =============================================================================

// SignedArea returns the signed area of the polygon through the given
// vertices (positive when counter-clockwise).
func SignedArea(vs []Vertex, ids ...int) float64 {
	var a float64
	for i := range ids {
		p, q := vs[ids[i]], vs[ids[(i+1)%len(ids)]]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// Area returns the total area of the triangles.
func (m *TriangleMesh) Area() float64 {
	var a float64
	for _, t := range m.Triangles {
		a += SignedArea(m.Vertices, t.V[:]...)
	}
	return a
}

// Area returns the total area of all elements.
func (h *HybridMesh) Area() float64 {
	var a float64
	for _, t := range h.Triangles {
		a += SignedArea(h.Vertices, t.V[:]...)
	}
	for _, q := range h.Quads {
		a += SignedArea(h.Vertices, q.V[:]...)
	}
	return a
}

// =============================================================================
// Adjacency
// =============================================================================

// EdgeKey is an undirected edge, smaller vertex first.
type EdgeKey [2]int

// Key returns the undirected key of edge (a, b).
func Key(a, b int) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{a, b}
}

// BuildAdjacency fills the N field of every triangle from shared edges.
func BuildAdjacency(tris []Triangle) {
	type side struct{ tri, edge int }
	seen := make(map[EdgeKey]side, 3*len(tris)/2)
	for i := range tris {
		tris[i].N = [3]int{-1, -1, -1}
	}
	for i, t := range tris {
		for k := 0; k < 3; k++ {
			key := Key(t.V[(k+1)%3], t.V[(k+2)%3])
			if s, ok := seen[key]; ok {
				tris[i].N[k] = s.tri
				tris[s.tri].N[s.edge] = i
				delete(seen, key)
				continue
			}
			seen[key] = side{i, k}
		}
	}
}

// Bound returns the bounding box of the vertices as min and max corners.
func Bound(vs []Vertex) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, v := range vs {
		minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
		minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
	}
	return
}

// Length returns the Euclidean length of edge (a, b).
func Length(vs []Vertex, a, b int) float64 {
	return math.Hypot(vs[b].X-vs[a].X, vs[b].Y-vs[a].Y)
}

// orient returns twice the signed area of (a, b, c).
func orient(vs []Vertex, a, b, c int) float64 {
	return geom.Orient2D(vs[a].X, vs[a].Y, vs[b].X, vs[b].Y, vs[c].X, vs[c].Y)
}
