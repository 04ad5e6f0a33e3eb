package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// VertexID identifies a model vertex. IDs are assigned in insertion order
// starting at zero.
type VertexID int

// EdgeID identifies a model edge.
type EdgeID int

// LoopID identifies a closed loop of edges.
type LoopID int

// SurfaceID identifies a plane surface.
type SurfaceID int

// Vertex is a model point. Size is the optional characteristic length
// attached at creation; zero means unset.
type Vertex struct {
	ID   VertexID
	X, Y float64
	Size float64
}

// Edge is a straight boundary segment between two vertices. Every model edge
// is a constraint that must appear in the generated mesh.
type Edge struct {
	ID     EdgeID
	V1, V2 VertexID
}

// Loop is a closed cycle of edges. Vertices lists the cycle in traversal
// order without repeating the first vertex; Reversed[i] is true when
// Edges[i] is traversed from V2 to V1.
type Loop struct {
	ID       LoopID
	Edges    []EdgeID
	Reversed []bool
	Vertices []VertexID
}

// Surface is a plane region bounded by an outer loop and optional holes.
type Surface struct {
	ID    SurfaceID
	Outer LoopID
	Holes []LoopID
}

// Loops returns the outer loop followed by the holes.
func (s Surface) Loops() []LoopID {
	return append([]LoopID{s.Outer}, s.Holes...)
}

// Model is a planar straight-line graph of vertices, edges, loops and
// surfaces. It accepts declarations in any order consistent with referential
// integrity and becomes read-only after Finalize.
//
// A Model is not safe for concurrent mutation. After Finalize it may be read
// from any number of goroutines.
type Model struct {
	vertices []Vertex
	edges    []Edge
	loops    []Loop
	surfaces []Surface

	edgeIndex map[[2]VertexID]EdgeID
	finalized bool
}

// NewModel creates an empty geometry model.
func NewModel() *Model {
	return &Model{edgeIndex: make(map[[2]VertexID]EdgeID)}
}

// AddVertex registers a point and returns its id.
func (m *Model) AddVertex(x, y float64) (VertexID, error) {
	return m.AddVertexWithSize(x, y, 0)
}

// AddVertexWithSize registers a point carrying a characteristic length.
// A size of zero leaves the annotation unset.
func (m *Model) AddVertexWithSize(x, y, size float64) (VertexID, error) {
	if m.finalized {
		return -1, errors.ModelFinalized()
	}
	id := VertexID(len(m.vertices))
	if err := errors.ValidateCoordinate(errors.Vertex(int(id)), x, y); err != nil {
		return -1, err
	}
	if size < 0 || math.IsNaN(size) {
		return -1, errors.DegenerateGeometry(errors.Vertex(int(id)), "size %g must not be negative", size)
	}
	m.vertices = append(m.vertices, Vertex{ID: id, X: x, Y: y, Size: size})
	return id, nil
}

// AddEdge registers a straight boundary segment from v1 to v2.
//
// It fails with GEOMETRY_DEGENERATE when v1 == v2, when the two vertices are
// coincident in space, or when an edge between the same vertices already
// exists in either direction.
func (m *Model) AddEdge(v1, v2 VertexID) (EdgeID, error) {
	if m.finalized {
		return -1, errors.ModelFinalized()
	}
	id := EdgeID(len(m.edges))
	for _, v := range []VertexID{v1, v2} {
		if !m.hasVertex(v) {
			return -1, errors.UnknownEntity(errors.Vertex(int(v)))
		}
	}
	if v1 == v2 {
		return -1, errors.DegenerateGeometry(errors.Edge(int(id)), "edge starts and ends at vertex %d", v1)
	}
	a, b := m.vertices[v1], m.vertices[v2]
	if math.Hypot(b.X-a.X, b.Y-a.Y) <= m.tolerance() {
		return -1, errors.DegenerateGeometry(errors.Edge(int(id)),
			"vertices %d and %d are coincident at (%g, %g)", v1, v2, a.X, a.Y)
	}
	key := edgeKey(v1, v2)
	if prev, ok := m.edgeIndex[key]; ok {
		return -1, errors.DegenerateGeometry(errors.Edge(int(id)),
			"duplicates edge %d between vertices %d and %d", prev, v1, v2)
	}
	m.edges = append(m.edges, Edge{ID: id, V1: v1, V2: v2})
	m.edgeIndex[key] = id
	return id, nil
}

// AddLoop registers a closed loop. Edges must be listed in traversal order;
// each edge may be traversed in either direction.
//
// It fails with GEOMETRY_OPEN_LOOP if consecutive edges do not share a
// vertex or the last edge does not return to the start, and with
// GEOMETRY_DEGENERATE if the loop encloses no area.
func (m *Model) AddLoop(edgeIDs ...EdgeID) (LoopID, error) {
	if m.finalized {
		return -1, errors.ModelFinalized()
	}
	id := LoopID(len(m.loops))
	ent := errors.Loop(int(id))
	for _, e := range edgeIDs {
		if !m.hasEdge(e) {
			return -1, errors.UnknownEntity(errors.Edge(int(e)))
		}
	}
	if len(edgeIDs) < 3 {
		return -1, errors.OpenLoop(ent, "a closed loop needs at least 3 edges, got %d", len(edgeIDs))
	}

	loop := Loop{
		ID:       id,
		Edges:    append([]EdgeID(nil), edgeIDs...),
		Reversed: make([]bool, len(edgeIDs)),
	}

	// Orient the first edge so that it chains into the second.
	first, second := m.edges[edgeIDs[0]], m.edges[edgeIDs[1]]
	start, cur := first.V1, first.V2
	if first.V1 == second.V1 || first.V1 == second.V2 {
		start, cur = first.V2, first.V1
		loop.Reversed[0] = true
	}
	loop.Vertices = append(loop.Vertices, start)

	seen := map[EdgeID]bool{edgeIDs[0]: true}
	for i := 1; i < len(edgeIDs); i++ {
		e := m.edges[edgeIDs[i]]
		if seen[e.ID] {
			return -1, errors.OpenLoop(ent, "edge %d appears twice", e.ID)
		}
		seen[e.ID] = true
		loop.Vertices = append(loop.Vertices, cur)
		switch cur {
		case e.V1:
			cur = e.V2
		case e.V2:
			cur = e.V1
			loop.Reversed[i] = true
		default:
			return -1, errors.OpenLoop(ent, "edge %d does not connect to vertex %d", e.ID, cur)
		}
	}
	if cur != start {
		return -1, errors.OpenLoop(ent, "loop ends at vertex %d instead of %d", cur, start)
	}

	visited := make(map[VertexID]bool, len(loop.Vertices))
	for _, v := range loop.Vertices {
		if visited[v] {
			return -1, errors.SelfIntersection(ent, "loop passes through vertex %d twice", v)
		}
		visited[v] = true
	}

	// planar.Area is negative for clockwise rings.
	if math.Abs(planar.Area(m.ring(loop))) <= m.tolerance()*m.tolerance() {
		return -1, errors.DegenerateGeometry(ent, "loop encloses no area")
	}

	m.loops = append(m.loops, loop)
	return id, nil
}

// AddSurface registers a plane surface bounded by the first loop, with any
// further loops treated as holes.
//
// It fails with GEOMETRY_SELF_INTERSECTION if any two loop edges cross or
// touch outside a shared vertex, and with GEOMETRY_DEGENERATE if a hole
// lies outside the outer loop or inside another hole.
func (m *Model) AddSurface(loopIDs ...LoopID) (SurfaceID, error) {
	if m.finalized {
		return -1, errors.ModelFinalized()
	}
	id := SurfaceID(len(m.surfaces))
	ent := errors.Surface(int(id))
	if len(loopIDs) == 0 {
		return -1, errors.OpenLoop(ent, "surface needs an outer loop")
	}
	seen := make(map[LoopID]bool)
	for _, l := range loopIDs {
		if !m.hasLoop(l) {
			return -1, errors.UnknownEntity(errors.Loop(int(l)))
		}
		if seen[l] {
			return -1, errors.DegenerateGeometry(ent, "loop %d listed twice", l)
		}
		seen[l] = true
	}

	if err := m.checkCrossings(ent, loopIDs); err != nil {
		return -1, err
	}

	outer := m.ring(m.loops[loopIDs[0]])
	for i, h := range loopIDs[1:] {
		p := m.vertexPoint(m.loops[h].Vertices[0])
		if !planar.RingContains(outer, p) {
			return -1, errors.DegenerateGeometry(ent, "hole loop %d lies outside the outer loop", h)
		}
		for j, other := range loopIDs[1:] {
			if i != j && planar.RingContains(m.ring(m.loops[other]), p) {
				return -1, errors.DegenerateGeometry(ent, "hole loop %d lies inside hole loop %d", h, other)
			}
		}
	}

	m.surfaces = append(m.surfaces, Surface{
		ID:    id,
		Outer: loopIDs[0],
		Holes: append([]LoopID(nil), loopIDs[1:]...),
	})
	return id, nil
}

// AddRectangle registers four vertices, four edges, one loop and a surface
// for the axis-aligned rectangle with corner (x, y) and extent (dx, dy).
func (m *Model) AddRectangle(x, y, dx, dy float64) (SurfaceID, error) {
	corners := [4][2]float64{{x, y}, {x + dx, y}, {x + dx, y + dy}, {x, y + dy}}
	var vs [4]VertexID
	for i, c := range corners {
		v, err := m.AddVertex(c[0], c[1])
		if err != nil {
			return -1, err
		}
		vs[i] = v
	}
	var es [4]EdgeID
	for i := range vs {
		e, err := m.AddEdge(vs[i], vs[(i+1)%4])
		if err != nil {
			return -1, err
		}
		es[i] = e
	}
	l, err := m.AddLoop(es[:]...)
	if err != nil {
		return -1, err
	}
	return m.AddSurface(l)
}

// Finalize freezes the model. Every later mutation fails with
// GEOMETRY_FINALIZED. Finalize is idempotent.
func (m *Model) Finalize() error {
	if len(m.surfaces) == 0 {
		return errors.New(errors.ErrCodeDegenerateGeometry, "model has no surfaces").At(errors.StageGeometry)
	}
	m.finalized = true
	return nil
}

// Finalized reports whether Finalize has been called.
func (m *Model) Finalized() bool { return m.finalized }

// =============================================================================
// Accessors
// =============================================================================

// Vertex returns the vertex with the given id.
func (m *Model) Vertex(id VertexID) (Vertex, bool) {
	if !m.hasVertex(id) {
		return Vertex{}, false
	}
	return m.vertices[id], true
}

// Edge returns the edge with the given id.
func (m *Model) Edge(id EdgeID) (Edge, bool) {
	if !m.hasEdge(id) {
		return Edge{}, false
	}
	return m.edges[id], true
}

// Loop returns the loop with the given id.
func (m *Model) Loop(id LoopID) (Loop, bool) {
	if !m.hasLoop(id) {
		return Loop{}, false
	}
	return m.loops[id], true
}

// Surface returns the surface with the given id.
func (m *Model) Surface(id SurfaceID) (Surface, bool) {
	if id < 0 || int(id) >= len(m.surfaces) {
		return Surface{}, false
	}
	return m.surfaces[id], true
}

// Vertices returns all vertices in id order.
func (m *Model) Vertices() []Vertex { return append([]Vertex(nil), m.vertices...) }

// Edges returns all edges in id order.
func (m *Model) Edges() []Edge { return append([]Edge(nil), m.edges...) }

// Surfaces returns all surfaces in id order.
func (m *Model) Surfaces() []Surface { return append([]Surface(nil), m.surfaces...) }

// NumVertices returns the number of registered vertices.
func (m *Model) NumVertices() int { return len(m.vertices) }

// SurfaceEdges returns the ids of every edge bounding the surface, outer loop
// first, in loop order.
func (m *Model) SurfaceEdges(id SurfaceID) []EdgeID {
	var out []EdgeID
	for _, l := range m.surfaces[id].Loops() {
		out = append(out, m.loops[l].Edges...)
	}
	return out
}

// Polygon returns the surface as an orb polygon with a counter-clockwise
// outer ring and clockwise holes. Rings are closed.
func (m *Model) Polygon(id SurfaceID) orb.Polygon {
	s := m.surfaces[id]
	poly := orb.Polygon{orient(m.ring(m.loops[s.Outer]), orb.CCW)}
	for _, h := range s.Holes {
		poly = append(poly, orient(m.ring(m.loops[h]), orb.CW))
	}
	return poly
}

// Area returns the enclosed area of a surface, holes excluded.
func (m *Model) Area(id SurfaceID) float64 {
	s := m.surfaces[id]
	area := math.Abs(planar.Area(m.ring(m.loops[s.Outer])))
	for _, h := range s.Holes {
		area -= math.Abs(planar.Area(m.ring(m.loops[h])))
	}
	return area
}

// Bound returns the bounding box of all vertices.
func (m *Model) Bound() orb.Bound {
	if len(m.vertices) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: m.vertexPoint(0), Max: m.vertexPoint(0)}
	for _, v := range m.vertices[1:] {
		b = b.Extend(orb.Point{v.X, v.Y})
	}
	return b
}

// Tolerance returns the distance under which two points are considered
// coincident, relative to the model extent.
func (m *Model) Tolerance() float64 { return m.tolerance() }

// =============================================================================
// Internal helpers
// =============================================================================

func (m *Model) hasVertex(id VertexID) bool { return id >= 0 && int(id) < len(m.vertices) }
func (m *Model) hasEdge(id EdgeID) bool     { return id >= 0 && int(id) < len(m.edges) }
func (m *Model) hasLoop(id LoopID) bool     { return id >= 0 && int(id) < len(m.loops) }

func (m *Model) vertexPoint(id VertexID) orb.Point {
	v := m.vertices[id]
	return orb.Point{v.X, v.Y}
}

func (m *Model) tolerance() float64 {
	scale := 1.0
	for _, v := range m.vertices {
		scale = math.Max(scale, math.Max(math.Abs(v.X), math.Abs(v.Y)))
	}
	return 1e-10 * scale
}

// ring returns the closed ring of a loop in traversal order.
func (m *Model) ring(l Loop) orb.Ring {
	r := make(orb.Ring, 0, len(l.Vertices)+1)
	for _, v := range l.Vertices {
		r = append(r, m.vertexPoint(v))
	}
	return append(r, r[0])
}

func orient(r orb.Ring, o orb.Orientation) orb.Ring {
	if r.Orientation() == o {
		return r
	}
	out := make(orb.Ring, len(r))
	for i := range r {
		out[i] = r[len(r)-1-i]
	}
	return out
}

// checkCrossings tests every pair of surface edges. Edges sharing a vertex
// may only meet at that vertex.
func (m *Model) checkCrossings(ent errors.Entity, loopIDs []LoopID) error {
	var ids []EdgeID
	for _, l := range loopIDs {
		ids = append(ids, m.loops[l].Edges...)
	}
	for i := 0; i < len(ids); i++ {
		e := m.edges[ids[i]]
		a, b := m.vertices[e.V1], m.vertices[e.V2]
		for j := i + 1; j < len(ids); j++ {
			f := m.edges[ids[j]]
			c, d := m.vertices[f.V1], m.vertices[f.V2]
			shared := e.V1 == f.V1 || e.V1 == f.V2 || e.V2 == f.V1 || e.V2 == f.V2
			if shared {
				if collinearOverlap(a, b, c, d) {
					return errors.SelfIntersection(ent, "edges %d and %d overlap", e.ID, f.ID)
				}
				continue
			}
			if SegmentsIntersect(a.X, a.Y, b.X, b.Y, c.X, c.Y, d.X, d.Y) {
				return errors.SelfIntersection(ent, "edges %d and %d intersect", e.ID, f.ID)
			}
		}
	}
	return nil
}

// collinearOverlap reports whether two segments sharing an endpoint fold
// back over each other.
func collinearOverlap(a, b, c, d Vertex) bool {
	if Orient2D(a.X, a.Y, b.X, b.Y, c.X, c.Y) != 0 || Orient2D(a.X, a.Y, b.X, b.Y, d.X, d.Y) != 0 {
		return false
	}
	// Collinear and sharing an endpoint: they overlap unless they point away
	// from the shared vertex in opposite directions.
	var s, p, q Vertex
	switch {
	case a.ID == c.ID:
		s, p, q = a, b, d
	case a.ID == d.ID:
		s, p, q = a, b, c
	case b.ID == c.ID:
		s, p, q = b, a, d
	default:
		s, p, q = b, a, c
	}
	return (p.X-s.X)*(q.X-s.X)+(p.Y-s.Y)*(q.Y-s.Y) > 0
}

func edgeKey(a, b VertexID) [2]VertexID {
	if a > b {
		a, b = b, a
	}
	return [2]VertexID{a, b}
}
