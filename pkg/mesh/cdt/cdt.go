// Package cdt implements an incremental constrained Delaunay triangulation
// kernel over an arena of triangles.
//
// Triangles live in a flat slice and refer to each other by index; a
// neighbor index of -1 marks the hull of the enclosing super triangle. The
// first three points of every [Mesh] are the super-triangle corners and are
// never part of a final mesh.
//
// Edge i of a triangle is the edge opposite its vertex V[i], running from
// V[(i+1)%3] to V[(i+2)%3]. All triangles are stored counter-clockwise.
//
// Points are inserted with Lawson's algorithm: the containing triangle (or
// edge) is split and the edges opposite the new point are legalized by flips
// driven from an explicit stack. Flips never cross constrained edges, so the
// same routine inserts Steiner points into a constrained triangulation.
// Missing constraint segments are recovered by flipping the edges they
// cross (Sloan's method) followed by a local Delaunay restoration pass.
package cdt

import (
	"fmt"
	"math"

	"github.com/matzehuels/quadmesh/pkg/geom"
)

// Point is a triangulation vertex.
type Point struct {
	X, Y float64
}

// Tri is a triangle in the arena.
type Tri struct {
	V      [3]int  // vertex indices, counter-clockwise
	N      [3]int  // neighbor across the edge opposite V[i], or -1
	C      [3]bool // whether the edge opposite V[i] is constrained
	Inside bool    // set by Classify and inherited by split children
}

// Mesh is a triangulation under construction.
type Mesh struct {
	Pts  []Point
	Tris []Tri

	vtri    []int
	last    int
	eps     float64
	touched []int
}

// NumSuper is the number of super-triangle vertices at the front of Pts.
const NumSuper = 3

// New creates a triangulation whose super triangle encloses the box
// [minX, maxX] x [minY, maxY].
func New(minX, minY, maxX, maxY float64) *Mesh {
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	d := math.Max(maxX-minX, maxY-minY)
	if d <= 0 {
		d = 1
	}
	m := &Mesh{eps: 1e-12 * d}
	m.Pts = []Point{
		{cx - 20*d, cy - 10*d},
		{cx + 20*d, cy - 10*d},
		{cx, cy + 20*d},
	}
	m.vtri = []int{0, 0, 0}
	m.Tris = []Tri{{V: [3]int{0, 1, 2}, N: [3]int{-1, -1, -1}}}
	return m
}

// IsSuper reports whether v is a super-triangle vertex.
func IsSuper(v int) bool { return v < NumSuper }

// Touched returns the triangles created or modified by the most recent
// insertion, split or flip sequence.
func (m *Mesh) Touched() []int { return m.touched }

// Eps returns the coincidence tolerance used for point location.
func (m *Mesh) Eps() float64 { return m.eps }

// =============================================================================
// Geometry helpers
// =============================================================================

func (m *Mesh) orient(a, b, c int) float64 {
	pa, pb, pc := m.Pts[a], m.Pts[b], m.Pts[c]
	return geom.Orient2D(pa.X, pa.Y, pb.X, pb.Y, pc.X, pc.Y)
}

func (m *Mesh) orientP(a, b int, x, y float64) float64 {
	pa, pb := m.Pts[a], m.Pts[b]
	return geom.Orient2D(pa.X, pa.Y, pb.X, pb.Y, x, y)
}

// inCircle reports whether d lies inside the circumcircle of the CCW
// triangle (a, b, c), measured in the metric when met is non-nil.
func (m *Mesh) inCircle(a, b, c, d int, met *geom.Metric) bool {
	pa, pb, pc, pd := m.Pts[a], m.Pts[b], m.Pts[c], m.Pts[d]
	if met != nil {
		s := met.Sqrt()
		pa.X, pa.Y = s.Apply(pa.X, pa.Y)
		pb.X, pb.Y = s.Apply(pb.X, pb.Y)
		pc.X, pc.Y = s.Apply(pc.X, pc.Y)
		pd.X, pd.Y = s.Apply(pd.X, pd.Y)
	}
	return geom.InCircle(pa.X, pa.Y, pb.X, pb.Y, pc.X, pc.Y, pd.X, pd.Y) > 0
}

// indexOf returns the position of v in triangle t, or -1.
func (m *Mesh) indexOf(t, v int) int {
	tv := m.Tris[t].V
	switch v {
	case tv[0]:
		return 0
	case tv[1]:
		return 1
	case tv[2]:
		return 2
	}
	return -1
}

// Edge returns the endpoints of edge i of triangle t.
func (m *Mesh) Edge(t, i int) (int, int) {
	v := m.Tris[t].V
	return v[(i+1)%3], v[(i+2)%3]
}

// =============================================================================
// Arena maintenance
// =============================================================================

// set rebuilds triangle t. n[i] and c[i] describe the edge opposite v[i].
// External neighbors are re-pointed at t.
func (m *Mesh) set(t int, v, n [3]int, c [3]bool, inside bool) {
	m.Tris[t] = Tri{V: v, N: n, C: c, Inside: inside}
	for i := 0; i < 3; i++ {
		m.vtri[v[i]] = t
		if n[i] >= 0 {
			m.relink(n[i], v[(i+1)%3], v[(i+2)%3], t)
		}
	}
	m.touched = append(m.touched, t)
}

// relink points the edge {a, b} of triangle n at triangle t.
func (m *Mesh) relink(n, a, b, t int) {
	tv := m.Tris[n].V
	for k := 0; k < 3; k++ {
		x, y := tv[(k+1)%3], tv[(k+2)%3]
		if (x == a && y == b) || (x == b && y == a) {
			m.Tris[n].N[k] = t
			return
		}
	}
}

func (m *Mesh) alloc() int {
	m.Tris = append(m.Tris, Tri{})
	return len(m.Tris) - 1
}

// =============================================================================
// Point location
// =============================================================================

type location int

const (
	inTriangle location = iota
	onEdge
	onVertex
	outside
)

// locate walks from the last touched triangle toward (x, y).
func (m *Mesh) locate(x, y float64) (int, location, int) {
	t := m.last
	if t < 0 || t >= len(m.Tris) {
		t = 0
	}
	limit := 4*len(m.Tris) + 16
	for step := 0; step < limit; step++ {
		tri := m.Tris[t]
		moved := false
		for j := 0; j < 3; j++ {
			i := (step + j) % 3
			a, b := tri.V[(i+1)%3], tri.V[(i+2)%3]
			if m.orientP(a, b, x, y) < 0 {
				if tri.N[i] < 0 {
					return t, outside, i
				}
				t = tri.N[i]
				moved = true
				break
			}
		}
		if !moved {
			loc, k := m.classify(t, x, y)
			return t, loc, k
		}
	}
	// The visibility walk can cycle in constrained triangulations; fall back
	// to a scan.
	for t := range m.Tris {
		tri := m.Tris[t]
		ok := true
		for i := 0; i < 3 && ok; i++ {
			a, b := tri.V[(i+1)%3], tri.V[(i+2)%3]
			ok = m.orientP(a, b, x, y) >= -m.eps*m.edgeLen(a, b)
		}
		if ok {
			loc, k := m.classify(t, x, y)
			return t, loc, k
		}
	}
	return -1, outside, -1
}

func (m *Mesh) edgeLen(a, b int) float64 {
	pa, pb := m.Pts[a], m.Pts[b]
	return math.Hypot(pb.X-pa.X, pb.Y-pa.Y)
}

// classify refines a location inside triangle t into vertex, edge or
// interior.
func (m *Mesh) classify(t int, x, y float64) (location, int) {
	tri := m.Tris[t]
	for i, v := range tri.V {
		p := m.Pts[v]
		if math.Hypot(p.X-x, p.Y-y) <= m.eps {
			return onVertex, i
		}
	}
	for i := 0; i < 3; i++ {
		a, b := tri.V[(i+1)%3], tri.V[(i+2)%3]
		l := m.edgeLen(a, b)
		if l > 0 && math.Abs(m.orientP(a, b, x, y))/l <= m.eps {
			return onEdge, i
		}
	}
	return inTriangle, -1
}

// =============================================================================
// Insertion
// =============================================================================

// Insert adds the point (x, y) and restores the (constrained) Delaunay
// property around it, measuring circumcircles in met when non-nil. If the
// point coincides with an existing vertex, that vertex is returned.
func (m *Mesh) Insert(x, y float64, met *geom.Metric) (int, error) {
	m.touched = m.touched[:0]
	t, loc, k := m.locate(x, y)
	switch loc {
	case onVertex:
		return m.Tris[t].V[k], nil
	case onEdge:
		return m.SplitEdge(t, k, x, y, met)
	case outside:
		return -1, fmt.Errorf("point (%g, %g) lies outside the triangulation", x, y)
	}

	p := m.addPoint(x, y)
	tri := m.Tris[t]
	a, b, c := tri.V[0], tri.V[1], tri.V[2]
	na, nb, nc := tri.N[0], tri.N[1], tri.N[2]
	ca, cb, cc := tri.C[0], tri.C[1], tri.C[2]
	t1, t2 := m.alloc(), m.alloc()

	m.set(t, [3]int{p, b, c}, [3]int{na, t1, t2}, [3]bool{ca, false, false}, tri.Inside)
	m.set(t1, [3]int{a, p, c}, [3]int{t, nb, t2}, [3]bool{false, cb, false}, tri.Inside)
	m.set(t2, [3]int{a, b, p}, [3]int{t, t1, nc}, [3]bool{false, false, cc}, tri.Inside)

	m.legalize(p, []int{t, t1, t2}, met)
	return p, nil
}

// SplitEdge inserts (x, y), which must lie on edge k of triangle t, splitting
// both triangles sharing the edge. A constrained edge stays constrained in
// both halves.
func (m *Mesh) SplitEdge(t, k int, x, y float64, met *geom.Metric) (int, error) {
	m.touched = m.touched[:0]
	tri := m.Tris[t]
	u := tri.N[k]
	if u < 0 {
		return -1, fmt.Errorf("edge %d of triangle %d lies on the hull", k, t)
	}
	a := tri.V[k]
	b, c := tri.V[(k+1)%3], tri.V[(k+2)%3]
	ub := m.indexOf(u, b)
	uc := m.indexOf(u, c)
	j := 3 - ub - uc
	d := m.Tris[u].V[j]
	utri := m.Tris[u]

	constrained := tri.C[k]
	p := m.addPoint(x, y)
	t2, u2 := m.alloc(), m.alloc()

	// Neighbors and flags of the four outer edges.
	nab, cab := tri.N[(k+2)%3], tri.C[(k+2)%3] // edge (a,b) is opposite c
	nca, cca := tri.N[(k+1)%3], tri.C[(k+1)%3] // edge (c,a) is opposite b
	ndc, cdc := utri.N[ub], utri.C[ub]         // edge (d,c) is opposite b in u
	nbd, cbd := utri.N[uc], utri.C[uc]         // edge (b,d) is opposite c in u

	m.set(t, [3]int{a, b, p}, [3]int{u2, t2, nab}, [3]bool{constrained, false, cab}, tri.Inside)
	m.set(t2, [3]int{a, p, c}, [3]int{u, nca, t}, [3]bool{constrained, cca, false}, tri.Inside)
	m.set(u, [3]int{d, c, p}, [3]int{t2, u2, ndc}, [3]bool{constrained, false, cdc}, utri.Inside)
	m.set(u2, [3]int{d, p, b}, [3]int{t, nbd, u}, [3]bool{constrained, cbd, false}, utri.Inside)

	m.legalize(p, []int{t, t2, u, u2}, met)
	return p, nil
}

func (m *Mesh) addPoint(x, y float64) int {
	m.Pts = append(m.Pts, Point{x, y})
	m.vtri = append(m.vtri, -1)
	return len(m.Pts) - 1
}

// legalize flips edges opposite p until every triangle around p passes the
// in-circle test or is blocked by a constraint.
func (m *Mesh) legalize(p int, stack []int, met *geom.Metric) {
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i := m.indexOf(t, p)
		if i < 0 {
			continue
		}
		tri := m.Tris[t]
		u := tri.N[i]
		if u < 0 || tri.C[i] {
			continue
		}
		b, c := tri.V[(i+1)%3], tri.V[(i+2)%3]
		d := m.opposite(u, b, c)
		if !m.inCircle(p, b, c, d, met) || !m.convex(p, b, d, c) {
			continue
		}
		m.flip(t, i)
		stack = append(stack, t, u)
	}
	m.last = m.vtri[p]
}

// opposite returns the vertex of triangle u not on edge {b, c}.
func (m *Mesh) opposite(u, b, c int) int {
	for _, v := range m.Tris[u].V {
		if v != b && v != c {
			return v
		}
	}
	return -1
}

// convex reports whether the quadrilateral (a, b, c, d) is strictly convex.
func (m *Mesh) convex(a, b, c, d int) bool {
	return m.orient(a, b, c) > 0 && m.orient(b, c, d) > 0 &&
		m.orient(c, d, a) > 0 && m.orient(d, a, b) > 0
}

// flip replaces edge i of triangle t by the other diagonal of the
// quadrilateral formed with its neighbor. With t = (a, b, c) and neighbor
// (d, c, b), the result is t = (a, b, d) and neighbor = (a, d, c).
func (m *Mesh) flip(t, i int) {
	tri := m.Tris[t]
	u := tri.N[i]
	utri := m.Tris[u]
	a, b, c := tri.V[i], tri.V[(i+1)%3], tri.V[(i+2)%3]
	ub, uc := m.indexOf(u, b), m.indexOf(u, c)
	d := utri.V[3-ub-uc]

	nbd, cbd := utri.N[uc], utri.C[uc] // (b,d) is opposite c in u
	ndc, cdc := utri.N[ub], utri.C[ub] // (d,c) is opposite b in u
	nab, cab := tri.N[(i+2)%3], tri.C[(i+2)%3]
	nca, cca := tri.N[(i+1)%3], tri.C[(i+1)%3]

	m.set(t, [3]int{a, b, d}, [3]int{nbd, u, nab}, [3]bool{cbd, false, cab}, tri.Inside)
	m.set(u, [3]int{a, d, c}, [3]int{ndc, nca, t}, [3]bool{cdc, cca, false}, utri.Inside)
}

// =============================================================================
// Adjacency queries
// =============================================================================

// Fan returns the triangles incident to v in rotational order.
func (m *Mesh) Fan(v int) []int {
	t0 := m.vtri[v]
	if t0 < 0 {
		return nil
	}
	var out []int
	t := t0
	for guard := 0; guard < len(m.Tris)+1; guard++ {
		out = append(out, t)
		k := m.indexOf(t, v)
		t = m.Tris[t].N[(k+1)%3]
		if t == t0 {
			return out
		}
		if t < 0 {
			break
		}
	}
	// Open fan: walk the other way from t0.
	t = t0
	for guard := 0; guard < len(m.Tris)+1; guard++ {
		k := m.indexOf(t, v)
		t = m.Tris[t].N[(k+2)%3]
		if t < 0 || t == t0 {
			break
		}
		out = append([]int{t}, out...)
	}
	return out
}

// FindEdge returns the triangle containing the directed edge a->b and the
// index of that edge within it.
func (m *Mesh) FindEdge(a, b int) (int, int, bool) {
	for _, t := range m.Fan(a) {
		k := m.indexOf(t, a)
		if m.Tris[t].V[(k+1)%3] == b {
			return t, (k + 2) % 3, true
		}
	}
	return -1, -1, false
}

// HasEdge reports whether a and b are connected by an edge.
func (m *Mesh) HasEdge(a, b int) bool {
	_, _, ok := m.FindEdge(a, b)
	if ok {
		return true
	}
	_, _, ok = m.FindEdge(b, a)
	return ok
}

// =============================================================================
// Constraints
// =============================================================================

type segment struct{ a, b int }

// Enforce makes the segment a-b an edge of the triangulation and marks it
// constrained. A segment passing exactly through other vertices is split
// at those vertices.
func (m *Mesh) Enforce(a, b int) error {
	m.touched = m.touched[:0]
	stack := []segment{{a, b}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if m.HasEdge(s.a, s.b) {
			m.markConstrained(s.a, s.b)
			continue
		}
		crossed, via, err := m.crossedEdges(s.a, s.b)
		if err != nil {
			return err
		}
		if via >= 0 {
			stack = append(stack, segment{via, s.b}, segment{s.a, via})
			continue
		}
		if err := m.recover(s.a, s.b, crossed); err != nil {
			return err
		}
		m.markConstrained(s.a, s.b)
	}
	return nil
}

// crossedEdges lists the edges properly crossed by segment a-b, walking
// from a. If a vertex lies on the segment it is returned as via.
func (m *Mesh) crossedEdges(a, b int) ([]segment, int, error) {
	pb := m.Pts[b]
	onSeg := func(v int) bool {
		if v == a || v == b {
			return false
		}
		l := m.edgeLen(a, b)
		if math.Abs(m.orient(a, b, v))/l > m.eps {
			return false
		}
		pa, pv := m.Pts[a], m.Pts[v]
		dot := (pv.X-pa.X)*(pb.X-pa.X) + (pv.Y-pa.Y)*(pb.Y-pa.Y)
		return dot > 0 && dot < l*l
	}

	// Find the triangle around a through which the segment leaves.
	t, x, y := -1, -1, -1
	for _, f := range m.Fan(a) {
		k := m.indexOf(f, a)
		fx, fy := m.Tris[f].V[(k+1)%3], m.Tris[f].V[(k+2)%3]
		if onSeg(fx) {
			return nil, fx, nil
		}
		if onSeg(fy) {
			return nil, fy, nil
		}
		if m.orient(a, b, fx) < 0 && m.orient(a, b, fy) > 0 {
			t, x, y = f, fx, fy
			break
		}
	}
	if t < 0 {
		return nil, -1, fmt.Errorf("segment %d-%d: no exit triangle at vertex %d", a, b, a)
	}

	var crossed []segment
	for guard := 0; guard < len(m.Tris); guard++ {
		crossed = append(crossed, segment{x, y})
		k := 3 - m.indexOf(t, x) - m.indexOf(t, y)
		u := m.Tris[t].N[k]
		if u < 0 {
			return nil, -1, fmt.Errorf("segment %d-%d leaves the triangulation", a, b)
		}
		z := m.opposite(u, x, y)
		if z == b {
			return crossed, -1, nil
		}
		if onSeg(z) {
			return nil, z, nil
		}
		if m.orient(a, b, z) < 0 {
			x = z
		} else {
			y = z
		}
		t = u
	}
	return nil, -1, fmt.Errorf("segment %d-%d: walk did not terminate", a, b)
}

// recover flips the crossed edges until a-b appears.
func (m *Mesh) recover(a, b int, queue []segment) error {
	var fresh []segment
	limit := 64*len(queue) + 64
	for iter := 0; len(queue) > 0; iter++ {
		if iter > limit {
			return fmt.Errorf("segment %d-%d: constraint recovery did not converge", a, b)
		}
		e := queue[0]
		queue = queue[1:]
		t, i, ok := m.FindEdge(e.a, e.b)
		if !ok {
			if t, i, ok = m.FindEdge(e.b, e.a); !ok {
				return fmt.Errorf("segment %d-%d: lost edge %d-%d", a, b, e.a, e.b)
			}
		}
		tri := m.Tris[t]
		if tri.C[i] {
			return fmt.Errorf("segment %d-%d crosses constrained edge %d-%d", a, b, e.a, e.b)
		}
		p := tri.V[i]
		x, y := tri.V[(i+1)%3], tri.V[(i+2)%3]
		q := m.opposite(tri.N[i], x, y)
		if !m.convex(p, x, q, y) {
			queue = append(queue, e)
			continue
		}
		m.flip(t, i)
		pa, pb, pp, pq := m.Pts[a], m.Pts[b], m.Pts[p], m.Pts[q]
		if p != a && p != b && q != a && q != b &&
			geom.SegmentsCross(pa.X, pa.Y, pb.X, pb.Y, pp.X, pp.Y, pq.X, pq.Y) {
			queue = append(queue, segment{p, q})
		} else {
			fresh = append(fresh, segment{p, q})
		}
	}

	// Restore the Delaunay property on the new edges other than a-b.
	for pass := 0; pass < len(fresh)+1; pass++ {
		swapped := false
		for n, e := range fresh {
			if (e.a == a && e.b == b) || (e.a == b && e.b == a) {
				continue
			}
			t, i, ok := m.FindEdge(e.a, e.b)
			if !ok {
				continue
			}
			tri := m.Tris[t]
			if tri.C[i] || tri.N[i] < 0 {
				continue
			}
			p := tri.V[i]
			x, y := tri.V[(i+1)%3], tri.V[(i+2)%3]
			q := m.opposite(tri.N[i], x, y)
			if m.inCircle(p, x, y, q, nil) && m.convex(p, x, q, y) {
				m.flip(t, i)
				fresh[n] = segment{p, q}
				swapped = true
			}
		}
		if !swapped {
			break
		}
	}
	return nil
}

// markConstrained flags the edge {a, b} on both sides.
func (m *Mesh) markConstrained(a, b int) {
	for _, d := range [2][2]int{{a, b}, {b, a}} {
		if t, i, ok := m.FindEdge(d[0], d[1]); ok {
			m.Tris[t].C[i] = true
		}
	}
}

// IsConstrained reports whether edge {a, b} exists and is constrained.
func (m *Mesh) IsConstrained(a, b int) bool {
	t, i, ok := m.FindEdge(a, b)
	if !ok {
		t, i, ok = m.FindEdge(b, a)
	}
	return ok && m.Tris[t].C[i]
}

// =============================================================================
// Region classification
// =============================================================================

// Classify partitions triangles into regions separated by constrained edges
// and marks a region inside when it touches no super vertex and inside
// accepts the centroid of its first triangle.
func (m *Mesh) Classify(inside func(x, y float64) bool) {
	region := make([]int, len(m.Tris))
	for i := range region {
		region[i] = -1
	}
	var queue []int
	for seed := range m.Tris {
		if region[seed] >= 0 {
			continue
		}
		members := []int{seed}
		region[seed] = seed
		queue = append(queue[:0], seed)
		super := false
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			tri := m.Tris[t]
			for i := 0; i < 3; i++ {
				if IsSuper(tri.V[i]) {
					super = true
				}
				n := tri.N[i]
				if n < 0 || tri.C[i] || region[n] >= 0 {
					continue
				}
				region[n] = seed
				members = append(members, n)
				queue = append(queue, n)
			}
		}
		in := false
		if !super {
			cx, cy := m.Centroid(seed)
			in = inside(cx, cy)
		}
		for _, t := range members {
			m.Tris[t].Inside = in
		}
	}
}

// Centroid returns the centroid of triangle t.
func (m *Mesh) Centroid(t int) (float64, float64) {
	v := m.Tris[t].V
	a, b, c := m.Pts[v[0]], m.Pts[v[1]], m.Pts[v[2]]
	return (a.X + b.X + c.X) / 3, (a.Y + b.Y + c.Y) / 3
}

// InsideTriangles returns the indices of triangles marked inside, in arena
// order.
func (m *Mesh) InsideTriangles() []int {
	var out []int
	for t, tri := range m.Tris {
		if tri.Inside {
			out = append(out, t)
		}
	}
	return out
}

// RealTriangles returns the indices of triangles without super vertices.
func (m *Mesh) RealTriangles() []int {
	var out []int
	for t, tri := range m.Tris {
		if !IsSuper(tri.V[0]) && !IsSuper(tri.V[1]) && !IsSuper(tri.V[2]) {
			out = append(out, t)
		}
	}
	return out
}
