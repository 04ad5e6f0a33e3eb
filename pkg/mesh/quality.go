package mesh

import (
	"math"
)

// Convex reports whether the quadrilateral (a, b, c, d) is strictly convex
// and counter-clockwise.
func Convex(vs []Vertex, a, b, c, d int) bool {
	return orient(vs, a, b, c) > 0 && orient(vs, b, c, d) > 0 &&
		orient(vs, c, d, a) > 0 && orient(vs, d, a, b) > 0
}

// QuadQuality returns the angle quality of the quadrilateral (a, b, c, d):
// 1 for a rectangle, falling linearly to 0 as the worst corner deviates by
// π/2 from a right angle. Non-convex quadrilaterals score 0.
func QuadQuality(vs []Vertex, a, b, c, d int) float64 {
	if !Convex(vs, a, b, c, d) {
		return 0
	}
	ids := [4]int{a, b, c, d}
	worst := 0.0
	for i := 0; i < 4; i++ {
		p, q, r := ids[(i+3)%4], ids[i], ids[(i+1)%4]
		dev := math.Abs(math.Pi/2 - angle(vs, p, q, r))
		worst = math.Max(worst, dev)
	}
	return math.Max(0, 1-2/math.Pi*worst)
}

// QuadAspect returns the ratio of the longest to the shortest side.
func QuadAspect(vs []Vertex, a, b, c, d int) float64 {
	ids := [4]int{a, b, c, d}
	lo, hi := math.Inf(1), 0.0
	for i := 0; i < 4; i++ {
		l := Length(vs, ids[i], ids[(i+1)%4])
		lo, hi = math.Min(lo, l), math.Max(hi, l)
	}
	if lo == 0 {
		return math.Inf(1)
	}
	return hi / lo
}

// TriangleQuality returns the normalized shape measure 4√3·A / Σl²: 1 for an
// equilateral triangle, 0 for a degenerate one.
func TriangleQuality(vs []Vertex, a, b, c int) float64 {
	area := orient(vs, a, b, c) / 2
	if area <= 0 {
		return 0
	}
	l2 := sq(Length(vs, a, b)) + sq(Length(vs, b, c)) + sq(Length(vs, c, a))
	return 4 * math.Sqrt(3) * area / l2
}

// angle returns the interior angle at q between q->p and q->r.
func angle(vs []Vertex, p, q, r int) float64 {
	ux, uy := vs[p].X-vs[q].X, vs[p].Y-vs[q].Y
	wx, wy := vs[r].X-vs[q].X, vs[r].Y-vs[q].Y
	return math.Abs(math.Atan2(ux*wy-uy*wx, ux*wx+uy*wy))
}

func sq(v float64) float64 { return v * v }

// =============================================================================
// Statistics
// =============================================================================

// Stats summarizes element counts and quality.
type Stats struct {
	Vertices        int     `json:"vertices"`
	Triangles       int     `json:"triangles"`
	Quads           int     `json:"quads"`
	MinTriQuality   float64 `json:"min_tri_quality"`
	MeanTriQuality  float64 `json:"mean_tri_quality"`
	MinQuadQuality  float64 `json:"min_quad_quality"`
	MeanQuadQuality float64 `json:"mean_quad_quality"`
	Area            float64 `json:"area"`
}

// ComputeStats measures h.
func ComputeStats(h *HybridMesh) Stats {
	s := Stats{
		Vertices:  len(h.Vertices),
		Triangles: len(h.Triangles),
		Quads:     len(h.Quads),
		Area:      h.Area(),
	}
	if len(h.Triangles) > 0 {
		s.MinTriQuality = 1
		for _, t := range h.Triangles {
			q := TriangleQuality(h.Vertices, t.V[0], t.V[1], t.V[2])
			s.MinTriQuality = math.Min(s.MinTriQuality, q)
			s.MeanTriQuality += q
		}
		s.MeanTriQuality /= float64(len(h.Triangles))
	}
	if len(h.Quads) > 0 {
		s.MinQuadQuality = 1
		for _, q := range h.Quads {
			v := QuadQuality(h.Vertices, q.V[0], q.V[1], q.V[2], q.V[3])
			s.MinQuadQuality = math.Min(s.MinQuadQuality, v)
			s.MeanQuadQuality += v
		}
		s.MeanQuadQuality /= float64(len(h.Quads))
	}
	return s
}
