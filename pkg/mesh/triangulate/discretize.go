package triangulate

import (
	"math"
	"sort"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

const (
	// minCurveSamples is the initial number of quadrature intervals used to
	// measure an edge in the metric.
	minCurveSamples = 64

	// maxCurvePoints bounds the points placed on a single edge.
	maxCurvePoints = 1 << 22
)

// discretize places points on the segment a-b so that consecutive points
// are one unit apart in the target metric, rounding the count to the
// nearest integer (at least one segment). It returns the interior points in
// order from a to b.
func (s *sizer) discretize(a, b geom.Vertex, ent errors.Entity) ([][2]float64, error) {
	dx, dy := b.X-a.X, b.Y-a.Y

	var cum []float64
	k := minCurveSamples
	for pass := 0; pass < 2; pass++ {
		cum = make([]float64, k+1)
		for i := 1; i <= k; i++ {
			t := (float64(i) - 0.5) / float64(k)
			m, err := s.metric(a.X+t*dx, a.Y+t*dy, ent)
			if err != nil {
				return nil, err
			}
			cum[i] = cum[i-1] + m.Length(dx/float64(k), dy/float64(k))
		}
		total := cum[k]
		if total > maxCurvePoints {
			return nil, errors.VertexBudgetExceeded(ent, maxCurvePoints)
		}
		if lim := s.opts.MaxVertices; lim > 0 && total > 2*float64(lim) {
			return nil, errors.VertexBudgetExceeded(ent, lim)
		}
		// Resolve at least eight intervals per target segment.
		want := int(math.Ceil(8 * total))
		if want <= k {
			break
		}
		k = want
	}

	total := cum[len(cum)-1]
	n := int(math.Round(total))
	if n < 1 {
		n = 1
	}
	if lim := s.opts.MaxVertices; lim > 0 && n-1 > lim {
		return nil, errors.VertexBudgetExceeded(ent, lim)
	}

	k = len(cum) - 1
	pts := make([][2]float64, 0, n-1)
	for j := 1; j < n; j++ {
		target := float64(j) * total / float64(n)
		i := sort.SearchFloat64s(cum, target)
		if i < 1 {
			i = 1
		}
		if i > k {
			i = k
		}
		frac := 0.0
		if span := cum[i] - cum[i-1]; span > 0 {
			frac = (target - cum[i-1]) / span
		}
		t := (float64(i-1) + frac) / float64(k)
		pts = append(pts, [2]float64{a.X + t*dx, a.Y + t*dy})
	}
	return pts, nil
}
