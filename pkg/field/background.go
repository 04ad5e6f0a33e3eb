package field

import (
	"math"
	"sort"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
	"github.com/matzehuels/quadmesh/pkg/mesh/cdt"
)

// Sample is a prescribed size at a point. Tensor, when set, prescribes an
// anisotropic metric and takes precedence over Size for metric queries.
type Sample struct {
	X, Y   float64
	Size   float64
	Tensor *geom.Metric
}

// Background is a size field interpolated over a triangulated sample table.
//
// Inside a sample triangle the size (and the metric, for tensor samples) is
// the barycentric combination of the corner values. Outside the union of
// triangles the field returns the clamp value when one is configured and a
// Domain error otherwise. Background is immutable and safe for concurrent
// use.
type Background struct {
	samples []Sample
	tris    [][3]int
	clamp   float64
	aniso   bool

	index gridIndex
}

// NewBackground builds a background field. When tris is nil the samples are
// triangulated (Delaunay, restricted to their convex hull). A positive clamp
// is returned for queries outside the sampled region.
func NewBackground(samples []Sample, tris [][3]int, clamp float64) (*Background, error) {
	if len(samples) < 3 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "background field needs at least 3 samples, got %d", len(samples)).
			At(errors.StageField)
	}
	b := &Background{samples: append([]Sample(nil), samples...), clamp: clamp}
	for i, s := range b.samples {
		if math.IsNaN(s.X) || math.IsNaN(s.Y) || math.IsInf(s.X, 0) || math.IsInf(s.Y, 0) ||
			math.IsNaN(s.Size) || math.IsInf(s.Size, 0) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "sample %d is not finite", i).At(errors.StageField)
		}
		if s.Tensor != nil {
			b.aniso = true
		}
	}

	if tris == nil {
		var err error
		if tris, err = triangulateSamples(b.samples); err != nil {
			return nil, err
		}
	}
	for _, t := range tris {
		for _, v := range t {
			if v < 0 || v >= len(b.samples) {
				return nil, errors.New(errors.ErrCodeInvalidInput, "sample triangle references sample %d of %d", v, len(b.samples)).
					At(errors.StageField)
			}
		}
		p0, p1, p2 := b.samples[t[0]], b.samples[t[1]], b.samples[t[2]]
		area := geom.Orient2D(p0.X, p0.Y, p1.X, p1.Y, p2.X, p2.Y)
		switch {
		case area > 0:
			b.tris = append(b.tris, t)
		case area < 0:
			b.tris = append(b.tris, [3]int{t[0], t[2], t[1]})
		}
	}
	if len(b.tris) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "background samples span no area").At(errors.StageField)
	}
	b.index = newGridIndex(b.samples, b.tris)
	return b, nil
}

// Samples returns a copy of the sample table.
func (b *Background) Samples() []Sample { return append([]Sample(nil), b.samples...) }

// Triangles returns the sample triangles, counter-clockwise.
func (b *Background) Triangles() [][3]int { return append([][3]int(nil), b.tris...) }

// Anisotropic reports whether any sample carries a tensor.
func (b *Background) Anisotropic() bool { return b.aniso }

// Evaluate implements Field. For tensor samples it returns the smallest
// principal length of the interpolated metric.
func (b *Background) Evaluate(x, y float64) (float64, error) {
	t, w, ok := b.locate(x, y)
	if !ok {
		return b.outside(x, y)
	}
	if !b.aniso {
		return b.scalar(t, w), nil
	}
	m := b.metric(t, w)
	if !m.Valid() {
		return 0, nil
	}
	hmin, _ := m.Sizes()
	return hmin, nil
}

// Metric implements MetricField.
func (b *Background) Metric(x, y float64) (geom.Metric, error) {
	t, w, ok := b.locate(x, y)
	if !ok {
		h, err := b.outside(x, y)
		if err != nil {
			return geom.Metric{}, err
		}
		return geom.Isotropic(h), nil
	}
	if !b.aniso {
		h := b.scalar(t, w)
		if h <= 0 {
			return geom.Metric{}, nil
		}
		return geom.Isotropic(h), nil
	}
	return b.metric(t, w), nil
}

func (b *Background) outside(x, y float64) (float64, error) {
	if b.clamp > 0 {
		return b.clamp, nil
	}
	return 0, errors.Domain(x, y)
}

func (b *Background) scalar(t int, w [3]float64) float64 {
	tri := b.tris[t]
	return w[0]*b.samples[tri[0]].Size + w[1]*b.samples[tri[1]].Size + w[2]*b.samples[tri[2]].Size
}

func (b *Background) metric(t int, w [3]float64) geom.Metric {
	tri := b.tris[t]
	ms := make([]geom.Metric, 3)
	for i, v := range tri {
		s := b.samples[v]
		switch {
		case s.Tensor != nil:
			ms[i] = *s.Tensor
		case s.Size > 0:
			ms[i] = geom.Isotropic(s.Size)
		}
	}
	return geom.Blend(ms, w[:])
}

// locate finds the sample triangle containing (x, y) and the barycentric
// weights of the point in it.
func (b *Background) locate(x, y float64) (int, [3]float64, bool) {
	for _, t := range b.index.candidates(x, y) {
		tri := b.tris[t]
		p0, p1, p2 := b.samples[tri[0]], b.samples[tri[1]], b.samples[tri[2]]
		area := geom.Orient2D(p0.X, p0.Y, p1.X, p1.Y, p2.X, p2.Y)
		w0 := geom.Orient2D(p1.X, p1.Y, p2.X, p2.Y, x, y) / area
		w1 := geom.Orient2D(p2.X, p2.Y, p0.X, p0.Y, x, y) / area
		w2 := 1 - w0 - w1
		const tol = -1e-12
		if w0 >= tol && w1 >= tol && w2 >= tol {
			return t, [3]float64{w0, w1, w2}, true
		}
	}
	return -1, [3]float64{}, false
}

// LimitGradation returns a copy of b in which the sizes of samples joined
// by a triangle edge differ by at most the factor ratio. Sizes only ever
// shrink. Tensor samples are scaled uniformly.
func (b *Background) LimitGradation(ratio float64) *Background {
	if ratio < 1 {
		return b
	}
	out := *b
	out.samples = append([]Sample(nil), b.samples...)
	for i, s := range out.samples {
		if s.Tensor != nil {
			m := *s.Tensor
			out.samples[i].Tensor = &m
		}
	}

	size := func(i int) float64 {
		s := out.samples[i]
		if s.Tensor != nil {
			h, _ := s.Tensor.Sizes()
			return h
		}
		return s.Size
	}
	shrink := func(i int, h float64) {
		s := &out.samples[i]
		if s.Tensor != nil {
			cur, _ := s.Tensor.Sizes()
			m := s.Tensor.Scale(h / cur)
			s.Tensor = &m
			return
		}
		s.Size = h
	}

	for pass := 0; pass < len(out.samples); pass++ {
		changed := false
		for _, t := range out.tris {
			for k := 0; k < 3; k++ {
				i, j := t[k], t[(k+1)%3]
				hi, hj := size(i), size(j)
				if hi <= 0 || hj <= 0 {
					continue
				}
				if hj > ratio*hi*(1+1e-12) {
					shrink(j, ratio*hi)
					changed = true
				} else if hi > ratio*hj*(1+1e-12) {
					shrink(i, ratio*hj)
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return &out
}

// =============================================================================
// Sample triangulation
// =============================================================================

func triangulateSamples(samples []Sample) ([][3]int, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range samples {
		minX, maxX = math.Min(minX, s.X), math.Max(maxX, s.X)
		minY, maxY = math.Min(minY, s.Y), math.Max(maxY, s.Y)
	}
	m := cdt.New(minX, minY, maxX, maxY)

	// Coincident samples collapse onto the first one.
	owner := make(map[int]int)
	vert := make([]int, len(samples))
	for i, s := range samples {
		v, err := m.Insert(s.X, s.Y, nil)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "triangulating background samples").At(errors.StageField)
		}
		vert[i] = v
		if _, ok := owner[v]; !ok {
			owner[v] = i
		}
	}

	hull := convexHull(samples)
	if len(hull) < 3 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "background samples are collinear").At(errors.StageField)
	}
	for k := range hull {
		a, b := vert[hull[k]], vert[hull[(k+1)%len(hull)]]
		if a == b {
			continue
		}
		if err := m.Enforce(a, b); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "recovering sample hull").At(errors.StageField)
		}
	}
	m.Classify(func(_, _ float64) bool { return true })

	var tris [][3]int
	for _, t := range m.InsideTriangles() {
		v := m.Tris[t].V
		tris = append(tris, [3]int{owner[v[0]], owner[v[1]], owner[v[2]]})
	}
	return tris, nil
}

// convexHull returns the indices of the strict convex hull of the samples in
// counter-clockwise order, using the first sample at each distinct location.
func convexHull(samples []Sample) []int {
	idx := make([]int, 0, len(samples))
	seen := make(map[[2]float64]bool, len(samples))
	for i, s := range samples {
		k := [2]float64{s.X, s.Y}
		if !seen[k] {
			seen[k] = true
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		pa, pb := samples[idx[a]], samples[idx[b]]
		if pa.X != pb.X {
			return pa.X < pb.X
		}
		return pa.Y < pb.Y
	})
	if len(idx) < 3 {
		return idx
	}
	cross := func(o, a, b int) float64 {
		po, pa, pb := samples[o], samples[a], samples[b]
		return geom.Orient2D(po.X, po.Y, pa.X, pa.Y, pb.X, pb.Y)
	}
	hull := make([]int, 0, 2*len(idx))
	for _, i := range idx {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], i) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	lower := len(hull) + 1
	for k := len(idx) - 2; k >= 0; k-- {
		i := idx[k]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], i) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	return hull[:len(hull)-1]
}

// =============================================================================
// Grid index
// =============================================================================

// gridIndex buckets triangles by the cells their bounding boxes overlap.
type gridIndex struct {
	minX, minY float64
	cell       float64
	nx, ny     int
	cells      [][]int32
}

func newGridIndex(samples []Sample, tris [][3]int) gridIndex {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, t := range tris {
		for _, v := range t {
			s := samples[v]
			minX, maxX = math.Min(minX, s.X), math.Max(maxX, s.X)
			minY, maxY = math.Min(minY, s.Y), math.Max(maxY, s.Y)
		}
	}
	w, h := maxX-minX, maxY-minY
	n := math.Max(1, math.Ceil(math.Sqrt(float64(len(tris)))))
	cell := math.Max(w, h) / n
	if cell <= 0 {
		cell = 1
	}
	g := gridIndex{
		minX: minX, minY: minY, cell: cell,
		nx: int(w/cell) + 1, ny: int(h/cell) + 1,
	}
	g.cells = make([][]int32, g.nx*g.ny)
	for ti, t := range tris {
		bx0, by0 := math.Inf(1), math.Inf(1)
		bx1, by1 := math.Inf(-1), math.Inf(-1)
		for _, v := range t {
			s := samples[v]
			bx0, bx1 = math.Min(bx0, s.X), math.Max(bx1, s.X)
			by0, by1 = math.Min(by0, s.Y), math.Max(by1, s.Y)
		}
		i0, j0 := g.cellOf(bx0, by0)
		i1, j1 := g.cellOf(bx1, by1)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				g.cells[j*g.nx+i] = append(g.cells[j*g.nx+i], int32(ti))
			}
		}
	}
	return g
}

func (g *gridIndex) cellOf(x, y float64) (int, int) {
	i := int((x - g.minX) / g.cell)
	j := int((y - g.minY) / g.cell)
	return clampInt(i, 0, g.nx-1), clampInt(j, 0, g.ny-1)
}

func (g *gridIndex) candidates(x, y float64) []int {
	if x < g.minX-g.cell || y < g.minY-g.cell ||
		x > g.minX+float64(g.nx+1)*g.cell || y > g.minY+float64(g.ny+1)*g.cell {
		return nil
	}
	i, j := g.cellOf(x, y)
	cell := g.cells[j*g.nx+i]
	out := make([]int, len(cell))
	for k, t := range cell {
		out[k] = int(t)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
