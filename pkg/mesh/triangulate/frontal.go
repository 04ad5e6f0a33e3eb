package triangulate

import (
	"context"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
	"github.com/matzehuels/quadmesh/pkg/mesh/cdt"
)

// seed is a front point with the unit direction of its local frame.
type seed struct {
	x, y   float64
	ux, uy float64
}

const (
	// frontalSpacing is the minimum distance between placed points, in
	// units of the local size and measured in the L∞ norm of the frame.
	frontalSpacing = 0.7
	// frontalClearance is the minimum distance from the boundary, in units
	// of the local size.
	frontalClearance = 0.5
)

// placeFrontal inserts interior points by advancing from the boundary. Each
// accepted point spawns four candidates one target length away along its
// frame axes; a candidate is kept when it lies inside the surface, clear of
// the boundary and not too close to any existing point in the L∞ norm of the
// frame. The result is a lattice of right-angled triangle pairs aligned with
// the boundary.
func (g *generator) placeFrontal(ctx context.Context, cm *cdt.Mesh, s geom.Surface, poly orb.Polygon, segs [][2]int, fronts []seed) error {
	ent := errors.Surface(int(s.ID))
	if len(segs) == 0 {
		return nil
	}

	lengths := make([]float64, len(segs))
	for i, sg := range segs {
		a, b := cm.Pts[sg[0]], cm.Pts[sg[1]]
		lengths[i] = math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	sorted := append([]float64(nil), lengths...)
	sort.Float64s(sorted)
	grid := newPointGrid(sorted[len(sorted)/2])
	for _, f := range fronts {
		grid.add(f.x, f.y)
	}
	boundary := newSegmentGrid(sorted[len(sorted)/2])
	for _, sg := range segs {
		a, b := cm.Pts[sg[0]], cm.Pts[sg[1]]
		boundary.add(a.X, a.Y, b.X, b.Y)
	}

	queue := append([]seed(nil), fronts...)
	for head := 0; head < len(queue); head++ {
		if head%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		p := queue[head]
		m, err := g.sizer.metric(p.x, p.y, ent)
		if err != nil {
			return err
		}
		ux, uy, hu, hw := frame(m, p, g.opts.Anisotropic)
		wx, wy := -uy, ux

		candidates := [4][2]float64{
			{p.x + hu*ux, p.y + hu*uy},
			{p.x + hw*wx, p.y + hw*wy},
			{p.x - hu*ux, p.y - hu*uy},
			{p.x - hw*wx, p.y - hw*wy},
		}
		for _, c := range candidates {
			if !planar.PolygonContains(poly, orb.Point{c[0], c[1]}) {
				continue
			}
			hc, err := g.sizer.size(c[0], c[1], ent)
			if err != nil {
				return err
			}
			if boundary.near(c[0], c[1], frontalClearance*math.Min(hc, math.Min(hu, hw))) {
				continue
			}
			tooClose := grid.any(c[0], c[1], frontalSpacing*math.Sqrt2*math.Max(hu, hw), func(qx, qy float64) bool {
				dx, dy := qx-c[0], qy-c[1]
				du := math.Abs(dx*ux+dy*uy) / hu
				dw := math.Abs(dx*wx+dy*wy) / hw
				return math.Max(du, dw) < frontalSpacing
			})
			if tooClose {
				continue
			}
			if err := g.addVertex(ent); err != nil {
				return err
			}
			var met *geom.Metric
			if g.opts.Anisotropic {
				met = &m
			}
			if _, err := cm.Insert(c[0], c[1], met); err != nil {
				return errors.Wrap(errors.ErrCodeMeshingFailed, err, "frontal insertion").On(ent).At(errors.StageTriangulate)
			}
			grid.add(c[0], c[1])
			queue = append(queue, seed{x: c[0], y: c[1], ux: ux, uy: uy})
		}
	}
	return nil
}

// frame returns the unit direction and the target lengths along it and its
// normal. Anisotropic metrics dictate the frame; isotropic ones inherit the
// seed direction.
func frame(m geom.Metric, p seed, aniso bool) (ux, uy, hu, hw float64) {
	if aniso {
		l1, l2, theta := m.Eigen()
		return math.Cos(theta), math.Sin(theta), 1 / math.Sqrt(l1), 1 / math.Sqrt(l2)
	}
	h, _ := m.Sizes()
	return p.ux, p.uy, h, h
}

// =============================================================================
// Point grid
// =============================================================================

// pointGrid is a uniform spatial hash of points.
type pointGrid struct {
	cell  float64
	cells map[[2]int][][2]float64
}

func newPointGrid(cell float64) *pointGrid {
	if cell <= 0 {
		cell = 1
	}
	return &pointGrid{cell: cell, cells: make(map[[2]int][][2]float64)}
}

func (g *pointGrid) key(x, y float64) [2]int {
	return [2]int{int(math.Floor(x / g.cell)), int(math.Floor(y / g.cell))}
}

func (g *pointGrid) add(x, y float64) {
	k := g.key(x, y)
	g.cells[k] = append(g.cells[k], [2]float64{x, y})
}

// any reports whether pred holds for a stored point within the square of
// half-width r around (x, y).
func (g *pointGrid) any(x, y, r float64, pred func(qx, qy float64) bool) bool {
	lo, hi := g.key(x-r, y-r), g.key(x+r, y+r)
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for _, q := range g.cells[[2]int{i, j}] {
				if pred(q[0], q[1]) {
					return true
				}
			}
		}
	}
	return false
}

// segmentGrid buckets segments by every cell their bounding box touches.
type segmentGrid struct {
	cell  float64
	segs  [][4]float64
	cells map[[2]int][]int
}

func newSegmentGrid(cell float64) *segmentGrid {
	if cell <= 0 {
		cell = 1
	}
	return &segmentGrid{cell: cell, cells: make(map[[2]int][]int)}
}

func (g *segmentGrid) key(x, y float64) [2]int {
	return [2]int{int(math.Floor(x / g.cell)), int(math.Floor(y / g.cell))}
}

func (g *segmentGrid) add(ax, ay, bx, by float64) {
	id := len(g.segs)
	g.segs = append(g.segs, [4]float64{ax, ay, bx, by})
	lo := g.key(math.Min(ax, bx), math.Min(ay, by))
	hi := g.key(math.Max(ax, bx), math.Max(ay, by))
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			g.cells[[2]int{i, j}] = append(g.cells[[2]int{i, j}], id)
		}
	}
}

// near reports whether some segment passes closer than d to (x, y).
func (g *segmentGrid) near(x, y, d float64) bool {
	lo, hi := g.key(x-d, y-d), g.key(x+d, y+d)
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for _, id := range g.cells[[2]int{i, j}] {
				s := g.segs[id]
				if geom.PointSegmentDistance(x, y, s[0], s[1], s[2], s[3]) < d {
					return true
				}
			}
		}
	}
	return false
}
