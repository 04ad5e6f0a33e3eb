package geom

import "math"

// Orient2D returns twice the signed area of triangle (a, b, c): positive when
// the points are in counter-clockwise order, negative when clockwise and zero
// when collinear.
func Orient2D(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// InCircle returns a positive value when d lies strictly inside the
// circumcircle of the counter-clockwise triangle (a, b, c), negative when
// outside and zero when the four points are cocircular.
func InCircle(ax, ay, bx, by, cx, cy, dx, dy float64) float64 {
	adx, ady := ax-dx, ay-dy
	bdx, bdy := bx-dx, by-dy
	cdx, cdy := cx-dx, cy-dy

	ad := adx*adx + ady*ady
	bd := bdx*bdx + bdy*bdy
	cd := cdx*cdx + cdy*cdy

	return adx*(bdy*cd-bd*cdy) - ady*(bdx*cd-bd*cdx) + ad*(bdx*cdy-bdy*cdx)
}

// SegmentsCross reports whether the open segments ab and cd cross at a single
// interior point.
func SegmentsCross(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	d1 := Orient2D(ax, ay, bx, by, cx, cy)
	d2 := Orient2D(ax, ay, bx, by, dx, dy)
	d3 := Orient2D(cx, cy, dx, dy, ax, ay)
	d4 := Orient2D(cx, cy, dx, dy, bx, by)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// SegmentsIntersect reports whether the closed segments ab and cd share any
// point, including touching endpoints and collinear overlap.
func SegmentsIntersect(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	d1 := Orient2D(ax, ay, bx, by, cx, cy)
	d2 := Orient2D(ax, ay, bx, by, dx, dy)
	d3 := Orient2D(cx, cy, dx, dy, ax, ay)
	d4 := Orient2D(cx, cy, dx, dy, bx, by)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(ax, ay, bx, by, cx, cy)) ||
		(d2 == 0 && onSegment(ax, ay, bx, by, dx, dy)) ||
		(d3 == 0 && onSegment(cx, cy, dx, dy, ax, ay)) ||
		(d4 == 0 && onSegment(cx, cy, dx, dy, bx, by))
}

// onSegment reports whether p, known to be collinear with ab, lies within
// the bounding box of ab.
func onSegment(ax, ay, bx, by, px, py float64) bool {
	return px >= math.Min(ax, bx) && px <= math.Max(ax, bx) &&
		py >= math.Min(ay, by) && py <= math.Max(ay, by)
}

// PointSegmentDistance returns the Euclidean distance from p to segment ab.
func PointSegmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
