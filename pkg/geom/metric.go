package geom

import "math"

// Metric is a symmetric positive-definite 2x2 tensor [[A B] [B C]] that
// prescribes anisotropic edge lengths: a vector v has unit length in the
// metric when sqrt(vᵀ M v) == 1. An isotropic size h is the metric I/h².
type Metric struct {
	A, B, C float64
}

// Isotropic returns the metric prescribing length h in every direction.
func Isotropic(h float64) Metric {
	l := 1 / (h * h)
	return Metric{A: l, C: l}
}

// Anisotropic returns the metric prescribing length h1 along the direction
// at angle theta (radians) and h2 perpendicular to it.
func Anisotropic(h1, h2, theta float64) Metric {
	return fromEigen(1/(h1*h1), 1/(h2*h2), theta)
}

// Length returns the metric length of the vector (dx, dy).
func (m Metric) Length(dx, dy float64) float64 {
	q := m.A*dx*dx + 2*m.B*dx*dy + m.C*dy*dy
	if q <= 0 {
		return 0
	}
	return math.Sqrt(q)
}

// Valid reports whether m is finite and positive definite.
func (m Metric) Valid() bool {
	for _, v := range []float64{m.A, m.B, m.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return m.A > 0 && m.A*m.C-m.B*m.B > 0
}

// Eigen returns the eigenvalues l1 >= l2 and the angle of the eigenvector
// belonging to l1.
func (m Metric) Eigen() (l1, l2, theta float64) {
	half := (m.A + m.C) / 2
	disc := math.Hypot((m.A-m.C)/2, m.B)
	l1, l2 = half+disc, half-disc
	switch {
	case m.B != 0:
		theta = math.Atan2(m.B, l1-m.C)
	case m.A >= m.C:
		theta = 0
	default:
		theta = math.Pi / 2
	}
	return l1, l2, theta
}

// Sizes returns the smallest and largest prescribed lengths.
func (m Metric) Sizes() (hmin, hmax float64) {
	l1, l2, _ := m.Eigen()
	return 1 / math.Sqrt(l1), 1 / math.Sqrt(l2)
}

// Scale multiplies every prescribed length by f.
func (m Metric) Scale(f float64) Metric {
	s := 1 / (f * f)
	return Metric{A: m.A * s, B: m.B * s, C: m.C * s}
}

// ClampSizes bounds both principal lengths to [hmin, hmax]. A zero bound is
// ignored.
func (m Metric) ClampSizes(hmin, hmax float64) Metric {
	l1, l2, theta := m.Eigen()
	clamp := func(l float64) float64 {
		h := 1 / math.Sqrt(l)
		if hmin > 0 && h < hmin {
			h = hmin
		}
		if hmax > 0 && h > hmax {
			h = hmax
		}
		return 1 / (h * h)
	}
	return fromEigen(clamp(l1), clamp(l2), theta)
}

// ClampAnisotropy limits the ratio between the largest and smallest lengths
// to maxRatio by shrinking the largest one.
func (m Metric) ClampAnisotropy(maxRatio float64) Metric {
	if maxRatio < 1 {
		return m
	}
	l1, l2, theta := m.Eigen()
	if l1 <= l2*maxRatio*maxRatio {
		return m
	}
	return fromEigen(l1, l1/(maxRatio*maxRatio), theta)
}

// Sqrt returns the symmetric square root S with S·S == M. Mapping points
// through S turns metric lengths into Euclidean lengths.
func (m Metric) Sqrt() Metric {
	l1, l2, theta := m.Eigen()
	return fromEigen(math.Sqrt(math.Max(l1, 0)), math.Sqrt(math.Max(l2, 0)), theta)
}

// Apply maps the vector (x, y) through m.
func (m Metric) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.B*y, m.B*x + m.C*y
}

// Blend returns the weighted component-wise combination of metrics. Weights
// are expected to be non-negative and sum to one.
func Blend(ms []Metric, ws []float64) Metric {
	var out Metric
	for i, m := range ms {
		out.A += ws[i] * m.A
		out.B += ws[i] * m.B
		out.C += ws[i] * m.C
	}
	return out
}

func fromEigen(l1, l2, theta float64) Metric {
	c, s := math.Cos(theta), math.Sin(theta)
	return Metric{
		A: l1*c*c + l2*s*s,
		B: (l1 - l2) * c * s,
		C: l1*s*s + l2*c*c,
	}
}
