package field

import (
	"math"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// Field maps a point of the plane to a target element size.
//
// Evaluate is a pure function of its inputs: repeated calls with the same
// coordinates return identical results. Implementations must be safe for
// concurrent use once constructed. A point outside the field's domain yields
// a Domain error (see [errors.Domain]).
//
// Non-positive sizes are returned as-is; the triangulator rejects them.
type Field interface {
	Evaluate(x, y float64) (float64, error)
}

// MetricField is a Field that also prescribes an anisotropic metric. The
// size returned by Evaluate is the smallest principal length of the metric.
type MetricField interface {
	Field
	Metric(x, y float64) (geom.Metric, error)
}

// MetricAt returns the metric prescribed by f at (x, y). Isotropic fields
// yield the metric of their scalar size. A non-positive or non-finite size
// is returned as an Unmeshable-ready zero metric together with ok=false.
func MetricAt(f Field, x, y float64) (m geom.Metric, ok bool, err error) {
	if mf, isMetric := f.(MetricField); isMetric {
		m, err = mf.Metric(x, y)
		if err != nil {
			return geom.Metric{}, false, err
		}
		return m, m.Valid(), nil
	}
	h, err := f.Evaluate(x, y)
	if err != nil {
		return geom.Metric{}, false, err
	}
	if !(h > 0) || math.IsInf(h, 0) {
		return geom.Metric{}, false, nil
	}
	return geom.Isotropic(h), true, nil
}

// =============================================================================
// Constant
// =============================================================================

// Constant is a uniform size field.
type Constant float64

// Evaluate implements Field.
func (c Constant) Evaluate(x, y float64) (float64, error) {
	return float64(c), nil
}

// =============================================================================
// Fallback
// =============================================================================

// withFallback answers domain errors of the wrapped field with a fixed
// size.
type withFallback struct {
	Field
	size float64
}

// WithFallback wraps f so that queries outside its domain return size
// instead of a Domain error. Other errors pass through.
func WithFallback(f Field, size float64) Field {
	if size <= 0 {
		return f
	}
	if mf, ok := f.(MetricField); ok {
		return &metricFallback{withFallback{mf, size}, mf}
	}
	return &withFallback{f, size}
}

func (w *withFallback) Evaluate(x, y float64) (float64, error) {
	h, err := w.Field.Evaluate(x, y)
	if errors.Is(err, errors.ErrCodeDomain) {
		return w.size, nil
	}
	return h, err
}

type metricFallback struct {
	withFallback
	mf MetricField
}

func (w *metricFallback) Metric(x, y float64) (geom.Metric, error) {
	m, err := w.mf.Metric(x, y)
	if errors.Is(err, errors.ErrCodeDomain) {
		return geom.Isotropic(w.size), nil
	}
	return m, err
}
