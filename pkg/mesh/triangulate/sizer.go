package triangulate

import (
	"math"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// sizer turns field queries into the metric the mesher works with, applying
// the size factor, bounds and anisotropy limit.
type sizer struct {
	f    field.Field
	opts Options
	eps  float64
}

func newSizer(f field.Field, opts Options, extent float64) *sizer {
	return &sizer{f: f, opts: opts, eps: 1e-9 * math.Max(extent, 1e-300)}
}

// metric returns the target metric at (x, y). A raw field size at or below
// the numerical tolerance is reported as Unmeshable on ent.
func (s *sizer) metric(x, y float64, ent errors.Entity) (geom.Metric, error) {
	var m geom.Metric
	if s.opts.Anisotropic {
		mm, ok, err := field.MetricAt(s.f, x, y)
		if err != nil {
			return geom.Metric{}, err
		}
		if !ok {
			return geom.Metric{}, errors.Unmeshable(ent, "size field prescribes no valid metric at (%g, %g)", x, y)
		}
		if hmin, _ := mm.Sizes(); !(hmin > s.eps) {
			return geom.Metric{}, errors.Unmeshable(ent, "target size %g at (%g, %g) is below tolerance", hmin, x, y)
		}
		m = mm
	} else {
		h, err := s.f.Evaluate(x, y)
		if err != nil {
			return geom.Metric{}, err
		}
		if !(h > s.eps) || math.IsInf(h, 0) {
			return geom.Metric{}, errors.Unmeshable(ent, "target size %g at (%g, %g) is not positive", h, x, y)
		}
		m = geom.Isotropic(h)
	}

	if f := s.opts.SizeFactor; f > 0 && f != 1 {
		m = m.Scale(f)
	}
	if s.opts.SizeMin > 0 || s.opts.SizeMax > 0 {
		m = m.ClampSizes(s.opts.SizeMin, s.opts.SizeMax)
	}
	if s.opts.Anisotropic && s.opts.AnisoMax >= 1 {
		m = m.ClampAnisotropy(s.opts.AnisoMax)
	}
	return m, nil
}

// size returns the smallest prescribed length at (x, y).
func (s *sizer) size(x, y float64, ent errors.Entity) (float64, error) {
	m, err := s.metric(x, y, ent)
	if err != nil {
		return 0, err
	}
	h, _ := m.Sizes()
	return h, nil
}
