package field

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// View is a post-processing view in the Gmsh .pos text format, reduced to
// what a background size field needs.
type View struct {
	Name      string
	Samples   []Sample
	Triangles [][3]int // nil when the view holds only point records
}

// Background builds a background field from the view.
func (v *View) Background(clamp float64) (*Background, error) {
	return NewBackground(v.Samples, v.Triangles, clamp)
}

// recordShape gives the number of nodes and values per node of a record.
var recordShape = map[string]struct{ nodes, values int }{
	"SP": {1, 1},
	"ST": {3, 1},
	"TP": {1, 9},
	"TT": {3, 9},
}

// ParsePos reads a view of the form
//
//	View "name" {
//	  SP(x,y,z){size};
//	  ST(x1,y1,z1,x2,y2,z2,x3,y3,z3){s1,s2,s3};
//	  TP(x,y,z){t11,t12,t13,t21,t22,t23,t31,t32,t33};
//	  TT(...){27 values};
//	};
//
// Tensor records yield metric samples with A=t11, B=t12, C=t22. When the
// view contains triangle records, point records are ignored and the
// triangles define the interpolation support; otherwise the points are
// triangulated.
func ParsePos(r io.Reader) (*View, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read view")
	}
	src := stripComments(string(data))

	view := &View{}
	open := strings.Index(src, "{")
	if open < 0 {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "view has no body")
	}
	header := strings.TrimSpace(src[:open])
	if !strings.HasPrefix(header, "View") {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "expected View header, got %q", header)
	}
	view.Name = strings.Trim(strings.TrimSpace(strings.TrimPrefix(header, "View")), `"`)
	body := src[open+1:]
	if end := strings.LastIndex(body, "}"); end >= 0 {
		body = body[:end]
	}

	var points, triSamples []Sample
	var tris [][3]int
	for n, rec := range strings.Split(body, ";") {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		kind, coords, values, err := splitRecord(rec)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "record %d", n+1)
		}
		shape, ok := recordShape[kind]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "record %d: unsupported record type %q", n+1, kind)
		}
		if len(coords) != 3*shape.nodes || len(values) != shape.nodes*shape.values {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "record %d: %s expects %d coordinates and %d values, got %d and %d",
				n+1, kind, 3*shape.nodes, shape.nodes*shape.values, len(coords), len(values))
		}

		samples := make([]Sample, shape.nodes)
		for i := range samples {
			samples[i].X, samples[i].Y = coords[3*i], coords[3*i+1]
			vals := values[i*shape.values : (i+1)*shape.values]
			if shape.values == 1 {
				samples[i].Size = vals[0]
				continue
			}
			m := geom.Metric{A: vals[0], B: vals[1], C: vals[4]}
			samples[i].Tensor = &m
			if m.Valid() {
				samples[i].Size, _ = m.Sizes()
			}
		}
		if shape.nodes == 1 {
			points = append(points, samples[0])
			continue
		}
		base := len(triSamples)
		triSamples = append(triSamples, samples...)
		tris = append(tris, [3]int{base, base + 1, base + 2})
	}

	if len(tris) > 0 {
		view.Samples, view.Triangles = triSamples, tris
	} else {
		view.Samples = points
	}
	return view, nil
}

func splitRecord(rec string) (string, []float64, []float64, error) {
	lp := strings.Index(rec, "(")
	rp := strings.Index(rec, ")")
	lb := strings.Index(rec, "{")
	rb := strings.LastIndex(rec, "}")
	if lp < 0 || rp < lp || lb < rp || rb < lb {
		return "", nil, nil, errors.New(errors.ErrCodeInvalidFormat, "malformed record %q", rec)
	}
	coords, err := parseNumbers(rec[lp+1 : rp])
	if err != nil {
		return "", nil, nil, err
	}
	values, err := parseNumbers(rec[lb+1 : rb])
	if err != nil {
		return "", nil, nil, err
	}
	return strings.TrimSpace(rec[:lp]), coords, values, nil
}

func parseNumbers(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "malformed number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func stripComments(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
