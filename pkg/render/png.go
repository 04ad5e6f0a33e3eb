package render

import (
	"bytes"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// Options configures raster previews.
type Options struct {
	// Width and Height are the image size in pixels. Zero means 1024.
	Width, Height int

	// ShowQuality colours elements by quality, red (0) to green (1).
	ShowQuality bool
}

const (
	defaultSize = 1024
	margin      = 0.05
)

// PNG renders h as a PNG image. The mesh is scaled uniformly to fit the
// image, y pointing up.
func PNG(h *mesh.HybridMesh, opts Options) ([]byte, error) {
	if h == nil || len(h.Vertices) == 0 {
		return nil, fmt.Errorf("render: empty mesh")
	}
	w, ht := opts.Width, opts.Height
	if w <= 0 {
		w = defaultSize
	}
	if ht <= 0 {
		ht = defaultSize
	}

	minX, minY, maxX, maxY := mesh.Bound(h.Vertices)
	dx, dy := math.Max(maxX-minX, 1e-12), math.Max(maxY-minY, 1e-12)
	scale := math.Min(float64(w)*(1-2*margin)/dx, float64(ht)*(1-2*margin)/dy)
	offX := (float64(w) - dx*scale) / 2
	offY := (float64(ht) - dy*scale) / 2
	px := func(v int) (float64, float64) {
		p := h.Vertices[v]
		return offX + (p.X-minX)*scale, float64(ht) - offY - (p.Y-minY)*scale
	}

	dc := gg.NewContext(w, ht)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetLineWidth(1)

	poly := func(ids ...int) {
		for i, v := range ids {
			x, y := px(v)
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
	}
	fill := func(q float64, r, g, b float64) {
		if opts.ShowQuality {
			q = math.Max(0, math.Min(1, q))
			dc.SetRGB(1-q, 0.3+0.6*q, 0.3)
		} else {
			dc.SetRGB(r, g, b)
		}
		dc.FillPreserve()
		dc.SetRGB(0.2, 0.2, 0.25)
		dc.Stroke()
	}

	for _, t := range h.Triangles {
		poly(t.V[0], t.V[1], t.V[2])
		fill(mesh.TriangleQuality(h.Vertices, t.V[0], t.V[1], t.V[2]), 0.74, 0.84, 0.95)
	}
	for _, q := range h.Quads {
		poly(q.V[0], q.V[1], q.V[2], q.V[3])
		fill(mesh.QuadQuality(h.Vertices, q.V[0], q.V[1], q.V[2], q.V[3]), 0.99, 0.82, 0.62)
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(2.5)
	for _, s := range h.Boundary {
		x0, y0 := px(s.V[0])
		x1, y1 := px(s.V[1])
		dc.DrawLine(x0, y0, x1, y1)
		dc.Stroke()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
