package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/matzehuels/quadmesh/pkg/mesh"
)

func square() *mesh.TriangleMesh {
	m := &mesh.TriangleMesh{
		Vertices: []mesh.Vertex{
			{ID: 0, X: 0, Y: 0}, {ID: 1, X: 1, Y: 0}, {ID: 2, X: 1, Y: 1}, {ID: 3, X: 0, Y: 1},
		},
		Triangles: []mesh.Triangle{
			{ID: 0, V: [3]int{0, 1, 2}},
			{ID: 1, V: [3]int{0, 2, 3}},
		},
		Boundary: []mesh.Segment{
			{V: [2]int{0, 1}, Edge: 0},
			{V: [2]int{1, 2}, Edge: 1},
			{V: [2]int{2, 3}, Edge: 2},
			{V: [2]int{3, 0}, Edge: 3},
		},
	}
	mesh.BuildAdjacency(m.Triangles)
	return m
}

func TestPNG(t *testing.T) {
	h := square().Hybrid()
	data, err := PNG(h, Options{Width: 200, Height: 100})
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("size = %dx%d, want 200x100", b.Dx(), b.Dy())
	}
	// The mesh is centred: the image corners stay white, the centre is not.
	if r, g, b, _ := img.At(2, 2).RGBA(); r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("corner pixel = %v, want white", img.At(2, 2))
	}
	if r, g, b, _ := img.At(90, 60).RGBA(); r == 0xffff && g == 0xffff && b == 0xffff {
		t.Errorf("pixel inside the mesh is white")
	}
}

func TestPNGEmpty(t *testing.T) {
	if _, err := PNG(&mesh.HybridMesh{}, Options{}); err == nil {
		t.Error("PNG(empty) succeeded, want error")
	}
}

func TestMatchingDOT(t *testing.T) {
	dot := MatchingDOT(square(), nil, 0.01)
	for _, want := range []string{"graph matching", "layout=neato", "t0 [pos=", "t1 [pos=", "t0 -- t1"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT lacks %q:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "penwidth") {
		t.Error("unmatched pair drawn bold")
	}

	dot = MatchingDOT(square(), [][2]int{{1, 0}}, 0.01)
	if !strings.Contains(dot, "penwidth=3") {
		t.Errorf("matched pair not drawn bold:\n%s", dot)
	}

	// A threshold above the square's quality removes the candidate.
	dot = MatchingDOT(square(), nil, 1.5)
	if strings.Contains(dot, "--") {
		t.Errorf("candidate below the quality threshold kept:\n%s", dot)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(MatchingDOT(square(), [][2]int{{0, 1}}, 0.01))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !bytes.Contains(svg, []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 `)) {
		t.Errorf("root element not normalized: %.200s", svg)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="62pt" height="116pt" viewBox="0.00 0.00 62.00 116.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	out := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 62.00 116.00" width="62" height="116"><g/></svg>`
	if out != want {
		t.Errorf("normalizeViewBox = %s, want %s", out, want)
	}

	plain := []byte(`<svg><g/></svg>`)
	if got := normalizeViewBox(plain); !bytes.Equal(got, plain) {
		t.Errorf("svg without viewBox changed: %s", got)
	}
}
