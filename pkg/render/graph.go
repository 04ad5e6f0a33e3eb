package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/mesh/recombine"
)

// graphInches is the side of the square the node positions are scaled to.
const graphInches = 12.0

// MatchingDOT converts the matching graph of tri to Graphviz DOT. Nodes
// are the triangles, positioned at their centroids; edges are the
// candidate pairs of quality at least minQuality, labelled with that
// quality. Pairs listed in matched are drawn bold.
//
// The graph requests the neato engine so tools honouring the layout
// attribute keep the pinned positions.
func MatchingDOT(tri *mesh.TriangleMesh, matched [][2]int, minQuality float64) string {
	tris := append([]mesh.Triangle(nil), tri.Triangles...)
	mesh.BuildAdjacency(tris)
	fixed := make(map[mesh.EdgeKey]bool, len(tri.Boundary))
	for _, s := range tri.Boundary {
		fixed[mesh.Key(s.V[0], s.V[1])] = true
	}
	g := recombine.BuildGraph(tri.Vertices, tris, fixed, minQuality)

	chosen := make(map[[2]int]bool, len(matched))
	for _, p := range matched {
		a, b := p[0], p[1]
		if a > b {
			a, b = b, a
		}
		chosen[[2]int{a, b}] = true
	}

	minX, minY, maxX, maxY := mesh.Bound(tri.Vertices)
	scale := graphInches / maxf(maxX-minX, maxY-minY, 1e-12)

	var buf bytes.Buffer
	buf.WriteString("graph matching {\n")
	buf.WriteString("  layout=neato;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  splines=false;\n")
	buf.WriteString("  node [shape=circle, width=0.12, fixedsize=true, style=filled, fillcolor=\"#4c78a8\", label=\"\"];\n")
	buf.WriteString("  edge [color=\"#bbbbbb\", fontsize=8];\n")
	buf.WriteString("\n")

	for i, t := range tris {
		cx, cy := centroid(tri.Vertices, t)
		fmt.Fprintf(&buf, "  t%d [pos=\"%.4f,%.4f!\", tooltip=\"triangle %d (surface %d)\"];\n",
			i, (cx-minX)*scale, (cy-minY)*scale, t.ID, t.Surface)
	}

	buf.WriteString("\n")
	for _, c := range g.Candidates {
		attrs := fmt.Sprintf("tooltip=\"q=%.3f\"", c.Quality)
		if chosen[[2]int{tris[c.T].ID, tris[c.U].ID}] {
			attrs += ", color=\"#e45756\", penwidth=3"
		}
		fmt.Fprintf(&buf, "  t%d -- t%d [%s];\n", c.T, c.U, attrs)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func centroid(vs []mesh.Vertex, t mesh.Triangle) (float64, float64) {
	a, b, c := vs[t.V[0]], vs[t.V[1]], vs[t.V[2]]
	return (a.X + b.X + c.X) / 3, (a.Y + b.Y + c.Y) / 3
}

func maxf(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the drawing scales with
// its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
