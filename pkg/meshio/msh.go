package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// MSH element types.
const (
	mshLine     = 1
	mshTriangle = 2
	mshQuad     = 3
)

// WriteMSH writes h as Gmsh MSH 2.2 ASCII. Nodes and elements are numbered
// from 1: boundary lines first, then triangles, then quadrilaterals.
func WriteMSH(w io.Writer, h *mesh.HybridMesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "$MeshFormat\n2.2 0 8\n$EndMeshFormat\n")

	fmt.Fprintf(bw, "$Nodes\n%d\n", len(h.Vertices))
	for i, v := range h.Vertices {
		fmt.Fprintf(bw, "%d %s %s 0\n", i+1, num(v.X), num(v.Y))
	}
	fmt.Fprint(bw, "$EndNodes\n")

	fmt.Fprintf(bw, "$Elements\n%d\n", len(h.Boundary)+h.NumElements())
	id := 1
	for _, s := range h.Boundary {
		tag := s.Edge + 1
		fmt.Fprintf(bw, "%d %d 2 %d %d %d %d\n", id, mshLine, tag, tag, s.V[0]+1, s.V[1]+1)
		id++
	}
	for _, t := range h.Triangles {
		tag := t.Surface + 1
		fmt.Fprintf(bw, "%d %d 2 %d %d %d %d %d\n", id, mshTriangle, tag, tag, t.V[0]+1, t.V[1]+1, t.V[2]+1)
		id++
	}
	for _, q := range h.Quads {
		tag := q.Surface + 1
		fmt.Fprintf(bw, "%d %d 2 %d %d %d %d %d %d\n", id, mshQuad, tag, tag, q.V[0]+1, q.V[1]+1, q.V[2]+1, q.V[3]+1)
		id++
	}
	fmt.Fprint(bw, "$EndElements\n")
	return bw.Flush()
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', 17, 64) }

// ReadMSH reads a MSH 2.2 ASCII file. Element types other than lines,
// triangles and quadrilaterals are skipped. Elements are renumbered
// densely per kind; surface and edge ids are the physical tags minus one.
func ReadMSH(r io.Reader) (*mesh.HybridMesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}
	fail := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeInvalidFormat, "msh line %d: %s", line, fmt.Sprintf(format, args...))
	}

	h := &mesh.HybridMesh{}
	node := make(map[int]int)
	sawNodes := false

	for {
		s, ok := next()
		if !ok {
			break
		}
		switch s {
		case "$MeshFormat":
			hdr, _ := next()
			f := strings.Fields(hdr)
			if len(f) < 2 || !strings.HasPrefix(f[0], "2") {
				return nil, fail("unsupported MSH version %q", hdr)
			}
			if f[1] != "0" {
				return nil, fail("binary MSH is not supported")
			}
			if end, _ := next(); end != "$EndMeshFormat" {
				return nil, fail("expected $EndMeshFormat")
			}

		case "$Nodes":
			n, err := count(next)
			if err != nil {
				return nil, fail("%v", err)
			}
			for i := 0; i < n; i++ {
				rec, _ := next()
				f := strings.Fields(rec)
				if len(f) < 3 {
					return nil, fail("short node record")
				}
				tag, err1 := strconv.Atoi(f[0])
				x, err2 := strconv.ParseFloat(f[1], 64)
				y, err3 := strconv.ParseFloat(f[2], 64)
				if err1 != nil || err2 != nil || err3 != nil {
					return nil, fail("bad node record %q", rec)
				}
				node[tag] = len(h.Vertices)
				h.Vertices = append(h.Vertices, mesh.Vertex{ID: len(h.Vertices), X: x, Y: y})
			}
			if end, _ := next(); end != "$EndNodes" {
				return nil, fail("expected $EndNodes")
			}
			sawNodes = true

		case "$Elements":
			if !sawNodes {
				return nil, fail("$Elements before $Nodes")
			}
			n, err := count(next)
			if err != nil {
				return nil, fail("%v", err)
			}
			for i := 0; i < n; i++ {
				rec, _ := next()
				if err := readElement(h, node, rec); err != nil {
					return nil, fail("%v", err)
				}
			}
			if end, _ := next(); end != "$EndElements" {
				return nil, fail("expected $EndElements")
			}

		default:
			// Skip unknown sections.
			if strings.HasPrefix(s, "$") {
				endTag := "$End" + s[1:]
				for {
					t, ok := next()
					if !ok {
						return nil, fail("unterminated section %s", s)
					}
					if t == endTag {
						break
					}
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawNodes {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "msh: no $Nodes section")
	}
	mesh.BuildAdjacency(h.Triangles)
	return h, nil
}

func count(next func() (string, bool)) (int, error) {
	s, _ := next()
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad count %q", s)
	}
	return n, nil
}

func readElement(h *mesh.HybridMesh, node map[int]int, rec string) error {
	f := strings.Fields(rec)
	if len(f) < 3 {
		return fmt.Errorf("short element record")
	}
	ints := make([]int, len(f))
	for i, s := range f {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad element record %q", rec)
		}
		ints[i] = v
	}
	typ, ntags := ints[1], ints[2]
	if len(ints) < 3+ntags {
		return fmt.Errorf("short element record")
	}
	phys := 0
	if ntags > 0 {
		phys = ints[3]
	}
	nodes := ints[3+ntags:]
	want := map[int]int{mshLine: 2, mshTriangle: 3, mshQuad: 4}[typ]
	if want == 0 {
		return nil
	}
	if len(nodes) != want {
		return fmt.Errorf("element type %d needs %d nodes, got %d", typ, want, len(nodes))
	}
	v := make([]int, want)
	for i, tag := range nodes {
		idx, ok := node[tag]
		if !ok {
			return fmt.Errorf("element references unknown node %d", tag)
		}
		v[i] = idx
	}
	switch typ {
	case mshLine:
		h.Boundary = append(h.Boundary, mesh.Segment{V: [2]int{v[0], v[1]}, Edge: phys - 1})
	case mshTriangle:
		h.Triangles = append(h.Triangles, mesh.Triangle{
			ID: len(h.Triangles), V: [3]int{v[0], v[1], v[2]}, Surface: phys - 1,
		})
	case mshQuad:
		h.Quads = append(h.Quads, mesh.Quad{
			ID: len(h.Quads), V: [4]int{v[0], v[1], v[2], v[3]}, Surface: phys - 1,
		})
	}
	return nil
}
