package recombine

import (
	"sort"

	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// Smooth applies Laplacian smoothing to h in place. Each pass visits the
// interior vertices in ID order and moves each to the mean of its edge
// neighbours unless the move would invert a triangle or make a quad
// non-convex. Vertices on boundary segments never move. It returns the
// number of accepted moves.
func Smooth(h *mesh.HybridMesh, passes int) int {
	if passes <= 0 {
		return 0
	}
	n := len(h.Vertices)
	fixed := make([]bool, n)
	for _, s := range h.Boundary {
		fixed[s.V[0]], fixed[s.V[1]] = true, true
	}

	// Element incidence: triangles as index t, quads as -(q+1).
	incident := make([][]int, n)
	nbrs := make([]map[int]bool, n)
	link := func(a, b int) {
		if nbrs[a] == nil {
			nbrs[a] = make(map[int]bool)
		}
		nbrs[a][b] = true
	}
	for i, t := range h.Triangles {
		for k := 0; k < 3; k++ {
			a, b := t.V[k], t.V[(k+1)%3]
			incident[a] = append(incident[a], i)
			link(a, b)
			link(b, a)
		}
	}
	for i, q := range h.Quads {
		for k := 0; k < 4; k++ {
			a, b := q.V[k], q.V[(k+1)%4]
			incident[a] = append(incident[a], -(i + 1))
			link(a, b)
			link(b, a)
		}
	}
	order := make([][]int, n)
	for v, set := range nbrs {
		for w := range set {
			order[v] = append(order[v], w)
		}
		sort.Ints(order[v])
	}

	valid := func(v int) bool {
		for _, e := range incident[v] {
			if e >= 0 {
				t := h.Triangles[e]
				if mesh.SignedArea(h.Vertices, t.V[:]...) <= 0 {
					return false
				}
				continue
			}
			q := h.Quads[-e-1]
			if !mesh.Convex(h.Vertices, q.V[0], q.V[1], q.V[2], q.V[3]) {
				return false
			}
		}
		return true
	}

	moved := 0
	for pass := 0; pass < passes; pass++ {
		for v := 0; v < n; v++ {
			if fixed[v] || len(order[v]) == 0 {
				continue
			}
			var x, y float64
			for _, w := range order[v] {
				x += h.Vertices[w].X
				y += h.Vertices[w].Y
			}
			k := float64(len(order[v]))
			old := h.Vertices[v]
			h.Vertices[v].X, h.Vertices[v].Y = x/k, y/k
			if !valid(v) {
				h.Vertices[v] = old
				continue
			}
			moved++
		}
	}
	return moved
}
