package recombine

import (
	"context"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// wedge is a weighted edge between local node indices.
type wedge struct {
	i, j int
	w    int64
}

// matcher computes a maximum-weight matching on a general graph with the
// primal-dual blossom method (Edmonds, Galil). Vertices are 0..n-1 and
// blossoms n..2n-1; an edge k has endpoints 2k and 2k+1.
//
// Every recursive step of the textbook formulation (leaf enumeration,
// end-of-stage expansion, augmentation through nested blossoms, label
// propagation) runs here with an explicit work stack.
type matcher struct {
	n       int
	edges   []wedge
	maxCard bool

	endpoint  []int
	neighbend [][]int

	mate      []int
	label     []int
	labelend  []int
	inblossom []int
	parent    []int
	childs    [][]int
	endps     [][]int
	base      []int
	bestedge  []int
	bestEdges [][]int
	unused    []int
	dual      []int64
	allow     []bool
	queue     []int

	err error
}

func newMatcher(n int, edges []wedge, maxCard bool) *matcher {
	m := &matcher{n: n, edges: edges, maxCard: maxCard}
	var maxW int64
	for _, e := range edges {
		if e.w > maxW {
			maxW = e.w
		}
	}
	m.endpoint = make([]int, 2*len(edges))
	m.neighbend = make([][]int, n)
	for k, e := range edges {
		m.endpoint[2*k], m.endpoint[2*k+1] = e.i, e.j
		m.neighbend[e.i] = append(m.neighbend[e.i], 2*k+1)
		m.neighbend[e.j] = append(m.neighbend[e.j], 2*k)
	}
	m.mate = filled(n, -1)
	m.label = make([]int, 2*n)
	m.labelend = filled(2*n, -1)
	m.inblossom = make([]int, n)
	m.parent = filled(2*n, -1)
	m.childs = make([][]int, 2*n)
	m.endps = make([][]int, 2*n)
	m.base = filled(2*n, -1)
	m.bestedge = filled(2*n, -1)
	m.bestEdges = make([][]int, 2*n)
	m.dual = make([]int64, 2*n)
	m.allow = make([]bool, len(edges))
	for v := 0; v < n; v++ {
		m.inblossom[v] = v
		m.base[v] = v
		m.dual[v] = maxW
	}
	for b := 2*n - 1; b >= n; b-- {
		m.unused = append(m.unused, b)
	}
	return m
}

func filled(n, v int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// at indexes s, counting from the end for negative i.
func at(s []int, i int) int {
	if i < 0 {
		return s[len(s)+i]
	}
	return s[i]
}

func indexOf(s []int, x int) int {
	for i, v := range s {
		if v == x {
			return i
		}
	}
	return -1
}

func rotate(s []int, i int) []int {
	out := make([]int, 0, len(s))
	out = append(out, s[i:]...)
	return append(out, s[:i]...)
}

func (m *matcher) fail(format string, args ...any) {
	if m.err == nil {
		m.err = errors.MatchingFailed(format, args...)
	}
}

func (m *matcher) slack(k int) int64 {
	e := m.edges[k]
	return m.dual[e.i] + m.dual[e.j] - 2*e.w
}

// leaves appends the vertices contained in blossom b to out.
func (m *matcher) leaves(b int, out []int) []int {
	if b < m.n {
		return append(out, b)
	}
	stack := []int{b}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if x < m.n {
			out = append(out, x)
			continue
		}
		ch := m.childs[x]
		for i := len(ch) - 1; i >= 0; i-- {
			stack = append(stack, ch[i])
		}
	}
	return out
}

// assignLabel labels the top-level blossom containing w with t (1 = S,
// 2 = T) reached through endpoint p. A T-blossom passes label S on to the
// blossom of its mate.
func (m *matcher) assignLabel(w, t, p int) {
	for {
		b := m.inblossom[w]
		if m.label[w] != 0 || m.label[b] != 0 {
			m.fail("vertex %d labeled twice", w)
			return
		}
		m.label[w], m.label[b] = t, t
		m.labelend[w], m.labelend[b] = p, p
		m.bestedge[w], m.bestedge[b] = -1, -1
		if t == 1 {
			m.queue = m.leaves(b, m.queue)
			return
		}
		mb := m.mate[m.base[b]]
		if mb < 0 {
			m.fail("T-blossom %d has an unmatched base", b)
			return
		}
		w, t, p = m.endpoint[mb], 1, mb^1
	}
}

// scanBlossom traces back from v and w to find a new blossom. It returns
// the base vertex of the blossom, or -1 when an augmenting path was found.
func (m *matcher) scanBlossom(v, w int) int {
	var path []int
	base := -1
	for v != -1 || w != -1 {
		b := m.inblossom[v]
		if m.label[b]&4 != 0 {
			base = m.base[b]
			break
		}
		path = append(path, b)
		m.label[b] = 5
		if m.labelend[b] == -1 {
			v = -1
		} else {
			v = m.endpoint[m.labelend[b]]
			b = m.inblossom[v]
			v = m.endpoint[m.labelend[b]]
		}
		if w != -1 {
			v, w = w, v
		}
	}
	for _, b := range path {
		m.label[b] = 1
	}
	return base
}

// addBlossom builds a new blossom with the given base through the S-S edge
// k and promotes it to a top-level S-blossom.
func (m *matcher) addBlossom(base, k int) {
	v, w := m.edges[k].i, m.edges[k].j
	bb, bv, bw := m.inblossom[base], m.inblossom[v], m.inblossom[w]
	if len(m.unused) == 0 {
		m.fail("out of blossom slots")
		return
	}
	b := m.unused[len(m.unused)-1]
	m.unused = m.unused[:len(m.unused)-1]
	m.base[b] = base
	m.parent[b] = -1
	m.parent[bb] = b

	var path, endps []int
	for bv != bb {
		m.parent[bv] = b
		path = append(path, bv)
		endps = append(endps, m.labelend[bv])
		v = m.endpoint[m.labelend[bv]]
		bv = m.inblossom[v]
	}
	path = append(path, bb)
	reverse(path)
	reverse(endps)
	endps = append(endps, 2*k)
	for bw != bb {
		m.parent[bw] = b
		path = append(path, bw)
		endps = append(endps, m.labelend[bw]^1)
		w = m.endpoint[m.labelend[bw]]
		bw = m.inblossom[w]
	}
	m.childs[b], m.endps[b] = path, endps

	m.label[b] = 1
	m.labelend[b] = m.labelend[bb]
	m.dual[b] = 0
	for _, x := range m.leaves(b, nil) {
		if m.label[m.inblossom[x]] == 2 {
			// Former T-vertices become S-vertices.
			m.queue = append(m.queue, x)
		}
		m.inblossom[x] = b
	}

	// Least-slack edges from the new blossom to each neighbouring
	// S-blossom.
	bestTo := filled(2*m.n, -1)
	for _, c := range path {
		var lists [][]int
		if m.bestEdges[c] == nil {
			for _, x := range m.leaves(c, nil) {
				ks := make([]int, len(m.neighbend[x]))
				for i, p := range m.neighbend[x] {
					ks[i] = p / 2
				}
				lists = append(lists, ks)
			}
		} else {
			lists = [][]int{m.bestEdges[c]}
		}
		for _, ks := range lists {
			for _, kk := range ks {
				j := m.edges[kk].j
				if m.inblossom[j] == b {
					j = m.edges[kk].i
				}
				bj := m.inblossom[j]
				if bj != b && m.label[bj] == 1 && (bestTo[bj] == -1 || m.slack(kk) < m.slack(bestTo[bj])) {
					bestTo[bj] = kk
				}
			}
		}
		m.bestEdges[c] = nil
		m.bestedge[c] = -1
	}
	best := make([]int, 0, len(path))
	for _, kk := range bestTo {
		if kk != -1 {
			best = append(best, kk)
		}
	}
	m.bestEdges[b] = best
	m.bestedge[b] = -1
	for _, kk := range best {
		if m.bestedge[b] == -1 || m.slack(kk) < m.slack(m.bestedge[b]) {
			m.bestedge[b] = kk
		}
	}
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// expandBlossom dissolves top-level blossom b. At the end of a stage,
// sub-blossoms with zero dual are dissolved as well.
func (m *matcher) expandBlossom(b int, endstage bool) {
	work := []int{b}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range m.childs[b] {
			m.parent[s] = -1
			switch {
			case s < m.n:
				m.inblossom[s] = s
			case endstage && m.dual[s] == 0:
				work = append(work, s)
			default:
				for _, v := range m.leaves(s, nil) {
					m.inblossom[v] = s
				}
			}
		}
		if !endstage && m.label[b] == 2 {
			m.relabelExpanded(b)
		}
		m.label[b], m.labelend[b] = -1, -1
		m.childs[b], m.endps[b] = nil, nil
		m.base[b] = -1
		m.bestEdges[b] = nil
		m.bestedge[b] = -1
		m.unused = append(m.unused, b)
	}
}

// relabelExpanded restores labels on the sub-blossoms of an expanded
// T-blossom so that the alternating tree stays consistent.
func (m *matcher) relabelExpanded(b int) {
	ch, ep := m.childs[b], m.endps[b]
	entry := m.inblossom[m.endpoint[m.labelend[b]^1]]
	j := indexOf(ch, entry)
	var jstep, trick int
	if j&1 != 0 {
		// Go forward and wrap around.
		j -= len(ch)
		jstep, trick = 1, 0
	} else {
		jstep, trick = -1, 1
	}
	p := m.labelend[b]
	for j != 0 {
		m.label[m.endpoint[p^1]] = 0
		m.label[m.endpoint[at(ep, j-trick)^trick^1]] = 0
		m.assignLabel(m.endpoint[p^1], 2, p)
		m.allow[at(ep, j-trick)/2] = true
		j += jstep
		p = at(ep, j-trick) ^ trick
		m.allow[p/2] = true
		j += jstep
	}
	bv := at(ch, j)
	m.label[m.endpoint[p^1]], m.label[bv] = 2, 2
	m.labelend[m.endpoint[p^1]], m.labelend[bv] = p, p
	m.bestedge[bv] = -1
	j += jstep
	for at(ch, j) != entry {
		bv := at(ch, j)
		if m.label[bv] == 1 {
			j += jstep
			continue
		}
		v := -1
		for _, x := range m.leaves(bv, nil) {
			if m.label[x] != 0 {
				v = x
				break
			}
		}
		if v >= 0 {
			m.label[v] = 0
			m.label[m.endpoint[m.mate[m.base[bv]]]] = 0
			m.assignLabel(v, 2, m.labelend[v])
		}
		j += jstep
	}
}

// augmentBlossom swaps matched and unmatched edges along the even path
// from vertex v to the base of blossom b, recursing into sub-blossoms
// through a work stack.
func (m *matcher) augmentBlossom(b, v int) {
	type task struct{ b, v int }
	work := []task{{b, v}}
	for len(work) > 0 {
		tk := work[len(work)-1]
		work = work[:len(work)-1]
		b, v := tk.b, tk.v

		t := v
		for m.parent[t] != b {
			t = m.parent[t]
		}
		if t >= m.n {
			work = append(work, task{t, v})
		}
		ch, ep := m.childs[b], m.endps[b]
		i := indexOf(ch, t)
		j := i
		var jstep, trick int
		if i&1 != 0 {
			j -= len(ch)
			jstep, trick = 1, 0
		} else {
			jstep, trick = -1, 1
		}
		for j != 0 {
			j += jstep
			t = at(ch, j)
			p := at(ep, j-trick) ^ trick
			if t >= m.n {
				work = append(work, task{t, m.endpoint[p]})
			}
			j += jstep
			t = at(ch, j)
			if t >= m.n {
				work = append(work, task{t, m.endpoint[p^1]})
			}
			m.mate[m.endpoint[p]] = p ^ 1
			m.mate[m.endpoint[p^1]] = p
		}
		m.childs[b] = rotate(ch, i)
		m.endps[b] = rotate(ep, i)
		m.base[b] = v
	}
}

// augmentMatching flips the augmenting path through edge k.
func (m *matcher) augmentMatching(k int) {
	e := m.edges[k]
	for _, sp := range [2][2]int{{e.i, 2*k + 1}, {e.j, 2 * k}} {
		s, p := sp[0], sp[1]
		for {
			bs := m.inblossom[s]
			if bs >= m.n {
				m.augmentBlossom(bs, s)
			}
			m.mate[s] = p
			if m.labelend[bs] == -1 {
				break
			}
			t := m.endpoint[m.labelend[bs]]
			bt := m.inblossom[t]
			if m.label[bt] != 2 || m.labelend[bt] < 0 {
				m.fail("broken alternating path at vertex %d", t)
				return
			}
			s = m.endpoint[m.labelend[bt]]
			j := m.endpoint[m.labelend[bt]^1]
			if bt >= m.n {
				m.augmentBlossom(bt, j)
			}
			m.mate[j] = m.labelend[bt]
			p = m.labelend[bt] ^ 1
		}
	}
}

// run computes the matching and returns the mate of every vertex, or -1.
// The context is checked once per stage.
func (m *matcher) run(ctx context.Context) ([]int, error) {
	n := m.n
	for stage := 0; stage < n; stage++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range m.label {
			m.label[i] = 0
			m.bestedge[i] = -1
		}
		for b := n; b < 2*n; b++ {
			m.bestEdges[b] = nil
		}
		for k := range m.allow {
			m.allow[k] = false
		}
		m.queue = m.queue[:0]

		for v := 0; v < n; v++ {
			if m.mate[v] == -1 && m.label[m.inblossom[v]] == 0 {
				m.assignLabel(v, 1, -1)
			}
		}

		augmented := false
	substage:
		for {
			for len(m.queue) > 0 && !augmented {
				v := m.queue[len(m.queue)-1]
				m.queue = m.queue[:len(m.queue)-1]
				for _, p := range m.neighbend[v] {
					k := p / 2
					w := m.endpoint[p]
					if m.inblossom[v] == m.inblossom[w] {
						continue
					}
					var kslack int64
					if !m.allow[k] {
						kslack = m.slack(k)
						if kslack <= 0 {
							m.allow[k] = true
						}
					}
					switch {
					case m.allow[k] && m.label[m.inblossom[w]] == 0:
						m.assignLabel(w, 2, p^1)
					case m.allow[k] && m.label[m.inblossom[w]] == 1:
						if base := m.scanBlossom(v, w); base >= 0 {
							m.addBlossom(base, k)
						} else {
							m.augmentMatching(k)
							augmented = true
						}
					case m.allow[k] && m.label[w] == 0:
						m.label[w] = 2
						m.labelend[w] = p ^ 1
					case m.allow[k]:
					case m.label[m.inblossom[w]] == 1:
						b := m.inblossom[v]
						if m.bestedge[b] == -1 || kslack < m.slack(m.bestedge[b]) {
							m.bestedge[b] = k
						}
					case m.label[w] == 0:
						if m.bestedge[w] == -1 || kslack < m.slack(m.bestedge[w]) {
							m.bestedge[w] = k
						}
					}
					if m.err != nil {
						return nil, m.err
					}
					if augmented {
						break
					}
				}
			}
			if augmented {
				break
			}

			// No augmenting path with tight edges; adjust the duals.
			deltaType := -1
			var delta int64
			deltaEdge, deltaBlossom := -1, -1
			if !m.maxCard {
				deltaType = 1
				delta = m.minVertexDual()
			}
			for v := 0; v < n; v++ {
				if m.label[m.inblossom[v]] == 0 && m.bestedge[v] != -1 {
					if d := m.slack(m.bestedge[v]); deltaType == -1 || d < delta {
						delta, deltaType, deltaEdge = d, 2, m.bestedge[v]
					}
				}
			}
			for b := 0; b < 2*n; b++ {
				if m.parent[b] == -1 && m.label[b] == 1 && m.bestedge[b] != -1 {
					if d := m.slack(m.bestedge[b]) / 2; deltaType == -1 || d < delta {
						delta, deltaType, deltaEdge = d, 3, m.bestedge[b]
					}
				}
			}
			for b := n; b < 2*n; b++ {
				if m.base[b] >= 0 && m.parent[b] == -1 && m.label[b] == 2 && (deltaType == -1 || m.dual[b] < delta) {
					delta, deltaType, deltaBlossom = m.dual[b], 4, b
				}
			}
			if deltaType == -1 {
				// Maximum cardinality reached; finish with a last dual
				// update.
				deltaType = 1
				delta = max(0, m.minVertexDual())
			}

			for v := 0; v < n; v++ {
				switch m.label[m.inblossom[v]] {
				case 1:
					m.dual[v] -= delta
				case 2:
					m.dual[v] += delta
				}
			}
			for b := n; b < 2*n; b++ {
				if m.base[b] >= 0 && m.parent[b] == -1 {
					switch m.label[b] {
					case 1:
						m.dual[b] += delta
					case 2:
						m.dual[b] -= delta
					}
				}
			}

			switch deltaType {
			case 1:
				break substage
			case 2:
				m.allow[deltaEdge] = true
				i := m.edges[deltaEdge].i
				if m.label[m.inblossom[i]] == 0 {
					i = m.edges[deltaEdge].j
				}
				m.queue = append(m.queue, i)
			case 3:
				m.allow[deltaEdge] = true
				m.queue = append(m.queue, m.edges[deltaEdge].i)
			case 4:
				m.expandBlossom(deltaBlossom, false)
			}
			if m.err != nil {
				return nil, m.err
			}
		}

		if !augmented {
			break
		}
		for b := n; b < 2*n; b++ {
			if m.parent[b] == -1 && m.base[b] >= 0 && m.label[b] == 1 && m.dual[b] == 0 {
				m.expandBlossom(b, true)
			}
		}
	}

	out := make([]int, n)
	for v := 0; v < n; v++ {
		out[v] = -1
		if m.mate[v] >= 0 {
			out[v] = m.endpoint[m.mate[v]]
		}
	}
	for v, u := range out {
		if u >= 0 && out[u] != v {
			return nil, errors.MatchingFailed("matching is not symmetric at node %d", v)
		}
	}
	return out, nil
}

func (m *matcher) minVertexDual() int64 {
	d := m.dual[0]
	for _, x := range m.dual[1:m.n] {
		d = min(d, x)
	}
	return d
}
