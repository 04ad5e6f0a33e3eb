package recombine

import (
	"context"
	"math/rand/v2"
	"reflect"
	"testing"
)

func edgesOf(raw [][3]int) (int, []wedge) {
	n := 0
	out := make([]wedge, len(raw))
	for k, e := range raw {
		out[k] = wedge{i: e[0], j: e[1], w: int64(e[2])}
		n = max(n, e[0]+1, e[1]+1)
	}
	return n, out
}

func TestMatcherKnownCases(t *testing.T) {
	tests := []struct {
		name    string
		edges   [][3]int
		maxCard bool
		want    []int
	}{
		{"single edge", [][3]int{{0, 1, 1}}, false, []int{1, 0}},
		{"two edges", [][3]int{{1, 2, 10}, {2, 3, 11}}, false, []int{-1, -1, 3, 2}},
		{"three edges", [][3]int{{1, 2, 5}, {2, 3, 11}, {3, 4, 5}}, false, []int{-1, -1, 3, 2, -1}},
		{"max cardinality", [][3]int{{1, 2, 5}, {2, 3, 11}, {3, 4, 5}}, true, []int{-1, 2, 1, 4, 3}},
		{"S-blossom", [][3]int{{1, 2, 8}, {1, 3, 9}, {2, 3, 10}, {3, 4, 7}}, false, []int{-1, 2, 1, 4, 3}},
		{"S-blossom augment", [][3]int{{1, 2, 8}, {1, 3, 9}, {2, 3, 10}, {3, 4, 7}, {1, 6, 5}, {4, 5, 6}}, false, []int{-1, 6, 3, 2, 5, 4, 1}},
		{"T-blossom", [][3]int{{1, 2, 9}, {1, 3, 8}, {2, 3, 10}, {1, 4, 5}, {4, 5, 4}, {1, 6, 3}}, false, []int{-1, 6, 3, 2, 5, 4, 1}},
		{"T-blossom 2", [][3]int{{1, 2, 9}, {1, 3, 8}, {2, 3, 10}, {1, 4, 5}, {4, 5, 3}, {1, 6, 4}}, false, []int{-1, 6, 3, 2, 5, 4, 1}},
		{"T-blossom 3", [][3]int{{1, 2, 9}, {1, 3, 8}, {2, 3, 10}, {1, 4, 5}, {4, 5, 3}, {3, 6, 4}}, false, []int{-1, 2, 1, 6, 5, 4, 3}},
		{"nested S-blossom", [][3]int{{1, 2, 9}, {1, 3, 9}, {2, 3, 10}, {2, 4, 8}, {3, 5, 8}, {4, 5, 10}, {5, 6, 6}}, false, []int{-1, 3, 4, 1, 2, 6, 5}},
		{"relabel nested S-blossom", [][3]int{{1, 2, 10}, {1, 7, 10}, {2, 3, 12}, {3, 4, 20}, {3, 5, 20}, {4, 5, 25}, {5, 6, 10}, {6, 7, 10}, {7, 8, 8}}, false, []int{-1, 2, 1, 4, 3, 6, 5, 8, 7}},
		{"expand nested S-blossom", [][3]int{{1, 2, 8}, {1, 3, 8}, {2, 3, 10}, {2, 4, 12}, {3, 5, 12}, {4, 5, 14}, {4, 6, 12}, {5, 7, 12}, {6, 7, 14}, {7, 8, 12}}, false, []int{-1, 2, 1, 5, 6, 3, 4, 8, 7}},
		{"S-blossom relabel T expand", [][3]int{{1, 2, 23}, {1, 5, 22}, {1, 6, 15}, {2, 3, 25}, {3, 4, 22}, {4, 5, 25}, {4, 8, 14}, {5, 7, 13}}, false, []int{-1, 6, 3, 2, 8, 7, 1, 5, 4}},
		{"nested S-blossom T expand", [][3]int{{1, 2, 19}, {1, 3, 20}, {1, 8, 8}, {2, 3, 25}, {2, 4, 18}, {3, 5, 18}, {4, 5, 13}, {4, 7, 7}, {5, 6, 7}}, false, []int{-1, 8, 3, 2, 7, 6, 5, 4, 1}},
		{"nasty T expand", [][3]int{{1, 2, 45}, {1, 5, 45}, {2, 3, 50}, {3, 4, 45}, {4, 5, 50}, {1, 6, 30}, {3, 9, 35}, {4, 8, 35}, {5, 7, 26}, {9, 10, 5}}, false, []int{-1, 6, 3, 2, 8, 7, 1, 5, 4, 10, 9}},
		{"nasty T expand 2", [][3]int{{1, 2, 45}, {1, 5, 45}, {2, 3, 50}, {3, 4, 45}, {4, 5, 50}, {1, 6, 30}, {3, 9, 35}, {4, 8, 26}, {5, 7, 40}, {9, 10, 5}}, false, []int{-1, 6, 3, 2, 8, 7, 1, 5, 4, 10, 9}},
		{"T expand least slack", [][3]int{{1, 2, 45}, {1, 5, 45}, {2, 3, 50}, {3, 4, 45}, {4, 5, 50}, {1, 6, 30}, {3, 9, 35}, {4, 8, 28}, {5, 7, 26}, {9, 10, 5}}, false, []int{-1, 6, 3, 2, 8, 7, 1, 5, 4, 10, 9}},
		{"nested nasty T expand", [][3]int{{1, 2, 45}, {1, 7, 45}, {2, 3, 50}, {3, 4, 45}, {4, 5, 95}, {4, 6, 94}, {5, 6, 94}, {6, 7, 50}, {1, 8, 30}, {3, 11, 35}, {5, 9, 36}, {7, 10, 26}, {11, 12, 5}}, false, []int{-1, 8, 3, 2, 6, 9, 4, 10, 1, 5, 7, 12, 11}},
		{"nested relabel expand", [][3]int{{1, 2, 40}, {1, 3, 40}, {2, 3, 60}, {2, 4, 55}, {3, 5, 55}, {4, 5, 50}, {1, 8, 15}, {5, 7, 30}, {7, 6, 10}, {8, 10, 10}, {4, 9, 30}}, false, []int{-1, 2, 1, 5, 9, 3, 7, 6, 10, 4, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, edges := edgesOf(tt.edges)
			got, err := newMatcher(n, edges, tt.maxCard).run(context.Background())
			if err != nil {
				t.Fatalf("run() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mates = %v, want %v", got, tt.want)
			}
		})
	}
}

// bruteForce returns the best (cardinality, weight) over all matchings,
// ignoring cardinality unless maxCard is set.
func bruteForce(n int, edges []wedge, maxCard bool) (int, int64) {
	used := make([]bool, n)
	bestCard, bestW := 0, int64(0)
	var rec func(k, card int, w int64)
	rec = func(k, card int, w int64) {
		if k == len(edges) {
			better := w > bestW
			if maxCard {
				better = card > bestCard || (card == bestCard && w > bestW)
			}
			if better {
				bestCard, bestW = card, w
			}
			return
		}
		rec(k+1, card, w)
		e := edges[k]
		if !used[e.i] && !used[e.j] {
			used[e.i], used[e.j] = true, true
			rec(k+1, card+1, w+e.w)
			used[e.i], used[e.j] = false, false
		}
	}
	rec(0, 0, 0)
	return bestCard, bestW
}

func TestMatcherRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 300; trial++ {
		n := 2 + rng.IntN(9)
		var edges []wedge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.45 && len(edges) < 14 {
					edges = append(edges, wedge{i: i, j: j, w: int64(1 + rng.IntN(30))})
				}
			}
		}
		if len(edges) == 0 {
			continue
		}
		for _, maxCard := range []bool{false, true} {
			mate, err := newMatcher(n, edges, maxCard).run(context.Background())
			if err != nil {
				t.Fatalf("trial %d: run() error: %v", trial, err)
			}
			var card int
			var w int64
			for _, e := range edges {
				if mate[e.i] == e.j {
					card++
					w += e.w
				}
			}
			wantCard, wantW := bruteForce(n, edges, maxCard)
			if w != wantW || (maxCard && card != wantCard) {
				t.Fatalf("trial %d (maxCard=%v): got card %d weight %d, want card %d weight %d (edges %v)",
					trial, maxCard, card, w, wantCard, wantW, edges)
			}
		}
	}
}

func TestMatcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, edges := edgesOf([][3]int{{0, 1, 1}, {1, 2, 2}})
	if _, err := newMatcher(3, edges, true).run(ctx); err == nil {
		t.Error("run() with cancelled context succeeded")
	}
}
