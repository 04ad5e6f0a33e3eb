// Package recombine turns triangle meshes into quad-dominant meshes.
//
// [BuildGraph] forms the matching graph: every pair of same-surface
// triangles sharing an interior edge whose union is a convex quad of
// sufficient [PairQuality] becomes a [Candidate] with cost 1-quality.
// [Match] then selects disjoint candidates, either greedily by cost or with
// a weighted blossom matching that first maximizes the number of pairs and
// then minimizes their total cost. Connected components of the graph are
// matched concurrently and merged in a fixed order, so results do not
// depend on scheduling.
//
// [Recombine] assembles the hybrid mesh: each merged pair becomes a
// [mesh.Quad] listing its two source triangles, and unmatched triangles
// pass through. The triangles are partitioned, never duplicated.
//
// Two post-passes complete the toolbox: [Subdivide] splits every element
// into quads through edge midpoints, and [Smooth] relaxes interior
// vertices without inverting elements.
package recombine
