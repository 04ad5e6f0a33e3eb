// Package mesh defines the element meshes produced by the generator and the
// checks that every stage's output must pass.
//
// A [TriangleMesh] comes out of triangulation; a [HybridMesh] mixes
// triangles and quadrilaterals after recombination. Both keep their
// [Segment] boundary list, which records for every mesh edge on the model
// boundary the model edge it discretizes.
//
// [Validate] enforces the planar-mesh invariants (positive orientation,
// manifold edges, boundary equality, area), [CheckConformance] ties the
// boundary back to the geometry model, and [CheckPartition] confirms that a
// recombination used every source triangle exactly once.
//
// Subpackages:
//
//   - cdt: the constrained Delaunay kernel
//   - triangulate: size-driven triangulation of a geometry model
//   - recombine: triangle-to-quadrilateral recombination and post-passes
package mesh
