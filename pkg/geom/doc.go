// Package geom provides the planar geometry model consumed by the mesher.
//
// A [Model] is a planar straight-line graph built from four kinds of
// declarations, each returning an id assigned in insertion order:
//
//   - AddVertex / AddVertexWithSize: points, optionally carrying a
//     characteristic length
//   - AddEdge: straight constraint segments between two vertices
//   - AddLoop: closed cycles of edges, each edge traversed in either direction
//   - AddSurface: an outer loop plus optional hole loops
//
// Declarations are validated eagerly. Coincident or duplicate entities fail
// with GEOMETRY_DEGENERATE, loops that do not close fail with
// GEOMETRY_OPEN_LOOP, and crossing loop edges fail with
// GEOMETRY_SELF_INTERSECTION, so no meshing is attempted on bad input.
//
// After [Model.Finalize] the model is immutable and may be shared between
// goroutines meshing different surfaces.
//
// The package also exposes the orientation, in-circle and segment
// intersection predicates used by the triangulator.
package geom
