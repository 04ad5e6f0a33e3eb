// Package render draws meshes and matching graphs.
//
// # Mesh previews
//
// [PNG] rasterizes a hybrid mesh with fogleman/gg. Triangles and
// quadrilaterals are filled in different colours, or by element quality
// when [Options.ShowQuality] is set. Boundary segments are drawn heavier.
//
//	data, err := render.PNG(result.Mesh, render.Options{Width: 1024, Height: 1024})
//
// # Matching graphs
//
// [MatchingDOT] writes the recombination matching graph in Graphviz DOT:
// one node per triangle, pinned at its centroid, and one edge per
// candidate pair. Pairs that were merged into quads are drawn bold.
// [RenderSVG] lays the graph out with Graphviz.
//
//	dot := render.MatchingDOT(result.Triangles, result.Matched, 0.01)
//	svg, err := render.RenderSVG(dot)
package render
