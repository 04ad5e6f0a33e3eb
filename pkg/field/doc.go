// Package field provides size fields: functions from a point of the plane to
// a target element length.
//
// # Field kinds
//
//   - [Constant]: a uniform size.
//   - [Analytic]: an arithmetic expression in x and y, compiled once into a
//     tree of closures with constant subexpressions folded.
//   - [Background]: sizes (or metric tensors) sampled at points and
//     interpolated barycentrically over a triangulation of the samples.
//     Views in the Gmsh .pos text format load through [ParsePos].
//
// Fields that prescribe anisotropy implement [MetricField]; [MetricAt]
// turns any field into a metric query.
//
// # Registry
//
// A [Registry] stores a session's fields by tag and tracks the single active
// background field:
//
//	reg := field.NewRegistry()
//	reg.Add(1, field.MustAnalytic("0.01*(1+30*(y-x^2)^2+(1-x)^2)"))
//	if err := reg.SetAsBackground(1); err != nil { ... }
//
// Evaluation is deterministic and side-effect free, so fields may be
// queried from many goroutines at once.
package field
