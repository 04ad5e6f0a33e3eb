// Package pipeline runs the meshing pipeline for quadmesh.
//
// The pipeline is shared by the CLI and the HTTP server so both apply the
// same option semantics, stage order and caching.
//
// # Architecture
//
// A run executes these stages in order, checking for cancellation between
// them:
//
//  1. options: parse and validate the session's option map
//  2. geometry: finalize the geometry model
//  3. field: resolve the size field (active background field, gradation
//     limit, fallback, or a default derived from point sizes)
//  4. triangulate: constrained Delaunay triangulation driven by the field
//  5. recombine: merge triangle pairs into quads (RecombineAll or per
//     surface opt-in)
//  6. subdivide: split every element into quads
//  7. smooth: Laplacian smoothing of interior vertices
//  8. validate: check overlap, coverage and boundary conformance
//
// Any failure aborts the run; the error names the stage and, where known,
// the offending entity. Partial meshes are discarded.
//
// # Usage
//
//	sess, err := session.Load("square.toml")
//	if err != nil {
//	    return err
//	}
//	sess.SetOption("Mesh.RecombineAll", 1)
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Run(ctx, sess)
//	if err != nil {
//	    return err
//	}
//	artifacts, err := runner.RenderArtifacts(ctx, result, []string{pipeline.FormatMSH}, pipeline.RenderOptions{})
package pipeline

import (
	"fmt"
	"time"

	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/mesh/recombine"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultAlgorithm is the 2D meshing algorithm (6, Frontal-Delaunay).
	DefaultAlgorithm = AlgorithmFrontalDelaunay

	// DefaultRecombinationAlgorithm is the recombination algorithm (blossom).
	DefaultRecombinationAlgorithm = RecombinationBlossom

	// DefaultSmoothing is the number of smoothing passes.
	DefaultSmoothing = 1

	// DefaultMinQuality is the lowest quality a recombined quad may have.
	DefaultMinQuality = 0.01

	// DefaultVerbosity is the verbosity level when none is set.
	DefaultVerbosity = 5

	// DefaultWidth and DefaultHeight size raster previews in pixels.
	DefaultWidth  = 1024
	DefaultHeight = 1024

	// defaultSizeDivisor derives the default element size from the model
	// extent when no field and no point sizes are given.
	defaultSizeDivisor = 10
)

// Meshing algorithms (Mesh.Algorithm).
const (
	AlgorithmMeshAdapt       = 1
	AlgorithmAutomatic       = 2
	AlgorithmDelaunay        = 5
	AlgorithmFrontalDelaunay = 6
	AlgorithmBAMG            = 7
	AlgorithmFrontalQuads    = 8
)

// Recombination algorithms (Mesh.RecombinationAlgorithm).
const (
	RecombinationSimple         = 0
	RecombinationBlossom        = 1
	RecombinationSimpleFullQuad = 2
	RecombinationBlossomFull    = 3
)

// Format constants for output formats.
const (
	FormatJSON    = "json"
	FormatMSH     = "msh"
	FormatGeoJSON = "geojson"
	FormatPNG     = "png"
	FormatDOT     = "dot"
	FormatSVG     = "svg"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatJSON:    true,
	FormatMSH:     true,
	FormatGeoJSON: true,
	FormatPNG:     true,
	FormatDOT:     true,
	FormatSVG:     true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options is the validated option set of a run. It is produced from the
// flat option map by ParseOptions; the JSON encoding is canonical and used
// for cache keys.
//
// When several recombination-related options are set, they compose in this
// order: Algorithm selects point placement (7 enables anisotropy, 8 frontal
// placement for quads); RecombinationAlgorithm selects the matching and,
// for the full-quad variants, doubles the target size and forces one
// subdivision pass; SubdivisionAlgorithm=1 requests the same single pass,
// so combining it with a full-quad variant never subdivides twice;
// smoothing runs last.
type Options struct {
	RecombineAll           bool    `json:"recombine_all"`
	Algorithm              int     `json:"algorithm"`
	RecombinationAlgorithm int     `json:"recombination_algorithm"`
	SubdivisionAlgorithm   int     `json:"subdivision_algorithm"`
	Smoothing              int     `json:"smoothing"`
	SmoothRatio            float64 `json:"smooth_ratio,omitempty"`
	AnisoMax               float64 `json:"aniso_max,omitempty"`
	SizeFactor             float64 `json:"size_factor"`
	SizeMin                float64 `json:"size_min,omitempty"`
	SizeMax                float64 `json:"size_max,omitempty"`
	MinQuality             float64 `json:"min_quality"`
	MaxVertices            int     `json:"max_vertices,omitempty"`

	// General options. They do not affect the mesh.
	Terminal  bool `json:"-"`
	Verbosity *int `json:"-"`
}

// DefaultOptions returns the option set used for names left unset.
func DefaultOptions() Options {
	return Options{
		Algorithm:              DefaultAlgorithm,
		RecombinationAlgorithm: DefaultRecombinationAlgorithm,
		Smoothing:              DefaultSmoothing,
		SizeFactor:             1,
		MinQuality:             DefaultMinQuality,
		Terminal:               true,
	}
}

// Anisotropic reports whether triangulation follows the field's metric.
func (o Options) Anisotropic() bool { return o.Algorithm == AlgorithmBAMG }

// Frontal reports whether interior points are placed frontally for quads.
func (o Options) Frontal() bool { return o.Algorithm == AlgorithmFrontalQuads }

// FullQuad reports whether recombination should yield an all-quad mesh.
func (o Options) FullQuad() bool { return o.RecombinationAlgorithm >= RecombinationSimpleFullQuad }

// Matching returns the matching algorithm of the recombination.
func (o Options) Matching() recombine.Algorithm {
	switch o.RecombinationAlgorithm {
	case RecombinationBlossom, RecombinationBlossomFull:
		return recombine.Blossom
	default:
		return recombine.Greedy
	}
}

// Subdivide reports whether the mesh is subdivided once recombination (if
// any) is done. recombined tells whether any surface was recombined.
func (o Options) Subdivide(recombined bool) bool {
	return o.SubdivisionAlgorithm == 1 || (recombined && o.FullQuad())
}

// MeshKeyOpts returns cache key options for a run.
func (o Options) MeshKeyOpts(recombine []int, version string) (cache.MeshKeyOpts, error) {
	h, err := cache.HashJSON(struct {
		Options   Options `json:"options"`
		Recombine []int   `json:"recombine,omitempty"`
	}{o, recombine})
	if err != nil {
		return cache.MeshKeyOpts{}, err
	}
	return cache.MeshKeyOpts{OptionsHash: h, Version: version}, nil
}

// =============================================================================
// Results
// =============================================================================

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID identifies the run in logs and stores.
	RunID string `json:"run_id"`

	// Mesh is the final mesh.
	Mesh *mesh.HybridMesh `json:"mesh"`

	// Triangles is the triangulation before recombination.
	Triangles *mesh.TriangleMesh `json:"triangles,omitempty"`

	// Matched lists the triangle pairs merged into quads by recombination.
	Matched [][2]int `json:"matched,omitempty"`

	// MeshHash is the content hash of the JSON-encoded mesh.
	MeshHash string `json:"mesh_hash"`

	// Options is the validated option set the run used.
	Options Options `json:"options"`

	// Stats contains timing and size information.
	Stats Stats `json:"stats"`

	// CacheInfo tracks whether the mesh came from the cache.
	CacheInfo CacheInfo `json:"cache"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	mesh.Stats

	RecombinedPairs int `json:"recombined_pairs"`
	SmoothMoves     int `json:"smooth_moves"`

	FieldTime       time.Duration `json:"field_time"`
	TriangulateTime time.Duration `json:"triangulate_time"`
	RecombineTime   time.Duration `json:"recombine_time"`
	SubdivideTime   time.Duration `json:"subdivide_time"`
	SmoothTime      time.Duration `json:"smooth_time"`
	ValidateTime    time.Duration `json:"validate_time"`
	TotalTime       time.Duration `json:"total_time"`
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	MeshHit   bool `json:"mesh_hit"`   // Whether the mesh came from the cache
	RenderHit bool `json:"render_hit"` // Whether all artifacts came from the cache
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return fmt.Errorf("invalid format: %q (must be one of: json, msh, geojson, png, dot, svg)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}
