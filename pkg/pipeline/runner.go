package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/quadmesh/pkg/buildinfo"
	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/mesh/recombine"
	"github.com/matzehuels/quadmesh/pkg/mesh/triangulate"
	"github.com/matzehuels/quadmesh/pkg/meshio"
	"github.com/matzehuels/quadmesh/pkg/observability"
	"github.com/matzehuels/quadmesh/pkg/session"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different sessions.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Workers bounds the parallelism of triangulation and matching. Zero
	// means GOMAXPROCS.
	Workers int

	// Refresh skips cache lookups; fresh results are still stored.
	Refresh bool
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// run carries the state of one pipeline run.
type run struct {
	ctx    context.Context
	id     string
	logger *log.Logger
	hooks  observability.PipelineHooks
}

// stage runs fn as the named stage. The context is checked first so a
// cancelled run stops at the next stage boundary. fn returns the element
// count reported to hooks.
func (rn *run) stage(stage errors.Stage, fn func() (int, error)) (time.Duration, error) {
	if err := rn.ctx.Err(); err != nil {
		return 0, errors.Aborted(stage, err)
	}
	rn.hooks.OnStageStart(rn.ctx, rn.id, string(stage))
	start := time.Now()
	n, err := fn()
	d := time.Since(start)
	switch {
	case err == nil:
	case rn.ctx.Err() != nil && stderrors.Is(err, rn.ctx.Err()):
		err = errors.Aborted(stage, err)
	default:
		err = errors.WithStage(err, stage)
	}
	rn.hooks.OnStageComplete(rn.ctx, rn.id, string(stage), n, d, err)
	if err != nil {
		return d, err
	}
	rn.logger.Debug("stage complete", "stage", stage, "elements", n, "duration", d)
	return d, nil
}

// Run executes the meshing pipeline on sess. The session's model is
// finalized by the run. On failure no partial mesh is returned and the
// error names the failing stage.
func (r *Runner) Run(ctx context.Context, sess *session.Session) (res *Result, err error) {
	runID := uuid.NewString()
	hooks := observability.Pipeline()
	start := time.Now()
	hooks.OnRunStart(ctx, runID, sess.ID)
	defer func() { hooks.OnRunComplete(ctx, runID, time.Since(start), err) }()

	rn := &run{ctx: ctx, id: runID, hooks: hooks, logger: r.logger()}

	var opts Options
	if _, err := rn.stage(errors.StageOptions, func() (int, error) {
		var err error
		opts, err = ParseOptions(sess.OptionMap())
		return 0, err
	}); err != nil {
		return nil, err
	}
	rn.logger = runLogger(rn.logger, opts, runID)

	recombineAll := opts.RecombineAll
	var surfaces []int
	if !recombineAll {
		for _, id := range sess.RecombineSurfaces() {
			surfaces = append(surfaces, int(id))
		}
	}
	recombined := recombineAll || len(surfaces) > 0

	// Cache lookup. Only sessions built from a description have a
	// fingerprint; programmatic sessions always run.
	var cacheKey string
	if fp, ok := sess.Fingerprint(); ok {
		keyOpts, err := opts.MeshKeyOpts(surfaces, buildinfo.CacheVersion())
		if err == nil {
			cacheKey = r.Keyer.MeshKey(fp, keyOpts)
		}
	}
	if cacheKey != "" && !r.Refresh {
		if cached, ok := r.cached(ctx, cacheKey); ok {
			cached.RunID = runID
			cached.Options = opts
			cached.CacheInfo.MeshHit = true
			cached.Stats.TotalTime = time.Since(start)
			rn.logger.Info("mesh from cache",
				"vertices", cached.Stats.Vertices,
				"triangles", cached.Stats.Triangles,
				"quads", cached.Stats.Quads)
			return cached, nil
		}
	}

	res = &Result{RunID: runID, Options: opts}
	model := sess.Model

	if _, err := rn.stage(errors.StageGeometry, func() (int, error) {
		if model.Finalized() {
			return 0, nil
		}
		return 0, model.Finalize()
	}); err != nil {
		return nil, err
	}

	var f field.Field
	res.Stats.FieldTime, err = rn.stage(errors.StageField, func() (int, error) {
		var err error
		f, err = resolveField(sess, opts, rn.logger)
		return 0, err
	})
	if err != nil {
		return nil, err
	}

	var tri *mesh.TriangleMesh
	res.Stats.TriangulateTime, err = rn.stage(errors.StageTriangulate, func() (int, error) {
		var err error
		tri, err = triangulate.Generate(ctx, model, f, opts.triangulateOptions(recombined, r.Workers))
		if err != nil {
			return 0, err
		}
		return len(tri.Triangles), nil
	})
	if err != nil {
		return nil, err
	}
	res.Triangles = tri
	rn.logger.Info("triangulated",
		"vertices", len(tri.Vertices),
		"triangles", len(tri.Triangles),
		"duration", res.Stats.TriangulateTime)

	h := tri.Hybrid()
	if recombined {
		res.Stats.RecombineTime, err = rn.stage(errors.StageRecombine, func() (int, error) {
			out, err := recombine.RecombineTriangles(ctx, tri, recombine.Options{
				Algorithm:  opts.Matching(),
				MinQuality: opts.MinQuality,
				Surfaces:   surfaces,
				Workers:    r.Workers,
			})
			if err != nil {
				return 0, err
			}
			if err := mesh.CheckPartition(tri, out); err != nil {
				return 0, err
			}
			h = out
			return h.NumElements(), nil
		})
		if err != nil {
			return nil, err
		}
		for _, q := range h.Quads {
			if len(q.Source) == 2 {
				res.Matched = append(res.Matched, [2]int{q.Source[0], q.Source[1]})
			}
		}
		res.Stats.RecombinedPairs = len(res.Matched)
		rn.logger.Info("recombined",
			"algorithm", opts.Matching(),
			"quads", len(h.Quads),
			"triangles", len(h.Triangles),
			"duration", res.Stats.RecombineTime)
	}

	if opts.Subdivide(recombined) {
		res.Stats.SubdivideTime, err = rn.stage(errors.StageSubdivide, func() (int, error) {
			h = recombine.Subdivide(h)
			return h.NumElements(), nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.Smoothing > 0 {
		res.Stats.SmoothTime, err = rn.stage(errors.StageSmooth, func() (int, error) {
			res.Stats.SmoothMoves = recombine.Smooth(h, opts.Smoothing)
			return h.NumElements(), nil
		})
		if err != nil {
			return nil, err
		}
	}

	res.Stats.ValidateTime, err = rn.stage(errors.StageValidate, func() (int, error) {
		var area float64
		for _, s := range model.Surfaces() {
			area += model.Area(s.ID)
		}
		if err := mesh.Validate(h, area, errors.StageValidate); err != nil {
			return 0, err
		}
		return h.NumElements(), mesh.CheckConformance(h, model, errors.StageValidate)
	})
	if err != nil {
		return nil, err
	}

	res.Mesh = h
	res.Stats.Stats = mesh.ComputeStats(h)
	if data, err := meshio.MarshalJSON(h); err == nil {
		res.MeshHash = cache.Hash(data)
	}
	res.Stats.TotalTime = time.Since(start)

	if cacheKey != "" {
		r.store(ctx, cacheKey, res)
	}

	rn.logger.Info("mesh complete",
		"vertices", res.Stats.Vertices,
		"triangles", res.Stats.Triangles,
		"quads", res.Stats.Quads,
		"duration", res.Stats.TotalTime)
	return res, nil
}

// cached loads a result stored under key.
func (r *Runner) cached(ctx context.Context, key string) (*Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "mesh")
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil || res.Mesh == nil {
		observability.Cache().OnCacheMiss(ctx, "mesh")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "mesh")
	return &res, true
}

// store caches res under key. Failures only cost a recomputation later.
func (r *Runner) store(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.Cache.Set(ctx, key, data, cache.TTLMesh); err == nil {
		observability.Cache().OnCacheSet(ctx, "mesh", len(data))
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(io.Discard)
	}
	return r.Logger
}

// runLogger derives the logger of one run from the General options.
func runLogger(base *log.Logger, opts Options, runID string) *log.Logger {
	level, on := opts.LogLevel()
	if !on {
		return log.New(io.Discard)
	}
	l := base.With("run", runID[:8])
	if opts.Verbosity != nil {
		l.SetLevel(level)
	}
	return l
}

// triangulateOptions maps the option set onto the triangulator. Full-quad
// recombination meshes at twice the target size, since the final
// subdivision halves every edge.
func (o Options) triangulateOptions(recombined bool, workers int) triangulate.Options {
	factor := o.SizeFactor
	if recombined && o.FullQuad() {
		factor *= 2
	}
	return triangulate.Options{
		Anisotropic: o.Anisotropic(),
		Frontal:     o.Frontal(),
		AnisoMax:    o.AnisoMax,
		SizeFactor:  factor,
		SizeMin:     o.SizeMin,
		SizeMax:     o.SizeMax,
		MaxVertices: o.MaxVertices,
		Workers:     workers,
	}
}

// =============================================================================
// Size field resolution
// =============================================================================

// resolveField returns the field driving the run. The active background
// field wins; SmoothRatio limits the gradation of sampled fields. Without
// one, sizes attached to model points are interpolated, and a model with
// no sizes at all is meshed at a tenth of its extent.
func resolveField(sess *session.Session, opts Options, logger *log.Logger) (field.Field, error) {
	if _, id, ok := sess.Fields.Background(); ok {
		f, _ := sess.Fields.Get(id)
		if bg, ok := f.(*field.Background); ok && opts.SmoothRatio >= 1 {
			f = bg.LimitGradation(opts.SmoothRatio)
		}
		logger.Debug("background field", "field", id)
		return field.WithFallback(f, sess.Fields.Fallback()), nil
	}
	return pointField(sess.Model, sess.Fields.Fallback(), logger)
}

// pointField interpolates the characteristic lengths of the model points.
func pointField(model *geom.Model, fallback float64, logger *log.Logger) (field.Field, error) {
	var samples []field.Sample
	minSize, sum := math.Inf(1), 0.0
	for _, v := range model.Vertices() {
		if v.Size <= 0 {
			continue
		}
		samples = append(samples, field.Sample{X: v.X, Y: v.Y, Size: v.Size})
		minSize = math.Min(minSize, v.Size)
		sum += v.Size
	}

	if len(samples) == 0 {
		if fallback > 0 {
			return field.Constant(fallback), nil
		}
		b := model.Bound()
		size := math.Hypot(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]) / defaultSizeDivisor
		logger.Debug("default size", "size", size)
		return field.Constant(size), nil
	}
	if len(samples) >= 3 {
		clamp := sum / float64(len(samples))
		if bg, err := field.NewBackground(samples, nil, clamp); err == nil {
			return bg, nil
		}
	}
	return field.Constant(minSize), nil
}
