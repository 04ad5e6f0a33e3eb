package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/meshio"
	"github.com/matzehuels/quadmesh/pkg/observability"
	"github.com/matzehuels/quadmesh/pkg/render"
)

// RenderOptions configures artifact generation.
type RenderOptions struct {
	Width       int
	Height      int
	ShowQuality bool
}

// ArtifactKeyOpts returns cache key options for one format.
func (o RenderOptions) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	k := cache.ArtifactKeyOpts{Format: format}
	if format == FormatPNG {
		k.Width, k.Height, k.Quality = o.Width, o.Height, o.ShowQuality
	}
	return k
}

// Render generates output artifacts in the requested formats.
func Render(res *Result, formats []string, opts RenderOptions) (map[string][]byte, error) {
	if err := ValidateFormats(formats); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "render").At(errors.StageOutput)
	}
	if res == nil || res.Mesh == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no mesh to render").At(errors.StageOutput)
	}

	artifacts := make(map[string][]byte, len(formats))
	var dot string
	matching := func() (string, error) {
		if dot != "" {
			return dot, nil
		}
		if res.Triangles == nil {
			return "", errors.New(errors.ErrCodeInvalidInput, "result carries no triangulation").At(errors.StageOutput)
		}
		dot = render.MatchingDOT(res.Triangles, res.Matched, res.Options.MinQuality)
		return dot, nil
	}

	for _, format := range formats {
		var data []byte
		var err error

		switch format {
		case FormatJSON, FormatMSH, FormatGeoJSON:
			var buf bytes.Buffer
			err = meshio.Write(&buf, res.Mesh, meshio.Format(format))
			data = buf.Bytes()
		case FormatPNG:
			data, err = render.PNG(res.Mesh, render.Options{
				Width:       opts.Width,
				Height:      opts.Height,
				ShowQuality: opts.ShowQuality,
			})
		case FormatDOT:
			var d string
			if d, err = matching(); err == nil {
				data = []byte(d)
			}
		case FormatSVG:
			var d string
			if d, err = matching(); err == nil {
				data, err = render.RenderSVG(d)
			}
		}

		if err != nil {
			return nil, errors.WithStage(fmt.Errorf("render %s: %w", format, err), errors.StageOutput)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}

// RenderWithCacheInfo generates artifacts with caching and returns cache hit info.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, res *Result, formats []string, opts RenderOptions) (map[string][]byte, bool, error) {
	if err := ValidateFormats(formats); err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInvalidFormat, err, "render").At(errors.StageOutput)
	}
	if res == nil || res.Mesh == nil {
		return nil, false, errors.New(errors.ErrCodeInvalidInput, "no mesh to render").At(errors.StageOutput)
	}
	base, err := artifactBase(res)
	if err != nil {
		return nil, false, err
	}

	// Try to get all formats from cache
	allCached := true
	artifacts := make(map[string][]byte)
	if !r.Refresh {
		for _, format := range formats {
			cacheKey := r.Keyer.ArtifactKey(base, opts.ArtifactKeyOpts(format))
			if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
				artifacts[format] = data
				continue
			}
			allCached = false
			break
		}
	}
	if !r.Refresh && allCached && len(artifacts) == len(formats) {
		observability.Cache().OnCacheHit(ctx, "artifact")
		return artifacts, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, "artifact")

	rendered, err := Render(res, formats, opts)
	if err != nil {
		return nil, false, err
	}

	// Cache each format
	for format, data := range rendered {
		cacheKey := r.Keyer.ArtifactKey(base, opts.ArtifactKeyOpts(format))
		if err := r.Cache.Set(ctx, cacheKey, data, cache.TTLArtifact); err == nil {
			observability.Cache().OnCacheSet(ctx, "artifact", len(data))
		}
	}
	return rendered, false, nil
}

// RenderArtifacts is a convenience wrapper that calls RenderWithCacheInfo and discards the cache hit info.
func (r *Runner) RenderArtifacts(ctx context.Context, res *Result, formats []string, opts RenderOptions) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, res, formats, opts)
	return artifacts, err
}

// artifactBase hashes everything artifacts depend on: the final mesh and,
// for matching graphs, the triangulation and matched pairs.
func artifactBase(res *Result) (string, error) {
	h, err := cache.HashJSON(struct {
		Mesh      string   `json:"mesh"`
		Triangles any      `json:"triangles,omitempty"`
		Matched   [][2]int `json:"matched,omitempty"`
		Quality   float64  `json:"min_quality"`
	}{res.MeshHash, res.Triangles, res.Matched, res.Options.MinQuality})
	if err != nil {
		return "", fmt.Errorf("hash artifacts: %w", err)
	}
	return h, nil
}
