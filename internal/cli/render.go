package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/meshio"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// renderOpts holds the flags of the render command.
type renderOpts struct {
	formats  string
	output   string
	width    int
	height   int
	quality  bool
	compress bool
	cache    cacheFlags
	store    storeFlags
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render <mesh-file|id>",
		Short: "Convert a saved or stored mesh to other formats",
		Long: `Render a mesh file (.msh, .mesh.json, .geojson, optionally .zst) or a
stored mesh ID to the requested formats.

Matching graphs (dot, svg) need the triangulation, which only stored meshes
carry.`,
		Example: `  quadmesh render square.msh -f png --width 2048 --height 2048
  quadmesh render 3f2c8a1e-... -f svg`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeMeshes,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.formats, "format", "f", pipeline.FormatPNG, "output formats: msh, json, geojson, png, dot, svg (comma-separated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file or path prefix (default: input name)")
	cmd.Flags().IntVar(&opts.width, "width", pipeline.DefaultWidth, "PNG width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", pipeline.DefaultHeight, "PNG height in pixels")
	cmd.Flags().BoolVar(&opts.quality, "quality", false, "shade PNG elements by quality")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "zstd-compress mesh outputs (.zst)")
	opts.cache.register(cmd)
	opts.store.register(cmd, "store directory to look IDs up in (default: the data dir)")
	registerRenderCompletions(cmd)

	return cmd
}

func (c *CLI) runRender(ctx context.Context, input string, opts renderOpts) error {
	formats := parseFormats(opts.formats)
	if err := pipeline.ValidateFormats(formats); err != nil {
		return err
	}
	res, name, err := loadResult(ctx, input, opts.store)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, opts.cache)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(loggerFromContext(ctx))
	artifacts, hit, err := runner.RenderWithCacheInfo(ctx, res, formats, pipeline.RenderOptions{
		Width:       opts.width,
		Height:      opts.height,
		ShowQuality: opts.quality,
	})
	if err != nil {
		return err
	}

	paths := outputPaths(opts.output, name, formats, opts.compress)
	written, err := writeArtifacts(artifacts, paths)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Rendered %s", name))

	printSuccess("Rendered %s", StyleHighlight.Render(name))
	printStats(res.Stats, hit)
	for _, path := range written {
		printFile(path)
	}
	return nil
}

// loadResult resolves input to a pipeline result. Existing files are read
// as meshes; anything else is looked up as a store ID.
func loadResult(ctx context.Context, input string, sf storeFlags) (*pipeline.Result, string, error) {
	if _, err := os.Stat(input); err == nil {
		res, err := resultFromFile(input)
		return res, outputBase(input), err
	}

	s, err := sf.open(ctx)
	if err != nil {
		return nil, "", err
	}
	defer s.Close()

	rec, err := s.Get(ctx, input)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("%s: no such file or stored mesh", input)
	}
	if err != nil {
		return nil, "", err
	}
	res, err := rec.Result()
	if err != nil {
		return nil, "", err
	}
	name := rec.Name
	if name == "" {
		name = rec.ID
	}
	return res, name, nil
}

// resultFromFile wraps a mesh file in a result so it can be rendered.
func resultFromFile(path string) (*pipeline.Result, error) {
	h, err := meshio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := meshio.MarshalJSON(h)
	if err != nil {
		return nil, err
	}
	res := &pipeline.Result{
		Mesh:     h,
		MeshHash: cache.Hash(data),
		Options:  pipeline.DefaultOptions(),
	}
	res.Stats.Stats = mesh.ComputeStats(h)
	return res, nil
}
