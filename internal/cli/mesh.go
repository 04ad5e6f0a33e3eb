package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quadmesh/pkg/pipeline"
	"github.com/matzehuels/quadmesh/pkg/session"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// meshOpts holds the flags of the mesh command.
type meshOpts struct {
	formats  string
	output   string
	sets     []string
	workers  int
	width    int
	height   int
	quality  bool
	compress bool
	stats    bool
	cache    cacheFlags
	store    storeFlags
}

// meshCommand creates the mesh command.
func (c *CLI) meshCommand() *cobra.Command {
	var opts meshOpts

	cmd := &cobra.Command{
		Use:   "mesh <session-file>",
		Short: "Mesh the geometry of a session file",
		Long: `Mesh the geometry described by a TOML or JSON session file.

Options from the file can be overridden with --set; names follow the
"Mesh." convention and are case-insensitive:

  quadmesh mesh plate.toml --set Mesh.Algorithm=8 --set RecombineAll=1

Results are cached by session fingerprint and option set.`,
		Example: `  quadmesh mesh square.toml
  quadmesh mesh square.toml -f msh,png -o out/square
  quadmesh mesh plate.json --set Mesh.RecombinationAlgorithm=3 --store default`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMesh(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.formats, "format", "f", "", "output formats: msh, json, geojson, png, dot, svg (comma-separated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file or path prefix (default: input name)")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "override an option (Name=Value, repeatable)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parallel workers (0 = all CPUs)")
	cmd.Flags().IntVar(&opts.width, "width", pipeline.DefaultWidth, "PNG width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", pipeline.DefaultHeight, "PNG height in pixels")
	cmd.Flags().BoolVar(&opts.quality, "quality", false, "shade PNG elements by quality")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "zstd-compress mesh outputs (.zst)")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print a statistics table")
	opts.cache.register(cmd)
	opts.store.register(cmd, "save the mesh to a store directory ('default' for the data dir)")
	registerRenderCompletions(cmd)
	_ = cmd.RegisterFlagCompletionFunc("set", completeOptions)

	return cmd
}

// runMesh loads a session, runs the pipeline and writes the artifacts.
func (c *CLI) runMesh(ctx context.Context, input string, opts meshOpts) error {
	logger := loggerFromContext(ctx)
	formats := parseFormats(opts.formats)
	if err := pipeline.ValidateFormats(formats); err != nil {
		return err
	}
	overrides, err := parseAssignments(opts.sets)
	if err != nil {
		return err
	}

	sess, err := session.Load(input)
	if err != nil {
		return err
	}
	for name, value := range overrides {
		sess.SetOption(name, value)
	}

	runner, err := c.newRunner(ctx, opts.cache)
	if err != nil {
		return err
	}
	defer runner.Close()
	runner.Workers = opts.workers

	name := filepath.Base(input)
	prog := newProgress(logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Meshing %s...", name))
	spinner.Start()

	var res *pipeline.Result
	err = withStageHooks(spinner, name, func() error {
		var err error
		res, err = runner.Run(ctx, sess)
		return err
	})
	if err != nil {
		spinner.Stop()
		return err
	}
	prog.lap("meshed", "run", res.RunID, "cached", res.CacheInfo.MeshHit)

	artifacts, err := runner.RenderArtifacts(ctx, res, formats, pipeline.RenderOptions{
		Width:       opts.width,
		Height:      opts.height,
		ShowQuality: opts.quality,
	})
	spinner.Stop()
	if err != nil {
		return err
	}
	prog.lap("rendered", "formats", formats)

	paths := outputPaths(opts.output, outputBase(input), formats, opts.compress)
	written, err := writeArtifacts(artifacts, paths)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Meshed %s", name))

	printSuccess("Meshed %s", StyleHighlight.Render(name))
	printStats(res.Stats, res.CacheInfo.MeshHit)
	for _, path := range written {
		printFile(path)
	}
	if opts.stats {
		printStatsTable(res.Stats)
	}

	if opts.store.enabled() {
		id, err := saveResult(ctx, opts.store, outputBase(input), res)
		if err != nil {
			return err
		}
		printKeyValue("stored", id)
		printNextStep("Inspect it", "quadmesh inspect "+id)
	}
	return nil
}

// saveResult persists res and returns the record ID.
func saveResult(ctx context.Context, f storeFlags, name string, res *pipeline.Result) (string, error) {
	s, err := f.open(ctx)
	if err != nil {
		return "", err
	}
	defer s.Close()

	rec, err := store.NewRecord(name, res)
	if err != nil {
		return "", err
	}
	if err := s.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("store mesh: %w", err)
	}
	return rec.ID, nil
}
