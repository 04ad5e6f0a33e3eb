package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/quadmesh/pkg/buildinfo"
	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "quadmesh"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
	LogWarn  = log.WarnLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Quadmesh generates 2D triangle and quad-dominant meshes",
		Long: `Quadmesh meshes planar geometry described in TOML or JSON session files.

Surfaces are triangulated by a constrained Delaunay mesher driven by a size
field, and optionally recombined into quadrilaterals by blossom matching.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.meshCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.meshesCommand())
	root.AddCommand(c.optionsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// cacheFlags selects the cache backend of a command.
type cacheFlags struct {
	noCache bool
	refresh bool
	redis   string
}

func (f *cacheFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "recompute even when a cached result exists")
	cmd.Flags().StringVar(&f.redis, "redis", "", "Redis URL for a shared cache (redis://host:6379/0)")
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, f cacheFlags) (*pipeline.Runner, error) {
	cache, err := newCache(ctx, f)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(cache, nil, c.Logger)
	runner.Refresh = f.refresh
	return runner, nil
}

func newCache(ctx context.Context, f cacheFlags) (cache.Cache, error) {
	if f.noCache {
		return cache.NewNullCache(), nil
	}
	if f.redis != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: f.redis})
		if err != nil {
			return nil, err
		}
		return cache.Compressed(rc), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// storeFlags selects where finished meshes are persisted.
type storeFlags struct {
	dir   string
	mongo string
}

func (f *storeFlags) register(cmd *cobra.Command, dirUsage string) {
	cmd.Flags().StringVar(&f.dir, "store", "", dirUsage)
	cmd.Flags().StringVar(&f.mongo, "mongo", "", "MongoDB URI of the mesh store (overrides --store)")
}

// enabled reports whether a store was requested.
func (f storeFlags) enabled() bool { return f.dir != "" || f.mongo != "" }

// open opens the selected store. An empty selection opens the default file
// store.
func (f storeFlags) open(ctx context.Context) (store.Store, error) {
	if f.mongo != "" {
		return store.NewMongoStore(ctx, store.MongoConfig{URI: f.mongo})
	}
	dir := f.dir
	if dir == "" || dir == "default" {
		var err error
		if dir, err = dataDir(); err != nil {
			return nil, err
		}
	}
	return store.NewFileStore(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/quadmesh/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// dataDir returns the default mesh store directory
// (~/.local/share/quadmesh/meshes/).
func dataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName, "meshes"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName, "meshes"), nil
}

// =============================================================================
// Flag Helpers
// =============================================================================

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return []string{pipeline.FormatMSH}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseAssignments parses repeated --set Name=Value flags.
func parseAssignments(sets []string) (map[string]any, error) {
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		name, value, err := pipeline.ParseAssignment(s)
		if err != nil {
			return nil, fmt.Errorf("--set: %w", err)
		}
		out[name] = value
	}
	return out, nil
}
