package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/quadmesh/internal/server"
	"github.com/matzehuels/quadmesh/pkg/session"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// serveOpts holds the flags of the serve command.
type serveOpts struct {
	addr     string
	sessions string
	cfg      server.Config
	cache    cacheFlags
	mongo    string
	memory   bool
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the meshing pipeline over HTTP",
		Long: `Serve the meshing pipeline as a JSON API.

Meshes are kept in the default mesh store, in MongoDB with --mongo, or in
memory with --memory. Session descriptions are kept in memory unless
--sessions names a directory.`,
		Example: `  quadmesh serve --addr :8080
  quadmesh serve --redis redis://localhost:6379/0 --mongo mongodb://localhost:27017`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			runner, err := c.newRunner(ctx, opts.cache)
			if err != nil {
				return err
			}
			defer runner.Close()

			var meshes store.Store
			switch {
			case opts.memory:
				meshes = store.NewMemoryStore()
			default:
				if meshes, err = (storeFlags{mongo: opts.mongo}).open(ctx); err != nil {
					return err
				}
			}
			defer meshes.Close()

			var sessions session.Store = session.NewMemoryStore()
			if opts.sessions != "" {
				if sessions, err = session.NewFileStore(opts.sessions); err != nil {
					return err
				}
			}

			cfg := opts.cfg
			cfg.Runner, cfg.Meshes, cfg.Sessions, cfg.Logger = runner, meshes, sessions, c.Logger
			return server.New(cfg).ListenAndServe(ctx, opts.addr)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.sessions, "sessions", "", "directory for session descriptions (default: in memory)")
	cmd.Flags().StringVar(&opts.mongo, "mongo", "", "MongoDB URI of the mesh store")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "keep meshes in memory")
	cmd.Flags().Int64Var(&opts.cfg.MaxBody, "max-body", server.DefaultMaxBody, "maximum request body in bytes")
	cmd.Flags().DurationVar(&opts.cfg.Timeout, "timeout", server.DefaultTimeout, "per-request timeout")
	cmd.Flags().DurationVar(&opts.cfg.SessionTTL, "session-ttl", session.DefaultTTL, "how long session descriptions are kept")
	opts.cache.register(cmd)

	return cmd
}
