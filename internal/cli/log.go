// Package cli implements the quadmesh command-line interface.
//
// Commands:
//   - mesh: run the meshing pipeline on a TOML or JSON session file
//   - render: convert a mesh file or stored mesh to other formats
//   - inspect, meshes: browse stored meshes and their element quality
//   - options: list the option surface with defaults
//   - serve: expose the pipeline as an HTTP API
//   - cache: manage the local result cache
//
// One charmbracelet/log logger is created per process and travels in the
// command context. --verbose enables debug output, which includes the
// per-stage timings reported by the pipeline runner; --quiet keeps errors
// only.
//
//	c := cli.New(os.Stderr, cli.LogInfo)
//	err := c.RootCommand().ExecuteContext(ctx)
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns a logger writing to w at level, with centisecond
// timestamps ("14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress times a command. lap logs intermediate steps at debug level;
// done logs the total at info level. Not safe for concurrent use.
type progress struct {
	logger *log.Logger
	start  time.Time
	last   time.Time
}

func newProgress(l *log.Logger) *progress {
	now := time.Now()
	return &progress{logger: l, start: now, last: now}
}

// lap logs step with the time since the previous lap.
func (p *progress) lap(step string, keyvals ...any) {
	now := time.Now()
	p.logger.Debug(step, append(keyvals, "took", now.Sub(p.last).Round(time.Millisecond))...)
	p.last = now
}

// done logs msg with the total elapsed time, e.g. "Meshed square.toml (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey struct{}

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

// loggerFromContext returns the logger attached by withLogger, or
// log.Default.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
