// Package observability lets a host program watch meshing runs without the
// library depending on any metrics or tracing backend.
//
// Three event families are exposed: [PipelineHooks] for runs and their
// stages, [CacheHooks] for mesh and artifact cache traffic, and [HTTPHooks]
// for requests handled by the quadmesh server. Each family starts out as a
// no-op implementation; main (or a test) installs its own:
//
//	observability.SetPipelineHooks(promStages{})
//	defer observability.Reset()
//
// Short-lived overrides, such as a spinner that follows the current stage,
// use the Swap functions and restore the previous hooks afterwards:
//
//	restore := observability.SwapPipelineHooks(spinnerHooks)
//	defer restore()
//
// Hooks are called synchronously from the emitting goroutine, so
// implementations must be cheap and safe for concurrent use. Per-surface
// triangulation runs in parallel and may report from several goroutines.
package observability

import (
	"context"
	"sync"
	"time"
)

// PipelineHooks observes meshing runs. runID identifies one run of the
// pipeline; stage is one of geometry, field, triangulate, recombine,
// subdivide, smooth or validate.
type PipelineHooks interface {
	OnRunStart(ctx context.Context, runID, session string)
	OnRunComplete(ctx context.Context, runID string, duration time.Duration, err error)

	OnStageStart(ctx context.Context, runID, stage string)
	// OnStageComplete reports the element count after the stage.
	OnStageComplete(ctx context.Context, runID, stage string, elements int, duration time.Duration, err error)
}

// CacheHooks observes cache lookups. keyType is "mesh" or "artifact".
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// HTTPHooks observes requests served by the HTTP API. OnRequest sees the
// raw request path; OnResponse sees the matched route pattern, such as
// /v1/meshes/{id}, or the raw path when no route matched.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, path string)
	OnResponse(ctx context.Context, method, route string, statusCode int, duration time.Duration)
}

// NoopPipelineHooks ignores every event. Embed it to implement only the
// events of interest.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnRunStart(context.Context, string, string)                  {}
func (NoopPipelineHooks) OnRunComplete(context.Context, string, time.Duration, error) {}
func (NoopPipelineHooks) OnStageStart(context.Context, string, string)                {}
func (NoopPipelineHooks) OnStageComplete(context.Context, string, string, int, time.Duration, error) {
}

// NoopCacheHooks ignores every event.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks ignores every event.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                   {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// registry holds the installed hooks of every family.
type registry struct {
	mu       sync.RWMutex
	pipeline PipelineHooks
	cache    CacheHooks
	http     HTTPHooks
}

var hooks = registry{
	pipeline: NoopPipelineHooks{},
	cache:    NoopCacheHooks{},
	http:     NoopHTTPHooks{},
}

// SetPipelineHooks installs h. A nil h is ignored.
func SetPipelineHooks(h PipelineHooks) { SwapPipelineHooks(h) }

// SetCacheHooks installs h. A nil h is ignored.
func SetCacheHooks(h CacheHooks) { SwapCacheHooks(h) }

// SetHTTPHooks installs h. A nil h is ignored.
func SetHTTPHooks(h HTTPHooks) { SwapHTTPHooks(h) }

// SwapPipelineHooks installs h and returns a function that puts the
// previous hooks back. A nil h leaves the hooks unchanged.
func SwapPipelineHooks(h PipelineHooks) (restore func()) {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	prev := hooks.pipeline
	if h != nil {
		hooks.pipeline = h
	}
	return func() { SetPipelineHooks(prev) }
}

// SwapCacheHooks is the [CacheHooks] counterpart of [SwapPipelineHooks].
func SwapCacheHooks(h CacheHooks) (restore func()) {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	prev := hooks.cache
	if h != nil {
		hooks.cache = h
	}
	return func() { SetCacheHooks(prev) }
}

// SwapHTTPHooks is the [HTTPHooks] counterpart of [SwapPipelineHooks].
func SwapHTTPHooks(h HTTPHooks) (restore func()) {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	prev := hooks.http
	if h != nil {
		hooks.http = h
	}
	return func() { SetHTTPHooks(prev) }
}

// Pipeline returns the installed pipeline hooks.
func Pipeline() PipelineHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.pipeline
}

// Cache returns the installed cache hooks.
func Cache() CacheHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.cache
}

// HTTP returns the installed HTTP hooks.
func HTTP() HTTPHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.http
}

// Reset reinstalls the no-op hooks of every family.
func Reset() {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	hooks.pipeline = NoopPipelineHooks{}
	hooks.cache = NoopCacheHooks{}
	hooks.http = NoopHTTPHooks{}
}
