package observability

import (
	"context"
	"testing"
	"time"
)

type countingStages struct {
	NoopPipelineHooks
	started, completed int
}

func (c *countingStages) OnStageStart(context.Context, string, string) { c.started++ }
func (c *countingStages) OnStageComplete(context.Context, string, string, int, time.Duration, error) {
	c.completed++
}

type countingCache struct {
	NoopCacheHooks
	hits int
}

func (c *countingCache) OnCacheHit(context.Context, string) { c.hits++ }

type countingHTTP struct {
	NoopHTTPHooks
	requests int
}

func (c *countingHTTP) OnRequest(context.Context, string, string) { c.requests++ }

func TestNoopHooks(t *testing.T) {
	Reset()
	ctx := context.Background()

	Pipeline().OnRunStart(ctx, "run-1", "square")
	Pipeline().OnStageStart(ctx, "run-1", "triangulate")
	Pipeline().OnStageComplete(ctx, "run-1", "triangulate", 512, time.Second, nil)
	Pipeline().OnRunComplete(ctx, "run-1", time.Second, nil)
	Cache().OnCacheMiss(ctx, "mesh")
	Cache().OnCacheSet(ctx, "artifact", 1024)
	HTTP().OnRequest(ctx, "POST", "/v1/mesh")
	HTTP().OnResponse(ctx, "POST", "/v1/mesh", 201, time.Second)

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Errorf("Pipeline() = %T, want NoopPipelineHooks", Pipeline())
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Errorf("Cache() = %T, want NoopCacheHooks", Cache())
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Errorf("HTTP() = %T, want NoopHTTPHooks", HTTP())
	}
}

func TestSetHooks(t *testing.T) {
	defer Reset()
	ctx := context.Background()

	stages, cache, http := &countingStages{}, &countingCache{}, &countingHTTP{}
	SetPipelineHooks(stages)
	SetCacheHooks(cache)
	SetHTTPHooks(http)

	Pipeline().OnStageStart(ctx, "run-1", "recombine")
	Pipeline().OnStageComplete(ctx, "run-1", "recombine", 10, time.Millisecond, nil)
	Cache().OnCacheHit(ctx, "mesh")
	HTTP().OnRequest(ctx, "GET", "/healthz")

	if stages.started != 1 || stages.completed != 1 {
		t.Errorf("stage events = %d/%d, want 1/1", stages.started, stages.completed)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}
	if http.requests != 1 {
		t.Errorf("requests = %d, want 1", http.requests)
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() did not restore NoopPipelineHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	defer Reset()

	custom := &countingStages{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)
	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) replaced the installed hooks")
	}
}

func TestSwapRestores(t *testing.T) {
	defer Reset()

	outer, inner := &countingStages{}, &countingStages{}
	SetPipelineHooks(outer)

	restore := SwapPipelineHooks(inner)
	if Pipeline() != inner {
		t.Fatalf("Pipeline() = %p after swap, want inner", Pipeline())
	}
	restore()
	if Pipeline() != outer {
		t.Errorf("Pipeline() = %p after restore, want outer", Pipeline())
	}

	restoreCache := SwapCacheHooks(&countingCache{})
	restoreCache()
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Errorf("Cache() = %T after restore, want NoopCacheHooks", Cache())
	}

	restoreHTTP := SwapHTTPHooks(nil)
	restoreHTTP()
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Errorf("HTTP() = %T after nil swap, want NoopHTTPHooks", HTTP())
	}
}
