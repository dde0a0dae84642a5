// Package shared provides BasePlugin, the embeddable default every
// concrete plugin in this repo builds on, grounded on
// apps/backend/internal/plugins/shared/base.go in the teacher: the same
// name/priority/mode/stats bookkeeping behind a RWMutex, generalized from
// the teacher's ad hoc execution-mode string to hook.Mode and from its
// single FilterStat to the engine's Stats shape.
package shared

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/latchmesh/pluginchain/internal/hook"
)

// Stats is the running counters BasePlugin maintains for every dispatched
// call, independent of which hook it was.
type Stats struct {
	LastActive        time.Time
	Name              string
	RequestsProcessed int64
	Violations        int64
	Blocks            int64
	Modifications     int64
	Errors            int64
	AverageLatency    time.Duration
}

// BasePlugin implements every hook.Plugin method as a pass-through and
// holds the identity/priority/mode/conditions a concrete plugin is
// constructed with. Embedders override only the hook methods they care
// about.
type BasePlugin struct {
	mu         sync.RWMutex
	name       string
	priority   int
	mode       hook.Mode
	hooks      []hook.Kind
	conditions []hook.Condition
	timeout    time.Duration
	hasTimeout bool
	stats      Stats
}

// New constructs a BasePlugin from its configured identity. timeout of
// zero means "no per-plugin override, use the Executor's global default".
func New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition, timeout time.Duration) *BasePlugin {
	return &BasePlugin{
		name:       name,
		priority:   priority,
		mode:       mode,
		hooks:      hooks,
		conditions: conditions,
		timeout:    timeout,
		hasTimeout: timeout > 0,
		stats:      Stats{Name: name, LastActive: time.Now()},
	}
}

func (b *BasePlugin) Name() string                 { return b.name }
func (b *BasePlugin) Priority() int                { return b.priority }
func (b *BasePlugin) Hooks() []hook.Kind            { return b.hooks }
func (b *BasePlugin) Conditions() []hook.Condition { return b.conditions }

func (b *BasePlugin) Mode() hook.Mode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

// SetMode changes the plugin's execution mode at runtime; the Executor
// reads it fresh on every dispatch, so a toggle takes effect on the very
// next hook invocation.
func (b *BasePlugin) SetMode(mode hook.Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
}

func (b *BasePlugin) TimeoutOverride() (time.Duration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timeout, b.hasTimeout
}

// Initialize is a no-op default; plugins that need to parse a config blob
// override it.
func (b *BasePlugin) Initialize(ctx context.Context, config json.RawMessage) error { return nil }

// Shutdown is a no-op default.
func (b *BasePlugin) Shutdown(ctx context.Context) error { return nil }

func (b *BasePlugin) PromptPreFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	return hook.PassThrough[hook.PromptPayload](), nil
}

func (b *BasePlugin) PromptPostFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	return hook.PassThrough[hook.PromptPayload](), nil
}

func (b *BasePlugin) ToolPreInvoke(ctx context.Context, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return hook.PassThrough[hook.ToolPayload](), nil
}

func (b *BasePlugin) ToolPostInvoke(ctx context.Context, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return hook.PassThrough[hook.ToolPayload](), nil
}

func (b *BasePlugin) ResourcePreFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	return hook.PassThrough[hook.ResourcePayload](), nil
}

func (b *BasePlugin) ResourcePostFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	return hook.PassThrough[hook.ResourcePayload](), nil
}

func (b *BasePlugin) HTTPPreRequest(ctx context.Context, pc *hook.PluginContext, payload *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	return hook.PassThrough[hook.HTTPPayload](), nil
}

func (b *BasePlugin) HTTPPostRequest(ctx context.Context, pc *hook.PluginContext, payload *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	return hook.PassThrough[hook.HTTPPayload](), nil
}

func (b *BasePlugin) AuthResolveUser(ctx context.Context, pc *hook.PluginContext, payload *hook.AuthResolvePayload) (*hook.Result[hook.AuthResolvePayload], error) {
	return hook.PassThrough[hook.AuthResolvePayload](), nil
}

func (b *BasePlugin) AuthCheckPermission(ctx context.Context, pc *hook.PluginContext, payload *hook.AuthPermissionPayload) (*hook.Result[hook.AuthPermissionPayload], error) {
	return hook.PassThrough[hook.AuthPermissionPayload](), nil
}

func (b *BasePlugin) OnStartup(ctx context.Context, pc *hook.PluginContext, payload *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
	return hook.PassThrough[hook.LifecyclePayload](), nil
}

func (b *BasePlugin) OnShutdown(ctx context.Context, pc *hook.PluginContext, payload *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
	return hook.PassThrough[hook.LifecyclePayload](), nil
}

// RecordCall updates the running stats after one dispatch. Each plugin
// calls this on itself at the end of its own hook method; the
// Manager/Executor never call it directly.
func (b *BasePlugin) RecordCall(blocked, modified, hasError bool, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.RequestsProcessed++
	b.stats.LastActive = time.Now()

	if blocked {
		b.stats.Blocks++
		b.stats.Violations++
	}
	if modified {
		b.stats.Modifications++
	}
	if hasError {
		b.stats.Errors++
	}

	if b.stats.RequestsProcessed == 1 {
		b.stats.AverageLatency = latency
	} else {
		b.stats.AverageLatency += (latency - b.stats.AverageLatency) / time.Duration(b.stats.RequestsProcessed)
	}
}

// GetStats returns a copy of the plugin's running counters.
func (b *BasePlugin) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}
