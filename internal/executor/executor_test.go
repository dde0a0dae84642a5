package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchmesh/pluginchain/internal/executor"
	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/pluginerr"
	"github.com/latchmesh/pluginchain/internal/registry"
)

// fakePlugin is a minimal, fully-controllable hook.Plugin used only by
// these tests: ToolPreInvoke delegates to toolResult, the single behavior
// knob the tests drive; every other hook method is a pass-through.
type fakePlugin struct {
	name       string
	priority   int
	mode       hook.Mode
	toolResult func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error)
	timeout    time.Duration
	hasTimeout bool
}

func (f *fakePlugin) Name() string                { return f.name }
func (f *fakePlugin) Priority() int                { return f.priority }
func (f *fakePlugin) Mode() hook.Mode              { return f.mode }
func (f *fakePlugin) Hooks() []hook.Kind           { return []hook.Kind{hook.ToolPreInvoke} }
func (f *fakePlugin) Conditions() []hook.Condition { return nil }
func (f *fakePlugin) TimeoutOverride() (time.Duration, bool) { return f.timeout, f.hasTimeout }
func (f *fakePlugin) Initialize(ctx context.Context, config json.RawMessage) error { return nil }
func (f *fakePlugin) Shutdown(ctx context.Context) error { return nil }

func (f *fakePlugin) PromptPreFetch(ctx context.Context, pc *hook.PluginContext, p *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	return hook.PassThrough[hook.PromptPayload](), nil
}
func (f *fakePlugin) PromptPostFetch(ctx context.Context, pc *hook.PluginContext, p *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	return hook.PassThrough[hook.PromptPayload](), nil
}
func (f *fakePlugin) ToolPreInvoke(ctx context.Context, pc *hook.PluginContext, p *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return f.toolResult(ctx, p)
}
func (f *fakePlugin) ToolPostInvoke(ctx context.Context, pc *hook.PluginContext, p *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return hook.PassThrough[hook.ToolPayload](), nil
}
func (f *fakePlugin) ResourcePreFetch(ctx context.Context, pc *hook.PluginContext, p *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	return hook.PassThrough[hook.ResourcePayload](), nil
}
func (f *fakePlugin) ResourcePostFetch(ctx context.Context, pc *hook.PluginContext, p *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	return hook.PassThrough[hook.ResourcePayload](), nil
}
func (f *fakePlugin) HTTPPreRequest(ctx context.Context, pc *hook.PluginContext, p *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	return hook.PassThrough[hook.HTTPPayload](), nil
}
func (f *fakePlugin) HTTPPostRequest(ctx context.Context, pc *hook.PluginContext, p *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	return hook.PassThrough[hook.HTTPPayload](), nil
}
func (f *fakePlugin) AuthResolveUser(ctx context.Context, pc *hook.PluginContext, p *hook.AuthResolvePayload) (*hook.Result[hook.AuthResolvePayload], error) {
	return hook.PassThrough[hook.AuthResolvePayload](), nil
}
func (f *fakePlugin) AuthCheckPermission(ctx context.Context, pc *hook.PluginContext, p *hook.AuthPermissionPayload) (*hook.Result[hook.AuthPermissionPayload], error) {
	return hook.PassThrough[hook.AuthPermissionPayload](), nil
}
func (f *fakePlugin) OnStartup(ctx context.Context, pc *hook.PluginContext, p *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
	return hook.PassThrough[hook.LifecyclePayload](), nil
}
func (f *fakePlugin) OnShutdown(ctx context.Context, pc *hook.PluginContext, p *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
	return hook.PassThrough[hook.LifecyclePayload](), nil
}

func toolCall(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return p.ToolPreInvoke(ctx, pc, payload)
}

func run(t *testing.T, plugins []hook.Plugin, payload *hook.ToolPayload, cfg executor.Config) (*hook.Result[hook.ToolPayload], error) {
	t.Helper()
	dispatchables := make([]registry.Dispatchable, len(plugins))
	for i, p := range plugins {
		dispatchables[i] = registry.Dispatchable{Plugin: p, Order: i}
	}
	global := &hook.GlobalContext{RequestID: "req-1"}
	table := hook.NewTable()
	return executor.Execute(context.Background(), hook.ToolPreInvoke, dispatchables, payload, global, table, hook.Target{Tool: "t"}, toolCall, cfg, nil)
}

func passThrough(_ context.Context, _ *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return hook.PassThrough[hook.ToolPayload](), nil
}

func TestExecute_PriorityOrder(t *testing.T) {
	var order []string
	make1 := func(name string, priority int) *fakePlugin {
		return &fakePlugin{name: name, priority: priority, mode: hook.ModeEnforce, toolResult: func(ctx context.Context, p *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
			order = append(order, name)
			return hook.PassThrough[hook.ToolPayload](), nil
		}}
	}
	plugins := []hook.Plugin{make1("low", 10), make1("high", 1)}

	_, err := run(t, plugins, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestExecute_DisabledPluginSkipped(t *testing.T) {
	called := false
	p := &fakePlugin{name: "p", mode: hook.ModeDisabled, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		called = true
		return hook.PassThrough[hook.ToolPayload](), nil
	}}

	_, err := run(t, []hook.Plugin{p}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestExecute_EnforceViolationStopsAndSurfacesInResult(t *testing.T) {
	p := &fakePlugin{name: "p", mode: hook.ModeEnforce, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		return hook.Block[hook.ToolPayload](hook.Violation{Code: "blocked", Reason: "nope"}), nil
	}}
	next := &fakePlugin{name: "next", priority: 1, mode: hook.ModeEnforce, toolResult: passThrough}

	result, err := run(t, []hook.Plugin{p, next}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, "p", result.Violation.PluginName)
	assert.False(t, result.ContinueProcessing)
}

func TestExecute_PermissiveViolationLogsAndContinues(t *testing.T) {
	p := &fakePlugin{name: "p", mode: hook.ModePermissive, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		return hook.Block[hook.ToolPayload](hook.Violation{Code: "blocked"}), nil
	}}
	reached := false
	next := &fakePlugin{name: "next", priority: 1, mode: hook.ModeEnforce, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		reached = true
		return hook.PassThrough[hook.ToolPayload](), nil
	}}

	result, err := run(t, []hook.Plugin{p, next}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, result.Violation)
	assert.True(t, reached)
}

func TestExecute_EnforceIgnoreErrorSwallowsTechnicalError(t *testing.T) {
	p := &fakePlugin{name: "p", mode: hook.ModeEnforceIgnoreError, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		return nil, errors.New("boom")
	}}
	reached := false
	next := &fakePlugin{name: "next", priority: 1, mode: hook.ModeEnforce, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		reached = true
		return hook.PassThrough[hook.ToolPayload](), nil
	}}

	result, err := run(t, []hook.Plugin{p, next}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, reached)
	assert.True(t, result.ContinueProcessing)
}

func TestExecute_EnforceTechnicalErrorSurfaces(t *testing.T) {
	p := &fakePlugin{name: "p", mode: hook.ModeEnforce, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		return nil, errors.New("boom")
	}}

	_, err := run(t, []hook.Plugin{p}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.Error(t, err)
	var internalErr *pluginerr.InternalError
	assert.ErrorAs(t, err, &internalErr)
}

func TestExecute_FailOnPluginErrorUpgradesPermissive(t *testing.T) {
	p := &fakePlugin{name: "p", mode: hook.ModePermissive, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		return nil, errors.New("boom")
	}}

	cfg := executor.DefaultConfig()
	cfg.FailOnPluginError = true
	_, err := run(t, []hook.Plugin{p}, &hook.ToolPayload{Name: "t"}, cfg)
	require.Error(t, err)
}

func TestExecute_TimeoutSurfacesAsTimeoutError(t *testing.T) {
	p := &fakePlugin{name: "p", mode: hook.ModeEnforce, timeout: 10 * time.Millisecond, hasTimeout: true, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := run(t, []hook.Plugin{p}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.Error(t, err)
	var timeoutErr *pluginerr.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestExecute_ModifiedPayloadFlowsToNextPlugin(t *testing.T) {
	first := &fakePlugin{name: "first", mode: hook.ModeEnforce, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		modified := *payload
		modified.Result = "modified"
		return hook.Modify(modified, nil), nil
	}}
	var seen any
	second := &fakePlugin{name: "second", priority: 1, mode: hook.ModeEnforce, toolResult: func(ctx context.Context, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
		seen = payload.Result
		return hook.PassThrough[hook.ToolPayload](), nil
	}}

	_, err := run(t, []hook.Plugin{first, second}, &hook.ToolPayload{Name: "t"}, executor.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "modified", seen)
}

func TestExecute_PayloadTooLargeBeforeDispatch(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxPayloadSize = 1

	_, err := run(t, nil, &hook.ToolPayload{Name: "a rather long tool name that exceeds one byte"}, cfg)
	require.Error(t, err)
	var tooLarge *pluginerr.PayloadTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
}
