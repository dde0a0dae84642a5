package registry_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/pluginerr"
	"github.com/latchmesh/pluginchain/internal/registry"
)

type stubPlugin struct {
	name  string
	hooks []hook.Kind
}

func (s *stubPlugin) Name() string                 { return s.name }
func (s *stubPlugin) Priority() int                 { return 0 }
func (s *stubPlugin) Mode() hook.Mode               { return hook.ModeEnforce }
func (s *stubPlugin) Hooks() []hook.Kind            { return s.hooks }
func (s *stubPlugin) Conditions() []hook.Condition  { return nil }
func (s *stubPlugin) TimeoutOverride() (time.Duration, bool) { return 0, false }
func (s *stubPlugin) Initialize(ctx context.Context, config json.RawMessage) error { return nil }
func (s *stubPlugin) Shutdown(ctx context.Context) error { return nil }

func (s *stubPlugin) PromptPreFetch(ctx context.Context, pc *hook.PluginContext, p *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	return hook.PassThrough[hook.PromptPayload](), nil
}
func (s *stubPlugin) PromptPostFetch(ctx context.Context, pc *hook.PluginContext, p *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	return hook.PassThrough[hook.PromptPayload](), nil
}
func (s *stubPlugin) ToolPreInvoke(ctx context.Context, pc *hook.PluginContext, p *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return hook.PassThrough[hook.ToolPayload](), nil
}
func (s *stubPlugin) ToolPostInvoke(ctx context.Context, pc *hook.PluginContext, p *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	return hook.PassThrough[hook.ToolPayload](), nil
}
func (s *stubPlugin) ResourcePreFetch(ctx context.Context, pc *hook.PluginContext, p *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	return hook.PassThrough[hook.ResourcePayload](), nil
}
func (s *stubPlugin) ResourcePostFetch(ctx context.Context, pc *hook.PluginContext, p *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	return hook.PassThrough[hook.ResourcePayload](), nil
}
func (s *stubPlugin) HTTPPreRequest(ctx context.Context, pc *hook.PluginContext, p *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	return hook.PassThrough[hook.HTTPPayload](), nil
}
func (s *stubPlugin) HTTPPostRequest(ctx context.Context, pc *hook.PluginContext, p *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	return hook.PassThrough[hook.HTTPPayload](), nil
}
func (s *stubPlugin) AuthResolveUser(ctx context.Context, pc *hook.PluginContext, p *hook.AuthResolvePayload) (*hook.Result[hook.AuthResolvePayload], error) {
	return hook.PassThrough[hook.AuthResolvePayload](), nil
}
func (s *stubPlugin) AuthCheckPermission(ctx context.Context, pc *hook.PluginContext, p *hook.AuthPermissionPayload) (*hook.Result[hook.AuthPermissionPayload], error) {
	return hook.PassThrough[hook.AuthPermissionPayload](), nil
}
func (s *stubPlugin) OnStartup(ctx context.Context, pc *hook.PluginContext, p *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
	return hook.PassThrough[hook.LifecyclePayload](), nil
}
func (s *stubPlugin) OnShutdown(ctx context.Context, pc *hook.PluginContext, p *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
	return hook.PassThrough[hook.LifecyclePayload](), nil
}

func newStub(name string, hooks ...hook.Kind) *stubPlugin {
	return &stubPlugin{name: name, hooks: hooks}
}

func TestRegister_DuplicateName(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(newStub("a", hook.ToolPreInvoke)))

	err := r.Register(newStub("a", hook.ToolPreInvoke))
	require.Error(t, err)
	var dup *pluginerr.DuplicateNameError
	assert.ErrorAs(t, err, &dup)
}

func TestPluginsForHook_IndexesByHook(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(newStub("a", hook.ToolPreInvoke)))
	require.NoError(t, r.Register(newStub("b", hook.ToolPostInvoke)))
	require.NoError(t, r.Register(newStub("c", hook.ToolPreInvoke)))

	list := r.PluginsForHook(hook.ToolPreInvoke)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Plugin.Name())
	assert.Equal(t, "c", list[1].Plugin.Name())
	assert.Less(t, list[0].Order, list[1].Order)
}

func TestUnregister_RemovesFromAllIndices(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(newStub("a", hook.ToolPreInvoke, hook.ToolPostInvoke)))
	require.NoError(t, r.Unregister("a"))

	assert.Empty(t, r.PluginsForHook(hook.ToolPreInvoke))
	assert.Empty(t, r.PluginsForHook(hook.ToolPostInvoke))

	_, err := r.Get("a")
	var unknown *pluginerr.UnknownPluginError
	assert.ErrorAs(t, err, &unknown)
}

func TestAll_SortedByRegistrationOrder(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(newStub("first", hook.Startup)))
	require.NoError(t, r.Register(newStub("second", hook.Startup)))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Plugin.Name())
	assert.Equal(t, "second", all[1].Plugin.Name())
}
