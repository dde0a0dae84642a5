package hook

import (
	"context"
	"encoding/json"
	"time"
)

// Plugin is the capability surface every configured middleware instance
// exposes. Concrete plugins embed BasePlugin (package plugins/shared) and
// override only the hook methods they care about; the rest fall through
// to BasePlugin's pass-through defaults.
type Plugin interface {
	Name() string
	Priority() int
	Mode() Mode
	Hooks() []Kind
	Conditions() []Condition

	// TimeoutOverride returns a per-plugin timeout that replaces the
	// Executor's global default, and whether one is set at all.
	TimeoutOverride() (time.Duration, bool)

	// Initialize is called once at manager startup, after construction
	// from config, before any hook method runs. Shutdown is called once
	// at manager stop, in reverse registration order.
	Initialize(ctx context.Context, config json.RawMessage) error
	Shutdown(ctx context.Context) error

	PromptPreFetch(ctx context.Context, pc *PluginContext, payload *PromptPayload) (*Result[PromptPayload], error)
	PromptPostFetch(ctx context.Context, pc *PluginContext, payload *PromptPayload) (*Result[PromptPayload], error)

	ToolPreInvoke(ctx context.Context, pc *PluginContext, payload *ToolPayload) (*Result[ToolPayload], error)
	ToolPostInvoke(ctx context.Context, pc *PluginContext, payload *ToolPayload) (*Result[ToolPayload], error)

	ResourcePreFetch(ctx context.Context, pc *PluginContext, payload *ResourcePayload) (*Result[ResourcePayload], error)
	ResourcePostFetch(ctx context.Context, pc *PluginContext, payload *ResourcePayload) (*Result[ResourcePayload], error)

	HTTPPreRequest(ctx context.Context, pc *PluginContext, payload *HTTPPayload) (*Result[HTTPPayload], error)
	HTTPPostRequest(ctx context.Context, pc *PluginContext, payload *HTTPPayload) (*Result[HTTPPayload], error)

	AuthResolveUser(ctx context.Context, pc *PluginContext, payload *AuthResolvePayload) (*Result[AuthResolvePayload], error)
	AuthCheckPermission(ctx context.Context, pc *PluginContext, payload *AuthPermissionPayload) (*Result[AuthPermissionPayload], error)

	OnStartup(ctx context.Context, pc *PluginContext, payload *LifecyclePayload) (*Result[LifecyclePayload], error)
	OnShutdown(ctx context.Context, pc *PluginContext, payload *LifecyclePayload) (*Result[LifecyclePayload], error)
}

// Factory constructs a named Plugin instance from its configured identity.
// The opaque config blob is not passed here: the engine never looks inside
// it, and each plugin parses its own typed config at Initialize.
type Factory interface {
	Kind() string
	New(name string, priority int, mode Mode, hooks []Kind, conditions []Condition) (Plugin, error)
}
