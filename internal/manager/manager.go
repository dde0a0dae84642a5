// Package manager implements the single public facade the gateway talks
// to: one method per hook point, lifecycle management, and the
// operational surface (stats, mode toggling, config export/import).
// Grounded on apps/backend/internal/plugins/manager.go and service.go in
// the teacher, which play the same "one façade in front of a registry and
// an executor" role for the gateway's own filter chain.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latchmesh/pluginchain/internal/config"
	"github.com/latchmesh/pluginchain/internal/executor"
	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/matcher"
	"github.com/latchmesh/pluginchain/internal/pluginerr"
	"github.com/latchmesh/pluginchain/internal/plugins/shared"
	"github.com/latchmesh/pluginchain/internal/registry"
)

// Stats is the point-in-time snapshot returned by Manager.Stats.
type Stats struct {
	LastActive        time.Time
	Name              string
	Mode              hook.Mode
	RequestsProcessed int64
	Violations        int64
	Blocks            int64
	Modifications     int64
	Errors            int64
	AverageLatency    time.Duration
}

// instrumented is satisfied by any plugin able to report BasePlugin-style
// running counters; plugins that don't embed shared.BasePlugin simply
// never appear with populated stats.
type instrumented interface {
	GetStats() shared.Stats
}

// ViolationRecorder persists a violation produced by any hook dispatch.
// Defined here rather than imported from internal/store so the Manager
// doesn't depend on a particular persistence backend; *store.ViolationStore
// satisfies it.
type ViolationRecorder interface {
	Record(ctx context.Context, requestID string, hookKind hook.Kind, v hook.Violation) error
}

// Manager is the plugin engine's façade: it owns the registry, the
// executor configuration and every plugin's lifecycle.
type Manager struct {
	mu          sync.RWMutex
	registry    *registry.Registry
	factories   map[string]hook.Factory
	execCfg     executor.Config
	logger      pluginerr.Logger
	initialized bool
	violations  ViolationRecorder
}

// New returns a Manager with no plugins registered and no factories
// known; call RegisterFactory for every plugin kind the config may
// reference, then Initialize with a loaded config.
func New(logger pluginerr.Logger) *Manager {
	return &Manager{
		registry:  registry.New(),
		factories: make(map[string]hook.Factory),
		execCfg:   executor.DefaultConfig(),
		logger:    logger,
	}
}

// RegisterFactory makes a plugin kind constructible from config. Call
// before Initialize.
func (m *Manager) RegisterFactory(f hook.Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[f.Kind()] = f
}

// SetViolationStore wires a persistence backend for violations raised by
// any hook dispatch. Call before the Manager starts serving traffic; nil
// (the default) disables persistence and violations are only ever
// reported in the returned Result.
func (m *Manager) SetViolationStore(vs ViolationRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = vs
}

// recordViolation persists v if a store is configured, logging rather
// than failing the hook dispatch on a persistence error.
func (m *Manager) recordViolation(ctx context.Context, global *hook.GlobalContext, hookKind hook.Kind, v *hook.Violation) {
	if v == nil {
		return
	}
	m.mu.RLock()
	vs := m.violations
	m.mu.RUnlock()
	if vs == nil {
		return
	}
	if err := vs.Record(ctx, global.RequestID, hookKind, *v); err != nil && m.logger != nil {
		m.logger.Printf("violation store: failed to record %s violation from %q: %v", hookKind, v.PluginName, err)
	}
}

// Initialize constructs every plugin named in cfg via its factory,
// registers it, calls its lifecycle Initialize, and finally dispatches
// hook.Startup across the set so subscribed plugins can react. On any
// failure it shuts down whatever was already brought up, in reverse
// order, and returns the error.
func (m *Manager) Initialize(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	m.execCfg = executor.Config{
		DefaultTimeout:    cfg.Settings.PluginTimeout,
		MaxPayloadSize:    cfg.Settings.MaxPayloadSize,
		FailOnPluginError: cfg.Settings.FailOnPluginError,
	}
	m.mu.Unlock()

	brought := make([]hook.Plugin, 0, len(cfg.Plugins))

	for _, spec := range cfg.Plugins {
		m.mu.RLock()
		factory, ok := m.factories[spec.Kind]
		m.mu.RUnlock()
		if !ok {
			m.rollback(ctx, brought)
			return fmt.Errorf("no factory registered for plugin kind %q (plugin %q)", spec.Kind, spec.Name)
		}

		p, err := factory.New(spec.Name, spec.Priority, spec.Mode, spec.Hooks, spec.HookConditions())
		if err != nil {
			m.rollback(ctx, brought)
			return fmt.Errorf("constructing plugin %q: %w", spec.Name, err)
		}

		if err := p.Initialize(ctx, spec.Config); err != nil {
			m.rollback(ctx, brought)
			return fmt.Errorf("initializing plugin %q: %w", spec.Name, err)
		}

		if err := m.registry.Register(p); err != nil {
			m.rollback(ctx, brought)
			return err
		}
		brought = append(brought, p)
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()

	global := &hook.GlobalContext{Timestamp: time.Now(), RequestID: "startup"}
	table := hook.NewTable()
	if _, err := executor.Execute(ctx, hook.Startup, m.registry.PluginsForHook(hook.Startup),
		&hook.LifecyclePayload{Reason: "manager startup"}, global, table, hook.Target{},
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
			return p.OnStartup(ctx, pc, payload)
		}, m.execCfg, m.logger); err != nil {
		m.rollback(ctx, brought)
		m.mu.Lock()
		m.initialized = false
		m.mu.Unlock()
		return fmt.Errorf("startup hook failed: %w", err)
	}

	return nil
}

func (m *Manager) rollback(ctx context.Context, brought []hook.Plugin) {
	for i := len(brought) - 1; i >= 0; i-- {
		p := brought[i]
		if err := p.Shutdown(ctx); err != nil && m.logger != nil {
			m.logger.Printf("rollback: plugin %q shutdown failed: %v", p.Name(), err)
		}
		_ = m.registry.Unregister(p.Name())
	}
}

// Shutdown dispatches hook.Shutdown across every plugin subscribed to it,
// then calls each registered plugin's lifecycle Shutdown in reverse
// registration order.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	initialized := m.initialized
	cfg := m.execCfg
	m.mu.RUnlock()
	if !initialized {
		return pluginerr.ErrManagerNotInitialized
	}

	global := &hook.GlobalContext{Timestamp: time.Now(), RequestID: "shutdown"}
	table := hook.NewTable()
	_, err := executor.Execute(ctx, hook.Shutdown, m.registry.PluginsForHook(hook.Shutdown),
		&hook.LifecyclePayload{Reason: "manager shutdown"}, global, table, hook.Target{},
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.LifecyclePayload) (*hook.Result[hook.LifecyclePayload], error) {
			return p.OnShutdown(ctx, pc, payload)
		}, cfg, m.logger)
	if err != nil && m.logger != nil {
		m.logger.Printf("shutdown hook dispatch failed: %v", err)
	}

	m.registry.Shutdown(ctx, m.logger)

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// GetPlugin returns the registered plugin by name.
func (m *Manager) GetPlugin(name string) (hook.Plugin, error) {
	return m.registry.Get(name)
}

// PluginCount returns how many plugins are registered.
func (m *Manager) PluginCount() int { return m.registry.Len() }

// NewTable returns a fresh PluginContextTable for one request. Callers
// thread the same table into a pre-hook and its paired post-hook so a
// plugin can correlate state across the two calls.
func NewTable() *hook.Table { return hook.NewTable() }

func (m *Manager) checkInitialized() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return pluginerr.ErrManagerNotInitialized
	}
	return nil
}

func (m *Manager) cfg() executor.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.execCfg
}

// PromptPreFetch dispatches the prompt_pre_fetch hook.
func (m *Manager) PromptPreFetch(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := matcher.TargetFor(hook.PromptPreFetch, payload.Name, payload.ContentType)
	result, err := executor.Execute(ctx, hook.PromptPreFetch, m.registry.PluginsForHook(hook.PromptPreFetch), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
			return p.PromptPreFetch(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.PromptPreFetch, result.Violation)
	}
	return result, err
}

// PromptPostFetch dispatches the prompt_post_fetch hook.
func (m *Manager) PromptPostFetch(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := matcher.TargetFor(hook.PromptPostFetch, payload.Name, payload.ContentType)
	result, err := executor.Execute(ctx, hook.PromptPostFetch, m.registry.PluginsForHook(hook.PromptPostFetch), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
			return p.PromptPostFetch(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.PromptPostFetch, result.Violation)
	}
	return result, err
}

// ToolPreInvoke dispatches the tool_pre_invoke hook.
func (m *Manager) ToolPreInvoke(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := matcher.TargetFor(hook.ToolPreInvoke, payload.Name, payload.ContentType)
	result, err := executor.Execute(ctx, hook.ToolPreInvoke, m.registry.PluginsForHook(hook.ToolPreInvoke), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
			return p.ToolPreInvoke(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.ToolPreInvoke, result.Violation)
	}
	return result, err
}

// ToolPostInvoke dispatches the tool_post_invoke hook.
func (m *Manager) ToolPostInvoke(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := matcher.TargetFor(hook.ToolPostInvoke, payload.Name, payload.ContentType)
	result, err := executor.Execute(ctx, hook.ToolPostInvoke, m.registry.PluginsForHook(hook.ToolPostInvoke), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
			return p.ToolPostInvoke(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.ToolPostInvoke, result.Violation)
	}
	return result, err
}

// ResourcePreFetch dispatches the resource_pre_fetch hook.
func (m *Manager) ResourcePreFetch(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := matcher.TargetFor(hook.ResourcePreFetch, payload.URI, payload.ContentType)
	result, err := executor.Execute(ctx, hook.ResourcePreFetch, m.registry.PluginsForHook(hook.ResourcePreFetch), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
			return p.ResourcePreFetch(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.ResourcePreFetch, result.Violation)
	}
	return result, err
}

// ResourcePostFetch dispatches the resource_post_fetch hook.
func (m *Manager) ResourcePostFetch(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := matcher.TargetFor(hook.ResourcePostFetch, payload.URI, payload.ContentType)
	result, err := executor.Execute(ctx, hook.ResourcePostFetch, m.registry.PluginsForHook(hook.ResourcePostFetch), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
			return p.ResourcePostFetch(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.ResourcePostFetch, result.Violation)
	}
	return result, err
}

// HTTPPreRequest dispatches the http_pre_request hook.
func (m *Manager) HTTPPreRequest(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := hook.Target{ContentType: payload.ContentType}
	result, err := executor.Execute(ctx, hook.HTTPPreRequest, m.registry.PluginsForHook(hook.HTTPPreRequest), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
			return p.HTTPPreRequest(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.HTTPPreRequest, result.Violation)
	}
	return result, err
}

// HTTPPostRequest dispatches the http_post_request hook.
func (m *Manager) HTTPPostRequest(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	target := hook.Target{ContentType: payload.ContentType}
	result, err := executor.Execute(ctx, hook.HTTPPostRequest, m.registry.PluginsForHook(hook.HTTPPostRequest), payload, global, table, target,
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.HTTPPayload) (*hook.Result[hook.HTTPPayload], error) {
			return p.HTTPPostRequest(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.HTTPPostRequest, result.Violation)
	}
	return result, err
}

// AuthResolveUser dispatches the http_auth_resolve_user hook. Per
// spec.md's open-question resolution, a plugin is only authoritative for
// the resolved user when it sets ModifiedPayload.User itself; a bare
// ContinueProcessing=true with no modification leaves resolution to the
// next plugin.
func (m *Manager) AuthResolveUser(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.AuthResolvePayload) (*hook.Result[hook.AuthResolvePayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	result, err := executor.Execute(ctx, hook.HTTPAuthResolveUser, m.registry.PluginsForHook(hook.HTTPAuthResolveUser), payload, global, table, hook.Target{},
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.AuthResolvePayload) (*hook.Result[hook.AuthResolvePayload], error) {
			return p.AuthResolveUser(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.HTTPAuthResolveUser, result.Violation)
	}
	return result, err
}

// AuthCheckPermission dispatches the http_auth_check_permission hook.
func (m *Manager) AuthCheckPermission(ctx context.Context, global *hook.GlobalContext, table *hook.Table, payload *hook.AuthPermissionPayload) (*hook.Result[hook.AuthPermissionPayload], error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	result, err := executor.Execute(ctx, hook.HTTPAuthCheckPermission, m.registry.PluginsForHook(hook.HTTPAuthCheckPermission), payload, global, table, hook.Target{},
		func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *hook.AuthPermissionPayload) (*hook.Result[hook.AuthPermissionPayload], error) {
			return p.AuthCheckPermission(ctx, pc, payload)
		}, m.cfg(), m.logger)
	if err == nil {
		m.recordViolation(ctx, global, hook.HTTPAuthCheckPermission, result.Violation)
	}
	return result, err
}

// SetMode changes a registered plugin's runtime mode. It takes effect on
// the very next dispatch since the Executor reads Mode() fresh each time.
func (m *Manager) SetMode(name string, mode hook.Mode) error {
	p, err := m.registry.Get(name)
	if err != nil {
		return err
	}
	setter, ok := p.(interface{ SetMode(hook.Mode) })
	if !ok {
		return fmt.Errorf("plugin %q does not support runtime mode changes", name)
	}
	setter.SetMode(mode)
	return nil
}

// Enable is SetMode(name, enforce); callers wanting a different mode than
// enforce on re-enable should use SetMode directly.
func (m *Manager) Enable(name string) error { return m.SetMode(name, hook.ModeEnforce) }

// Disable is SetMode(name, disabled).
func (m *Manager) Disable(name string) error { return m.SetMode(name, hook.ModeDisabled) }

// Stats returns the running counters for every registered plugin that
// exposes them (i.e. embeds shared.BasePlugin). Plugins that don't are
// omitted rather than reported with zeroed stats.
func (m *Manager) Stats() []Stats {
	all := m.registry.All()
	out := make([]Stats, 0, len(all))
	for _, d := range all {
		inst, ok := d.Plugin.(instrumented)
		if !ok {
			continue
		}
		s := inst.GetStats()
		out = append(out, Stats{
			Name:              s.Name,
			Mode:              d.Plugin.Mode(),
			RequestsProcessed: s.RequestsProcessed,
			Violations:        s.Violations,
			Blocks:            s.Blocks,
			Modifications:     s.Modifications,
			Errors:            s.Errors,
			AverageLatency:    s.AverageLatency,
			LastActive:        s.LastActive,
		})
	}
	return out
}
