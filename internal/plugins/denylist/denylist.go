// Package denylist implements a set-membership blocking plugin: it never
// modifies a payload, only blocks tool invocations, resource fetches, or
// prompt fetches whose name/URI appears on a configured deny list.
// Grounded on
// apps/backend/internal/plugins/content_filters/resource/resource.go in
// the teacher, which plays the same
// "SupportsModification: false, SupportsBlocking: true" role for URIs;
// generalized here from domains/protocols to arbitrary tool/prompt/
// resource identifiers.
package denylist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/plugins/shared"
)

// Config lists the identifiers this plugin refuses, by hook target kind.
type Config struct {
	Tools     []string `json:"tools"`
	Prompts   []string `json:"prompts"`
	Resources []string `json:"resources"`
}

// List is the denylist plugin.
type List struct {
	*shared.BasePlugin
	tools     map[string]bool
	prompts   map[string]bool
	resources map[string]bool
}

func New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return &List{
		BasePlugin: shared.New(name, priority, mode, hooks, conditions, 0),
		tools:      map[string]bool{},
		prompts:    map[string]bool{},
		resources:  map[string]bool{},
	}, nil
}

// Factory adapts New to hook.Factory.
type Factory struct{}

func (Factory) Kind() string { return "denylist" }
func (Factory) New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return New(name, priority, mode, hooks, conditions)
}

func (l *List) Initialize(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("denylist %q: invalid config: %w", l.Name(), err)
	}
	for _, t := range cfg.Tools {
		l.tools[t] = true
	}
	for _, p := range cfg.Prompts {
		l.prompts[p] = true
	}
	for _, r := range cfg.Resources {
		l.resources[r] = true
	}
	return nil
}

func (l *List) violation(kind, name string) hook.Violation {
	reason := fmt.Sprintf("%s %q is on the deny list", kind, name)
	return hook.Violation{
		Reason:      reason,
		Description: reason,
		Code:        "denylisted",
		Details:     map[string]any{"kind": kind, "name": name},
	}
}

func (l *List) PromptPreFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	start := time.Now()
	if l.prompts[payload.Name] {
		l.BasePlugin.RecordCall(true, false, false, time.Since(start))
		return hook.Block[hook.PromptPayload](l.violation("prompt", payload.Name)), nil
	}
	l.BasePlugin.RecordCall(false, false, false, time.Since(start))
	return hook.PassThrough[hook.PromptPayload](), nil
}

func (l *List) ToolPreInvoke(ctx context.Context, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	start := time.Now()
	if l.tools[payload.Name] {
		l.BasePlugin.RecordCall(true, false, false, time.Since(start))
		return hook.Block[hook.ToolPayload](l.violation("tool", payload.Name)), nil
	}
	l.BasePlugin.RecordCall(false, false, false, time.Since(start))
	return hook.PassThrough[hook.ToolPayload](), nil
}

func (l *List) ResourcePreFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	start := time.Now()
	if l.resources[payload.URI] {
		l.BasePlugin.RecordCall(true, false, false, time.Since(start))
		return hook.Block[hook.ResourcePayload](l.violation("resource", payload.URI)), nil
	}
	l.BasePlugin.RecordCall(false, false, false, time.Since(start))
	return hook.PassThrough[hook.ResourcePayload](), nil
}
