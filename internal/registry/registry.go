// Package registry holds configured plugin instances, indexed by unique
// name and by the hooks each subscribes to, grounded on
// apps/backend/internal/plugins/registry.go's factory registry in the
// teacher (generalized here to index plugin instances, not factories,
// since the engine dispatches concrete Plugin values rather than
// re-creating them per request).
package registry

import (
	"context"
	"sync"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/pluginerr"
)

// entry pairs a plugin with its registration order, the tie-break for
// equal priority (spec §4.3).
type entry struct {
	plugin hook.Plugin
	order  int
}

// Registry stores plugins by unique name and maintains, per hook, the
// subset subscribed to it. Reads are lock-free-friendly (RWMutex,
// read-heavy); writes (register/unregister) are rare, happening only at
// startup or config reload.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	byHook  map[hook.Kind][]*entry
	nextOrd int
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byHook: make(map[hook.Kind][]*entry),
	}
}

// Register inserts a plugin, indexing it under every hook it subscribes
// to. It fails with a *pluginerr.DuplicateNameError if the name is
// already taken.
func (r *Registry) Register(p hook.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.byName[name]; exists {
		return &pluginerr.DuplicateNameError{Name: name}
	}

	e := &entry{plugin: p, order: r.nextOrd}
	r.nextOrd++
	r.byName[name] = e

	for _, k := range p.Hooks() {
		r.byHook[k] = append(r.byHook[k], e)
	}
	return nil
}

// Unregister removes a plugin from all indices.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.byName[name]
	if !exists {
		return &pluginerr.UnknownPluginError{Name: name}
	}
	delete(r.byName, name)

	for _, k := range e.plugin.Hooks() {
		list := r.byHook[k]
		for i, candidate := range list {
			if candidate == e {
				r.byHook[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (hook.Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.byName[name]
	if !exists {
		return nil, &pluginerr.UnknownPluginError{Name: name}
	}
	return e.plugin, nil
}

// Dispatchable is a plugin paired with its registration order, used by
// the Executor to break priority ties deterministically.
type Dispatchable struct {
	Plugin hook.Plugin
	Order  int
}

// PluginsForHook returns every plugin subscribed to k, including disabled
// ones — whether a disabled plugin is actually dispatched is decided by
// the Executor (mode==disabled is filtered at execution time, not at
// index time, so that toggling mode at runtime is observable without
// re-indexing; spec §4.1).
func (r *Registry) PluginsForHook(k hook.Kind) []Dispatchable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byHook[k]
	out := make([]Dispatchable, len(list))
	for i, e := range list {
		out[i] = Dispatchable{Plugin: e.plugin, Order: e.order}
	}
	return out
}

// All returns every registered plugin with its registration order, sorted
// by that order. Used by Registry.Shutdown and Manager.Stats, which visit
// every plugin regardless of hook subscription.
func (r *Registry) All() []Dispatchable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Dispatchable, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, Dispatchable{Plugin: e.plugin, Order: e.order})
	}
	sortByOrder(out)
	return out
}

func sortByOrder(list []Dispatchable) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].Order < list[j-1].Order; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}

// Shutdown calls Shutdown on every registered plugin in reverse
// registration order, swallowing and logging any error rather than
// aborting the sweep.
func (r *Registry) Shutdown(ctx context.Context, logger pluginerr.Logger) {
	all := r.All()
	for i := len(all) - 1; i >= 0; i-- {
		p := all[i].Plugin
		if err := p.Shutdown(ctx); err != nil && logger != nil {
			logger.Printf("plugin %q shutdown failed: %v", p.Name(), err)
		}
	}
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
