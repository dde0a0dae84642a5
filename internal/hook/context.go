package hook

import "time"

// GlobalContext is the immutable-per-request bag populated by the caller.
// It identifies the logical request and feeds the condition matcher.
type GlobalContext struct {
	Timestamp time.Time
	RequestID string
	User      string
	TenantID  string
	ServerID  string
}

// PluginContext is per-plugin, per-request mutable state. The Manager
// creates exactly one of these per plugin actually dispatched for a
// request; plugins correlating pre/post-hook state key their data by
// their own name inside State.
type PluginContext struct {
	Global     *GlobalContext
	State      map[string]any
	Metadata   map[string]any
	PluginName string
}

// NewPluginContext returns an empty, ready-to-use PluginContext for the
// named plugin and request.
func NewPluginContext(pluginName string, global *GlobalContext) *PluginContext {
	return &PluginContext{
		PluginName: pluginName,
		Global:     global,
		State:      make(map[string]any),
		Metadata:   make(map[string]any),
	}
}

// Table is a PluginContextTable: the map of plugin name to PluginContext
// collected for one request. It only ever contains entries for plugins
// actually dispatched — a plugin filtered out by conditions, or disabled,
// never gets a slot. Callers thread a pre-hook's table into the paired
// post-hook so a plugin can correlate its own state across the pair.
type Table struct {
	entries map[string]*PluginContext
}

// NewTable returns an empty context table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*PluginContext)}
}

// GetOrCreate returns the existing PluginContext for name, creating one
// scoped to global if none exists yet.
func (t *Table) GetOrCreate(name string, global *GlobalContext) *PluginContext {
	if pc, ok := t.entries[name]; ok {
		return pc
	}
	pc := NewPluginContext(name, global)
	t.entries[name] = pc
	return pc
}

// Get returns the PluginContext for name, if any plugin by that name was
// dispatched in this request.
func (t *Table) Get(name string) (*PluginContext, bool) {
	pc, ok := t.entries[name]
	return pc, ok
}

// Len returns the number of plugins that have a slot in the table.
func (t *Table) Len() int { return len(t.entries) }

// Names returns the plugin names that have a slot in the table, useful
// for audit logging of which plugins actually ran.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	return names
}
