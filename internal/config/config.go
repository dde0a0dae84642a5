// Package config loads the engine's YAML configuration, grounded on
// apps/backend/internal/config/config.go in the teacher: the same
// load-then-expand-${VAR:-default}-then-unmarshal shape, generalized from
// the gateway's own sections to the plugin chain's settings and plugin
// list.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/matcher"
)

// Settings holds the engine-wide defaults every plugin falls back to
// absent its own override (spec.md §6).
type Settings struct {
	FailOnPluginError bool          `yaml:"fail_on_plugin_error"`
	PluginTimeout     time.Duration `yaml:"plugin_timeout"`
	MaxPayloadSize    int           `yaml:"max_payload_size"`
}

// ConditionSpec is the YAML shape of hook.Condition.
type ConditionSpec struct {
	ServerIDs    []string `yaml:"server_ids"`
	TenantIDs    []string `yaml:"tenant_ids"`
	Tools        []string `yaml:"tools"`
	Prompts      []string `yaml:"prompts"`
	Resources    []string `yaml:"resources"`
	UserPatterns []string `yaml:"user_patterns"`
	ContentTypes []string `yaml:"content_types"`
}

func (c ConditionSpec) toCondition() hook.Condition {
	return hook.Condition{
		ServerIDs:    c.ServerIDs,
		TenantIDs:    c.TenantIDs,
		Tools:        c.Tools,
		Prompts:      c.Prompts,
		Resources:    c.Resources,
		UserPatterns: c.UserPatterns,
		ContentTypes: c.ContentTypes,
	}
}

// PluginSpec is one entry of the plugins list: enough to construct and
// register a plugin instance via its Factory.
type PluginSpec struct {
	// Config is the entry's config mapping, re-encoded as JSON by
	// UnmarshalYAML.
	Config     json.RawMessage `yaml:"-"`
	Name       string          `yaml:"name"`
	Kind       string          `yaml:"kind"`
	Mode       hook.Mode       `yaml:"mode"`
	Priority   int             `yaml:"priority"`
	Hooks      []hook.Kind     `yaml:"hooks"`
	Conditions []ConditionSpec `yaml:"conditions"`
	// Timeout is parsed and persisted with the spec, but Manager.Initialize
	// does not apply it: Factory.New takes no timeout, so every plugin
	// runs under Settings.PluginTimeout.
	Timeout time.Duration `yaml:"timeout"`
}

// UnmarshalYAML decodes one plugins entry, re-encoding its config mapping
// as JSON so Config holds the blob the plugin's Initialize parses.
func (s *PluginSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain PluginSpec
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	var raw struct {
		Config any `yaml:"config"`
	}
	if err := n.Decode(&raw); err != nil || raw.Config == nil {
		return err
	}
	var err error
	s.Config, err = json.Marshal(raw.Config)
	return err
}

// HookConditions converts the YAML condition specs to hook.Condition values.
func (s PluginSpec) HookConditions() []hook.Condition {
	out := make([]hook.Condition, len(s.Conditions))
	for i, c := range s.Conditions {
		out[i] = c.toCondition()
	}
	return out
}

// Validate checks a plugin spec against the engine's closed hook set and
// glob syntax before it's ever handed to a Factory.
func (s PluginSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("plugin spec missing name")
	}
	if !s.Mode.IsValid() {
		return fmt.Errorf("plugin %q: invalid mode %q", s.Name, s.Mode)
	}
	if len(s.Hooks) == 0 {
		return fmt.Errorf("plugin %q: must subscribe to at least one hook", s.Name)
	}
	for _, h := range s.Hooks {
		if !h.IsValid() {
			return fmt.Errorf("plugin %q: unknown hook %q", s.Name, h)
		}
	}
	for _, c := range s.Conditions {
		for _, p := range c.UserPatterns {
			if err := matcher.ValidatePattern(p); err != nil {
				return fmt.Errorf("plugin %q: %w", s.Name, err)
			}
		}
	}
	return nil
}

// Config is the top-level engine configuration.
type Config struct {
	Settings Settings     `yaml:"plugin_settings"`
	Plugins  []PluginSpec `yaml:"plugins"`
}

// Load reads and parses the YAML file at path, expanding ${VAR:-default}
// references against the process environment before unmarshalling, and
// validates every plugin spec.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Settings.PluginTimeout == 0 {
		cfg.Settings.PluginTimeout = 30 * time.Second
	}
	if cfg.Settings.MaxPayloadSize == 0 {
		cfg.Settings.MaxPayloadSize = 1 << 20
	}

	seen := make(map[string]bool, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate plugin name %q in config", p.Name)
		}
		seen[p.Name] = true
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} and ${VAR:-default} references against the
// process environment, matching the teacher's convention.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varExpr := match[2 : len(match)-1]

		if strings.Contains(varExpr, ":-") {
			parts := strings.SplitN(varExpr, ":-", 2)
			if value := os.Getenv(parts[0]); value != "" {
				return value
			}
			return parts[1]
		}

		return os.Getenv(varExpr)
	})
}
