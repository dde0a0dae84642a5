// Package regexmatch implements a pattern-based content filter plugin,
// grounded on
// apps/backend/internal/plugins/content_filters/regex/regex.go in the
// teacher: a list of named regex rules, each independently enabled, with
// a per-rule action (replace/block/warn/audit) plus a filter-level
// default action applied when a match isn't individually blocking.
package regexmatch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/plugins/shared"
)

// Rule is one configured pattern match, mirroring the teacher's Rule/
// RegexRule split between config shape and compiled form.
type Rule struct {
	Name        string `json:"name"`
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Action      string `json:"action"` // replace, block, warn, audit
	Enabled     bool   `json:"enabled"`
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// Config is the JSON config blob a regexmatch plugin is constructed with.
type Config struct {
	Rules         []Rule `json:"rules"`
	DefaultAction string `json:"default_action"`
}

// Filter is the regex content filter plugin.
type Filter struct {
	*shared.BasePlugin
	rules         []compiledRule
	defaultAction string
}

// New constructs a Filter with no rules configured; Initialize parses the
// real rule set from config.
func New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return &Filter{
		BasePlugin:    shared.New(name, priority, mode, hooks, conditions, 0),
		defaultAction: "warn",
	}, nil
}

// Factory adapts New to hook.Factory so the Manager can construct this
// plugin kind from config.
type Factory struct{}

func (Factory) Kind() string { return "regex" }
func (Factory) New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return New(name, priority, mode, hooks, conditions)
}

func (f *Filter) Initialize(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("regexmatch %q: invalid config: %w", f.Name(), err)
	}
	if cfg.DefaultAction != "" {
		f.defaultAction = cfg.DefaultAction
	}

	compiled := make([]compiledRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !r.Enabled || r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("regexmatch %q: rule %q: invalid pattern: %w", f.Name(), r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, pattern: re})
	}
	f.rules = compiled
	return nil
}

// scanResult is the outcome of running every rule against one string.
type scanResult struct {
	text      string
	reason    string
	hits      int
	blocked   bool
	modified  bool
}

func (f *Filter) scan(text string) scanResult {
	out := scanResult{text: text}
	for _, r := range f.rules {
		matches := r.pattern.FindAllString(out.text, -1)
		if len(matches) == 0 {
			continue
		}
		out.hits += len(matches)

		switch r.Action {
		case "replace":
			if r.Replacement != "" {
				out.text = r.pattern.ReplaceAllString(out.text, r.Replacement)
				out.modified = true
			}
		case "block":
			out.blocked = true
			out.reason = fmt.Sprintf("blocked by rule %q (%d matches)", r.Name, len(matches))
		}
	}

	if !out.blocked && out.hits > 0 && f.defaultAction == "block" {
		out.blocked = true
		out.reason = fmt.Sprintf("%d regex matches found, default action is block", out.hits)
	}
	return out
}

func (f *Filter) violation(reason string) hook.Violation {
	return hook.Violation{
		Reason:      reason,
		Description: reason,
		Code:        "regex_match_blocked",
	}
}

func (f *Filter) record(start time.Time, blocked, modified bool) {
	f.BasePlugin.RecordCall(blocked, modified, false, time.Since(start))
}

func (f *Filter) PromptPreFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	start := time.Now()
	for _, m := range payload.Messages {
		r := f.scan(m.Content)
		if r.blocked {
			f.record(start, true, false)
			return hook.Block[hook.PromptPayload](f.violation(r.reason)), nil
		}
	}
	f.record(start, false, false)
	return hook.PassThrough[hook.PromptPayload](), nil
}

func (f *Filter) PromptPostFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.PromptPayload) (*hook.Result[hook.PromptPayload], error) {
	start := time.Now()
	modified := false
	out := *payload
	out.Messages = make([]hook.PromptMessage, len(payload.Messages))
	for i, m := range payload.Messages {
		r := f.scan(m.Content)
		if r.blocked {
			f.record(start, true, false)
			return hook.Block[hook.PromptPayload](f.violation(r.reason)), nil
		}
		if r.modified {
			modified = true
		}
		out.Messages[i] = hook.PromptMessage{Role: m.Role, Content: r.text}
	}
	f.record(start, false, modified)
	if !modified {
		return hook.PassThrough[hook.PromptPayload](), nil
	}
	return hook.Modify(out, nil), nil
}

func (f *Filter) ToolPostInvoke(ctx context.Context, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	start := time.Now()
	text, ok := payload.Result.(string)
	if !ok {
		f.record(start, false, false)
		return hook.PassThrough[hook.ToolPayload](), nil
	}
	r := f.scan(text)
	if r.blocked {
		f.record(start, true, false)
		return hook.Block[hook.ToolPayload](f.violation(r.reason)), nil
	}
	if !r.modified {
		f.record(start, false, false)
		return hook.PassThrough[hook.ToolPayload](), nil
	}
	out := *payload
	out.Result = r.text
	f.record(start, false, true)
	return hook.Modify(out, nil), nil
}

func (f *Filter) ResourcePostFetch(ctx context.Context, pc *hook.PluginContext, payload *hook.ResourcePayload) (*hook.Result[hook.ResourcePayload], error) {
	start := time.Now()
	r := f.scan(string(payload.Content))
	if r.blocked {
		f.record(start, true, false)
		return hook.Block[hook.ResourcePayload](f.violation(r.reason)), nil
	}
	if !r.modified {
		f.record(start, false, false)
		return hook.PassThrough[hook.ResourcePayload](), nil
	}
	out := *payload
	out.Content = []byte(r.text)
	f.record(start, false, true)
	return hook.Modify(out, nil), nil
}
