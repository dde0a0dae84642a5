// Package matcher implements the pure condition-matching function the
// Executor uses to decide whether a given plugin sees a given hook
// invocation.
package matcher

import (
	"fmt"
	"path"

	"github.com/latchmesh/pluginchain/internal/hook"
)

// Matches reports whether the plugin's condition list matches the
// request's global context and hook target. An empty condition list
// matches everything; a non-empty list matches if ANY condition matches.
func Matches(conditions []hook.Condition, global *hook.GlobalContext, target hook.Target) bool {
	if len(conditions) == 0 {
		return true
	}
	for _, c := range conditions {
		if matchesOne(c, global, target) {
			return true
		}
	}
	return false
}

// matchesOne reports whether every populated field of c matches.
func matchesOne(c hook.Condition, global *hook.GlobalContext, target hook.Target) bool {
	if len(c.ServerIDs) > 0 && !contains(c.ServerIDs, global.ServerID) {
		return false
	}
	if len(c.TenantIDs) > 0 && !contains(c.TenantIDs, global.TenantID) {
		return false
	}
	if len(c.Tools) > 0 && !contains(c.Tools, target.Tool) {
		return false
	}
	if len(c.Prompts) > 0 && !contains(c.Prompts, target.Prompt) {
		return false
	}
	if len(c.Resources) > 0 && !contains(c.Resources, target.Resource) {
		return false
	}
	if len(c.UserPatterns) > 0 && !matchesAnyPattern(c.UserPatterns, global.User) {
		return false
	}
	if len(c.ContentTypes) > 0 && !contains(c.ContentTypes, target.ContentType) {
		return false
	}
	return true
}

func contains(set []string, value string) bool {
	if value == "" {
		return false
	}
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// matchesAnyPattern matches user against each glob pattern using
// path.Match semantics (the chosen resolution of spec.md's open question
// on user_patterns syntax: shell-style glob, not regex or substring).
func matchesAnyPattern(patterns []string, user string) bool {
	if user == "" {
		return false
	}
	for _, p := range patterns {
		if ok, _ := path.Match(p, user); ok {
			return true
		}
	}
	return false
}

// ValidatePattern reports whether p is a syntactically valid glob
// pattern. Config loading rejects plugin conditions with an invalid
// pattern at load time rather than at match time.
func ValidatePattern(p string) error {
	if _, err := path.Match(p, ""); err != nil {
		return fmt.Errorf("invalid user_pattern %q: %w", p, err)
	}
	return nil
}

// TargetFor derives the hook.Target fields meaningful for k from the
// payload's declared name/content type. Callers of the generic Executor
// pass an already-built Target since they know the concrete payload type;
// this helper is used by the Manager to build one for common cases.
func TargetFor(k hook.Kind, name, contentType string) hook.Target {
	t := hook.Target{ContentType: contentType}
	switch k {
	case hook.PromptPreFetch, hook.PromptPostFetch:
		t.Prompt = name
	case hook.ToolPreInvoke, hook.ToolPostInvoke:
		t.Tool = name
	case hook.ResourcePreFetch, hook.ResourcePostFetch:
		t.Resource = name
	}
	return t
}
