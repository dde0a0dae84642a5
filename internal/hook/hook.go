// Package hook defines the fixed, closed set of hook points the plugin
// execution engine dispatches to, and the data model that flows through
// them: global/per-plugin context, conditions, results and violations.
package hook

// Kind identifies one of the twelve fixed hook points a plugin may
// subscribe to. The set is closed: dispatch is by explicit enum value,
// never by probing plugin methods at runtime.
type Kind string

const (
	PromptPreFetch  Kind = "prompt_pre_fetch"
	PromptPostFetch Kind = "prompt_post_fetch"

	ToolPreInvoke  Kind = "tool_pre_invoke"
	ToolPostInvoke Kind = "tool_post_invoke"

	ResourcePreFetch  Kind = "resource_pre_fetch"
	ResourcePostFetch Kind = "resource_post_fetch"

	HTTPPreRequest  Kind = "http_pre_request"
	HTTPPostRequest Kind = "http_post_request"

	HTTPAuthResolveUser      Kind = "http_auth_resolve_user"
	HTTPAuthCheckPermission  Kind = "http_auth_check_permission"

	Startup  Kind = "startup"
	Shutdown Kind = "shutdown"
)

// All enumerates every hook kind, pre/post pairs first. Used by config
// validation to reject unknown hook names.
var All = []Kind{
	PromptPreFetch, PromptPostFetch,
	ToolPreInvoke, ToolPostInvoke,
	ResourcePreFetch, ResourcePostFetch,
	HTTPPreRequest, HTTPPostRequest,
	HTTPAuthResolveUser, HTTPAuthCheckPermission,
	Startup, Shutdown,
}

// IsValid reports whether k is one of the twelve fixed hook kinds.
func (k Kind) IsValid() bool {
	for _, v := range All {
		if v == k {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }
