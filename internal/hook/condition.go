package hook

// Condition is a conjunction of optional membership/pattern fields. A
// plugin's condition list is OR-combined: the plugin matches a request if
// ANY condition in its list matches, and a plugin with an empty list
// matches everything. Matching itself is implemented in package matcher,
// which keeps this type a pure data holder.
type Condition struct {
	ServerIDs    []string
	TenantIDs    []string
	Tools        []string
	Prompts      []string
	Resources    []string
	UserPatterns []string
	ContentTypes []string
}

// Target carries the hook-specific identifier a Condition is matched
// against: the tool/prompt/resource name for hooks where one is
// meaningful, plus the payload's declared content type. Fields that don't
// apply to a given hook are left zero-valued; a populated Condition field
// with no corresponding Target value is a non-match (spec: "unrecognized
// target types are treated as non-match").
type Target struct {
	Tool        string
	Prompt      string
	Resource    string
	ContentType string
}
