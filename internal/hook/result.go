package hook

// Mode is the per-plugin execution policy controlling how violations and
// technical errors from that plugin surface to the caller (spec §4.3).
type Mode string

const (
	// ModeEnforce stops the pipeline on both violations and technical
	// errors: a violation is returned in the final Result, a technical
	// error surfaces as a failed hook invocation.
	ModeEnforce Mode = "enforce"
	// ModeEnforceIgnoreError stops the pipeline and surfaces violations,
	// but logs-and-continues on a technical error.
	ModeEnforceIgnoreError Mode = "enforce_ignore_error"
	// ModePermissive logs and continues on both violations and technical
	// errors; its violations never block the pipeline.
	ModePermissive Mode = "permissive"
	// ModeDisabled means the plugin is held in the registry but never
	// dispatched.
	ModeDisabled Mode = "disabled"
)

// IsValid reports whether m is one of the four defined modes.
func (m Mode) IsValid() bool {
	switch m {
	case ModeEnforce, ModeEnforceIgnoreError, ModePermissive, ModeDisabled:
		return true
	default:
		return false
	}
}

func (m Mode) String() string { return string(m) }

// Violation is a policy-block detail raised by a plugin. PluginName is
// always set by the Executor, overwriting whatever value (if any) the
// plugin supplied — this is an invariant, not a convenience default.
type Violation struct {
	Details     map[string]any
	Reason      string
	Description string
	Code        string
	PluginName  string
}

// Result is returned by every hook invocation. ModifiedPayload, when
// non-nil, replaces the pipeline's current payload for all downstream
// plugins; the payload type going in and coming out of a given hook is
// always identical, enforced by this generic parameter.
type Result[T any] struct {
	ModifiedPayload    *T
	Violation          *Violation
	Metadata           map[string]any
	ContinueProcessing bool
}

// PassThrough returns the default result: continue processing, no
// modification, no violation. Every hook method on BasePlugin returns
// this unless overridden.
func PassThrough[T any]() *Result[T] {
	return &Result[T]{ContinueProcessing: true}
}

// Block returns a result that stops the pipeline with the given
// violation. The Executor, not the caller, is responsible for stamping
// Violation.PluginName.
func Block[T any](v Violation) *Result[T] {
	return &Result[T]{ContinueProcessing: false, Violation: &v}
}

// Modify returns a result that replaces the payload for downstream
// plugins while allowing the pipeline to continue.
func Modify[T any](payload T, metadata map[string]any) *Result[T] {
	return &Result[T]{ContinueProcessing: true, ModifiedPayload: &payload, Metadata: metadata}
}
