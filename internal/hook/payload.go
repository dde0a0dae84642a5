package hook

// PromptPayload carries a prompt-template request/response. Arguments is
// populated on the pre-fetch hook; Messages is populated by the time the
// post-fetch hook sees it.
type PromptPayload struct {
	Arguments   map[string]any
	Name        string
	ContentType string
	Messages    []PromptMessage
}

// PromptMessage is one rendered message of a fetched prompt.
type PromptMessage struct {
	Role    string
	Content string
}

// ToolPayload carries a tool invocation request/response.
type ToolPayload struct {
	Arguments   map[string]any
	Name        string
	ContentType string
	Result      any
	IsError     bool
}

// ResourcePayload carries a resource fetch request/response.
type ResourcePayload struct {
	URI         string
	MimeType    string
	ContentType string
	Content     []byte
}

// HTTPPayload carries an HTTP boundary event (inbound request or
// outbound response) around the gateway's reverse-proxy path.
type HTTPPayload struct {
	Headers     map[string][]string
	Method      string
	Path        string
	ContentType string
	Body        []byte
	StatusCode  int
}

// AuthenticatedUser is the identity a resolve-user hook establishes and a
// check-permission hook authorizes.
type AuthenticatedUser struct {
	ID       string
	TenantID string
	Role     string
}

// AuthResolvePayload carries the bearer credential in and the resolved
// user out of http_auth_resolve_user.
type AuthResolvePayload struct {
	Token string
	User  *AuthenticatedUser
}

// AuthPermissionPayload carries the resource/action being authorized and
// the resulting decision for http_auth_check_permission.
type AuthPermissionPayload struct {
	User     *AuthenticatedUser
	Resource string
	Action   string
	Allowed  bool
}

// LifecyclePayload is the degenerate payload for the engine-internal
// startup/shutdown hooks: there is no request data to carry, only a
// human-readable reason plugins can log against.
type LifecyclePayload struct {
	Reason string
}
