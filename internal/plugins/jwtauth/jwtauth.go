// Package jwtauth implements the http_auth_resolve_user and
// http_auth_check_permission hooks, grounded on
// apps/backend/internal/auth/jwt.go in the teacher: HS256 claims carrying
// user/tenant/role, signed and parsed with golang-jwt/v5. Static API keys
// (configured as bcrypt hashes rather than plaintext, following the
// teacher's password-hashing convention elsewhere in its auth package)
// are accepted as a second credential form alongside bearer JWTs.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/plugins/shared"
)

// Claims is the JWT payload this plugin issues and verifies.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// APIKey pairs a key ID with its bcrypt hash and the identity it resolves
// to, so a raw key is never stored in config.
type APIKey struct {
	KeyID        string `json:"key_id"`
	HashedSecret string `json:"hashed_secret"`
	UserID       string `json:"user_id"`
	TenantID     string `json:"tenant_id"`
	Role         string `json:"role"`
}

// Config is the JSON config blob a jwtauth plugin is constructed with.
type Config struct {
	Secret string   `json:"secret"`
	APIKeys []APIKey `json:"api_keys"`
	// RolePermissions maps a role to the set of "resource:action" strings
	// it's allowed to perform.
	RolePermissions map[string][]string `json:"role_permissions"`
}

// Auth is the JWT/API-key authentication and authorization plugin.
type Auth struct {
	*shared.BasePlugin
	secret          []byte
	apiKeys         map[string]APIKey
	rolePermissions map[string]map[string]bool
}

func New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return &Auth{
		BasePlugin: shared.New(name, priority, mode, hooks, conditions, 0),
		apiKeys:    map[string]APIKey{},
	}, nil
}

// Factory adapts New to hook.Factory.
type Factory struct{}

func (Factory) Kind() string { return "jwtauth" }
func (Factory) New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return New(name, priority, mode, hooks, conditions)
}

func (a *Auth) Initialize(ctx context.Context, raw json.RawMessage) error {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("jwtauth %q: invalid config: %w", a.Name(), err)
		}
	}
	if cfg.Secret == "" {
		return fmt.Errorf("jwtauth %q: secret must not be empty", a.Name())
	}
	a.secret = []byte(cfg.Secret)

	for _, k := range cfg.APIKeys {
		a.apiKeys[k.KeyID] = k
	}

	a.rolePermissions = make(map[string]map[string]bool, len(cfg.RolePermissions))
	for role, perms := range cfg.RolePermissions {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		a.rolePermissions[role] = set
	}
	return nil
}

// AuthResolveUser accepts either a signed JWT (three dot-separated
// segments) or a "key_id.secret" API key pair, resolving either to an
// AuthenticatedUser. A token matching neither form, or failing
// verification, leaves the payload unmodified so a later plugin in the
// chain can still resolve it.
func (a *Auth) AuthResolveUser(ctx context.Context, pc *hook.PluginContext, payload *hook.AuthResolvePayload) (*hook.Result[hook.AuthResolvePayload], error) {
	start := time.Now()

	if user, ok := a.resolveJWT(payload.Token); ok {
		a.BasePlugin.RecordCall(false, true, false, time.Since(start))
		out := *payload
		out.User = user
		return hook.Modify(out, nil), nil
	}

	if user, ok := a.resolveAPIKey(payload.Token); ok {
		a.BasePlugin.RecordCall(false, true, false, time.Since(start))
		out := *payload
		out.User = user
		return hook.Modify(out, nil), nil
	}

	a.BasePlugin.RecordCall(false, false, false, time.Since(start))
	return hook.PassThrough[hook.AuthResolvePayload](), nil
}

func (a *Auth) resolveJWT(token string) (*hook.AuthenticatedUser, bool) {
	if strings.Count(token, ".") != 2 {
		return nil, false
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, false
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, false
	}

	return &hook.AuthenticatedUser{ID: claims.UserID, TenantID: claims.TenantID, Role: claims.Role}, true
}

func (a *Auth) resolveAPIKey(token string) (*hook.AuthenticatedUser, bool) {
	keyID, secret, found := strings.Cut(token, ".")
	if !found {
		return nil, false
	}
	key, ok := a.apiKeys[keyID]
	if !ok {
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.HashedSecret), []byte(secret)); err != nil {
		return nil, false
	}
	return &hook.AuthenticatedUser{ID: key.UserID, TenantID: key.TenantID, Role: key.Role}, true
}

// AuthCheckPermission authorizes payload.User for "Resource:Action" using
// the role-permission map from config. A nil User or an unrecognized role
// is always denied rather than defaulting open.
func (a *Auth) AuthCheckPermission(ctx context.Context, pc *hook.PluginContext, payload *hook.AuthPermissionPayload) (*hook.Result[hook.AuthPermissionPayload], error) {
	start := time.Now()

	if payload.User == nil {
		a.BasePlugin.RecordCall(true, false, false, time.Since(start))
		return hook.Block[hook.AuthPermissionPayload](hook.Violation{
			Reason:      "no authenticated user",
			Description: "permission check requires a resolved user",
			Code:        "unauthenticated",
		}), nil
	}

	perms, ok := a.rolePermissions[payload.User.Role]
	allowed := ok && perms[payload.Resource+":"+payload.Action]

	if !allowed {
		a.BasePlugin.RecordCall(true, false, false, time.Since(start))
		return hook.Block[hook.AuthPermissionPayload](hook.Violation{
			Reason:      "permission denied",
			Description: fmt.Sprintf("role %q may not %s on %s", payload.User.Role, payload.Action, payload.Resource),
			Code:        "forbidden",
		}), nil
	}

	a.BasePlugin.RecordCall(false, true, false, time.Since(start))
	out := *payload
	out.Allowed = true
	return hook.Modify(out, nil), nil
}

// HashAPIKeySecret hashes a plaintext API key secret for storage in
// Config.APIKeys, mirroring how an operator would seed api_keys without
// ever writing the plaintext to the config file.
func HashAPIKeySecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.New("hashing api key secret: " + err.Error())
	}
	return string(hashed), nil
}
