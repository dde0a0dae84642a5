// Package ratelimiter implements a tool_pre_invoke rate-limit plugin,
// grounded on apps/backend/internal/middleware/ratelimit.go in the
// teacher: ulule/limiter/v3 with a choice of in-memory or Redis-backed
// store, generalized from the teacher's per-IP HTTP middleware to a
// per-tenant-and-tool key evaluated directly (no gin.Context available
// inside a plugin, so the limiter is driven through its programmatic
// Get, not the gin adapter).
package ratelimiter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/plugins/shared"
)

// Config configures the backing store and the allowed rate.
type Config struct {
	// Rate is a ulule/limiter formatted rate string, e.g. "100-M" for 100
	// requests per minute, "10-S" for 10 per second.
	Rate string `json:"rate"`
	// RedisAddr, if non-empty, selects a Redis-backed store shared across
	// gateway instances; empty selects an in-process memory store.
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// Limiter is the rate-limit plugin.
type Limiter struct {
	*shared.BasePlugin
	limiter *limiter.Limiter
}

func New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return &Limiter{
		BasePlugin: shared.New(name, priority, mode, hooks, conditions, 0),
	}, nil
}

// Factory adapts New to hook.Factory.
type Factory struct{}

func (Factory) Kind() string { return "ratelimiter" }
func (Factory) New(name string, priority int, mode hook.Mode, hooks []hook.Kind, conditions []hook.Condition) (hook.Plugin, error) {
	return New(name, priority, mode, hooks, conditions)
}

func (l *Limiter) Initialize(ctx context.Context, raw json.RawMessage) error {
	cfg := Config{Rate: "100-M"}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("ratelimiter %q: invalid config: %w", l.Name(), err)
		}
	}

	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return fmt.Errorf("ratelimiter %q: invalid rate %q: %w", l.Name(), cfg.Rate, err)
	}

	var store limiter.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err = redisstore.NewStore(client)
		if err != nil {
			return fmt.Errorf("ratelimiter %q: redis store: %w", l.Name(), err)
		}
	} else {
		store = memorystore.NewStore()
	}

	l.limiter = limiter.New(store, rate)
	return nil
}

func (l *Limiter) ToolPreInvoke(ctx context.Context, pc *hook.PluginContext, payload *hook.ToolPayload) (*hook.Result[hook.ToolPayload], error) {
	start := time.Now()
	key := l.key(pc, payload.Name)

	state, err := l.limiter.Get(ctx, key)
	if err != nil {
		l.BasePlugin.RecordCall(false, false, true, time.Since(start))
		return nil, fmt.Errorf("ratelimiter %q: checking limit: %w", l.Name(), err)
	}

	if state.Reached {
		l.BasePlugin.RecordCall(true, false, false, time.Since(start))
		return hook.Block[hook.ToolPayload](hook.Violation{
			Reason:      "rate limit exceeded",
			Description: fmt.Sprintf("tool %q exceeded its rate limit for %s", payload.Name, key),
			Code:        "rate_limited",
			Details:     map[string]any{"limit": state.Limit, "reset": state.Reset},
		}), nil
	}

	l.BasePlugin.RecordCall(false, false, false, time.Since(start))
	return hook.PassThrough[hook.ToolPayload](), nil
}

// key scopes the rate limit to tenant+tool so one tenant hammering a tool
// can't exhaust another tenant's budget for the same tool.
func (l *Limiter) key(pc *hook.PluginContext, toolName string) string {
	tenant := "unknown"
	if pc.Global != nil && pc.Global.TenantID != "" {
		tenant = pc.Global.TenantID
	}
	return fmt.Sprintf("%s:%s:%s", l.Name(), tenant, toolName)
}
