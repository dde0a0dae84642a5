// Package executor implements the heart of the plugin engine: running one
// hook across a filtered, priority-sorted plugin list under timeout and
// payload-size guards, merging results per the mode matrix of spec.md
// §4.3. The timeout/cancellation shape is grounded on the teacher's
// apps/backend/internal/middleware/timeout.go (context.WithTimeout plus a
// goroutine + select, generalized from an HTTP middleware to a single
// plugin call).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/matcher"
	"github.com/latchmesh/pluginchain/internal/pluginerr"
	"github.com/latchmesh/pluginchain/internal/registry"
)

// Config holds the global defaults the Executor enforces absent a
// per-plugin override.
type Config struct {
	// DefaultTimeout bounds every plugin call unless the plugin declares
	// its own override.
	DefaultTimeout time.Duration
	// MaxPayloadSize is the serialized-byte-length ceiling checked before
	// any plugin runs and after every modification.
	MaxPayloadSize int
	// FailOnPluginError upgrades any technical error, in any non-disabled
	// mode, to a hard stop. It never affects violation handling.
	FailOnPluginError bool
}

// DefaultConfig matches spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		MaxPayloadSize: 1 << 20, // 1 MiB
	}
}

// Call is the hook-specific thunk that invokes the right method on a
// Plugin for payload type T. The Manager supplies one per hook so the
// Executor never needs reflection to pick a method.
type Call[T any] func(ctx context.Context, p hook.Plugin, pc *hook.PluginContext, payload *T) (*hook.Result[T], error)

// Execute runs hookKind across plugins in priority order against payload,
// returning the final aggregate result; table gains a PluginContext for
// every plugin actually dispatched.
func Execute[T any](
	ctx context.Context,
	hookKind hook.Kind,
	plugins []registry.Dispatchable,
	payload *T,
	global *hook.GlobalContext,
	table *hook.Table,
	target hook.Target,
	call Call[T],
	cfg Config,
	logger pluginerr.Logger,
) (*hook.Result[T], error) {
	candidates := filterAndSort(plugins, global, target)

	if err := checkSize(*payload, cfg.MaxPayloadSize, ""); err != nil {
		return nil, err
	}

	final := hook.PassThrough[T]()
	current := payload

	for _, d := range candidates {
		p := d.Plugin
		pc := table.GetOrCreate(p.Name(), global)

		timeout := cfg.DefaultTimeout
		if override, ok := p.TimeoutOverride(); ok {
			timeout = override
		}

		result, err := runWithTimeout(ctx, timeout, func(ctx context.Context) (*hook.Result[T], error) {
			return call(ctx, p, pc, current)
		})

		if err != nil {
			stop, violation, surfaced := classifyAndHandle(err, hookKind, p.Name(), p.Mode(), cfg.FailOnPluginError, logger)
			if surfaced != nil {
				return nil, surfaced
			}
			if stop {
				if violation != nil {
					final.Violation = violation
					final.ContinueProcessing = false
				}
				break
			}
			continue
		}

		if result.Violation != nil {
			result.Violation.PluginName = p.Name()
			stop, surfaced := handleViolation(*result.Violation, p.Mode(), logger)
			if surfaced != nil {
				return nil, surfaced
			}
			if stop {
				final.Violation = result.Violation
				final.ContinueProcessing = false
				break
			}
			// Permissive: logged and continued. A plugin cannot both
			// block and mutate in the same call, so any ModifiedPayload
			// accompanying a violation is discarded.
			mergeMetadata(pc, result.Metadata)
			continue
		}

		if result.ModifiedPayload != nil {
			if err := checkSize(*result.ModifiedPayload, cfg.MaxPayloadSize, p.Name()); err != nil {
				stop, violation, surfaced := classifyAndHandle(err, hookKind, p.Name(), p.Mode(), cfg.FailOnPluginError, logger)
				if surfaced != nil {
					return nil, surfaced
				}
				if stop {
					if violation != nil {
						final.Violation = violation
						final.ContinueProcessing = false
					}
					break
				}
				continue
			}
			current = result.ModifiedPayload
			final.ModifiedPayload = current
		}

		mergeMetadata(pc, result.Metadata)
		final.ContinueProcessing = result.ContinueProcessing

		if !result.ContinueProcessing {
			break
		}
	}

	return final, nil
}

func mergeMetadata(pc *hook.PluginContext, metadata map[string]any) {
	for k, v := range metadata {
		pc.Metadata[k] = v
	}
}

// filterAndSort drops disabled plugins and those whose conditions don't
// match, then sorts the remainder by (priority, registration order).
func filterAndSort(plugins []registry.Dispatchable, global *hook.GlobalContext, target hook.Target) []registry.Dispatchable {
	out := make([]registry.Dispatchable, 0, len(plugins))
	for _, d := range plugins {
		if d.Plugin.Mode() == hook.ModeDisabled {
			continue
		}
		if !matcher.Matches(d.Plugin.Conditions(), global, target) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Plugin.Priority(), out[j].Plugin.Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Order < out[j].Order
	})
	return out
}

func checkSize[T any](payload T, limit int, modifyingPlugin string) error {
	if limit <= 0 {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to estimate payload size: %w", err)
	}
	if len(b) > limit {
		return &pluginerr.PayloadTooLargeError{Plugin: modifyingPlugin, Size: len(b), Limit: limit}
	}
	return nil
}

// runWithTimeout bounds a single plugin call, translating a timed-out or
// cancelled context into a *pluginerr.TimeoutError. Suspension happens
// inside fn; the Executor introduces no further suspension between
// plugins.
func runWithTimeout[T any](parent context.Context, timeout time.Duration, fn func(context.Context) (*hook.Result[T], error)) (*hook.Result[T], error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type outcome struct {
		result *hook.Result[T]
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		r, err := fn(ctx)
		done <- outcome{result: r, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classifyAndHandle turns a plugin call's error into a timeout, internal,
// or violation outcome and applies the mode rule. It returns stop=true
// when the pipeline should halt without a Go error (the outcome is
// reported to the caller as a final result, not a failure) — in which
// case a non-nil violation must be merged into the final result by the
// caller; it returns a non-nil error when the technical error must
// surface as a failed hook invocation.
func classifyAndHandle(err error, hookKind hook.Kind, pluginName string, mode hook.Mode, failOnPluginError bool, logger pluginerr.Logger) (stop bool, violation *hook.Violation, surfaced error) {
	if ve, ok := err.(*pluginerr.ViolationError); ok {
		v := hook.Violation{
			PluginName:  pluginName,
			Reason:      ve.Reason,
			Description: ve.Description,
			Code:        ve.Code,
			Details:     ve.Details,
		}
		stop, surfaced := handleViolation(v, mode, logger)
		if stop {
			return true, &v, surfaced
		}
		return false, nil, surfaced
	}

	var classified error
	if err == context.DeadlineExceeded || err == context.Canceled {
		classified = &pluginerr.TimeoutError{Plugin: pluginName, Hook: string(hookKind)}
	} else {
		classified = &pluginerr.InternalError{Plugin: pluginName, Hook: string(hookKind), Cause: err}
	}

	effectiveMode := mode
	if failOnPluginError && mode != hook.ModeDisabled {
		effectiveMode = hook.ModeEnforce
	}

	switch effectiveMode {
	case hook.ModeEnforce:
		return true, nil, classified
	case hook.ModeEnforceIgnoreError, hook.ModePermissive:
		if logger != nil {
			logger.Printf("plugin %q: %v (continuing, mode=%s)", pluginName, classified, mode)
		}
		return false, nil, nil
	default:
		return true, nil, classified
	}
}

// handleViolation applies the mode rule for a violation outcome: a hard
// stop in every mode except permissive, which logs and continues.
func handleViolation(v hook.Violation, mode hook.Mode, logger pluginerr.Logger) (stop bool, surfaced error) {
	if mode == hook.ModePermissive {
		if logger != nil {
			logger.Printf("plugin %q: violation %s (%s) logged, continuing (permissive)", v.PluginName, v.Code, v.Description)
		}
		return false, nil
	}
	return true, nil
}
