package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/latchmesh/pluginchain/internal/config"
	"github.com/latchmesh/pluginchain/internal/hook"
)

// PluginConfigStore persists the config.PluginSpec list so the engine's
// plugin roster can be edited and reloaded without redeploying a YAML
// file, complementing the static config.Load path used at startup.
type PluginConfigStore struct {
	db *sqlx.DB
}

func NewPluginConfigStore(db *sqlx.DB) *PluginConfigStore {
	return &PluginConfigStore{db: db}
}

// Upsert inserts or replaces the persisted row for spec.Name.
func (s *PluginConfigStore) Upsert(ctx context.Context, spec config.PluginSpec) error {
	hooksJSON, err := json.Marshal(spec.Hooks)
	if err != nil {
		return fmt.Errorf("marshaling hooks: %w", err)
	}
	conditionsJSON, err := json.Marshal(spec.Conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions: %w", err)
	}

	query := `
		INSERT INTO plugin_configs (id, name, kind, priority, mode, hooks, conditions, config, timeout_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			priority = EXCLUDED.priority,
			mode = EXCLUDED.mode,
			hooks = EXCLUDED.hooks,
			conditions = EXCLUDED.conditions,
			config = EXCLUDED.config,
			timeout_ns = EXCLUDED.timeout_ns`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), spec.Name, spec.Kind, spec.Priority, string(spec.Mode),
		hooksJSON, conditionsJSON, []byte(spec.Config), spec.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("upserting plugin config %q: %w", spec.Name, err)
	}
	return nil
}

// Delete removes the persisted row for name, if any.
func (s *PluginConfigStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM plugin_configs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting plugin config %q: %w", name, err)
	}
	return nil
}

// LoadAll returns every persisted plugin spec, in priority order, for
// Manager.Initialize to construct plugins from instead of (or alongside)
// a static YAML file.
func (s *PluginConfigStore) LoadAll(ctx context.Context) ([]config.PluginSpec, error) {
	query := `
		SELECT name, kind, priority, mode, hooks, conditions, config, timeout_ns
		FROM plugin_configs
		ORDER BY priority ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading plugin configs: %w", err)
	}
	defer rows.Close()

	var out []config.PluginSpec
	for rows.Next() {
		var spec config.PluginSpec
		var mode string
		var hooksJSON, conditionsJSON, configJSON []byte
		var timeoutNS int64

		if err := rows.Scan(&spec.Name, &spec.Kind, &spec.Priority, &mode, &hooksJSON, &conditionsJSON, &configJSON, &timeoutNS); err != nil {
			return nil, fmt.Errorf("scanning plugin config row: %w", err)
		}

		spec.Mode = hook.Mode(mode)
		spec.Config = json.RawMessage(configJSON)
		if err := json.Unmarshal(hooksJSON, &spec.Hooks); err != nil {
			return nil, fmt.Errorf("unmarshaling hooks for plugin %q: %w", spec.Name, err)
		}
		if err := json.Unmarshal(conditionsJSON, &spec.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshaling conditions for plugin %q: %w", spec.Name, err)
		}

		out = append(out, spec)
	}
	return out, rows.Err()
}
