// Package store persists plugin configuration and violation history to
// Postgres, grounded on
// apps/backend/internal/database/repositories/namespace_repo.go in the
// teacher: the same sqlx.DB + $N placeholder + QueryRowContext().Scan
// shape, with metadata round-tripped through encoding/json the way the
// teacher does for its own JSONB columns. lib/pq supplies the database/
// sql driver; sqlx supplies the ergonomic scanning layer on top of it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"

	"github.com/latchmesh/pluginchain/internal/hook"
)

// ViolationRecord is one persisted hook.Violation, stamped with the
// request and hook it occurred on.
type ViolationRecord struct {
	ID          string
	RequestID   string
	PluginName  string
	HookKind    string
	Code        string
	Reason      string
	Description string
	Details     map[string]any
	CreatedAt   time.Time
}

// ViolationStore records and queries violations raised by the Executor.
type ViolationStore struct {
	db *sqlx.DB
}

// NewViolationStore wraps an already-opened sqlx.DB (see Open).
func NewViolationStore(db *sqlx.DB) *ViolationStore {
	return &ViolationStore{db: db}
}

// Open connects to Postgres via lib/pq and pings it, mirroring the
// teacher's database bootstrap step before handing a *sqlx.DB to any
// repository.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// Record persists one violation for hookKind on requestID.
func (s *ViolationStore) Record(ctx context.Context, requestID string, hookKind hook.Kind, v hook.Violation) error {
	detailsJSON, err := json.Marshal(v.Details)
	if err != nil {
		return fmt.Errorf("marshaling violation details: %w", err)
	}

	query := `
		INSERT INTO plugin_violations (
			id, request_id, plugin_name, hook_kind, code, reason, description, details
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), requestID, v.PluginName, string(hookKind), v.Code, v.Reason, v.Description, detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("recording violation: %w", err)
	}
	return nil
}

// ListByPlugin returns the most recent violations raised by a given
// plugin, newest first, capped at limit.
func (s *ViolationStore) ListByPlugin(ctx context.Context, pluginName string, limit int) ([]ViolationRecord, error) {
	query := `
		SELECT id, request_id, plugin_name, hook_kind, code, reason, description, details, created_at
		FROM plugin_violations
		WHERE plugin_name = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, pluginName, limit)
	if err != nil {
		return nil, fmt.Errorf("listing violations for plugin %q: %w", pluginName, err)
	}
	defer rows.Close()

	var out []ViolationRecord
	for rows.Next() {
		var r ViolationRecord
		var detailsJSON []byte
		if err := rows.Scan(&r.ID, &r.RequestID, &r.PluginName, &r.HookKind, &r.Code, &r.Reason, &r.Description, &detailsJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning violation row: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &r.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling violation details: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSince returns how many violations a plugin raised since since,
// used by the operational surface to report a recent-violation rate.
func (s *ViolationStore) CountSince(ctx context.Context, pluginName string, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM plugin_violations WHERE plugin_name = $1 AND created_at >= $2`
	err := s.db.QueryRowContext(ctx, query, pluginName, since).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("counting violations for plugin %q: %w", pluginName, err)
	}
	return count, nil
}
