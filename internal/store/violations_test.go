package store_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/store"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(rawDB, "postgres")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestViolationStore_Record(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewViolationStore(db)

	mock.ExpectExec("INSERT INTO plugin_violations").
		WithArgs(sqlmock.AnyArg(), "req-1", "p", "tool_pre_invoke", "blocked", "too risky", "blocked for safety", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	v := hook.Violation{PluginName: "p", Code: "blocked", Reason: "too risky", Description: "blocked for safety"}
	err := s.Record(context.Background(), "req-1", hook.ToolPreInvoke, v)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestViolationStore_ListByPlugin(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewViolationStore(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "request_id", "plugin_name", "hook_kind", "code", "reason", "description", "details", "created_at"}).
		AddRow("id-1", "req-1", "p", "tool_pre_invoke", "blocked", "reason", "desc", []byte(`{"k":"v"}`), now)

	mock.ExpectQuery("SELECT .* FROM plugin_violations WHERE plugin_name").
		WithArgs("p", 10).
		WillReturnRows(rows)

	out, err := s.ListByPlugin(context.Background(), "p", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "id-1", out[0].ID)
	assert.Equal(t, "v", out[0].Details["k"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestViolationStore_CountSince(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewViolationStore(db)

	since := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"count"}).AddRow(int64(3))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("p", since).
		WillReturnRows(rows)

	count, err := s.CountSince(context.Background(), "p", since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
