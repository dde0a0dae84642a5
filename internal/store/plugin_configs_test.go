package store_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchmesh/pluginchain/internal/config"
	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/store"
)

func TestPluginConfigStore_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewPluginConfigStore(db)

	mock.ExpectExec("INSERT INTO plugin_configs").
		WithArgs(sqlmock.AnyArg(), "pii-filter", "regex", 10, "enforce", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	spec := config.PluginSpec{
		Name:     "pii-filter",
		Kind:     "regex",
		Mode:     hook.ModeEnforce,
		Priority: 10,
		Hooks:    []hook.Kind{hook.ToolPostInvoke},
	}
	err := s.Upsert(context.Background(), spec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginConfigStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewPluginConfigStore(db)

	mock.ExpectExec("DELETE FROM plugin_configs").WithArgs("pii-filter").WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Delete(context.Background(), "pii-filter")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginConfigStore_LoadAll(t *testing.T) {
	db, mock := newMockDB(t)
	s := store.NewPluginConfigStore(db)

	rows := sqlmock.NewRows([]string{"name", "kind", "priority", "mode", "hooks", "conditions", "config", "timeout_ns"}).
		AddRow("pii-filter", "regex", 10, "enforce", []byte(`["tool_post_invoke"]`), []byte(`[]`), []byte(`{"default_action":"block"}`), int64(0))

	mock.ExpectQuery("SELECT .* FROM plugin_configs").WillReturnRows(rows)

	specs, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "pii-filter", specs[0].Name)
	assert.Equal(t, []hook.Kind{hook.ToolPostInvoke}, specs[0].Hooks)
	require.NoError(t, mock.ExpectationsWereMet())
}
