package denylist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/plugins/denylist"
)

func newList(t *testing.T) hook.Plugin {
	t.Helper()
	p, err := denylist.New("denylist", 0, hook.ModeEnforce, []hook.Kind{hook.ToolPreInvoke}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background(), []byte(`{
		"tools": ["debug_shell", "raw_sql"],
		"prompts": ["system_override"],
		"resources": ["file:///etc/shadow"]
	}`)))
	return p
}

func TestList_ToolPreInvoke_BlocksDeniedTool(t *testing.T) {
	l := newList(t)
	pc := hook.NewPluginContext("denylist", &hook.GlobalContext{})

	result, err := l.ToolPreInvoke(context.Background(), pc, &hook.ToolPayload{Name: "debug_shell"})
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, "denylisted", result.Violation.Code)
}

func TestList_ToolPreInvoke_AllowsUnlistedTool(t *testing.T) {
	l := newList(t)
	pc := hook.NewPluginContext("denylist", &hook.GlobalContext{})

	result, err := l.ToolPreInvoke(context.Background(), pc, &hook.ToolPayload{Name: "search"})
	require.NoError(t, err)
	assert.Nil(t, result.Violation)
	assert.True(t, result.ContinueProcessing)
}

func TestList_PromptPreFetch_BlocksDeniedPrompt(t *testing.T) {
	l := newList(t)
	pc := hook.NewPluginContext("denylist", &hook.GlobalContext{})

	result, err := l.PromptPreFetch(context.Background(), pc, &hook.PromptPayload{Name: "system_override"})
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
}

func TestList_ResourcePreFetch_BlocksDeniedURI(t *testing.T) {
	l := newList(t)
	pc := hook.NewPluginContext("denylist", &hook.GlobalContext{})

	result, err := l.ResourcePreFetch(context.Background(), pc, &hook.ResourcePayload{URI: "file:///etc/shadow"})
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, "resource", result.Violation.Details["kind"])
}

func TestList_NeverModifiesPayload(t *testing.T) {
	l := newList(t)
	pc := hook.NewPluginContext("denylist", &hook.GlobalContext{})

	result, err := l.ToolPreInvoke(context.Background(), pc, &hook.ToolPayload{Name: "search"})
	require.NoError(t, err)
	assert.Nil(t, result.ModifiedPayload)
}
