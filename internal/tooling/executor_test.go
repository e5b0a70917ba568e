package tooling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
)

func newTestExecutor(t *testing.T, defs ...conf.ToolDefinition) *CommandExecutor {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)
	return NewCommandExecutor(conf.ToolsConfig{
		Timeout:     5 * time.Second,
		Definitions: defs,
	}, log)
}

func shTool(name, script string) conf.ToolDefinition {
	return conf.ToolDefinition{
		Name:    name,
		Command: []string{"sh", "-c", script},
	}
}

func TestExecuteDecodesJSONOutput(t *testing.T) {
	e := newTestExecutor(t, shTool("emit", `cat >/dev/null; echo '{"count": 3, "ok": true}'`))

	inv := chat.NewToolInvocationBlock("call_1", "emit", nil)
	value, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)

	m, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), m["count"])
	assert.Equal(t, true, m["ok"])
}

func TestExecuteReturnsRawText(t *testing.T) {
	e := newTestExecutor(t, shTool("greet", `cat >/dev/null; echo "hello there"`))

	inv := chat.NewToolInvocationBlock("call_1", "greet", nil)
	value, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "hello there", value)
}

func TestExecutePassesInputOnStdin(t *testing.T) {
	// The tool echoes its stdin back, so the decoded output is the request
	// payload itself: the tool name under "type" with the arguments
	// alongside it.
	e := newTestExecutor(t, shTool("search", `cat`))

	inv := chat.NewToolInvocationBlock("call_1", "search", map[string]any{"q": "cats"})
	value, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)

	m, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "search", "q": "cats"}, m)
}

func TestStdinPayloadShapes(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  map[string]any
	}{
		{
			name:  "object arguments spread flat",
			input: map[string]any{"q": "cats", "limit": float64(5)},
			want:  map[string]any{"type": "search", "q": "cats", "limit": float64(5)},
		},
		{
			name:  "nil arguments leave only the type",
			input: nil,
			want:  map[string]any{"type": "search"},
		},
		{
			name:  "scalar arguments ride under input",
			input: "raw query",
			want:  map[string]any{"type": "search", "input": "raw query"},
		},
		{
			name:  "argument type key never shadows the tool name",
			input: map[string]any{"type": "impostor", "q": "cats"},
			want:  map[string]any{"type": "search", "q": "cats"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := chat.NewToolInvocationBlock("call_1", "search", tt.input)
			assert.Equal(t, tt.want, stdinPayload(inv))
		})
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	e := newTestExecutor(t)

	inv := chat.NewToolInvocationBlock("call_1", "missing", nil)
	_, err := e.Execute(context.Background(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestExecuteCommandFailureCarriesStderr(t *testing.T) {
	e := newTestExecutor(t, shTool("broken", `echo "disk on fire" >&2; exit 3`))

	inv := chat.NewToolInvocationBlock("call_1", "broken", nil)
	_, err := e.Execute(context.Background(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExecuteTimeout(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)
	e := NewCommandExecutor(conf.ToolsConfig{
		Timeout:     100 * time.Millisecond,
		Definitions: []conf.ToolDefinition{shTool("slow", `sleep 10`)},
	}, log)

	inv := chat.NewToolInvocationBlock("call_1", "slow", nil)
	start := time.Now()
	_, err = e.Execute(context.Background(), inv)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteCancelled(t *testing.T) {
	e := newTestExecutor(t, shTool("slow", `sleep 10`))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	inv := chat.NewToolInvocationBlock("call_1", "slow", nil)
	_, err := e.Execute(ctx, inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteEmptyOutput(t *testing.T) {
	e := newTestExecutor(t, shTool("quiet", `cat >/dev/null`))

	inv := chat.NewToolInvocationBlock("call_1", "quiet", nil)
	value, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestDefinitionWithoutCommandSkipped(t *testing.T) {
	e := newTestExecutor(t, conf.ToolDefinition{Name: "ghost"})

	inv := chat.NewToolInvocationBlock("call_1", "ghost", nil)
	_, err := e.Execute(context.Background(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}
