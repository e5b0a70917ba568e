package biz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// twoToolTurn scripts an assistant message invoking tools a and b in order.
func twoToolTurn() []proxytypes.StreamChunk {
	return []proxytypes.StreamChunk{
		toolStartChunk("call_a", "alpha"),
		argChunk(`{"n":1}`),
		toolStartChunk("call_b", "beta"),
		argChunk(`{"n":2}`),
		finishChunk("tool_calls"),
	}
}

func TestToolBatchSurvivesSingleFailure(t *testing.T) {
	f := newFixture(t, nil, twoToolTurn(), textTurn("summary"))
	f.executor.fn = func(inv chat.ContentBlock) (any, error) {
		if inv.ToolName == "alpha" {
			return nil, errors.New("alpha exploded")
		}
		return "beta output", nil
	}

	err := f.uc.Submit(context.Background(), "run both", nil)
	require.NoError(t, err)

	// Both tools ran despite the first failing.
	require.Equal(t, 2, f.executor.callCount())
	assert.Equal(t, "alpha", f.executor.calls[0].ToolName)
	assert.Equal(t, "beta", f.executor.calls[1].ToolName)

	msgs := f.uc.Messages()
	require.Len(t, msgs, 4)

	results := msgs[2].Blocks
	require.Len(t, results, 2)

	// Results keep invocation order and are correlated by id.
	assert.Equal(t, "call_a", results[0].ToolInvocationID)
	assert.Equal(t, chat.ResultError, results[0].Status)
	assert.Contains(t, results[0].Results[0].Text, "alpha exploded")

	assert.Equal(t, "call_b", results[1].ToolInvocationID)
	assert.Equal(t, chat.ResultSuccess, results[1].Status)
	assert.Equal(t, "beta output", results[1].Results[0].Text)

	// The turn still continued to a final text round.
	assert.Equal(t, "summary", msgs[3].Text())
	assert.Equal(t, 2, f.transport.callCount())
}

func TestToolRoundLimitStopsLoop(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.MaxToolRounds = 2

	// Every round asks for another tool; the loop must give up on its own.
	f := newFixture(t, cfg, []proxytypes.StreamChunk{
		toolStartChunk("call_1", "loop"),
		argChunk(`{"go":true}`),
		finishChunk("tool_calls"),
	})

	err := f.uc.Submit(context.Background(), "loop forever", nil)
	require.NoError(t, err)

	// Initial round plus MaxToolRounds continuations.
	assert.Equal(t, 3, f.transport.callCount())
	assert.Equal(t, 2, f.executor.callCount())
}

func TestToolRoundLimitLeavesNoDanglingInvocation(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.MaxToolRounds = 1

	f := newFixture(t, cfg,
		[]proxytypes.StreamChunk{
			toolStartChunk("call_1", "loop"),
			argChunk(`{"go":true}`),
			finishChunk("tool_calls"),
		},
		[]proxytypes.StreamChunk{
			toolStartChunk("call_2", "loop"),
			argChunk(`{"go":true}`),
			finishChunk("tool_calls"),
		},
		textTurn("done"),
	)

	err := f.uc.Submit(context.Background(), "loop forever", nil)
	require.NoError(t, err)

	// The second invocation never ran, but it still got answered.
	assert.Equal(t, 1, f.executor.callCount())
	assert.Empty(t, f.uc.activeSession().danglingIndices())

	msgs := f.uc.Messages()
	last := msgs[len(msgs)-1]
	require.True(t, last.IsToolResultOnly())
	require.Len(t, last.Blocks, 1)
	assert.Equal(t, "call_2", last.Blocks[0].ToolInvocationID)
	assert.Equal(t, chat.ResultError, last.Blocks[0].Status)
	assert.Contains(t, last.Blocks[0].Results[0].Text, "round limit")

	// The next submission carries no unmatched tool call to the proxy.
	err = f.uc.Submit(context.Background(), "keep going", nil)
	require.NoError(t, err)

	answered := make(map[string]bool)
	next := f.transport.request(2)
	for _, m := range next.Messages {
		if m.Role == proxytypes.RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	for _, m := range next.Messages {
		for _, tc := range m.ToolCalls {
			assert.True(t, answered[tc.ID], "tool call %s has no result", tc.ID)
		}
	}
}

func TestGuardrailIntervenesOnToolOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Guardrail.Enabled = true
	cfg.Agent.Guardrail.Identifier = "gr-1"
	cfg.Agent.Guardrail.Version = "1"

	f := newFixture(t, cfg,
		[]proxytypes.StreamChunk{
			toolStartChunk("call_1", "fetch"),
			argChunk(`{"u":"x"}`),
			finishChunk("tool_calls"),
		},
		textTurn("understood"),
	)
	f.executor.fn = func(inv chat.ContentBlock) (any, error) {
		return "raw sensitive payload", nil
	}
	f.guard.fn = func(content string) (*GuardrailAssessment, error) {
		return &GuardrailAssessment{
			Action:  GuardrailActionIntervened,
			Outputs: []GuardrailOutput{{Text: "content blocked by policy"}},
		}, nil
	}

	err := f.uc.Submit(context.Background(), "fetch it", nil)
	require.NoError(t, err)

	msgs := f.uc.Messages()
	require.Len(t, msgs, 4)
	result := msgs[2].Blocks[0]
	assert.Equal(t, chat.ResultError, result.Status)
	assert.Equal(t, "content blocked by policy", result.Results[0].Text)
	assert.Equal(t, "call_1", result.ToolInvocationID)
}

func TestGuardrailFailureKeepsUnfilteredResult(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Guardrail.Enabled = true
	cfg.Agent.Guardrail.Identifier = "gr-1"
	cfg.Agent.Guardrail.Version = "1"

	f := newFixture(t, cfg,
		[]proxytypes.StreamChunk{
			toolStartChunk("call_1", "fetch"),
			argChunk(`{"u":"x"}`),
			finishChunk("tool_calls"),
		},
		textTurn("understood"),
	)
	f.executor.fn = func(inv chat.ContentBlock) (any, error) {
		return "tool output", nil
	}
	f.guard.fn = func(content string) (*GuardrailAssessment, error) {
		return nil, errors.New("guardrail endpoint down")
	}

	err := f.uc.Submit(context.Background(), "fetch it", nil)
	require.NoError(t, err)

	result := f.uc.Messages()[2].Blocks[0]
	assert.Equal(t, chat.ResultSuccess, result.Status)
	assert.Equal(t, "tool output", result.Results[0].Text)
}

func TestGuardrailSkippedWhenDisabled(t *testing.T) {
	f := newFixture(t, nil,
		[]proxytypes.StreamChunk{
			toolStartChunk("call_1", "fetch"),
			argChunk(`{"u":"x"}`),
			finishChunk("tool_calls"),
		},
		textTurn("done"),
	)

	err := f.uc.Submit(context.Background(), "fetch it", nil)
	require.NoError(t, err)

	f.guard.mu.Lock()
	defer f.guard.mu.Unlock()
	assert.Equal(t, 0, f.guard.calls)
}

func TestGuardrailSkipsFailedResults(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Guardrail.Enabled = true
	cfg.Agent.Guardrail.Identifier = "gr-1"
	cfg.Agent.Guardrail.Version = "1"

	f := newFixture(t, cfg,
		[]proxytypes.StreamChunk{
			toolStartChunk("call_1", "fetch"),
			argChunk(`{"u":"x"}`),
			finishChunk("tool_calls"),
		},
		textTurn("done"),
	)
	f.executor.fn = func(inv chat.ContentBlock) (any, error) {
		return nil, errors.New("boom")
	}

	err := f.uc.Submit(context.Background(), "fetch it", nil)
	require.NoError(t, err)

	f.guard.mu.Lock()
	defer f.guard.mu.Unlock()
	assert.Equal(t, 0, f.guard.calls)
}

func TestStructuredResultCarriedAsValue(t *testing.T) {
	f := newFixture(t, nil,
		[]proxytypes.StreamChunk{
			toolStartChunk("call_1", "lookup"),
			argChunk(`{"k":"v"}`),
			finishChunk("tool_calls"),
		},
		textTurn("done"),
	)
	f.executor.fn = func(inv chat.ContentBlock) (any, error) {
		return map[string]any{"rows": []any{"a", "b"}}, nil
	}

	err := f.uc.Submit(context.Background(), "look up", nil)
	require.NoError(t, err)

	result := f.uc.Messages()[2].Blocks[0]
	require.Len(t, result.Results, 1)
	assert.Empty(t, result.Results[0].Text)
	assert.Equal(t, map[string]any{"rows": []any{"a", "b"}}, result.Results[0].Value)
}

func TestNilResultBecomesEmptyText(t *testing.T) {
	parts := resultParts(nil)
	require.Len(t, parts, 1)
	assert.Equal(t, "", parts[0].Text)
	assert.Nil(t, parts[0].Value)
}

func TestResultTextJoinsParts(t *testing.T) {
	block := chat.NewToolResultBlock("call_1", []chat.ToolResultPart{
		{Text: "first"},
		{Value: map[string]any{"k": "v"}},
	}, chat.ResultSuccess)

	got := resultText(block)
	assert.Equal(t, fmt.Sprintf("first\n%s", `{"k":"v"}`), got)
}
