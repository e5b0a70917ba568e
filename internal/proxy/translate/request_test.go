package translate

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

func TestBuildChatRequestCollapsesSingleText(t *testing.T) {
	msgs := []*chat.Message{chat.NewUserTextMessage("hello")}

	req := BuildChatRequest(msgs, SystemPrompt{}, nil, Params{Model: "gpt-test"})

	require.Len(t, req.Messages, 1)
	assert.Equal(t, types.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].Content)
}

func TestBuildChatRequestTypedParts(t *testing.T) {
	img := []byte{0x89, 0x50, 0x4e, 0x47}
	msg := chat.NewMessage(chat.RoleUser,
		chat.NewImageBlock(chat.ImagePNG, img),
		chat.NewTextBlock("what is this?"),
	)

	req := BuildChatRequest([]*chat.Message{msg}, SystemPrompt{}, nil, Params{})

	require.Len(t, req.Messages, 1)
	parts, ok := req.Messages[0].Content.([]types.ContentPart)
	require.True(t, ok, "multi-block content must be a typed part array")
	require.Len(t, parts, 2)

	assert.Equal(t, types.PartTypeImageURL, parts[0].Type)
	wantURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
	assert.Equal(t, wantURI, parts[0].ImageURL.URL)

	assert.Equal(t, types.PartTypeText, parts[1].Type)
	assert.Equal(t, "what is this?", parts[1].Text)
}

func TestBuildChatRequestSystemPrompt(t *testing.T) {
	msgs := []*chat.Message{chat.NewUserTextMessage("hi")}

	req := BuildChatRequest(msgs, SystemPrompt{Text: "be brief", Cache: true}, nil, Params{})

	require.Len(t, req.Messages, 2)
	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	require.NotNil(t, req.Messages[0].CacheControl)
	assert.Equal(t, "ephemeral", req.Messages[0].CacheControl.Type)
	assert.Nil(t, req.Messages[1].CacheControl)
}

func TestBuildChatRequestToolResultFanOut(t *testing.T) {
	msg := chat.NewMessage(chat.RoleUser,
		chat.NewToolResultBlock("call_1", []chat.ToolResultPart{{Text: "first"}}, chat.ResultSuccess),
		chat.NewToolResultBlock("call_2", []chat.ToolResultPart{{Value: map[string]any{"n": 2.0}}}, chat.ResultError),
	)

	req := BuildChatRequest([]*chat.Message{msg}, SystemPrompt{}, nil, Params{})

	require.Len(t, req.Messages, 2, "one proxy tool message per result")
	assert.Equal(t, types.RoleTool, req.Messages[0].Role)
	assert.Equal(t, "call_1", req.Messages[0].ToolCallID)
	assert.Equal(t, "first", req.Messages[0].Content)

	assert.Equal(t, types.RoleTool, req.Messages[1].Role)
	assert.Equal(t, "call_2", req.Messages[1].ToolCallID)
	assert.Equal(t, `{"n":2}`, req.Messages[1].Content)
}

func TestBuildChatRequestToolInvocations(t *testing.T) {
	msg := chat.NewMessage(chat.RoleAssistant,
		chat.NewTextBlock("let me check"),
		chat.NewToolInvocationBlock("call_9", "search", map[string]any{"q": "cats"}),
	)

	req := BuildChatRequest([]*chat.Message{msg}, SystemPrompt{}, nil, Params{})

	require.Len(t, req.Messages, 1)
	out := req.Messages[0]
	assert.Equal(t, types.RoleAssistant, out.Role)
	assert.Equal(t, "let me check", out.Content)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_9", out.ToolCalls[0].ID)
	assert.Equal(t, "function", out.ToolCalls[0].Type)
	assert.Equal(t, "search", out.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"cats"}`, out.ToolCalls[0].Function.Arguments)
}

func TestBuildChatRequestReasoningPart(t *testing.T) {
	msg := chat.NewMessage(chat.RoleAssistant,
		chat.NewReasoningBlock("thinking it over", "sig-1"),
		chat.NewTextBlock("answer"),
	)

	req := BuildChatRequest([]*chat.Message{msg}, SystemPrompt{}, nil, Params{})

	parts, ok := req.Messages[0].Content.([]types.ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, types.PartTypeThinking, parts[0].Type)
	assert.Equal(t, "thinking it over", parts[0].Thinking)
	assert.Equal(t, "sig-1", parts[0].Signature)
}

func TestBuildChatRequestRedactedReasoningSkipped(t *testing.T) {
	msg := chat.NewMessage(chat.RoleAssistant,
		chat.NewRedactedReasoningBlock([]byte{0x01, 0x02}),
		chat.NewTextBlock("answer"),
	)

	req := BuildChatRequest([]*chat.Message{msg}, SystemPrompt{}, nil, Params{})

	assert.Equal(t, "answer", req.Messages[0].Content,
		"redacted reasoning must not reach the wire, leaving a lone text block")
}

func TestBuildChatRequestCacheHint(t *testing.T) {
	msg := chat.NewMessage(chat.RoleUser,
		chat.NewTextBlock("remember this"),
		chat.NewCacheHintBlock(),
	)

	req := BuildChatRequest([]*chat.Message{msg}, SystemPrompt{}, nil, Params{})

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "remember this", req.Messages[0].Content)
	require.NotNil(t, req.Messages[0].CacheControl)
}

func TestBuildChatRequestToolSpecs(t *testing.T) {
	specs := []chat.ToolSpec{
		{
			Name:        "search",
			Description: "web search",
			InputSchema: &chat.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"q": map[string]any{"type": "string"}},
				Required:   []string{"q"},
			},
		},
		{Name: "broken", Description: "no schema"},
	}

	req := BuildChatRequest(nil, SystemPrompt{}, specs, Params{})

	require.Len(t, req.Tools, 1, "a tool spec without a schema is skipped")
	assert.Equal(t, "function", req.Tools[0].Type)
	assert.Equal(t, "search", req.Tools[0].Function.Name)
	assert.Equal(t, "web search", req.Tools[0].Function.Description)
}

func TestBuildChatRequestParams(t *testing.T) {
	temp := 0.7
	topP := 0.9

	req := BuildChatRequest(nil, SystemPrompt{}, nil, Params{
		Model:          "gpt-test",
		Temperature:    &temp,
		TopP:           &topP,
		MaxTokens:      2048,
		Stream:         true,
		ThinkingBudget: 1024,
	})

	assert.Equal(t, "gpt-test", req.Model)
	assert.Equal(t, &temp, req.Temperature)
	assert.Equal(t, &topP, req.TopP)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.True(t, req.Stream)
	require.NotNil(t, req.StreamOptions)
	assert.True(t, req.StreamOptions.IncludeUsage)
	require.NotNil(t, req.Thinking)
	assert.Equal(t, "enabled", req.Thinking.Type)
	assert.Equal(t, 1024, req.Thinking.BudgetTokens)
}

// Translating a message out to the wire and interpreting the wire shape
// back must preserve block order and text content.
func TestRequestResponseRoundTrip(t *testing.T) {
	original := chat.NewMessage(chat.RoleAssistant,
		chat.NewReasoningBlock("step by step", ""),
		chat.NewTextBlock("the answer is 4"),
		chat.NewToolInvocationBlock("call_1", "search", map[string]any{"q": "cats"}),
	)

	req := BuildChatRequest([]*chat.Message{original}, SystemPrompt{}, nil, Params{})
	require.Len(t, req.Messages, 1)
	wire := req.Messages[0]

	parts, ok := wire.Content.([]types.ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)

	resp := &types.ChatCompletionResponse{
		Choices: []types.Choice{{
			Message: types.ResponseMessage{
				Role:             types.RoleAssistant,
				ReasoningContent: parts[0].Thinking,
				Content:          parts[1].Text,
				ToolCalls:        wire.ToolCalls,
			},
			FinishReason: types.FinishToolCalls,
		}},
	}

	back, stop, _, err := AssistantMessage(resp)
	require.NoError(t, err)

	require.Len(t, back.Blocks, 3)
	assert.Equal(t, chat.BlockReasoning, back.Blocks[0].Kind)
	assert.Equal(t, "step by step", back.Blocks[0].ReasoningText)
	assert.Equal(t, chat.BlockText, back.Blocks[1].Kind)
	assert.Equal(t, "the answer is 4", back.Blocks[1].Text)
	assert.Equal(t, chat.BlockToolInvocation, back.Blocks[2].Kind)
	assert.Equal(t, "search", back.Blocks[2].ToolName)
	assert.Equal(t, map[string]any{"q": "cats"}, back.Blocks[2].Input)
	assert.Equal(t, chat.StopToolUse, stop)
}
