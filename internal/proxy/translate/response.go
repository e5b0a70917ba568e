package translate

import (
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// MapStopReason converts a proxy finish reason to the native stop
// reason. Unknown reasons degrade to end_turn.
func MapStopReason(finish string) chat.StopReason {
	switch finish {
	case types.FinishStop:
		return chat.StopEndTurn
	case types.FinishLength:
		return chat.StopMaxTokens
	case types.FinishContentFilter:
		return chat.StopContentFiltered
	case types.FinishToolCalls:
		return chat.StopToolUse
	default:
		return chat.StopEndTurn
	}
}

// AdjustUsage converts wire usage to native accounting. Cache reads
// are billed separately, so the input count excludes them; cache
// writes are extra work, so the total includes them.
func AdjustUsage(u *types.Usage) *chat.Usage {
	if u == nil {
		return nil
	}
	read := u.CacheReadTokens()
	return &chat.Usage{
		InputTokens:      u.PromptTokens - read,
		OutputTokens:     u.CompletionTokens,
		TotalTokens:      u.TotalTokens + u.CacheCreationInputTokens,
		CacheReadTokens:  read,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
}

// AssistantMessage builds the native assistant message from a
// non-streaming response, with the mapped stop reason and adjusted
// usage. Reasoning precedes text, mirroring stream emission order.
func AssistantMessage(resp *types.ChatCompletionResponse) (*chat.Message, chat.StopReason, *chat.Usage, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, "", nil, types.NewMalformedStreamError("response has no choices")
	}
	choice := resp.Choices[0]

	msg := chat.NewMessage(chat.RoleAssistant)
	if choice.Message.ReasoningContent != "" {
		msg.Blocks = append(msg.Blocks, chat.NewReasoningBlock(choice.Message.ReasoningContent, ""))
	}
	if choice.Message.Content != "" {
		msg.Blocks = append(msg.Blocks, chat.NewTextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.Blocks = append(msg.Blocks, chat.NewToolInvocationBlock(
			tc.ID, tc.Function.Name, chat.ParseToolInput(tc.Function.Arguments)))
	}

	return msg, MapStopReason(choice.FinishReason), AdjustUsage(resp.Usage), nil
}
