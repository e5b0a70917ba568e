// Package translate converts between the native block-oriented message
// model and the proxy's chat-completion wire format, in both directions
// and in both streaming and non-streaming forms.
package translate

import (
	"encoding/base64"
	"encoding/json"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// SystemPrompt is the system text for a request, with an optional
// prompt-cache annotation.
type SystemPrompt struct {
	Text  string
	Cache bool
}

// Params are the per-call inference settings.
type Params struct {
	Model          string
	Temperature    *float64
	TopP           *float64
	MaxTokens      int
	Stream         bool
	ThinkingBudget int
}

// BuildChatRequest maps a native conversation onto the proxy request
// schema. A message holding only tool results fans out to one proxy
// tool message per result; every other message becomes a single proxy
// message whose content is a bare string when it held exactly one text
// block, or an ordered typed-part array otherwise.
func BuildChatRequest(messages []*chat.Message, system SystemPrompt, specs []chat.ToolSpec, p Params) types.ChatCompletionRequest {
	req := types.ChatCompletionRequest{
		Model:       p.Model,
		Messages:    make([]types.ChatMessage, 0, len(messages)+1),
		Temperature: p.Temperature,
		TopP:        p.TopP,
		MaxTokens:   p.MaxTokens,
		Stream:      p.Stream,
	}
	if p.Stream {
		req.StreamOptions = &types.StreamOptions{IncludeUsage: true}
	}
	if p.ThinkingBudget > 0 {
		req.Thinking = &types.ThinkingParam{Type: "enabled", BudgetTokens: p.ThinkingBudget}
	}

	if system.Text != "" {
		sys := types.ChatMessage{Role: types.RoleSystem, Content: system.Text}
		if system.Cache {
			sys.CacheControl = types.NewCacheControl()
		}
		req.Messages = append(req.Messages, sys)
	}

	for _, m := range messages {
		req.Messages = append(req.Messages, buildMessages(m)...)
	}

	for _, spec := range specs {
		if spec.InputSchema == nil {
			continue
		}
		req.Tools = append(req.Tools, types.Tool{
			Type: "function",
			Function: types.FunctionDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}

	return req
}

// buildMessages maps one native message to zero or more proxy messages.
func buildMessages(msg *chat.Message) []types.ChatMessage {
	if msg.IsToolResultOnly() {
		return buildToolResultMessages(msg)
	}

	out := types.ChatMessage{Role: wireRole(msg.Role)}

	var parts []types.ContentPart
	for _, b := range msg.Blocks {
		switch b.Kind {
		case chat.BlockText:
			parts = append(parts, types.TextPart(b.Text))
		case chat.BlockImage:
			parts = append(parts, types.ImagePart(imageDataURI(&b)))
		case chat.BlockReasoning:
			// Redacted reasoning has no wire representation on this
			// proxy schema and is held client-side only.
			if !b.IsRedactedReasoning() {
				parts = append(parts, types.ThinkingPart(b.ReasoningText, b.Signature))
			}
		case chat.BlockToolInvocation:
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:       b.ToolID,
				Type:     "function",
				Function: types.FunctionCall{Name: b.ToolName, Arguments: encodeToolInput(b.Input)},
			})
		case chat.BlockCacheHint:
			out.CacheControl = types.NewCacheControl()
		case chat.BlockToolResult:
			// Mixed-content results are rare; carry them as text so
			// the turn stays well-formed.
			parts = append(parts, types.TextPart(renderToolResult(&b)))
		}
	}

	switch {
	case len(parts) == 1 && parts[0].Type == types.PartTypeText:
		out.Content = parts[0].Text
	case len(parts) > 0:
		out.Content = parts
	}

	return []types.ChatMessage{out}
}

// buildToolResultMessages fans a tool-result-only message out to one
// proxy tool message per result, correlated by invocation id.
func buildToolResultMessages(msg *chat.Message) []types.ChatMessage {
	var out []types.ChatMessage
	for i := range msg.Blocks {
		b := &msg.Blocks[i]
		if b.Kind != chat.BlockToolResult {
			continue
		}
		out = append(out, types.ChatMessage{
			Role:       types.RoleTool,
			ToolCallID: b.ToolInvocationID,
			Content:    renderToolResult(b),
		})
	}
	return out
}

// renderToolResult flattens a result's typed parts into wire text.
func renderToolResult(b *chat.ContentBlock) string {
	var s string
	for i, part := range b.Results {
		if i > 0 {
			s += "\n"
		}
		if part.Value != nil {
			if raw, err := json.Marshal(part.Value); err == nil {
				s += string(raw)
				continue
			}
		}
		s += part.Text
	}
	return s
}

// encodeToolInput re-encodes structured tool input as the JSON string
// the wire expects. A raw-string input that never parsed is passed
// through unchanged.
func encodeToolInput(input any) string {
	if input == nil {
		return "{}"
	}
	if s, ok := input.(string); ok {
		return s
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// imageDataURI encodes image bytes as a base64 data URI.
func imageDataURI(b *chat.ContentBlock) string {
	return "data:" + b.ImageFormat.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(b.ImageData)
}

func wireRole(r chat.Role) string {
	switch r {
	case chat.RoleAssistant:
		return types.RoleAssistant
	case chat.RoleSystem:
		return types.RoleSystem
	case chat.RoleTool:
		return types.RoleTool
	default:
		return types.RoleUser
	}
}
