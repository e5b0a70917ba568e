// Package tokenizer estimates conversation token counts for context-budget
// truncation. Counts are estimates, not billing numbers; the proxy's own
// tokenization is authoritative.
package tokenizer

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
)

const defaultEncoding = "cl100k_base"

// Overhead added per message for role framing and separators.
const messageOverhead = 4

// Estimator counts tokens with a tiktoken encoding when one is available
// and falls back to a rune-based heuristic otherwise. The fallback keeps
// truncation working when the encoding data cannot be loaded.
type Estimator struct {
	encoding *tiktoken.Tiktoken
}

// New creates an estimator for the named encoding. An empty name selects
// cl100k_base. A loading failure is not an error; the estimator degrades to
// the heuristic.
func New(encodingName string) *Estimator {
	if encodingName == "" {
		encodingName = defaultEncoding
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{encoding: encoding}
}

// NewHeuristic returns an estimator that always uses the rune heuristic,
// for callers that need deterministic counts over accurate ones.
func NewHeuristic() *Estimator {
	return &Estimator{}
}

// Count estimates the token count of a text fragment.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e.encoding != nil {
		return len(e.encoding.Encode(text, nil, nil))
	}
	// Roughly four characters per token for mixed prose.
	return (len([]rune(text)) + 3) / 4
}

// CountMessage estimates the token cost of one message including framing.
func (e *Estimator) CountMessage(m *chat.Message) int {
	if m == nil {
		return 0
	}
	total := messageOverhead
	for _, b := range m.Blocks {
		switch b.Kind {
		case chat.BlockText:
			total += e.Count(b.Text)
		case chat.BlockReasoning:
			total += e.Count(b.ReasoningText)
		case chat.BlockToolInvocation:
			total += e.Count(b.ToolName)
			total += e.Count(encodeJSON(b.Input))
		case chat.BlockToolResult:
			for _, part := range b.Results {
				if part.Text != "" {
					total += e.Count(part.Text)
				}
				if part.Value != nil {
					total += e.Count(encodeJSON(part.Value))
				}
			}
		case chat.BlockImage:
			// Images travel base64-encoded; approximate one token per
			// three raw bytes.
			total += len(b.ImageData) / 3
		}
	}
	return total
}

// CountConversation estimates the total token cost of a message sequence.
func (e *Estimator) CountConversation(msgs []*chat.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.CountMessage(m)
	}
	return total
}

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
