package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Metadata keys attached to finalized assistant messages.
const (
	MetadataUsage      = "usage"
	MetadataStopReason = "stop_reason"
	MetadataModel      = "model"
	MetadataError      = "error"
)

// Message is one entry in a conversation: an ordered sequence of content
// blocks under a single role. The ID is assigned at creation, stays stable
// for the message's lifetime and correlates metadata that arrives after the
// message body (usage statistics on a stream, for example).
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Blocks    []ContentBlock `json:"blocks"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage builds a message with a fresh identifier.
func NewMessage(role Role, blocks ...ContentBlock) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Blocks:    blocks,
		CreatedAt: time.Now(),
	}
}

// NewUserTextMessage builds a user message holding a single text block.
func NewUserTextMessage(text string) *Message {
	return NewMessage(RoleUser, NewTextBlock(text))
}

// Text concatenates the message's text blocks.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolInvocations returns the message's tool invocation blocks in order.
func (m *Message) ToolInvocations() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks {
		if b.Kind == BlockToolInvocation {
			out = append(out, b)
		}
	}
	return out
}

// ToolResultIDs returns the invocation ids answered by this message.
func (m *Message) ToolResultIDs() []string {
	var out []string
	for _, b := range m.Blocks {
		if b.Kind == BlockToolResult {
			out = append(out, b.ToolInvocationID)
		}
	}
	return out
}

// IsToolResultOnly reports whether every content-bearing block is a tool
// result. Cache hints are annotations and do not count as content.
func (m *Message) IsToolResultOnly() bool {
	results := 0
	for _, b := range m.Blocks {
		switch b.Kind {
		case BlockToolResult:
			results++
		case BlockCacheHint:
		default:
			return false
		}
	}
	return results > 0
}

// SetMetadata stores a metadata value, allocating the map on first use.
func (m *Message) SetMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Clone returns a deep copy. Display consumers receive clones so the
// orchestrator stays the only writer of live conversation state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	cp := &Message{
		ID:        m.ID,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}

	if m.Blocks != nil {
		cp.Blocks = make([]ContentBlock, len(m.Blocks))
		for i, b := range m.Blocks {
			nb := b
			if b.ImageData != nil {
				nb.ImageData = append([]byte(nil), b.ImageData...)
			}
			if b.Redacted != nil {
				nb.Redacted = append([]byte(nil), b.Redacted...)
			}
			if b.Results != nil {
				nb.Results = append([]ToolResultPart(nil), b.Results...)
			}
			cp.Blocks[i] = nb
		}
	}

	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}

	return cp
}

// CloneMessages deep-copies a conversation slice.
func CloneMessages(msgs []*Message) []*Message {
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
