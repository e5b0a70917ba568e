package types

// StreamEventType enumerates the native streaming events. The translator
// re-emits the proxy's delta chunks as this sequence:
//
//	messageStart, (contentBlockStart, contentBlockDelta*, contentBlockStop)*,
//	messageStop, with metadata interleaved wherever usage arrives.
type StreamEventType string

const (
	EventMessageStart      StreamEventType = "message_start"
	EventContentBlockStart StreamEventType = "content_block_start"
	EventContentBlockDelta StreamEventType = "content_block_delta"
	EventContentBlockStop  StreamEventType = "content_block_stop"
	EventMessageStop       StreamEventType = "message_stop"
	EventMetadata          StreamEventType = "metadata"
)

// StreamEvent is one native streaming event. BlockIndex addresses the content
// block the event belongs to; exactly one of the delta fields is set on a
// contentBlockDelta depending on the open block's kind. InputDelta fragments
// are raw JSON text to be concatenated by the consumer, never parsed here.
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	BlockIndex int             `json:"block_index,omitempty"`

	// contentBlockStart: the opening block (tool invocations carry id and
	// name here, before any argument fragments arrive).
	Block *ContentBlock `json:"block,omitempty"`

	// contentBlockDelta payloads.
	TextDelta      string `json:"text_delta,omitempty"`
	ReasoningDelta string `json:"reasoning_delta,omitempty"`
	InputDelta     string `json:"input_delta,omitempty"`

	// messageStop.
	StopReason StopReason `json:"stop_reason,omitempty"`

	// metadata.
	Usage *Usage `json:"usage,omitempty"`
}
