package translate

import (
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// blockMode tracks which content-block kind is currently open.
type blockMode int

const (
	modeNone blockMode = iota
	modeText
	modeThinking
	modeTool
)

// StreamDecoder reassembles the proxy's partial chunks into the native
// event sequence. One decoder serves one turn; state is three variables
// so a stream of any length decodes in O(1) space.
type StreamDecoder struct {
	started    bool
	blockIndex int
	mode       blockMode
}

// NewStreamDecoder returns a decoder positioned before the first chunk.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Decode consumes one chunk and returns the native events it implies,
// in order. Chunks with no choices and no usage produce nothing.
func (d *StreamDecoder) Decode(chunk types.StreamChunk) []chat.StreamEvent {
	var events []chat.StreamEvent

	// Usage can arrive on any chunk, including ones with no choices.
	if chunk.Usage != nil {
		events = append(events, chat.StreamEvent{
			Type:  chat.EventMetadata,
			Usage: AdjustUsage(chunk.Usage),
		})
	}

	if len(chunk.Choices) == 0 {
		return events
	}

	if !d.started {
		d.started = true
		events = append(events, chat.StreamEvent{Type: chat.EventMessageStart})
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.ReasoningContent != "" {
		if d.mode != modeThinking {
			events = d.openBlock(events, modeThinking, chat.NewReasoningBlock("", ""))
		}
		events = append(events, chat.StreamEvent{
			Type:           chat.EventContentBlockDelta,
			BlockIndex:     d.blockIndex,
			ReasoningDelta: delta.ReasoningContent,
		})
	}

	if delta.Content != "" {
		if d.mode != modeText {
			events = d.openBlock(events, modeText, chat.NewTextBlock(""))
		}
		events = append(events, chat.StreamEvent{
			Type:       chat.EventContentBlockDelta,
			BlockIndex: d.blockIndex,
			TextDelta:  delta.Content,
		})
	}

	for _, tc := range delta.ToolCalls {
		// A delta naming a tool begins a new invocation block, even
		// when a previous tool block is still open.
		if tc.ID != "" || (tc.Function != nil && tc.Function.Name != "") {
			var name string
			if tc.Function != nil {
				name = tc.Function.Name
			}
			events = d.openBlock(events, modeTool, chat.NewToolInvocationBlock(tc.ID, name, nil))
		}
		if tc.Function == nil || tc.Function.Arguments == "" {
			continue
		}
		// The bare empty-object fragment is a proxy emission artifact.
		if tc.Function.Arguments == "{}" {
			continue
		}
		events = append(events, chat.StreamEvent{
			Type:       chat.EventContentBlockDelta,
			BlockIndex: d.blockIndex,
			InputDelta: tc.Function.Arguments,
		})
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		events = d.closeOpen(events)
		events = append(events, chat.StreamEvent{
			Type:       chat.EventMessageStop,
			StopReason: MapStopReason(*choice.FinishReason),
		})
	}

	return events
}

// closeOpen stops the open block, if any, and advances the index.
func (d *StreamDecoder) closeOpen(events []chat.StreamEvent) []chat.StreamEvent {
	if d.mode == modeNone {
		return events
	}
	events = append(events, chat.StreamEvent{
		Type:       chat.EventContentBlockStop,
		BlockIndex: d.blockIndex,
	})
	d.blockIndex++
	d.mode = modeNone
	return events
}

// openBlock closes any open block and starts a new one at the current
// index.
func (d *StreamDecoder) openBlock(events []chat.StreamEvent, mode blockMode, block chat.ContentBlock) []chat.StreamEvent {
	events = d.closeOpen(events)
	d.mode = mode
	return append(events, chat.StreamEvent{
		Type:       chat.EventContentBlockStart,
		BlockIndex: d.blockIndex,
		Block:      &block,
	})
}
