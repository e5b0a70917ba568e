package types

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseToolInput turns an accumulated tool-argument string into the
// invocation's input value: the parsed JSON value when the text is valid
// JSON, the raw string otherwise. An empty accumulation parses to an empty
// object so downstream executors always receive a value.
func ParseToolInput(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}
	}
	if gjson.Valid(trimmed) {
		return gjson.Parse(trimmed).Value()
	}
	return raw
}

// Accumulator folds a native event sequence into an assistant message. It is
// the single reducer used for both transports: streaming turns fold live
// events, non-streaming turns fold the synthetic sequence, and the results
// must agree.
type Accumulator struct {
	started    bool
	stopped    bool
	stopReason StopReason
	usage      *Usage

	blocks   []ContentBlock
	open     bool
	inputBuf strings.Builder
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply folds one event.
func (a *Accumulator) Apply(ev StreamEvent) {
	switch ev.Type {
	case EventMessageStart:
		a.started = true

	case EventContentBlockStart:
		a.closeOpenBlock()
		if ev.Block != nil {
			a.blocks = append(a.blocks, *ev.Block)
			a.open = true
			a.inputBuf.Reset()
		}

	case EventContentBlockDelta:
		if !a.open || len(a.blocks) == 0 {
			return
		}
		cur := &a.blocks[len(a.blocks)-1]
		switch cur.Kind {
		case BlockText:
			cur.Text += ev.TextDelta
		case BlockReasoning:
			cur.ReasoningText += ev.ReasoningDelta
		case BlockToolInvocation:
			a.inputBuf.WriteString(ev.InputDelta)
		}

	case EventContentBlockStop:
		a.closeOpenBlock()

	case EventMessageStop:
		a.closeOpenBlock()
		a.stopped = true
		a.stopReason = ev.StopReason

	case EventMetadata:
		if ev.Usage != nil {
			u := *ev.Usage
			a.usage = &u
		}
	}
}

// closeOpenBlock finalizes the block under accumulation. Tool invocations
// parse their argument buffer here, once, after the last fragment.
func (a *Accumulator) closeOpenBlock() {
	if !a.open || len(a.blocks) == 0 {
		a.open = false
		return
	}
	cur := &a.blocks[len(a.blocks)-1]
	if cur.Kind == BlockToolInvocation {
		cur.Input = ParseToolInput(a.inputBuf.String())
	}
	a.open = false
	a.inputBuf.Reset()
}

// Started reports whether a messageStart was observed. A messageStop folded
// without this flag set marks the stream as malformed.
func (a *Accumulator) Started() bool { return a.started }

// Stopped reports whether a messageStop was observed.
func (a *Accumulator) Stopped() bool { return a.stopped }

// StopReason returns the mapped terminal reason, valid once Stopped.
func (a *Accumulator) StopReason() StopReason { return a.stopReason }

// Usage returns the most recent metadata usage, or nil.
func (a *Accumulator) Usage() *Usage { return a.usage }

// Message materializes the assistant message accumulated so far. The caller
// assigns the identifier; in-progress snapshots share this path.
func (a *Accumulator) Message() *Message {
	blocks := make([]ContentBlock, len(a.blocks))
	copy(blocks, a.blocks)

	// Snapshots taken mid-accumulation show the raw argument text gathered
	// so far for a still-open tool block.
	if a.open && len(blocks) > 0 && blocks[len(blocks)-1].Kind == BlockToolInvocation {
		blocks[len(blocks)-1].Input = a.inputBuf.String()
	}

	return &Message{Role: RoleAssistant, Blocks: blocks}
}
