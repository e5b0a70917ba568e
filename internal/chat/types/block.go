package types

import (
	"encoding/json"
	"fmt"
)

// BlockKind discriminates the content block variants. The set is closed;
// switches over it at the translation boundary must handle every kind.
type BlockKind string

const (
	BlockText           BlockKind = "text"
	BlockImage          BlockKind = "image"
	BlockReasoning      BlockKind = "reasoning"
	BlockToolInvocation BlockKind = "tool_invocation"
	BlockToolResult     BlockKind = "tool_result"
	BlockCacheHint      BlockKind = "cache_hint"
)

// ImageFormat identifies the encoding of an image block's bytes.
type ImageFormat string

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
	ImageGIF  ImageFormat = "gif"
	ImageWebP ImageFormat = "webp"
)

// MIMEType returns the media type used when the image is inlined as a data URI.
func (f ImageFormat) MIMEType() string {
	return "image/" + string(f)
}

// ResultStatus classifies a tool result.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// CacheScope is the scope of a cache hint. Only the default scope exists today.
type CacheScope string

const CacheScopeDefault CacheScope = "default"

// ToolResultPart is one unit of tool output: plain text or a structured value.
type ToolResultPart struct {
	Text  string `json:"text,omitempty"`
	Value any    `json:"json,omitempty"`
}

// ContentBlock is one typed unit of message content. Kind selects which of
// the payload field groups is populated; the constructors below keep the
// variants well formed.
type ContentBlock struct {
	Kind BlockKind `json:"kind"`

	// Text
	Text string `json:"text,omitempty"`

	// Image
	ImageFormat ImageFormat `json:"image_format,omitempty"`
	ImageData   []byte      `json:"image_data,omitempty"`

	// Reasoning. Visible reasoning carries text plus an opaque signature;
	// redacted reasoning carries only the opaque blob. The two are mutually
	// exclusive.
	ReasoningText string `json:"reasoning_text,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Redacted      []byte `json:"redacted,omitempty"`

	// Tool invocation
	ToolID   string `json:"tool_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	Input    any    `json:"input,omitempty"`

	// Tool result
	ToolInvocationID string           `json:"tool_invocation_id,omitempty"`
	Results          []ToolResultPart `json:"results,omitempty"`
	Status           ResultStatus     `json:"status,omitempty"`

	// Cache hint
	CacheScope CacheScope `json:"cache_scope,omitempty"`
}

// NewTextBlock builds a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// NewImageBlock builds an image block.
func NewImageBlock(format ImageFormat, data []byte) ContentBlock {
	return ContentBlock{Kind: BlockImage, ImageFormat: format, ImageData: data}
}

// NewReasoningBlock builds a visible reasoning block.
func NewReasoningBlock(text, signature string) ContentBlock {
	return ContentBlock{Kind: BlockReasoning, ReasoningText: text, Signature: signature}
}

// NewRedactedReasoningBlock builds a redacted reasoning block.
func NewRedactedReasoningBlock(blob []byte) ContentBlock {
	return ContentBlock{Kind: BlockReasoning, Redacted: blob}
}

// NewToolInvocationBlock builds a tool invocation block. Input is the parsed
// structured value, or the raw argument string when it could not be parsed.
func NewToolInvocationBlock(id, name string, input any) ContentBlock {
	return ContentBlock{Kind: BlockToolInvocation, ToolID: id, ToolName: name, Input: input}
}

// NewToolResultBlock builds a tool result block correlated to an invocation.
func NewToolResultBlock(invocationID string, parts []ToolResultPart, status ResultStatus) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolInvocationID: invocationID, Results: parts, Status: status}
}

// NewCacheHintBlock builds a cache hint annotation.
func NewCacheHintBlock() ContentBlock {
	return ContentBlock{Kind: BlockCacheHint, CacheScope: CacheScopeDefault}
}

// IsRedactedReasoning reports whether a reasoning block carries the redacted
// variant.
func (b ContentBlock) IsRedactedReasoning() bool {
	return b.Kind == BlockReasoning && len(b.Redacted) > 0
}

// Validate checks the block's variant shape.
func (b ContentBlock) Validate() error {
	switch b.Kind {
	case BlockText:
		return nil
	case BlockImage:
		if b.ImageFormat == "" {
			return fmt.Errorf("image block missing format")
		}
		if len(b.ImageData) == 0 {
			return fmt.Errorf("image block missing data")
		}
		return nil
	case BlockReasoning:
		if b.ReasoningText == "" && len(b.Redacted) == 0 {
			return fmt.Errorf("reasoning block missing both text and redacted content")
		}
		if b.ReasoningText != "" && len(b.Redacted) > 0 {
			return fmt.Errorf("reasoning block carries both visible and redacted content")
		}
		return nil
	case BlockToolInvocation:
		if b.ToolID == "" {
			return fmt.Errorf("tool invocation block missing id")
		}
		if b.ToolName == "" {
			return fmt.Errorf("tool invocation block missing name")
		}
		return nil
	case BlockToolResult:
		if b.ToolInvocationID == "" {
			return fmt.Errorf("tool result block missing invocation id")
		}
		if b.Status != ResultSuccess && b.Status != ResultError {
			return fmt.Errorf("tool result block has invalid status %q", b.Status)
		}
		return nil
	case BlockCacheHint:
		if b.CacheScope != CacheScopeDefault {
			return fmt.Errorf("cache hint block has unknown scope %q", b.CacheScope)
		}
		return nil
	default:
		return fmt.Errorf("unknown block kind %q", b.Kind)
	}
}

// UnmarshalJSON rejects blocks with an unknown kind so malformed persisted
// content fails loudly instead of round-tripping as an empty block.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type alias ContentBlock
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case BlockText, BlockImage, BlockReasoning, BlockToolInvocation, BlockToolResult, BlockCacheHint:
	default:
		return fmt.Errorf("unknown block kind %q", raw.Kind)
	}

	*b = ContentBlock(raw)
	return nil
}
