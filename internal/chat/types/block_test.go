package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBlockValidate(t *testing.T) {
	tests := []struct {
		name    string
		block   ContentBlock
		wantErr bool
	}{
		{"text", NewTextBlock("hello"), false},
		{"empty text is fine", NewTextBlock(""), false},
		{"image", NewImageBlock(ImagePNG, []byte{1, 2, 3}), false},
		{"image without data", ContentBlock{Kind: BlockImage, ImageFormat: ImagePNG}, true},
		{"image without format", ContentBlock{Kind: BlockImage, ImageData: []byte{1}}, true},
		{"reasoning visible", NewReasoningBlock("thinking...", "sig"), false},
		{"reasoning redacted", NewRedactedReasoningBlock([]byte{0xde, 0xad}), false},
		{"reasoning empty", ContentBlock{Kind: BlockReasoning}, true},
		{
			"reasoning both variants",
			ContentBlock{Kind: BlockReasoning, ReasoningText: "x", Redacted: []byte{1}},
			true,
		},
		{"tool invocation", NewToolInvocationBlock("call_1", "search", map[string]any{"q": "cats"}), false},
		{"tool invocation without id", ContentBlock{Kind: BlockToolInvocation, ToolName: "search"}, true},
		{"tool invocation without name", ContentBlock{Kind: BlockToolInvocation, ToolID: "call_1"}, true},
		{
			"tool result",
			NewToolResultBlock("call_1", []ToolResultPart{{Text: "ok"}}, ResultSuccess),
			false,
		},
		{"tool result bad status", ContentBlock{Kind: BlockToolResult, ToolInvocationID: "call_1", Status: "maybe"}, true},
		{"cache hint", NewCacheHintBlock(), false},
		{"unknown kind", ContentBlock{Kind: "banner"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContentBlockJSONRoundTrip(t *testing.T) {
	blocks := []ContentBlock{
		NewTextBlock("hello"),
		NewImageBlock(ImageJPEG, []byte("img-bytes")),
		NewReasoningBlock("let me think", "sig-1"),
		NewRedactedReasoningBlock([]byte("opaque")),
		NewToolInvocationBlock("call_1", "search", map[string]any{"q": "cats"}),
		NewToolResultBlock("call_1", []ToolResultPart{{Text: "found 3"}}, ResultSuccess),
		NewCacheHintBlock(),
	}

	data, err := json.Marshal(blocks)
	require.NoError(t, err)

	var decoded []ContentBlock
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(blocks))

	for i, b := range decoded {
		assert.Equal(t, blocks[i].Kind, b.Kind, "block %d kind", i)
		assert.NoError(t, b.Validate(), "block %d", i)
	}
	assert.Equal(t, "hello", decoded[0].Text)
	assert.Equal(t, []byte("img-bytes"), decoded[1].ImageData)
	assert.Equal(t, "sig-1", decoded[2].Signature)
	assert.Equal(t, "call_1", decoded[4].ToolID)
}

func TestContentBlockUnmarshalUnknownKind(t *testing.T) {
	var b ContentBlock
	err := json.Unmarshal([]byte(`{"kind":"sticker","text":"hi"}`), &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown block kind")
}

func TestImageFormatMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", ImagePNG.MIMEType())
	assert.Equal(t, "image/webp", ImageWebP.MIMEType())
}
