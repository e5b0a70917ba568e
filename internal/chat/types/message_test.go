package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageAssignsStableID(t *testing.T) {
	m1 := NewUserTextMessage("hello")
	m2 := NewUserTextMessage("hello")

	assert.NotEmpty(t, m1.ID)
	assert.NotEqual(t, m1.ID, m2.ID)
	assert.Equal(t, RoleUser, m1.Role)
	assert.Equal(t, "hello", m1.Text())
}

func TestMessageText(t *testing.T) {
	m := NewMessage(RoleAssistant,
		NewReasoningBlock("thinking", ""),
		NewTextBlock("part one "),
		NewToolInvocationBlock("call_1", "search", nil),
		NewTextBlock("part two"),
	)
	assert.Equal(t, "part one part two", m.Text())
}

func TestToolInvocationsAndResults(t *testing.T) {
	m := NewMessage(RoleAssistant,
		NewTextBlock("I'll look that up."),
		NewToolInvocationBlock("call_1", "search", map[string]any{"q": "cats"}),
		NewToolInvocationBlock("call_2", "fetch", map[string]any{"url": "x"}),
	)

	invs := m.ToolInvocations()
	require.Len(t, invs, 2)
	assert.Equal(t, "call_1", invs[0].ToolID)
	assert.Equal(t, "call_2", invs[1].ToolID)

	results := NewMessage(RoleUser,
		NewToolResultBlock("call_1", []ToolResultPart{{Text: "ok"}}, ResultSuccess),
		NewToolResultBlock("call_2", []ToolResultPart{{Text: "fail"}}, ResultError),
	)
	assert.Equal(t, []string{"call_1", "call_2"}, results.ToolResultIDs())
}

func TestIsToolResultOnly(t *testing.T) {
	onlyResults := NewMessage(RoleUser,
		NewToolResultBlock("call_1", []ToolResultPart{{Text: "ok"}}, ResultSuccess),
	)
	assert.True(t, onlyResults.IsToolResultOnly())

	withHint := NewMessage(RoleUser,
		NewCacheHintBlock(),
		NewToolResultBlock("call_1", []ToolResultPart{{Text: "ok"}}, ResultSuccess),
	)
	assert.True(t, withHint.IsToolResultOnly())

	mixed := NewMessage(RoleUser,
		NewTextBlock("and also"),
		NewToolResultBlock("call_1", []ToolResultPart{{Text: "ok"}}, ResultSuccess),
	)
	assert.False(t, mixed.IsToolResultOnly())

	noResults := NewUserTextMessage("plain")
	assert.False(t, noResults.IsToolResultOnly())
}

func TestCloneIsDeep(t *testing.T) {
	m := NewMessage(RoleAssistant,
		NewTextBlock("hello"),
		NewImageBlock(ImagePNG, []byte{1, 2, 3}),
	)
	m.SetMetadata(MetadataModel, "gpt-4o")

	cp := m.Clone()
	require.Equal(t, m.ID, cp.ID)
	require.Len(t, cp.Blocks, 2)

	cp.Blocks[0].Text = "changed"
	cp.Blocks[1].ImageData[0] = 9
	cp.Metadata[MetadataModel] = "other"

	assert.Equal(t, "hello", m.Blocks[0].Text)
	assert.Equal(t, byte(1), m.Blocks[1].ImageData[0])
	assert.Equal(t, "gpt-4o", m.Metadata[MetadataModel])
}
