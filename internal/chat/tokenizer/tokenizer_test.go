package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
)

func TestCountEmpty(t *testing.T) {
	e := New("")
	assert.Equal(t, 0, e.Count(""))
}

func TestCountGrowsWithText(t *testing.T) {
	e := New("")
	short := e.Count("hello")
	long := e.Count("hello there, this is a much longer piece of text about token counting")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestHeuristicFallback(t *testing.T) {
	// An estimator without an encoding uses the rune heuristic.
	e := &Estimator{}
	assert.Equal(t, 2, e.Count("eight ch"))
	assert.Equal(t, 1, e.Count("abc"))
}

func TestCountMessage(t *testing.T) {
	e := &Estimator{}

	msg := chat.NewMessage(chat.RoleAssistant,
		chat.NewTextBlock("four char groups here"),
		chat.NewToolInvocationBlock("call_1", "search", map[string]any{"q": "cats"}),
	)

	total := e.CountMessage(msg)
	assert.Greater(t, total, messageOverhead)

	// Adding blocks never lowers the estimate.
	bigger := chat.NewMessage(chat.RoleAssistant, append(msg.Blocks, chat.NewTextBlock("and more text"))...)
	assert.Greater(t, e.CountMessage(bigger), total)
}

func TestCountMessageToolResults(t *testing.T) {
	e := &Estimator{}

	withValue := chat.NewMessage(chat.RoleUser, chat.NewToolResultBlock("call_1", []chat.ToolResultPart{
		{Value: map[string]any{"answer": "forty two", "trace": "something long enough to count"}},
	}, chat.ResultSuccess))

	assert.Greater(t, e.CountMessage(withValue), messageOverhead)
}

func TestCountConversation(t *testing.T) {
	e := &Estimator{}
	msgs := []*chat.Message{
		chat.NewUserTextMessage("first message"),
		chat.NewUserTextMessage("second message"),
	}
	assert.Equal(t, e.CountMessage(msgs[0])+e.CountMessage(msgs[1]), e.CountConversation(msgs))
}

func TestCountMessageNil(t *testing.T) {
	e := &Estimator{}
	assert.Equal(t, 0, e.CountMessage(nil))
}
