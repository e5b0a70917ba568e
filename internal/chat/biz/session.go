package biz

import (
	"context"
	"sync"
	"time"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
)

// StoredSession is a session as the durable store returns it.
type StoredSession struct {
	ID           string
	AgentKind    string
	ModelID      string
	SystemPrompt string
	Messages     []*chat.Message
	CreatedAt    time.Time
}

// SessionRepo is the persistence contract for sessions and their messages.
// Writes are fire-and-forget: implementations apply them asynchronously but
// in submission order, so a message is durable before anything that causally
// depends on it. GetSession is the one synchronous read.
type SessionRepo interface {
	CreateSession(ctx context.Context, agentKind, modelID, systemPrompt string) (string, error)
	GetSession(ctx context.Context, id string) (*StoredSession, error)
	AddMessage(ctx context.Context, sessionID string, msg *chat.Message) error
	UpdateMessage(ctx context.Context, sessionID string, msg *chat.Message) error
	DeleteMessage(ctx context.Context, sessionID string, index int) error
	SetActiveSession(ctx context.Context, id string) error
}

// Session is the live, in-memory state of one conversation: the ordered
// message list plus turn bookkeeping. The orchestrator is the only writer;
// everyone else gets deep-copied snapshots.
type Session struct {
	mu sync.RWMutex

	id           string
	agentKind    string
	modelID      string
	systemPrompt string

	messages []*chat.Message
	draft    *chat.Message

	cancel         context.CancelFunc
	loading        bool
	executingTools bool

	// Identity of the most recent finalized assistant message, used to
	// attach usage metadata that arrives after the message body.
	lastAssistantID  string
	awaitingMetadata bool
}

func newSession(id, agentKind, modelID, systemPrompt string, msgs []*chat.Message) *Session {
	return &Session{
		id:           id,
		agentKind:    agentKind,
		modelID:      modelID,
		systemPrompt: systemPrompt,
		messages:     msgs,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// AgentKind returns the session's agent kind.
func (s *Session) AgentKind() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentKind
}

// ModelID returns the model the session was created with.
func (s *Session) ModelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelID
}

// SystemPrompt returns the session's system prompt.
func (s *Session) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// Messages returns a deep-copied snapshot for display, including the
// in-progress assistant draft when a stream is open.
func (s *Session) Messages() []*chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := chat.CloneMessages(s.messages)
	if s.draft != nil {
		out = append(out, s.draft.Clone())
	}
	return out
}

// Flags reports the session's turn-progress flags.
func (s *Session) Flags() (loading, executingTools bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading, s.executingTools
}

// conversation returns a deep-copied snapshot of the committed messages,
// without the draft. Requests to the model are built from this.
func (s *Session) conversation() []*chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return chat.CloneMessages(s.messages)
}

func (s *Session) append(msg *chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Session) length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Session) setDraft(msg *chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = msg
}

func (s *Session) clearDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
}

// beginScope replaces the session's cancellation scope: at most one
// operation is in flight per session, last writer wins.
func (s *Session) beginScope(parent context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.loading = true
	return ctx
}

func (s *Session) setExecutingTools(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executingTools = v
}

// abort cancels the active scope and clears turn state. Safe to call at any
// time, including when nothing is in flight.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
	s.executingTools = false
	s.draft = nil
	s.awaitingMetadata = false
}

// setFinalized records the identity of a just-finalized assistant message
// and whether its usage metadata is still outstanding.
func (s *Session) setFinalized(id string, awaitingMetadata bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAssistantID = id
	s.awaitingMetadata = awaitingMetadata
}

// claimMetadata resolves the pending metadata correlation exactly once,
// returning the message id the metadata belongs to.
func (s *Session) claimMetadata() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.awaitingMetadata {
		return "", false
	}
	s.awaitingMetadata = false
	return s.lastAssistantID, true
}

// updateMessage applies fn to the message with the given id and returns a
// deep copy of the updated message for persistence.
func (s *Session) updateMessage(id string, fn func(*chat.Message)) (*chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			fn(m)
			return m.Clone(), true
		}
	}
	return nil, false
}

// danglingIndices returns the indices of messages holding a tool invocation
// with no matching tool result anywhere in the conversation, ascending.
func (s *Session) danglingIndices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	answered := make(map[string]bool)
	for _, m := range s.messages {
		for _, id := range m.ToolResultIDs() {
			answered[id] = true
		}
	}

	var indices []int
	for i, m := range s.messages {
		for _, inv := range m.ToolInvocations() {
			if !answered[inv.ToolID] {
				indices = append(indices, i)
				break
			}
		}
	}
	return indices
}

// removeAt deletes the message at index i, returning it.
func (s *Session) removeAt(i int) *chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.messages) {
		return nil
	}
	removed := s.messages[i]
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	return removed
}
