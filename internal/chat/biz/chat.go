// Package biz drives the agent loop: it submits user turns to the proxy,
// folds streamed deltas into assistant messages, executes requested tools,
// and keeps the session's in-memory and durable state consistent.
package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/chat/tokenizer"
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/notify"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/proxy/retry"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// DefaultAgentKind labels sessions created by the chat surface.
const DefaultAgentKind = "chat"

// Transport opens streaming chat-completion calls against the proxy.
type Transport interface {
	CreateChatCompletionStream(ctx context.Context, req proxytypes.ChatCompletionRequest) (<-chan proxytypes.StreamChunk, error)
}

// ToolExecutor runs one tool invocation and returns its decoded output.
// Any error is converted by the orchestrator into an error tool result.
type ToolExecutor interface {
	Execute(ctx context.Context, invocation chat.ContentBlock) (any, error)
}

// GuardrailDirectionOutput screens content leaving a tool for the model.
const GuardrailDirectionOutput = "OUTPUT"

// GuardrailAction is the verdict of a guardrail check.
type GuardrailAction string

const (
	GuardrailActionNone       GuardrailAction = "NONE"
	GuardrailActionIntervened GuardrailAction = "GUARDRAIL_INTERVENED"
)

// GuardrailOutput carries one remediation fragment.
type GuardrailOutput struct {
	Text string
}

// GuardrailAssessment is the result of screening one piece of content.
type GuardrailAssessment struct {
	Action  GuardrailAction
	Outputs []GuardrailOutput
}

// Guardrail screens tool output before it rejoins the conversation.
type Guardrail interface {
	Apply(ctx context.Context, identifier, version, direction, content string) (*GuardrailAssessment, error)
}

// Notifier receives one short summary per completed turn.
type Notifier interface {
	Notify(ctx context.Context, sessionID, summary string) error
}

// Publisher receives live message snapshots for display, in fold order.
type Publisher interface {
	Publish(sessionID string, msg *chat.Message)
}

// Exporter archives a session transcript when it is cleared or left.
type Exporter interface {
	Export(ctx context.Context, session *StoredSession) error
}

// ChatUseCase is the per-conversation agent orchestrator. Guardrail,
// notifier, publisher and exporter are optional; a nil collaborator
// disables the corresponding behavior.
type ChatUseCase struct {
	repo      SessionRepo
	transport Transport
	executor  ToolExecutor
	guard     Guardrail
	notifier  Notifier
	publisher Publisher
	exporter  Exporter

	policy    *retry.Policy
	estimator *tokenizer.Estimator

	proxyCfg conf.ProxyConfig
	agentCfg conf.AgentConfig
	tools    []chat.ToolSpec

	logger *logger.Logger

	mu     sync.RWMutex
	active *Session
}

// NewChatUseCase assembles the orchestrator from its collaborators.
func NewChatUseCase(
	repo SessionRepo,
	transport Transport,
	executor ToolExecutor,
	guard Guardrail,
	notifier Notifier,
	publisher Publisher,
	exporter Exporter,
	policy *retry.Policy,
	estimator *tokenizer.Estimator,
	cfg *conf.Config,
	log *logger.Logger,
) *ChatUseCase {
	if log == nil {
		log = logger.L()
	}
	if estimator == nil {
		estimator = tokenizer.New("")
	}
	if policy == nil {
		policy = retry.New(cfg.Retry.MaxRetries, cfg.Retry.Delay, log)
	}
	return &ChatUseCase{
		repo:      repo,
		transport: transport,
		executor:  executor,
		guard:     guard,
		notifier:  notifier,
		publisher: publisher,
		exporter:  exporter,
		policy:    policy,
		estimator: estimator,
		proxyCfg:  cfg.Proxy,
		agentCfg:  cfg.Agent,
		tools:     toolSpecs(cfg.Tools.Definitions),
		logger:    log,
	}
}

// toolSpecs converts configured tool definitions into advertised specs.
// A definition without parameters still advertises an object schema so
// no-argument tools reach the model.
func toolSpecs(defs []conf.ToolDefinition) []chat.ToolSpec {
	specs := make([]chat.ToolSpec, 0, len(defs))
	for _, d := range defs {
		specs = append(specs, chat.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: &chat.ToolInputSchema{
				Type:       "object",
				Properties: d.Parameters,
				Required:   d.Required,
			},
		})
	}
	return specs
}

// Submit runs one full agent turn for the given user input. It validates
// the input, appends and persists the user message, then streams model
// rounds until the model stops requesting tools. The call returns when the
// turn completes; live progress is published along the way.
func (uc *ChatUseCase) Submit(ctx context.Context, text string, attachments []chat.ContentBlock) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return ErrEmptySubmission
	}
	if uc.effectiveModel() == "" {
		return ErrNoModelConfigured
	}

	sess, err := uc.ensureSession(ctx)
	if err != nil {
		return err
	}
	ctx = logger.WithSessionID(ctx, sess.ID())

	// Attachments come before the text block.
	blocks := make([]chat.ContentBlock, 0, len(attachments)+1)
	blocks = append(blocks, attachments...)
	if strings.TrimSpace(text) != "" {
		blocks = append(blocks, chat.NewTextBlock(text))
	}

	userMsg := chat.NewMessage(chat.RoleUser, blocks...)
	sess.append(userMsg)
	if err := uc.repo.AddMessage(ctx, sess.ID(), userMsg); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	uc.publish(sess.ID(), userMsg)

	return uc.runTurn(ctx, sess)
}

// runTurn drives the turn's model rounds iteratively: stream, then execute
// tools while the model keeps asking for them, bounded by the round limit.
// The whole turn runs under one cancellation scope, so an abort landing
// between rounds still stops it.
func (uc *ChatUseCase) runTurn(ctx context.Context, sess *Session) error {
	turnCtx := sess.beginScope(ctx)

	assistant, stop, err := uc.streamTurn(turnCtx, sess)
	if err != nil {
		return uc.failTurn(ctx, sess, err)
	}

	rounds := 0
	for stop == chat.StopToolUse {
		if uc.agentCfg.MaxToolRounds > 0 && rounds >= uc.agentCfg.MaxToolRounds {
			uc.logger.Warn("tool round limit reached",
				zap.String("session_id", sess.ID()),
				zap.Int("rounds", rounds),
			)
			// The last round's invocations never run, but they still get
			// answered: an invocation without a result would poison the
			// next submission.
			uc.declineToolRound(turnCtx, sess, assistant)
			break
		}

		executed, err := uc.executeToolRound(turnCtx, sess, assistant)
		if err != nil {
			return uc.failTurn(ctx, sess, err)
		}
		if !executed {
			break
		}
		rounds++

		assistant, stop, err = uc.streamTurn(turnCtx, sess)
		if err != nil {
			return uc.failTurn(ctx, sess, err)
		}
	}

	sess.abort()
	uc.notifyTurn(ctx, sess, assistant)
	return nil
}

// failTurn converts a turn failure into conversation state. Cancellation
// stays silent; everything else becomes a synthetic assistant error message
// that is persisted and notified like a normal turn.
func (uc *ChatUseCase) failTurn(ctx context.Context, sess *Session, err error) error {
	sess.abort()

	if errors.Is(err, context.Canceled) {
		return nil
	}

	uc.logger.Error("turn failed",
		zap.String("session_id", sess.ID()),
		zap.Error(err),
	)

	errMsg := chat.NewMessage(chat.RoleAssistant,
		chat.NewTextBlock(fmt.Sprintf("The request failed: %v", err)))
	errMsg.SetMetadata(chat.MetadataError, err.Error())

	sess.append(errMsg)
	if perr := uc.repo.AddMessage(ctx, sess.ID(), errMsg); perr != nil {
		uc.logger.Warn("failed to persist error message", zap.Error(perr))
	}
	uc.publish(sess.ID(), errMsg)
	uc.notifyTurn(ctx, sess, errMsg)

	return err
}

func (uc *ChatUseCase) notifyTurn(ctx context.Context, sess *Session, assistant *chat.Message) {
	if uc.notifier == nil || assistant == nil {
		return
	}
	summary := notify.Summarize(assistant.Text())
	if summary == "" {
		return
	}
	if err := uc.notifier.Notify(ctx, sess.ID(), summary); err != nil {
		uc.logger.Warn("notification failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
}

// Abort cancels any in-flight operation and repairs the conversation so no
// tool invocation is left without a result. It never fails; aborting an
// idle session is a no-op.
func (uc *ChatUseCase) Abort(ctx context.Context) {
	sess := uc.activeSession()
	if sess == nil {
		return
	}
	sess.abort()
	uc.repairDangling(ctx, sess)
}

// repairDangling removes messages holding unanswered tool invocations from
// memory and the durable store, highest index first so the remaining
// indices stay stable during removal.
func (uc *ChatUseCase) repairDangling(ctx context.Context, sess *Session) {
	indices := sess.danglingIndices()
	for i := len(indices) - 1; i >= 0; i-- {
		idx := indices[i]
		removed := sess.removeAt(idx)
		if removed == nil {
			continue
		}
		if err := uc.repo.DeleteMessage(ctx, sess.ID(), idx); err != nil {
			uc.logger.Warn("failed to delete dangling message",
				zap.String("session_id", sess.ID()),
				zap.Int("index", idx),
				zap.Error(err),
			)
		}
		uc.logger.Debug("removed dangling tool invocation",
			zap.String("session_id", sess.ID()),
			zap.String("message_id", removed.ID),
			zap.Int("index", idx),
		)
	}
}

// ClearSession aborts any in-flight turn and starts a fresh session. The
// previous session's durable record stays intact.
func (uc *ChatUseCase) ClearSession(ctx context.Context) (string, error) {
	uc.Abort(ctx)
	uc.exportActive()

	id, err := uc.repo.CreateSession(ctx, DefaultAgentKind, uc.proxyCfg.Model, uc.agentCfg.SystemPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	sess := newSession(id, DefaultAgentKind, uc.proxyCfg.Model, uc.agentCfg.SystemPrompt, nil)
	uc.setActive(sess)
	if err := uc.repo.SetActiveSession(ctx, id); err != nil {
		uc.logger.Warn("failed to mark session active", zap.String("session_id", id), zap.Error(err))
	}
	return id, nil
}

// SwitchSession aborts the current operation, loads the target session's
// persisted messages and makes it the active session.
func (uc *ChatUseCase) SwitchSession(ctx context.Context, id string) error {
	uc.Abort(ctx)

	stored, err := uc.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	uc.exportActive()

	sess := newSession(stored.ID, stored.AgentKind, stored.ModelID, stored.SystemPrompt, stored.Messages)
	uc.setActive(sess)
	if err := uc.repo.SetActiveSession(ctx, id); err != nil {
		uc.logger.Warn("failed to mark session active", zap.String("session_id", id), zap.Error(err))
	}
	return nil
}

// ensureSession returns the active session, creating one on first use.
func (uc *ChatUseCase) ensureSession(ctx context.Context) (*Session, error) {
	if s := uc.activeSession(); s != nil {
		return s, nil
	}

	id, err := uc.repo.CreateSession(ctx, DefaultAgentKind, uc.proxyCfg.Model, uc.agentCfg.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sess := newSession(id, DefaultAgentKind, uc.proxyCfg.Model, uc.agentCfg.SystemPrompt, nil)
	uc.setActive(sess)
	if err := uc.repo.SetActiveSession(ctx, id); err != nil {
		uc.logger.Warn("failed to mark session active", zap.String("session_id", id), zap.Error(err))
	}
	return sess, nil
}

// exportActive archives the active session's transcript in the background.
func (uc *ChatUseCase) exportActive() {
	if uc.exporter == nil {
		return
	}
	sess := uc.activeSession()
	if sess == nil || sess.length() == 0 {
		return
	}

	stored := &StoredSession{
		ID:           sess.ID(),
		AgentKind:    sess.AgentKind(),
		ModelID:      sess.ModelID(),
		SystemPrompt: sess.SystemPrompt(),
		Messages:     sess.Messages(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := uc.exporter.Export(ctx, stored); err != nil {
			uc.logger.Warn("session export failed",
				zap.String("session_id", stored.ID),
				zap.Error(err),
			)
		}
	}()
}

// ActiveSessionID returns the live session's id, or empty when none exists.
func (uc *ChatUseCase) ActiveSessionID() string {
	if s := uc.activeSession(); s != nil {
		return s.ID()
	}
	return ""
}

// Messages returns a display snapshot of the active session, including the
// in-progress assistant draft.
func (uc *ChatUseCase) Messages() []*chat.Message {
	if s := uc.activeSession(); s != nil {
		return s.Messages()
	}
	return nil
}

// SessionMessages returns a snapshot of the given session: the live state
// for the active session, the stored record otherwise.
func (uc *ChatUseCase) SessionMessages(ctx context.Context, id string) ([]*chat.Message, error) {
	if s := uc.activeSession(); s != nil && s.ID() == id {
		return s.Messages(), nil
	}
	stored, err := uc.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return stored.Messages, nil
}

// Status reports the active session id and its turn-progress flags.
func (uc *ChatUseCase) Status() (sessionID string, loading, executingTools bool) {
	s := uc.activeSession()
	if s == nil {
		return "", false, false
	}
	loading, executingTools = s.Flags()
	return s.ID(), loading, executingTools
}

func (uc *ChatUseCase) activeSession() *Session {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.active
}

func (uc *ChatUseCase) setActive(s *Session) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.active = s
}

// effectiveModel resolves the model for the next call: the active session's
// model when set, otherwise the configured default.
func (uc *ChatUseCase) effectiveModel() string {
	if s := uc.activeSession(); s != nil {
		if m := s.ModelID(); m != "" {
			return m
		}
	}
	return uc.proxyCfg.Model
}

func (uc *ChatUseCase) publish(sessionID string, msg *chat.Message) {
	if uc.publisher == nil || msg == nil {
		return
	}
	uc.publisher.Publish(sessionID, msg.Clone())
}
