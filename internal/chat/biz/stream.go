package biz

import (
	"context"

	"go.uber.org/zap"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/proxy/retry"
	"github.com/lk2023060901/chat-bridge/internal/proxy/translate"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// streamTurn runs one model round under the turn's cancellation scope:
// open the stream through the retry policy, fold the native event sequence
// into a materializing assistant message, finalize it and return it with
// its stop reason.
func (uc *ChatUseCase) streamTurn(turnCtx context.Context, sess *Session) (*chat.Message, chat.StopReason, error) {
	return uc.streamTurnOnce(turnCtx, sess, true)
}

func (uc *ChatUseCase) streamTurnOnce(turnCtx context.Context, sess *Session, retryMalformed bool) (*chat.Message, chat.StopReason, error) {
	model := uc.effectiveModel()
	req := uc.buildRequest(sess, model)

	chunks, err := retry.Do(turnCtx, uc.policy, model,
		func(ctx context.Context) (<-chan proxytypes.StreamChunk, error) {
			return uc.transport.CreateChatCompletionStream(ctx, req)
		})
	if err != nil {
		return nil, "", err
	}

	acc := chat.NewAccumulator()
	dec := translate.NewStreamDecoder()

	var (
		finalized *chat.Message
		streamErr error
	)

	for chunk := range chunks {
		if chunk.Err != nil {
			if streamErr == nil {
				streamErr = chunk.Err
			}
			continue
		}
		if chunk.Done {
			continue
		}

		for _, ev := range dec.Decode(chunk) {
			acc.Apply(ev)

			switch ev.Type {
			case chat.EventMessageStop:
				if acc.Started() && turnCtx.Err() == nil {
					finalized = uc.finalizeAssistant(turnCtx, sess, acc, model)
				}
			case chat.EventMetadata:
				uc.attachMetadata(turnCtx, sess, acc)
			default:
				uc.publishDraft(sess, acc)
			}
		}
	}

	if streamErr != nil {
		if turnCtx.Err() != nil {
			return nil, "", turnCtx.Err()
		}
		return nil, "", streamErr
	}
	if turnCtx.Err() != nil {
		return nil, "", turnCtx.Err()
	}

	// A stream that closed without completing the message is malformed or
	// empty; the whole turn is silently retried once before giving up.
	if finalized == nil {
		if retryMalformed {
			uc.logger.Warn("malformed stream, retrying turn",
				zap.String("session_id", sess.ID()),
				zap.String("model", model),
			)
			sess.clearDraft()
			return uc.streamTurnOnce(turnCtx, sess, false)
		}
		return nil, "", proxytypes.NewMalformedStreamError("stream ended before the message completed")
	}

	return finalized, acc.StopReason(), nil
}

// finalizeAssistant commits the accumulated message: it gets an identity,
// joins the session, and goes out for persistence. When usage already
// arrived the persist is complete; otherwise a placeholder goes out now and
// the metadata event finishes the job.
func (uc *ChatUseCase) finalizeAssistant(ctx context.Context, sess *Session, acc *chat.Accumulator, model string) *chat.Message {
	built := acc.Message()
	msg := chat.NewMessage(chat.RoleAssistant, built.Blocks...)
	msg.SetMetadata(chat.MetadataStopReason, string(acc.StopReason()))
	msg.SetMetadata(chat.MetadataModel, model)

	usage := acc.Usage()
	if usage != nil {
		msg.SetMetadata(chat.MetadataUsage, usage)
	}

	sess.append(msg)
	sess.clearDraft()
	sess.setFinalized(msg.ID, usage == nil)

	if err := uc.repo.AddMessage(ctx, sess.ID(), msg); err != nil {
		uc.logger.Warn("failed to persist assistant message",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
	uc.publish(sess.ID(), msg)
	return msg
}

// attachMetadata correlates usage that arrives after the message body with
// the finalized message awaiting it. The usage-bearing durable write
// happens exactly once; usage folded before finalization rides along with
// the finalize persist instead.
func (uc *ChatUseCase) attachMetadata(ctx context.Context, sess *Session, acc *chat.Accumulator) {
	usage := acc.Usage()
	if usage == nil {
		return
	}

	id, ok := sess.claimMetadata()
	if !ok {
		return
	}

	updated, found := sess.updateMessage(id, func(m *chat.Message) {
		m.SetMetadata(chat.MetadataUsage, usage)
	})
	if !found {
		return
	}

	if err := uc.repo.UpdateMessage(ctx, sess.ID(), updated); err != nil {
		uc.logger.Warn("failed to persist usage metadata",
			zap.String("session_id", sess.ID()),
			zap.String("message_id", id),
			zap.Error(err),
		)
	}
	uc.publish(sess.ID(), updated)
}

// publishDraft republishes the in-progress assistant message after a fold,
// in chunk-arrival order.
func (uc *ChatUseCase) publishDraft(sess *Session, acc *chat.Accumulator) {
	draft := acc.Message()
	sess.setDraft(draft)
	uc.publish(sess.ID(), draft)
}

// buildRequest assembles the proxy request from a truncated, trace-stripped
// snapshot of the conversation.
func (uc *ChatUseCase) buildRequest(sess *Session, model string) proxytypes.ChatCompletionRequest {
	conversation := sess.conversation()
	conversation = uc.truncateToBudget(sess, conversation)
	stripToolResultFields(conversation, uc.agentCfg.StripFields)

	system := translate.SystemPrompt{
		Text:  sess.SystemPrompt(),
		Cache: uc.agentCfg.CachePrompt,
	}
	if system.Text == "" {
		system.Text = uc.agentCfg.SystemPrompt
	}

	return translate.BuildChatRequest(conversation, system, uc.tools, translate.Params{
		Model:          model,
		Temperature:    optionalParam(uc.proxyCfg.Temperature),
		TopP:           optionalParam(uc.proxyCfg.TopP),
		MaxTokens:      uc.proxyCfg.MaxTokens,
		Stream:         true,
		ThinkingBudget: uc.proxyCfg.ThinkingBudget,
	})
}

func optionalParam(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// truncateToBudget drops the oldest messages until the conversation fits
// the configured token budget. The newest message always survives, and the
// cut never leaves the conversation opening with tool results whose
// invocations were dropped.
func (uc *ChatUseCase) truncateToBudget(sess *Session, msgs []*chat.Message) []*chat.Message {
	budget := uc.agentCfg.ContextTokenBudget
	if budget <= 0 || len(msgs) <= 1 {
		return msgs
	}

	costs := make([]int, len(msgs))
	total := 0
	for i, m := range msgs {
		costs[i] = uc.estimator.CountMessage(m)
		total += costs[i]
	}

	cut := 0
	for total > budget && cut < len(msgs)-1 {
		total -= costs[cut]
		cut++
	}
	for cut > 0 && cut < len(msgs)-1 && msgs[cut].IsToolResultOnly() {
		cut++
	}
	// If the skip ran into the final message and it holds only tool
	// results, back up to the assistant message that issued them instead.
	for cut > 0 && msgs[cut].IsToolResultOnly() {
		cut--
	}
	if cut == 0 {
		return msgs
	}

	uc.logger.Debug("truncated conversation to token budget",
		zap.String("session_id", sess.ID()),
		zap.Int("dropped", cut),
		zap.Int("kept", len(msgs)-cut),
	)
	return msgs[cut:]
}

// stripToolResultFields removes the configured fields from the structured
// payloads of prior tool results before resubmission, keeping token growth
// in check. Values are rebuilt rather than mutated; the live session state
// keeps the full payloads.
func stripToolResultFields(msgs []*chat.Message, fields []string) {
	if len(fields) == 0 {
		return
	}
	for _, m := range msgs {
		for bi := range m.Blocks {
			b := &m.Blocks[bi]
			if b.Kind != chat.BlockToolResult {
				continue
			}
			for pi := range b.Results {
				b.Results[pi].Value = stripFields(b.Results[pi].Value, fields)
			}
		}
	}
}

func stripFields(value any, fields []string) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	present := false
	for _, f := range fields {
		if _, hit := m[f]; hit {
			present = true
			break
		}
	}
	if !present {
		return value
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}
