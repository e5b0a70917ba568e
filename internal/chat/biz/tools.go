package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
)

// executeToolRound runs every tool invocation of the assistant message, in
// order, under the turn's cancellation scope. The results are batched into
// a single user-role message, appended and persisted. Returns false when
// the message holds no invocations.
func (uc *ChatUseCase) executeToolRound(turnCtx context.Context, sess *Session, assistant *chat.Message) (bool, error) {
	if assistant == nil {
		return false, nil
	}
	invocations := assistant.ToolInvocations()
	if len(invocations) == 0 {
		return false, nil
	}

	sess.setExecutingTools(true)
	defer sess.setExecutingTools(false)

	// Strictly sequential: later tools may depend on earlier side effects,
	// and results must keep invocation order.
	results := make([]chat.ContentBlock, 0, len(invocations))
	for _, inv := range invocations {
		if err := turnCtx.Err(); err != nil {
			return false, err
		}
		results = append(results, uc.executeInvocation(turnCtx, inv))
	}

	// An abort during the last tool discards the batch; the dangling
	// invocation repair owns the cleanup.
	if err := turnCtx.Err(); err != nil {
		return false, err
	}

	resultMsg := chat.NewMessage(chat.RoleUser, results...)
	sess.append(resultMsg)
	if err := uc.repo.AddMessage(turnCtx, sess.ID(), resultMsg); err != nil {
		uc.logger.Warn("failed to persist tool results",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
	uc.publish(sess.ID(), resultMsg)
	return true, nil
}

// declineToolRound answers a round's invocations without executing them,
// batching error results the same way executeToolRound batches real ones.
// Used when the round limit stops the loop with a tool request pending, so
// the conversation never carries an unmatched invocation into the next
// submission.
func (uc *ChatUseCase) declineToolRound(ctx context.Context, sess *Session, assistant *chat.Message) {
	if assistant == nil {
		return
	}
	invocations := assistant.ToolInvocations()
	if len(invocations) == 0 {
		return
	}

	results := make([]chat.ContentBlock, 0, len(invocations))
	for _, inv := range invocations {
		results = append(results, chat.NewToolResultBlock(inv.ToolID, []chat.ToolResultPart{
			{Text: fmt.Sprintf("tool %s was not executed: tool round limit reached", inv.ToolName)},
		}, chat.ResultError))
	}

	resultMsg := chat.NewMessage(chat.RoleUser, results...)
	sess.append(resultMsg)
	if err := uc.repo.AddMessage(ctx, sess.ID(), resultMsg); err != nil {
		uc.logger.Warn("failed to persist declined tool results",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
	uc.publish(sess.ID(), resultMsg)
}

// executeInvocation runs one tool and wraps the outcome as a tool result.
// A failing tool never aborts the batch; the failure becomes an error
// result in its place.
func (uc *ChatUseCase) executeInvocation(ctx context.Context, inv chat.ContentBlock) chat.ContentBlock {
	value, err := uc.executor.Execute(ctx, inv)
	if err != nil {
		uc.logger.Warn("tool execution failed",
			zap.String("tool", inv.ToolName),
			zap.String("invocation_id", inv.ToolID),
			zap.Error(err),
		)
		return chat.NewToolResultBlock(inv.ToolID, []chat.ToolResultPart{
			{Text: fmt.Sprintf("tool %s failed: %v", inv.ToolName, err)},
		}, chat.ResultError)
	}

	result := chat.NewToolResultBlock(inv.ToolID, resultParts(value), chat.ResultSuccess)
	return uc.applyGuardrail(ctx, inv, result)
}

func resultParts(value any) []chat.ToolResultPart {
	switch v := value.(type) {
	case nil:
		return []chat.ToolResultPart{{Text: ""}}
	case string:
		return []chat.ToolResultPart{{Text: v}}
	default:
		return []chat.ToolResultPart{{Value: v}}
	}
}

// applyGuardrail screens a successful tool result when the guardrail is
// enabled and fully configured. Intervention replaces the content with the
// remediation text and marks the result as an error; a failing check falls
// back to the unfiltered result.
func (uc *ChatUseCase) applyGuardrail(ctx context.Context, inv chat.ContentBlock, result chat.ContentBlock) chat.ContentBlock {
	gc := uc.agentCfg.Guardrail
	if uc.guard == nil || !gc.Enabled || gc.Identifier == "" || gc.Version == "" {
		return result
	}

	assessment, err := uc.guard.Apply(ctx, gc.Identifier, gc.Version, GuardrailDirectionOutput, resultText(result))
	if err != nil {
		uc.logger.Warn("guardrail check failed, keeping unfiltered result",
			zap.String("tool", inv.ToolName),
			zap.String("invocation_id", inv.ToolID),
			zap.Error(err),
		)
		return result
	}
	if assessment == nil || assessment.Action != GuardrailActionIntervened {
		return result
	}

	remediation := assessmentText(assessment)
	if remediation == "" {
		remediation = "tool output withheld by guardrail"
	}
	uc.logger.Info("guardrail intervened on tool output",
		zap.String("tool", inv.ToolName),
		zap.String("invocation_id", inv.ToolID),
	)
	return chat.NewToolResultBlock(result.ToolInvocationID, []chat.ToolResultPart{
		{Text: remediation},
	}, chat.ResultError)
}

// resultText renders a tool result for guardrail screening.
func resultText(result chat.ContentBlock) string {
	var parts []string
	for _, p := range result.Results {
		if p.Text != "" {
			parts = append(parts, p.Text)
			continue
		}
		if p.Value != nil {
			if data, err := json.Marshal(p.Value); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func assessmentText(a *GuardrailAssessment) string {
	var parts []string
	for _, o := range a.Outputs {
		if o.Text != "" {
			parts = append(parts, o.Text)
		}
	}
	return strings.Join(parts, "\n")
}
