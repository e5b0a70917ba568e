package service

import (
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// SubmitMessageRequest is the JSON body for a text-only submission.
// Submissions with attachments use multipart/form-data instead, with the
// text in a "text" field and files under "attachments".
type SubmitMessageRequest struct {
	Text string `json:"text"`
}

// SessionResponse is a full transcript snapshot.
type SessionResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []*chat.Message `json:"messages"`
}

// ClearSessionResponse carries the replacement session's id.
type ClearSessionResponse struct {
	SessionID string `json:"session_id"`
}

// StatusResponse reports what the agent is doing right now.
type StatusResponse struct {
	SessionID      string `json:"session_id,omitempty"`
	Loading        bool   `json:"loading"`
	ExecutingTools bool   `json:"executing_tools"`
}

// ModelResponse is one entry of the model listing.
type ModelResponse struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// ListModelsResponse is the GET /models payload.
type ListModelsResponse struct {
	Models []*ModelResponse `json:"models"`
	Active string           `json:"active"`
}

func toSessionResponse(sessionID string, messages []*chat.Message) *SessionResponse {
	if messages == nil {
		messages = []*chat.Message{}
	}
	return &SessionResponse{
		SessionID: sessionID,
		Messages:  messages,
	}
}

func toListModelsResponse(models []proxytypes.Model, active string) *ListModelsResponse {
	items := make([]*ModelResponse, 0, len(models))
	for _, m := range models {
		items = append(items, &ModelResponse{
			ID:      m.ID,
			OwnedBy: m.OwnedBy,
			Created: m.Created,
		})
	}
	return &ListModelsResponse{
		Models: items,
		Active: active,
	}
}
