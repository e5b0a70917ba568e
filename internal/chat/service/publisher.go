package service

import (
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/pkg/sse"
)

// HubPublisher forwards live message snapshots to SSE subscribers. The
// orchestrator hands over detached clones, so events can be serialized
// after the turn has moved on.
type HubPublisher struct {
	hub *sse.Hub
}

// NewHubPublisher wraps a hub as a snapshot publisher.
func NewHubPublisher(hub *sse.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish broadcasts one message snapshot to the session's subscribers.
func (p *HubPublisher) Publish(sessionID string, msg *chat.Message) {
	if msg == nil {
		return
	}
	p.hub.Broadcast(sessionID, sse.Event{
		Type: "message",
		Data: msg,
	})
}
