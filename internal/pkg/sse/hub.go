package sse

import (
	"encoding/json"
	"sync"
)

// Event is a single server-sent event. Data is JSON-encoded on the wire.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one subscriber connection. Session is the conversation the
// client watches; events for other sessions never reach it.
type Client struct {
	ID      string
	Channel chan Event
	Session string
}

// Hub fans events out to subscribers, grouped by session.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool // session -> clients
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
	}
}

// Register adds a client to its session group.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Session] == nil {
		h.clients[client.Session] = make(map[*Client]bool)
	}
	h.clients[client.Session][client] = true
}

// Unregister removes a client and closes its channel. Safe to call for a
// client that was never registered or is already gone.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.Session]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.Channel)

			if len(clients) == 0 {
				delete(h.clients, client.Session)
			}
		}
	}
}

// Broadcast delivers an event to every client watching the session.
// A client with a full buffer is skipped; each snapshot carries the whole
// message state, so the next delivery supersedes the dropped one.
func (h *Hub) Broadcast(session string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.clients[session]; ok {
		for client := range clients {
			select {
			case client.Channel <- event:
			default:
			}
		}
	}
}

// Send delivers an event to one client by ID.
func (h *Hub) Send(clientID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.clients {
		for client := range clients {
			if client.ID == clientID {
				select {
				case client.Channel <- event:
				default:
				}
				return
			}
		}
	}
}

// ClientCount reports how many clients watch the session.
func (h *Hub) ClientCount(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.clients[session]; ok {
		return len(clients)
	}
	return 0
}

// FormatSSE renders the event in text/event-stream framing.
func (e Event) FormatSSE() string {
	data, _ := json.Marshal(e.Data)
	return "event: " + e.Type + "\ndata: " + string(data) + "\n\n"
}
