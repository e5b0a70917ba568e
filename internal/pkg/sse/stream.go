package sse

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Stream wraps one subscriber connection and drives the event loop over a
// gin response writer.
type Stream struct {
	client    *Client
	ctx       *gin.Context
	hub       *Hub
	session   string
	heartbeat time.Duration

	onConnect    func()
	onDisconnect func()
	onError      func(error)

	closed      atomic.Bool
	cancelFunc  context.CancelFunc
	connectTime time.Time
}

// StreamBuilder configures a Stream before it starts.
type StreamBuilder struct {
	ginCtx       *gin.Context
	hub          *Hub
	session      string
	bufferSize   int
	heartbeat    time.Duration
	onConnect    func()
	onDisconnect func()
	onError      func(error)
}

// NewStream starts a builder with a 10-event buffer and a 30s heartbeat.
func NewStream(c *gin.Context, hub *Hub) *StreamBuilder {
	return &StreamBuilder{
		ginCtx:     c,
		hub:        hub,
		bufferSize: 10,
		heartbeat:  30 * time.Second,
	}
}

// WithSession sets the session the stream subscribes to.
func (b *StreamBuilder) WithSession(session string) *StreamBuilder {
	b.session = session
	return b
}

// WithBufferSize sets the event channel capacity.
func (b *StreamBuilder) WithBufferSize(size int) *StreamBuilder {
	b.bufferSize = size
	return b
}

// WithHeartbeat sets the keep-alive interval. Zero disables heartbeats.
func (b *StreamBuilder) WithHeartbeat(interval time.Duration) *StreamBuilder {
	b.heartbeat = interval
	return b
}

// OnConnect runs after the stream registers with the hub.
func (b *StreamBuilder) OnConnect(fn func()) *StreamBuilder {
	b.onConnect = fn
	return b
}

// OnDisconnect runs once when the stream closes.
func (b *StreamBuilder) OnDisconnect(fn func()) *StreamBuilder {
	b.onDisconnect = fn
	return b
}

// OnError receives write and delivery failures.
func (b *StreamBuilder) OnError(fn func(error)) *StreamBuilder {
	b.onError = fn
	return b
}

// Build assembles the stream. It is not registered until StartStreaming.
func (b *StreamBuilder) Build() *Stream {
	client := &Client{
		ID:      uuid.New().String(),
		Channel: make(chan Event, b.bufferSize),
		Session: b.session,
	}

	return &Stream{
		client:       client,
		ctx:          b.ginCtx,
		hub:          b.hub,
		session:      b.session,
		heartbeat:    b.heartbeat,
		onConnect:    b.onConnect,
		onDisconnect: b.onDisconnect,
		onError:      b.onError,
		connectTime:  time.Now(),
	}
}

// Send queues an event for this stream only. A full buffer drops the event
// and reports it through the error hook.
func (s *Stream) Send(eventType string, data interface{}) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}

	event := Event{
		Type: eventType,
		Data: data,
	}

	select {
	case s.client.Channel <- event:
		return nil
	default:
		err := fmt.Errorf("stream buffer full, event dropped: %s", eventType)
		if s.onError != nil {
			s.onError(err)
		}
		return err
	}
}

// Close unregisters the stream. Idempotent.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.hub.Unregister(s.client)

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.onDisconnect != nil {
		s.onDisconnect()
	}

	return nil
}

// StartStreaming registers with the hub and pumps events to the client
// until it disconnects. Blocks for the lifetime of the connection.
func (s *Stream) StartStreaming() {
	s.ctx.Header("Content-Type", "text/event-stream")
	s.ctx.Header("Cache-Control", "no-cache")
	s.ctx.Header("Connection", "keep-alive")
	s.ctx.Header("X-Accel-Buffering", "no")

	s.hub.Register(s.client)
	defer s.Close()

	if s.onConnect != nil {
		s.onConnect()
	}

	connected := Event{
		Type: "connected",
		Data: map[string]string{
			"client_id": s.client.ID,
			"session":   s.client.Session,
		},
	}
	if _, err := fmt.Fprint(s.ctx.Writer, connected.FormatSSE()); err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	s.ctx.Writer.Flush()

	if s.heartbeat > 0 {
		var heartbeatCtx context.Context
		heartbeatCtx, s.cancelFunc = context.WithCancel(context.Background())
		go s.startHeartbeat(heartbeatCtx)
	}

	clientGone := s.ctx.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-s.client.Channel:
			if !ok {
				return
			}

			if _, err := fmt.Fprint(s.ctx.Writer, event.FormatSSE()); err != nil {
				if s.onError != nil {
					s.onError(err)
				}
				return
			}
			s.ctx.Writer.Flush()
		}
	}
}

func (s *Stream) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprintf(s.ctx.Writer, ": heartbeat\n\n"); err != nil {
				if s.onError != nil {
					s.onError(err)
				}
				return
			}
			s.ctx.Writer.Flush()
		}
	}
}

// ClientID returns the generated subscriber ID.
func (s *Stream) ClientID() string {
	return s.client.ID
}

// Session returns the subscribed session.
func (s *Stream) Session() string {
	return s.session
}

// Duration reports how long the stream has been connected.
func (s *Stream) Duration() time.Duration {
	return time.Since(s.connectTime)
}

// IsClosed reports whether Close has run.
func (s *Stream) IsClosed() bool {
	return s.closed.Load()
}
