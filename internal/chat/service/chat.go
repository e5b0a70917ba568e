package service

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chat-bridge/internal/attachment"
	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/pkg/response"
	"github.com/lk2023060901/chat-bridge/internal/pkg/sse"
	"github.com/lk2023060901/chat-bridge/internal/proxy/registry"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/chat-bridge/internal/pkg/errors"
)

const maxAttachmentsPerSubmit = 10

// ChatService exposes the conversation loop over HTTP. Submissions block
// until the turn finishes; live progress goes out through the SSE hub.
type ChatService struct {
	uc        *biz.ChatUseCase
	processor *attachment.Processor
	hub       *sse.Hub
	models    *registry.Registry
	proxyCfg  *proxytypes.Config
	logger    *logger.Logger
}

// NewChatService creates the chat HTTP service.
func NewChatService(
	uc *biz.ChatUseCase,
	processor *attachment.Processor,
	hub *sse.Hub,
	models *registry.Registry,
	proxyCfg *proxytypes.Config,
	logger *logger.Logger,
) *ChatService {
	return &ChatService{
		uc:        uc,
		processor: processor,
		hub:       hub,
		models:    models,
		proxyCfg:  proxyCfg,
		logger:    logger,
	}
}

// RegisterRoutes mounts the chat API under the given group.
func (s *ChatService) RegisterRoutes(r *gin.RouterGroup) {
	chatGroup := r.Group("/chat")
	{
		chatGroup.POST("/messages", s.SubmitMessage)
		chatGroup.POST("/abort", s.AbortTurn)
		chatGroup.GET("/status", s.GetStatus)
		chatGroup.GET("/stream", s.StreamEvents)
		chatGroup.POST("/sessions", s.ClearSession)
		chatGroup.PUT("/sessions/:id/activate", s.SwitchSession)
		chatGroup.GET("/sessions/:id/messages", s.GetSessionMessages)
	}
	r.GET("/models", s.ListModels)
}

// SubmitMessage runs one full turn and returns the resulting transcript.
// A JSON body carries text only; multipart adds file attachments.
func (s *ChatService) SubmitMessage(c *gin.Context) {
	text, blocks, ok := s.readSubmission(c)
	if !ok {
		return
	}

	err := s.uc.Submit(c.Request.Context(), text, blocks)

	// Tag the request context so the completion log line carries the
	// session the turn ran under.
	if id := s.uc.ActiveSessionID(); id != "" {
		c.Request = c.Request.WithContext(logger.WithSessionID(c.Request.Context(), id))
	}

	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toSessionResponse(s.uc.ActiveSessionID(), s.uc.Messages()))
}

// readSubmission parses either body shape. It writes the error response
// itself so the handler can just bail out.
func (s *ChatService) readSubmission(c *gin.Context) (string, []chat.ContentBlock, bool) {
	if c.ContentType() != "multipart/form-data" {
		var req SubmitMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return "", nil, false
		}
		return req.Text, nil, true
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "invalid multipart form: "+err.Error())
		return "", nil, false
	}

	text := c.PostForm("text")

	fileHeaders := form.File["attachments"]
	if len(fileHeaders) == 0 {
		for _, headers := range form.File {
			fileHeaders = append(fileHeaders, headers...)
		}
	}
	if len(fileHeaders) > maxAttachmentsPerSubmit {
		response.BadRequest(c, "too many attachments")
		return "", nil, false
	}

	files := make([]attachment.File, 0, len(fileHeaders))
	for _, fileHeader := range fileHeaders {
		file, err := fileHeader.Open()
		if err != nil {
			response.BadRequest(c, "failed to open attachment: "+fileHeader.Filename)
			return "", nil, false
		}

		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			response.InternalError(c, "failed to read attachment: "+fileHeader.Filename)
			return "", nil, false
		}

		files = append(files, attachment.File{
			Name: fileHeader.Filename,
			Data: data,
		})
	}

	if len(files) == 0 {
		return text, nil, true
	}

	blocks, err := s.processor.Process(files)
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrChatAttachmentRejected, err.Error())
		return "", nil, false
	}
	return text, blocks, true
}

// AbortTurn cancels the in-flight turn, if any.
func (s *ChatService) AbortTurn(c *gin.Context) {
	s.uc.Abort(c.Request.Context())
	response.Success(c, nil)
}

// GetStatus reports the active session and turn phase.
func (s *ChatService) GetStatus(c *gin.Context) {
	sessionID, loading, executingTools := s.uc.Status()
	response.Success(c, &StatusResponse{
		SessionID:      sessionID,
		Loading:        loading,
		ExecutingTools: executingTools,
	})
}

// ClearSession archives the active session and starts a fresh one.
func (s *ChatService) ClearSession(c *gin.Context) {
	id, err := s.uc.ClearSession(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Created(c, &ClearSessionResponse{SessionID: id})
}

// SwitchSession makes a stored session the active one.
func (s *ChatService) SwitchSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.uc.SwitchSession(c.Request.Context(), id); err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toSessionResponse(id, s.uc.Messages()))
}

// GetSessionMessages returns a transcript snapshot for any stored session.
func (s *ChatService) GetSessionMessages(c *gin.Context) {
	id := c.Param("id")
	messages, err := s.uc.SessionMessages(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toSessionResponse(id, messages))
}

// StreamEvents subscribes the caller to live message snapshots over SSE.
// The stream opens with one "snapshot" event carrying the transcript so a
// client connecting mid-turn starts from current state.
func (s *ChatService) StreamEvents(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = s.uc.ActiveSessionID()
	}
	if sessionID == "" {
		response.BadRequest(c, "no session to stream")
		return
	}

	messages, err := s.uc.SessionMessages(c.Request.Context(), sessionID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	stream := sse.NewStream(c, s.hub).
		WithSession(sessionID).
		WithBufferSize(64).
		WithHeartbeat(30 * time.Second).
		OnConnect(func() {
			s.logger.Info("stream connected",
				zap.String("session_id", sessionID))
		}).
		OnDisconnect(func() {
			s.logger.Info("stream disconnected",
				zap.String("session_id", sessionID))
		}).
		Build()

	// Queued before the pump starts; the buffer holds it until then.
	_ = stream.Send("snapshot", toSessionResponse(sessionID, messages))

	stream.StartStreaming()
}

// ListModels returns what the proxy currently serves.
func (s *ChatService) ListModels(c *gin.Context) {
	models, err := s.models.Models(c.Request.Context(), s.proxyCfg)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toListModelsResponse(models, s.proxyCfg.Model))
}

func (s *ChatService) handleError(c *gin.Context, err error) {
	var (
		pe *proxytypes.ProviderError
		ae *apperrors.AppError
	)

	switch {
	case errors.Is(err, biz.ErrEmptySubmission):
		response.ErrorWithCode(c, apperrors.ErrChatEmptySubmission)
	case errors.Is(err, biz.ErrNoModelConfigured):
		response.ErrorWithCode(c, apperrors.ErrChatNoModelConfigured)
	case errors.Is(err, biz.ErrSessionNotFound):
		response.ErrorWithCode(c, apperrors.ErrChatSessionNotFound)
	case proxytypes.IsMalformedStream(err):
		response.ErrorWithCode(c, apperrors.ErrProxyMalformedStream)
	case errors.As(err, &pe):
		response.ErrorWithCode(c, proxyErrorCode(pe), pe.Message)
	case errors.As(err, &ae):
		s.logger.Error("request failed", zap.Int("code", ae.Code), zap.Error(err))
		response.HandleError(c, err)
	default:
		s.logger.Error("internal error", zap.Error(err))
		response.InternalError(c, "internal server error")
	}
}

func proxyErrorCode(pe *proxytypes.ProviderError) int {
	switch {
	case pe.IsRateLimit():
		return apperrors.ErrProxyRateLimited
	case pe.IsTransient():
		return apperrors.ErrProxyUnavailable
	default:
		return apperrors.ErrProxyRequestFailed
	}
}
