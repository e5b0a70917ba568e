package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chat-bridge/internal/attachment"
	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	apperrors "github.com/lk2023060901/chat-bridge/internal/pkg/errors"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T) *ChatService {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)

	return &ChatService{
		processor: attachment.NewProcessor(conf.AttachmentConfig{}, log),
		logger:    log,
	}
}

func newTestContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code, body.Message
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func TestReadSubmissionJSONBody(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages",
		strings.NewReader(`{"text":"what is 2+2"}`))
	req.Header.Set("Content-Type", "application/json")
	c, _ := newTestContext(req)

	text, blocks, ok := svc.readSubmission(c)

	require.True(t, ok)
	assert.Equal(t, "what is 2+2", text)
	assert.Empty(t, blocks)
}

func TestReadSubmissionRejectsBadJSON(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages",
		strings.NewReader(`{"text":`))
	req.Header.Set("Content-Type", "application/json")
	c, w := newTestContext(req)

	_, _, ok := svc.readSubmission(c)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadSubmissionMultipartWithImage(t *testing.T) {
	svc := newTestService(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("text", "describe this"))
	part, err := writer.CreateFormFile("attachments", "pixel.png")
	require.NoError(t, err)
	_, err = part.Write(encodePNG(t))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, _ := newTestContext(req)

	text, blocks, ok := svc.readSubmission(c)

	require.True(t, ok)
	assert.Equal(t, "describe this", text)
	require.Len(t, blocks, 1)
	assert.Equal(t, chat.BlockImage, blocks[0].Kind)
	assert.Equal(t, chat.ImagePNG, blocks[0].ImageFormat)
}

func TestReadSubmissionMultipartTextOnly(t *testing.T) {
	svc := newTestService(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("text", "no files here"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, _ := newTestContext(req)

	text, blocks, ok := svc.readSubmission(c)

	require.True(t, ok)
	assert.Equal(t, "no files here", text)
	assert.Empty(t, blocks)
}

func TestReadSubmissionRejectsUnknownAttachment(t *testing.T) {
	svc := newTestService(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("attachments", "notes.xyz")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a known format"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, w := newTestContext(req)

	_, _, ok := svc.readSubmission(c)

	assert.False(t, ok)
	code, _ := decodeEnvelope(t, w)
	assert.Equal(t, apperrors.ErrChatAttachmentRejected, code)
}

func TestReadSubmissionRejectsTooManyAttachments(t *testing.T) {
	svc := newTestService(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	pixel := encodePNG(t)
	for i := 0; i <= maxAttachmentsPerSubmit; i++ {
		part, err := writer.CreateFormFile("attachments", "pixel.png")
		require.NoError(t, err)
		_, err = part.Write(pixel)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, w := newTestContext(req)

	_, _, ok := svc.readSubmission(c)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleErrorMapsDomainErrors(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"empty submission", biz.ErrEmptySubmission, http.StatusBadRequest, apperrors.ErrChatEmptySubmission},
		{"no model", biz.ErrNoModelConfigured, http.StatusBadRequest, apperrors.ErrChatNoModelConfigured},
		{"session not found", biz.ErrSessionNotFound, http.StatusNotFound, apperrors.ErrChatSessionNotFound},
		{"storage failed", apperrors.Wrap(errors.New("connection reset"), apperrors.ErrChatStorageFailed, "load session"), http.StatusInternalServerError, apperrors.ErrChatStorageFailed},
		{"rate limited", proxytypes.NewStatusError(429, "rate_limit", "slow down"), http.StatusTooManyRequests, apperrors.ErrProxyRateLimited},
		{"server error", proxytypes.NewStatusError(503, "overloaded", "busy"), http.StatusServiceUnavailable, apperrors.ErrProxyUnavailable},
		{"bad request upstream", proxytypes.NewStatusError(400, "invalid", "bad payload"), http.StatusBadGateway, apperrors.ErrProxyRequestFailed},
		{"malformed stream", proxytypes.NewMalformedStreamError("no finish"), http.StatusBadGateway, apperrors.ErrProxyMalformedStream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			c, w := newTestContext(req)

			svc.handleError(c, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			code, _ := decodeEnvelope(t, w)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}

func TestHandleErrorUnknownIsInternal(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c, w := newTestContext(req)

	svc.handleError(c, errors.New("wires crossed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestToSessionResponseNeverNilMessages(t *testing.T) {
	resp := toSessionResponse("sess-1", nil)

	require.NotNil(t, resp.Messages)
	assert.Empty(t, resp.Messages)
	assert.Equal(t, "sess-1", resp.SessionID)
}

func TestToListModelsResponse(t *testing.T) {
	models := []proxytypes.Model{
		{ID: "gpt-4o", OwnedBy: "openai", Created: 100},
		{ID: "claude-sonnet", OwnedBy: "anthropic", Created: 200},
	}

	resp := toListModelsResponse(models, "gpt-4o")

	require.Len(t, resp.Models, 2)
	assert.Equal(t, "gpt-4o", resp.Models[0].ID)
	assert.Equal(t, "anthropic", resp.Models[1].OwnedBy)
	assert.Equal(t, "gpt-4o", resp.Active)
}
