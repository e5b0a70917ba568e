// Package openai is the HTTP transport for an OpenAI-compatible
// chat-completions proxy, covering both single-shot and SSE streaming
// calls.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// maxLineSize bounds one SSE line; tool arguments can run long.
const maxLineSize = 1 << 20

// Client talks to one proxy endpoint. The streaming client carries no
// timeout: an open stream is bounded only by the caller's context.
type Client struct {
	config       *types.Config
	client       *http.Client
	streamClient *http.Client
}

// New validates the config and builds a client.
func New(config *types.Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:       config,
		client:       &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
}

// CreateChatCompletion issues a single-shot completion.
func (c *Client) CreateChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	req.Stream = false
	req.StreamOptions = nil
	if req.Model == "" {
		req.Model = c.config.Model
	}
	if req.Model == "" {
		return nil, types.NewRequestError("no model configured", types.ErrMissingModel)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewRequestError("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewRequestError("create request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewNetworkError("request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewNetworkError("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var chatResp types.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, types.NewRequestError("unmarshal response", err)
	}
	return &chatResp, nil
}

// CreateChatCompletionStream opens a streaming completion. The returned
// channel closes after a chunk with Done set; a failed read surfaces on
// that final chunk's Err. The caller must drain the channel until it
// closes, including after cancellation.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req types.ChatCompletionRequest) (<-chan types.StreamChunk, error) {
	req.Stream = true
	if req.StreamOptions == nil {
		req.StreamOptions = &types.StreamOptions{IncludeUsage: true}
	}
	if req.Model == "" {
		req.Model = c.config.Model
	}
	if req.Model == "" {
		return nil, types.NewRequestError("no model configured", types.ErrMissingModel)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewRequestError("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewRequestError("create request", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewNetworkError("request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, respBody)
	}

	chunks := make(chan types.StreamChunk, 16)
	go c.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

// readStream scans SSE lines into chunks until the DONE sentinel, a
// read error, or context cancellation.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- types.StreamChunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			chunks <- types.StreamChunk{Done: true}
			return
		}

		var chunk types.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			chunks <- types.StreamChunk{Done: true, Err: types.NewRequestError("unmarshal chunk", err)}
			return
		}

		select {
		case chunks <- chunk:
		case <-ctx.Done():
			chunks <- types.StreamChunk{Done: true, Err: ctx.Err()}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			chunks <- types.StreamChunk{Done: true, Err: ctx.Err()}
			return
		}
		chunks <- types.StreamChunk{Done: true, Err: types.NewNetworkError("read stream", err)}
		return
	}

	// The proxy closed the stream without a DONE sentinel.
	chunks <- types.StreamChunk{Done: true}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// statusError maps a non-2xx response to a ProviderError, pulling the
// message and code out of the JSON error envelope when present.
func statusError(status int, body []byte) *types.ProviderError {
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}
	code := gjson.GetBytes(body, "error.code").String()
	if code == "" {
		code = gjson.GetBytes(body, "error.type").String()
	}
	return types.NewStatusError(status, code, message)
}
