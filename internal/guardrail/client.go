// Package guardrail screens tool output against a hosted content policy
// before it rejoins the conversation.
package guardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	"github.com/lk2023060901/chat-bridge/internal/conf"
)

// DefaultTimeout bounds one policy check when the config does not.
const DefaultTimeout = 10 * time.Second

// applyRequest is the wire request for one policy check.
type applyRequest struct {
	GuardrailIdentifier string         `json:"guardrail_identifier"`
	GuardrailVersion    string         `json:"guardrail_version"`
	Source              string         `json:"source"`
	Content             []contentUnion `json:"content"`
}

type contentUnion struct {
	Text textContent `json:"text"`
}

type textContent struct {
	Text string `json:"text"`
}

// applyResponse is the wire verdict.
type applyResponse struct {
	Action  string `json:"action"`
	Outputs []struct {
		Text string `json:"text"`
	} `json:"outputs"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client checks content against a guardrail endpoint.
type Client struct {
	config conf.GuardrailConfig
	client *http.Client
}

// NewClient builds a guardrail client from the config.
func NewClient(cfg conf.GuardrailConfig) (*Client, error) {
	if cfg.Enabled && cfg.Endpoint == "" {
		return nil, fmt.Errorf("guardrail enabled without an endpoint")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Apply submits content for screening and returns the verdict.
func (c *Client) Apply(ctx context.Context, identifier, version, direction, content string) (*biz.GuardrailAssessment, error) {
	body, err := json.Marshal(applyRequest{
		GuardrailIdentifier: identifier,
		GuardrailVersion:    version,
		Source:              direction,
		Content:             []contentUnion{{Text: textContent{Text: content}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guardrail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create guardrail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("guardrail request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read guardrail response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Message != "" {
			return nil, fmt.Errorf("guardrail returned %d: %s", resp.StatusCode, er.Message)
		}
		return nil, fmt.Errorf("guardrail returned %d", resp.StatusCode)
	}

	var ar applyResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return nil, fmt.Errorf("failed to decode guardrail response: %w", err)
	}

	assessment := &biz.GuardrailAssessment{
		Action: biz.GuardrailAction(ar.Action),
	}
	for _, o := range ar.Outputs {
		assessment.Outputs = append(assessment.Outputs, biz.GuardrailOutput{Text: o.Text})
	}
	return assessment, nil
}
