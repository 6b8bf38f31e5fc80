// Package llm is a minimal OpenAI-compatible chat-completions client with tool calling.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrRateLimited is returned when the gateway answers 429.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrQuotaExceeded is returned when the account is out of credits.
	ErrQuotaExceeded = errors.New("llm: quota exceeded")
	// ErrEmptyResponse is returned when the response carries no usable choice.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// ToolDefinition describes one callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one tool invocation selected by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResponse holds either plain text or tool calls (or both).
type ToolResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Completer is the narrow interface the commander depends on.
type Completer interface {
	CompleteWithTools(ctx context.Context, system, user string, tools []ToolDefinition) (*ToolResponse, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to {BaseURL}/chat/completions.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// mapToolDefinitions converts tool definitions to the wire format.
func mapToolDefinitions(tools []ToolDefinition) []chatTool {
	out := make([]chatTool, len(tools))
	for i, t := range tools {
		out[i] = chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func mapToolCalls(calls []chatToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Type != "" && c.Type != "function" {
			continue
		}
		args := strings.TrimSpace(c.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		out = append(out, ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: json.RawMessage(args)})
	}
	return out
}

// CompleteWithTools sends one system+user exchange and returns the first choice. It does
// not retry.
func (c *Client) CompleteWithTools(ctx context.Context, system, user string, tools []ToolDefinition) (*ToolResponse, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if len(tools) > 0 {
		reqBody.Tools = mapToolDefinitions(tools)
		reqBody.ToolChoice = "auto"
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("llm completion",
		zap.String("model", c.cfg.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		if isQuota(parsed.Error) {
			return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, parsed.Error.Message)
		}
		return nil, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	msg := parsed.Choices[0].Message
	out := &ToolResponse{Text: strings.TrimSpace(msg.Content), ToolCalls: mapToolCalls(msg.ToolCalls)}
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

func classifyStatus(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	var envelope struct {
		Error *apiError `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}
	switch {
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, snippet)
	case envelope.Error != nil && isQuota(envelope.Error):
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, snippet)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, snippet)
	default:
		return fmt.Errorf("llm request failed with status %d: %s", status, snippet)
	}
}

func isQuota(e *apiError) bool {
	return e.Code == "insufficient_quota" || e.Type == "insufficient_quota"
}
