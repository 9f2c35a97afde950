// ABOUTME: OpenAI-compatible chat completion client implementing Generator
// ABOUTME: Sends system prompt, flattened history and the new user message in one request

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of a completion response is read.
const maxResponseBytes = 4 << 20

// ClientConfig configures an OpenAI-compatible Client.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  *float64
	SystemPrompt string
	HTTPClient   *http.Client
}

// Client talks to an OpenAI-compatible /v1/chat/completions endpoint.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	temperature  *float64
	systemPrompt string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a Client. Deadlines come from the caller's context.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   httpClient,
		logger:       logger.With("component", "pipeline", "model", cfg.Model),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      *chatMessage `json:"message"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, userText string, history []Message) (string, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	if c.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: RoleSystem, Content: c.systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: RoleUser, Content: userText})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fromContext(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fromContext(err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			return "", &Error{Kind: KindUnavailable, Err: fmt.Errorf("completion API error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)}
		}
		return "", &Error{Kind: KindUnavailable, Err: fmt.Errorf("completion API error [%d]", resp.StatusCode)}
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.New("response has no choices")}
	}

	reply := strings.TrimSpace(result.Choices[0].Message.Content)
	if reply == "" {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.New("empty reply")}
	}

	attrs := []any{"completion_id", result.ID, "duration", time.Since(start), "history_len", len(history)}
	if result.Usage != nil {
		attrs = append(attrs, "prompt_tokens", result.Usage.PromptTokens, "completion_tokens", result.Usage.CompletionTokens)
	}
	c.logger.Debug("completion received", attrs...)

	return reply, nil
}

var _ Generator = (*Client)(nil)
