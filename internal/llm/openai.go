package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dc-codes426/newsapi-ai/config"
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	cfg    config.LLMConfig
	apiKey string
	client *http.Client
}

// NewOpenAIClient creates a client from configuration.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:    cfg,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// WithKey returns a shallow copy bound to a per-request API key.
func (c *OpenAIClient) WithKey(apiKey string) Provider {
	if apiKey == "" {
		return c
	}
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function Tool   `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// ModelError reports a failed model call after retries were exhausted.
type ModelError struct {
	Status   int
	Attempts int
	Err      error
}

func (e *ModelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm call failed after %d attempts: status %d: %v", e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("llm call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Chat sends the conversation and tool set, retrying transient failures
// with exponential backoff.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []Tool) (Reply, error) {
	if c.apiKey == "" {
		return Reply{}, fmt.Errorf("llm api key not configured")
	}

	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		}
	}
	var ts []chatTool
	for _, t := range tools {
		ts = append(ts, chatTool{Type: "function", Function: t})
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Tools:       ts,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	backoff := c.cfg.RetryBackoff
	if backoff == 0 {
		backoff = 500 * time.Millisecond
	}
	tries := c.cfg.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt < tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return Reply{}, fmt.Errorf("request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			reply, status, err := decodeChat(resp)
			if err == nil {
				return reply, nil
			}
			lastErr = err
			lastStatus = status
			// 4xx other than 429 will not get better with retries.
			if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				return Reply{}, &ModelError{Status: status, Attempts: attempt + 1, Err: err}
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return Reply{}, ctx.Err()
			}
		}
	}
	return Reply{}, &ModelError{Status: lastStatus, Attempts: tries, Err: lastErr}
}

func decodeChat(resp *http.Response) (Reply, int, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Reply{}, resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, string(b))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{}, resp.StatusCode, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return Reply{}, resp.StatusCode, fmt.Errorf("no choices in response")
	}
	choice := out.Choices[0]
	return Reply{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, resp.StatusCode, nil
}
