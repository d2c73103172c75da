// Package openaicompat implements the ai.ChatModel capability against any
// OpenAI-compatible chat completions endpoint (Moonshot, DeepSeek, vLLM, ...).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"orderdesk_backend/platform/ai"
)

// Config for an OpenAI-compatible provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client posts chat completions over plain HTTP.
type Client struct {
	config Config
	client *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.moonshot.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "kimi-k2-turbo-preview"
	}
	return &Client{
		config: cfg,
		client: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat implements ai.ChatModel.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	converted := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != "system" && role != "assistant" {
			role = "user"
		}
		converted = append(converted, chatMessage{Role: role, Content: m.Content})
	}

	payload := map[string]interface{}{
		"model":    c.config.Model,
		"messages": converted,
	}
	if opts.Temperature != nil {
		payload["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("chat provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
