// Package gemini implements the ai.ChatModel capability on top of the
// Google GenAI SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"orderdesk_backend/platform/ai"

	"google.golang.org/genai"
)

// Client calls the Gemini API through google.golang.org/genai.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini chat client. Model defaults to gemini-2.0-flash.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// Chat implements ai.ChatModel. System messages are folded into the system
// instruction; assistant turns map onto the model role.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}
