// Package ai defines the LLM chat capability consumed by the planner, the
// column mapper and the status normalizer. Providers live in subpackages.
package ai

import "context"

// Message is one turn of chat context.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Options tunes a single chat call.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// ChatModel is the minimal chat capability: messages in, text out. The text
// carries no structural guarantees; callers extract what they need from it.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}
