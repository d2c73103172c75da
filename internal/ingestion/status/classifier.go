package status

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"orderdesk_backend/platform/ai"
)

// ModelClassifier asks a chat model to pick one member of the allowed set.
// Its answer is advisory: the normalizer rejects anything outside the set.
type ModelClassifier struct {
	model ai.ChatModel
}

// NewModelClassifier returns nil when no model is configured, so the
// normalizer's fallback path runs without classifier warnings.
func NewModelClassifier(model ai.ChatModel) Classifier {
	if model == nil {
		return nil
	}
	return &ModelClassifier{model: model}
}

func (c *ModelClassifier) ClassifyStatus(ctx context.Context, raw string, allowed []string) (string, error) {
	prompt := fmt.Sprintf(
		"An order status from a merchant spreadsheet reads: %q\n"+
			"It may be French, English, Arabic or transliterated Darija.\n"+
			"Pick the single closest status from this list: %s\n"+
			`Reply with JSON only: {"status": "<one list member verbatim>"}`,
		raw, strings.Join(allowed, ", "),
	)

	temp := 0.0
	text, err := c.model.Chat(ctx, []ai.Message{{Role: "user", Content: prompt}}, ai.Options{Temperature: &temp})
	if err != nil {
		return "", err
	}

	obj, err := ai.FirstJSONObject(text)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return "", fmt.Errorf("decode status classification: %w", err)
	}
	return parsed.Status, nil
}
