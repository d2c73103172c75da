package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"orderdesk_backend/platform/ai"
)

// ModelSuggester asks a chat model to propose headers for canonical fields
// the heuristics could not place.
type ModelSuggester struct {
	model ai.ChatModel
}

// NewModelSuggester returns nil when no model is configured, so the mapper
// stays on its silent heuristic path.
func NewModelSuggester(model ai.ChatModel) Suggester {
	if model == nil {
		return nil
	}
	return &ModelSuggester{model: model}
}

func (s *ModelSuggester) SuggestMapping(ctx context.Context, headers []string, entity Entity, missing []string) (map[string]string, error) {
	prompt := fmt.Sprintf(
		"A spreadsheet of %s has these column headers:\n%s\n\n"+
			"Map each of these canonical fields to the single best matching header, "+
			"or omit the field if no header fits:\n%s\n\n"+
			"Reply with a JSON object whose keys are canonical field names and whose "+
			"values are headers copied verbatim from the list above. No other text.",
		entity,
		strings.Join(headers, " | "),
		strings.Join(missing, ", "),
	)

	temp := 0.0
	text, err := s.model.Chat(ctx, []ai.Message{{Role: "user", Content: prompt}}, ai.Options{Temperature: &temp})
	if err != nil {
		return nil, err
	}

	raw, err := ai.FirstJSONObject(text)
	if err != nil {
		return nil, err
	}

	var suggested map[string]string
	if err := json.Unmarshal([]byte(raw), &suggested); err != nil {
		return nil, fmt.Errorf("decode mapping suggestion: %w", err)
	}
	return suggested, nil
}
