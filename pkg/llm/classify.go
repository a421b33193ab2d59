package llm

import (
	"context"
	"errors"
	"strings"
)

// Label is one of the two permitted routing classifications.
type Label string

const (
	// LabelInformational marks a direct informational question.
	LabelInformational Label = "informational_question"
	// LabelAction marks a command or a request for an action.
	LabelAction Label = "action_command"
)

// ErrLabelViolation is returned when the model emits anything other
// than one of the two permitted labels. Callers retry once and then
// fall back to the informational path.
var ErrLabelViolation = errors.New("classifier emitted an unpermitted label")

const classifierPrompt = `You are an expert routing agent. Based on the user's query, decide if a direct answer from a knowledge base is sufficient or if a team of AI agents is needed.

CRITERIA:
- If the query is a direct informational question (e.g., "What are...", "How do I..."), the decision is "informational_question".
- If the query is a command or a request for an action (e.g., "Book a demo.", "Help me schedule..."), the decision is "action_command".

You MUST answer by calling the route_query tool.`

// classifierTool constrains the model to a closed two-value enum
// instead of free text.
var classifierTool = ToolSpec{
	Name:        "route_query",
	Description: "Record the routing decision for the user's query.",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"decision": map[string]interface{}{
				"type": "string",
				"enum": []string{string(LabelAction), string(LabelInformational)},
			},
		},
		"required": []string{"decision"},
	},
}

// Classify asks the provider to label a user query as action-oriented
// or informational. Any output outside the two permitted labels is
// ErrLabelViolation.
func Classify(ctx context.Context, p Provider, model, question string) (Label, error) {
	resp, err := p.Chat(ctx, ChatRequest{
		Model:        model,
		SystemPrompt: classifierPrompt,
		Messages: []Message{
			{Role: "user", Content: "User Query: " + strings.TrimSpace(question)},
		},
		Tools:     []ToolSpec{classifierTool},
		MaxTokens: 64,
	})
	if err != nil {
		return "", err
	}

	for _, tc := range resp.ToolCalls {
		if tc.Name != classifierTool.Name {
			continue
		}
		decision, _ := tc.Parameters["decision"].(string)
		return parseLabel(decision)
	}

	// Some models answer with the bare token instead of the tool call.
	return parseLabel(resp.Content)
}

func parseLabel(raw string) (Label, error) {
	switch Label(strings.TrimSpace(raw)) {
	case LabelAction:
		return LabelAction, nil
	case LabelInformational:
		return LabelInformational, nil
	}
	return "", ErrLabelViolation
}
