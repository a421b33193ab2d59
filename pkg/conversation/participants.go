package conversation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/toolregistry"
)

// maxToolRounds bounds the chat/execute loop inside a single agent
// turn so a model that keeps requesting tools cannot stall the run.
const maxToolRounds = 8

// participant is one seat in the round-robin. Speak produces the
// participant's message for the current turn given the transcript so
// far.
type participant interface {
	Name() string
	Role() string
	Speak(ctx context.Context, state *State) (string, error)
}

// humanProxy is the human's seat. Its turn blocks on the session
// bridge until the remote client sends a message.
type humanProxy struct {
	bridge    *bridge.Bridge
	sessionID string
}

func (h *humanProxy) Name() string { return "user" }
func (h *humanProxy) Role() string { return "user" }

func (h *humanProxy) Speak(ctx context.Context, _ *State) (string, error) {
	return h.bridge.AwaitInput(ctx, h.sessionID)
}

// localTool is a tool executed in-process rather than over HTTP, such
// as the clarification tool agents use when no human is in the loop.
type localTool struct {
	spec llm.ToolSpec
	fn   func(ctx context.Context, args map[string]interface{}) (string, error)
}

// agent is a model-backed seat: the supervisor or one assistant. Each
// turn renders the transcript from the agent's perspective, then runs
// a bounded chat/execute loop until the model answers with content.
type agent struct {
	name          string
	role          string
	systemMessage string
	model         string
	provider      llm.Provider
	bound         map[string]*toolregistry.BoundTool
	local         map[string]localTool
	logger        zerolog.Logger
}

func (a *agent) Name() string { return a.name }
func (a *agent) Role() string { return a.role }

func (a *agent) toolSpecs() []llm.ToolSpec {
	if len(a.bound) == 0 && len(a.local) == 0 {
		return nil
	}
	specs := make([]llm.ToolSpec, 0, len(a.bound)+len(a.local))
	for _, tool := range a.bound {
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Schema.InputSchema(),
		})
	}
	for _, tool := range a.local {
		specs = append(specs, tool.spec)
	}
	return specs
}

func (a *agent) Speak(ctx context.Context, state *State) (string, error) {
	messages := make([]llm.Message, 0, len(state.Messages))
	for _, m := range state.Messages {
		if m.Sender == a.name {
			messages = append(messages, llm.Message{Role: "assistant", Content: m.Content})
			continue
		}
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: fmt.Sprintf("%s: %s", m.Sender, m.Content),
		})
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.provider.Chat(ctx, llm.ChatRequest{
			Model:        a.model,
			SystemPrompt: a.systemMessage,
			Messages:     messages,
			Tools:        a.toolSpecs(),
		})
		if err != nil {
			return "", fmt.Errorf("chat call for agent %q failed: %w", a.name, err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := a.execute(ctx, call)
			a.logger.Debug().
				Str("agent", a.name).
				Str("tool", call.Name).
				Msg("Tool executed")
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("agent %q exceeded %d tool rounds in one turn", a.name, maxToolRounds)
}

// execute dispatches one tool call. Failures come back as descriptive
// result strings so the model can react and the turn continues.
func (a *agent) execute(ctx context.Context, call llm.ToolCall) string {
	if tool, ok := a.bound[call.Name]; ok {
		result, err := tool.Invoke(ctx, call.Parameters)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return result
	}
	if tool, ok := a.local[call.Name]; ok {
		result, err := tool.fn(ctx, call.Parameters)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return result
	}
	return fmt.Sprintf("Error: unknown tool %q", call.Name)
}

// clarificationTool is the self-tool agents get when no human proxy is
// seated. Calling it surfaces the question instead of blocking on a
// channel that has no human behind it.
func clarificationTool() localTool {
	return localTool{
		spec: llm.ToolSpec{
			Name:        "ask_user_for_input",
			Description: "Ask the user a clarifying question when required information is missing. The question is returned to the user and the run ends.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{
						"type":        "string",
						"description": "The question to ask the user.",
					},
				},
				"required": []string{"question"},
			},
		},
		fn: func(_ context.Context, args map[string]interface{}) (string, error) {
			question, _ := args["question"].(string)
			if question == "" {
				question = "Could you provide more detail?"
			}
			return fmt.Sprintf("CLARIFICATION_NEEDED: %s", question), nil
		},
	}
}
