package conversation

import (
	"strings"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
)

// TerminateToken is the sentinel a participant appends to its message
// to signal conversation completion.
const TerminateToken = "TERMINATE"

// noResultFallback is returned when a run ends with an empty
// transcript.
const noResultFallback = "The conversation produced no result."

// Task declares one capability of an agent. Its name doubles as the
// tool dispatch key and must be unique across every spec in a run.
type Task struct {
	Name         string                 `json:"name" mapstructure:"name"`
	Description  string                 `json:"description" mapstructure:"description"`
	Endpoint     string                 `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ParamsSchema map[string]interface{} `json:"params_schema" mapstructure:"params_schema"`
}

// AgentSpec describes one assistant agent. Specs come from stored
// configuration or transiently from request input and are read-only
// during a run.
type AgentSpec struct {
	Name          string `json:"name" mapstructure:"name"`
	SystemMessage string `json:"system_message" mapstructure:"system_message"`
	Tasks         []Task `json:"tasks" mapstructure:"tasks"`
}

// Message is one appended conversation turn.
type Message struct {
	Sender   string        `json:"sender"`
	Role     string        `json:"role"` // user, supervisor, assistant, system
	Content  string        `json:"content"`
	ToolCall *llm.ToolCall `json:"tool_call,omitempty"`
}

// State is the append-only transcript of a run. It is owned
// exclusively by the Runner for the run's lifetime; messages are never
// edited or reordered.
type State struct {
	Messages   []Message
	Rounds     int
	Terminated bool
}

func (s *State) append(msg Message) {
	s.Messages = append(s.Messages, msg)
	if isTerminal(msg.Content) {
		s.Terminated = true
	}
}

func isTerminal(content string) bool {
	return strings.HasSuffix(strings.TrimSpace(content), TerminateToken)
}

// FinalAnswer extracts the run's final answer from the transcript
// using its last two messages. A bare sentinel message is not
// informative, so the answer falls back to the message before it.
func FinalAnswer(messages []Message) string {
	if len(messages) == 0 {
		return noResultFallback
	}

	last := messages[len(messages)-1].Content
	trimmed := strings.TrimSpace(last)

	if trimmed == TerminateToken && len(messages) >= 2 {
		return messages[len(messages)-2].Content
	}

	if strings.HasSuffix(trimmed, TerminateToken) {
		return strings.TrimSpace(strings.TrimSuffix(trimmed, TerminateToken))
	}

	return last
}
