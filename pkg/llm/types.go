package llm

// Message is a single conversation turn in provider-neutral form.
type Message struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolSpec is the declarative tool surface handed to the model.
// InputSchema is a JSON-Schema object with "type", "properties" and
// optionally "required".
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ChatRequest contains the request parameters for a chat call.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
}

// ChatResponse contains the model's reply: content, a tool invocation
// request, or both.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Profile holds credentials and model selection for one provider.
type Profile struct {
	Provider string `json:"provider" mapstructure:"provider"` // "openai", "anthropic"
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
}
