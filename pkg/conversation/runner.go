// Package conversation runs round-robin multi-agent dialogues. A run
// seats a supervisor, the configured assistants and, for interactive
// sessions, a human proxy backed by the session bridge. Turns cycle in
// seating order until a participant emits the termination sentinel or
// the round cap is reached.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/toolregistry"
)

// DefaultMaxRounds caps runs started directly over HTTP.
const DefaultMaxRounds = 15

// DefaultChatMaxRounds caps interactive runs, which include human
// turns and so need more headroom.
const DefaultChatMaxRounds = 25

// ErrInvalidSpec is returned when the merged agent specs cannot form a
// runnable conversation, such as two tasks sharing a dispatch name.
var ErrInvalidSpec = errors.New("invalid agent specification")

// channelLostMessage closes the transcript when the session channel
// disappears mid-run.
const channelLostMessage = "The session channel was lost. Ending the conversation."

// Config assembles one conversation run.
type Config struct {
	SessionID string
	UserID    string

	Provider llm.Provider
	Model    string

	SupervisorName    string
	SupervisorMessage string
	Specs             []AgentSpec

	// Registry resolves stored tool references and compiles inline
	// task schemas. Required.
	Registry *toolregistry.Registry

	// Bridge connects the human proxy to the remote client. Nil for
	// direct runs, which seat no human and get the clarification
	// self-tool instead.
	Bridge *bridge.Bridge

	MaxRounds int
	Logger    zerolog.Logger
}

// Result is the outcome of a completed run.
type Result struct {
	FinalAnswer string    `json:"final_answer"`
	Rounds      int       `json:"rounds"`
	Messages    []Message `json:"messages"`
}

// Runner executes one conversation run. It is single-use: construct,
// Run once, discard.
type Runner struct {
	cfg          Config
	participants []participant
	startIndex   int
	state        State
}

// NewRunner validates the specs, binds every task to an invocable
// tool and seats the participants. Spec problems and unbindable
// schemas fail here, before any turn is taken.
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: no language model provider", ErrInvalidSpec)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: no tool registry", ErrInvalidSpec)
	}
	if len(cfg.Specs) == 0 {
		return nil, fmt.Errorf("%w: no assistant specs", ErrInvalidSpec)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}

	seen := map[string]string{}
	for _, spec := range cfg.Specs {
		for _, task := range spec.Tasks {
			if owner, dup := seen[task.Name]; dup {
				return nil, fmt.Errorf("%w: task %q declared by both %q and %q",
					ErrInvalidSpec, task.Name, owner, spec.Name)
			}
			seen[task.Name] = spec.Name
		}
	}

	r := &Runner{cfg: cfg}

	if cfg.Bridge != nil {
		r.participants = append(r.participants, &humanProxy{
			bridge:    cfg.Bridge,
			sessionID: cfg.SessionID,
		})
		// The opening prompt is seeded as the human's first turn, so
		// the loop starts with the supervisor.
		r.startIndex = 1
	}

	supervisorName := cfg.SupervisorName
	if supervisorName == "" {
		supervisorName = "supervisor"
	}
	r.participants = append(r.participants, &agent{
		name:          supervisorName,
		role:          "supervisor",
		systemMessage: cfg.SupervisorMessage,
		model:         cfg.Model,
		provider:      cfg.Provider,
		logger:        cfg.Logger,
	})

	for _, spec := range cfg.Specs {
		seat, err := r.buildAssistant(ctx, spec)
		if err != nil {
			return nil, err
		}
		r.participants = append(r.participants, seat)
	}

	return r, nil
}

// buildAssistant binds the spec's tasks. Tasks carrying an inline
// schema or endpoint bind transiently; a bare task name is a reference
// to a stored tool definition.
func (r *Runner) buildAssistant(ctx context.Context, spec AgentSpec) (*agent, error) {
	bound := map[string]*toolregistry.BoundTool{}
	var stored []string

	for _, task := range spec.Tasks {
		if task.ParamsSchema == nil && task.Endpoint == "" {
			stored = append(stored, task.Name)
			continue
		}
		tool, err := r.cfg.Registry.BindDefinition(toolregistry.ToolDefinition{
			Name:         task.Name,
			Description:  task.Description,
			Endpoint:     task.Endpoint,
			ParamsSchema: task.ParamsSchema,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: agent %q: %v", ErrInvalidSpec, spec.Name, err)
		}
		bound[tool.Name] = tool
	}

	if len(stored) > 0 {
		tools, err := r.cfg.Registry.Bind(ctx, stored)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		for _, tool := range tools {
			bound[tool.Name] = tool
		}
	}

	seat := &agent{
		name:          spec.Name,
		role:          "assistant",
		systemMessage: spec.SystemMessage,
		model:         r.cfg.Model,
		provider:      r.cfg.Provider,
		bound:         bound,
		logger:        r.cfg.Logger,
	}
	if r.cfg.Bridge == nil {
		seat.local = map[string]localTool{"ask_user_for_input": clarificationTool()}
	}
	return seat, nil
}

// Run seeds the prompt as the opening user message and cycles turns
// until termination or the round cap. Per-turn agent failures become
// turn messages so the other seats can react; a lost session channel
// ends the run with a terminal message.
func (r *Runner) Run(ctx context.Context, prompt string) (*Result, error) {
	r.state.append(Message{Sender: "user", Role: "user", Content: prompt})

	turn := r.startIndex
	for r.state.Rounds < r.cfg.MaxRounds && !r.state.Terminated {
		seat := r.participants[turn%len(r.participants)]
		turn++

		content, err := seat.Speak(ctx, &r.state)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.Is(err, bridge.ErrChannelMissing):
			r.cfg.Logger.Warn().
				Str("session_id", r.cfg.SessionID).
				Msg("Session channel lost mid-run")
			r.state.append(Message{Sender: "system", Role: "system", Content: channelLostMessage})
			r.state.Terminated = true
			continue
		default:
			r.cfg.Logger.Error().
				Err(err).
				Str("agent", seat.Name()).
				Msg("Participant turn failed")
			content = fmt.Sprintf("I hit an error on this turn: %v", err)
		}

		r.state.append(Message{Sender: seat.Name(), Role: seat.Role(), Content: content})
		r.state.Rounds++

		if seat.Role() != "user" && r.cfg.Bridge != nil {
			if err := r.cfg.Bridge.SendToHuman(ctx, r.cfg.SessionID, seat.Name(), content); err != nil {
				r.cfg.Logger.Warn().
					Err(err).
					Str("session_id", r.cfg.SessionID).
					Msg("Failed to relay agent message")
				r.state.append(Message{Sender: "system", Role: "system", Content: channelLostMessage})
				break
			}
		}
	}

	if r.cfg.Bridge != nil {
		if err := r.cfg.Bridge.EndConversation(ctx, r.cfg.SessionID); err != nil && !errors.Is(err, bridge.ErrChannelMissing) {
			r.cfg.Logger.Warn().
				Err(err).
				Str("session_id", r.cfg.SessionID).
				Msg("Failed to signal end of conversation")
		}
	}

	return &Result{
		FinalAnswer: FinalAnswer(r.state.Messages),
		Rounds:      r.state.Rounds,
		Messages:    r.state.Messages,
	}, nil
}
