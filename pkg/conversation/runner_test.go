package conversation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/toolregistry"
)

type scriptedStep struct {
	resp *llm.ChatResponse
	err  error
}

// scriptedProvider replays canned chat responses in order, repeating
// the final step once the script runs out.
type scriptedProvider struct {
	steps []scriptedStep
	calls int
}

func (p *scriptedProvider) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	step := p.steps[len(p.steps)-1]
	if p.calls < len(p.steps) {
		step = p.steps[p.calls]
	}
	p.calls++
	return step.resp, step.err
}

func (p *scriptedProvider) Provider() string { return "scripted" }

func say(content string) scriptedStep {
	return scriptedStep{resp: &llm.ChatResponse{Content: content}}
}

// emptySource backs registries in tests that only use inline tasks.
type emptySource struct{}

func (emptySource) ToolsForUser(_ context.Context, _ string) ([]toolregistry.ToolDefinition, error) {
	return nil, nil
}

func setupTestRunner(t *testing.T, provider llm.Provider, cfg Config) *Runner {
	t.Helper()
	cfg.Provider = provider
	cfg.Model = "gpt-4o"
	cfg.SupervisorMessage = "Coordinate the assistants."
	cfg.Registry = toolregistry.New(emptySource{}, "u1")
	cfg.Logger = zerolog.Nop()
	if len(cfg.Specs) == 0 {
		cfg.Specs = []AgentSpec{{Name: "planner", SystemMessage: "You plan things."}}
	}

	runner, err := NewRunner(context.Background(), cfg)
	require.NoError(t, err)
	return runner
}

func TestRunnerSetupValidation(t *testing.T) {
	base := Config{
		Provider: &scriptedProvider{steps: []scriptedStep{say("hi")}},
		Registry: toolregistry.New(emptySource{}, "u1"),
		Specs:    []AgentSpec{{Name: "planner"}},
		Logger:   zerolog.Nop(),
	}

	t.Run("missing provider", func(t *testing.T) {
		cfg := base
		cfg.Provider = nil
		_, err := NewRunner(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	})

	t.Run("no assistant specs", func(t *testing.T) {
		cfg := base
		cfg.Specs = nil
		_, err := NewRunner(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	})

	t.Run("duplicate task names across specs", func(t *testing.T) {
		cfg := base
		cfg.Specs = []AgentSpec{
			{Name: "a", Tasks: []Task{{Name: "book_demo", ParamsSchema: map[string]interface{}{}}}},
			{Name: "b", Tasks: []Task{{Name: "book_demo", ParamsSchema: map[string]interface{}{}}}},
		}
		_, err := NewRunner(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	})
}

func TestRunnerDirectRun(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		say("planner, please handle this."),
		say("Handled. TERMINATE"),
	}}
	runner := setupTestRunner(t, provider, Config{MaxRounds: 10})

	result, err := runner.Run(context.Background(), "Book a demo for tomorrow")
	require.NoError(t, err)

	assert.Equal(t, "Handled.", result.FinalAnswer)
	assert.Equal(t, 2, result.Rounds)
	// Seeded prompt plus two agent turns.
	require.Len(t, result.Messages, 3)
	assert.Equal(t, "user", result.Messages[0].Sender)
	assert.Equal(t, "supervisor", result.Messages[1].Role)
	assert.Equal(t, "assistant", result.Messages[2].Role)
}

func TestRunnerRoundCap(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{say("still thinking")}}
	runner := setupTestRunner(t, provider, Config{MaxRounds: 4})

	result, err := runner.Run(context.Background(), "do something")
	require.NoError(t, err)

	assert.Equal(t, 4, result.Rounds)
	assert.Equal(t, "still thinking", result.FinalAnswer)
}

func TestRunnerTurnErrorBecomesMessage(t *testing.T) {
	failing := &scriptedProvider{steps: []scriptedStep{
		{resp: nil, err: assert.AnError},
		say("Recovered. TERMINATE"),
	}}
	runner := setupTestRunner(t, failing, Config{MaxRounds: 5})

	result, err := runner.Run(context.Background(), "do something")
	require.NoError(t, err)

	// The failed supervisor turn shows up as an apologetic message and
	// the run continues.
	require.GreaterOrEqual(t, len(result.Messages), 3)
	assert.Contains(t, result.Messages[1].Content, "error")
	assert.Equal(t, "Recovered.", result.FinalAnswer)
}

func TestRunnerToolLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("slot confirmed"))
	}))
	defer srv.Close()

	provider := &scriptedProvider{steps: []scriptedStep{
		say("planner, book it."),
		{resp: &llm.ChatResponse{ToolCalls: []llm.ToolCall{{
			ID:         "call_1",
			Name:       "book_demo",
			Parameters: map[string]interface{}{"when": "tomorrow"},
		}}}},
		say("Booked: slot confirmed. TERMINATE"),
	}}

	runner := setupTestRunner(t, provider, Config{
		MaxRounds: 10,
		Specs: []AgentSpec{{
			Name:          "planner",
			SystemMessage: "You book demos.",
			Tasks: []Task{{
				Name:     "book_demo",
				Endpoint: srv.URL,
				ParamsSchema: map[string]interface{}{
					"properties": map[string]interface{}{
						"when": map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"when"},
				},
			}},
		}},
	})

	result, err := runner.Run(context.Background(), "Book a demo")
	require.NoError(t, err)

	assert.Equal(t, "Booked: slot confirmed.", result.FinalAnswer)
	// One supervisor chat plus two assistant chats around the tool call.
	assert.Equal(t, 3, provider.calls)
}

func TestRunnerInteractive(t *testing.T) {
	br := bridge.New(nil, zerolog.Nop())
	require.NoError(t, br.Open("s1", "u1"))
	defer br.Close("s1")

	provider := &scriptedProvider{steps: []scriptedStep{
		say("Your request is handled. TERMINATE"),
	}}
	runner := setupTestRunner(t, provider, Config{
		SessionID: "s1",
		UserID:    "u1",
		Bridge:    br,
		MaxRounds: 5,
	})

	br.SignalReady("s1")

	done := make(chan *Result, 1)
	go func() {
		result, err := runner.Run(context.Background(), "Book a demo")
		require.NoError(t, err)
		done <- result
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The supervisor's message is relayed, then the end sentinel.
	msg, err := br.NextOutbound(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Your request is handled. TERMINATE", msg.Content)

	msg, err = br.NextOutbound(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, bridge.EndOfConversation, msg.Content)

	select {
	case result := <-done:
		assert.Equal(t, "Your request is handled.", result.FinalAnswer)
	case <-ctx.Done():
		t.Fatal("run did not finish")
	}
}

func TestRunnerChannelLostIsTerminal(t *testing.T) {
	br := bridge.New(nil, zerolog.Nop())
	require.NoError(t, br.Open("s1", "u1"))

	// Supervisor and planner keep talking until the human turn, which
	// hits the torn-down channel.
	provider := &scriptedProvider{steps: []scriptedStep{say("your turn, user")}}
	runner := setupTestRunner(t, provider, Config{
		SessionID: "s1",
		UserID:    "u1",
		Bridge:    br,
		MaxRounds: 10,
	})

	br.Close("s1")

	result, err := runner.Run(context.Background(), "Book a demo")
	require.NoError(t, err)

	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "system", last.Role)
	assert.Contains(t, last.Content, "channel")
}
