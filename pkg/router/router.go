// Package router decides how a query is answered: retrieval always
// runs first, then a constrained classification call decides whether
// the retrieved answer suffices or an interactive multi-agent session
// must be started. The router only decides; scheduling the session is
// the caller's job.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/retrieval"
)

// ErrRetrievalFailed is returned when the retrieval collaborator
// fails. It is fatal to the current request.
var ErrRetrievalFailed = errors.New("retrieval failed")

// ErrConfigurationInvalid is returned when the caller explicitly
// required an interactive session but no valid agent specs exist. It
// is surfaced to the client, never silently downgraded.
var ErrConfigurationInvalid = errors.New("invalid routing configuration")

// Decision is the router's terminal state.
type Decision int

const (
	// DecisionInformational means the retrieved answer is returned
	// verbatim.
	DecisionInformational Decision = iota

	// DecisionInteractive means a conversation run must be scheduled
	// for the query's session.
	DecisionInteractive
)

// Query is one routing request.
type Query struct {
	Text      string
	Lang      string
	SessionID string

	// RequireInteractive marks callers for whom an informational
	// downgrade is an error, such as an explicit agent-run request.
	RequireInteractive bool
}

// Result is the router's terminal output. Specs carries the validated
// agent specs so an interactive caller can schedule the run without
// re-filtering.
type Result struct {
	Decision  Decision
	SessionID string
	Answer    *retrieval.Answer
	Specs     []conversation.AgentSpec
}

// Payload renders the caller-visible result shape.
func (r *Result) Payload() map[string]interface{} {
	if r.Decision == DecisionInteractive {
		return map[string]interface{}{
			"type":       "interactive_session_start",
			"session_id": r.SessionID,
		}
	}

	payload := map[string]interface{}{
		"type":       r.Answer.Type,
		"citations":  r.Answer.Citations,
		"follow_ups": r.Answer.FollowUps,
		"session_id": r.SessionID,
	}
	if len(r.Answer.Data) > 0 {
		payload["data"] = r.Answer.Data
	} else {
		payload["text"] = r.Answer.Text
	}
	return payload
}

// Router is the decision graph. It is immutable after construction;
// configuration changes are picked up by constructing a new router,
// never by mutating a shared one.
type Router struct {
	answerer retrieval.Answerer
	provider llm.Provider
	model    string
	logger   zerolog.Logger
}

// New creates a router.
func New(answerer retrieval.Answerer, provider llm.Provider, model string, logger zerolog.Logger) *Router {
	return &Router{
		answerer: answerer,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// ParseSpecs decodes raw request-supplied agent specs, dropping
// malformed entries such as non-objects instead of failing the
// request.
func ParseSpecs(raw []json.RawMessage) []conversation.AgentSpec {
	specs := []conversation.AgentSpec{}
	for _, entry := range raw {
		var spec conversation.AgentSpec
		if err := json.Unmarshal(entry, &spec); err != nil {
			continue
		}
		if spec.Name == "" {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

// Route runs the decision graph: retrieve, filter specs, classify,
// terminate. Retrieval failures abort the request; ambiguous
// classification defaults to the informational path.
func (r *Router) Route(ctx context.Context, q Query, specs []conversation.AgentSpec) (*Result, error) {
	answer, err := r.answerer.Answer(ctx, q.Text, q.Lang)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	valid := filterSpecs(specs)

	if len(valid) == 0 {
		if q.RequireInteractive {
			return nil, fmt.Errorf("%w: interactive session required but no valid agent specs", ErrConfigurationInvalid)
		}
		// Nothing to hand off to, so the classifier is never invoked.
		return &Result{
			Decision:  DecisionInformational,
			SessionID: q.SessionID,
			Answer:    answer,
		}, nil
	}

	label := r.classify(ctx, q.Text)
	if label == llm.LabelAction {
		r.logger.Info().
			Str("session_id", q.SessionID).
			Msg("Query routed to interactive session")
		return &Result{
			Decision:  DecisionInteractive,
			SessionID: q.SessionID,
			Specs:     valid,
		}, nil
	}

	return &Result{
		Decision:  DecisionInformational,
		SessionID: q.SessionID,
		Answer:    answer,
		Specs:     valid,
	}, nil
}

// classify runs the constrained classification call. A label contract
// violation is retried once; any remaining failure falls back to the
// informational label, never escalating an ambiguous query to a
// multi-agent session.
func (r *Router) classify(ctx context.Context, question string) llm.Label {
	label, err := llm.Classify(ctx, r.provider, r.model, question)
	if errors.Is(err, llm.ErrLabelViolation) {
		r.logger.Warn().Msg("Classifier violated the label contract, retrying once")
		label, err = llm.Classify(ctx, r.provider, r.model, question)
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("Classification failed, defaulting to informational")
		return llm.LabelInformational
	}
	return label
}

// filterSpecs drops specs that cannot drive an agent, such as entries
// missing a name.
func filterSpecs(specs []conversation.AgentSpec) []conversation.AgentSpec {
	valid := []conversation.AgentSpec{}
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		valid = append(valid, spec)
	}
	return valid
}
