// Package toolregistry materializes stored declarative tool
// definitions into validated, invocable tools for one conversation
// run.
package toolregistry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// invokeTimeout is the fixed per-call timeout for remote tool
// invocations.
const invokeTimeout = 30 * time.Second

// ToolDefinition is the persisted declarative form of a tool.
type ToolDefinition struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Endpoint     string                 `json:"endpoint,omitempty"`
	ParamsSchema map[string]interface{} `json:"params_schema"`
}

// Source fetches a user's stored tool definitions.
type Source interface {
	ToolsForUser(ctx context.Context, userID string) ([]ToolDefinition, error)
}

// BoundTool is a validated, invocable tool built from a definition.
// Its lifetime is one conversation run.
type BoundTool struct {
	Name        string
	Description string
	Schema      *Schema

	endpoint string
	client   *http.Client
}

// Registry binds requested tool names against a user's stored
// definitions. Definitions are fetched once and cached for the
// registry's lifetime; construct a new registry per conversation run
// to pick up edits.
type Registry struct {
	source Source
	userID string
	client *http.Client
	cache  []ToolDefinition
}

// New creates a registry for one user's tools.
func New(source Source, userID string) *Registry {
	return &Registry{
		source: source,
		userID: userID,
		client: &http.Client{Timeout: invokeTimeout},
	}
}

// Bind materializes BoundTools for the requested names. Names with no
// stored definition are skipped; a definition whose schema cannot be
// compiled is an error.
func (r *Registry) Bind(ctx context.Context, names []string) ([]*BoundTool, error) {
	if err := r.fetch(ctx); err != nil {
		return nil, err
	}

	requested := map[string]bool{}
	for _, name := range names {
		requested[name] = true
	}

	bound := []*BoundTool{}
	for _, def := range r.cache {
		if !requested[def.Name] {
			continue
		}
		tool, err := r.bindOne(def)
		if err != nil {
			return nil, err
		}
		bound = append(bound, tool)
	}

	log.Debug().Str("user_id", r.userID).Int("count", len(bound)).Msg("Tools bound")
	return bound, nil
}

// BindDefinition materializes a single transient definition that is
// not persisted, such as a task supplied inline with a request.
func (r *Registry) BindDefinition(def ToolDefinition) (*BoundTool, error) {
	return r.bindOne(def)
}

func (r *Registry) fetch(ctx context.Context) error {
	if r.cache != nil {
		return nil
	}
	defs, err := r.source.ToolsForUser(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("failed to fetch tool definitions: %w", err)
	}
	if defs == nil {
		defs = []ToolDefinition{}
	}
	r.cache = defs
	return nil
}

func (r *Registry) bindOne(def ToolDefinition) (*BoundTool, error) {
	schema, err := CompileSchema(def.ParamsSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", def.Name, err)
	}

	description := def.Description
	if description == "" {
		description = fmt.Sprintf("Tool for %s", def.Name)
	}

	return &BoundTool{
		Name:        def.Name,
		Description: description,
		Schema:      schema,
		endpoint:    def.Endpoint,
		client:      r.client,
	}, nil
}

// Invoke validates the arguments and performs the remote call. Missing
// required arguments are a validation error. Remote failures come back
// as a descriptive result string, never an error, so the conversation
// can continue.
func (t *BoundTool) Invoke(ctx context.Context, args map[string]interface{}) (string, error) {
	if err := t.Schema.Validate(args); err != nil {
		return "", fmt.Errorf("invalid arguments for tool %q: %w", t.Name, err)
	}

	if t.endpoint == "" {
		return fmt.Sprintf("Error: tool %q has no API endpoint.", t.Name), nil
	}

	args = t.Schema.Normalize(args)

	target, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Sprintf("Error calling API for %q: invalid endpoint: %v", t.Name, err), nil
	}

	query := target.Query()
	for name, value := range args {
		if value == nil {
			continue
		}
		query.Set(name, fmt.Sprintf("%v", value))
	}
	target.RawQuery = query.Encode()

	callCtx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Sprintf("Error calling API for %q: %v", t.Name, err), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error calling API for %q: %v", t.Name, err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response for %q: %v", t.Name, err), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("Error calling API for %q: %d - %s", t.Name, resp.StatusCode, string(body)), nil
	}

	return string(body), nil
}
