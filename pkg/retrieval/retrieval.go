// Package retrieval defines the contract with the retrieval-augmented
// answer subsystem. The subsystem itself (vector index, embeddings,
// prompt assembly) lives behind a remote service; this package only
// carries queries over and structured answers back.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Answer is the structured candidate answer produced for a query.
// Type selects the payload shape the frontend renders: "answer" uses
// Text, the richer shapes ("table", "pricing", "card_selection")
// carry their payload in Data.
type Answer struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Citations []Citation      `json:"citations"`
	FollowUps []string        `json:"follow_ups"`
}

// Citation points an answer fragment back at a knowledge-base source.
type Citation struct {
	ID     int    `json:"id"`
	Source string `json:"source"`
}

// Answerer produces a retrieval-augmented answer for a query.
type Answerer interface {
	Answer(ctx context.Context, query, lang string) (*Answer, error)
}

// Client is an HTTP-backed Answerer.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a retrieval client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type answerRequest struct {
	Query string `json:"query"`
	Lang  string `json:"lang"`
}

// Answer posts the query to the retrieval service and decodes the
// structured answer. Failures here are fatal to the calling request.
func (c *Client) Answer(ctx context.Context, query, lang string) (*Answer, error) {
	body, err := json.Marshal(answerRequest{Query: query, Lang: lang})
	if err != nil {
		return nil, fmt.Errorf("failed to encode retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", c.endpoint).
			Msg("Retrieval service returned an error")
		return nil, fmt.Errorf("retrieval service returned %d: %s", resp.StatusCode, string(payload))
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("failed to decode retrieval answer: %w", err)
	}

	if answer.Citations == nil {
		answer.Citations = []Citation{}
	}
	if answer.FollowUps == nil {
		answer.FollowUps = []string{}
	}

	return &answer, nil
}
