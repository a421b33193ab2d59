package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/7homasISPG/HappyPlaceAIMode/internal/config"
	"github.com/7homasISPG/HappyPlaceAIMode/internal/store"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/router"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/toolregistry"
)

type askRequest struct {
	Question           string            `json:"question"`
	Lang               string            `json:"lang"`
	UserID             string            `json:"user_id"`
	SessionID          string            `json:"session_id"`
	AgentID            string            `json:"agent_id"`
	Agents             []json.RawMessage `json:"agents"`
	RequireInteractive bool              `json:"require_interactive"`
}

// handleAsk routes a question: either the retrieval answer is returned
// directly, or an interactive session is opened and a conversation run
// scheduled, with the actual exchange proceeding over the realtime
// channel.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	cfg := s.manager.Current()

	specs := cfg.Assistants
	switch {
	case len(req.Agents) > 0:
		specs = router.ParseSpecs(req.Agents)
	case req.AgentID != "":
		rec, err := s.store.GetAgent(r.Context(), req.AgentID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		specs = []conversation.AgentSpec{rec.Spec}
	}

	provider, model, err := s.provider(cfg, cfg.Supervisor.Model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.AppendChatLog(r.Context(), req.SessionID, req.UserID, "user", req.Question); err != nil {
		s.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Failed to persist chat log entry")
	}

	rt := router.New(s.answerer(cfg), provider, model, s.logger)
	result, err := rt.Route(r.Context(), router.Query{
		Text:               req.Question,
		Lang:               req.Lang,
		SessionID:          req.SessionID,
		RequireInteractive: req.RequireInteractive,
	}, specs)
	switch {
	case errors.Is(err, router.ErrRetrievalFailed):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case errors.Is(err, router.ErrConfigurationInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Decision == router.DecisionInteractive {
		if err := s.startInteractiveRun(cfg, req.SessionID, req.UserID, req.Question, result.Specs); err != nil {
			if errors.Is(err, bridge.ErrChannelExists) {
				writeError(w, http.StatusConflict, "session already active")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else if result.Answer != nil && result.Answer.Text != "" {
		if err := s.store.AppendChatLog(r.Context(), req.SessionID, req.UserID, "rag", result.Answer.Text); err != nil {
			s.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Failed to persist chat log entry")
		}
	}

	writeJSON(w, http.StatusOK, result.Payload())
}

// startInteractiveRun opens the session channel and schedules the
// conversation run in the background. The request returns immediately;
// the dialogue happens over the realtime channel.
func (s *Server) startInteractiveRun(cfg *config.Config, sessionID, userID, prompt string, specs []conversation.AgentSpec) error {
	provider, model, err := s.provider(cfg, cfg.Supervisor.Model)
	if err != nil {
		return err
	}

	if err := s.bridge.Open(sessionID, userID); err != nil {
		return err
	}

	runCfg := conversation.Config{
		SessionID:         sessionID,
		UserID:            userID,
		Provider:          provider,
		Model:             model,
		SupervisorName:    cfg.Supervisor.Name,
		SupervisorMessage: cfg.Supervisor.SystemMessage,
		Specs:             specs,
		Registry:          toolregistry.New(s.store, userID),
		Bridge:            s.bridge,
		MaxRounds:         cfg.Conversation.ChatMaxRounds,
		Logger:            s.logger,
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.bridge.Close(sessionID)

		ctx := context.Background()

		runner, err := conversation.NewRunner(ctx, runCfg)
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Conversation setup failed")
			_ = s.bridge.EndConversation(ctx, sessionID)
			return
		}

		result, err := runner.Run(ctx, prompt)
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Conversation run failed")
			return
		}

		s.logger.Info().
			Str("session_id", sessionID).
			Int("rounds", result.Rounds).
			Msg("Conversation finished")
	}()

	return nil
}

type ragRequest struct {
	Question string `json:"question"`
	Lang     string `json:"lang"`
}

// handleRAG returns the retrieval-augmented answer without routing.
func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.answerer(s.manager.Current()).Answer(r.Context(), req.Question, req.Lang)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type runAgentRequest struct {
	Prompt  string                  `json:"prompt"`
	UserID  string                  `json:"user_id"`
	AgentID string                  `json:"agent_id"`
	Agent   *conversation.AgentSpec `json:"agent"`
}

// handleRunAgent runs a single agent to completion synchronously, with
// no human in the loop. The agent gets the clarification self-tool
// instead; a clarifying question comes back as the final answer.
func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	var req runAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var spec conversation.AgentSpec
	switch {
	case req.Agent != nil:
		spec = *req.Agent
	case req.AgentID != "":
		rec, err := s.store.GetAgent(r.Context(), req.AgentID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		spec = rec.Spec
	default:
		writeError(w, http.StatusBadRequest, "agent or agent_id is required")
		return
	}

	cfg := s.manager.Current()
	provider, model, err := s.provider(cfg, cfg.Supervisor.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner, err := conversation.NewRunner(r.Context(), conversation.Config{
		SessionID:         uuid.NewString(),
		UserID:            req.UserID,
		Provider:          provider,
		Model:             model,
		SupervisorName:    cfg.Supervisor.Name,
		SupervisorMessage: cfg.Supervisor.SystemMessage,
		Specs:             []conversation.AgentSpec{spec},
		Registry:          toolregistry.New(s.store, req.UserID),
		MaxRounds:         cfg.Conversation.MaxRounds,
		Logger:            s.logger,
	})
	switch {
	case errors.Is(err, conversation.ErrInvalidSpec), errors.Is(err, llm.ErrUnsupportedProvider):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := runner.Run(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleChatHistory returns a session's persisted transcript.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	entries, err := s.store.ListChatLogs(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   entries,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.ToolsForUser(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var def toolregistry.ToolDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if def.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := toolregistry.CompileSchema(def.ParamsSchema); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	if err := s.store.SaveTool(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	var def toolregistry.ToolDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	def.ID = r.PathValue("id")
	if _, err := toolregistry.CompileSchema(def.ParamsSchema); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SaveTool(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteTool(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListAgents(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var rec store.AgentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.Spec.Name == "" {
		writeError(w, http.StatusBadRequest, "agent name is required")
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if err := s.store.SaveAgent(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var rec store.AgentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec.ID = r.PathValue("id")

	if err := s.store.SaveAgent(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteAgent(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetSupervisor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Current().Supervisor)
}

func (s *Server) handlePutSupervisor(w http.ResponseWriter, r *http.Request) {
	var sup config.SupervisorConfig
	if err := json.NewDecoder(r.Body).Decode(&sup); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.manager.UpdateSupervisor(sup); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

func (s *Server) handleGetAssistants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Current().Assistants)
}

func (s *Server) handlePutAssistants(w http.ResponseWriter, r *http.Request) {
	var specs []conversation.AgentSpec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.manager.UpdateAssistants(specs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, specs)
}
