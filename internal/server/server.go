// Package server exposes the orchestrator over HTTP: the ask/rag/agent
// endpoints, tool and agent CRUD, config management, and the realtime
// channel interactive sessions run over.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/7homasISPG/HappyPlaceAIMode/internal/config"
	"github.com/7homasISPG/HappyPlaceAIMode/internal/store"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/retrieval"
)

// Config holds server configuration
type Config struct {
	Manager *config.Manager
	Store   *store.Store
	Bridge  *bridge.Bridge
	Logger  zerolog.Logger
}

// Server is the HTTP and realtime front of the orchestrator.
type Server struct {
	manager *config.Manager
	store   *store.Store
	bridge  *bridge.Bridge
	factory *llm.Factory
	logger  zerolog.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	runs           sync.WaitGroup
}

// NewServer creates a server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("config manager is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		manager: cfg.Manager,
		store:   cfg.Store,
		bridge:  cfg.Bridge,
		factory: &llm.Factory{},
		logger:  cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Start starts the server. It returns once the listener is running.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/ask", s.auth(s.handleAsk))
	mux.HandleFunc("POST /api/rag", s.auth(s.handleRAG))
	mux.HandleFunc("POST /api/run-agent", s.auth(s.handleRunAgent))
	mux.HandleFunc("GET /api/chat-history/{session_id}", s.auth(s.handleChatHistory))

	mux.HandleFunc("GET /api/tools", s.auth(s.handleListTools))
	mux.HandleFunc("POST /api/tools", s.auth(s.handleCreateTool))
	mux.HandleFunc("PUT /api/tools/{id}", s.auth(s.handleUpdateTool))
	mux.HandleFunc("DELETE /api/tools/{id}", s.auth(s.handleDeleteTool))

	mux.HandleFunc("GET /api/agents", s.auth(s.handleListAgents))
	mux.HandleFunc("POST /api/agents", s.auth(s.handleCreateAgent))
	mux.HandleFunc("PUT /api/agents/{id}", s.auth(s.handleUpdateAgent))
	mux.HandleFunc("DELETE /api/agents/{id}", s.auth(s.handleDeleteAgent))

	mux.HandleFunc("GET /api/config/supervisor", s.auth(s.handleGetSupervisor))
	mux.HandleFunc("PUT /api/config/supervisor", s.auth(s.handlePutSupervisor))
	mux.HandleFunc("GET /api/config/assistants", s.auth(s.handleGetAssistants))
	mux.HandleFunc("PUT /api/config/assistants", s.auth(s.handlePutAssistants))

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	cfg := s.manager.Current()
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server, waiting briefly for in-flight
// conversation runs.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down server")

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// auth enforces the optional shared secret on API routes.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := s.manager.Current().Server.SharedSecret
		if secret != "" && r.Header.Get("X-HappyPlace-Secret") != secret {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// provider builds the language-model provider for one run from the
// current config. The profile matching the model wins; otherwise the
// first profile is used.
func (s *Server) provider(cfg *config.Config, model string) (llm.Provider, string, error) {
	profiles := cfg.AI.Profiles
	if len(profiles) == 0 {
		return nil, "", fmt.Errorf("no AI profiles configured")
	}

	selected := profiles[0]
	for _, p := range profiles {
		if p.Model == model {
			selected = p
			break
		}
	}
	if model == "" {
		model = selected.Model
	}

	provider, err := s.factory.NewProvider(selected)
	if err != nil {
		return nil, "", err
	}
	return provider, model, nil
}

// answerer builds the retrieval client for the current config.
func (s *Server) answerer(cfg *config.Config) retrieval.Answerer {
	return retrieval.NewClient(cfg.Retrieval.Endpoint, time.Duration(cfg.Retrieval.Timeout)*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
