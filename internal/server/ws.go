package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
)

// disconnectMarker is pushed as a final inbound message when the
// client drops so a waiting human-proxy turn is not stranded.
const disconnectMarker = "User has disconnected."

type wsOutbound struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// handleWebSocket attaches a remote client to its session channel.
// The read loop feeds inbound messages to the bridge and the relay
// loop forwards agent messages out; both stop when the connection
// drops or the conversation ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	secret := s.manager.Current().Server.SharedSecret
	if secret != "" && r.URL.Query().Get("secret") != secret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if !s.bridge.Has(sessionID) {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	s.logger.Info().
		Str("clientId", clientID).
		Str("session_id", sessionID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	ctx, cancel := context.WithCancel(context.Background())

	// The runner may already be blocked on the first human turn; the
	// readiness signal releases it now that someone is listening.
	s.bridge.SignalReady(sessionID)

	go s.relayLoop(ctx, cancel, conn, sessionID, clientID)
	s.readLoop(ctx, cancel, conn, sessionID, clientID)
}

// relayLoop forwards agent messages to the client until the
// end-of-conversation sentinel or teardown.
func (s *Server) relayLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID, clientID string) {
	defer cancel()

	for {
		msg, err := s.bridge.NextOutbound(ctx, sessionID)
		if err != nil {
			if !errors.Is(err, bridge.ErrChannelMissing) && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("clientId", clientID).Msg("Relay failed")
			}
			return
		}

		if msg.Content == bridge.EndOfConversation {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation ended"), deadline)
			conn.Close()
			return
		}

		if err := conn.WriteJSON(wsOutbound{Sender: msg.Sender, Content: msg.Content}); err != nil {
			s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to write to client")
			return
		}
	}
}

// readLoop feeds client messages into the bridge. On disconnect it
// pushes the disconnect marker and tears the session channel down.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID, clientID string) {
	defer func() {
		conn.Close()
		cancel()

		pushCtx, pushCancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.bridge.PushInbound(pushCtx, sessionID, disconnectMarker)
		pushCancel()

		s.bridge.Close(sessionID)
		s.logger.Info().Str("clientId", clientID).Str("session_id", sessionID).Msg("Client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", clientID).Msg("WebSocket error")
			}
			return
		}

		if err := s.bridge.PushInbound(ctx, sessionID, string(message)); err != nil {
			if !errors.Is(err, bridge.ErrChannelMissing) {
				s.logger.Warn().Err(err).Str("clientId", clientID).Msg("Failed to push inbound message")
			}
			return
		}
	}
}
