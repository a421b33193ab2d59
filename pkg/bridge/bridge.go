// Package bridge couples a conversation run's need for human input to
// a remote, asynchronously-connected realtime client, keyed by session
// id. The bridge is the only component that touches both worlds: agent
// turns block on channel receives here, and the transport layer pushes
// and pulls messages here, never the other way around.
package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// EndOfConversation is the distinguished outbound value instructing
// the relay to close the remote connection and stop.
const EndOfConversation = "END_OF_CONVERSATION"

// ErrChannelMissing is returned when the session's channel was torn
// down or never opened. It is fatal to the conversation run that hits
// it, and only to that run.
var ErrChannelMissing = errors.New("no live channel for session")

// ErrChannelExists is returned when a second channel is opened for a
// session that already has a live one.
var ErrChannelExists = errors.New("session already has a live channel")

const queueDepth = 16

// AuditLog persists one chat-log entry. Implemented by the store.
type AuditLog interface {
	AppendChatLog(ctx context.Context, sessionID, userID, sender, content string) error
}

// OutboundMessage is one agent-to-human message awaiting relay.
type OutboundMessage struct {
	Sender  string
	Content string
}

// channel owns the queues and readiness signal for one session.
type channel struct {
	sessionID string
	userID    string
	inbound   chan string
	outbound  chan OutboundMessage
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

// Bridge is the session registry shared by the transport layer and the
// conversation runner. The session-id map is the only cross-session
// mutable state.
type Bridge struct {
	mu       sync.RWMutex
	channels map[string]*channel
	audit    AuditLog
	logger   zerolog.Logger
}

// New creates a bridge.
func New(audit AuditLog, logger zerolog.Logger) *Bridge {
	return &Bridge{
		channels: make(map[string]*channel),
		audit:    audit,
		logger:   logger,
	}
}

// Open creates the channel for a session. A session id maps to at most
// one live channel at a time.
func (b *Bridge) Open(sessionID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.channels[sessionID]; exists {
		return ErrChannelExists
	}

	b.channels[sessionID] = &channel{
		sessionID: sessionID,
		userID:    userID,
		inbound:   make(chan string, queueDepth),
		outbound:  make(chan OutboundMessage, queueDepth),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}

	b.logger.Debug().Str("session_id", sessionID).Msg("Session channel opened")
	return nil
}

// Close tears down the channel for a session. Blocked senders and
// receivers observe the teardown and fail with ErrChannelMissing.
func (b *Bridge) Close(sessionID string) {
	b.mu.Lock()
	ch, exists := b.channels[sessionID]
	delete(b.channels, sessionID)
	b.mu.Unlock()

	if !exists {
		return
	}

	ch.doneOnce.Do(func() { close(ch.done) })
	b.logger.Debug().Str("session_id", sessionID).Msg("Session channel closed")
}

// Has reports whether the session has a live channel.
func (b *Bridge) Has(sessionID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.channels[sessionID]
	return ok
}

func (b *Bridge) lookup(sessionID string) (*channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.channels[sessionID]
	return ch, ok
}

// SignalReady marks the remote connection for the session as
// established. The first human-proxy read waits on this, so a message
// sent immediately after connecting is never lost and a late-connecting
// client never strands the runner.
func (b *Bridge) SignalReady(sessionID string) {
	ch, ok := b.lookup(sessionID)
	if !ok {
		b.logger.Warn().Str("session_id", sessionID).Msg("Ready signal for unknown session")
		return
	}
	ch.readyOnce.Do(func() { close(ch.ready) })
}

// PushInbound persists and enqueues a human message. A message for a
// torn-down session is logged and dropped.
func (b *Bridge) PushInbound(ctx context.Context, sessionID, content string) error {
	ch, ok := b.lookup(sessionID)
	if !ok {
		b.logger.Warn().Str("session_id", sessionID).Msg("Dropping inbound message for torn-down session")
		return ErrChannelMissing
	}

	if b.audit != nil {
		if err := b.audit.AppendChatLog(ctx, sessionID, ch.userID, "user", content); err != nil {
			b.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to persist inbound chat log")
		}
	}

	select {
	case ch.inbound <- content:
		return nil
	case <-ch.done:
		b.logger.Warn().Str("session_id", sessionID).Msg("Dropping inbound message for torn-down session")
		return ErrChannelMissing
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitInput blocks until the next human message for the session. It
// first waits for the readiness signal so a runner that starts before
// the client connects does not read from a channel nobody feeds.
func (b *Bridge) AwaitInput(ctx context.Context, sessionID string) (string, error) {
	ch, ok := b.lookup(sessionID)
	if !ok {
		return "", ErrChannelMissing
	}

	select {
	case <-ch.ready:
	case <-ch.done:
		return "", ErrChannelMissing
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case content := <-ch.inbound:
		return content, nil
	case <-ch.done:
		return "", ErrChannelMissing
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SendToHuman enqueues an agent message for relay to the remote
// client.
func (b *Bridge) SendToHuman(ctx context.Context, sessionID, sender, content string) error {
	ch, ok := b.lookup(sessionID)
	if !ok {
		return ErrChannelMissing
	}

	select {
	case ch.outbound <- OutboundMessage{Sender: sender, Content: content}:
		return nil
	case <-ch.done:
		return ErrChannelMissing
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndConversation enqueues the EndOfConversation sentinel. This is the
// normal termination signal from the runner to the transport layer.
func (b *Bridge) EndConversation(ctx context.Context, sessionID string) error {
	return b.SendToHuman(ctx, sessionID, "system", EndOfConversation)
}

// NextOutbound blocks until the next agent message for the session and
// persists its chat-log entry before handing it to the transport. The
// relay loop calls this until it receives EndOfConversation or an
// error.
func (b *Bridge) NextOutbound(ctx context.Context, sessionID string) (OutboundMessage, error) {
	ch, ok := b.lookup(sessionID)
	if !ok {
		return OutboundMessage{}, ErrChannelMissing
	}

	select {
	case msg := <-ch.outbound:
		if b.audit != nil && msg.Content != EndOfConversation {
			if err := b.audit.AppendChatLog(ctx, sessionID, ch.userID, msg.Sender, msg.Content); err != nil {
				b.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to persist outbound chat log")
			}
		}
		return msg, nil
	case <-ch.done:
		return OutboundMessage{}, ErrChannelMissing
	case <-ctx.Done():
		return OutboundMessage{}, ctx.Err()
	}
}
