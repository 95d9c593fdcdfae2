// Package chat implements a single conversation thread against the backend.
//
// A Session keeps an append-only log of turns, allows one request in flight
// at a time and carries the server-assigned conversation id from one turn to
// the next. Failures never escape as errors; they become assistant turns.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portfolia/console/pkg/gateway"
	"github.com/portfolia/console/pkg/store"
)

// Gateway sends chat turns to the backend.
type Gateway interface {
	Chat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
}

// Session is one chat thread. It is safe for concurrent use.
type Session struct {
	gw         Gateway
	transcript store.Transcript
	logger     *slog.Logger

	mu             sync.RWMutex
	turns          []Turn
	conversationID string
	pending        bool
	subs           []chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithGreeting seeds the log with a local assistant turn.
func WithGreeting(text string) Option {
	return func(s *Session) {
		if strings.TrimSpace(text) != "" {
			s.turns = append(s.turns, newTurn(RoleAssistant, text))
		}
	}
}

// WithTranscript records every turn appended after construction.
func WithTranscript(t store.Transcript) Option {
	return func(s *Session) { s.transcript = t }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New returns an empty session sending through gw.
func New(gw Gateway, opts ...Option) *Session {
	s := &Session{gw: gw, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send submits text as a user turn and waits for the reply. It returns false
// without doing anything when text is blank or another request is pending.
//
// The user turn is appended before the request is issued. Exactly one
// assistant turn follows it: the backend's reply, or ErrorReply when the
// request fails for any reason.
func (s *Session) Send(ctx context.Context, text string) bool {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return false
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		s.logger.Debug("Dropped message while a reply is pending")
		return false
	}
	s.pending = true
	convID := s.conversationID
	user := s.appendLocked(newTurn(RoleUser, msg))
	s.mu.Unlock()

	s.record(convID, user)
	s.notify()

	resp, err := s.gw.Chat(ctx, gateway.ChatRequest{
		Message:        msg,
		ConversationID: convID,
		IncludeSources: true,
	})

	var reply Turn
	s.mu.Lock()
	if err != nil {
		s.logger.Error("Chat request failed", "conversationID", convID, "error", err)
		reply = newTurn(RoleAssistant, ErrorReply)
		reply.Failed = true
	} else {
		s.conversationID = resp.ConversationID
		reply = newTurn(RoleAssistant, resp.Response)
		reply.Tool = resp.ToolUsed
		for _, src := range resp.Sources {
			reply.Sources = append(reply.Sources, Source{Source: src.Source})
		}
	}
	reply = s.appendLocked(reply)
	convID = s.conversationID
	s.pending = false
	s.mu.Unlock()

	s.record(convID, reply)
	s.notify()
	return true
}

// Trigger injects a message on behalf of another part of the UI. It follows
// the same path and guards as Send.
func (s *Session) Trigger(ctx context.Context, text string) bool {
	return s.Send(ctx, text)
}

// Turns returns a copy of the log in append order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// ConversationID returns the server-assigned id, or "" before the first
// successful reply.
func (s *Session) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// Pending reports whether a request is in flight.
func (s *Session) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Subscribe returns a channel that receives a value whenever the log or the
// pending flag changes. Notifications are coalesced and never block Send.
func (s *Session) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Session) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		// Non-blocking send
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) appendLocked(t Turn) Turn {
	s.turns = append(s.turns, t)
	return t
}

func (s *Session) record(convID string, t Turn) {
	if s.transcript == nil {
		return
	}
	entry := store.TurnEntry{
		Role:    string(t.Role),
		Content: t.Content,
		Tool:    t.Tool,
		Failed:  t.Failed,
	}
	for _, src := range t.Sources {
		entry.Sources = append(entry.Sources, src.Source)
	}
	err := s.transcript.Append(store.Entry{
		ID:             t.ID,
		ConversationID: convID,
		Timestamp:      t.CreatedAt,
		Turn:           &entry,
	})
	if err != nil {
		s.logger.Warn("Failed to record turn", "turnID", t.ID, "error", err)
	}
}

func newTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
