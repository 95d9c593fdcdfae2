// Package auth owns the console's authenticated session: acquiring a bearer
// token, persisting it across restarts, and deriving the access level that
// gates admin-only operations.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/portfolia/console/pkg/gateway"
	"github.com/portfolia/console/pkg/store"
)

// TokenKey is the durable slot the bearer token is persisted under.
const TokenKey = "token"

const fallbackLoginMessage = "Login failed"

// AccessLevel is the flat capability model: either a guest or the admin.
type AccessLevel int

const (
	Guest AccessLevel = iota
	Admin
)

func (a AccessLevel) String() string {
	if a == Admin {
		return "admin"
	}
	return "guest"
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// AuthError is a failed login. Message is safe to show to the user.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

// ErrLoginInProgress is wrapped by the AuthError returned when Login is
// called while another login is still running.
var ErrLoginInProgress = errors.New("login already in progress")

// Session holds the bearer token. It is the only writer of the token slot.
type Session struct {
	auth   Authenticator
	slot   store.Store
	logger *slog.Logger

	mu        sync.RWMutex
	token     string
	loggingIn bool
}

var _ gateway.TokenSource = (*Session)(nil)

// NewSession returns an unauthenticated session. Call Restore to pick up a
// token persisted by an earlier run.
func NewSession(auth Authenticator, slot store.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{auth: auth, slot: slot, logger: logger}
}

// Restore loads a persisted token. A non-empty token makes the session
// authenticated immediately; it is not verified against the backend.
func (s *Session) Restore(ctx context.Context) error {
	tok, err := s.slot.Get(ctx, TokenKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()

	if tok != "" {
		s.logger.Info("Restored persisted session")
	}
	return nil
}

// Login exchanges credentials for a token and persists it. On failure any
// existing token is left untouched and an *AuthError is returned.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return &AuthError{Message: "Username and password are required"}
	}

	s.mu.Lock()
	if s.loggingIn {
		s.mu.Unlock()
		return &AuthError{Message: "Login already in progress", Err: ErrLoginInProgress}
	}
	s.loggingIn = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loggingIn = false
		s.mu.Unlock()
	}()

	tok, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Error("Login failed", "username", username, "error", err)
		return &AuthError{Message: gateway.Detail(err, fallbackLoginMessage), Err: err}
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()

	// The session stays authenticated in memory even when the slot write
	// fails; it just won't survive a restart.
	if err := s.slot.Set(ctx, TokenKey, tok); err != nil {
		s.logger.Warn("Failed to persist token", "error", err)
	}
	s.logger.Info("Logged in", "username", username)
	return nil
}

// Logout clears the token from memory and from the durable slot. It makes
// no network call and always leaves the session unauthenticated.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if err := s.slot.Delete(ctx, TokenKey); err != nil {
		s.logger.Warn("Failed to clear persisted token", "error", err)
	}
	s.logger.Info("Logged out")
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether a token is present.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// Access derives the access level from token presence alone.
func (s *Session) Access() AccessLevel {
	if s.IsAuthenticated() {
		return Admin
	}
	return Guest
}

// IsAdmin reports whether admin-only operations are available.
func (s *Session) IsAdmin() bool {
	return s.Access() == Admin
}

// LoggingIn reports whether a login is in flight.
func (s *Session) LoggingIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggingIn
}
