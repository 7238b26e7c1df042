package client

import (
	"context"
	"log/slog"
	"sync"

	"plantatlas/pkg/domain"
)

// SessionGate tracks whether the app has a signed-in user. The flag flips
// only through CheckStatus, Login, and Logout, so every store observes the
// same answer to "who is signed in" at any moment.
type SessionGate struct {
	api    SessionAPI
	logger *slog.Logger

	mu       sync.RWMutex
	loggedIn bool
	user     domain.User
}

// NewSessionGate returns a gate over api. The gate starts signed out;
// call CheckStatus at startup to restore a persisted session.
func NewSessionGate(api SessionAPI) *SessionGate {
	return &SessionGate{api: api, logger: slog.Default()}
}

// CheckStatus asks the backend whether the current token still maps to a
// live session and updates local state to match. A transport failure keeps
// the gate signed out rather than guessing.
func (s *SessionGate) CheckStatus(ctx context.Context) error {
	user, ok, err := s.api.CheckSession(ctx)
	if err != nil {
		s.logger.Warn("session check failed", "err", err)
		s.setState(false, domain.User{})
		return ErrLoadFailed
	}
	s.setState(ok, user)
	return nil
}

// Login signs in through the backend with an external identity token and
// marks the gate signed in on success.
func (s *SessionGate) Login(ctx context.Context, provider, identityToken string) (domain.User, error) {
	user, err := s.api.SignIn(ctx, provider, identityToken)
	if err != nil {
		return domain.User{}, err
	}
	s.setState(true, user)
	return user, nil
}

// Logout signs out of the backend and clears local state. Local state is
// cleared even when the backend call fails: from the app's point of view
// the user is gone either way.
func (s *SessionGate) Logout(ctx context.Context) {
	if err := s.api.SignOut(ctx); err != nil {
		s.logger.Warn("sign out failed", "err", err)
	}
	s.setState(false, domain.User{})
}

// DeleteAccount removes the account server-side, then clears local state.
func (s *SessionGate) DeleteAccount(ctx context.Context) error {
	if err := s.api.DeleteAccount(ctx); err != nil {
		return err
	}
	s.setState(false, domain.User{})
	return nil
}

func (s *SessionGate) setState(loggedIn bool, user domain.User) {
	s.mu.Lock()
	s.loggedIn = loggedIn
	s.user = user
	s.mu.Unlock()
}

// LoggedIn reports whether a user is signed in.
func (s *SessionGate) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// UserID returns the signed-in user's id, ok=false when signed out.
func (s *SessionGate) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loggedIn {
		return "", false
	}
	return s.user.ID, true
}

// User returns the signed-in user, ok=false when signed out.
func (s *SessionGate) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.loggedIn
}
