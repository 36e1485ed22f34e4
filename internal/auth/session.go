package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"palaver/internal/api"
)

// failedRefreshBackoff keeps a broken refresh token from being retried
// on every single request.
const failedRefreshBackoff = time.Minute

// TokenRefresher exchanges a refresh token for new credentials.
// *OAuthClient satisfies it.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// Session is the process-wide current account. It implements
// api.TokenSource: authenticated requests pull their bearer token from
// here, and a token close to expiry is refreshed transparently, once.
type Session struct {
	store     *Store
	refresher TokenRefresher
	log       *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	account     Account
	active      bool
	teardown    []func()
	lastAttempt time.Time
}

func NewSession(store *Store, refresher TokenRefresher, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		store:     store,
		refresher: refresher,
		log:       log,
		now:       time.Now,
	}
}

// OnDeactivate registers a hook that runs when the session ends,
// before any new account takes over. Gateway connections and status
// publishers bound to the old account register themselves here.
func (s *Session) OnDeactivate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown = append(s.teardown, fn)
}

// Activate makes the account current. A previously active session is
// torn down first so nothing bound to the old account outlives it.
func (s *Session) Activate(account Account) error {
	s.mu.Lock()
	if s.active {
		s.deactivateLocked()
	}

	// accounts fresh out of the device flow have no uuid yet and are
	// persisted once the backend resolves their identity
	if s.store != nil && account.UUID != "" {
		if err := s.store.Save(account); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to persist account: %w", err)
		}
		if err := s.store.SetCurrent(account.UUID); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.account = account
	s.active = true
	s.mu.Unlock()

	s.log.Info("session activated", "uuid", account.UUID, "name", account.Name, "offline", account.IsOffline())
	return nil
}

// Logout ends the session. Stored credentials stay on disk.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.deactivateLocked()
	s.account = Account{}
}

func (s *Session) deactivateLocked() {
	hooks := s.teardown
	s.teardown = nil
	s.active = false
	for _, fn := range hooks {
		fn()
	}
}

// Account returns the current account, if any.
func (s *Session) Account() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.active
}

// UUID is the authenticated user's uuid, or "" without a session.
func (s *Session) UUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ""
	}
	return s.account.UUID
}

// Token implements api.TokenSource. An expired token that cannot be
// refreshed yields api.ErrAuthExpired so the caller can restart the
// device flow.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return "", fmt.Errorf("%w: no account", api.ErrAuthExpired)
	}
	if s.account.IsOffline() {
		return "", fmt.Errorf("%w: offline account", api.ErrAuthExpired)
	}

	now := s.now()
	if !s.account.NeedsRefresh(now) && !s.account.Expired(now) {
		return s.account.AuthToken, nil
	}

	if err := s.refreshLocked(ctx, now); err != nil {
		if s.account.Expired(now) {
			return "", fmt.Errorf("%w: %v", api.ErrAuthExpired, err)
		}
		// Token is still valid for a while; keep using it.
		s.log.Warn("token refresh failed, continuing with current token", "uuid", s.account.UUID, "error", err)
	}
	return s.account.AuthToken, nil
}

func (s *Session) refreshLocked(ctx context.Context, now time.Time) error {
	if s.refresher == nil || s.account.RefreshToken == "" {
		return fmt.Errorf("no refresh token for %s", s.account.UUID)
	}
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < failedRefreshBackoff {
		return fmt.Errorf("refresh recently failed for %s", s.account.UUID)
	}
	s.lastAttempt = now

	token, err := s.refresher.Refresh(ctx, s.account.RefreshToken)
	if err != nil {
		return err
	}

	s.account.AuthToken = token.AccessToken
	s.account.RefreshToken = token.RefreshToken
	s.account.Expiry = token.Expiry
	s.lastAttempt = time.Time{}

	if s.store != nil && s.account.UUID != "" {
		if err := s.store.Save(s.account); err != nil {
			s.log.Warn("failed to persist refreshed account", "uuid", s.account.UUID, "error", err)
		}
	}
	s.log.Debug("session token refreshed", "uuid", s.account.UUID, "expiry", s.account.Expiry)
	return nil
}
