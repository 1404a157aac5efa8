// Package session owns the client's authentication state: whether a user
// is signed in, who they are, and the credential that proves it.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"finboard/internal/core"
	"finboard/internal/credential"
	"finboard/internal/gateway"
	"finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/observe"
)

type State string

const (
	StateLoading       State = "loading"
	StateGuest         State = "guest"
	StateAuthenticated State = "authenticated"
)

const minPasswordLength = 6

var (
	ErrNotReady         = errors.New("session is still loading")
	ErrNotAuthenticated = errors.New("not signed in")
)

// Session is a point-in-time view of the authentication state. User is
// non-nil iff State is StateAuthenticated.
type Session struct {
	State State
	User  *core.UserProfile
}

func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// AuthError is a failed login, signup or social sign-in. Message is safe
// to show to the user.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// API is the subset of the backend the session needs.
type API interface {
	Login(ctx context.Context, email, password string) (gateway.AuthResponse, error)
	GoogleLogin(ctx context.Context, idToken string) (gateway.AuthResponse, error)
	Signup(ctx context.Context, email, password string) (gateway.MessageResponse, error)
	Me(ctx context.Context) (core.UserProfile, error)
}

type Manager struct {
	store   credential.Store
	api     API
	logger  *log.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	initOnce  sync.Once
	refreshes singleflight.Group

	// transitions serializes state changes together with their
	// notification so subscribers see them in the order they happened.
	// Subscribers must not call back into a mutating method.
	transitions sync.Mutex

	mu      sync.Mutex
	state   State
	user    *core.UserProfile
	token   string
	lastErr string

	changes observe.Subject[Session]
}

type Option func(*Manager)

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithComponent(log.ComponentSession)
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the clock used to check credential expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(store credential.Store, api API, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		api:    api,
		logger: log.Default(log.ComponentSession),
		now:    time.Now,
		state:  StateLoading,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the present state.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Token returns the cached credential, or "" when there is none. While
// the session is resolving it returns the stored credential being checked.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// LastError is the message of the most recent failed authentication
// attempt, cleared by the next success.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Subscribe registers fn for every state change and returns a function
// that removes it.
func (m *Manager) Subscribe(fn func(Session)) func() {
	return m.changes.Subscribe(fn)
}

// Init resolves the stored credential into guest or authenticated. Only
// the first call does any work; later calls return the current state.
func (m *Manager) Init(ctx context.Context) Session {
	m.initOnce.Do(func() {
		m.resolve(ctx)
	})
	return m.Current()
}

func (m *Manager) resolve(ctx context.Context) {
	token, err := m.store.Load()
	if err != nil {
		m.logger.WarnContext(ctx, "Stored credential unreadable, starting as guest",
			log.NewFields().WithOperation(log.OpResolve).WithError(err).ToSlice()...)
		m.becomeGuest(ctx, log.OpResolve, "")
		return
	}
	if token == "" {
		m.becomeGuest(ctx, log.OpResolve, "")
		return
	}
	if tokenExpired(token, m.now()) {
		m.logger.InfoContext(ctx, "Stored credential expired, starting as guest",
			log.NewFields().WithOperation(log.OpResolve).ToSlice()...)
		m.becomeGuest(ctx, log.OpResolve, token)
		return
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	user, err := m.api.Me(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Stored credential rejected, starting as guest",
			log.NewFields().WithOperation(log.OpResolve).WithError(err).ToSlice()...)
		m.becomeGuest(ctx, log.OpResolve, token)
		return
	}

	m.apply(ctx, log.OpResolve, func() error {
		if m.token != token {
			// Invalidated while the profile was in flight.
			m.state, m.user = StateGuest, nil
			return nil
		}
		m.state, m.user = StateAuthenticated, cloneUser(user)
		return nil
	})
}

// becomeGuest purges the credential if it is still token (or there is
// none) and settles in guest.
func (m *Manager) becomeGuest(ctx context.Context, op, token string) {
	m.apply(ctx, op, func() error {
		if m.token == token || m.token == "" {
			m.clearStoreLocked(ctx)
			m.token = ""
		}
		m.state, m.user = StateGuest, nil
		return nil
	})
}

// Login exchanges email and password for a credential.
func (m *Manager) Login(ctx context.Context, email, password string) (core.UserProfile, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return core.UserProfile{}, err
	}
	if m.Current().State == StateLoading {
		return core.UserProfile{}, ErrNotReady
	}
	resp, err := m.api.Login(ctx, email, password)
	return m.establish(ctx, log.OpLogin, resp, err, "Login failed")
}

// SocialLogin exchanges a Google ID token for a credential.
func (m *Manager) SocialLogin(ctx context.Context, idToken string) (core.UserProfile, error) {
	const fallback = "Google sign-in failed"
	if strings.TrimSpace(idToken) == "" {
		return core.UserProfile{}, m.authFailed(ctx, log.OpSocial, fallback, nil)
	}
	if m.Current().State == StateLoading {
		return core.UserProfile{}, ErrNotReady
	}
	resp, err := m.api.GoogleLogin(ctx, idToken)
	return m.establish(ctx, log.OpSocial, resp, err, fallback)
}

func (m *Manager) establish(ctx context.Context, op string, resp gateway.AuthResponse, err error, fallback string) (core.UserProfile, error) {
	if err != nil {
		return core.UserProfile{}, m.authFailed(ctx, op, gateway.Message(err, fallback), err)
	}
	if resp.AccessToken == "" {
		return core.UserProfile{}, m.authFailed(ctx, op, fallback, errors.New("response carried no access token"))
	}

	err = m.apply(ctx, op, func() error {
		if err := m.store.Save(resp.AccessToken); err != nil {
			return err
		}
		m.token = resp.AccessToken
		m.state, m.user = StateAuthenticated, cloneUser(resp.User)
		m.lastErr = ""
		return nil
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to persist credential",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
		return core.UserProfile{}, err
	}
	return resp.User, nil
}

func (m *Manager) authFailed(ctx context.Context, op, message string, cause error) error {
	m.mu.Lock()
	m.lastErr = message
	m.mu.Unlock()

	m.logger.WarnContext(ctx, "Authentication failed",
		log.NewFields().
			WithOperation(op).
			WithErrorType(log.ErrorTypeAuth).
			WithError(cause).
			ToSlice()...)
	return &AuthError{Op: op, Message: message, Err: cause}
}

// Signup registers a pending account. The session does not change; the
// user signs in after verifying their email.
func (m *Manager) Signup(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", &core.ValidationError{Field: "password", Message: "must be at least 6 characters"}
	}

	resp, err := m.api.Signup(ctx, email, password)
	if err != nil {
		return "", m.authFailed(ctx, log.OpSignup, gateway.Message(err, "Signup failed"), err)
	}

	m.mu.Lock()
	m.lastErr = ""
	m.mu.Unlock()
	return resp.Message, nil
}

// Logout drops the credential and profile. It always succeeds; a store
// that cannot be cleared is logged.
func (m *Manager) Logout(ctx context.Context) {
	m.apply(ctx, log.OpLogout, func() error {
		m.clearStoreLocked(ctx)
		m.token = ""
		m.state, m.user = StateGuest, nil
		return nil
	})
}

// Invalidate is the authorization-failure path. It purges the credential
// only if sentToken is still the current one and reports whether it did,
// so repeated or late failures are no-ops.
func (m *Manager) Invalidate(ctx context.Context, sentToken string) bool {
	if sentToken == "" {
		return false
	}
	var purged bool
	m.apply(ctx, log.OpInvalidate, func() error {
		if m.token != sentToken {
			return nil
		}
		purged = true
		m.clearStoreLocked(ctx)
		m.token = ""
		// resolve settles the state itself
		if m.state != StateLoading {
			m.state, m.user = StateGuest, nil
		}
		return nil
	})
	return purged
}

// Refresh re-reads the profile behind the current credential. Concurrent
// calls share one request.
func (m *Manager) Refresh(ctx context.Context) (core.UserProfile, error) {
	v, err, _ := m.refreshes.Do("me", func() (any, error) {
		m.mu.Lock()
		token, state := m.token, m.state
		m.mu.Unlock()
		if state != StateAuthenticated {
			return core.UserProfile{}, ErrNotAuthenticated
		}

		user, err := m.api.Me(ctx)
		if err != nil {
			return core.UserProfile{}, err
		}
		m.apply(ctx, log.OpResolve, func() error {
			if m.token == token && m.state == StateAuthenticated {
				m.user = cloneUser(user)
			}
			return nil
		})
		return user, nil
	})
	return v.(core.UserProfile), err
}

// apply runs mutate under the state lock and, if the visible state
// changed, notifies subscribers before the next transition can start.
func (m *Manager) apply(ctx context.Context, op string, mutate func() error) error {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	m.mu.Lock()
	before := m.snapshotLocked()
	err := mutate()
	after := m.snapshotLocked()
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if before.State == after.State && before.User == nil && after.User == nil {
		return nil
	}
	if before.State == after.State && before.User != nil && after.User != nil && *before.User == *after.User {
		return nil
	}

	m.metrics.SessionTransition(string(before.State), string(after.State))
	m.logger.InfoContext(ctx, "Session changed",
		log.NewFields().
			WithOperation(op).
			WithSession(string(after.State), after.UserID()).
			ToSlice()...)
	m.changes.Publish(after)
	return nil
}

func (m *Manager) snapshotLocked() Session {
	s := Session{State: m.state}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

func (m *Manager) clearStoreLocked(ctx context.Context) {
	if err := m.store.Clear(); err != nil {
		m.logger.WarnContext(ctx, "Failed to clear stored credential",
			log.NewFields().WithError(err).ToSlice()...)
	}
}

func cloneUser(u core.UserProfile) *core.UserProfile {
	return &u
}

func validateCredentials(email, password string) error {
	if email == "" {
		return &core.ValidationError{Field: "email", Message: "is required"}
	}
	if password == "" {
		return &core.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// The signature is not checked; opaque tokens are left to the backend.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
