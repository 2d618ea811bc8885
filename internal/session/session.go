// Package session tracks the signed-in shopper: login, logout and restoring
// a previous session from a Store.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vetclinic/storefront/internal/cart"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/remote"
	"github.com/vetclinic/storefront/internal/validate"
	"github.com/vetclinic/storefront/pkg/logger"
)

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (remote.LoginResult, error)
}

// Manager holds the current session. It is safe for concurrent use.
type Manager struct {
	auth  Authenticator
	store Store
	cart  *cart.Manager
	log   *logger.Logger
	now   func() time.Time

	mu    sync.RWMutex
	state *State
}

// NewManager returns a signed-out manager. cart, when not nil, is emptied on
// logout.
func NewManager(auth Authenticator, store Store, c *cart.Manager, log *logger.Logger) *Manager {
	if store == nil {
		store = &MemoryStore{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{auth: auth, store: store, cart: c, log: log, now: time.Now}
}

// Login validates the credentials, signs in and persists the session.
func (m *Manager) Login(ctx context.Context, email, password string) (remote.User, error) {
	if msg := validate.Login(email, password); msg != "" {
		return remote.User{}, serrors.InvalidInput("credentials", msg)
	}
	if m.auth == nil {
		return remote.User{}, serrors.Unauthorized("no authentication service configured")
	}

	res, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Info("login rejected")
		return remote.User{}, err
	}

	st := State{Token: res.Token, User: res.User}
	if err := m.store.Save(st); err != nil {
		return remote.User{}, err
	}

	m.mu.Lock()
	m.state = &st
	m.mu.Unlock()

	m.log.WithContext(ctx).WithField("user_id", res.User.UserID).Info("signed in")
	return res.User, nil
}

// Logout forgets the session and empties the cart.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.state = nil
	m.mu.Unlock()

	if m.cart != nil {
		m.cart.Clear()
	}
	return m.store.Delete()
}

// Load restores a stored session. It reports false when there is none or
// when the stored token has expired, in which case the stored copy is
// deleted.
func (m *Manager) Load() (bool, error) {
	st, err := m.store.Load()
	if err != nil {
		return false, err
	}
	if st == nil || st.Token == "" {
		return false, nil
	}
	if m.expired(st.Token) {
		m.log.WithField("user_id", st.User.UserID).Info("stored session expired")
		if err := m.store.Delete(); err != nil {
			return false, err
		}
		return false, nil
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return true, nil
}

// Token returns the bearer token, or "" when signed out or expired.
func (m *Manager) Token() string {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	if st == nil || m.expired(st.Token) {
		return ""
	}
	return st.Token
}

// User returns the signed-in user.
func (m *Manager) User() (remote.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return remote.User{}, false
	}
	return m.state.User, true
}

// Authenticated reports whether a usable token is held.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// RequireToken returns the token or an Unauthorized error.
func (m *Manager) RequireToken() (string, error) {
	if token := m.Token(); token != "" {
		return token, nil
	}
	return "", serrors.Unauthorized("inicie sesión para continuar")
}

func (m *Manager) expired(token string) bool {
	exp, ok := TokenExpiry(token)
	return ok && !m.now().Before(exp)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Opaque tokens and tokens without exp report false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// String describes the session for logs without leaking the token.
func (s State) String() string {
	return fmt.Sprintf("session(user=%d cart=%d)", s.User.UserID, s.User.CartID)
}
