// Package session keeps the broker session the position poller runs on.
//
// A Manager logs in with a generated TOTP code, stamps the session with the
// end of the IST trading day and persists it through a Store so that a
// restarted process reuses the day's session instead of logging in again.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
)

// Store persists the current session. Load returns nil, nil when empty.
type Store interface {
	Load(ctx context.Context) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
	Clear(ctx context.Context) error
}

// Authenticator performs the broker login for one TOTP code.
type Authenticator interface {
	Login(ctx context.Context, totp string) (*model.Session, error)
}

var (
	// ErrNoSecret is returned by Login when no TOTP secret is configured.
	ErrNoSecret = errors.New("session: no totp secret configured")
	// ErrEmptyLogin is returned when the broker accepts a login but sends
	// no session back.
	ErrEmptyLogin = errors.New("session: empty login reply")
)

// Config configures a Manager.
type Config struct {
	TOTPSecret string // base32 secret from the broker's authenticator setup
	AutoLogin  bool   // log in from Current when the stored session is missing or expired
}

// Manager implements model.SessionProvider.
type Manager struct {
	cfg   Config
	auth  Authenticator
	store Store
	log   *zap.Logger
	now   func() time.Time

	mu sync.Mutex
}

// NewManager creates a Manager. store may be nil, in which case an
// in-memory store is used.
func NewManager(cfg Config, auth Authenticator, store Store, log *zap.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, auth: auth, store: store, log: log.Named("session"), now: time.Now}
}

// Current returns the stored session. With AutoLogin it first replaces a
// missing or expired session by logging in; a failed login is returned as
// an error. Without AutoLogin an expired session is returned as is and the
// caller decides.
func (m *Manager) Current(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if sess.Valid(m.now()) || !m.cfg.AutoLogin {
		return sess, nil
	}
	return m.login(ctx)
}

// Login forces a fresh login and stores the result.
func (m *Manager) Login(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login(ctx)
}

// Logout drops the stored session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Info("session cleared")
	return m.store.Clear(ctx)
}

func (m *Manager) login(ctx context.Context) (*model.Session, error) {
	if m.cfg.TOTPSecret == "" {
		return nil, ErrNoSecret
	}
	if m.auth == nil {
		return nil, errors.New("session: no authenticator")
	}

	now := m.now()
	code, err := totp.GenerateCode(m.cfg.TOTPSecret, now)
	if err != nil {
		return nil, fmt.Errorf("session: totp: %w", err)
	}

	sess, err := m.auth.Login(ctx, code)
	if err != nil {
		m.log.Warn("login failed", zap.Error(err))
		return nil, fmt.Errorf("session: login: %w", err)
	}
	if sess == nil {
		m.log.Warn("login returned no session")
		return nil, ErrEmptyLogin
	}
	sess.ValidUntil = markethours.EndOfDay(now)

	if err := m.store.Save(ctx, sess); err != nil {
		// the session is still usable for this process
		m.log.Warn("session not persisted", zap.Error(err))
	}
	m.log.Info("logged in",
		zap.String("base_url", sess.BaseURL),
		zap.Time("valid_until", sess.ValidUntil),
	)
	return sess, nil
}

// Static is a provider over a fixed session, for tokens obtained outside
// the process.
type Static struct {
	Session *model.Session
}

// Current returns the fixed session.
func (s Static) Current(context.Context) (*model.Session, error) {
	return s.Session, nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.Mutex
	sess *model.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(context.Context) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, nil
	}
	cp := *s.sess
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		s.sess = nil
		return nil
	}
	cp := *sess
	s.sess = &cp
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}
