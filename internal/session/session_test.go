package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
)

// base32 secret used only by these tests
const testSecret = "JBSWY3DPEHPK3PXP"

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Login(ctx context.Context, code string) (*model.Session, error) {
	args := m.Called(ctx, code)
	sess, _ := args.Get(0).(*model.Session)
	return sess, args.Error(1)
}

var now = time.Date(2026, 10, 14, 9, 10, 0, 0, markethours.IST)

func newTestManager(cfg Config, auth Authenticator) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	m := NewManager(cfg, auth, store, nil)
	m.now = func() time.Time { return now }
	return m, store
}

func TestManager_LoginStampsEndOfDay(t *testing.T) {
	want, err := totp.GenerateCode(testSecret, now)
	require.NoError(t, err)

	auth := &mockAuth{}
	auth.On("Login", mock.Anything, want).
		Return(&model.Session{BearerToken: "t", SessionID: "s", BaseURL: "https://b"}, nil).Once()

	m, store := newTestManager(Config{TOTPSecret: testSecret}, auth)
	sess, err := m.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, markethours.EndOfDay(now), sess.ValidUntil)
	assert.True(t, sess.Valid(now))
	assert.False(t, sess.Valid(now.Add(15*time.Hour)))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t", stored.BearerToken)
	auth.AssertExpectations(t)
}

func TestManager_CurrentWithoutAutoLogin(t *testing.T) {
	auth := &mockAuth{}
	m, store := newTestManager(Config{TOTPSecret: testSecret}, auth)

	sess, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)

	expired := &model.Session{BearerToken: "t", BaseURL: "https://b", ValidUntil: now.Add(-time.Minute)}
	require.NoError(t, store.Save(context.Background(), expired))
	sess, err = m.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.Valid(now))

	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestManager_AutoLoginReplacesExpired(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, mock.AnythingOfType("string")).
		Return(&model.Session{BearerToken: "fresh", BaseURL: "https://b"}, nil).Once()

	m, store := newTestManager(Config{TOTPSecret: testSecret, AutoLogin: true}, auth)
	require.NoError(t, store.Save(context.Background(),
		&model.Session{BearerToken: "old", BaseURL: "https://b", ValidUntil: now.Add(-time.Hour)}))

	sess, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.BearerToken)

	// the stored session is reused afterwards
	sess, err = m.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.BearerToken)
	auth.AssertExpectations(t)
}

func TestManager_LoginErrors(t *testing.T) {
	m, _ := newTestManager(Config{}, &mockAuth{})
	_, err := m.Login(context.Background())
	assert.ErrorIs(t, err, ErrNoSecret)

	auth := &mockAuth{}
	boom := errors.New("invalid totp")
	auth.On("Login", mock.Anything, mock.Anything).Return(nil, boom)
	m, store := newTestManager(Config{TOTPSecret: testSecret, AutoLogin: true}, auth)

	_, err = m.Current(context.Background())
	assert.ErrorIs(t, err, boom)
	stored, _ := store.Load(context.Background())
	assert.Nil(t, stored)
}

func TestManager_EmptyLoginReply(t *testing.T) {
	auth := &mockAuth{}
	auth.On("Login", mock.Anything, mock.Anything).Return(nil, nil)
	m, store := newTestManager(Config{TOTPSecret: testSecret, AutoLogin: true}, auth)

	sess, err := m.Current(context.Background())
	assert.ErrorIs(t, err, ErrEmptyLogin)
	assert.Nil(t, sess)

	stored, _ := store.Load(context.Background())
	assert.Nil(t, stored)
}

func TestManager_Logout(t *testing.T) {
	m, store := newTestManager(Config{}, nil)
	require.NoError(t, store.Save(context.Background(), &model.Session{BearerToken: "t"}))
	require.NoError(t, m.Logout(context.Background()))

	sess, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestMemoryStore_Copies(t *testing.T) {
	s := NewMemoryStore()
	orig := &model.Session{BearerToken: "a"}
	require.NoError(t, s.Save(context.Background(), orig))
	orig.BearerToken = "mutated"

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.BearerToken)
}

func TestStatic(t *testing.T) {
	sess := &model.Session{BearerToken: "x"}
	got, err := Static{Session: sess}.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, sess, got)
}
