package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mtf-tracker/config"
	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/session"
)

var startedAt = time.Date(2026, 10, 14, 9, 20, 0, 0, markethours.IST)

func TestBrokerSessions_PreIssuedToken(t *testing.T) {
	cfg := config.NeoConfig{SessionToken: "bearer", SessionSID: "sid", BaseURL: "https://b"}

	provider, control := brokerSessions(cfg, nil, session.NewMemoryStore(), startedAt, zap.NewNop())
	assert.Nil(t, control)
	require.IsType(t, session.Static{}, provider)

	sess, err := provider.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.BearerToken)
	assert.Equal(t, "sid", sess.SessionID)
	assert.Equal(t, "https://b", sess.BaseURL)
	assert.True(t, sess.Valid(startedAt))
	assert.False(t, sess.Valid(startedAt.Add(24*time.Hour)), "expires with the trading day")
}

func TestBrokerSessions_LoginManager(t *testing.T) {
	cfg := config.NeoConfig{TOTPSecret: "JBSWY3DPEHPK3PXP"}

	provider, control := brokerSessions(cfg, nil, session.NewMemoryStore(), startedAt, zap.NewNop())
	require.NotNil(t, control)
	assert.IsType(t, &session.Manager{}, provider)

	// nothing stored and auto login off
	sess, err := provider.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}
