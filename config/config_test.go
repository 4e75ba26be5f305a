package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCreds(t *testing.T) {
	t.Setenv("NEO_ACCESS_TOKEN", "tok")
	t.Setenv("NEO_MOBILE_NUMBER", "+919999999999")
	t.Setenv("NEO_UCC", "AB123")
	t.Setenv("NEO_MPIN", "1234")
	t.Setenv("NEO_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_ADDR", "")
	setCreds(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "MTF", cfg.Reconcile.Category)
	assert.Equal(t, 60*time.Second, cfg.Quote.CacheTTL)
	assert.Equal(t, 3*time.Second, cfg.Quote.SourceTimeout)
	assert.Equal(t, []string{"broker", "yahoo"}, cfg.Quote.Sources)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Empty(t, cfg.Storage.RedisAddr)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
neo:
  ucc: FROMFILE
  autoLogin: false
quote:
  cacheTTL: 2m
  sources: [yahoo]
poll:
  interval: 10s
storage:
  redisAddr: redis:6379
holidays: ["2026-12-31"]
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("POLL_INTERVAL", "45s")
	t.Setenv("NEO_UCC", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "FROMFILE", cfg.Neo.UCC)
	assert.False(t, cfg.Neo.AutoLogin)
	assert.Equal(t, 2*time.Minute, cfg.Quote.CacheTTL)
	assert.Equal(t, []string{"yahoo"}, cfg.Quote.Sources)
	assert.Equal(t, 45*time.Second, cfg.Poll.Interval, "env wins over file")
	assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, []string{"2026-12-31"}, cfg.Holidays)
	assert.Equal(t, 3*time.Second, cfg.Quote.SourceTimeout, "defaults survive the overlay")
}

func TestLoadBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("NEO_AUTO_LOGIN", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
	assert.Contains(t, err.Error(), "NEO_AUTO_LOGIN")
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"NEO_ACCESS_TOKEN", "NEO_MOBILE_NUMBER", "NEO_UCC", "NEO_MPIN", "NEO_TOTP_SECRET"} {
		assert.Contains(t, err.Error(), key)
	}

	cfg.Neo = NeoConfig{AccessToken: "a", MobileNumber: "m", UCC: "u", MPIN: "p"}
	cfg.Quote.Sources = []string{"google"}
	cfg.Notify.TelegramToken = "x"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `QUOTE_SOURCES[0]: "google" is not one of broker yahoo`)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
	assert.NotContains(t, err.Error(), "NEO_TOTP_SECRET", "auto login is off")

	cfg = Defaults()
	cfg.Neo = NeoConfig{AccessToken: "a", MobileNumber: "m", UCC: "u", MPIN: "p"}
	cfg.Poll.Interval = 0
	cfg.Holidays = []string{"2026-13-01"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL must be positive")
	assert.Contains(t, err.Error(), `MARKET_HOLIDAYS[0]: "2026-13-01"`)

	cfg.Poll.Interval = time.Second
	cfg.Holidays = nil
	assert.NoError(t, cfg.Validate())
}

func TestValidatePreIssuedSession(t *testing.T) {
	cfg := Defaults()
	cfg.Neo.AccessToken = "a"
	cfg.Neo.SessionToken = "bearer"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEO_SESSION_SID")
	assert.Contains(t, err.Error(), "NEO_BASE_URL")
	assert.NotContains(t, err.Error(), "NEO_MPIN", "no login with a pre-issued session")
	assert.NotContains(t, err.Error(), "NEO_TOTP_SECRET")

	cfg.Neo.SessionSID = "sid"
	cfg.Neo.BaseURL = "https://cis.kotaksecurities.com"
	assert.NoError(t, cfg.Validate())
}

func TestLoadSessionEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("NEO_SESSION_TOKEN", "bearer")
	t.Setenv("NEO_SESSION_SID", "sid")
	t.Setenv("NEO_BASE_URL", "https://b")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bearer", cfg.Neo.SessionToken)
	assert.Equal(t, "sid", cfg.Neo.SessionSID)
	assert.Equal(t, "https://b", cfg.Neo.BaseURL)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
}
