// Package config loads tracker configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Neo       NeoConfig       `yaml:"neo"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Quote     QuoteConfig     `yaml:"quote"`
	Poll      PollConfig      `yaml:"poll"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`

	// Extra exchange holidays, YYYY-MM-DD.
	Holidays []string `yaml:"holidays" env:"MARKET_HOLIDAYS" validate:"dive,datetime=2006-01-02"`
}

// NeoConfig holds Kotak Neo credentials. With SessionToken set the tracker
// runs on that pre-issued session and never logs in itself, so the login
// credentials become optional.
type NeoConfig struct {
	AccessToken  string `yaml:"accessToken" env:"NEO_ACCESS_TOKEN" validate:"required"`
	MobileNumber string `yaml:"mobileNumber" env:"NEO_MOBILE_NUMBER"`
	UCC          string `yaml:"ucc" env:"NEO_UCC"`
	MPIN         string `yaml:"mpin" env:"NEO_MPIN"`
	TOTPSecret   string `yaml:"totpSecret" env:"NEO_TOTP_SECRET"`
	LoginURL     string `yaml:"loginURL"`
	NeoFinKey    string `yaml:"neoFinKey"`
	Segment      string `yaml:"segment"`
	AutoLogin    bool   `yaml:"autoLogin"`

	SessionToken string `yaml:"sessionToken" env:"NEO_SESSION_TOKEN"`
	SessionSID   string `yaml:"sessionSID" env:"NEO_SESSION_SID" validate:"required_with=SessionToken"`
	BaseURL      string `yaml:"baseURL" env:"NEO_BASE_URL" validate:"required_with=SessionToken"`
}

type ReconcileConfig struct {
	Category    string `yaml:"category" env:"POSITION_CATEGORY" validate:"required"`
	Concurrency int    `yaml:"concurrency" env:"RECONCILE_CONCURRENCY" validate:"gte=0"`
}

type QuoteConfig struct {
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	SourceTimeout   time.Duration `yaml:"sourceTimeout"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown"`
	YahooURL        string        `yaml:"yahooURL"`
	// Order of sources tried, from: broker, yahoo.
	Sources []string `yaml:"sources" env:"QUOTE_SOURCES" validate:"min=1,dive,oneof=broker yahoo"`
}

type PollConfig struct {
	Interval     time.Duration `yaml:"interval" env:"POLL_INTERVAL" validate:"gt=0"`
	OutsideHours bool          `yaml:"outsideHours"`
}

type StorageConfig struct {
	SQLitePath    string        `yaml:"sqlitePath"`
	RedisAddr     string        `yaml:"redisAddr"` // empty disables Redis
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	LatestTTL     time.Duration `yaml:"latestTTL"`
}

type ServerConfig struct {
	APIAddr     string `yaml:"apiAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	ReplaySize  int    `yaml:"replaySize"`
}

type NotifyConfig struct {
	WebhookURL     string `yaml:"webhookURL"`
	WebhookSecret  string `yaml:"webhookSecret"`
	TelegramToken  string `yaml:"telegramToken" env:"TELEGRAM_BOT_TOKEN" validate:"required_with=TelegramChatID"`
	TelegramChatID string `yaml:"telegramChatID" env:"TELEGRAM_CHAT_ID" validate:"required_with=TelegramToken"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Neo: NeoConfig{
			LoginURL:  "https://mis.kotaksecurities.com",
			NeoFinKey: "neotradeapi",
			Segment:   "nse_cm",
			AutoLogin: true,
		},
		Reconcile: ReconcileConfig{Category: "MTF", Concurrency: 8},
		Quote: QuoteConfig{
			CacheTTL:        60 * time.Second,
			SourceTimeout:   3 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
			YahooURL:        "https://query1.finance.yahoo.com",
			Sources:         []string{"broker", "yahoo"},
		},
		Poll: PollConfig{Interval: 30 * time.Second},
		Storage: StorageConfig{
			SQLitePath: "data/mtf.db",
			LatestTTL:  30 * time.Minute,
		},
		Server: ServerConfig{
			APIAddr:     ":8080",
			MetricsAddr: ":9090",
			ReplaySize:  64,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads CONFIG_FILE (if set) over the defaults, then applies
// environment variables, which win.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, key string) {
		*dst = getEnv(key, *dst)
	}
	boolean := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	list := func(dst *[]string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	str(&c.Neo.AccessToken, "NEO_ACCESS_TOKEN")
	str(&c.Neo.MobileNumber, "NEO_MOBILE_NUMBER")
	str(&c.Neo.UCC, "NEO_UCC")
	str(&c.Neo.MPIN, "NEO_MPIN")
	str(&c.Neo.TOTPSecret, "NEO_TOTP_SECRET")
	str(&c.Neo.LoginURL, "NEO_LOGIN_URL")
	str(&c.Neo.NeoFinKey, "NEO_FIN_KEY")
	str(&c.Neo.Segment, "NEO_SEGMENT")
	boolean(&c.Neo.AutoLogin, "NEO_AUTO_LOGIN")
	str(&c.Neo.SessionToken, "NEO_SESSION_TOKEN")
	str(&c.Neo.SessionSID, "NEO_SESSION_SID")
	str(&c.Neo.BaseURL, "NEO_BASE_URL")

	str(&c.Reconcile.Category, "POSITION_CATEGORY")
	integer(&c.Reconcile.Concurrency, "RECONCILE_CONCURRENCY")

	duration(&c.Quote.CacheTTL, "QUOTE_CACHE_TTL")
	duration(&c.Quote.SourceTimeout, "QUOTE_SOURCE_TIMEOUT")
	integer(&c.Quote.BreakerFailures, "QUOTE_BREAKER_FAILURES")
	duration(&c.Quote.BreakerCooldown, "QUOTE_BREAKER_COOLDOWN")
	str(&c.Quote.YahooURL, "YAHOO_URL")
	list(&c.Quote.Sources, "QUOTE_SOURCES")

	duration(&c.Poll.Interval, "POLL_INTERVAL")
	boolean(&c.Poll.OutsideHours, "POLL_OUTSIDE_HOURS")

	str(&c.Storage.SQLitePath, "SQLITE_PATH")
	str(&c.Storage.RedisAddr, "REDIS_ADDR")
	str(&c.Storage.RedisPassword, "REDIS_PASSWORD")
	integer(&c.Storage.RedisDB, "REDIS_DB")
	duration(&c.Storage.LatestTTL, "REDIS_LATEST_TTL")

	str(&c.Server.APIAddr, "API_ADDR")
	str(&c.Server.MetricsAddr, "METRICS_ADDR")
	integer(&c.Server.ReplaySize, "WS_REPLAY_SIZE")

	str(&c.Notify.WebhookURL, "ALERT_WEBHOOK_URL")
	str(&c.Notify.WebhookSecret, "ALERT_WEBHOOK_SECRET")
	str(&c.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	str(&c.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")

	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")

	list(&c.Holidays, "MARKET_HOLIDAYS")

	return errors.Join(errs...)
}

var validate = newValidator()

// newValidator reports fields under their environment variable names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	v.RegisterStructValidation(neoLogin, NeoConfig{})
	return v
}

// neoLogin requires the login credentials unless a session is pre-issued.
func neoLogin(sl validator.StructLevel) {
	n := sl.Current().Interface().(NeoConfig)
	if n.SessionToken != "" {
		return
	}
	need := func(v, env, field string) {
		if v == "" {
			sl.ReportError(v, env, field, "required", "")
		}
	}
	need(n.MobileNumber, "NEO_MOBILE_NUMBER", "MobileNumber")
	need(n.UCC, "NEO_UCC", "UCC")
	need(n.MPIN, "NEO_MPIN", "MPIN")
	if n.AutoLogin {
		need(n.TOTPSecret, "NEO_TOTP_SECRET", "TOTPSecret")
	}
}

// Validate reports missing credentials and out-of-range values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, describe(fe))
	}
	return errors.Join(errs...)
}

func describe(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return fmt.Errorf("required setting %s not set", fe.Field())
	case "oneof":
		return fmt.Errorf("%s: %q is not one of %s", fe.Field(), fe.Value(), fe.Param())
	case "datetime":
		return fmt.Errorf("%s: %q is not a %s date", fe.Field(), fe.Value(), fe.Param())
	case "gt":
		return fmt.Errorf("%s must be positive, got %v", fe.Field(), fe.Value())
	case "min":
		return fmt.Errorf("%s must not be empty", fe.Field())
	default:
		return fmt.Errorf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
