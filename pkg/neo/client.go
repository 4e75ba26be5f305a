// Package neo is a minimal client for the Kotak Neo trade API.
//
// It covers the calls a position monitor needs: the two-step TOTP login,
// the position and order books, and last traded price quotes. Every call
// takes a context and returns an error for transport failures, non-200
// replies, API error envelopes and malformed JSON.
//
// Usage example:
//
//	c := neo.New(neo.Config{AccessToken: "...", MobileNumber: "+91...", UCC: "AB123", MPIN: "1234"})
//	sess, err := c.Login(ctx, totpCode)
//	if err != nil { return err }
//	rows, err := c.Positions(ctx, sess)
package neo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ---- Config & client ----

type Config struct {
	AccessToken  string // consumer access token from the Neo developer portal
	MobileNumber string
	UCC          string // unique client code
	MPIN         string

	LoginURL  string        // default: https://mis.kotaksecurities.com
	NeoFinKey string        // default: neotradeapi
	Timeout   time.Duration // default: 10s
	Client    *http.Client  // optional, overrides Timeout
}

type Client struct {
	accessToken  string
	mobileNumber string
	ucc          string
	mpin         string

	loginURL  string
	neoFinKey string

	httpClient *http.Client
}

const (
	defaultLoginURL  = "https://mis.kotaksecurities.com"
	defaultNeoFinKey = "neotradeapi"
)

var routes = map[string]string{
	"login.totp":     "/login/1.0/tradeApiLogin",
	"login.validate": "/login/1.0/tradeApiValidate",

	"user.positions": "/quick/user/positions",
	"user.orders":    "/quick/user/orders",

	"quotes.ltp": "/script-details/1.0/quotes/neosymbol/%s|%s/ltp",
}

var (
	// ErrHTTPStatus wraps any non-200 reply.
	ErrHTTPStatus = errors.New("neo: unexpected http status")
	// ErrMalformed wraps a body that is not the expected JSON shape.
	ErrMalformed = errors.New("neo: malformed response")
	// ErrAPI wraps an error envelope returned with status 200.
	ErrAPI = errors.New("neo: api error")
)

// New creates a client.
func New(cfg Config) *Client {
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	if cfg.NeoFinKey == "" {
		cfg.NeoFinKey = defaultNeoFinKey
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		accessToken:  cfg.AccessToken,
		mobileNumber: cfg.MobileNumber,
		ucc:          cfg.UCC,
		mpin:         cfg.MPIN,
		loginURL:     strings.TrimRight(cfg.LoginURL, "/"),
		neoFinKey:    cfg.NeoFinKey,
		httpClient:   client,
	}
}

// ---- Helpers ----

// envelope is the common reply wrapper: {"stat":"Ok","stCode":200,"data":...}.
type envelope struct {
	Stat   string          `json:"stat"`
	StCode int             `json:"stCode"`
	ErrMsg string          `json:"errMsg"`
	EMsg   string          `json:"emsg"`
	Data   json.RawMessage `json:"data"`
}

func (e *envelope) apiError() error {
	msg := e.ErrMsg
	if msg == "" {
		msg = e.EMsg
	}
	if strings.EqualFold(e.Stat, "Not_Ok") || msg != "" {
		if msg == "" {
			msg = "stat=" + e.Stat
		}
		return fmt.Errorf("%w: %s (code %d)", ErrAPI, msg, e.StCode)
	}
	return nil
}

func (c *Client) sessionHeaders(token, sid string) http.Header {
	h := http.Header{}
	h.Set("Auth", token)
	h.Set("Sid", sid)
	h.Set("neo-fin-key", c.neoFinKey)
	h.Set("accept", "application/json")
	return h
}

func (c *Client) do(ctx context.Context, method, fullURL string, hdr http.Header, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("neo: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("neo: create request: %w", err)
	}
	req.Header = hdr
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neo: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("neo: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return raw, fmt.Errorf("%w: %s %s: %d", ErrHTTPStatus, method, req.URL.Path, resp.StatusCode)
	}
	return raw, nil
}

// getData performs an authenticated GET and returns the envelope's data.
func (c *Client) getData(ctx context.Context, fullURL string, hdr http.Header) (json.RawMessage, error) {
	raw, err := c.do(ctx, http.MethodGet, fullURL, hdr, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.apiError(); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func sessionURL(base, route string) string {
	return strings.TrimRight(base, "/") + routes[route]
}
