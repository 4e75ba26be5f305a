package neo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mtf-tracker/internal/model"
)

type loginData struct {
	Token   string `json:"token"`
	Sid     string `json:"sid"`
	BaseURL string `json:"baseUrl"`
}

// Login runs the TOTP + MPIN handshake and returns a session with its
// validity left unset; the caller decides ValidUntil.
func (c *Client) Login(ctx context.Context, totp string) (*model.Session, error) {
	if totp == "" {
		return nil, errors.New("neo: empty totp")
	}

	h := http.Header{}
	h.Set("Authorization", c.accessToken)
	h.Set("neo-fin-key", c.neoFinKey)
	h.Set("accept", "application/json")

	view, err := c.loginStep(ctx, routes["login.totp"], h, map[string]any{
		"mobileNumber": c.mobileNumber,
		"ucc":          c.ucc,
		"totp":         totp,
	})
	if err != nil {
		return nil, fmt.Errorf("neo: totp login: %w", err)
	}
	if view.Token == "" || view.Sid == "" {
		return nil, fmt.Errorf("%w: totp login returned no view token", ErrMalformed)
	}

	h2 := h.Clone()
	h2.Set("sid", view.Sid)
	h2.Set("Auth", view.Token)
	trade, err := c.loginStep(ctx, routes["login.validate"], h2, map[string]any{"mpin": c.mpin})
	if err != nil {
		return nil, fmt.Errorf("neo: mpin validate: %w", err)
	}
	if trade.Token == "" || trade.BaseURL == "" {
		return nil, fmt.Errorf("%w: validate returned no trade token or base url", ErrMalformed)
	}

	sid := trade.Sid
	if sid == "" {
		sid = view.Sid
	}
	return &model.Session{
		BearerToken: trade.Token,
		SessionID:   sid,
		BaseURL:     trade.BaseURL,
	}, nil
}

func (c *Client) loginStep(ctx context.Context, route string, h http.Header, payload map[string]any) (*loginData, error) {
	raw, err := c.do(ctx, http.MethodPost, c.loginURL+route, h, payload)
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
	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: login data: %v", ErrMalformed, err)
	}
	return &data, nil
}
