package model

import "time"

// Session is an authenticated broker session.
type Session struct {
	BearerToken string    `json:"auth_token"`
	SessionID   string    `json:"auth_sid"`
	BaseURL     string    `json:"base_url"`
	ValidUntil  time.Time `json:"valid_until"`
}

// Valid reports whether the session can be used at now.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.BearerToken == "" || s.BaseURL == "" {
		return false
	}
	return now.Before(s.ValidUntil)
}
