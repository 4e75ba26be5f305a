package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"mtf-tracker/internal/model"
)

// SessionStore keeps the broker session under KeySession with a TTL equal
// to its remaining validity.
type SessionStore struct {
	client *goredis.Client
	now    func() time.Time
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(client *goredis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

func (s *SessionStore) Load(ctx context.Context) (*model.Session, error) {
	data, err := s.client.Get(ctx, KeySession).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", KeySession, err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("redis decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	if sess == nil {
		return s.Clear(ctx)
	}
	ttl := sessionTTL(sess, s.now())
	if ttl <= 0 {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis encode session: %w", err)
	}
	if err := s.client.Set(ctx, KeySession, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", KeySession, err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, KeySession).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", KeySession, err)
	}
	return nil
}

// sessionTTL is the time left on sess. A session without an expiry is kept
// for a day.
func sessionTTL(sess *model.Session, now time.Time) time.Duration {
	if sess.ValidUntil.IsZero() {
		return 24 * time.Hour
	}
	return sess.ValidUntil.Sub(now)
}
