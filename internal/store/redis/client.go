// Package redis publishes cycle results and keeps the broker session in
// Redis so the poller, the API process and report tools can share them.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Keys and channels used across processes.
const (
	KeyLatest     = "latest:positions"
	ChannelCycles = "pub:positions"
	StreamExits   = "stream:exits"
	KeySession    = "session:neo"

	defaultLatest = 30 * time.Minute
	exitsMaxLen   = 10000
	defaultGroup  = "exitreport"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
