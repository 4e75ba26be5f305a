package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"mtf-tracker/internal/tracker"
)

// Publisher mirrors every cycle into Redis: the last good result under
// KeyLatest, every result on ChannelCycles, and each exit on StreamExits.
type Publisher struct {
	client    *goredis.Client
	latestTTL time.Duration
	log       *zap.Logger
}

// NewPublisher creates a Publisher. A zero ttl uses 30 minutes.
func NewPublisher(client *goredis.Client, ttl time.Duration, log *zap.Logger) *Publisher {
	if ttl <= 0 {
		ttl = defaultLatest
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, latestTTL: ttl, log: log.Named("redis")}
}

// Publish writes res in one pipeline.
func (p *Publisher) Publish(ctx context.Context, res *tracker.CycleResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("redis marshal cycle: %w", err)
	}

	pipe := p.client.Pipeline()
	if res.OK() {
		pipe.Set(ctx, KeyLatest, data, p.latestTTL)
	}
	pipe.Publish(ctx, ChannelCycles, data)

	for i := range res.Exits {
		exit, err := json.Marshal(&res.Exits[i])
		if err != nil {
			return fmt.Errorf("redis marshal exit: %w", err)
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamExits,
			MaxLen: exitsMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"key":  res.Exits[i].Key(),
				"data": string(exit),
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline (%d exits): %w", len(res.Exits), err)
	}
	p.log.Debug("cycle published", zap.String("cycle_id", res.CycleID), zap.Int("exits", len(res.Exits)))
	return nil
}

// Latest returns the last published successful cycle as raw JSON, or nil
// when none is stored.
func Latest(ctx context.Context, client *goredis.Client) (json.RawMessage, error) {
	data, err := client.Get(ctx, KeyLatest).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", KeyLatest, err)
	}
	return data, nil
}
