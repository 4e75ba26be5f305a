package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"mtf-tracker/internal/model"
)

// ExitConsumer reads StreamExits through a consumer group, so each exit is
// handed to exactly one consumer and acknowledged after handling.
type ExitConsumer struct {
	client   *goredis.Client
	group    string
	consumer string
	log      *zap.Logger
}

// NewExitConsumer creates a consumer. Empty group and consumer names
// default to "exitreport" and "worker-1".
func NewExitConsumer(client *goredis.Client, group, consumer string, log *zap.Logger) *ExitConsumer {
	if group == "" {
		group = defaultGroup
	}
	if consumer == "" {
		consumer = "worker-1"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExitConsumer{client: client, group: group, consumer: consumer, log: log.Named("redis-consumer")}
}

// EnsureGroup creates the consumer group if it does not exist. from is a
// stream id: "$" for new exits only, "0" for the whole stream.
func (c *ExitConsumer) EnsureGroup(ctx context.Context, from string) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamExits, c.group, from).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s: %w", StreamExits, err)
	}
	return nil
}

// Consume calls handle for every exit delivered to this consumer, first the
// ones left pending by a previous run, then new ones. A message is acked
// when handle returns nil or when it cannot be decoded. Blocks until ctx is
// done.
func (c *ExitConsumer) Consume(ctx context.Context, handle func(model.ExitRecord) error) error {
	// "0" replays this consumer's pending entries, ">" asks for new ones
	for _, start := range []string{"0", ">"} {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			results, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
				Group:    c.group,
				Consumer: c.consumer,
				Streams:  []string{StreamExits, start},
				Count:    100,
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if err == goredis.Nil {
					if start == "0" {
						break
					}
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn("xreadgroup failed", zap.Error(err))
				time.Sleep(500 * time.Millisecond)
				continue
			}

			acked := 0
			for _, stream := range results {
				for _, msg := range stream.Messages {
					if c.handle(ctx, msg, handle) {
						acked++
					}
				}
			}
			// pending entries that keep failing stay for the next run
			if start == "0" && acked == 0 {
				break
			}
		}
	}
	return nil
}

// handle reports whether msg was acknowledged.
func (c *ExitConsumer) handle(ctx context.Context, msg goredis.XMessage, handle func(model.ExitRecord) error) bool {
	rec, err := decodeExit(msg)
	if err != nil {
		// ack anyway so a bad entry does not block the group
		c.log.Warn("dropping undecodable exit", zap.String("id", msg.ID), zap.Error(err))
		c.client.XAck(ctx, StreamExits, c.group, msg.ID)
		return true
	}
	if err := handle(rec); err != nil {
		c.log.Warn("exit handler failed, left pending", zap.String("id", msg.ID), zap.Error(err))
		return false
	}
	c.client.XAck(ctx, StreamExits, c.group, msg.ID)
	return true
}

func decodeExit(msg goredis.XMessage) (model.ExitRecord, error) {
	var rec model.ExitRecord
	data, ok := msg.Values["data"].(string)
	if !ok {
		return rec, fmt.Errorf("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
