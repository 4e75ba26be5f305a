package gateway

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Relay forwards cycles published to Redis by another process into the
// hub. It is used when the API gateway does not run the poller itself.
type Relay struct {
	hub     *Hub
	rdb     *goredis.Client
	channel string
}

// NewRelay creates a relay from a Redis pub/sub channel to hub.
func NewRelay(hub *Hub, rdb *goredis.Client, channel string) *Relay {
	return &Relay{hub: hub, rdb: rdb, channel: channel}
}

// Seed broadcasts the stored latest cycle, if any, so the first clients
// see data before the next poll.
func (r *Relay) Seed(ctx context.Context, latestKey string) {
	data, err := r.rdb.Get(ctx, latestKey).Bytes()
	if err != nil {
		if err != goredis.Nil {
			r.hub.log.Warn("relay seed failed", zap.Error(err))
		}
		return
	}
	r.hub.Broadcast(TypeCycle, data)
}

// Run subscribes and forwards messages. Blocks until ctx is cancelled,
// resubscribing after connection loss.
func (r *Relay) Run(ctx context.Context) {
	for ctx.Err() == nil {
		r.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *Relay) runOnce(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		r.hub.log.Warn("relay subscribe failed", zap.String("channel", r.channel), zap.Error(err))
		return
	}
	r.hub.log.Info("relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.Broadcast(TypeCycle, []byte(msg.Payload))
		}
	}
}
