package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/van-notify/internal/models"
)

// RedisTransport is the cross-process broadcast channel: each process
// publishes stored notifications to a shared Pub/Sub channel and listens for
// the ones published by its siblings. Delivery is best-effort; a process
// that was down simply misses the message and catches up via the poller.
type RedisTransport struct {
	client  *redis.Client
	channel string
}

func NewRedisTransport(addr, password, channel string) *RedisTransport {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTransport{client: c, channel: channel}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Republish(ctx context.Context, n models.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.channel, b).Err()
}

// Listen re-injects sibling-process notifications through deliver until ctx
// is done. Malformed payloads are logged and skipped.
func (t *RedisTransport) Listen(ctx context.Context, deliver func(models.Notification) bool, lg *slog.Logger) {
	sub := t.client.Subscribe(ctx, t.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var n models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				lg.Warn("broadcast payload invalid", "error", err)
				continue
			}
			deliver(n)
		}
	}
}

func (t *RedisTransport) Close() error { return t.client.Close() }
