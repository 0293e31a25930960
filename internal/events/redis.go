package events

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport carries events over redis pub/sub
type RedisTransport struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.rdb.Publish(ctx, channel, payload).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, channels []string, deliver Deliver) error {
	ps := t.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil { // Wait for the subscription to be confirmed
		_ = ps.Close()
		return err
	}

	t.mu.Lock()
	t.subs = append(t.subs, ps)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ps.Close()
	}()
	go func() {
		for msg := range ps.Channel() {
			deliver(msg.Channel, []byte(msg.Payload))
		}
	}()
	return nil
}

func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, ps := range t.subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.subs = nil
	return firstErr
}
