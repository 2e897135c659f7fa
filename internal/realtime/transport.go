package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// broadcastChannel is the single pub/sub channel all processes share.
// One channel, one subscriber goroutine per process: redis delivers
// channel messages in publish order, which is what gives every room its
// per-subscriber ordering guarantee.
const broadcastChannel = "realtime:events"

// Transport is the cross-process broadcast fabric. Publish is
// fire-and-forget; Subscribe yields every payload published by any
// process, including this one.
type Transport interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// RedisTransport carries envelopes over redis pub/sub.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, payload []byte) error {
	if err := t.client.Publish(ctx, broadcastChannel, payload).Err(); err != nil {
		return fmt.Errorf("broadcast publish failed: %w", err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := t.client.Subscribe(ctx, broadcastChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("broadcast subscribe failed: %w", err)
	}

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- []byte(msg.Payload)
			}
		}
	}()
	return out, nil
}

// InProcTransport loops payloads back within the process. Used for
// single-node deployments without redis, and in tests.
type InProcTransport struct {
	ch chan []byte
}

func NewInProcTransport() *InProcTransport {
	return &InProcTransport{ch: make(chan []byte, 256)}
}

func (t *InProcTransport) Publish(ctx context.Context, payload []byte) error {
	// Never park the publisher on a full buffer; a stalled delivery
	// loop surfaces as a publish error, same as a down broker.
	select {
	case t.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *InProcTransport) Subscribe(_ context.Context) (<-chan []byte, error) {
	return t.ch, nil
}
