package adapter

import (
	"context"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"go-mensajeria/internal/infrastructure/pubsub/port"
)

// RedisBroker fans out through Redis PUBLISH/SUBSCRIBE so appends made on one API node
// reach subscribers connected to any other node.
type RedisBroker struct {
	client *redis.Client
	buffer int
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, buffer: defaultBuffer}
}

var _ port.Broker = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (port.Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	// Wait for the subscribe confirmation so nothing published afterwards is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis pubsub: subscribe %s: %w", topic, err)
	}

	sub := &redisSub{ps: ps, ch: make(chan []byte, b.buffer), stop: make(chan struct{})}
	go sub.pump(ctx)
	return sub, nil
}

// Close is a no-op: the redis client is owned by the caller.
func (b *RedisBroker) Close() error { return nil }

type redisSub struct {
	ps   *redis.PubSub
	ch   chan []byte
	stop chan struct{}
	once sync.Once
}

func (s *redisSub) C() <-chan []byte { return s.ch }

func (s *redisSub) Close() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.ps.Close()
	})
}

func (s *redisSub) pump(ctx context.Context) {
	defer close(s.ch)
	defer s.Close()
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- []byte(msg.Payload):
			default:
				// slow consumer: drop it, the client resubscribes and replays
				return
			}
		}
	}
}
