package adapter

import (
	"context"
	"sync"

	"go-mensajeria/internal/infrastructure/pubsub/port"
)

const defaultBuffer = 256

// LocalBroker is an in-process port.Broker.
type LocalBroker struct {
	mu     sync.Mutex
	topics map[string]map[*localSub]struct{}
	buffer int
	closed bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{topics: make(map[string]map[*localSub]struct{}), buffer: defaultBuffer}
}

// WithBuffer sets the per-subscriber buffer; tests use small values to force drops.
func (b *LocalBroker) WithBuffer(n int) *LocalBroker {
	if n > 0 {
		b.buffer = n
	}
	return b
}

var _ port.Broker = (*LocalBroker)(nil)

type localSub struct {
	broker *LocalBroker
	topic  string
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *localSub) C() <-chan []byte { return s.ch }

func (s *localSub) Close() {
	s.broker.mu.Lock()
	s.broker.removeLocked(s)
	s.broker.mu.Unlock()
}

func (b *LocalBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return port.ErrClosed
	}
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			// slow consumer: drop it, the client resubscribes and replays
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, topic string) (port.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &localSub{broker: b, topic: topic, ch: make(chan []byte, b.buffer), closed: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, port.ErrClosed
	}
	subs := b.topics[topic]
	if subs == nil {
		subs = make(map[*localSub]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closed:
		}
	}()
	return sub, nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, subs := range b.topics {
		for sub := range subs {
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *LocalBroker) removeLocked(sub *localSub) {
	subs := b.topics[sub.topic]
	if subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	sub.once.Do(func() {
		close(sub.ch)
		close(sub.closed)
	})
}
