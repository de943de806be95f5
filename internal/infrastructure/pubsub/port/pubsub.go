package port

import (
	"context"
	"errors"
)

// Broker fans out opaque payloads to every live subscriber of a topic.
// Delivery is best-effort and per-topic ordered for a single publisher; a subscriber
// that falls behind is dropped and its channel closed.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns once the subscription is active: anything published after
	// it returns is delivered. The subscription ends when ctx is done or Close is called.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

type Subscription interface {
	C() <-chan []byte
	Close()
}

var ErrClosed = errors.New("pubsub: broker closed")
