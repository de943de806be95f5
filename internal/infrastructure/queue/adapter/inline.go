package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go-mensajeria/internal/infrastructure/queue/port"
)

// InlineQueue runs tasks in-process on their own goroutine. It backs single-node
// runs without Redis and tests. TaskID dedupe lasts for the life of the process.
type InlineQueue struct {
	log zerolog.Logger

	mu       sync.Mutex
	handlers map[string]port.Handler
	seen     map[string]struct{}
	ctx      context.Context
	closed   bool
	wg       sync.WaitGroup
}

// ErrQueueClosed is returned by Enqueue once Run has started draining.
var ErrQueueClosed = errors.New("inline queue: closed")

func NewInlineQueue(log zerolog.Logger) *InlineQueue {
	return &InlineQueue{
		log:      log,
		handlers: make(map[string]port.Handler),
		seen:     make(map[string]struct{}),
		ctx:      context.Background(),
	}
}

var (
	_ port.Client = (*InlineQueue)(nil)
	_ port.Server = (*InlineQueue)(nil)
)

func (q *InlineQueue) Register(taskType string, h port.Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

func (q *InlineQueue) Enqueue(_ context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("inline queue: task type is required")
	}
	var op port.EnqueueOption
	if len(opts) > 0 {
		op = opts[0]
	}
	id := op.TaskID
	if id == "" {
		id = uuid.NewString()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	if _, dup := q.seen[id]; dup {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", port.ErrDuplicate, id)
	}
	h, ok := q.handlers[t.Type]
	if !ok {
		q.mu.Unlock()
		return "", fmt.Errorf("inline queue: no handler for %q", t.Type)
	}
	q.seen[id] = struct{}{}
	ctx := q.ctx
	// Add under mu so it cannot race the Wait in Run
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		attempts := op.MaxRetry + 1
		for i := 1; i <= attempts; i++ {
			err := h(ctx, t)
			if err == nil {
				return
			}
			q.log.Error().Err(err).Str("task_type", t.Type).Str("task_id", id).Int("attempt", i).Msg("task failed")
			if errors.Is(err, port.ErrSkipRetry) {
				return
			}
		}
	}()
	return id, nil
}

// Run keeps the queue alive until ctx is canceled and waits for in-flight tasks.
func (q *InlineQueue) Run(ctx context.Context) error {
	q.mu.Lock()
	q.ctx = context.WithoutCancel(ctx)
	q.mu.Unlock()
	<-ctx.Done()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// Wait blocks until every enqueued task has finished.
func (q *InlineQueue) Wait() { q.wg.Wait() }

func (q *InlineQueue) Close() error { return nil }
