package port

import (
	"context"
	"errors"
	"time"
)

// Task is a background job: a stable type name plus opaque payload bytes.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks the adapter to retry, unless it
// wraps ErrSkipRetry. Handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption controls enqueue behavior. Zero values mean "unspecified".
type EnqueueOption struct {
	Queue     string        // logical queue name
	TaskID    string        // caller-chosen id; a second enqueue with the same id is rejected with ErrDuplicate
	ProcessIn time.Duration // delay before processing
	MaxRetry  int
	Retention time.Duration // keep completed task metadata (dedupe window for TaskID)
	Deadline  time.Time
}

var (
	// ErrDuplicate is returned by Enqueue when TaskID was already enqueued.
	ErrDuplicate = errors.New("queue: duplicate task")
	// ErrSkipRetry marks a handler failure that must not be retried (e.g. malformed payload).
	ErrSkipRetry = errors.New("queue: skip retry")
)

type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers. Run blocks until ctx is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}
