package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	qport "go-mensajeria/internal/infrastructure/queue/port"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	"go-mensajeria/internal/pkg/notification/application/usecase"
)

// DispatchPushTaskType is the queue task name for alerting the receiver of a stored message.
const DispatchPushTaskType = "push:dispatch"

const (
	pushQueue     = "push"
	pushRetention = 24 * time.Hour
	pushTimeout   = 15 * time.Second
)

// DispatchPushTaskPayload is the JSON payload transported via the queue.
type DispatchPushTaskPayload struct {
	Message chat.Message `json:"message"`
}

// NewDispatchPushTask builds the task for m. The task id is derived from the message id,
// so a second enqueue for the same message is rejected by the queue.
func NewDispatchPushTask(m chat.Message) (qport.Task, qport.EnqueueOption, error) {
	if m.ID == "" {
		return qport.Task{}, qport.EnqueueOption{}, errors.New("dispatch push: message has no id")
	}
	b, err := json.Marshal(DispatchPushTaskPayload{Message: m})
	if err != nil {
		return qport.Task{}, qport.EnqueueOption{}, err
	}
	opts := qport.EnqueueOption{
		Queue:     pushQueue,
		TaskID:    "push:" + m.ID,
		MaxRetry:  3,
		Retention: pushRetention,
	}
	return qport.Task{Type: DispatchPushTaskType, Payload: b}, opts, nil
}

// Enqueuer schedules a push dispatch for every stored message.
type Enqueuer struct {
	Client qport.Client
}

func NewEnqueuer(client qport.Client) *Enqueuer {
	return &Enqueuer{Client: client}
}

func (e *Enqueuer) NotifyStored(ctx context.Context, m chat.Message) error {
	t, opts, err := NewDispatchPushTask(m)
	if err != nil {
		return err
	}
	if _, err := e.Client.Enqueue(ctx, t, opts); err != nil && !errors.Is(err, qport.ErrDuplicate) {
		return err
	}
	return nil
}

// RegisterDispatchPushTask binds the task handler to the provided server.
func RegisterDispatchPushTask(srv qport.Server, uc *usecase.DispatchPushUseCase, log zerolog.Logger) {
	srv.Register(DispatchPushTaskType, func(ctx context.Context, t qport.Task) error {
		var p DispatchPushTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: do not retry indefinitely
			return fmt.Errorf("%w: %v", qport.ErrSkipRetry, err)
		}

		ctx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()

		res := uc.Execute(ctx, p.Message)
		if res.Skipped != "" {
			log.Debug().Str("message_id", p.Message.ID).Str("reason", res.Skipped).Msg("push skipped")
		}
		return nil
	})
}
