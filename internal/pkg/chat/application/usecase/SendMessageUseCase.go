package usecase

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"go-mensajeria/internal/apperr"
	pubsub "go-mensajeria/internal/infrastructure/pubsub/port"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	repository "go-mensajeria/internal/pkg/chat/persistence/repository/port"
	"go-mensajeria/internal/retry"
)

var tracer = otel.Tracer("go-mensajeria/chat")

// Notifier schedules out-of-band alerts for a message that was just stored.
type Notifier interface {
	NotifyStored(ctx context.Context, m chat.Message) error
}

// SendMessageInput carries the data needed to send a new message.
// Conversation id is derived from the pair, never taken from the caller.
type SendMessageInput struct {
	SenderID      string
	ReceiverID    string
	Body          string
	AttachmentRef *string
}

// SendMessageUseCase appends a message to its conversation, then fans it out to live
// subscribers and schedules the push alert. Only the append decides success.
type SendMessageUseCase struct {
	Repo     repository.ChatRepository
	Broker   pubsub.Broker
	Notifier Notifier
	Retry    retry.Policy
	Log      zerolog.Logger
}

func NewSendMessageUseCase(repo repository.ChatRepository, broker pubsub.Broker, notifier Notifier, policy retry.Policy, log zerolog.Logger) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo, Broker: broker, Notifier: notifier, Retry: policy, Log: log}
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	const op = "chat.SendMessage"

	msg, err := chat.NewMessage(in.SenderID, in.ReceiverID, in.Body, in.AttachmentRef)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, op, err)
	}
	if err := msg.Validate(msg.ConversationID); err != nil {
		return nil, apperr.New(apperr.KindValidation, op, err)
	}
	// fixed across attempts: a retry after an ambiguous commit finds the stored row
	msg.ID = uuid.NewString()

	ctx, span := tracer.Start(ctx, "chat.Append")
	span.SetAttributes(attribute.String("conversation_id", msg.ConversationID))
	stored, err := retry.Do(ctx, uc.Retry, func(ctx context.Context) (chat.Message, error) {
		m, err := uc.Repo.Append(ctx, msg.ConversationID, msg)
		if err != nil {
			uc.Log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("append failed")
			return chat.Message{}, persistenceErr(op, err)
		}
		return m, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int64("seq", stored.Seq))
	span.End()

	uc.publish(ctx, stored)
	uc.notify(ctx, stored)
	return &stored, nil
}

// publish is best effort: subscribers that miss the frame recover it through seq backfill.
func (uc *SendMessageUseCase) publish(ctx context.Context, m chat.Message) {
	if uc.Broker == nil {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		uc.Log.Error().Err(err).Str("message_id", m.ID).Msg("encode message")
		return
	}
	if err := uc.Broker.Publish(ctx, chat.Topic(m.ConversationID), payload); err != nil {
		uc.Log.Warn().Err(err).
			Str("conversation_id", m.ConversationID).
			Str("message_id", m.ID).
			Msg("publish failed")
	}
}

func (uc *SendMessageUseCase) notify(ctx context.Context, m chat.Message) {
	if uc.Notifier == nil {
		return
	}
	if err := uc.Notifier.NotifyStored(ctx, m); err != nil {
		uc.Log.Warn().Err(err).
			Str("conversation_id", m.ConversationID).
			Str("message_id", m.ID).
			Msg("push not scheduled")
	}
}
