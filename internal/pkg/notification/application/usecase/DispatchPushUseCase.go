package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"go-mensajeria/internal/apperr"
	pushport "go-mensajeria/internal/infrastructure/push/port"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
)

var tracer = otel.Tracer("go-mensajeria/notification")

// Reasons a dispatch did nothing.
const (
	SkipSelf            = "self"
	SkipNoReceiver      = "no_receiver"
	SkipUnknownReceiver = "unknown_receiver"
	SkipViewing         = "receiver_viewing"
	SkipNoTokens        = "no_tokens"
	SkipLookupFailed    = "lookup_failed"
)

// PresenceReader reports the conversation a user has open.
type PresenceReader interface {
	GetActive(ctx context.Context, userID string) (string, bool, error)
}

// Result summarizes one dispatch for logs and tests.
type Result struct {
	Skipped string
	Tokens  int
	Sent    int
	Failed  int
	Pruned  int64
	Err     error
}

// DispatchPushUseCase alerts the receiver of a stored message on every registered device
// and prunes the tokens the transport rejects. It never fails the message path.
type DispatchPushUseCase struct {
	Profiles repository.ProfileRepository
	Presence PresenceReader
	Sender   pushport.Sender
	Log      zerolog.Logger
}

func NewDispatchPushUseCase(profiles repository.ProfileRepository, presence PresenceReader, sender pushport.Sender, log zerolog.Logger) *DispatchPushUseCase {
	return &DispatchPushUseCase{Profiles: profiles, Presence: presence, Sender: sender, Log: log}
}

func (uc *DispatchPushUseCase) Execute(ctx context.Context, m chat.Message) Result {
	ctx, span := tracer.Start(ctx, "push.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("message_id", m.ID), attribute.String("conversation_id", m.ConversationID))

	log := uc.Log.With().
		Str("message_id", m.ID).
		Str("conversation_id", m.ConversationID).
		Str("user_id", m.ReceiverID).
		Logger()

	res := uc.dispatch(ctx, m, log)
	span.SetAttributes(
		attribute.String("skipped", res.Skipped),
		attribute.Int("sent", res.Sent),
		attribute.Int("failed", res.Failed),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	return res
}

func (uc *DispatchPushUseCase) dispatch(ctx context.Context, m chat.Message, log zerolog.Logger) Result {
	receiverID := strings.TrimSpace(m.ReceiverID)
	if receiverID == "" {
		return Result{Skipped: SkipNoReceiver}
	}
	if receiverID == strings.TrimSpace(m.SenderID) {
		return Result{Skipped: SkipSelf}
	}

	if uc.Presence != nil {
		active, ok, err := uc.Presence.GetActive(ctx, receiverID)
		if err != nil {
			// fall through: a duplicate alert beats a missing one
			log.Warn().Err(err).Msg("presence lookup failed")
		} else if ok && active == m.ConversationID {
			return Result{Skipped: SkipViewing}
		}
	}

	receiver, err := uc.Profiles.Get(ctx, receiverID)
	if errors.Is(err, profile.ErrNotFound) {
		return Result{Skipped: SkipUnknownReceiver}
	}
	if err != nil {
		log.Error().Err(err).Msg("receiver lookup failed")
		return Result{Skipped: SkipLookupFailed, Err: err}
	}
	tokens := repository.UniqueTokens(receiver.PushTokens)
	if len(tokens) == 0 {
		return Result{Skipped: SkipNoTokens}
	}

	alert := BuildAlert(m, uc.senderName(ctx, m.SenderID, log))
	res := Result{Tokens: len(tokens)}
	var failed []string
	for start := 0; start < len(tokens); start += pushport.MaxTokensPerBatch {
		end := min(start+pushport.MaxTokensPerBatch, len(tokens))
		batch := tokens[start:end]
		resp, err := uc.Sender.SendMulticast(ctx, pushport.MulticastMessage{
			Tokens:       batch,
			Notification: pushport.Notification{Title: alert.Title, Body: alert.Body},
			Data: map[string]string{
				"senderId":       m.SenderID,
				"senderName":     alert.TapTarget.PeerName,
				"message":        alert.Body,
				"conversationId": alert.TapTarget.ConversationID,
				"messageId":      m.ID,
			},
			CollapseKey: m.ID,
		})
		if err != nil {
			// whole batch lost; tokens are not at fault so nothing is pruned
			res.Err = err
			ev := log.Error()
			if apperr.Is(err, apperr.KindPermission) {
				ev = log.Warn()
			}
			ev.Err(err).Int("tokens", len(batch)).Msg("push batch failed")
			continue
		}
		ok, bad := resp.Partition()
		res.Sent += len(ok)
		res.Failed += len(bad)
		failed = append(failed, bad...)
	}

	if len(failed) > 0 {
		n, err := uc.Profiles.RemoveTokens(ctx, receiverID, failed...)
		if err != nil {
			log.Warn().Err(err).Strs("tokens", failed).Msg("token prune failed")
		}
		res.Pruned = n
	}
	log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Int64("pruned", res.Pruned).Msg("push dispatched")
	return res
}

func (uc *DispatchPushUseCase) senderName(ctx context.Context, senderID string, log zerolog.Logger) string {
	sender, err := uc.Profiles.Get(ctx, senderID)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			log.Warn().Err(err).Str("sender_id", senderID).Msg("sender lookup failed")
		}
		return profile.FallbackName
	}
	return sender.Name()
}
