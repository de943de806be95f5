package adapter

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/push/port"
)

// multicaster is the part of *messaging.Client the sender needs.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender delivers batches through Firebase Cloud Messaging.
type FCMSender struct {
	client multicaster
}

// NewFCMSender builds a messaging client from a service account file. An empty
// credentialsFile falls back to application default credentials.
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func newFCMSender(client multicaster) *FCMSender {
	return &FCMSender{client: client}
}

var _ port.Sender = (*FCMSender)(nil)

func (s *FCMSender) SendMulticast(ctx context.Context, msg port.MulticastMessage) (port.BatchResponse, error) {
	const op = "push.SendMulticast"

	if len(msg.Tokens) == 0 {
		return port.BatchResponse{}, nil
	}
	if len(msg.Tokens) > port.MaxTokensPerBatch {
		return port.BatchResponse{}, apperr.Validation(op, fmt.Sprintf("at most %d tokens per batch", port.MaxTokensPerBatch))
	}

	resp, err := s.client.SendEachForMulticast(ctx, toFCM(msg))
	if err != nil {
		return port.BatchResponse{}, classifyFCM(op, err)
	}

	out := port.BatchResponse{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
		Responses:    make([]port.SendResult, 0, len(resp.Responses)),
	}
	for i, r := range resp.Responses {
		res := port.SendResult{Success: r.Success, MessageID: r.MessageID}
		if i < len(msg.Tokens) {
			res.Token = msg.Tokens[i]
		}
		if !r.Success && r.Error != nil {
			res.Code = tokenErrorCode(r.Error)
			res.Error = r.Error.Error()
		}
		out.Responses = append(out.Responses, res)
	}
	return out, nil
}

func toFCM(msg port.MulticastMessage) *messaging.MulticastMessage {
	m := &messaging.MulticastMessage{
		Tokens: msg.Tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Notification.Title,
			Body:  msg.Notification.Body,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	if msg.CollapseKey != "" {
		// one visible alert per conversation on both platforms
		m.Android.CollapseKey = msg.CollapseKey
		m.Android.Notification = &messaging.AndroidNotification{Tag: msg.CollapseKey}
		m.APNS = &messaging.APNSConfig{Headers: map[string]string{"apns-collapse-id": msg.CollapseKey}}
	}
	return m
}

func tokenErrorCode(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return "UNREGISTERED"
	case messaging.IsInvalidArgument(err):
		return "INVALID_ARGUMENT"
	case messaging.IsSenderIDMismatch(err):
		return "SENDER_ID_MISMATCH"
	case messaging.IsQuotaExceeded(err):
		return "QUOTA_EXCEEDED"
	case messaging.IsThirdPartyAuthError(err):
		return "THIRD_PARTY_AUTH_ERROR"
	case messaging.IsUnavailable(err):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

func classifyFCM(op string, err error) error {
	switch {
	case errorutils.IsUnauthenticated(err), errorutils.IsPermissionDenied(err),
		messaging.IsSenderIDMismatch(err), messaging.IsThirdPartyAuthError(err):
		return apperr.Permission(op, fmt.Errorf("%w: %v", port.ErrPermission, err))
	case errorutils.IsInvalidArgument(err):
		return apperr.New(apperr.KindInternal, op, err)
	default:
		return apperr.Transient(op, err)
	}
}
