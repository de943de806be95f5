package adapter

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/push/port"
)

type stubMulticaster struct {
	got   *messaging.MulticastMessage
	calls int
	resp  *messaging.BatchResponse
	err   error
}

func (s *stubMulticaster) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	s.calls++
	s.got = m
	return s.resp, s.err
}

func TestFCMSenderMapsMessageAndResults(t *testing.T) {
	stub := &stubMulticaster{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "projects/p/messages/1"},
			{Success: false, Error: errors.New("requested entity was not found")},
		},
	}}
	s := newFCMSender(stub)

	resp, err := s.SendMulticast(context.Background(), port.MulticastMessage{
		Tokens:       []string{"t1", "t2"},
		Notification: port.Notification{Title: "Ana", Body: "hola"},
		Data:         map[string]string{"senderId": "u1"},
		CollapseKey:  "u1_u2",
	})
	require.NoError(t, err)

	require.NotNil(t, stub.got)
	assert.Equal(t, []string{"t1", "t2"}, stub.got.Tokens)
	assert.Equal(t, "Ana", stub.got.Notification.Title)
	assert.Equal(t, "hola", stub.got.Notification.Body)
	assert.Equal(t, "u1", stub.got.Data["senderId"])
	assert.Equal(t, "u1_u2", stub.got.Android.CollapseKey)
	assert.Equal(t, "u1_u2", stub.got.Android.Notification.Tag)
	assert.Equal(t, "u1_u2", stub.got.APNS.Headers["apns-collapse-id"])

	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailureCount)
	require.Len(t, resp.Responses, 2)
	assert.Equal(t, "projects/p/messages/1", resp.Responses[0].MessageID)
	assert.Equal(t, "INTERNAL", resp.Responses[1].Code)
	assert.NotEmpty(t, resp.Responses[1].Error)

	ok, failed := resp.Partition()
	assert.Equal(t, []string{"t1"}, ok)
	assert.Equal(t, []string{"t2"}, failed)
}

func TestFCMSenderWithoutCollapseKey(t *testing.T) {
	stub := &stubMulticaster{resp: &messaging.BatchResponse{}}
	_, err := newFCMSender(stub).SendMulticast(context.Background(), port.MulticastMessage{Tokens: []string{"t1"}})
	require.NoError(t, err)
	assert.Nil(t, stub.got.APNS)
	assert.Empty(t, stub.got.Android.CollapseKey)
}

func TestFCMSenderBatchFailureIsTransient(t *testing.T) {
	stub := &stubMulticaster{err: errors.New("connection refused")}
	_, err := newFCMSender(stub).SendMulticast(context.Background(), port.MulticastMessage{Tokens: []string{"t1"}})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestFCMSenderBatchLimits(t *testing.T) {
	stub := &stubMulticaster{resp: &messaging.BatchResponse{}}
	s := newFCMSender(stub)

	resp, err := s.SendMulticast(context.Background(), port.MulticastMessage{})
	require.NoError(t, err)
	assert.Empty(t, resp.Responses)
	assert.Zero(t, stub.calls)

	_, err = s.SendMulticast(context.Background(), port.MulticastMessage{Tokens: make([]string, port.MaxTokensPerBatch+1)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, stub.calls)
}
