package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mensajeria/internal/apperr"
	pubsubAdapter "go-mensajeria/internal/infrastructure/pubsub/adapter"
	pubsub "go-mensajeria/internal/infrastructure/pubsub/port"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	repoAdapter "go-mensajeria/internal/pkg/chat/persistence/repository/adapter"
	"go-mensajeria/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Multiplier: 2, Max: 5 * time.Millisecond}

// flakyRepo fails the first n appends.
type flakyRepo struct {
	*repoAdapter.MemoryChatRepository
	mu    sync.Mutex
	fails int
	calls int
}

func (r *flakyRepo) Append(ctx context.Context, conversationID string, m chat.Message) (chat.Message, error) {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.fails
	r.mu.Unlock()
	if fail {
		return chat.Message{}, errors.New("connection reset")
	}
	return r.MemoryChatRepository.Append(ctx, conversationID, m)
}

// lostAckRepo stores the first append but reports it as failed, like a commit whose
// acknowledgement never reached the client.
type lostAckRepo struct {
	*repoAdapter.MemoryChatRepository
	mu    sync.Mutex
	calls int
}

func (r *lostAckRepo) Append(ctx context.Context, conversationID string, m chat.Message) (chat.Message, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	stored, err := r.MemoryChatRepository.Append(ctx, conversationID, m)
	if first {
		return chat.Message{}, errors.New("connection reset after commit")
	}
	return stored, err
}

// flakyBroker refuses every Subscribe after the first.
type flakyBroker struct {
	*pubsubAdapter.LocalBroker
	mu    sync.Mutex
	calls int
}

func (b *flakyBroker) Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n > 1 {
		return nil, errors.New("broker unreachable")
	}
	return b.LocalBroker.Subscribe(ctx, topic)
}

// deafBroker accepts subscriptions that never deliver anything.
type deafBroker struct{}

type deafSub struct{ ch chan []byte }

func (s deafSub) C() <-chan []byte { return s.ch }
func (s deafSub) Close()           {}

func (deafBroker) Publish(context.Context, string, []byte) error { return nil }
func (deafBroker) Close() error                                  { return nil }
func (deafBroker) Subscribe(context.Context, string) (pubsub.Subscription, error) {
	return deafSub{ch: make(chan []byte)}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []chat.Message
	err  error
}

func (n *recordingNotifier) NotifyStored(_ context.Context, m chat.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return n.err
}

func recv(t *testing.T, sub *Subscription) chat.Message {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return chat.Message{}
	}
}

func TestSendMessagePersistsPublishesAndNotifies(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	broker := pubsubAdapter.NewLocalBroker()
	notifier := &recordingNotifier{err: errors.New("queue down")}
	uc := NewSendMessageUseCase(repo, broker, notifier, fastRetry, zerolog.Nop())

	live, err := broker.Subscribe(ctx, chat.Topic("u1_u2"))
	require.NoError(t, err)
	defer live.Close()

	msg, err := uc.Execute(ctx, SendMessageInput{SenderID: "u2", ReceiverID: "u1", Body: " hola "})
	require.NoError(t, err, "notifier failure must not fail the send")
	assert.Equal(t, "u1_u2", msg.ConversationID)
	assert.EqualValues(t, 1, msg.Seq)
	assert.Equal(t, "hola", msg.Body)

	select {
	case payload := <-live.C():
		var got chat.Message
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, msg.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, msg.ID, notifier.msgs[0].ID)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	uc := NewSendMessageUseCase(repoAdapter.NewMemoryChatRepository(), nil, nil, fastRetry, zerolog.Nop())
	_, err := uc.Execute(context.Background(), SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: "  "})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestSendMessageRetriesTransientAppend(t *testing.T) {
	repo := &flakyRepo{MemoryChatRepository: repoAdapter.NewMemoryChatRepository(), fails: 2}
	uc := NewSendMessageUseCase(repo, nil, nil, fastRetry, zerolog.Nop())

	msg, err := uc.Execute(context.Background(), SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: "hi"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, msg.Seq)
	assert.Equal(t, 3, repo.calls)
}

func TestSendMessageSurfacesExhaustedRetries(t *testing.T) {
	repo := &flakyRepo{MemoryChatRepository: repoAdapter.NewMemoryChatRepository(), fails: 10}
	uc := NewSendMessageUseCase(repo, nil, nil, fastRetry, zerolog.Nop())

	_, err := uc.Execute(context.Background(), SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 3, repo.calls)
}

func TestSendMessageRetryAfterLostAckStoresOnce(t *testing.T) {
	ctx := context.Background()
	repo := &lostAckRepo{MemoryChatRepository: repoAdapter.NewMemoryChatRepository()}
	uc := NewSendMessageUseCase(repo, nil, nil, fastRetry, zerolog.Nop())

	msg, err := uc.Execute(ctx, SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: "once"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.EqualValues(t, 1, msg.Seq)

	stored, err := repo.History(ctx, "u1_u2", 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)
}

func TestGetMessagesOrdered(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	send := NewSendMessageUseCase(repo, nil, nil, fastRetry, zerolog.Nop())
	for _, body := range []string{"uno", "dos", "tres"} {
		_, err := send.Execute(ctx, SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: body})
		require.NoError(t, err)
	}

	get := NewGetMessageUseCase(repo)
	msgs, err := get.Execute(ctx, GetMessageInput{UserID: "u2", PeerID: "u1"})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"uno", "dos", "tres"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})

	page, err := get.Execute(ctx, GetMessageInput{UserID: "u1", PeerID: "u2", AfterSeq: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "dos", page[0].Body)

	_, err = get.Execute(ctx, GetMessageInput{UserID: "u1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSubscribeReplaysThenDeliversLive(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	broker := pubsubAdapter.NewLocalBroker()
	send := NewSendMessageUseCase(repo, broker, nil, fastRetry, zerolog.Nop())
	sub := NewSubscribeConversationUseCase(repo, broker, zerolog.Nop())

	for _, body := range []string{"a", "b"} {
		_, err := send.Execute(ctx, SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: body})
		require.NoError(t, err)
	}

	s, err := sub.Execute(ctx, SubscribeConversationInput{UserID: "u2", PeerID: "u1"})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "u1_u2", s.ConversationID)

	assert.Equal(t, "a", recv(t, s).Body)
	assert.Equal(t, "b", recv(t, s).Body)

	_, err = send.Execute(ctx, SendMessageInput{SenderID: "u2", ReceiverID: "u1", Body: "c"})
	require.NoError(t, err)
	live := recv(t, s)
	assert.Equal(t, "c", live.Body)
	assert.EqualValues(t, 3, live.Seq)
}

func TestSubscribeBackfillsGapAndDropsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	broker := pubsubAdapter.NewLocalBroker()
	sub := NewSubscribeConversationUseCase(repo, broker, zerolog.Nop())

	s, err := sub.Execute(ctx, SubscribeConversationInput{UserID: "u1", PeerID: "u2"})
	require.NoError(t, err)
	defer s.Close()

	// two appends that never reach the broker, then a third that does
	var stored []chat.Message
	for _, body := range []string{"x", "y", "z"} {
		m, err := chat.NewMessage("u1", "u2", body, nil)
		require.NoError(t, err)
		saved, err := repo.Append(ctx, m.ConversationID, m)
		require.NoError(t, err)
		stored = append(stored, saved)
	}
	for _, m := range []chat.Message{stored[2], stored[0], stored[2]} {
		payload, err := json.Marshal(m)
		require.NoError(t, err)
		require.NoError(t, broker.Publish(ctx, chat.Topic("u1_u2"), payload))
	}

	for i := 0; i < 3; i++ {
		m := recv(t, s)
		assert.EqualValues(t, i+1, m.Seq)
	}
	select {
	case m := <-s.C():
		t.Fatalf("unexpected duplicate %d", m.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeCloseStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := repoAdapter.NewMemoryChatRepository()
	sub := NewSubscribeConversationUseCase(repo, pubsubAdapter.NewLocalBroker(), zerolog.Nop())

	s, err := sub.Execute(ctx, SubscribeConversationInput{UserID: "u1", PeerID: "u2"})
	require.NoError(t, err)
	cancel()
	s.Close()
	s.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}

func TestSubscribeRejectsBlankPeer(t *testing.T) {
	sub := NewSubscribeConversationUseCase(repoAdapter.NewMemoryChatRepository(), pubsubAdapter.NewLocalBroker(), zerolog.Nop())
	_, err := sub.Execute(context.Background(), SubscribeConversationInput{UserID: "u1", PeerID: " "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSubscribeSurvivesSlowConsumerDrops(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	broker := pubsubAdapter.NewLocalBroker().WithBuffer(1)
	send := NewSendMessageUseCase(repo, broker, nil, fastRetry, zerolog.Nop())
	sub := NewSubscribeConversationUseCase(repo, broker, zerolog.Nop())
	sub.Buffer = 1

	s, err := sub.Execute(ctx, SubscribeConversationInput{UserID: "u1", PeerID: "u2"})
	require.NoError(t, err)
	defer s.Close()

	const n = 30
	for i := 0; i < n; i++ {
		_, err := send.Execute(ctx, SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: "m"})
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		assert.EqualValues(t, i+1, recv(t, s).Seq)
	}
	assert.NoError(t, s.Err())
}

func TestSubscribeEndsWithErrorWhenResubscribeFails(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	broker := &flakyBroker{LocalBroker: pubsubAdapter.NewLocalBroker().WithBuffer(1)}
	send := NewSendMessageUseCase(repo, broker, nil, fastRetry, zerolog.Nop())
	sub := NewSubscribeConversationUseCase(repo, broker, zerolog.Nop())
	sub.Buffer = 1

	s, err := sub.Execute(ctx, SubscribeConversationInput{UserID: "u1", PeerID: "u2"})
	require.NoError(t, err)
	defer s.Close()

	// nobody reads, so the broker drops the stream's feed
	for i := 0; i < 10; i++ {
		_, err := send.Execute(ctx, SendMessageInput{SenderID: "u1", ReceiverID: "u2", Body: "m"})
		require.NoError(t, err)
	}

	var last int64
	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case m, ok := <-s.C():
			if !ok {
				open = false
				break
			}
			assert.Equal(t, last+1, m.Seq)
			last = m.Seq
		case <-deadline:
			t.Fatal("subscription never ended")
		}
	}
	assert.Error(t, s.Err())
	assert.GreaterOrEqual(t, broker.calls, 2)
}

func TestSubscribeResyncPicksUpMissedFrames(t *testing.T) {
	ctx := context.Background()
	repo := repoAdapter.NewMemoryChatRepository()
	sub := NewSubscribeConversationUseCase(repo, deafBroker{}, zerolog.Nop())
	sub.Resync = 20 * time.Millisecond

	s, err := sub.Execute(ctx, SubscribeConversationInput{UserID: "u1", PeerID: "u2"})
	require.NoError(t, err)
	defer s.Close()

	m, err := chat.NewMessage("u2", "u1", "while offline", nil)
	require.NoError(t, err)
	_, err = repo.Append(ctx, m.ConversationID, m)
	require.NoError(t, err)

	got := recv(t, s)
	assert.Equal(t, "while offline", got.Body)
	assert.EqualValues(t, 1, got.Seq)
}
