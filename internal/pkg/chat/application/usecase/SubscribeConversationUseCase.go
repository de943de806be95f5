package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go-mensajeria/internal/apperr"
	pubsub "go-mensajeria/internal/infrastructure/pubsub/port"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	repository "go-mensajeria/internal/pkg/chat/persistence/repository/port"
)

const (
	defaultSubscriptionBuffer = 64
	defaultResync             = 30 * time.Second
)

type SubscribeConversationInput struct {
	UserID   string
	PeerID   string
	AfterSeq int64
}

// SubscribeConversationUseCase streams a conversation: ordered replay of the stored log
// followed by live appends, with no gaps and no duplicates.
type SubscribeConversationUseCase struct {
	Repo   repository.ChatRepository
	Broker pubsub.Broker
	Log    zerolog.Logger
	Buffer int
	// Resync is how often the stored log is re-read while the live feed is quiet.
	// Frames published while the broker connection was down are only seen this way.
	Resync time.Duration
}

func NewSubscribeConversationUseCase(repo repository.ChatRepository, broker pubsub.Broker, log zerolog.Logger) *SubscribeConversationUseCase {
	return &SubscribeConversationUseCase{
		Repo:   repo,
		Broker: broker,
		Log:    log,
		Buffer: defaultSubscriptionBuffer,
		Resync: defaultResync,
	}
}

// Subscription delivers messages in (created_at, seq) order until Close or context end.
type Subscription struct {
	ConversationID string

	ch     chan chat.Message
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) C() <-chan chat.Message { return s.ch }

// Close stops delivery and waits for the stream to wind down. Safe to call twice.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Err reports why the stream ended; nil after Close or context cancellation.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (uc *SubscribeConversationUseCase) Execute(ctx context.Context, in SubscribeConversationInput) (*Subscription, error) {
	const op = "chat.Subscribe"

	userID, peerID := strings.TrimSpace(in.UserID), strings.TrimSpace(in.PeerID)
	if userID == "" || peerID == "" {
		return nil, apperr.New(apperr.KindValidation, op, chat.ErrMissingParticipant)
	}
	if in.AfterSeq < 0 {
		return nil, apperr.Validation(op, "after_seq must be >= 0")
	}
	convID := chat.ConversationID(userID, peerID)

	ctx, cancel := context.WithCancel(ctx)
	// live first, so nothing appended while the history is read can slip between the two
	live, err := uc.Broker.Subscribe(ctx, chat.Topic(convID))
	if err != nil {
		cancel()
		return nil, apperr.Transient(op, err)
	}

	buf := uc.Buffer
	if buf <= 0 {
		buf = defaultSubscriptionBuffer
	}
	s := &Subscription{
		ConversationID: convID,
		ch:             make(chan chat.Message, buf),
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	st := &stream{uc: uc, sub: s, convID: convID, last: in.AfterSeq}
	go st.run(ctx, live)
	return s, nil
}

type stream struct {
	uc     *SubscribeConversationUseCase
	sub    *Subscription
	convID string
	last   int64
}

func (st *stream) run(ctx context.Context, live pubsub.Subscription) {
	defer close(st.sub.done)
	defer close(st.sub.ch)
	log := st.uc.Log.With().Str("conversation_id", st.convID).Logger()

	for {
		if err := st.backfill(ctx); err != nil {
			live.Close()
			st.end(ctx, log, err)
			return
		}
		if !st.pump(ctx, live, log) {
			live.Close()
			return
		}
		live.Close()
		if ctx.Err() != nil {
			return
		}
		// dropped by the broker for falling behind: resubscribe and catch up from last
		log.Debug().Int64("seq", st.last).Msg("live feed dropped, resubscribing")
		var err error
		live, err = st.uc.Broker.Subscribe(ctx, chat.Topic(st.convID))
		if err != nil {
			st.end(ctx, log, err)
			return
		}
	}
}

// pump relays live frames until the feed closes (true) or the stream must stop (false).
func (st *stream) pump(ctx context.Context, live pubsub.Subscription, log zerolog.Logger) bool {
	every := st.uc.Resync
	if every <= 0 {
		every = defaultResync
	}
	resync := time.NewTicker(every)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-resync.C:
			if err := st.backfill(ctx); err != nil {
				st.end(ctx, log, err)
				return false
			}
		case payload, ok := <-live.C():
			if !ok {
				return true
			}
			var m chat.Message
			if err := json.Unmarshal(payload, &m); err != nil {
				log.Warn().Err(err).Msg("discarding undecodable frame")
				continue
			}
			if m.ConversationID != st.convID || m.Seq <= st.last {
				continue
			}
			if m.Seq > st.last+1 {
				if err := st.backfill(ctx); err != nil {
					st.end(ctx, log, err)
					return false
				}
				if m.Seq <= st.last {
					continue
				}
			}
			if !st.deliver(ctx, m) {
				return false
			}
			resync.Reset(every)
		}
	}
}

func (st *stream) backfill(ctx context.Context) error {
	msgs, err := st.uc.Repo.History(ctx, st.convID, st.last, 0)
	if err != nil {
		return persistenceErr("chat.Subscribe", err)
	}
	for _, m := range msgs {
		if m.Seq <= st.last {
			continue
		}
		if !st.deliver(ctx, m) {
			return ctx.Err()
		}
	}
	return nil
}

func (st *stream) deliver(ctx context.Context, m chat.Message) bool {
	select {
	case st.sub.ch <- m:
		st.last = m.Seq
		return true
	case <-ctx.Done():
		return false
	}
}

func (st *stream) end(ctx context.Context, log zerolog.Logger, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	log.Warn().Err(err).Int64("seq", st.last).Msg("subscription ended")
	st.sub.fail(err)
}
