package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	chat "go-mensajeria/internal/pkg/chat/application/domain"
	repository "go-mensajeria/internal/pkg/chat/persistence/repository/port"
)

// MemoryChatRepository keeps conversation logs in process memory.
type MemoryChatRepository struct {
	mu    sync.Mutex
	logs  map[string][]chat.Message
	byID  map[string]chat.Message
	clock func() time.Time
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		logs:  make(map[string][]chat.Message),
		byID:  make(map[string]chat.Message),
		clock: time.Now,
	}
}

// WithClock swaps the time source used to stamp appends.
func (r *MemoryChatRepository) WithClock(clock func() time.Time) *MemoryChatRepository {
	r.clock = clock
	return r
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

func (r *MemoryChatRepository) Append(ctx context.Context, conversationID string, m chat.Message) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[m.ID]; ok && m.ID != "" {
		return prev, nil
	}
	log := r.logs[conversationID]
	var last time.Time
	if n := len(log); n > 0 {
		last = log[n-1].CreatedAt
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.ConversationID = conversationID
	m.Seq = int64(len(log)) + 1
	m.CreatedAt = chat.NextCreatedAt(last, r.clock())
	r.logs[conversationID] = append(log, m)
	r.byID[m.ID] = m
	return m, nil
}

func (r *MemoryChatRepository) History(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	log := r.logs[conversationID]
	out := make([]chat.Message, 0, len(log))
	for _, m := range log {
		if m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
