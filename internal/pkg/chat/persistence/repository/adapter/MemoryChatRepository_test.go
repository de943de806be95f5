package adapter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "go-mensajeria/internal/pkg/chat/application/domain"
)

func draft(t *testing.T, from, to, body string) chat.Message {
	t.Helper()
	m, err := chat.NewMessage(from, to, body, nil)
	require.NoError(t, err)
	return m
}

func TestMemoryAppendAssignsOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	repo := NewMemoryChatRepository().WithClock(func() time.Time { return clock })
	ctx := context.Background()
	conv := chat.ConversationID("u1", "u2")

	first, err := repo.Append(ctx, conv, draft(t, "u1", "u2", "a"))
	require.NoError(t, err)
	// clock goes backwards: createdAt must not
	clock = now.Add(-time.Hour)
	second, err := repo.Append(ctx, conv, draft(t, "u2", "u1", "b"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.EqualValues(t, 1, first.Seq)
	assert.EqualValues(t, 2, second.Seq)
	assert.Equal(t, now, first.CreatedAt)
	assert.Equal(t, now, second.CreatedAt)

	hist, err := repo.History(ctx, conv, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "a", hist[0].Body)
	assert.Equal(t, "b", hist[1].Body)

	after, err := repo.History(ctx, conv, 1, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "b", after[0].Body)

	limited, err := repo.History(ctx, conv, 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a", limited[0].Body)
}

func TestMemoryConcurrentAppendsStayContiguous(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv := chat.ConversationID("u1", "u2")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(ctx, conv, draft(t, "u1", "u2", fmt.Sprintf("m%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist, err := repo.History(ctx, conv, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 50)
	for i, m := range hist {
		assert.EqualValues(t, i+1, m.Seq)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(hist[i-1].CreatedAt))
		}
	}
}

func TestMemoryHistoryUnknownConversation(t *testing.T) {
	hist, err := NewMemoryChatRepository().History(context.Background(), "nobody_none", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestMemoryAppendSameIDIsIdempotent(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv := chat.ConversationID("u1", "u2")

	m := draft(t, "u1", "u2", "once")
	m.ID = "4d7c9a8e-0000-4000-8000-000000000001"
	first, err := repo.Append(ctx, conv, m)
	require.NoError(t, err)
	again, err := repo.Append(ctx, conv, m)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	all, err := repo.History(ctx, conv, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
