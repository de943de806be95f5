package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mensajeria/internal/apperr"
	cacheAdapter "go-mensajeria/internal/infrastructure/cache/adapter"
)

func TestSetAndClear(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(cacheAdapter.NewMemoryCache(), time.Minute)

	_, ok, err := tr.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.SetActive(ctx, "u1", "u1_u2"))
	conv, ok, err := tr.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1_u2", conv)

	require.NoError(t, tr.SetActive(ctx, "u1", ""))
	_, ok, err = tr.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, apperr.Is(tr.SetActive(ctx, " ", "x"), apperr.KindValidation))
}

func TestPresenceExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := cacheAdapter.NewMemoryCache().WithClock(func() time.Time { return now })
	tr := NewTracker(cache, time.Minute)

	require.NoError(t, tr.SetActive(ctx, "u1", "u1_u2"))
	now = now.Add(2 * time.Minute)
	_, ok, err := tr.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}
