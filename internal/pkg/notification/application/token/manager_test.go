package token

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mensajeria/internal/apperr"
	cacheAdapter "go-mensajeria/internal/infrastructure/cache/adapter"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repoAdapter "go-mensajeria/internal/repository/adapter"
)

func newManager(t *testing.T) (*Manager, *repoAdapter.MemoryProfileRepository) {
	t.Helper()
	profiles := repoAdapter.NewMemoryProfileRepository()
	for _, id := range []string{"u1", "u2"} {
		_, err := profiles.Ensure(context.Background(), profile.Identity{ID: id})
		require.NoError(t, err)
	}
	return NewManager(cacheAdapter.NewMemoryCache(), profiles, zerolog.Nop()), profiles
}

func TestRegisterTokenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, profiles := newManager(t)

	require.NoError(t, m.RegisterToken(ctx, "u1", "tok-a"))
	require.NoError(t, m.RegisterToken(ctx, "u1", "tok-a"))
	toks, err := profiles.Tokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, toks)

	assert.True(t, apperr.Is(m.RegisterToken(ctx, "", "tok"), apperr.KindValidation))
	assert.True(t, apperr.Is(m.RegisterToken(ctx, "u1", " "), apperr.KindValidation))
	assert.True(t, apperr.Is(m.RegisterToken(ctx, "ghost", "tok"), apperr.KindNotFound))
}

func TestTokenIssuedBeforeLoginIsSynced(t *testing.T) {
	ctx := context.Background()
	m, profiles := newManager(t)

	require.NoError(t, m.StoreIssued(ctx, "inst-1", "", "tok-early"))
	cur, ok, err := m.CurrentIssued(ctx, "inst-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-early", cur)

	registered, err := m.SyncWithProfile(ctx, "inst-1", "u1")
	require.NoError(t, err)
	assert.True(t, registered)
	toks, err := profiles.Tokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-early"}, toks)
}

func TestSyncWithoutIssuedToken(t *testing.T) {
	m, _ := newManager(t)
	registered, err := m.SyncWithProfile(context.Background(), "inst-2", "u1")
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestRotateKeepsOldToken(t *testing.T) {
	ctx := context.Background()
	m, profiles := newManager(t)

	require.NoError(t, m.StoreIssued(ctx, "inst-1", "", "tok-old"))
	_, err := m.SyncWithProfile(ctx, "inst-1", "u1")
	require.NoError(t, err)

	require.NoError(t, m.RotateToken(ctx, "inst-1", "u1", "tok-old", "tok-new"))
	toks, err := profiles.Tokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-old", "tok-new"}, toks)

	cur, _, err := m.CurrentIssued(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-new", cur)
}

func TestRotateUnboundOnlyCaches(t *testing.T) {
	ctx := context.Background()
	m, profiles := newManager(t)

	require.NoError(t, m.RotateToken(ctx, "inst-9", "u1", "", "tok-x"))
	toks, err := profiles.Tokens(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, toks)
	cur, ok, err := m.CurrentIssued(ctx, "inst-9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-x", cur)
}

func TestBoundInstallationOnlyAcceptsOwner(t *testing.T) {
	ctx := context.Background()
	m, profiles := newManager(t)

	require.NoError(t, m.StoreIssued(ctx, "inst-1", "", "tok-a"))
	_, err := m.SyncWithProfile(ctx, "inst-1", "u1")
	require.NoError(t, err)

	err = m.RotateToken(ctx, "inst-1", "u2", "tok-a", "tok-evil")
	assert.True(t, apperr.Is(err, apperr.KindPermission))
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, apperr.Is(m.StoreIssued(ctx, "inst-1", "", "tok-evil"), apperr.KindPermission))
	assert.True(t, apperr.Is(m.StoreIssued(ctx, "inst-1", "u2", "tok-evil"), apperr.KindPermission))

	cur, _, err := m.CurrentIssued(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-a", cur)

	require.NoError(t, m.StoreIssued(ctx, "inst-1", "u1", "tok-b"))
	toks, err := profiles.Tokens(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, toks)
}

func TestSyncSkipsTokenReportedByAnotherUser(t *testing.T) {
	ctx := context.Background()
	m, profiles := newManager(t)

	require.NoError(t, m.StoreIssued(ctx, "inst-1", "", "tok-a"))
	registered, err := m.SyncWithProfile(ctx, "inst-1", "u1")
	require.NoError(t, err)
	require.True(t, registered)

	// the device signs in as someone else: rebinding is allowed, the token stays u1's
	registered, err = m.SyncWithProfile(ctx, "inst-1", "u2")
	require.NoError(t, err)
	assert.False(t, registered)
	toks, err := profiles.Tokens(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, toks)
}
