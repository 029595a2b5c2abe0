package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-tokens/client"
)

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	store := client.NewSQLStore(openDB(t))
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx))

	_, found, err := store.Get(ctx, client.TokenStorageKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, client.TokenStorageKey, "first"))
	require.NoError(t, store.Set(ctx, client.TokenStorageKey, "second"))

	value, found, err := store.Get(ctx, client.TokenStorageKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", value)

	require.NoError(t, store.Delete(ctx, client.TokenStorageKey))
	_, found, err = store.Get(ctx, client.TokenStorageKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestSession_WithSQLStoreSurvivesReload(t *testing.T) {
	ctx := context.Background()
	srv := newAPIServer(t)

	store := client.NewSQLStore(openDB(t))
	require.NoError(t, store.Init(ctx))

	_, err := client.New(srv.URL+"/api", store).Register(ctx, andrew())
	require.NoError(t, err)

	restored := client.New(srv.URL+"/api", store)
	state, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsAuthenticated())

	require.NoError(t, restored.Logout(ctx))
	_, found, err := store.Get(ctx, client.TokenStorageKey)
	require.NoError(t, err)
	assert.False(t, found)
}
