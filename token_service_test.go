package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-tokens"
)

func registerUser(t *testing.T, stack *testStack, email string) auth.Identity {
	t.Helper()
	user, err := stack.repo.Users().Register(context.Background(), &auth.User{
		Name:         "Andrew",
		Email:        email,
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return auth.NewIdentityFromUser(user)
}

func TestTokenService_IssueAndResolve(t *testing.T) {
	formats := []testConfig{
		{},
		{tokenFormat: auth.TokenFormatJWT, signingKey: "k", issuer: "tests", audience: []string{"api"}},
	}

	for _, cfg := range formats {
		name := cfg.tokenFormat
		if name == "" {
			name = auth.TokenFormatOpaque
		}

		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stack := newTestStack(t, cfg)
			identity := registerUser(t, stack, "andrew@example.com")

			token, err := stack.tokens.Issue(ctx, identity)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			resolved, err := stack.tokens.Resolve(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, identity.ID(), resolved.ID())
			assert.Equal(t, "andrew@example.com", resolved.Email())

			other, err := stack.tokens.Issue(ctx, identity)
			require.NoError(t, err)
			assert.NotEqual(t, token, other)
		})
	}
}

func TestTokenService_ResolveFailures(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	identity := registerUser(t, stack, "andrew@example.com")

	token, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)

	id, _, _ := strings.Cut(token, "|")

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: auth.ErrTokenMissing},
		{name: "whitespace", token: "   ", wantErr: auth.ErrTokenMissing},
		{name: "garbage", token: "garbage", wantErr: auth.ErrTokenInvalid},
		{name: "wrong secret", token: id + "|" + strings.Repeat("0", auth.TokenSecretLength), wantErr: auth.ErrTokenInvalid},
		{name: "unknown id", token: uuid.NewString() + "|abc", wantErr: auth.ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := stack.tokens.Resolve(ctx, tt.token)
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenService_RevokeIsolatesTokens(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	identity := registerUser(t, stack, "andrew@example.com")

	first, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)
	second, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)

	require.NoError(t, stack.tokens.Revoke(ctx, first))

	_, err = stack.tokens.Resolve(ctx, first)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	resolved, err := stack.tokens.Resolve(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, identity.ID(), resolved.ID())

	err = stack.tokens.Revoke(ctx, first)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_ConcurrentRevokeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	identity := registerUser(t, stack, "andrew@example.com")

	token, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- stack.tokens.Revoke(ctx, token)
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrTokenInvalid)
	}
	assert.Equal(t, 1, ok)
}

func TestTokenService_UsageTracking(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	identity := registerUser(t, stack, "andrew@example.com")

	token, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)
	id, _, _ := strings.Cut(token, "|")
	tokenID := uuid.MustParse(id)

	_, err = stack.tokens.Resolve(ctx, token)
	require.NoError(t, err)

	row, err := stack.repo.Tokens().GetByID(ctx, tokenID)
	require.NoError(t, err)
	assert.Nil(t, row.LastUsedAt)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	stack.tokens.WithUsageTracking(true).WithClock(func() time.Time { return now })

	_, err = stack.tokens.Resolve(ctx, token)
	require.NoError(t, err)

	row, err = stack.repo.Tokens().GetByID(ctx, tokenID)
	require.NoError(t, err)
	require.NotNil(t, row.LastUsedAt)
	assert.True(t, now.Equal(*row.LastUsedAt))
}

func TestTokenService_ResolveDeletedUser(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	identity := registerUser(t, stack, "andrew@example.com")

	token, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)

	_, err = stack.db.NewDelete().
		Model((*auth.User)(nil)).
		Where("id = ?", identity.ID()).
		Exec(ctx)
	require.NoError(t, err)

	_, err = stack.tokens.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *auth.RedisTokenCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, auth.NewRedisTokenCache(client, time.Minute)
}

func TestRedisTokenCache_TombstoneWins(t *testing.T) {
	ctx := context.Background()
	mr, cache := newRedisCache(t)

	entry := auth.CachedToken{ID: uuid.New(), UserID: uuid.New(), TokenHash: "hash"}
	key := entry.ID.String()

	_, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, key, entry))
	got, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry, got)

	require.NoError(t, cache.Revoke(ctx, key))
	require.NoError(t, cache.Put(ctx, key, entry))

	got, found, err = cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Revoked)

	assert.True(t, mr.Exists(auth.DefaultTokenCachePrefix+key))
	assert.Greater(t, mr.TTL(auth.DefaultTokenCachePrefix+key), time.Duration(0))
}

func TestTokenService_WithRedisCache(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	mr, cache := newRedisCache(t)
	stack.tokens.WithCache(cache)

	identity := registerUser(t, stack, "andrew@example.com")
	token, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)
	id, _, _ := strings.Cut(token, "|")

	_, err = stack.tokens.Resolve(ctx, token)
	require.NoError(t, err)
	assert.True(t, mr.Exists(auth.DefaultTokenCachePrefix+id))

	require.NoError(t, stack.tokens.Revoke(ctx, token))

	_, err = stack.tokens.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	t.Run("cache outage falls back to the database", func(t *testing.T) {
		other, err := stack.tokens.Issue(ctx, identity)
		require.NoError(t, err)

		mr.Close()

		resolved, err := stack.tokens.Resolve(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, identity.ID(), resolved.ID())
	})
}

type flakyTokenCache struct {
	mu          sync.Mutex
	entries     map[string]auth.CachedToken
	failRevokes bool
}

func (c *flakyTokenCache) Get(_ context.Context, id string) (auth.CachedToken, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	return entry, ok, nil
}

func (c *flakyTokenCache) Put(_ context.Context, id string, entry auth.CachedToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists {
		c.entries[id] = entry
	}
	return nil
}

func (c *flakyTokenCache) Revoke(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRevokes {
		return assert.AnError
	}
	c.entries[id] = auth.CachedToken{Revoked: true}
	return nil
}

func TestTokenService_RevokeWithFailingCache(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, testConfig{})
	cache := &flakyTokenCache{entries: map[string]auth.CachedToken{}, failRevokes: true}
	stack.tokens.WithCache(cache)

	identity := registerUser(t, stack, "andrew@example.com")
	token, err := stack.tokens.Issue(ctx, identity)
	require.NoError(t, err)
	rawID, _, _ := strings.Cut(token, "|")
	id := uuid.MustParse(rawID)

	_, err = stack.tokens.Resolve(ctx, token)
	require.NoError(t, err)
	require.Contains(t, cache.entries, rawID, "resolve caches the valid token")

	err = stack.tokens.Revoke(ctx, token)
	require.Error(t, err, "logout must not report success while a valid entry stays cached")
	assert.False(t, auth.IsTokenError(err))

	row, err := stack.repo.Tokens().GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, row.IsRevoked(), "the row is only revoked after the tombstone is written")

	cache.mu.Lock()
	cache.failRevokes = false
	cache.mu.Unlock()

	require.NoError(t, stack.tokens.Revoke(ctx, token))

	_, err = stack.tokens.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	row, err = stack.repo.Tokens().GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, row.IsRevoked())
}
