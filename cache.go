package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// CachedToken is the subset of a token row needed to resolve it
type CachedToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	Revoked   bool      `json:"revoked"`
}

// TokenCache caches token lookups by token id. Implementations must make
// Revoke win over any Put for the same id that happens later.
type TokenCache interface {
	Get(ctx context.Context, id string) (CachedToken, bool, error)
	Put(ctx context.Context, id string, entry CachedToken) error
	Revoke(ctx context.Context, id string) error
}

type noopTokenCache struct{}

func (noopTokenCache) Get(context.Context, string) (CachedToken, bool, error) {
	return CachedToken{}, false, nil
}

func (noopTokenCache) Put(context.Context, string, CachedToken) error { return nil }

func (noopTokenCache) Revoke(context.Context, string) error { return nil }

func normalizeTokenCache(c TokenCache) TokenCache {
	if c == nil {
		return noopTokenCache{}
	}
	return c
}

// DefaultTokenCachePrefix namespaces cache keys
const DefaultTokenCachePrefix = "auth:token:"

// RedisTokenCache stores resolve results in redis. Valid entries are
// written with SETNX and revocations overwrite with a tombstone, so a
// resolve racing a logout can never resurrect the token.
type RedisTokenCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ TokenCache = (*RedisTokenCache)(nil)

func NewRedisTokenCache(client redis.UniversalClient, ttl time.Duration) *RedisTokenCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTokenCache{
		client: client,
		ttl:    ttl,
		prefix: DefaultTokenCachePrefix,
	}
}

func (c *RedisTokenCache) WithPrefix(prefix string) *RedisTokenCache {
	if prefix != "" {
		c.prefix = prefix
	}
	return c
}

func (c *RedisTokenCache) key(id string) string {
	return c.prefix + id
}

func (c *RedisTokenCache) Get(ctx context.Context, id string) (CachedToken, bool, error) {
	val, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return CachedToken{}, false, nil
	}
	if err != nil {
		return CachedToken{}, false, err
	}

	var entry CachedToken
	if err := json.Unmarshal(val, &entry); err != nil {
		return CachedToken{}, false, err
	}
	return entry, true, nil
}

func (c *RedisTokenCache) Put(ctx context.Context, id string, entry CachedToken) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, c.key(id), data, c.ttl).Err()
}

// Revoke writes the tombstone. Its TTL matches entry TTL so any entry
// written before the revocation expires no later than the tombstone.
func (c *RedisTokenCache) Revoke(ctx context.Context, id string) error {
	data, err := json.Marshal(CachedToken{Revoked: true})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(id), data, c.ttl).Err()
}
