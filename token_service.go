package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultTokenName is stored on every token minted by register and login
const DefaultTokenName = "auth_token"

// TokenService mints, resolves and revokes personal access tokens
type TokenService struct {
	users     Users
	tokens    Tokens
	codec     TokenCodec
	cache     TokenCache
	logger    Logger
	tokenName string
	trackUse  bool
	now       func() time.Time
}

var _ TokenManager = (*TokenService)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(repo RepositoryManager, codec TokenCodec) *TokenService {
	if codec == nil {
		codec = OpaqueCodec{}
	}
	return &TokenService{
		users:     repo.Users(),
		tokens:    repo.Tokens(),
		codec:     codec,
		cache:     noopTokenCache{},
		logger:    defLogger{},
		tokenName: DefaultTokenName,
		now:       time.Now,
	}
}

func (s *TokenService) WithLogger(logger Logger) *TokenService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithCache enables the resolve cache
func (s *TokenService) WithCache(cache TokenCache) *TokenService {
	s.cache = normalizeTokenCache(cache)
	return s
}

func (s *TokenService) WithTokenName(name string) *TokenService {
	if name = strings.TrimSpace(name); name != "" {
		s.tokenName = name
	}
	return s
}

// WithUsageTracking makes Resolve record last_used_at on the token row.
// Resolve is read-only by default.
func (s *TokenService) WithUsageTracking(enabled bool) *TokenService {
	s.trackUse = enabled
	return s
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue mints a new token for identity and records it as valid
func (s *TokenService) Issue(ctx context.Context, identity Identity) (string, error) {
	return s.issue(ctx, identity, func(record *PersonalAccessToken) (*PersonalAccessToken, error) {
		return s.tokens.Create(ctx, record)
	})
}

// IssueTx is Issue running inside the caller's transaction
func (s *TokenService) IssueTx(ctx context.Context, tx bun.IDB, identity Identity) (string, error) {
	return s.issue(ctx, identity, func(record *PersonalAccessToken) (*PersonalAccessToken, error) {
		return s.tokens.CreateTx(ctx, tx, record)
	})
}

func (s *TokenService) issue(ctx context.Context, identity Identity, store func(*PersonalAccessToken) (*PersonalAccessToken, error)) (string, error) {
	if identity == nil {
		return "", errors.New("identity is required to issue a token", errors.CategoryBadInput)
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryBadInput, "identity id is not a uuid")
	}

	secret, err := GenerateTokenSecret()
	if err != nil {
		return "", internalError(err, "failed to generate token secret")
	}

	now := s.now().UTC()
	record := &PersonalAccessToken{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      s.tokenName,
		TokenHash: HashTokenSecret(secret),
		CreatedAt: &now,
	}

	encoded, err := s.codec.Encode(TokenParts{
		ID:       record.ID,
		UserID:   identity.ID(),
		Secret:   secret,
		IssuedAt: now,
	})
	if err != nil {
		return "", internalError(err, "failed to encode token")
	}

	if _, err := store(record); err != nil {
		s.logger.Error("TokenService issue failed to store token", "user_id", identity.ID(), "error", err)
		return "", err
	}

	return encoded, nil
}

// Resolve returns the identity bound to a valid token. Every failure other
// than an empty token is reported as ErrTokenInvalid.
func (s *TokenService) Resolve(ctx context.Context, raw string) (Identity, error) {
	record, err := s.verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if IsIdentityNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if s.trackUse {
		if err := s.tokens.Touch(ctx, record.ID, s.now()); err != nil {
			s.logger.Warn("TokenService failed to track token use", "token_id", record.ID.String(), "error", err)
		}
	}

	return NewIdentityFromUser(user), nil
}

// Revoke invalidates exactly the presented token. A token that is already
// revoked, or loses a concurrent revoke race, yields ErrTokenInvalid.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	record, err := s.verify(ctx, raw)
	if err != nil {
		return err
	}

	// the tombstone goes first: once the row is revoked no cached valid
	// entry may outlive it
	if err := s.cache.Revoke(ctx, record.ID.String()); err != nil {
		s.logger.Error("TokenService revoke failed to write cache tombstone", "token_id", record.ID.String(), "error", err)
		return internalError(err, "Failed to revoke token")
	}

	return s.tokens.Revoke(ctx, record.ID)
}

func (s *TokenService) verify(ctx context.Context, raw string) (CachedToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CachedToken{}, ErrTokenMissing
	}

	parts, err := s.codec.Decode(raw)
	if err != nil {
		return CachedToken{}, ErrTokenInvalid
	}

	record, err := s.lookup(ctx, parts.ID)
	if err != nil {
		return CachedToken{}, err
	}

	if record.Revoked {
		return CachedToken{}, ErrTokenInvalid
	}

	if subtle.ConstantTimeCompare([]byte(HashTokenSecret(parts.Secret)), []byte(record.TokenHash)) != 1 {
		return CachedToken{}, ErrTokenInvalid
	}

	if parts.UserID != "" && parts.UserID != record.UserID.String() {
		return CachedToken{}, ErrTokenInvalid
	}

	return record, nil
}

func (s *TokenService) lookup(ctx context.Context, id uuid.UUID) (CachedToken, error) {
	key := id.String()

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("TokenService cache read failed", "token_id", key, "error", err)
	} else if found {
		return cached, nil
	}

	row, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return CachedToken{}, ErrTokenInvalid
		}
		return CachedToken{}, err
	}

	entry := CachedToken{
		ID:        row.ID,
		UserID:    row.UserID,
		TokenHash: row.TokenHash,
		Revoked:   row.IsRevoked(),
	}

	if !entry.Revoked {
		if err := s.cache.Put(ctx, key, entry); err != nil {
			s.logger.Warn("TokenService cache write failed", "token_id", key, "error", err)
		}
	}

	return entry, nil
}
