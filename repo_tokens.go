package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens persists personal access tokens
type Tokens interface {
	Create(ctx context.Context, token *PersonalAccessToken) (*PersonalAccessToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, token *PersonalAccessToken) (*PersonalAccessToken, error)
	GetByID(ctx context.Context, id uuid.UUID) (*PersonalAccessToken, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*PersonalAccessToken, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	CountValid(ctx context.Context, userID uuid.UUID) (int, error)
	PruneRevoked(ctx context.Context, before time.Time) (int64, error)
}

// ErrTokenNotFound no token row with the given id
var ErrTokenNotFound = errors.New("token not found", errors.CategoryNotFound).
	WithTextCode("TOKEN_NOT_FOUND")

type tokens struct {
	db  *bun.DB
	now func() time.Time
}

var _ Tokens = (*tokens)(nil)

type TokensOption func(*tokens)

// WithTokensClock overrides the time source used for timestamps
func WithTokensClock(now func() time.Time) TokensOption {
	return func(t *tokens) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTokensRepository(db *bun.DB, opts ...TokensOption) Tokens {
	repo := &tokens{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (r *tokens) Create(ctx context.Context, token *PersonalAccessToken) (*PersonalAccessToken, error) {
	return r.CreateTx(ctx, r.db, token)
}

func (r *tokens) CreateTx(ctx context.Context, tx bun.IDB, token *PersonalAccessToken) (*PersonalAccessToken, error) {
	if token == nil {
		return nil, errors.New("token record is required", errors.CategoryBadInput)
	}

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt == nil {
		now := r.now().UTC()
		token.CreatedAt = &now
	}

	if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
		return nil, internalError(err, "failed to store token")
	}

	return token, nil
}

func (r *tokens) GetByID(ctx context.Context, id uuid.UUID) (*PersonalAccessToken, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *tokens) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*PersonalAccessToken, error) {
	record := &PersonalAccessToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsIdentityNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, internalError(err, "failed to load token")
	}
	return record, nil
}

func (r *tokens) Revoke(ctx context.Context, id uuid.UUID) error {
	return r.RevokeTx(ctx, r.db, id)
}

// RevokeTx flips a valid token to revoked. The update is conditional on
// revoked_at being NULL so concurrent revocations of the same token see
// exactly one winner, every other caller gets ErrTokenInvalid.
func (r *tokens) RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewUpdate().
		Model((*PersonalAccessToken)(nil)).
		Set("revoked_at = ?", r.now().UTC()).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return internalError(err, "failed to revoke token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return internalError(err, "failed to revoke token")
	}

	if affected == 0 {
		return ErrTokenInvalid
	}

	return nil
}

// Touch records the last time a token was used
func (r *tokens) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*PersonalAccessToken)(nil)).
		Set("last_used_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return internalError(err, "failed to touch token")
	}
	return nil
}

func (r *tokens) CountValid(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := r.db.NewSelect().
		Model((*PersonalAccessToken)(nil)).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Count(ctx)
	if err != nil {
		return 0, internalError(err, "failed to count tokens")
	}
	return count, nil
}

// PruneRevoked deletes tokens revoked before the given time
func (r *tokens) PruneRevoked(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*PersonalAccessToken)(nil)).
		Where("revoked_at IS NOT NULL").
		Where("revoked_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, internalError(err, "failed to prune tokens")
	}
	return res.RowsAffected()
}
