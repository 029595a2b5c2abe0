package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error)

	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error
}

type users struct {
	db  *bun.DB
	now func() time.Time
}

var _ Users = (*users)(nil)

type UsersOption func(*users)

// WithUsersClock overrides the time source used for timestamps
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repoUsers := &users{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}
	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

// RegisterTx inserts a new user. The email unique index is the source of
// truth for uniqueness, a violation maps to ErrEmailTaken.
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user == nil {
		return nil, errors.New("user record is required", errors.CategoryBadInput)
	}

	a.prepareUserDefaults(user)

	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, internalError(err, "failed to register user")
	}

	return user, nil
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.getBy(ctx, tx, "id", id)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getBy(ctx, tx, "email", NormalizeEmail(email))
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier)
}

// GetByIdentifierTx accepts either a user id or an email
func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, ErrIdentityNotFound
	}

	if id, err := uuid.Parse(trimmed); err == nil {
		return a.GetByIDTx(ctx, tx, id)
	}

	return a.GetByEmailTx(ctx, tx, trimmed)
}

func (a *users) getBy(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if IsIdentityNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, internalError(err, "failed to load user")
	}

	return record, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil {
		return nil
	}

	loggedInAt := a.now().UTC()
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("loggedin_at = ?", loggedInAt).
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return internalError(err, "failed to track login")
	}

	user.LoggedInAt = &loggedInAt
	return nil
}

func (a *users) prepareUserDefaults(record *User) {
	record.Email = NormalizeEmail(record.Email)
	record.Name = strings.TrimSpace(record.Name)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := a.now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

// NormalizeEmail trims and lower-cases an email so lookups and the unique
// index agree on a single form
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
