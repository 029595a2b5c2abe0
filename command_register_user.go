package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// DefaultPasswordMinLength is used when the config does not set one
const DefaultPasswordMinLength = 8

// RegisterInput is the registration payload
type RegisterInput struct {
	Name                 string `json:"name" form:"name"`
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

// Normalize trims name and email and lower-cases the email
func (r RegisterInput) Normalize() RegisterInput {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	return r
}

// Validate will validate the payload
func (r RegisterInput) Validate(minPassword int) error {
	if minPassword <= 0 {
		minPassword = DefaultPasswordMinLength
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(minPassword, 255)),
		validation.Field(
			&r.PasswordConfirmation,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
	return NewValidationError(err)
}

// LoginInput is the login payload
type LoginInput struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate only checks presence, credential errors are reported by Login
func (r LoginInput) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
	return NewValidationError(err)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

type RegisterUserMessage struct {
	Name      string
	Email     string
	Password  string
	UseHashid bool
}

// RegisterUserHandler creates the user row and its first token in a
// single transaction
type RegisterUserHandler struct {
	repo   RepositoryManager
	tokens TokenIssuer
	hasher PasswordAuthenticator
}

func NewRegisterUserHandler(repo RepositoryManager, tokens TokenIssuer, hasher PasswordAuthenticator) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, "", richErr
		}
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Name:         event.Name,
		Email:        event.Email,
		PasswordHash: hash,
	}
	if event.UseHashid {
		if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
			user.ID = id
		}
	}

	var token string
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.Users().RegisterTx(ctx, tx, user)
		if err != nil {
			return err
		}
		user = created

		token, err = h.tokens.IssueTx(ctx, tx, NewIdentityFromUser(created))
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, "", richErr
		}

		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return user, token, nil
}
