package auth

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeValidationFailed   = "VALIDATION_FAILED"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeTokenMissing       = "TOKEN_MISSING"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
)

// MsgValidationFailed is the top level message for rejected payloads
const MsgValidationFailed = "The given data was invalid."

// ErrEmailTaken is returned when registering an email already in use
var ErrEmailTaken = newEmailTakenError()

// ErrInvalidCredentials is the single error for every login failure
var ErrInvalidCredentials = errors.New("These credentials do not match our records.", errors.CategoryAuth).
	WithCode(http.StatusUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrTokenMissing the request carried no bearer token
var ErrTokenMissing = errors.New("Unauthenticated.", errors.CategoryAuth).
	WithCode(http.StatusUnauthorized).
	WithTextCode(TextCodeTokenMissing)

// ErrTokenInvalid the token is unknown, malformed or revoked
var ErrTokenInvalid = errors.New("Unauthenticated.", errors.CategoryAuth).
	WithCode(http.StatusUnauthorized).
	WithTextCode(TextCodeTokenInvalid)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(http.StatusNotFound).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrNoEmptyString empty strings are not valid passwords
var ErrNoEmptyString = errors.New("password can not be empty", errors.CategoryBadInput).
	WithTextCode("EMPTY_PASSWORD")

// ErrMismatchedHashAndPassword password does not match stored hash
var ErrMismatchedHashAndPassword = errors.New("password does not match hash", errors.CategoryAuth).
	WithTextCode("PASSWORD_MISMATCH")

func newEmailTakenError() *errors.Error {
	err := errors.New("The email has already been taken.", errors.CategoryConflict).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(TextCodeEmailTaken)
	err.ValidationErrors = errors.ValidationErrors{
		{Field: "email", Message: "The email has already been taken."},
	}
	return err
}

// NewValidationError converts an ozzo validation result into the
// VALIDATION_FAILED error carrying field messages
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	return errors.FromOzzoValidation(err, MsgValidationFailed).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(TextCodeValidationFailed)
}

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsValidationFailed reports payload validation errors
func IsValidationFailed(err error) bool {
	return HasTextCode(err, TextCodeValidationFailed)
}

// IsTokenError reports TOKEN_MISSING and TOKEN_INVALID errors
func IsTokenError(err error) bool {
	return HasTextCode(err, TextCodeTokenMissing) || HasTextCode(err, TextCodeTokenInvalid)
}

// IsIdentityNotFound will check for missing identities
func IsIdentityNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrIdentityNotFound) {
		return true
	}
	return HasTextCode(err, ErrIdentityNotFound.TextCode)
}

// isUniqueViolation detects unique index violations for postgres and sqlite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func internalError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithCode(http.StatusInternalServerError)
}
