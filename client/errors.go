package client

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-auth-tokens"
)

// ErrAlreadyAuthenticated register and login are rejected while a session is active
var ErrAlreadyAuthenticated = errors.New("session is already authenticated, logout first", errors.CategoryConflict).
	WithTextCode("ALREADY_AUTHENTICATED")

// ErrNotAuthenticated the operation needs an authenticated session
var ErrNotAuthenticated = errors.New("session is not authenticated", errors.CategoryAuth).
	WithTextCode("NOT_AUTHENTICATED")

// ErrOperationInFlight another register, login, logout or restore is running
var ErrOperationInFlight = errors.New("another session operation is in flight", errors.CategoryConflict).
	WithTextCode("OPERATION_IN_FLIGHT")

// Kind classifies API failures the caller may want to branch on
type Kind string

const (
	KindValidationFailed   Kind = "validation_failed"
	KindEmailTaken         Kind = "email_taken"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindTokenMissing       Kind = "token_missing"
	KindTokenInvalid       Kind = "token_invalid"
	KindServer             Kind = "server"
	KindUnexpected         Kind = "unexpected"
)

// APIError is a non 2xx response from the API
type APIError struct {
	Status   int
	Kind     Kind
	TextCode string
	Message  string
	Fields   map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// Unauthenticated reports whether the server rejected the token
func (e *APIError) Unauthenticated() bool {
	return e.Kind == KindTokenInvalid || e.Kind == KindTokenMissing
}

func newAPIError(status int, body auth.ErrorResponse) *APIError {
	return &APIError{
		Status:   status,
		Kind:     kindOf(status, body.TextCode),
		TextCode: body.TextCode,
		Message:  body.Message,
		Fields:   body.Errors,
	}
}

func kindOf(status int, textCode string) Kind {
	switch textCode {
	case auth.TextCodeValidationFailed:
		return KindValidationFailed
	case auth.TextCodeEmailTaken:
		return KindEmailTaken
	case auth.TextCodeInvalidCredentials:
		return KindInvalidCredentials
	case auth.TextCodeTokenMissing:
		return KindTokenMissing
	case auth.TextCodeTokenInvalid:
		return KindTokenInvalid
	}

	switch {
	case status == http.StatusUnauthorized:
		return KindTokenInvalid
	case status == http.StatusUnprocessableEntity:
		return KindValidationFailed
	case status >= http.StatusInternalServerError:
		return KindServer
	default:
		return KindUnexpected
	}
}

// AsAPIError extracts an *APIError from err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
