package auth

import (
	"context"
	"net/http"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-auth-tokens/middleware/bearerware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	DefaultContextKey      = "user"
	DefaultTokenContextKey = "token"
	DefaultAuthScheme      = "Bearer"
)

// ErrorResponse is the JSON body of every failed API request
type ErrorResponse struct {
	Message  string              `json:"message"`
	TextCode string              `json:"text_code,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// RouteAuthenticator builds the fiber middleware guarding bearer routes
type RouteAuthenticator struct {
	validator    TokenValidator
	cfg          Config
	Logger       Logger
	ErrorHandler fiber.ErrorHandler
}

func NewHTTPAuthenticator(validator TokenValidator, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		validator: validator,
		cfg:       cfg,
		Logger:    defLogger{},
	}
	a.ErrorHandler = NewErrorHandler(a.Logger)
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
		a.ErrorHandler = NewErrorHandler(logger)
	}
	return a
}

// ContextKey is the Locals key holding the resolved identity
func (a *RouteAuthenticator) ContextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return DefaultContextKey
}

// ProtectedRoute rejects requests without a valid bearer token. On success
// the identity and raw token are available through GetRouterIdentity,
// GetRouterToken and the request's user context.
func (a *RouteAuthenticator) ProtectedRoute(listeners ...bearerware.ValidationListener) fiber.Handler {
	scheme := a.cfg.GetAuthScheme()
	if scheme == "" {
		scheme = DefaultAuthScheme
	}

	return bearerware.New(bearerware.Config{
		Resolver: bearerware.ResolverFunc(func(ctx context.Context, token string) (bearerware.Identity, error) {
			return a.validator.Resolve(ctx, token)
		}),
		ErrorHandler:        a.ErrorHandler,
		MissingTokenError:   ErrTokenMissing,
		AuthScheme:          scheme,
		ContextKey:          a.ContextKey(),
		TokenContextKey:     DefaultTokenContextKey,
		ContextEnricher:     enrichContext,
		ValidationListeners: listeners,
	})
}

func enrichContext(ctx context.Context, identity bearerware.Identity, token string) context.Context {
	if id, ok := identity.(Identity); ok {
		ctx = WithContext(ctx, id)
	}
	return WithTokenContext(ctx, token)
}

// NewErrorHandler maps errors to the JSON error body. It doubles as the
// fiber app ErrorHandler so routing errors share the same shape.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		richErr := toRichError(err)
		status := statusFromError(richErr)

		if status >= http.StatusInternalServerError {
			logger.Error(
				"API request failed",
				"error", err,
				"path", c.Path(),
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
		} else {
			logger.Debug(
				"API request rejected",
				"status", status,
				"text_code", richErr.TextCode,
				"path", c.Path(),
			)
		}

		return c.Status(status).JSON(NewErrorResponse(richErr))
	}
}

// NewErrorResponse builds the client facing body for err
func NewErrorResponse(richErr *errors.Error) ErrorResponse {
	resp := ErrorResponse{
		Message:  richErr.Message,
		TextCode: richErr.TextCode,
	}

	if len(richErr.ValidationErrors) > 0 {
		resp.Errors = make(map[string][]string, len(richErr.ValidationErrors))
		for _, fe := range richErr.ValidationErrors {
			resp.Errors[fe.Field] = append(resp.Errors[fe.Field], fe.Message)
		}
		for field := range resp.Errors {
			sort.Strings(resp.Errors[field])
		}
	}

	return resp
}

func toRichError(err error) *errors.Error {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return errors.New(fiberErr.Message, errors.HTTPStatusToCategory(fiberErr.Code)).
			WithCode(fiberErr.Code).
			WithTextCode(errors.HTTPStatusToTextCode(fiberErr.Code))
	}

	return errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
		WithCode(errors.CodeInternal)
}

func statusFromError(richErr *errors.Error) int {
	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryBadInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
