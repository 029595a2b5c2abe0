package bearerware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
	// ErrBearerMissing no token was found by any extractor
	ErrBearerMissing = errors.New("missing or malformed bearer token")
)

// Identity mirrors the auth package Identity without an import cycle
type Identity interface {
	ID() string
	Name() string
	Email() string
}

// TokenResolver turns a raw token into the identity it belongs to
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// ResolverFunc adapts a function into a TokenResolver
type ResolverFunc func(ctx context.Context, token string) (Identity, error)

func (f ResolverFunc) Resolve(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// ValidationListener is invoked after a token resolved, before the handler runs.
type ValidationListener func(c *fiber.Ctx, identity Identity) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler

	// Resolver is required
	Resolver TokenResolver

	// ContextKey is the Locals key for the resolved identity
	ContextKey string
	// TokenContextKey is the Locals key for the raw token
	TokenContextKey string
	TokenLookup     string
	AuthScheme      string

	// MissingTokenError is handed to ErrorHandler when no token is found
	MissingTokenError error

	// ContextEnricher propagates the identity to the request's user context
	ContextEnricher func(c context.Context, identity Identity, token string) context.Context

	ValidationListeners []ValidationListener
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil || raw == "" {
			return cfg.ErrorHandler(c, cfg.MissingTokenError)
		}

		identity, err := cfg.Resolver.Resolve(c.UserContext(), raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if identity == nil {
			return cfg.ErrorHandler(c, cfg.MissingTokenError)
		}

		if err := cfg.runValidationListeners(c, identity); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, identity)
		c.Locals(cfg.TokenContextKey, raw)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), identity, raw))
		}

		return cfg.SuccessHandler(c)
	}
}

func ExtractRawToken(c *fiber.Ctx, extractors []Extractor) (string, error) {
	var raw string
	err := ErrBearerMissing

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthenticated.",
			})
		}
	}

	if cfg.Resolver == nil {
		panic("AUTH: bearer middleware configuration: Resolver is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenContextKey == "" {
		cfg.TokenContextKey = "token"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.MissingTokenError == nil {
		cfg.MissingTokenError = ErrBearerMissing
	}

	return cfg
}

func (cfg *Config) getExtractors() []Extractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, identity Identity) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, identity); err != nil {
			return err
		}
	}
	return nil
}

// Extractor pulls a raw token out of the request
type Extractor func(c *fiber.Ctx) (string, error)

// GetExtractors parses a lookup definition such as
// "header:Authorization,query:token,cookie:auth_token"
func GetExtractors(tokenLookup string, authSchemes ...string) []Extractor {
	extractors := make([]Extractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

// fromHeader returns a function that extracts token from the request header.
func fromHeader(header string, authScheme string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			return "", ErrBearerMissing
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.Clone(strings.TrimSpace(a[l:])), nil
		}
		return "", ErrBearerMissing
	}
}

// fromQuery returns a function that extracts token from the query string.
func fromQuery(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrBearerMissing
		}
		return strings.Clone(token), nil
	}
}

// fromCookie returns a function that extracts token from the named cookie.
func fromCookie(name string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrBearerMissing
		}
		return strings.Clone(token), nil
	}
}
