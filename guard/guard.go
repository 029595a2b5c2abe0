// Package guard decides whether protected content may be shown for the
// current session state. Decisions never touch the network.
package guard

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-auth-tokens/client"
)

// DefaultRedirect is the anonymous accessible route
const DefaultRedirect = "/"

// StateReader exposes the session state, *client.Session implements it
type StateReader interface {
	Current() client.State
}

// Decision is the outcome of a guard evaluation. RedirectTo is set iff
// Allow is false.
type Decision struct {
	Allow      bool
	RedirectTo string
}

// Evaluate allows access iff the session is authenticated
func Evaluate(reader StateReader, redirectTo string) Decision {
	if redirectTo == "" {
		redirectTo = DefaultRedirect
	}

	if reader != nil {
		if state := reader.Current(); state != nil && state.IsAuthenticated() {
			return Decision{Allow: true}
		}
	}

	return Decision{RedirectTo: redirectTo}
}

// Resolver returns the session that applies to a request
type Resolver func(c *fiber.Ctx) StateReader

type Config struct {
	RedirectTo string
	Status     int
}

type Option func(*Config)

func WithRedirect(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.RedirectTo = path
		}
	}
}

func WithStatus(status int) Option {
	return func(c *Config) {
		if status != 0 {
			c.Status = status
		}
	}
}

// Protect runs Evaluate on every request and either continues the chain
// or redirects
func Protect(resolve Resolver, opts ...Option) fiber.Handler {
	cfg := Config{
		RedirectTo: DefaultRedirect,
		Status:     http.StatusFound,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *fiber.Ctx) error {
		var reader StateReader
		if resolve != nil {
			reader = resolve(c)
		}

		decision := Evaluate(reader, cfg.RedirectTo)
		if !decision.Allow {
			return c.Redirect(decision.RedirectTo, cfg.Status)
		}
		return c.Next()
	}
}

// Static always returns the same session
func Static(reader StateReader) Resolver {
	return func(*fiber.Ctx) StateReader {
		return reader
	}
}
