package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var identityCtxKey = &contextKey{"identity"}
var tokenCtxKey = &contextKey{"token"}

type contextKey struct {
	name string
}

// WithContext sets the Identity in the given context
func WithContext(r context.Context, identity Identity) context.Context {
	return context.WithValue(r, identityCtxKey, identity)
}

// FromContext finds the identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(Identity)
	return raw, ok && raw != nil
}

// WithTokenContext stores the raw bearer token in the given context
func WithTokenContext(r context.Context, token string) context.Context {
	return context.WithValue(r, tokenCtxKey, token)
}

// TokenFromContext returns the raw bearer token stored in the context
func TokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(tokenCtxKey).(string)
	return raw, ok && raw != ""
}

// GetRouterIdentity extracts the Identity from the fiber context
func GetRouterIdentity(c *fiber.Ctx, key string) (Identity, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	identity, ok := raw.(Identity)
	return identity, ok
}

// GetRouterToken extracts the raw bearer token from the fiber context
func GetRouterToken(c *fiber.Ctx, key string) (string, bool) {
	if key == "" {
		key = DefaultTokenContextKey
	}
	raw, ok := c.Locals(key).(string)
	return raw, ok && raw != ""
}
