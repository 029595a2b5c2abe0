package auth

import "context"

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(ctx context.Context, token string) (Identity, error)

// Resolve satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Resolve(ctx context.Context, token string) (Identity, error) {
	if f == nil {
		return nil, ErrTokenInvalid
	}
	return f(ctx, token)
}
