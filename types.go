package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Authenticator holds the account flows exposed over HTTP
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Name() string
	Email() string
}

// AuthResult is returned by the register and login flows
type AuthResult struct {
	Identity Identity
	Token    string
}

// Config holds auth options
type Config interface {
	GetTokenFormat() string
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAuthScheme() string
	GetContextKey() string
	GetPasswordMinLength() int
	GetBcryptCost() int
	GetUseHashid() bool
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (Identity, error)
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenIssuer mints new session tokens bound to an identity
type TokenIssuer interface {
	Issue(ctx context.Context, identity Identity) (string, error)
	IssueTx(ctx context.Context, tx bun.IDB, identity Identity) (string, error)
}

// TokenValidator resolves a presented token to the identity it belongs to
type TokenValidator interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// TokenRevoker invalidates a single presented token
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// TokenManager groups the token lifecycle operations
type TokenManager interface {
	TokenIssuer
	TokenValidator
	TokenRevoker
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Print("[ERR] AUTH " + newline(format, args...))
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Print("[WRN] AUTH " + newline(format, args...))
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Print("[INF] AUTH " + newline(format, args...))
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Print("[DBG] AUTH " + newline(format, args...))
}

// newline renders a message followed by key/value pairs
func newline(s string, args ...any) string {
	var b strings.Builder
	b.WriteString(s)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	if b.Len() == 0 || !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}
