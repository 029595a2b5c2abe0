package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-auth-tokens"
)

type testConfig struct {
	tokenFormat string
	signingKey  string
	issuer      string
	audience    []string
	passwordMin int
	useHashid   bool
}

func (c testConfig) GetTokenFormat() string    { return c.tokenFormat }
func (c testConfig) GetSigningKey() string     { return c.signingKey }
func (c testConfig) GetIssuer() string         { return c.issuer }
func (c testConfig) GetAudience() []string     { return c.audience }
func (c testConfig) GetAuthScheme() string     { return "Bearer" }
func (c testConfig) GetContextKey() string     { return "user" }
func (c testConfig) GetPasswordMinLength() int { return c.passwordMin }
func (c testConfig) GetBcryptCost() int        { return bcrypt.MinCost }
func (c testConfig) GetUseHashid() bool        { return c.useHashid }

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = auth.Migrate(context.Background(), db)
	require.NoError(t, err)

	return db
}

type testStack struct {
	db     *bun.DB
	repo   auth.RepositoryManager
	tokens *auth.TokenService
	auther *auth.Auther
	sink   *capturingSink
}

func newTestStack(t *testing.T, cfg testConfig) *testStack {
	t.Helper()

	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)

	codec, err := auth.NewTokenCodec(cfg)
	require.NoError(t, err)

	tokens := auth.NewTokenService(repo, codec).WithLogger(silentLogger{})
	sink := &capturingSink{}
	auther := auth.NewAuthenticator(repo, tokens, cfg).
		WithLogger(silentLogger{}).
		WithActivitySink(sink)

	return &testStack{
		db:     db,
		repo:   repo,
		tokens: tokens,
		auther: auther,
		sink:   sink,
	}
}

func andrewInput() auth.RegisterInput {
	return auth.RegisterInput{
		Name:                 "Andrew",
		Email:                "andrew@example.com",
		Password:             "s3cret-pass",
		PasswordConfirmation: "s3cret-pass",
	}
}
