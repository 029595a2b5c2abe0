package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-auth-tokens"
	"github.com/goliatone/go-auth-tokens/client"
	"github.com/goliatone/go-auth-tokens/config"
	"github.com/goliatone/go-auth-tokens/logging"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := openStateDB(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = auth.Migrate(context.Background(), db)
	require.NoError(t, err)

	cfg := config.Auth{
		TokenFormat: auth.TokenFormatOpaque,
		PasswordMin: auth.DefaultPasswordMinLength,
		BcryptCost:  bcrypt.MinCost,
	}
	repo := auth.NewRepositoryManager(db)
	tokens := auth.NewTokenService(repo, auth.OpaqueCodec{}).WithLogger(logging.Nop())
	auther := auth.NewAuthenticator(repo, tokens, cfg).WithLogger(logging.Nop())

	app := fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(logging.Nop())})
	controller := auth.NewAPIController(auth.WithAPIAuthenticator(auther), auth.WithAPILogger(logging.Nop()))
	protected := auth.NewHTTPAuthenticator(tokens, cfg).WithLogger(logging.Nop()).ProtectedRoute()
	auth.RegisterAPIRoutes(app.Group("/api"), controller, protected)

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	t       *testing.T
	baseURL string
	state   string
	prompts []string
}

// exec runs one authctl invocation against a fresh session, as the binary would
func (h *harness) exec(args ...string) (string, error) {
	h.t.Helper()
	ctx := context.Background()

	db, err := openStateDB(h.state)
	require.NoError(h.t, err)
	defer db.Close()

	store := client.NewSQLStore(db)
	require.NoError(h.t, store.Init(ctx))

	out := &bytes.Buffer{}
	c := &cli{
		session: client.New(h.baseURL, store),
		stdout:  out,
		prompt: func(string) (string, error) {
			require.NotEmpty(h.t, h.prompts, "unexpected prompt")
			next := h.prompts[0]
			h.prompts = h.prompts[1:]
			return next, nil
		},
	}

	err = c.run(ctx, args)
	return out.String(), err
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:       t,
		baseURL: newServer(t).URL + "/api",
		state:   filepath.Join(t.TempDir(), "nested", "state.db"),
	}
}

func TestCLI_Lifecycle(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec("whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)

	_, err = h.exec("foo", "bar1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authctl login")

	h.prompts = []string{"password", "password"}
	out, err = h.exec("register", "-name", "Andrew", "-email", "andrew@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Registered and logged in as Andrew <andrew@example.com>\n", out)
	assert.Empty(t, h.prompts)

	out, err = h.exec("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Andrew <andrew@example.com>")

	out, err = h.exec("foo", "bar3")
	require.NoError(t, err)
	assert.Equal(t, "bar3\n", out)

	_, err = h.exec("login", "-email", "andrew@example.com", "-password", "password")
	assert.ErrorIs(t, err, client.ErrAlreadyAuthenticated)

	out, err = h.exec("logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	out, err = h.exec("logout")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)

	out, err = h.exec("login", "-email", "andrew@example.com", "-password", "password")
	require.NoError(t, err)
	assert.Equal(t, "Logged in as Andrew <andrew@example.com>\n", out)
}

func TestCLI_Failures(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("register", "-name", "", "-email", "nope", "-password", "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email:")
	assert.Contains(t, err.Error(), "name:")

	_, err = h.exec("login", "-email", "ghost@example.com", "-password", "password")
	require.Error(t, err)
	apiErr, ok := client.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, client.KindInvalidCredentials, apiErr.Kind)

	_, err = h.exec("dance")
	assert.ErrorContains(t, err, `unknown command "dance"`)

	_, err = h.exec()
	assert.ErrorContains(t, err, "missing command")
}
