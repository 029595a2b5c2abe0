package guard_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-tokens"
	"github.com/goliatone/go-auth-tokens/client"
	"github.com/goliatone/go-auth-tokens/guard"
)

type fixedState struct {
	state client.State
}

func (f fixedState) Current() client.State { return f.state }

var authenticated = fixedState{state: client.Authenticated{
	User:  auth.UserResource{ID: "1", Name: "Andrew"},
	Token: "1|abc",
}}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		reader     guard.StateReader
		redirectTo string
		want       guard.Decision
	}{
		{name: "authenticated", reader: authenticated, want: guard.Decision{Allow: true}},
		{name: "anonymous", reader: fixedState{state: client.Anonymous{}}, want: guard.Decision{RedirectTo: "/"}},
		{name: "custom redirect", reader: fixedState{state: client.Anonymous{}}, redirectTo: "/login", want: guard.Decision{RedirectTo: "/login"}},
		{name: "nil state", reader: fixedState{}, want: guard.Decision{RedirectTo: "/"}},
		{name: "nil reader", reader: nil, want: guard.Decision{RedirectTo: "/"}},
		{name: "fresh session", reader: client.New("http://localhost", nil), want: guard.Decision{RedirectTo: "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.Evaluate(tt.reader, tt.redirectTo))
		})
	}
}

func TestProtect(t *testing.T) {
	var rendered int

	newApp := func(reader guard.StateReader, opts ...guard.Option) *fiber.App {
		app := fiber.New()
		app.Get("/dashboard", guard.Protect(guard.Static(reader), opts...), func(c *fiber.Ctx) error {
			rendered++
			return c.SendString("protected")
		})
		return app
	}

	resp, err := newApp(authenticated).Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, rendered)

	resp, err = newApp(fixedState{state: client.Anonymous{}}).Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, 1, rendered, "protected handler must not run for anonymous sessions")

	app := newApp(fixedState{state: client.Anonymous{}}, guard.WithRedirect("/login"), guard.WithStatus(http.StatusSeeOther))
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, 1, rendered)
}
