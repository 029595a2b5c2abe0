package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// UserResource is the JSON shape of a user
type UserResource struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User  UserResource `json:"user"`
	Token string       `json:"token"`
}

// MessageResponse is returned by logout and the foo endpoints
type MessageResponse struct {
	Message string `json:"message"`
}

// NewUserResource renders an identity for API responses
func NewUserResource(identity Identity) UserResource {
	if identity == nil {
		return UserResource{}
	}
	res := UserResource{
		ID:    identity.ID(),
		Name:  identity.Name(),
		Email: identity.Email(),
	}
	if user, ok := UserFromIdentity(identity); ok {
		res.CreatedAt = user.CreatedAt
		res.UpdatedAt = user.UpdatedAt
	}
	return res
}

type APIControllerRoutes struct {
	Register string
	Login    string
	Logout   string
	User     string
	Foo      string
	Health   string
}

type APIController struct {
	Logger       Logger
	Auther       Authenticator
	Routes       *APIControllerRoutes
	ContextKey   string
	ErrorHandler fiber.ErrorHandler
}

type APIControllerOption func(*APIController) *APIController

func WithAPIAuthenticator(auther Authenticator) APIControllerOption {
	return func(c *APIController) *APIController {
		c.Auther = auther
		return c
	}
}

func WithAPILogger(logger Logger) APIControllerOption {
	return func(c *APIController) *APIController {
		if logger != nil {
			c.Logger = logger
			c.ErrorHandler = NewErrorHandler(logger)
		}
		return c
	}
}

func WithAPIContextKey(key string) APIControllerOption {
	return func(c *APIController) *APIController {
		if key != "" {
			c.ContextKey = key
		}
		return c
	}
}

func NewAPIController(opts ...APIControllerOption) *APIController {
	c := &APIController{
		Logger:       defLogger{},
		ErrorHandler: NewErrorHandler(defLogger{}),
		ContextKey:   DefaultContextKey,
		Routes: &APIControllerRoutes{
			Register: "/register",
			Login:    "/login",
			Logout:   "/logout",
			User:     "/user",
			Foo:      "/foo",
			Health:   "/healthz",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in API controller...")
	}

	return c
}

// RegisterAPIRoutes mounts the public and bearer protected endpoints
func RegisterAPIRoutes(router fiber.Router, controller *APIController, protected fiber.Handler) {
	router.Post(controller.Routes.Register, controller.Register).Name("auth.register")
	router.Post(controller.Routes.Login, controller.Login).Name("auth.login")

	router.Post(controller.Routes.Logout, protected, controller.Logout).Name("auth.logout")
	router.Get(controller.Routes.User, protected, controller.CurrentUser).Name("auth.user")

	foo := router.Group(controller.Routes.Foo, protected)
	foo.Post("/bar1", controller.Foo("bar1")).Name("foo.bar1")
	foo.Post("/bar2", controller.Foo("bar2")).Name("foo.bar2")
	foo.Post("/bar3", controller.Foo("bar3")).Name("foo.bar3")
}

// RegisterHealthRoute mounts the liveness probe
func RegisterHealthRoute(router fiber.Router, controller *APIController) {
	router.Get(controller.Routes.Health, controller.Health).Name("healthz")
}

func (a *APIController) Register(c *fiber.Ctx) error {
	payload := new(RegisterInput)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("register parse payload", "error", err)
		return a.ErrorHandler(c, malformedBody(err))
	}

	result, err := a.Auther.Register(c.UserContext(), *payload)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(http.StatusCreated).JSON(AuthResponse{
		User:  NewUserResource(result.Identity),
		Token: result.Token,
	})
}

func (a *APIController) Login(c *fiber.Ctx) error {
	payload := new(LoginInput)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("login parse payload", "error", err)
		return a.ErrorHandler(c, malformedBody(err))
	}

	result, err := a.Auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(http.StatusOK).JSON(AuthResponse{
		User:  NewUserResource(result.Identity),
		Token: result.Token,
	})
}

func (a *APIController) Logout(c *fiber.Ctx) error {
	token, ok := GetRouterToken(c, DefaultTokenContextKey)
	if !ok {
		return a.ErrorHandler(c, ErrTokenMissing)
	}

	if err := a.Auther.Logout(c.UserContext(), token); err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(http.StatusOK).JSON(MessageResponse{Message: "Logged out"})
}

func (a *APIController) CurrentUser(c *fiber.Ctx) error {
	identity, ok := GetRouterIdentity(c, a.ContextKey)
	if !ok {
		return a.ErrorHandler(c, ErrTokenMissing)
	}

	return c.Status(http.StatusOK).JSON(NewUserResource(identity))
}

// Foo returns a stub handler answering with its own name
func (a *APIController) Foo(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(MessageResponse{Message: name})
	}
}

func (a *APIController) Health(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func malformedBody(err error) error {
	return errors.Wrap(err, errors.CategoryBadInput, "Malformed request body").
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(TextCodeValidationFailed)
}
