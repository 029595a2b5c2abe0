package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	auth "github.com/goliatone/go-auth-tokens"
	"github.com/goliatone/go-auth-tokens/client"
	"github.com/goliatone/go-auth-tokens/guard"
)

const usage = `usage: authctl [flags] <command> [args]

commands:
  register -name NAME -email EMAIL [-password PASSWORD]
  login    -email EMAIL [-password PASSWORD]
  logout
  whoami
  foo      bar1|bar2|bar3
`

// Prompter reads a secret from the user
type Prompter func(label string) (string, error)

type cli struct {
	session *client.Session
	prompt  Prompter
	stdout  io.Writer
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n\n%s", usage)
	}

	cmd, rest := args[0], args[1:]

	// every command starts from the persisted session
	if _, err := c.session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	switch cmd {
	case "register":
		return c.register(ctx, rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami()
	case "foo":
		return c.foo(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password, prompted when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := auth.RegisterInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
	}

	if input.Password == "" {
		var err error
		if input.Password, err = c.prompt("Password: "); err != nil {
			return err
		}
		if input.PasswordConfirmation, err = c.prompt("Confirm password: "); err != nil {
			return err
		}
	} else {
		input.PasswordConfirmation = input.Password
	}

	user, err := c.session.Register(ctx, input)
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(c.stdout, "Registered and logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password, prompted when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := *password
	if secret == "" {
		var err error
		if secret, err = c.prompt("Password: "); err != nil {
			return err
		}
	}

	user, err := c.session.Login(ctx, *email, secret)
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(c.stdout, "Logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	if !c.session.IsAuthenticated() {
		fmt.Fprintln(c.stdout, "Not logged in")
		return nil
	}

	if err := c.session.Logout(ctx); err != nil {
		if apiErr, ok := client.AsAPIError(err); ok && apiErr.Unauthenticated() {
			fmt.Fprintln(c.stdout, "Session had already expired, local state cleared")
			return nil
		}
		return describe(err)
	}

	fmt.Fprintln(c.stdout, "Logged out")
	return nil
}

func (c *cli) whoami() error {
	user, ok := c.session.User()
	if !ok {
		fmt.Fprintln(c.stdout, "Not logged in")
		return nil
	}

	fmt.Fprintf(c.stdout, "%s <%s> (id %s)\n", user.Name, user.Email, user.ID)
	return nil
}

func (c *cli) foo(ctx context.Context, args []string) error {
	if decision := guard.Evaluate(c.session, "login"); !decision.Allow {
		return fmt.Errorf("not logged in, run `authctl %s` first", decision.RedirectTo)
	}

	if len(args) != 1 {
		return fmt.Errorf("foo expects one of bar1, bar2, bar3")
	}

	var out auth.MessageResponse
	if err := c.session.Do(ctx, http.MethodPost, "/foo/"+args[0], nil, &out); err != nil {
		return describe(err)
	}

	fmt.Fprintln(c.stdout, out.Message)
	return nil
}

// describe renders API failures with their field errors
func describe(err error) error {
	apiErr, ok := client.AsAPIError(err)
	if !ok || len(apiErr.Fields) == 0 {
		return err
	}

	fields := make([]string, 0, len(apiErr.Fields))
	for field := range apiErr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(apiErr.Message)
	for _, field := range fields {
		for _, msg := range apiErr.Fields[field] {
			fmt.Fprintf(&b, "\n  %s: %s", field, msg)
		}
	}
	return fmt.Errorf("%s", b.String())
}
