// Command authctl is a terminal client for the token API. The session
// token is kept in a local sqlite file between invocations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/term"

	"github.com/goliatone/go-auth-tokens/client"
	"github.com/goliatone/go-auth-tokens/config"
	"github.com/goliatone/go-auth-tokens/logging"
)

func main() {
	baseURL := flag.String("url", envOr("AUTHCTL_URL", "http://localhost:8080/api"), "API base url")
	statePath := flag.String("state", envOr("AUTHCTL_STATE", defaultStatePath()), "sqlite file holding the session token")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "request timeout")
	verbose := flag.Bool("v", false, "log requests to stderr")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *baseURL, *statePath, *timeout, *verbose, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL, statePath string, timeout time.Duration, verbose bool, args []string) error {
	db, err := openStateDB(statePath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := client.NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init state store: %w", err)
	}

	level := "error"
	if verbose {
		level = "debug"
	}
	logger := logging.New(config.Log{Level: level, Format: logging.FormatConsole}, os.Stderr)

	session := client.New(strings.TrimRight(baseURL, "/"), store,
		client.WithTimeout(timeout),
		client.WithLogger(logger.Named("client")),
	)

	c := &cli{
		session: session,
		prompt:  terminalPrompt,
		stdout:  os.Stdout,
	}
	return c.run(ctx, args)
}

func openStateDB(path string) (*bun.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func terminalPrompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		var line string
		_, err := fmt.Fscanln(os.Stdin, &line)
		return line, err
	}

	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authctl.db"
	}
	return filepath.Join(dir, "authctl", "state.db")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
