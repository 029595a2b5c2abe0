// Command server runs the token authentication API
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-print"

	"github.com/goliatone/go-auth-tokens/config"
	"github.com/goliatone/go-auth-tokens/logging"
)

func main() {
	configFile := flag.String("config", "", "path to a yaml, json or toml config file")
	envFile := flag.String("env", ".env", "path to a .env file, ignored when missing")
	flag.Parse()

	opts := []config.Option{config.WithEnvFile(*envFile)}
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, os.Stdout)
	logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(cfg.Redacted()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped cleanly")
}
