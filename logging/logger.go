// Package logging adapts zerolog to the auth.Logger interface and provides
// the request logger and activity sink used by the server.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	auth "github.com/goliatone/go-auth-tokens"
	"github.com/goliatone/go-auth-tokens/config"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatPretty  = "pretty"

	FieldComponent = "component"
	FieldError     = "error"
)

// Logger wraps zerolog.Logger and implements auth.Logger. Arguments after
// the message are read as key/value pairs.
type Logger struct {
	zl zerolog.Logger
}

var _ auth.Logger = (*Logger)(nil)

// New builds a logger from the log section of the config. A nil writer
// logs to stdout.
func New(cfg config.Log, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	switch format := strings.ToLower(cfg.Format); format {
	case FormatConsole, FormatPretty:
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    format != FormatPretty,
		}
	}

	return &Logger{
		zl: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// Wrap adapts an existing zerolog logger
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Nop discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Named returns a child logger tagged with a component name
func (l *Logger) Named(component string) *Logger {
	return &Logger{zl: l.zl.With().Str(FieldComponent, component).Logger()}
}

// Zerolog exposes the underlying logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, args ...any) {
	write(l.zl.Debug(), msg, args)
}

func (l *Logger) Info(msg string, args ...any) {
	write(l.zl.Info(), msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	write(l.zl.Warn(), msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	write(l.zl.Error(), msg, args)
}

func write(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}

	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			event = event.Interface("!BADKEY", args[i])
			break
		}

		switch value := args[i+1].(type) {
		case error:
			event = event.AnErr(key, value)
		case string:
			event = event.Str(key, value)
		case time.Duration:
			event = event.Dur(key, value)
		case fmt.Stringer:
			event = event.Stringer(key, value)
		default:
			event = event.Interface(key, value)
		}
	}

	event.Msg(msg)
}
