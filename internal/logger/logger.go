package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

const LoggerKey contextKey = "logger"

// AddLoggerToContext creates a logger for the given level and stores it in the returned context.
func AddLoggerToContext(ctx context.Context, logLevel string, jsonOutput bool) context.Context {
	return WithLogger(ctx, NewLogger(logLevel, jsonOutput))
}

// WithLogger stores an existing logger in the context.
func WithLogger(ctx context.Context, log *zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, log)
}

// NewLogger creates a zerolog logger writing to stderr and sets the global log level.
func NewLogger(logLevel string, jsonOutput bool) *zerolog.Logger {
	SetLevel(logLevel)

	if jsonOutput {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return &logger
	}

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	output.FormatLevel = func(i interface{}) string {
		var l string
		if ll, ok := i.(string); ok {
			switch ll {
			case "debug":
				l = colorize(ll, 36) // cyan
			case "info":
				l = colorize(ll, 34) // blue
			case "warn":
				l = colorize(ll, 33) // yellow
			case "error":
				l = colorize(ll, 31) // red
			case "fatal":
				l = colorize(ll, 35) // magenta
			case "panic":
				l = colorize(ll, 41) // white on red background
			default:
				l = colorize(ll, 37) // white
			}
		} else {
			if i == nil {
				l = colorize("???", 37)
			} else {
				lStr := strings.ToUpper(fmt.Sprintf("%s", i))
				if len(lStr) > 3 {
					lStr = lStr[:3]
				}
				l = lStr
			}
		}
		return fmt.Sprintf("| %s |", l)
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	return &logger
}

// SetLevel changes the global log level. Unknown levels fall back to info.
func SetLevel(logLevel string) {
	zerolog.SetGlobalLevel(getLogLevel(logLevel))
}

// FromContext extracts the main logger from the context.
func FromContext(ctx context.Context) *zerolog.Logger {
	logger, ok := ctx.Value(LoggerKey).(*zerolog.Logger)
	if !ok {
		defaultLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return &defaultLogger
	}
	return logger
}

// HandleWarnings logs configuration warnings collected before the logger existed.
func HandleWarnings(log *zerolog.Logger, warnings []string) {
	for _, warning := range warnings {
		log.Warn().Msg(warning)
	}
}

func getLogLevel(logLevel string) zerolog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

func colorize(s string, color int) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}
