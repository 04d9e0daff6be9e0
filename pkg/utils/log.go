package utils

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogHandlerType string

const (
	HandlerTypeText LogHandlerType = "text"
	HandlerTypeJSON LogHandlerType = "json"
)

type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

var (
	handlerTypeFlag = flag.String("log_handler_type", string(HandlerTypeJSON), "Log handler type: json/text")
	logLevelFlag    = flag.String("log_level", string(LogLevelInfo), "Log level: debug/info/warn/error")
)

// newLogHandler builds a slog handler writing to `w`. Unsupported values raise an invariant and fall back to
// a JSON handler at info level.
func newLogHandler(w io.Writer, handlerType LogHandlerType, logLevel LogLevel) slog.Handler {
	slogLevel := slog.LevelInfo
	switch logLevel {
	case LogLevelDebug:
		slogLevel = slog.LevelDebug
	case LogLevelInfo:
		slogLevel = slog.LevelInfo
	case LogLevelWarn:
		slogLevel = slog.LevelWarn
	case LogLevelError:
		slogLevel = slog.LevelError
	default:
		RaiseInvariant("log", "unsupported_log_level", "Got an unsupported log level.",
			"logLevel", logLevel)
	}

	handlerOptions := slog.HandlerOptions{Level: slogLevel}
	switch handlerType {
	case HandlerTypeJSON:
		return slog.NewJSONHandler(w, &handlerOptions)
	case HandlerTypeText:
		return slog.NewTextHandler(w, &handlerOptions)
	default:
		RaiseInvariant("log", "unsupported_handler_type", "Got an unsupported handler type.",
			"handlerType", handlerType)
		return slog.NewJSONHandler(w, &handlerOptions)
	}
}

// InitLogging configures default logger of slog. Note that this method must be called after flag.Parse().
func InitLogging() {
	handler := newLogHandler(os.Stdout,
		LogHandlerType(strings.ToLower(*handlerTypeFlag)), LogLevel(strings.ToLower(*logLevelFlag)))
	// `SetDefault` happens atomically and doesn't panic when called in multiple goroutines.
	slog.SetDefault(slog.New(handler))
	slog.Debug("Log handler configured successfully.", "type", *handlerTypeFlag, "logLevel", *logLevelFlag)
}
