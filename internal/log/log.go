// Package log provides structured logging for go-borp.
// It wraps zerolog with a console writer for development and JSON for production.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger zerolog.Logger
	once   sync.Once
	ready  bool
	mu     sync.RWMutex
)

// Init initializes the global logger with the specified level.
// Valid levels: "trace", "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		var out io.Writer = os.Stdout
		if os.Getenv("GO_ENV") != "production" {
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		setLogger(New(out, level))
	})
}

// New builds a logger writing to w at the given level.
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogger replaces the global logger. Mostly useful in tests.
func SetLogger(l zerolog.Logger) {
	setLogger(l)
}

func setLogger(l zerolog.Logger) {
	mu.Lock()
	logger = l
	ready = true
	mu.Unlock()
}

// L returns the global logger instance.
func L() *zerolog.Logger {
	mu.RLock()
	ok := ready
	mu.RUnlock()
	if !ok {
		Init("info")
	}
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}

// Debug starts a debug level event.
func Debug() *zerolog.Event {
	return L().Debug()
}

// Info starts an info level event.
func Info() *zerolog.Event {
	return L().Info()
}

// Warn starts a warn level event.
func Warn() *zerolog.Event {
	return L().Warn()
}

// Error starts an error level event.
func Error() *zerolog.Event {
	return L().Error()
}
