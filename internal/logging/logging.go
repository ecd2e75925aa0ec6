// Package logging configures the process-wide zerolog logger and hands
// out component-scoped child loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls global logger behavior.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Unknown values
	// fall back to info.
	Level string
	// Format is "console" for human-readable output or "json" for raw
	// structured lines. Unknown values fall back to console.
	Format string
	// EnableCaller annotates events with file:line of the call site.
	EnableCaller bool
	// Output overrides the destination (default os.Stderr).
	Output io.Writer
}

var (
	mu   sync.Mutex
	base = newLogger(Config{})
)

// Init replaces the global base logger. Safe to call more than once;
// Component loggers created afterwards pick up the new configuration.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(cfg)
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base.With().Str("component", name).Logger()
}

func newLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).Level(parseLevel(cfg.Level))
	ctx := logger.With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
