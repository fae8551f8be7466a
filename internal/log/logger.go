// Package log configures the service's zerolog logger and carries request-scoped
// fields through contexts.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // "debug", "info", ...; falls back to FLIGHTCLAIM_LOG_LEVEL
	Format  string    // "json" (default) or "console"
	Output  io.Writer // defaults to os.Stderr
	Service string
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "flightclaim").Logger()
)

// Configure replaces the base logger. It is called once at startup and again by tests
// that need to capture output.
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	lv := cfg.Level
	if lv == "" {
		lv = os.Getenv("FLIGHTCLAIM_LOG_LEVEL")
	}
	if lv != "" {
		if parsed, err := zerolog.ParseLevel(lv); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	service := cfg.Service
	if service == "" {
		service = "flightclaim"
	}

	mu.Lock()
	base = zerolog.New(w).Level(level).With().Timestamp().Str(FieldService, service).Logger()
	mu.Unlock()
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}
