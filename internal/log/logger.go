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
	Level  string    // optional log level ("debug", "info", etc.)
	Output io.Writer // optional writer (defaults to os.Stderr)
}

var (
	mu   sync.Mutex
	base = zerolog.New(os.Stderr).With().Timestamp().Str("service", "wsreplay").Logger()
)

// Configure replaces the global logger. An empty level falls back to
// LOG_LEVEL and then to info.
func Configure(cfg Config) error {
	level := zerolog.InfoLevel
	name := cfg.Level
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if name != "" {
		parsed, err := zerolog.ParseLevel(name)
		if err != nil {
			return err
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	mu.Lock()
	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", "wsreplay").
		Logger()
	mu.Unlock()
	return nil
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Canonical field names.
const (
	FieldComponent  = "component"
	FieldSessionID  = "session_id"
	FieldRemoteAddr = "remote_addr"
	FieldPath       = "path"
	FieldPhase      = "phase"
	FieldState      = "state"
)
