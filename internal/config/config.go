package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/SmitUplenchwar2687/wsreplay/internal/playback"
	"github.com/SmitUplenchwar2687/wsreplay/internal/session"
)

// Record delimiters accepted in config files.
const (
	DelimiterNewline = "newline"
	DelimiterNull    = "null"
)

// ErrNoSource is returned by Validate when no capture file is configured.
var ErrNoSource = errors.New("no capture file given")

// Config is the top-level configuration for a wsreplay process.
type Config struct {
	Server ServerConfig `json:"server"`
	Replay ReplayConfig `json:"replay"`
	Log    LogConfig    `json:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// ReplayConfig describes what every session replays.
type ReplayConfig struct {
	Source    string          `json:"source"`
	Delimiter string          `json:"delimiter"`
	Interval  time.Duration   `json:"interval"`
	Upfront   playback.Policy `json:"upfront"`
	Trace     string          `json:"trace,omitempty"` // NDJSON delivery trace path
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `json:"level"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:3333",
		},
		Replay: ReplayConfig{
			Delimiter: DelimiterNewline,
			Interval:  time.Second,
			Upfront:   playback.Percentage(0.8),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Replay.Source == "" {
		return ErrNoSource
	}
	if _, err := ParseDelimiter(c.Replay.Delimiter); err != nil {
		return err
	}
	if c.Replay.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Replay.Interval)
	}
	if err := c.Replay.Upfront.Validate(); err != nil {
		return err
	}
	return nil
}

// Session builds the immutable per-session config shared by every
// connection. Call Validate first.
func (c Config) Session() (*session.Config, error) {
	delim, err := ParseDelimiter(c.Replay.Delimiter)
	if err != nil {
		return nil, err
	}
	sc := &session.Config{
		Delimiter:  delim,
		SourcePath: c.Replay.Source,
		Interval:   c.Replay.Interval,
		Upfront:    c.Replay.Upfront,
	}
	return sc, sc.Validate()
}

// ParseDelimiter maps a delimiter name to its byte.
func ParseDelimiter(name string) (byte, error) {
	switch name {
	case DelimiterNewline:
		return '\n', nil
	case DelimiterNull:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown delimiter %q, must be one of: newline, null", name)
	}
}

// LoadFile reads a JSON config file and merges it with defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	// Use a raw intermediate struct to handle duration parsing.
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}
	if raw.Replay.Source != "" {
		cfg.Replay.Source = raw.Replay.Source
	}
	if raw.Replay.Delimiter != "" {
		cfg.Replay.Delimiter = raw.Replay.Delimiter
	}
	if raw.Replay.Interval != "" {
		d, err := time.ParseDuration(raw.Replay.Interval)
		if err != nil {
			return cfg, fmt.Errorf("parsing replay.interval: %w", err)
		}
		cfg.Replay.Interval = d
	}
	if raw.Replay.Upfront != nil {
		cfg.Replay.Upfront = *raw.Replay.Upfront
	}
	if raw.Replay.Trace != "" {
		cfg.Replay.Trace = raw.Replay.Trace
	}
	if raw.Log.Level != "" {
		cfg.Log.Level = raw.Log.Level
	}

	return cfg, nil
}

// rawConfig is the JSON-friendly representation with string durations.
type rawConfig struct {
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Replay struct {
		Source    string           `json:"source"`
		Delimiter string           `json:"delimiter"`
		Interval  string           `json:"interval"`
		Upfront   *playback.Policy `json:"upfront"`
		Trace     string           `json:"trace"`
	} `json:"replay"`
	Log struct {
		Level string `json:"level"`
	} `json:"log"`
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `{
  "server": {
    "addr": "127.0.0.1:3333"
  },
  "replay": {
    "source": "capture.log",
    "delimiter": "newline",
    "interval": "1s",
    "upfront": "perc:0.8"
  },
  "log": {
    "level": "info"
  }
}
`
	return os.WriteFile(path, []byte(example), 0o644)
}
