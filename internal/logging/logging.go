// Package logging builds the zerolog loggers used by the chat binaries.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "CHAT_LOG_LEVEL"
	EnvLogTimestamp = "CHAT_LOG_TIMESTAMP"
	EnvLogNoColor   = "CHAT_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls the console writer.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

// New returns a logger for app writing to stderr, with env overrides applied.
func New(app string, profile Profile) zerolog.Logger {
	cfg := DefaultConfig(profile)
	ApplyEnvOverrides(&cfg)
	return NewWithWriter(os.Stderr, app, cfg)
}

func NewWithWriter(w io.Writer, app string, cfg Config) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    cfg.NoColor,
		TimeFormat: time.TimeOnly,
	}
	ctx := zerolog.New(output).Level(cfg.Level).With().Str("app", app)
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func ApplyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel accepts the level names used in config files and env vars.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
