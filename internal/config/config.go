// Package config loads the chat settings from a TOML file, a .env file and
// CHAT_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/iamr8/ChatConsole/internal/resolve"
	"github.com/iamr8/ChatConsole/pkg/protocol"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Host       string        `toml:"host" env:"CHAT_HOST" validate:"required,hostname_rfc1123|ip"`
	Port       int           `toml:"port" env:"CHAT_PORT" validate:"gte=0,lte=65535"`
	Alias      string        `toml:"alias" env:"CHAT_ALIAS" validate:"excludesall=<>"`
	Transport  string        `toml:"transport" env:"CHAT_TRANSPORT" validate:"oneof=tcp ws"`
	WebSocket  bool          `toml:"websocket" env:"CHAT_WEBSOCKET"`
	RateWindow time.Duration `toml:"rate_window" env:"CHAT_RATE_WINDOW" validate:"gt=0"`
	LogLevel   string        `toml:"log_level" env:"CHAT_LOG_LEVEL" validate:"oneof=trace debug info warn warning error off"`

	MaxFrameBytes int `toml:"max_frame_bytes" env:"CHAT_MAX_FRAME_BYTES" validate:"gte=64"`
}

func Default() Config {
	return Config{
		Host:       "localhost",
		Port:       resolve.ChatPort,
		Transport:  TransportTCP,
		RateWindow: time.Second,
		LogLevel:   "info",

		MaxFrameBytes: protocol.DefaultMaxFrameBytes,
	}
}

// Load builds a Config. An empty path skips the TOML file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
	}
	if err := loadDotEnv(DotEnvFile); err != nil {
		return Config{}, err
	}
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env failed: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config dotenv failed (%s): %w", path, err)
	}
	return nil
}

var validate = validator.New()

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
