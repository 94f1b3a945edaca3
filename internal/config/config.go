// Package config loads client configuration from a .env file, a YAML file
// and ROOMWIRE_* environment variables, in that order of precedence from
// lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Server holds the side channel and socket endpoints
type Server struct {
	ConfigURL string `yaml:"config_url"`
	LoginURL  string `yaml:"login_url"`
	// WebsocketURL skips config discovery when set
	WebsocketURL string        `yaml:"websocket_url"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// Account holds the login identity and profile settings
type Account struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Avatar   string   `yaml:"avatar"`
	Status   string   `yaml:"status"`
	Autojoin []string `yaml:"autojoin"`
}

// Session holds retry and timeout policy
type Session struct {
	LoginRetry        time.Duration `yaml:"login_retry"`        // 0 disables retry
	ReconnectInterval time.Duration `yaml:"reconnect_interval"` // 0 disables auto-reconnect
	RoomQueryTimeout  time.Duration `yaml:"room_query_timeout"`
	UserQueryTimeout  time.Duration `yaml:"user_query_timeout"`
}

// Throttle holds the outbound send limits
type Throttle struct {
	ChunkSize         int           `yaml:"chunk_size"`
	Interval          time.Duration `yaml:"interval"`
	TrustedInterval   time.Duration `yaml:"trusted_interval"`
	PublicBotInterval time.Duration `yaml:"public_bot_interval"`
}

// Logging holds the logger settings
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Config is the full client configuration
type Config struct {
	Server   Server   `yaml:"server"`
	Account  Account  `yaml:"account"`
	Session  Session  `yaml:"session"`
	Throttle Throttle `yaml:"throttle"`
	Logging  Logging  `yaml:"logging"`
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		Server: Server{
			ConfigURL:   DefaultConfigURL,
			LoginURL:    DefaultLoginURL,
			HTTPTimeout: DefaultHTTPTimeout,
		},
		Session: Session{
			LoginRetry:        DefaultLoginRetry,
			ReconnectInterval: DefaultReconnectInterval,
			RoomQueryTimeout:  DefaultRoomQueryTimeout,
			UserQueryTimeout:  DefaultUserQueryTimeout,
		},
		Throttle: Throttle{
			ChunkSize:         DefaultChunkSize,
			Interval:          DefaultThrottle,
			TrustedInterval:   DefaultTrustedThrottle,
			PublicBotInterval: DefaultPublicBotThrottle,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads configuration. A missing .env file or a missing YAML file is
// not an error; an empty path skips the YAML step.
func Load(path string) (*Config, error) {
	// A missing .env is fine, the environment and YAML may cover everything.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := loadFromYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromYAML overlays the YAML file onto cfg
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnv overlays ROOMWIRE_* variables onto cfg
func loadFromEnv(cfg *Config) error {
	setString(&cfg.Server.ConfigURL, "CONFIG_URL")
	setString(&cfg.Server.LoginURL, "LOGIN_URL")
	setString(&cfg.Server.WebsocketURL, "WEBSOCKET_URL")
	setString(&cfg.Account.Name, "NAME")
	setString(&cfg.Account.Password, "PASSWORD")
	setString(&cfg.Account.Avatar, "AVATAR")
	setString(&cfg.Account.Status, "STATUS")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	if v := getEnv("AUTOJOIN"); v != "" {
		cfg.Account.Autojoin = nil
		for _, room := range strings.Split(v, ",") {
			if room = strings.TrimSpace(room); room != "" {
				cfg.Account.Autojoin = append(cfg.Account.Autojoin, room)
			}
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", &cfg.Server.HTTPTimeout},
		{"LOGIN_RETRY", &cfg.Session.LoginRetry},
		{"RECONNECT_INTERVAL", &cfg.Session.ReconnectInterval},
		{"ROOM_QUERY_TIMEOUT", &cfg.Session.RoomQueryTimeout},
		{"USER_QUERY_TIMEOUT", &cfg.Session.UserQueryTimeout},
		{"THROTTLE_INTERVAL", &cfg.Throttle.Interval},
	}
	for _, d := range durations {
		v := getEnv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	if v := getEnv("CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCHUNK_SIZE: %w", EnvPrefix, err)
		}
		cfg.Throttle.ChunkSize = n
	}
	return nil
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.Server.WebsocketURL == "" && c.Server.ConfigURL == "" {
		return fmt.Errorf("server.config_url or server.websocket_url must be set")
	}
	if c.Account.Password != "" && c.Account.Name == "" {
		return fmt.Errorf("account.name must be set when a password is configured")
	}
	if c.Session.LoginRetry < 0 || c.Session.ReconnectInterval < 0 {
		return fmt.Errorf("session intervals must be non-negative")
	}
	if c.Session.RoomQueryTimeout <= 0 || c.Session.UserQueryTimeout <= 0 {
		return fmt.Errorf("session query timeouts must be positive")
	}
	if c.Throttle.ChunkSize <= 0 {
		return fmt.Errorf("throttle.chunk_size must be positive")
	}
	if c.Throttle.Interval <= 0 || c.Throttle.TrustedInterval <= 0 || c.Throttle.PublicBotInterval <= 0 {
		return fmt.Errorf("throttle intervals must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	return nil
}

// NewLogger builds a logger writing to w at the configured level and format.
func (l Logging) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel maps the configured level name.
func (l Logging) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v := getEnv(key); v != "" {
		*dst = v
	}
}

// getEnv reads a prefixed environment variable
func getEnv(key string) string {
	return os.Getenv(EnvPrefix + key)
}
