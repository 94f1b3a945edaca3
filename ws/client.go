package ws

import (
	"net/http"
	"os"
	"time"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/internal/config"
	"github.com/luciancaetano/roomwire/internal/dispatch"
	"github.com/luciancaetano/roomwire/internal/throttle"
	"github.com/luciancaetano/roomwire/internal/websocket"
)

type Config = websocket.SessionConfig
type Hooks = websocket.Hooks
type Account = dispatch.Account
type PasswordFunc = websocket.PasswordFunc
type ThrottleConfig = throttle.Config
type Tier = throttle.Tier
type FileConfig = config.Config

const (
	TierDefault   = throttle.TierDefault
	TierTrusted   = throttle.TierTrusted
	TierPublicBot = throttle.TierPublicBot
)

// New creates a disconnected client. Call Connect to start the session.
//
// Example:
//
//	client := ws.New(ws.NewConfig("Echo Bot", os.Getenv("BOT_PASSWORD")))
//	client.RegisterHandler(roomwire.EventReady, func(ev roomwire.Event) {
//	    log.Printf("logged in as %s", ev.(roomwire.ReadyEvent).Self.Name)
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
func New(cfg *Config) roomwire.Client {
	return websocket.NewSession(cfg)
}

// NewConfig returns a configuration for the public server with default
// timeouts and throttling. An empty name connects as a guest.
func NewConfig(name, password string) *Config {
	cfg := FromFileConfig(config.Default())
	cfg.Account.Name = name
	cfg.Password = password
	return cfg
}

// LoadConfig reads a .env file, the YAML file at path and ROOMWIRE_*
// environment overrides. A missing file falls back to defaults.
func LoadConfig(path string) (*Config, error) {
	fc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return FromFileConfig(fc), nil
}

// FromFileConfig converts a loaded file configuration. The logger writes to
// stderr at the configured level and format.
func FromFileConfig(fc *FileConfig) *Config {
	timeout := fc.Server.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &Config{
		ConfigURL:    fc.Server.ConfigURL,
		LoginURL:     fc.Server.LoginURL,
		WebsocketURL: fc.Server.WebsocketURL,
		HTTPClient:   &http.Client{Timeout: timeout},
		Account: Account{
			Name:     fc.Account.Name,
			Avatar:   fc.Account.Avatar,
			Status:   fc.Account.Status,
			Autojoin: fc.Account.Autojoin,
		},
		Password:          fc.Account.Password,
		LoginRetry:        fc.Session.LoginRetry,
		ReconnectInterval: fc.Session.ReconnectInterval,
		RoomQueryTimeout:  fc.Session.RoomQueryTimeout,
		UserQueryTimeout:  fc.Session.UserQueryTimeout,
		Throttle: &ThrottleConfig{
			ChunkSize: fc.Throttle.ChunkSize,
			Intervals: map[Tier]time.Duration{
				TierDefault:   fc.Throttle.Interval,
				TierTrusted:   fc.Throttle.TrustedInterval,
				TierPublicBot: fc.Throttle.PublicBotInterval,
			},
		},
		Logger: fc.Logging.NewLogger(os.Stderr),
	}
}
