package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultConfigURL = "https://play.pokemonshowdown.com/crossdomain.php?host=sim3.psim.us&path="
	DefaultLoginURL  = "https://play.pokemonshowdown.com/action.php"

	// Session defaults
	DefaultLoginRetry        = 0 * time.Second // no retry
	DefaultReconnectInterval = 0 * time.Second // no auto-reconnect
	DefaultRoomQueryTimeout  = 5 * time.Second
	DefaultUserQueryTimeout  = 8 * time.Second
	DefaultHTTPTimeout       = 30 * time.Second

	// Throttle defaults
	DefaultChunkSize         = 3
	DefaultThrottle          = 600 * time.Millisecond
	DefaultTrustedThrottle   = 100 * time.Millisecond
	DefaultPublicBotThrottle = 25 * time.Millisecond

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ROOMWIRE_"
)
