package roomwire

import "time"

// Outbound command templates. Every outbound line is "<roomid>|<text>";
// global commands use an empty room id.
const (
	CmdRename      = "/trn %s,0,%s"
	CmdPM          = "/pm %s,%s"
	CmdUserDetails = "/cmd userdetails %s"
	CmdRoomInfo    = "/cmd roominfo %s"
	CmdJoin        = "/join %s"
	CmdLeave       = "/leave %s"
	CmdIP          = "/ip"
	CmdAutojoin    = "/autojoin %s"
	CmdAvatar      = "/avatar %s"
	CmdStatus      = "/status %s"
)

// Query reply kinds carried by "|queryresponse|<kind>|<json>".
const (
	QueryUserDetails = "userdetails"
	QueryRoomInfo    = "roominfo"
)

// Standard error messages
const (
	// Protocol errors
	ErrMalformedFrame    = "malformed frame"
	ErrMalformedPayload  = "malformed payload"
	ErrUnknownQueryReply = "no pending query for reply"

	// Connection errors
	ErrNotConnected       = "client is not connected"
	ErrAlreadyConnected   = "client already connected"
	ErrConnectionClosed   = "client connection is closed"
	ErrContextCancelled   = "client context cancelled"
	ErrConfigDiscovery    = "failed to discover server config"
	ErrThrottleStopped    = "send queue stopped"
	ErrEmptyMessage       = "message body is empty"
	ErrInvalidWaitTarget  = "wait target has no id"
	ErrInvalidWaitTimeout = "wait timeout must be positive"

	// Login errors
	ErrLoginShortResponse = "login response too short"
	ErrLoginHeavyLoad     = "login server under heavy load"
	ErrLoginRejected      = "login rejected"
	ErrLoginMalformed     = "malformed login response"
)

// Query timeouts
const (
	RoomQueryTimeout = 5 * time.Second
	UserQueryTimeout = 8 * time.Second
)

// Throttle intervals by account tier
const (
	DefaultThrottle   = 600 * time.Millisecond
	TrustedThrottle   = 100 * time.Millisecond
	PublicBotThrottle = 25 * time.Millisecond
	DefaultChunkSize  = 3
)

// Keepalive
const (
	PingInterval = 54 * time.Second
	WriteTimeout = 10 * time.Second
)
