package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/deferred"
	"github.com/luciancaetano/roomwire/internal/auth"
	"github.com/luciancaetano/roomwire/internal/cache"
	"github.com/luciancaetano/roomwire/internal/correlator"
	"github.com/luciancaetano/roomwire/internal/dispatch"
	"github.com/luciancaetano/roomwire/internal/protocol"
	"github.com/luciancaetano/roomwire/internal/throttle"
	"github.com/luciancaetano/roomwire/internal/waits"
)

// PasswordFunc supplies the account password at login time.
type PasswordFunc func(ctx context.Context) (string, error)

// Hooks observe the raw transport.
type Hooks struct {
	OnRawFrame func(data string)
	OnOpen     func(url string)
	OnClose    func(err error)
}

// SessionConfig holds the session configuration
type SessionConfig struct {
	// ConfigURL and LoginURL are the HTTP side channel endpoints
	ConfigURL string
	LoginURL  string
	// WebsocketURL skips config discovery when set
	WebsocketURL string
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer

	Account      dispatch.Account
	Password     string
	PasswordFunc PasswordFunc

	// LoginRetry is the delay before retrying a failed login. 0 disables retry.
	LoginRetry time.Duration
	// ReconnectInterval enables automatic reconnects after the socket drops.
	ReconnectInterval time.Duration
	RoomQueryTimeout  time.Duration
	UserQueryTimeout  time.Duration
	PingInterval      time.Duration

	Throttle *throttle.Config
	// Registerer enables Prometheus metrics when set
	Registerer prometheus.Registerer
	Hooks      Hooks
	Logger     *slog.Logger
}

// Session is a logged-in client connection. It implements roomwire.Client.
type Session struct {
	cfg     SessionConfig
	logger  *slog.Logger
	metrics *Metrics

	auth       *auth.Client
	cache      *cache.Cache
	throttle   *throttle.Throttle
	correlator *correlator.Correlator
	waits      *waits.Registry
	bus        *dispatch.Bus
	dispatcher *dispatch.Dispatcher

	mu         sync.RWMutex
	conn       *Conn
	loopDone   chan struct{}
	stopping   bool
	loginTimer *time.Timer
}

// NewSession creates a disconnected session.
func NewSession(cfg *SessionConfig) *Session {
	if cfg == nil {
		cfg = &SessionConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:    *cfg,
		logger: logger,
		auth: auth.New(auth.Config{
			ConfigURL:  cfg.ConfigURL,
			LoginURL:   cfg.LoginURL,
			HTTPClient: cfg.HTTPClient,
		}),
		cache: cache.New(),
		waits: waits.New(),
		bus:   dispatch.NewBus(logger),
	}

	metrics, err := newMetrics(cfg.Registerer)
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}
	s.metrics = metrics

	throttleCfg := throttle.DefaultConfig()
	if cfg.Throttle != nil {
		c := *cfg.Throttle
		throttleCfg = &c
	}
	throttleCfg.OnDepth = s.metrics.depth
	throttleCfg.Logger = logger
	s.throttle = throttle.New(throttleCfg, s.flush)

	s.correlator = correlator.New(correlator.Config{
		Send:        s.enqueue,
		Cache:       s.cache,
		Logger:      logger,
		RoomTimeout: cfg.RoomQueryTimeout,
		UserTimeout: cfg.UserQueryTimeout,
		OnTimeout:   s.metrics.queryTimeout,
	})

	s.dispatcher = dispatch.New(dispatch.Config{
		Account:     cfg.Account,
		Cache:       s.cache,
		Correlator:  s.correlator,
		Waits:       s.waits,
		Bus:         s.bus,
		Send:        s.enqueue,
		OnChallenge: s.onChallenge,
		OnTier:      s.throttle.SetTier,
		OnLine:      s.metrics.lineDispatched,
		Logger:      logger,
	})
	return s
}

// flush writes one throttle chunk to the live socket.
func (s *Session) flush(lines []string) error {
	conn := s.currentConn()
	if conn == nil {
		return errors.New(roomwire.ErrNotConnected)
	}
	ctx, cancel := context.WithTimeout(context.Background(), roomwire.WriteTimeout)
	defer cancel()
	if err := conn.Send(ctx, lines...); err != nil {
		return err
	}
	s.metrics.sent(len(lines))
	return nil
}

// enqueue is the fire-and-forget send used by internal collaborators.
func (s *Session) enqueue(lines ...string) {
	s.throttle.Send(lines...)
}

func (s *Session) currentConn() *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Connect discovers the endpoint, dials and starts the read loop.
func (s *Session) Connect(ctx context.Context) error {
	return s.connect(ctx, false)
}

func (s *Session) connect(ctx context.Context, reconnecting bool) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return errors.New(roomwire.ErrAlreadyConnected)
	}
	if reconnecting && s.stopping {
		s.mu.Unlock()
		return errors.New(roomwire.ErrConnectionClosed)
	}
	s.stopping = false
	s.mu.Unlock()

	url := s.cfg.WebsocketURL
	if url == "" {
		serverCfg, err := s.auth.Discover(ctx)
		if err != nil {
			return err
		}
		url = serverCfg.WebsocketURL()
	}

	conn, err := Dial(ctx, ConnConfig{
		URL:          url,
		Dialer:       s.cfg.Dialer,
		PingInterval: s.cfg.PingInterval,
		Logger:       s.logger,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return errors.New(roomwire.ErrAlreadyConnected)
	}
	s.conn = conn
	done := make(chan struct{})
	s.loopDone = done
	s.mu.Unlock()

	s.logger.Info("connected", "url", url)
	if s.cfg.Hooks.OnOpen != nil {
		s.cfg.Hooks.OnOpen(url)
	}
	go s.readLoop(conn, done)
	return nil
}

// readLoop is the single dispatch goroutine for one connection. done is
// closed once the session state has been cleaned up.
func (s *Session) readLoop(conn *Conn, done chan struct{}) {
	defer close(done)

	err := conn.Run(func(data string) {
		s.metrics.frameReceived()
		if s.cfg.Hooks.OnRawFrame != nil {
			s.cfg.Hooks.OnRawFrame(data)
		}
		s.dispatcher.HandleFrame(data)
	})

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	stopping := s.stopping
	s.stopLoginRetryLocked()
	s.mu.Unlock()

	_ = conn.Close()
	s.dispatcher.Reset()

	if err != nil {
		s.logger.Error("connection lost", "error", err)
	} else {
		s.logger.Info("disconnected")
	}
	if s.cfg.Hooks.OnClose != nil {
		s.cfg.Hooks.OnClose(err)
	}

	if err != nil && !stopping && s.cfg.ReconnectInterval > 0 {
		go s.reconnectLoop()
	}
}

func (s *Session) reconnectLoop() {
	for {
		time.Sleep(s.cfg.ReconnectInterval)

		s.mu.RLock()
		stopping := s.stopping
		s.mu.RUnlock()
		if stopping {
			return
		}

		s.metrics.reconnect()
		s.logger.Info("reconnecting")
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		err := s.connect(ctx, true)
		cancel()
		if err == nil {
			return
		}
		if err.Error() == roomwire.ErrAlreadyConnected || err.Error() == roomwire.ErrConnectionClosed {
			return
		}
		s.logger.Warn("reconnect failed", "error", err)
	}
}

// Disconnect closes the socket and waits for the read loop to finish.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	conn, done := s.conn, s.loopDone
	s.stopLoginRetryLocked()
	s.mu.Unlock()

	if conn == nil {
		return errors.New(roomwire.ErrNotConnected)
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug("close returned error", "error", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the socket is open.
func (s *Session) Connected() bool {
	conn := s.currentConn()
	return conn != nil && conn.IsAlive()
}

// LoggedIn reports whether the server accepted the configured name.
func (s *Session) LoggedIn() bool {
	return s.Connected() && s.dispatcher.LoggedIn()
}

// onChallenge runs on the dispatch goroutine, so the HTTP login is moved off it.
func (s *Session) onChallenge(challstr string) {
	if s.cfg.Account.Name == "" {
		s.logger.Info("no account configured, staying a guest")
		return
	}
	conn := s.currentConn()
	if conn == nil {
		return
	}
	go s.login(conn, challstr)
}

func (s *Session) login(conn *Conn, challstr string) {
	ctx := conn.Context()
	name := s.cfg.Account.Name

	password := s.cfg.Password
	if s.cfg.PasswordFunc != nil {
		p, err := s.cfg.PasswordFunc(ctx)
		if err != nil {
			s.loginFailed(conn, challstr, &roomwire.LoginError{Reason: "password provider failed", Err: err})
			return
		}
		password = p
	}

	assertion, err := s.auth.Login(ctx, name, password, challstr)
	if err != nil {
		s.loginFailed(conn, challstr, err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.metrics.loginAttempt("success")
	s.logger.Info("login assertion obtained", "name", name)
	s.throttle.Send(protocol.Command(roomwire.CmdRename, name, assertion))
}

func (s *Session) loginFailed(conn *Conn, challstr string, err error) {
	s.metrics.loginAttempt("failure")
	if conn.Context().Err() != nil {
		return
	}
	if s.cfg.LoginRetry <= 0 {
		s.logger.Error("login failed", "error", err)
		return
	}

	s.logger.Warn("login failed, retrying", "error", err, "retry_in", s.cfg.LoginRetry)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	s.stopLoginRetryLocked()
	s.loginTimer = time.AfterFunc(s.cfg.LoginRetry, func() { s.login(conn, challstr) })
}

func (s *Session) stopLoginRetryLocked() {
	if s.loginTimer != nil {
		s.loginTimer.Stop()
		s.loginTimer = nil
	}
}

// Send sends text to a room through the throttle.
func (s *Session) Send(ctx context.Context, roomID, text string) (*deferred.Deferred[struct{}], error) {
	if err := s.checkSend(ctx, text); err != nil {
		return nil, err
	}
	return s.throttle.Send(protocol.SplitOutbound(roomwire.ToRoomID(roomID), text)...), nil
}

// SendPM sends a direct message; each line of text becomes its own message.
func (s *Session) SendPM(ctx context.Context, userID, text string) (*deferred.Deferred[struct{}], error) {
	if err := s.checkSend(ctx, text); err != nil {
		return nil, err
	}
	target := roomwire.ToID(userID)
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSuffix(l, "\r"); strings.TrimSpace(l) != "" {
			lines = append(lines, protocol.PM(target, l))
		}
	}
	return s.throttle.Send(lines...), nil
}

func (s *Session) checkSend(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New(roomwire.ErrEmptyMessage)
	}
	if !s.Connected() {
		return errors.New(roomwire.ErrNotConnected)
	}
	return nil
}

// Join sends the join command.
func (s *Session) Join(ctx context.Context, roomID string) error {
	return s.command(ctx, roomwire.CmdJoin, roomwire.ToRoomID(roomID))
}

// Leave sends the leave command.
func (s *Session) Leave(ctx context.Context, roomID string) error {
	return s.command(ctx, roomwire.CmdLeave, roomwire.ToRoomID(roomID))
}

func (s *Session) command(ctx context.Context, format, arg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Connected() {
		return errors.New(roomwire.ErrNotConnected)
	}
	s.throttle.Send(protocol.Command(format, arg))
	return nil
}

// QueryUser asks for a user's details.
func (s *Session) QueryUser(userID string) *deferred.Deferred[*roomwire.User] {
	if !s.Connected() {
		return deferred.RejectedWith[*roomwire.User](errors.New(roomwire.ErrNotConnected))
	}
	return s.correlator.QueryUser(userID)
}

// QueryRoom asks for a room's details.
func (s *Session) QueryRoom(roomID string, forceRetryOnTimeout bool) *deferred.Deferred[*roomwire.Room] {
	if !s.Connected() {
		return deferred.RejectedWith[*roomwire.Room](errors.New(roomwire.ErrNotConnected))
	}
	return s.correlator.QueryRoom(roomID, forceRetryOnTimeout)
}

// AwaitMessages registers a message wait on target.
func (s *Session) AwaitMessages(target roomwire.Target, match func(*roomwire.Message) bool, maxCount int, timeout time.Duration) *deferred.Deferred[[]*roomwire.Message] {
	return s.waits.Await(target, match, maxCount, timeout)
}

// Room returns a snapshot of a cached room.
func (s *Session) Room(roomID string) (*roomwire.Room, bool) { return s.cache.Room(roomID) }

// Rooms returns snapshots of every cached room.
func (s *Session) Rooms() []*roomwire.Room { return s.cache.Rooms() }

// User returns a snapshot of a cached user.
func (s *Session) User(userID string) (*roomwire.User, bool) { return s.cache.User(userID) }

// Self returns a snapshot of the session user.
func (s *Session) Self() *roomwire.SelfUser { return s.dispatcher.Self() }

// RegisterHandler registers an event handler.
func (s *Session) RegisterHandler(kind roomwire.EventKind, handler roomwire.EventHandler) {
	s.bus.Register(kind, handler)
}

var _ roomwire.Client = (*Session)(nil)
