package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/roomwire"
)

// readTimeout allows one missed pong before the read loop gives up.
const readTimeout = 2 * roomwire.PingInterval

// Conn is one dialed websocket. Writes go through a single write pump that
// also sends keepalive pings; reads are delivered in order to onFrame from a
// single read loop.
type Conn struct {
	id     string
	conn   *websocket.Conn
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan []byte
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger

	pingInterval time.Duration
	done         chan struct{}
}

// ConnConfig configures a dial.
type ConnConfig struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	// PingInterval defaults to roomwire.PingInterval
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Dial opens the websocket and starts the write pump. Call Run to start
// reading.
func Dial(ctx context.Context, cfg ConnConfig) (*Conn, error) {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 45 * time.Second}
	}
	ws, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, &roomwire.TransportError{Op: "dial " + cfg.URL, Err: err}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = roomwire.PingInterval
	}

	connCtx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	c := &Conn{
		id:           id,
		conn:         ws,
		url:          cfg.URL,
		ctx:          connCtx,
		cancel:       cancel,
		sendCh:       make(chan []byte, 256),
		pingInterval: ping,
		logger:       logger.With("conn", id),
		done:         make(chan struct{}),
	}

	go c.writePump()
	return c, nil
}

// ID returns the connection's unique identifier
func (c *Conn) ID() string {
	return c.id
}

// URL returns the dialed endpoint
func (c *Conn) URL() string {
	return c.url
}

// Context is cancelled when the connection closes
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Done is closed once the read loop has exited
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send queues lines for the write pump. Each line is its own text message.
func (c *Conn) Send(ctx context.Context, lines ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New(roomwire.ErrConnectionClosed)
	}

	// The read lock is held while queueing so Close cannot close sendCh
	// underneath us.
	for _, line := range lines {
		select {
		case c.sendCh <- []byte(line):
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return errors.New(roomwire.ErrContextCancelled)
		}
	}
	return nil
}

// Close closes the connection with a normal closure
func (c *Conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)

	close(c.sendCh)
	return c.conn.Close()
}

// IsAlive returns true if the connection is still open
func (c *Conn) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Run reads frames until the connection fails or closes, passing each one to
// onFrame on the calling goroutine. It returns the error that ended the
// loop; a locally requested close returns nil.
func (c *Conn) Run(onFrame func(data string)) error {
	defer close(c.done)
	defer c.cancel()

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.IsAlive() {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("unexpected websocket close", "error", err)
			}
			return &roomwire.TransportError{Op: "read", Err: err}
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		onFrame(string(data))
	}
}

// writePump pumps messages from the send channel to the websocket connection
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(roomwire.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("websocket write failed", "error", err)
				c.fail()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(roomwire.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("websocket ping failed", "error", err)
				c.fail()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// fail tears down the socket after a write error so the read loop returns.
func (c *Conn) fail() {
	c.cancel()
	_ = c.conn.Close()
}

func (c *Conn) String() string {
	return fmt.Sprintf("conn(%s %s)", c.id, c.url)
}
