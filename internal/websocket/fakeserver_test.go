package websocket

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeServer serves the config and login side channel plus a websocket
// endpoint that records every inbound message.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	received  chan string
	connected chan struct{}
	logins    atomic.Int32

	// onConnect runs after each upgrade, before reading starts
	onConnect func(s *fakeServer)
	// loginReply produces the action.php body
	loginReply func(r *http.Request) string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		received:  make(chan string, 256),
		connected: make(chan struct{}, 16),
		loginReply: func(r *http.Request) string {
			return `]{"actionsuccess":true,"assertion":"` + strings.Repeat("a", 64) + `"}`
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/crossdomain.php", fs.handleConfig)
	mux.HandleFunc("/action.php", fs.handleLogin)
	mux.HandleFunc("/showdown/websocket", fs.handleWebsocket)
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.close)
	return fs
}

func (fs *fakeServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	host, port, _ := net.SplitHostPort(fs.srv.Listener.Addr().String())
	fmt.Fprintf(w, "<script>\nvar config = {\"id\":\"fake\",\"host\":%q,\"port\":%s};\n</script>", host, port)
}

func (fs *fakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	fs.logins.Add(1)
	_ = r.ParseForm()
	_, _ = w.Write([]byte(fs.loginReply(r)))
}

func (fs *fakeServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conn = conn
	fs.mu.Unlock()

	if fs.onConnect != nil {
		fs.onConnect(fs)
	}
	fs.connected <- struct{}{}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.received <- string(data)
	}
}

// wsURL is the websocket endpoint, for sessions that skip discovery.
func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/showdown/websocket"
}

// push writes one frame to the current client.
func (fs *fakeServer) push(frame string) error {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// drop closes the current client socket without a close handshake.
func (fs *fakeServer) drop() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.conn != nil {
		_ = fs.conn.Close()
		fs.conn = nil
	}
}

// next returns the next inbound message, or "" after timeout.
func (fs *fakeServer) next(timeout time.Duration) string {
	select {
	case msg := <-fs.received:
		return msg
	case <-time.After(timeout):
		return ""
	}
}

// waitFor skips inbound messages until one equals want.
func (fs *fakeServer) waitFor(want string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-fs.received:
			if msg == want {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func (fs *fakeServer) waitConnected(timeout time.Duration) bool {
	select {
	case <-fs.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (fs *fakeServer) close() {
	fs.drop()
	fs.srv.Close()
}
