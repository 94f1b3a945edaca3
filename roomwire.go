package roomwire

import (
	"context"
	"time"

	"github.com/luciancaetano/roomwire/deferred"
)

// Client is a connection to a multiplexed room server.
//
// One websocket carries every room the session has joined plus direct
// messages. Inbound frames are dispatched on a single goroutine in arrival
// order, and registered handlers run on that goroutine.
//
// Example usage:
//
//	import "github.com/luciancaetano/roomwire/ws"
//
//	cfg, _ := ws.LoadConfig("config.yml")
//	client := ws.New(cfg)
//
//	client.RegisterHandler(roomwire.EventMessageCreated, func(ev roomwire.Event) {
//	    msg := ev.(roomwire.MessageCreatedEvent).Message
//	    if msg.Content == "!ping" {
//	        client.Send(ctx, msg.Target.ID, "pong")
//	    }
//	})
//
//	client.Connect(ctx)
type Client interface {
	// Connect discovers the server endpoint, opens the websocket and starts
	// dispatching. Login happens automatically when the server issues its
	// challenge.
	//
	// Returns an error if discovery or the websocket handshake fails, or if
	// the client is already connected.
	Connect(ctx context.Context) error

	// Disconnect closes the websocket and clears the connected and logged-in
	// flags. Pending queries and waits are left to their timeouts.
	Disconnect(ctx context.Context) error

	// Connected reports whether the websocket is open.
	Connected() bool

	// LoggedIn reports whether the server accepted the session's name.
	LoggedIn() bool

	// Send sends text to a room through the outbound throttle. Multi-line
	// text is split and queued. Use GlobalRoom for global commands.
	//
	// The returned Deferred resolves once the lines have left the queue.
	Send(ctx context.Context, roomID, text string) (*deferred.Deferred[struct{}], error)

	// SendPM sends a direct message to a user.
	SendPM(ctx context.Context, userID, text string) (*deferred.Deferred[struct{}], error)

	// Join and Leave send the corresponding room commands.
	Join(ctx context.Context, roomID string) error
	Leave(ctx context.Context, roomID string) error

	// QueryUser asks the server for a user's details. The result falls back
	// to the cached user when the query times out.
	QueryUser(userID string) *deferred.Deferred[*User]

	// QueryRoom asks the server for a room's details. With
	// forceRetryOnTimeout the query is resent once before rejecting.
	QueryRoom(roomID string, forceRetryOnTimeout bool) *deferred.Deferred[*Room]

	// AwaitMessages collects up to maxCount future messages posted to target
	// that satisfy match. On timeout the Deferred rejects with a
	// *WaitTimeoutError carrying the partial matches. A non-positive timeout
	// rejects immediately without registering the wait.
	//
	// Example:
	//
	//	d := client.AwaitMessages(roomwire.RoomTarget("lobby"), func(m *roomwire.Message) bool {
	//	    return m.AuthorID() == "bob"
	//	}, 1, time.Second)
	//	msgs, err := d.Wait(ctx)
	AwaitMessages(target Target, match func(*Message) bool, maxCount int, timeout time.Duration) *deferred.Deferred[[]*Message]

	// Room, Rooms, User and Self return snapshots of cached state. They may
	// be superseded by the next dispatched frame.
	Room(roomID string) (*Room, bool)
	Rooms() []*Room
	User(userID string) (*User, bool)
	Self() *SelfUser

	// RegisterHandler registers a handler for an event kind. EventAny
	// receives every event. Handlers run synchronously on the dispatch
	// goroutine and must not block.
	RegisterHandler(kind EventKind, handler EventHandler)
}
