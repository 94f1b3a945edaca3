package roomwire

import "encoding/json"

// EventKind names an event emitted by the dispatcher.
type EventKind string

const (
	EventAny               EventKind = "*"
	EventReady             EventKind = "ready"
	EventQueryResponse     EventKind = "query-response"
	EventRawData           EventKind = "raw-data"
	EventMessageCreated    EventKind = "message-created"
	EventMessageDeleted    EventKind = "message-deleted"
	EventRoomUserAdded     EventKind = "room-user-added"
	EventRoomUserRemoved   EventKind = "room-user-removed"
	EventUserRenamed       EventKind = "user-renamed"
	EventRoomAdded         EventKind = "room-added"
	EventRoomRemoved       EventKind = "room-removed"
	EventTournamentCreated EventKind = "tournament-created"
	EventTournamentUpdated EventKind = "tournament-updated"
	EventTournamentStarted EventKind = "tournament-started"
	EventTournamentEnded   EventKind = "tournament-ended"
	EventHTMLPageOpened    EventKind = "html-page-opened"
	EventHTMLPageClosed    EventKind = "html-page-closed"
	EventChatError         EventKind = "chat-error"
	EventClientError       EventKind = "client-error"
	EventOther             EventKind = "other"
)

// Event is the closed set of values delivered to handlers. Switch on the
// concrete type; OtherEvent carries every protocol event without a typed
// variant.
type Event interface {
	Kind() EventKind
	isEvent()
}

// EventHandler receives events on the dispatch goroutine, in wire order.
type EventHandler func(ev Event)

// ReadyEvent fires once the post-login bootstrap has been sent.
type ReadyEvent struct {
	Self *SelfUser
}

// QueryResponseEvent carries every "|queryresponse|" reply as received.
type QueryResponseEvent struct {
	QueryKind string
	Payload   json.RawMessage
}

// RawDataEvent carries raw/html lines and plain log lines.
type RawDataEvent struct {
	Room    string
	Content string
}

// MessageCreatedEvent fires for every chat line or direct message.
type MessageCreatedEvent struct {
	Message *Message
}

// MessageDeletedEvent fires when the server hides a user's lines.
type MessageDeletedEvent struct {
	Room   string
	UserID string
	Count  int
	Reason string
}

// RoomUserAddedEvent fires when a user joins a room.
type RoomUserAddedEvent struct {
	Room string
	User *User
	Rank string
}

// RoomUserRemovedEvent fires when a user leaves a room.
type RoomUserRemovedEvent struct {
	Room string
	User *User
}

// UserRenamedEvent fires when a user in a room changes name.
type UserRenamedEvent struct {
	Room  string
	OldID string
	User  *User
}

// RoomAddedEvent fires once per joined chat room with the bootstrap snapshot.
type RoomAddedEvent struct {
	Room *Room
}

// RoomRemovedEvent fires when the session leaves a room.
type RoomRemovedEvent struct {
	RoomID string
}

// TournamentCreatedEvent fires on "|tournament|create|".
type TournamentCreatedEvent struct {
	Room      string
	Format    string
	Generator string
	PlayerCap int
}

// TournamentUpdatedEvent fires on "|tournament|update|".
type TournamentUpdatedEvent struct {
	Room string
	Data map[string]any
}

// TournamentStartedEvent fires on "|tournament|start|".
type TournamentStartedEvent struct {
	Room    string
	Players int
}

// TournamentEndedEvent fires on "|tournament|end|" and "|tournament|forceend".
type TournamentEndedEvent struct {
	Room   string
	Data   map[string]any
	Forced bool
}

// HTMLPageOpenedEvent fires when a page room delivers its content.
type HTMLPageOpenedEvent struct {
	Room    *Room
	Content string
}

// HTMLPageClosedEvent fires when a page room is closed.
type HTMLPageClosedEvent struct {
	RoomID string
}

// ChatErrorEvent carries a server "|error|" line.
type ChatErrorEvent struct {
	Room    string
	Message string
}

// ClientErrorEvent carries failures inside the client itself.
type ClientErrorEvent struct {
	Err error
}

// OtherEvent is any protocol event without a typed variant.
type OtherEvent struct {
	Room string
	Name string
	Args []string
}

func (ReadyEvent) Kind() EventKind             { return EventReady }
func (QueryResponseEvent) Kind() EventKind     { return EventQueryResponse }
func (RawDataEvent) Kind() EventKind           { return EventRawData }
func (MessageCreatedEvent) Kind() EventKind    { return EventMessageCreated }
func (MessageDeletedEvent) Kind() EventKind    { return EventMessageDeleted }
func (RoomUserAddedEvent) Kind() EventKind     { return EventRoomUserAdded }
func (RoomUserRemovedEvent) Kind() EventKind   { return EventRoomUserRemoved }
func (UserRenamedEvent) Kind() EventKind       { return EventUserRenamed }
func (RoomAddedEvent) Kind() EventKind         { return EventRoomAdded }
func (RoomRemovedEvent) Kind() EventKind       { return EventRoomRemoved }
func (TournamentCreatedEvent) Kind() EventKind { return EventTournamentCreated }
func (TournamentUpdatedEvent) Kind() EventKind { return EventTournamentUpdated }
func (TournamentStartedEvent) Kind() EventKind { return EventTournamentStarted }
func (TournamentEndedEvent) Kind() EventKind   { return EventTournamentEnded }
func (HTMLPageOpenedEvent) Kind() EventKind    { return EventHTMLPageOpened }
func (HTMLPageClosedEvent) Kind() EventKind    { return EventHTMLPageClosed }
func (ChatErrorEvent) Kind() EventKind         { return EventChatError }
func (ClientErrorEvent) Kind() EventKind       { return EventClientError }
func (OtherEvent) Kind() EventKind             { return EventOther }

func (ReadyEvent) isEvent()             {}
func (QueryResponseEvent) isEvent()     {}
func (RawDataEvent) isEvent()           {}
func (MessageCreatedEvent) isEvent()    {}
func (MessageDeletedEvent) isEvent()    {}
func (RoomUserAddedEvent) isEvent()     {}
func (RoomUserRemovedEvent) isEvent()   {}
func (UserRenamedEvent) isEvent()       {}
func (RoomAddedEvent) isEvent()         {}
func (RoomRemovedEvent) isEvent()       {}
func (TournamentCreatedEvent) isEvent() {}
func (TournamentUpdatedEvent) isEvent() {}
func (TournamentStartedEvent) isEvent() {}
func (TournamentEndedEvent) isEvent()   {}
func (HTMLPageOpenedEvent) isEvent()    {}
func (HTMLPageClosedEvent) isEvent()    {}
func (ChatErrorEvent) isEvent()         {}
func (ClientErrorEvent) isEvent()       {}
func (OtherEvent) isEvent()             {}
