package roomwire

import (
	"strings"
	"time"
)

// RoomKind classifies a room multiplexed over the connection.
type RoomKind string

const (
	RoomChat   RoomKind = "chat"
	RoomBattle RoomKind = "battle"
	RoomPage   RoomKind = "html-page"
)

// GlobalRoom is the sentinel room id for frames without a ">roomid" prefix.
const GlobalRoom = ""

// Rank symbols from lowest to highest authority.
const rankOrder = " +*%@#&~"

// RankLevel returns the authority level of a rank symbol. Unknown symbols
// rank with regular users.
func RankLevel(symbol string) int {
	if symbol == "" {
		return 0
	}
	if i := strings.IndexByte(rankOrder, symbol[0]); i >= 0 {
		return i
	}
	return 0
}

// IsRankSymbol reports whether c is a known rank symbol other than the blank
// regular-user rank.
func IsRankSymbol(c byte) bool {
	return c != ' ' && strings.IndexByte(rankOrder, c) >= 0
}

// Room is a logical channel. A room is unresolved until its roominfo query
// completes.
type Room struct {
	ID          string
	CanonicalID string // empty while unresolved
	Title       string
	Kind        RoomKind
	Resolved    bool

	Visibility string
	ModChat    string
	ModJoin    string
	Auth       map[string][]string // rank symbol -> user ids
	Users      []string            // member names as listed by the server, ranks stripped
	UserRanks  map[string]string   // user id -> rank symbol in this room
}

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.Auth != nil {
		c.Auth = make(map[string][]string, len(r.Auth))
		for k, v := range r.Auth {
			c.Auth[k] = append([]string(nil), v...)
		}
	}
	c.Users = append([]string(nil), r.Users...)
	if r.UserRanks != nil {
		c.UserRanks = make(map[string]string, len(r.UserRanks))
		for k, v := range r.UserRanks {
			c.UserRanks[k] = v
		}
	}
	return &c
}

// RankOf returns the rank userID holds in the room, checking the auth list
// before the observed member ranks.
func (r *Room) RankOf(userID string) string {
	best := ""
	for symbol, ids := range r.Auth {
		for _, id := range ids {
			if id == userID && RankLevel(symbol) > RankLevel(best) {
				best = symbol
			}
		}
	}
	if rank, ok := r.UserRanks[userID]; ok && RankLevel(rank) > RankLevel(best) {
		best = rank
	}
	return best
}

// HasUser reports whether userID is listed as a member.
func (r *Room) HasUser(userID string) bool {
	_, ok := r.UserRanks[userID]
	return ok
}

// User is any account observed on the connection.
type User struct {
	Name   string
	ID     string
	Alts   []string
	Online bool
	Group  string // global rank symbol
	Avatar string
	Status string

	Autoconfirmed bool
	Trusted       bool
	Staff         bool

	Rooms    map[string]string // room id -> rank symbol held there
	Resolved bool
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Alts = append([]string(nil), u.Alts...)
	if u.Rooms != nil {
		c.Rooms = make(map[string]string, len(u.Rooms))
		for k, v := range u.Rooms {
			c.Rooms[k] = v
		}
	}
	return &c
}

// HasAlt reports whether id is a former canonical id of the user.
func (u *User) HasAlt(id string) bool {
	for _, alt := range u.Alts {
		if alt == id {
			return true
		}
	}
	return false
}

// SelfUser is the session's own account with its mutable settings.
type SelfUser struct {
	User

	Named     bool
	PublicBot bool
	Settings  map[string]any
}

// Clone returns a deep copy.
func (s *SelfUser) Clone() *SelfUser {
	if s == nil {
		return nil
	}
	c := *s
	c.User = *s.User.Clone()
	if s.Settings != nil {
		c.Settings = make(map[string]any, len(s.Settings))
		for k, v := range s.Settings {
			c.Settings[k] = v
		}
	}
	return &c
}

// TargetKind tells rooms and direct conversations apart.
type TargetKind int

const (
	TargetRoom TargetKind = iota
	TargetUser
)

// Target is where a message was posted: a room or a direct conversation
// partner.
type Target struct {
	Kind TargetKind
	ID   string
}

// RoomTarget addresses a room.
func RoomTarget(id string) Target { return Target{Kind: TargetRoom, ID: ToRoomID(id)} }

// UserTarget addresses a direct conversation with a user.
func UserTarget(id string) Target { return Target{Kind: TargetUser, ID: ToID(id)} }

func (t Target) String() string {
	if t.Kind == TargetUser {
		return "pm:" + t.ID
	}
	return "room:" + t.ID
}

// Message is an immutable chat line. It is either room scoped or direct;
// Target says which.
type Message struct {
	Author  *User
	Content string
	Raw     string
	Target  Target
	Time    time.Time

	IsCommand bool
	CanDelete bool
}

// IsPM reports whether the message is a direct message.
func (m *Message) IsPM() bool { return m.Target.Kind == TargetUser }

// AuthorID returns the author's canonical id.
func (m *Message) AuthorID() string {
	if m.Author == nil {
		return ""
	}
	return m.Author.ID
}
