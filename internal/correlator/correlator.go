// Package correlator matches user and room detail queries with the
// "|queryresponse|" replies that arrive on the shared inbound stream.
package correlator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/deferred"
	"github.com/luciancaetano/roomwire/internal/cache"
	"github.com/luciancaetano/roomwire/internal/protocol"
)

// Sender pushes outbound lines through the throttle.
type Sender func(lines ...string)

// Config wires the correlator to the rest of the client.
type Config struct {
	Send        Sender
	Cache       *cache.Cache
	Logger      *slog.Logger
	RoomTimeout time.Duration
	UserTimeout time.Duration
	// OnTimeout observes every query that expired, retries included
	OnTimeout func(kind string)
}

// Correlator tracks in-flight detail queries.
type Correlator struct {
	send        Sender
	cache       *cache.Cache
	logger      *slog.Logger
	roomTimeout time.Duration
	userTimeout time.Duration
	onTimeout   func(kind string)

	users *table[*roomwire.User]
	rooms *table[*roomwire.Room]
}

// New creates a correlator.
func New(cfg Config) *Correlator {
	c := &Correlator{
		send:        cfg.Send,
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		roomTimeout: cfg.RoomTimeout,
		userTimeout: cfg.UserTimeout,
		onTimeout:   cfg.OnTimeout,
		users:       newTable[*roomwire.User](),
		rooms:       newTable[*roomwire.Room](),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.roomTimeout <= 0 {
		c.roomTimeout = roomwire.RoomQueryTimeout
	}
	if c.userTimeout <= 0 {
		c.userTimeout = roomwire.UserQueryTimeout
	}
	if c.cache == nil {
		c.cache = cache.New()
	}
	return c
}

// QueryUser sends a userdetails query. If no reply arrives in time the
// result falls back to the cached user, or rejects with a timeout when the
// user is unknown.
func (c *Correlator) QueryUser(name string) *deferred.Deferred[*roomwire.User] {
	id := roomwire.ToID(name)
	p := c.registerUser(id)
	c.send(protocol.Command(roomwire.CmdUserDetails, id))
	return p.result
}

func (c *Correlator) registerUser(id string) *pending[*roomwire.User] {
	p := c.users.add(id, false)
	p.result.WithTimeoutFunc(c.userTimeout, func() { c.expireUser(p) })
	return p
}

func (c *Correlator) expireUser(p *pending[*roomwire.User]) {
	if _, removed := c.users.expire(p, false); !removed {
		return
	}
	c.timedOut(roomwire.QueryUserDetails)
	if u, ok := c.cache.User(p.key); ok {
		c.logger.Debug("user query timed out, using cached user", "id", p.key)
		p.result.Resolve(u)
		return
	}
	p.result.Reject(&roomwire.TimeoutError{Op: "userdetails " + p.key, After: c.userTimeout})
}

// QueryRoom sends a roominfo query. With forceRetryOnTimeout the query is
// resent once with a fresh timeout before rejecting.
func (c *Correlator) QueryRoom(name string, forceRetryOnTimeout bool) *deferred.Deferred[*roomwire.Room] {
	id := roomwire.ToRoomID(name)
	p := c.rooms.add(id, forceRetryOnTimeout)
	c.armRoom(p)
	c.send(protocol.Command(roomwire.CmdRoomInfo, id))
	return p.result
}

func (c *Correlator) armRoom(p *pending[*roomwire.Room]) {
	p.result.WithTimeoutFunc(c.roomTimeout, func() { c.expireRoom(p) })
}

func (c *Correlator) expireRoom(p *pending[*roomwire.Room]) {
	retry, removed := c.rooms.expire(p, true)
	if retry || removed {
		c.timedOut(roomwire.QueryRoomInfo)
	}
	if retry {
		c.logger.Info("room query timed out, retrying", "room", p.key)
		c.armRoom(p)
		c.send(protocol.Command(roomwire.CmdRoomInfo, p.key))
		return
	}
	if !removed {
		return
	}
	p.result.Reject(&roomwire.TimeoutError{Op: "roominfo " + p.key, After: c.roomTimeout})
}

func (c *Correlator) timedOut(kind string) {
	if c.onTimeout != nil {
		c.onTimeout(kind)
	}
}

// HandleReply routes a queryresponse payload by kind. Replies of other kinds
// are ignored. A payload that fails to parse is logged and dropped; pending
// queries keep waiting for their own timeouts.
func (c *Correlator) HandleReply(kind string, payload []byte) error {
	var err error
	switch kind {
	case roomwire.QueryUserDetails:
		err = c.handleUser(payload)
	case roomwire.QueryRoomInfo:
		err = c.handleRoom(payload)
	default:
		return nil
	}
	if err != nil {
		c.logger.Warn("dropping query reply", "kind", kind, "error", err)
	}
	return err
}

type userDetails struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userid"`
	Name          string          `json:"name"`
	Avatar        any             `json:"avatar"`
	Group         string          `json:"group"`
	Autoconfirmed bool            `json:"autoconfirmed"`
	Status        string          `json:"status"`
	Rooms         json.RawMessage `json:"rooms"`
	Error         string          `json:"error"`
}

func (c *Correlator) handleUser(payload []byte) error {
	var d userDetails
	if err := json.Unmarshal(payload, &d); err != nil {
		return &roomwire.PayloadError{Context: roomwire.QueryUserDetails, Raw: string(payload), Err: err}
	}
	id := roomwire.ToID(firstNonEmpty(d.UserID, d.ID))
	if id == "" {
		return &roomwire.PayloadError{Context: roomwire.QueryUserDetails, Raw: string(payload), Err: fmt.Errorf("reply has no id")}
	}

	if d.Error != "" {
		for _, p := range c.users.take(id) {
			p.result.Reject(&roomwire.AccessError{Kind: "user", ID: id, Reason: d.Error})
		}
		return nil
	}

	name := firstNonEmpty(d.Name, id)
	group := strings.TrimSpace(d.Group)
	avatar := ""
	if d.Avatar != nil {
		avatar = fmt.Sprint(d.Avatar)
	}
	rooms, online := parseUserRooms(d.Rooms)

	// A reply is authoritative for presence and rooms, so those fields are
	// assigned rather than merged.
	u := c.cache.UpdateUser(name, func(u *roomwire.User) {
		u.Name = name
		if group != "" {
			u.Group = group
			u.Staff = roomwire.RankLevel(group) >= roomwire.RankLevel("%")
		}
		if avatar != "" {
			u.Avatar = avatar
		}
		u.Status = d.Status
		u.Autoconfirmed = d.Autoconfirmed
		u.Online = online
		u.Rooms = rooms
		u.Resolved = true
	})
	for _, p := range c.users.take(id) {
		p.result.Resolve(u)
	}
	return nil
}

// parseUserRooms reads the reply's room map, where keys carry the rank held
// in the room as a prefix. A literal false means the user is offline.
func parseUserRooms(raw json.RawMessage) (map[string]string, bool) {
	rooms := make(map[string]string)
	if len(raw) == 0 || string(raw) == "false" || string(raw) == "null" {
		return rooms, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return rooms, false
	}
	for key := range m {
		rank, name := protocol.SplitRankedName(key)
		rooms[roomwire.ToRoomID(name)] = rank
	}
	return rooms, true
}

type roomInfo struct {
	ID         string              `json:"id"`
	RoomID     string              `json:"roomid"`
	Title      string              `json:"title"`
	Type       string              `json:"type"`
	Visibility string              `json:"visibility"`
	ModChat    any                 `json:"modchat"`
	ModJoin    any                 `json:"modjoin"`
	Auth       map[string][]string `json:"auth"`
	Users      []string            `json:"users"`
	Error      string              `json:"error"`
}

func (c *Correlator) handleRoom(payload []byte) error {
	var info roomInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return &roomwire.PayloadError{Context: roomwire.QueryRoomInfo, Raw: string(payload), Err: err}
	}
	id := roomwire.ToRoomID(firstNonEmpty(info.RoomID, info.ID))
	if id == "" {
		return &roomwire.PayloadError{Context: roomwire.QueryRoomInfo, Raw: string(payload), Err: fmt.Errorf("reply has no id")}
	}

	if info.Error != "" {
		if roomwire.IsPageRoom(id) {
			placeholder := c.cache.UpsertRoom(&roomwire.Room{ID: id, Title: id, Kind: roomwire.RoomPage})
			for _, p := range c.rooms.take(id) {
				p.result.Resolve(placeholder)
			}
			return nil
		}
		for _, p := range c.rooms.take(id) {
			p.result.Reject(&roomwire.AccessError{Kind: "room", ID: id, Reason: info.Error})
		}
		return nil
	}

	patch := &roomwire.Room{
		ID:          id,
		CanonicalID: id,
		Title:       info.Title,
		Kind:        roomKind(info.Type, id),
		Visibility:  info.Visibility,
		ModChat:     optionalSetting(info.ModChat),
		ModJoin:     optionalSetting(info.ModJoin),
		Auth:        info.Auth,
		Resolved:    true,
	}
	if info.Users != nil {
		patch.Users = make([]string, 0, len(info.Users))
		patch.UserRanks = make(map[string]string, len(info.Users))
		for _, entry := range info.Users {
			rank, name := protocol.SplitRankedName(entry)
			patch.Users = append(patch.Users, name)
			patch.UserRanks[roomwire.ToID(name)] = rank
		}
	}
	room := c.cache.UpsertRoom(patch)

	for _, p := range c.rooms.take(id) {
		p.result.Resolve(room)
	}
	c.warmUsers(patch.Users)
	return nil
}

// warmUsers queries every member that is not cached yet. Results are not
// observed; timeouts fall back or lapse silently.
func (c *Correlator) warmUsers(names []string) {
	var lines []string
	for _, name := range names {
		id := roomwire.ToID(name)
		if id == "" || c.cache.HasUser(id) || c.users.has(id) {
			continue
		}
		c.registerUser(id)
		lines = append(lines, protocol.Command(roomwire.CmdUserDetails, id))
	}
	if len(lines) > 0 {
		c.logger.Debug("warming user cache", "users", len(lines))
		c.send(lines...)
	}
}

// PendingUsers returns the number of in-flight user queries.
func (c *Correlator) PendingUsers() int { return c.users.size() }

// PendingRooms returns the number of in-flight room queries.
func (c *Correlator) PendingRooms() int { return c.rooms.size() }

func roomKind(t, id string) roomwire.RoomKind {
	switch t {
	case "battle":
		return roomwire.RoomBattle
	case "html", "page":
		return roomwire.RoomPage
	case "chat":
		return roomwire.RoomChat
	}
	return roomwire.KindForRoomID(id)
}

// optionalSetting renders moderation settings that the server sends as
// false, null, or a rank string.
func optionalSetting(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
