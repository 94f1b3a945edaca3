package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/internal/cache"
	"github.com/luciancaetano/roomwire/internal/protocol"
)

const (
	trustedMarker  = "(trusted)"
	publicBotGroup = "*"
	popupBreak     = "||"
)

// dispatchLine handles one line outside a bootstrap run. Unknown events are
// forwarded as roomwire.OtherEvent.
func (d *Dispatcher) dispatchLine(room string, line protocol.Line) error {
	switch line.Event {
	case "":
		d.bus.Emit(roomwire.RawDataEvent{Room: room, Content: line.Raw})
	case "updateuser":
		return d.handleUpdateUser(line)
	case "challstr":
		d.handleChallenge(line.Rest(0))
	case "deinit":
		d.handleDeinit(room)
	case "noinit":
		d.cache.RemoveRoom(room)
		d.bus.Emit(roomwire.ChatErrorEvent{Room: room, Message: firstNonEmpty(line.Rest(1), line.Arg(0))})
	case "c", "chat":
		return d.handleChat(room, line.Arg(0), line.Rest(1), time.Time{}, line.Raw)
	case "c:":
		return d.handleChat(room, line.Arg(1), line.Rest(2), parseUnix(line.Arg(0)), line.Raw)
	case "pm":
		return d.handlePM(line)
	case "J", "j", "join":
		d.handleJoin(room, line.Arg(0))
	case "L", "l", "leave":
		d.handleLeave(room, line.Arg(0))
	case "N", "n", "name":
		d.handleRename(room, line.Arg(0), line.Arg(1))
	case "error":
		d.bus.Emit(roomwire.ChatErrorEvent{Room: room, Message: line.Rest(0)})
	case "nametaken":
		d.bus.Emit(roomwire.ChatErrorEvent{Room: room, Message: firstNonEmpty(line.Rest(1), line.Arg(0))})
	case "tournament":
		return d.handleTournament(room, line)
	case "queryresponse":
		d.handleQueryResponse(line.Arg(0), line.Rest(1))
	case "raw", "html":
		content := line.Rest(0)
		if strings.Contains(content, trustedMarker) {
			d.markTrusted()
		}
		d.bus.Emit(roomwire.RawDataEvent{Room: room, Content: content})
	case "pagehtml":
		d.openPage(room, "", line.Rest(0))
	case "title":
		title := line.Rest(0)
		d.cache.UpdateRoom(room, func(r *roomwire.Room) { r.Title = title })
	case "users":
		d.applyMembers(room, "", parseMembers(line.Arg(0)))
	case "hidelines":
		d.handleHideLines(room, line)
	case "popup":
		d.bus.Emit(roomwire.RawDataEvent{Room: room, Content: strings.ReplaceAll(line.Rest(0), popupBreak, "\n")})
	case "formats":
		d.handleFormats(line.Args)
		d.bus.Emit(roomwire.OtherEvent{Room: room, Name: line.Event, Args: line.Args})
	default:
		d.bus.Emit(roomwire.OtherEvent{Room: room, Name: line.Event, Args: line.Args})
	}
	return nil
}

// handleUpdateUser tracks the session identity. The first update carrying
// the configured account's name completes login.
//
//	|updateuser|<rank><name>|<named>|<avatar>|<settings json>
func (d *Dispatcher) handleUpdateUser(line protocol.Line) error {
	rank, name := protocol.SplitRankedName(line.Arg(0))
	named := line.Arg(1) == "1"
	avatar := line.Arg(2)
	var settings map[string]any
	if raw := line.Rest(3); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return &roomwire.PayloadError{Context: "updateuser settings", Raw: raw, Err: err}
		}
	}

	id := roomwire.ToID(name)
	d.mu.Lock()
	oldID := d.self.ID
	d.self.Name = name
	d.self.ID = id
	d.self.Named = named
	d.self.Online = true
	if rank != "" {
		d.self.Group = rank
	}
	if avatar != "" {
		d.self.Avatar = avatar
	}
	for k, v := range settings {
		d.self.Settings[k] = v
	}
	accepted := named && id != "" && id == roomwire.ToID(d.account.Name) && !d.loggedIn
	if accepted {
		d.loggedIn = true
	}
	d.mu.Unlock()

	if oldID != "" && oldID != id {
		d.cache.Rename(oldID, name)
	}
	d.cache.UpdateUser(name, func(u *roomwire.User) {
		u.Name = name
		u.Online = true
		if rank != "" {
			u.Group = rank
		}
		if avatar != "" {
			u.Avatar = avatar
		}
	})

	if accepted {
		d.logger.Info("logged in", "id", id)
		d.bootstrapSession(id)
	}
	return nil
}

// bootstrapSession sends the post-login sequence, refreshes the session's
// own details for tier evaluation and signals readiness.
func (d *Dispatcher) bootstrapSession(id string) {
	lines := []string{protocol.Command(roomwire.CmdIP)}
	if len(d.account.Autojoin) > 0 {
		rooms := make([]string, 0, len(d.account.Autojoin))
		for _, r := range d.account.Autojoin {
			rooms = append(rooms, roomwire.ToRoomID(r))
		}
		lines = append(lines, protocol.Command(roomwire.CmdAutojoin, strings.Join(rooms, ",")))
	}
	if d.account.Avatar != "" {
		lines = append(lines, protocol.Command(roomwire.CmdAvatar, d.account.Avatar))
	}
	if d.account.Status != "" {
		lines = append(lines, protocol.Command(roomwire.CmdStatus, d.account.Status))
	}
	d.send(lines...)

	d.correlator.QueryUser(id).Then(func(u *roomwire.User, err error) {
		if err != nil {
			d.logger.Debug("self refresh failed", "error", err)
			return
		}
		d.mu.Lock()
		if u.Group != "" {
			d.self.Group = u.Group
		}
		d.self.Status = u.Status
		d.self.Autoconfirmed = u.Autoconfirmed
		d.self.Staff = u.Staff
		d.self.Rooms = u.Rooms
		d.self.PublicBot = d.self.Group == publicBotGroup
		d.self.Resolved = true
		d.mu.Unlock()
		d.evaluateTier()
	})

	d.bus.Emit(roomwire.ReadyEvent{Self: d.Self()})
}

func (d *Dispatcher) handleChallenge(challstr string) {
	d.cache.SeedSystemUsers()
	if d.onChallenge != nil {
		d.onChallenge(challstr)
	}
}

func (d *Dispatcher) handleDeinit(room string) {
	r, _ := d.cache.Room(room)
	d.cache.RemoveRoom(room)
	d.bus.Emit(roomwire.RoomRemovedEvent{RoomID: room})
	if (r != nil && r.Kind == roomwire.RoomPage) || roomwire.IsPageRoom(room) {
		d.bus.Emit(roomwire.HTMLPageClosedEvent{RoomID: room})
	}
}

// resolveAuthor records a speaker's presence in room and returns the cached
// user with the rank shown on the line.
func (d *Dispatcher) resolveAuthor(room, ranked string) (*roomwire.User, string) {
	rank, name := protocol.SplitRankedName(ranked)
	switch id := strings.TrimSpace(ranked); {
	case id == cache.ServerUserID || id == cache.SystemUserID:
		name, rank = id, id
	case roomwire.ToID(name) == "":
		name = cache.ServerUserID
	}
	u := d.cache.UpdateUser(name, func(u *roomwire.User) {
		u.Name = name
		u.Online = true
		if room != roomwire.GlobalRoom {
			u.Rooms[room] = rank
		}
	})
	return u, rank
}

// handleChat builds a room message, offers it to pending waits and emits it.
func (d *Dispatcher) handleChat(room, author, content string, ts time.Time, raw string) error {
	if author == "" {
		return fmt.Errorf("%s: chat line without author", roomwire.ErrMalformedFrame)
	}
	if ts.IsZero() {
		ts = d.now()
	}
	u, rank := d.resolveAuthor(room, author)
	msg := &roomwire.Message{
		Author:    u,
		Content:   content,
		Raw:       raw,
		Target:    roomwire.RoomTarget(room),
		Time:      ts,
		IsCommand: isCommand(content),
		CanDelete: d.canDelete(room, rank),
	}
	d.deliver(msg)
	return nil
}

// handlePM builds a direct message. The conversation partner is the
// recipient when the session sent the message, otherwise the sender.
//
//	|pm|<sender>|<recipient>|<body>
func (d *Dispatcher) handlePM(line protocol.Line) error {
	sender, recipient := line.Arg(0), line.Arg(1)
	if sender == "" || recipient == "" {
		return fmt.Errorf("%s: pm without participants", roomwire.ErrMalformedFrame)
	}
	author, _ := d.resolveAuthor(roomwire.GlobalRoom, sender)

	partner := author.ID
	if self := d.selfID(); self != "" && author.ID == self {
		_, name := protocol.SplitRankedName(recipient)
		partner = roomwire.ToID(name)
	}

	content := line.Rest(2)
	msg := &roomwire.Message{
		Author:    author,
		Content:   content,
		Raw:       line.Raw,
		Target:    roomwire.UserTarget(partner),
		Time:      d.now(),
		IsCommand: isCommand(content),
	}
	d.deliver(msg)
	return nil
}

func (d *Dispatcher) deliver(msg *roomwire.Message) {
	d.waits.Offer(msg)
	d.bus.Emit(roomwire.MessageCreatedEvent{Message: msg})
}

func (d *Dispatcher) handleJoin(room, ranked string) {
	rank, name := protocol.SplitRankedName(ranked)
	id := roomwire.ToID(name)
	if id == "" {
		return
	}
	u := d.cache.UpdateUser(name, func(u *roomwire.User) {
		u.Name = name
		u.Online = true
		u.Rooms[room] = rank
	})
	d.cache.UpdateRoom(room, func(r *roomwire.Room) {
		if _, ok := r.UserRanks[id]; !ok {
			r.Users = append(r.Users, name)
		}
		r.UserRanks[id] = rank
	})
	d.bus.Emit(roomwire.RoomUserAddedEvent{Room: room, User: u, Rank: rank})
}

func (d *Dispatcher) handleLeave(room, ranked string) {
	_, name := protocol.SplitRankedName(ranked)
	id := roomwire.ToID(name)
	if id == "" {
		return
	}
	d.cache.UpdateRoom(room, func(r *roomwire.Room) {
		delete(r.UserRanks, id)
		r.Users = removeMember(r.Users, id)
	})
	u := d.cache.UpdateUser(name, func(u *roomwire.User) {
		delete(u.Rooms, room)
	})
	d.bus.Emit(roomwire.RoomUserRemovedEvent{Room: room, User: u})
}

// handleRename moves the cached identity and rewrites the room's listing.
//
//	|N|<rank><new name>|<old id>
func (d *Dispatcher) handleRename(room, ranked, oldID string) {
	rank, name := protocol.SplitRankedName(ranked)
	oldID = roomwire.ToID(oldID)
	newID := roomwire.ToID(name)
	if newID == "" || oldID == "" {
		return
	}
	u := d.cache.Rename(oldID, name)
	d.cache.UpdateRoom(room, func(r *roomwire.Room) {
		r.Users = removeMember(r.Users, oldID)
		r.Users = removeMember(r.Users, newID)
		r.Users = append(r.Users, name)
		r.UserRanks[newID] = rank
	})
	d.bus.Emit(roomwire.UserRenamedEvent{Room: room, OldID: oldID, User: u})
}

func removeMember(users []string, id string) []string {
	out := users[:0]
	for _, name := range users {
		if roomwire.ToID(name) != id {
			out = append(out, name)
		}
	}
	return out
}

// handleQueryResponse feeds the correlator and republishes the reply. Parse
// failures are logged by the correlator.
func (d *Dispatcher) handleQueryResponse(kind, payload string) {
	_ = d.correlator.HandleReply(kind, []byte(payload))
	d.bus.Emit(roomwire.QueryResponseEvent{QueryKind: kind, Payload: json.RawMessage(payload)})
}

// handleHideLines reports moderation that removed a user's lines.
//
//	|hidelines|<delete|hide|unlink>|<user id>|<line count>
func (d *Dispatcher) handleHideLines(room string, line protocol.Line) {
	count, _ := strconv.Atoi(line.Arg(2))
	d.bus.Emit(roomwire.MessageDeletedEvent{
		Room:   room,
		UserID: roomwire.ToID(line.Arg(1)),
		Count:  count,
		Reason: line.Arg(0),
	})
}

// handleFormats keeps the advertised format names. Section headers are
// ",<column>" followed by the section name.
func (d *Dispatcher) handleFormats(args []string) {
	var formats []string
	skipSection := false
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, ","):
			skipSection = true
		case skipSection:
			skipSection = false
		case a != "":
			name, _, _ := strings.Cut(a, ",")
			formats = append(formats, name)
		}
	}
	d.mu.Lock()
	d.formats = formats
	d.mu.Unlock()
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
