package dispatch

import (
	"strings"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/internal/protocol"
)

// maxInfoLines bounds the informational lines absorbed after the member list.
const maxInfoLines = 3

// Markers of the banners a chat room sends right after its member list.
var infoMarkers = []string{"infobox-roomintro", "broadcast-", "of the Day"}

// handleInit consumes a room's bootstrap run as one unit and returns how many
// lines it used, counting the init line. rest holds the lines after init.
func (d *Dispatcher) handleInit(room string, init protocol.Line, rest []string) (int, error) {
	kind := init.Arg(0)
	switch kind {
	case "html":
		return d.initPage(room, rest), nil
	case "chat":
		return d.initChat(room, rest), nil
	default:
		d.cache.UpdateRoom(room, func(r *roomwire.Room) {
			if kind == "battle" {
				r.Kind = roomwire.RoomBattle
			}
		})
		snapshot, _ := d.cache.Room(room)
		d.bus.Emit(roomwire.RoomAddedEvent{Room: snapshot})
		return 1, nil
	}
}

// initPage scans for the page content. Without one in this frame only the
// init line is consumed and a later "|pagehtml|" opens the page.
func (d *Dispatcher) initPage(room string, rest []string) int {
	title := ""
	for i, raw := range rest {
		line := protocol.ParseLine(raw)
		switch line.Event {
		case "title":
			title = line.Rest(0)
		case "pagehtml":
			d.openPage(room, title, line.Rest(0))
			return i + 2
		}
	}
	d.cache.UpdateRoom(room, func(r *roomwire.Room) {
		r.Kind = roomwire.RoomPage
		if title != "" {
			r.Title = title
		}
	})
	return 1
}

func (d *Dispatcher) openPage(room, title, content string) {
	snapshot := d.cache.UpdateRoom(room, func(r *roomwire.Room) {
		r.Kind = roomwire.RoomPage
		if title != "" {
			r.Title = title
		}
	})
	d.bus.Emit(roomwire.HTMLPageOpenedEvent{Room: snapshot, Content: content})
}

// initChat absorbs everything through the member list plus the banner lines
// that directly follow it, emits one room-added snapshot and starts the
// room's detail query.
func (d *Dispatcher) initChat(room string, rest []string) int {
	title := ""
	usersAt := -1
	for i, raw := range rest {
		line := protocol.ParseLine(raw)
		if line.Event == "title" {
			title = line.Rest(0)
		}
		if line.Event == "users" {
			usersAt = i
			members := parseMembers(line.Arg(0))
			d.applyMembers(room, title, members)
			break
		}
	}
	if usersAt < 0 {
		d.cache.UpdateRoom(room, func(r *roomwire.Room) {
			r.Kind = roomwire.RoomChat
			if title != "" {
				r.Title = title
			}
		})
		return 1
	}

	end := usersAt + 1
	for n := 0; n < maxInfoLines && end < len(rest); n++ {
		if !isInfoLine(protocol.ParseLine(rest[end])) {
			break
		}
		end++
	}

	snapshot, _ := d.cache.Room(room)
	d.bus.Emit(roomwire.RoomAddedEvent{Room: snapshot})
	d.correlator.QueryRoom(room, false)
	return end + 1
}

type member struct {
	rank string
	name string
}

// parseMembers reads "<count>,<rank><name>,..." member lists.
func parseMembers(list string) []member {
	fields := strings.Split(list, ",")
	if len(fields) <= 1 {
		return nil
	}
	out := make([]member, 0, len(fields)-1)
	for _, f := range fields[1:] {
		rank, name := protocol.SplitRankedName(f)
		if roomwire.ToID(name) == "" {
			continue
		}
		out = append(out, member{rank: rank, name: name})
	}
	return out
}

// applyMembers replaces the room's member list and records each member's
// presence in the user cache.
func (d *Dispatcher) applyMembers(room, title string, members []member) {
	users := make([]string, 0, len(members))
	ranks := make(map[string]string, len(members))
	for _, m := range members {
		users = append(users, m.name)
		ranks[roomwire.ToID(m.name)] = m.rank
		rank := m.rank
		d.cache.UpdateUser(m.name, func(u *roomwire.User) {
			u.Name = m.name
			u.Online = true
			u.Rooms[room] = rank
		})
	}
	d.cache.UpdateRoom(room, func(r *roomwire.Room) {
		r.Kind = roomwire.RoomChat
		if title != "" {
			r.Title = title
		}
		r.Users = users
		r.UserRanks = ranks
	})
}

func isInfoLine(line protocol.Line) bool {
	if line.Event != "raw" && line.Event != "html" {
		return false
	}
	content := line.Rest(0)
	for _, marker := range infoMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
