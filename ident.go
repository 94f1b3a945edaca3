package roomwire

import "strings"

// ToID normalizes a display name to its canonical user id: lowercase with
// everything outside [a-z0-9] removed.
func ToID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToRoomID normalizes a room title or id. Dashes survive so that battle and
// page rooms ("battle-gen9ou-1", "view-user-bob") keep their shape.
func ToRoomID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPageRoom reports whether id names an HTML page room.
func IsPageRoom(id string) bool {
	return strings.HasPrefix(id, "view-")
}

// IsBattleRoom reports whether id names a battle room.
func IsBattleRoom(id string) bool {
	return strings.HasPrefix(id, "battle-")
}

// KindForRoomID guesses the room kind from its id alone.
func KindForRoomID(id string) RoomKind {
	switch {
	case IsPageRoom(id):
		return RoomPage
	case IsBattleRoom(id):
		return RoomBattle
	default:
		return RoomChat
	}
}
