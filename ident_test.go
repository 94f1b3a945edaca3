package roomwire

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestToID tests user id normalization
func TestToID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Echo Bot", "echobot"},
		{"  Zarel  ", "zarel"},
		{"Bob_the-Builder!", "bobthebuilder"},
		{"ÄÖü123", "123"},
		{"", ""},
		{"~", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := ToID(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ToID(got), "ToID must be idempotent")
		})
	}
}

// TestToRoomID tests that room ids keep dashes
func TestToRoomID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want RoomKind
		id   string
	}{
		{"Lobby", RoomChat, "lobby"},
		{"Battle-Gen9OU-1234", RoomBattle, "battle-gen9ou-1234"},
		{"view-user-Bob", RoomPage, "view-user-bob"},
		{"Tech & Code", RoomChat, "techcode"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := ToRoomID(tt.in)
			assert.Equal(t, tt.id, got)
			assert.Equal(t, got, ToRoomID(got), "ToRoomID must be idempotent")
			assert.Equal(t, tt.want, KindForRoomID(got))
		})
	}
}

// TestRankLevel tests the authority ordering of rank symbols
func TestRankLevel(t *testing.T) {
	t.Parallel()

	assert.Less(t, RankLevel(" "), RankLevel("+"))
	assert.Less(t, RankLevel("%"), RankLevel("@"))
	assert.Less(t, RankLevel("#"), RankLevel("&"))
	assert.Less(t, RankLevel("&"), RankLevel("~"))
	assert.Equal(t, 0, RankLevel(""))
	assert.Equal(t, 0, RankLevel("?"))
	assert.True(t, IsRankSymbol('@'))
	assert.False(t, IsRankSymbol(' '))
	assert.False(t, IsRankSymbol('a'))
}

// TestErrorHelpers tests classification through wrapping
func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	timeout := fmt.Errorf("query: %w", &TimeoutError{Op: "roominfo lobby", After: time.Second})
	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsAccessDenied(timeout))

	wait := &WaitTimeoutError{Timeout: &TimeoutError{Op: "wait", After: time.Second}}
	assert.True(t, IsTimeout(wait), "wait timeouts unwrap to TimeoutError")

	denied := fmt.Errorf("query: %w", &AccessError{Kind: "room", ID: "secret", Reason: "denied"})
	assert.True(t, IsAccessDenied(denied))

	cause := errors.New("connection reset")
	transport := &TransportError{Op: "read", Err: cause}
	assert.ErrorIs(t, transport, cause)
	assert.Equal(t, "transport: read: connection reset", transport.Error())

	login := &LoginError{Reason: ErrLoginRejected}
	assert.Contains(t, login.Error(), ErrLoginRejected)
}
