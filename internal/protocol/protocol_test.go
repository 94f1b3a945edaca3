package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFrame tests room prefix detection and line splitting
func TestParseFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      string
		wantRoom  string
		wantLines []string
		wantError bool
	}{
		{
			name:      "room prefixed frame",
			data:      ">lobby\n|c|+Bob|hi\n|J| Alice",
			wantRoom:  "lobby",
			wantLines: []string{"|c|+Bob|hi", "|J| Alice"},
		},
		{
			name:      "global frame",
			data:      "|challstr|4|abcdef",
			wantRoom:  "",
			wantLines: []string{"|challstr|4|abcdef"},
		},
		{
			name:      "prefix only",
			data:      ">lobby\n",
			wantRoom:  "lobby",
			wantLines: nil,
		},
		{
			name:      "blank lines dropped",
			data:      ">lobby\n\n|c|A|x\n\n",
			wantRoom:  "lobby",
			wantLines: []string{"|c|A|x"},
		},
		{
			name:      "carriage returns trimmed",
			data:      ">lobby\r\n|c|A|x\r\n",
			wantRoom:  "lobby",
			wantLines: []string{"|c|A|x"},
		},
		{
			name:      "frame exceeds max size",
			data:      strings.Repeat("a", maxFrameSize+1),
			wantError: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frame, err := ParseFrame(tt.data)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoom, frame.Room)
			assert.Equal(t, tt.wantLines, frame.Lines)
		})
	}
}

// TestParseLine tests tokenizing lines into event name and arguments
func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantEvent string
		wantArgs  []string
	}{
		{"chat line", "|c|+Bob|hello", "c", []string{"+Bob", "hello"}},
		{"no args", "|deinit", "deinit", []string{}},
		{"empty args kept", "|tournament|update|", "tournament", []string{"update", ""}},
		{"plain log line", "Bob was muted", "", []string{"Bob was muted"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			line := ParseLine(tt.raw)
			assert.Equal(t, tt.wantEvent, line.Event)
			assert.Equal(t, tt.wantArgs, line.Args)
			assert.Equal(t, tt.raw, line.Raw)
		})
	}
}

// TestLineRest tests that free text containing separators is rejoined
func TestLineRest(t *testing.T) {
	t.Parallel()

	line := ParseLine("|c|+Bob|a | b|c")
	assert.Equal(t, "a | b|c", line.Rest(1))
	assert.Equal(t, "", line.Rest(5))
	assert.Equal(t, "+Bob", line.Arg(0))
	assert.Equal(t, "", line.Arg(9))
}

// TestSplitRankedName tests rank symbol and away marker handling
func TestSplitRankedName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantRank string
		wantName string
	}{
		{"+Bob", "+", "Bob"},
		{" Alice", "", "Alice"},
		{"@Mod@!", "@", "Mod"},
		{"~Admin", "~", "Admin"},
		{"Plain", "", "Plain"},
		{"", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			rank, name := SplitRankedName(tt.in)
			assert.Equal(t, tt.wantRank, rank)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

// TestSplitOutbound tests multi-line outbound text encoding
func TestSplitOutbound(t *testing.T) {
	t.Parallel()

	lines := SplitOutbound("lobby", "one\n\ntwo\r\nthree")
	assert.Equal(t, []string{"lobby|one", "lobby|two", "lobby|three"}, lines)

	assert.Empty(t, SplitOutbound("lobby", "\n \n"))
}

// TestCommands tests global command and direct message encoding
func TestCommands(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "|/cmd userdetails bob", Command("/cmd userdetails %s", "bob"))
	assert.Equal(t, "|/pm bob,hi there", PM("bob", "hi there"))
	assert.Equal(t, "news|hello", FormatLine("news", "hello"))
}
