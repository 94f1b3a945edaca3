package protocol

import (
	"fmt"
	"strings"

	"github.com/luciancaetano/roomwire"
)

const (
	roomPrefix     = '>'
	fieldSeparator = "|"
	lineSeparator  = "\n"
	awayMarker     = "@!"
	maxFrameSize   = 10 * 1024 * 1024 // 10MB max frame size
)

// Frame is one inbound socket message: the room it targets and its lines.
type Frame struct {
	Room  string
	Lines []string
}

// Line is a tokenized protocol line. Plain log lines (not starting with "|")
// have an empty Event and the whole text in Args[0].
type Line struct {
	Raw   string
	Event string
	Args  []string
}

// ParseFrame splits a frame into its room prefix and lines. Frames without a
// ">roomid" prefix target roomwire.GlobalRoom.
func ParseFrame(data string) (Frame, error) {
	if len(data) > maxFrameSize {
		return Frame{}, fmt.Errorf("%s: frame size %d exceeds maximum %d bytes", roomwire.ErrMalformedFrame, len(data), maxFrameSize)
	}

	data = strings.TrimSuffix(data, lineSeparator)
	frame := Frame{Room: roomwire.GlobalRoom}
	if len(data) > 0 && data[0] == roomPrefix {
		head, rest, _ := strings.Cut(data[1:], lineSeparator)
		frame.Room = strings.TrimSpace(head)
		data = rest
	}

	if data == "" {
		return frame, nil
	}
	for _, l := range strings.Split(data, lineSeparator) {
		l = strings.TrimSuffix(l, "\r")
		if l == "" {
			continue
		}
		frame.Lines = append(frame.Lines, l)
	}
	return frame, nil
}

// ParseLine tokenizes a single line on the field separator.
func ParseLine(raw string) Line {
	if !strings.HasPrefix(raw, fieldSeparator) {
		return Line{Raw: raw, Args: []string{raw}}
	}
	fields := strings.Split(raw[1:], fieldSeparator)
	return Line{Raw: raw, Event: fields[0], Args: fields[1:]}
}

// Arg returns argument i or "" when absent.
func (l Line) Arg(i int) string {
	if i < 0 || i >= len(l.Args) {
		return ""
	}
	return l.Args[i]
}

// Rest rejoins arguments from i onwards, restoring separators that belonged
// to free text such as a chat body.
func (l Line) Rest(i int) string {
	if i >= len(l.Args) {
		return ""
	}
	return strings.Join(l.Args[i:], fieldSeparator)
}

// SplitRankedName separates a leading rank symbol from a display name and
// drops the trailing away marker. A leading space is the regular-user rank.
func SplitRankedName(s string) (rank, name string) {
	s = strings.TrimSuffix(s, awayMarker)
	if s == "" {
		return "", ""
	}
	if s[0] == ' ' || roomwire.IsRankSymbol(s[0]) {
		return strings.TrimSpace(s[:1]), s[1:]
	}
	return "", s
}

// FormatLine encodes one outbound line for a room. Global commands use
// roomwire.GlobalRoom.
func FormatLine(room, text string) string {
	return room + fieldSeparator + text
}

// SplitOutbound splits multi-line text into one encoded line per logical
// line, dropping empty lines.
func SplitOutbound(room, text string) []string {
	parts := strings.Split(text, lineSeparator)
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(p, "\r")
		if strings.TrimSpace(p) == "" {
			continue
		}
		lines = append(lines, FormatLine(room, p))
	}
	return lines
}

// Command formats a global command line.
func Command(format string, args ...any) string {
	return FormatLine(roomwire.GlobalRoom, fmt.Sprintf(format, args...))
}

// PM formats a direct message to target.
func PM(target, body string) string {
	return Command(roomwire.CmdPM, target, body)
}
