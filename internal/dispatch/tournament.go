package dispatch

import (
	"encoding/json"
	"strconv"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/internal/protocol"
)

// handleTournament demultiplexes "|tournament|<sub>|..." lines. Sub-events
// without a typed variant pass through as roomwire.OtherEvent.
func (d *Dispatcher) handleTournament(room string, line protocol.Line) error {
	switch line.Arg(0) {
	case "create":
		capacity, _ := strconv.Atoi(line.Arg(3))
		d.bus.Emit(roomwire.TournamentCreatedEvent{
			Room:      room,
			Format:    line.Arg(1),
			Generator: line.Arg(2),
			PlayerCap: capacity,
		})
	case "update":
		data, err := parseTournamentData(line.Rest(1))
		if err != nil {
			return err
		}
		d.bus.Emit(roomwire.TournamentUpdatedEvent{Room: room, Data: data})
	case "start":
		players, _ := strconv.Atoi(line.Arg(1))
		d.bus.Emit(roomwire.TournamentStartedEvent{Room: room, Players: players})
	case "end":
		data, err := parseTournamentData(line.Rest(1))
		if err != nil {
			return err
		}
		d.bus.Emit(roomwire.TournamentEndedEvent{Room: room, Data: data})
	case "forceend":
		d.bus.Emit(roomwire.TournamentEndedEvent{Room: room, Forced: true})
	default:
		d.bus.Emit(roomwire.OtherEvent{Room: room, Name: line.Event, Args: line.Args})
	}
	return nil
}

func parseTournamentData(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, &roomwire.PayloadError{Context: "tournament", Raw: raw, Err: err}
	}
	return data, nil
}
