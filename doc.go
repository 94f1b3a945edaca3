// Package roomwire is a client library for multiplexed chat-room servers that
// speak a line-oriented, pipe-delimited websocket protocol.
//
// A single websocket carries every joined room plus direct messages. The
// client logs in through an HTTP side channel when the server issues its
// challenge, keeps a cache of rooms and users up to date from the inbound
// stream, and exposes it as typed events.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/roomwire"
//	    "github.com/luciancaetano/roomwire/ws"
//	)
//
//	cfg, err := ws.LoadConfig("config.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := ws.New(cfg)
//
//	client.RegisterHandler(roomwire.EventMessageCreated, func(ev roomwire.Event) {
//	    msg := ev.(roomwire.MessageCreatedEvent).Message
//	    if msg.Content == "!ping" {
//	        client.Send(ctx, msg.Target.ID, "pong")
//	    }
//	})
//
//	client.Connect(ctx)
//
// # Protocol Format
//
// Every inbound frame is an optional ">roomid" header line followed by
// protocol lines:
//
//	>lobby
//	|c:|1700000000|+Bob|hello
//
// Each line is "|type|arg|arg...". Lines without a leading pipe are plain
// log text. Frames without a header belong to the global room.
//
// Outbound lines are "roomid|text". Global commands use an empty room id:
//
//	|/join lobby
//	lobby|hello everyone
//
// # Throttling
//
// Outbound lines go through a queue that sends at most three lines per
// interval. The interval depends on the account tier:
//
//	default      600ms
//	trusted      100ms
//	public bot    25ms
//
// A single line sent while the queue is idle goes out immediately.
//
// # Queries and Waits
//
// QueryUser and QueryRoom send a detail query and resolve when the matching
// reply arrives. Concurrent queries for the same id share one reply; each
// caller keeps its own timeout. AwaitMessages collects future messages that
// match a predicate.
//
// # Threading
//
//   - Frames are dispatched on one goroutine, in arrival order
//   - Handlers run synchronously on that goroutine and must not block
//   - Cache accessors return snapshots and are safe from any goroutine
//   - Deferred callbacks run on the goroutine that settles them
package roomwire
