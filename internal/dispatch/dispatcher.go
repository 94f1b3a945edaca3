// Package dispatch turns inbound frames into cache updates, query replies,
// wait matches and events.
package dispatch

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/internal/cache"
	"github.com/luciancaetano/roomwire/internal/correlator"
	"github.com/luciancaetano/roomwire/internal/protocol"
	"github.com/luciancaetano/roomwire/internal/throttle"
	"github.com/luciancaetano/roomwire/internal/waits"
)

// Account is the identity the session logs in as, plus the profile settings
// applied once the name is accepted.
type Account struct {
	Name     string
	Avatar   string
	Status   string
	Autojoin []string
}

// Config wires the dispatcher to the rest of the client.
type Config struct {
	Account    Account
	Cache      *cache.Cache
	Correlator *correlator.Correlator
	Waits      *waits.Registry
	Bus        *Bus
	// Send pushes lines through the outbound throttle
	Send func(lines ...string)
	// OnChallenge receives the login challenge string
	OnChallenge func(challstr string)
	// OnTier receives every tier re-evaluation
	OnTier func(throttle.Tier)
	// OnLine observes each dispatched line
	OnLine func()
	Logger *slog.Logger
	Now    func() time.Time
}

// Dispatcher processes frames. HandleFrame must only be called from one
// goroutine; the accessors are safe for concurrent use.
type Dispatcher struct {
	account     Account
	cache       *cache.Cache
	correlator  *correlator.Correlator
	waits       *waits.Registry
	bus         *Bus
	send        func(lines ...string)
	onChallenge func(string)
	onTier      func(throttle.Tier)
	onLine      func()
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	self     *roomwire.SelfUser
	loggedIn bool
	trusted  bool
	formats  []string
}

// New creates a dispatcher. Missing collaborators are replaced with private
// instances so the dispatcher can run standalone in tests.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		account:     cfg.Account,
		cache:       cfg.Cache,
		correlator:  cfg.Correlator,
		waits:       cfg.Waits,
		bus:         cfg.Bus,
		send:        cfg.Send,
		onChallenge: cfg.OnChallenge,
		onTier:      cfg.OnTier,
		onLine:      cfg.OnLine,
		logger:      cfg.Logger,
		now:         cfg.Now,
		self:        &roomwire.SelfUser{Settings: make(map[string]any)},
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.send == nil {
		d.send = func(...string) {}
	}
	if d.cache == nil {
		d.cache = cache.New()
	}
	if d.waits == nil {
		d.waits = waits.New()
	}
	if d.bus == nil {
		d.bus = NewBus(d.logger)
	}
	if d.correlator == nil {
		d.correlator = correlator.New(correlator.Config{
			Send:   d.send,
			Cache:  d.cache,
			Logger: d.logger,
		})
	}
	return d
}

// HandleFrame dispatches every line of one inbound frame in order. A line
// that fails is logged and skipped; the rest of the frame still runs.
func (d *Dispatcher) HandleFrame(data string) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		d.logger.Warn("dropping frame", "error", err)
		d.bus.Emit(roomwire.ClientErrorEvent{Err: err})
		return
	}

	room := roomwire.ToRoomID(frame.Room)
	if room != roomwire.GlobalRoom {
		d.cache.EnsureRoom(room)
	}

	for i := 0; i < len(frame.Lines); {
		line := protocol.ParseLine(frame.Lines[i])
		consumed, err := d.handleLine(room, line, frame.Lines[i+1:])
		if err != nil {
			d.logger.Warn("failed to handle line", "room", room, "event", line.Event, "error", err)
		}
		if d.onLine != nil {
			for n := 0; n < consumed; n++ {
				d.onLine()
			}
		}
		i += consumed
	}
}

// handleLine runs one line, or one bootstrap run when line is an init. A
// panic is turned into an error so the next line still dispatches.
func (d *Dispatcher) handleLine(room string, line protocol.Line, rest []string) (consumed int, err error) {
	consumed = 1
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling line: %v", r)
		}
	}()
	if line.Event == "init" {
		return d.handleInit(room, line, rest)
	}
	return 1, d.dispatchLine(room, line)
}

// Self returns a snapshot of the session user.
func (d *Dispatcher) Self() *roomwire.SelfUser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.self.Clone()
}

// LoggedIn reports whether the configured name has been accepted.
func (d *Dispatcher) LoggedIn() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loggedIn
}

// Formats returns the battle formats the server last advertised.
func (d *Dispatcher) Formats() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.formats...)
}

// Reset clears session state after the socket closes. Cached rooms are kept
// until the next connection rejoins them.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loggedIn = false
	d.trusted = false
	d.self.Named = false
}

// Correlator exposes the query correlator the dispatcher feeds.
func (d *Dispatcher) Correlator() *correlator.Correlator { return d.correlator }

// Waits exposes the wait registry the dispatcher feeds.
func (d *Dispatcher) Waits() *waits.Registry { return d.waits }

// Cache exposes the entity cache the dispatcher maintains.
func (d *Dispatcher) Cache() *cache.Cache { return d.cache }

// Bus exposes the event bus.
func (d *Dispatcher) Bus() *Bus { return d.bus }

func (d *Dispatcher) selfID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.self.ID
}

// markTrusted records a trust signal and re-evaluates the throttle tier.
func (d *Dispatcher) markTrusted() {
	d.mu.Lock()
	changed := !d.trusted
	d.trusted = true
	d.mu.Unlock()
	if changed {
		d.logger.Info("session marked trusted")
		d.evaluateTier()
	}
}

func (d *Dispatcher) evaluateTier() {
	d.mu.RLock()
	tier := throttle.TierDefault
	switch {
	case d.self.PublicBot:
		tier = throttle.TierPublicBot
	case d.trusted:
		tier = throttle.TierTrusted
	}
	d.mu.RUnlock()

	if d.onTier != nil {
		d.onTier(tier)
	}
}

// canDelete reports whether the session outranks author in room and holds
// at least driver rank there.
func (d *Dispatcher) canDelete(room, authorRank string) bool {
	d.mu.RLock()
	selfID, group := d.self.ID, d.self.Group
	d.mu.RUnlock()
	if selfID == "" {
		return false
	}

	rank := group
	if r, ok := d.cache.Room(room); ok {
		if local := r.RankOf(selfID); roomwire.RankLevel(local) > roomwire.RankLevel(rank) {
			rank = local
		}
	}
	level := roomwire.RankLevel(rank)
	return level >= roomwire.RankLevel("%") && level > roomwire.RankLevel(authorRank)
}

func isCommand(content string) bool {
	return strings.HasPrefix(content, "/") || strings.HasPrefix(content, "!")
}
