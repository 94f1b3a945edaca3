package dispatch

import (
	"log/slog"
	"sync"

	"github.com/luciancaetano/roomwire"
)

// Bus fans events out to handlers registered by kind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[roomwire.EventKind][]roomwire.EventHandler
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[roomwire.EventKind][]roomwire.EventHandler),
		logger:   logger,
	}
}

// Register adds a handler for kind. roomwire.EventAny receives every event.
func (b *Bus) Register(kind roomwire.EventKind, handler roomwire.EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Emit runs the handlers for ev's kind, then the catch-all handlers, in
// registration order on the calling goroutine.
func (b *Bus) Emit(ev roomwire.Event) {
	b.mu.RLock()
	specific := b.handlers[ev.Kind()]
	catchAll := b.handlers[roomwire.EventAny]
	b.mu.RUnlock()

	for _, h := range specific {
		b.call(h, ev)
	}
	for _, h := range catchAll {
		b.call(h, ev)
	}
}

// call keeps a panicking handler from taking the read loop down.
func (b *Bus) call(h roomwire.EventHandler, ev roomwire.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", string(ev.Kind()), "panic", r)
		}
	}()
	h(ev)
}
