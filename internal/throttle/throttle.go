// Package throttle batches outbound protocol lines under a chunks-per-interval
// cap that depends on the account tier.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/deferred"
)

// Tier selects the drain interval.
type Tier int

const (
	TierDefault Tier = iota
	TierTrusted
	TierPublicBot
)

func (t Tier) String() string {
	switch t {
	case TierTrusted:
		return "trusted"
	case TierPublicBot:
		return "publicbot"
	default:
		return "default"
	}
}

// Flusher writes one chunk of encoded lines to the socket.
type Flusher func(lines []string) error

// Config defines the throttle configuration
type Config struct {
	// ChunkSize is the number of lines sent per interval
	ChunkSize int
	// Intervals maps each tier to its minimum spacing between chunks
	Intervals map[Tier]time.Duration
	// OnDepth observes the queue length after every change
	OnDepth func(depth int)
	Logger  *slog.Logger
}

// DefaultConfig returns the default throttle configuration
// Sends 3 lines per chunk, 600ms apart (100ms trusted, 25ms public bot)
func DefaultConfig() *Config {
	return &Config{
		ChunkSize: roomwire.DefaultChunkSize,
		Intervals: map[Tier]time.Duration{
			TierDefault:   roomwire.DefaultThrottle,
			TierTrusted:   roomwire.TrustedThrottle,
			TierPublicBot: roomwire.PublicBotThrottle,
		},
	}
}

// Throttle is the outbound send queue. It is safe for concurrent use.
type Throttle struct {
	cfg     Config
	flush   Flusher
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	tier     Tier
	queue    []string
	draining bool
	drained  *deferred.Deferred[struct{}]
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a throttle that writes chunks with flush. A nil cfg uses
// DefaultConfig().
func New(cfg *Config, flush Flusher) *Throttle {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.ChunkSize <= 0 {
		c.ChunkSize = roomwire.DefaultChunkSize
	}
	if c.Intervals == nil {
		c.Intervals = DefaultConfig().Intervals
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Throttle{
		cfg:    c,
		flush:  flush,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	t.limiter = rate.NewLimiter(rate.Every(t.interval(TierDefault)), 1)
	return t
}

func (t *Throttle) interval(tier Tier) time.Duration {
	if d, ok := t.cfg.Intervals[tier]; ok && d > 0 {
		return d
	}
	return roomwire.DefaultThrottle
}

// SetTier re-evaluates the drain interval. It takes effect from the next
// chunk.
func (t *Throttle) SetTier(tier Tier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tier == tier {
		return
	}
	t.tier = tier
	t.limiter.SetLimit(rate.Every(t.interval(tier)))
	t.logger.Debug("throttle tier changed", "tier", tier.String(), "interval", t.interval(tier))
}

// Tier returns the active tier.
func (t *Throttle) Tier() Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tier
}

// Interval returns the active drain interval.
func (t *Throttle) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval(t.tier)
}

// Send sends one line or queues several. A single line goes out directly
// when nothing is queued and the limiter has a token; everything else joins
// the queue behind earlier lines. The returned Deferred resolves once the
// drain loop has emptied the queue.
func (t *Throttle) Send(lines ...string) *deferred.Deferred[struct{}] {
	if len(lines) == 0 {
		return deferred.FulfilledWith(struct{}{})
	}
	if t.ctx.Err() != nil {
		return deferred.RejectedWith[struct{}](errors.New(roomwire.ErrThrottleStopped))
	}

	t.mu.Lock()
	if len(lines) == 1 && !t.draining && len(t.queue) == 0 && t.limiter.Allow() {
		t.mu.Unlock()
		if err := t.flush(lines); err != nil {
			return deferred.RejectedWith[struct{}](err)
		}
		return deferred.FulfilledWith(struct{}{})
	}

	t.queue = append(t.queue, lines...)
	t.report(len(t.queue))
	if t.drained == nil {
		t.drained = deferred.New[struct{}]()
	}
	done := t.drained
	if !t.draining {
		t.draining = true
		go t.drain()
	}
	t.mu.Unlock()
	return done
}

// drain sends queued chunks until the queue is exhausted, then resolves the
// completion signal and exits.
func (t *Throttle) drain() {
	for {
		if err := t.limiter.Wait(t.ctx); err != nil {
			t.abort(errors.New(roomwire.ErrThrottleStopped))
			return
		}

		t.mu.Lock()
		n := min(t.cfg.ChunkSize, len(t.queue))
		chunk := append([]string(nil), t.queue[:n]...)
		t.queue = t.queue[n:]
		t.report(len(t.queue))
		t.mu.Unlock()

		if len(chunk) > 0 {
			if err := t.flush(chunk); err != nil {
				t.logger.Warn("failed to flush queued lines", "lines", len(chunk), "error", err)
			}
		}

		t.mu.Lock()
		if len(t.queue) == 0 {
			// Checked and cleared under one lock so a concurrent Send either
			// lands before this point or starts a fresh drain.
			done := t.drained
			t.drained = nil
			t.draining = false
			t.mu.Unlock()
			if done != nil {
				done.Resolve(struct{}{})
			}
			return
		}
		t.mu.Unlock()
	}
}

func (t *Throttle) abort(err error) {
	t.mu.Lock()
	done := t.drained
	t.drained = nil
	t.draining = false
	t.queue = nil
	t.report(0)
	t.mu.Unlock()

	if done != nil {
		done.Reject(err)
	}
}

func (t *Throttle) report(depth int) {
	if t.cfg.OnDepth != nil {
		t.cfg.OnDepth(depth)
	}
}

// Len returns the number of queued lines.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Stop discards the queue and rejects pending completion signals.
func (t *Throttle) Stop() {
	t.cancel()
}
