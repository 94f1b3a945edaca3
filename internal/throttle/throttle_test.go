package throttle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/deferred"
)

type recorder struct {
	mu     sync.Mutex
	chunks [][]string
	times  []time.Time
	err    error
}

func (r *recorder) flush(lines []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, append([]string(nil), lines...))
	r.times = append(r.times, time.Now())
	return r.err
}

func (r *recorder) snapshot() ([][]string, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.chunks...), append([]time.Time(nil), r.times...)
}

func quietConfig(interval time.Duration) *Config {
	cfg := DefaultConfig()
	cfg.Intervals[TierDefault] = interval
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func lines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("lobby|line %d", i)
	}
	return out
}

// TestDefaultConfig tests the default tier intervals and chunk size
func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.ChunkSize)
	assert.Equal(t, 600*time.Millisecond, cfg.Intervals[TierDefault])
	assert.Equal(t, 100*time.Millisecond, cfg.Intervals[TierTrusted])
	assert.Equal(t, 25*time.Millisecond, cfg.Intervals[TierPublicBot])
}

// TestSingleLineSentImmediately tests the direct path for one line
func TestSingleLineSentImmediately(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	th := New(quietConfig(time.Hour), rec.flush)
	defer th.Stop()

	d := th.Send("lobby|hi")
	assert.Equal(t, deferred.Fulfilled, d.State())

	chunks, _ := rec.snapshot()
	assert.Equal(t, [][]string{{"lobby|hi"}}, chunks)
}

// TestChunkedDrain tests seven lines draining as chunks of 3, 3 and 1
func TestChunkedDrain(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	th := New(quietConfig(600*time.Millisecond), rec.flush)
	defer th.Stop()

	d := th.Send(lines(7)...)
	_, err := d.Wait(context.Background())
	require.NoError(t, err)

	chunks, times := rec.snapshot()
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)
	assert.Equal(t, "lobby|line 6", chunks[2][0])

	// The limiter schedules from the reservation instant, so allow for the
	// few microseconds between reservation and the recorded flush.
	const slack = 5 * time.Millisecond
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 600*time.Millisecond-slack)
	}
	assert.Zero(t, th.Len())
}

// TestOrderingBehindQueue tests that single lines queue behind a running drain
func TestOrderingBehindQueue(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	th := New(quietConfig(20*time.Millisecond), rec.flush)
	defer th.Stop()

	first := th.Send(lines(4)...)
	second := th.Send("lobby|after")
	assert.Same(t, first, second, "lines joining a running drain share its completion signal")

	_, err := second.Wait(context.Background())
	require.NoError(t, err)

	chunks, _ := rec.snapshot()
	var flat []string
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	assert.Equal(t, append(lines(4), "lobby|after"), flat)
}

// TestLimiterGatesDirectSends tests that a burst of single lines is throttled
func TestLimiterGatesDirectSends(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	th := New(quietConfig(30*time.Millisecond), rec.flush)
	defer th.Stop()

	th.Send("lobby|a")
	d := th.Send("lobby|b")
	assert.Equal(t, deferred.Pending, d.State(), "second line must wait for the next token")

	_, err := d.Wait(context.Background())
	require.NoError(t, err)
	chunks, _ := rec.snapshot()
	assert.Len(t, chunks, 2)
}

// TestSetTier tests that tier changes alter the active interval
func TestSetTier(t *testing.T) {
	t.Parallel()

	th := New(nil, func([]string) error { return nil })
	defer th.Stop()

	assert.Equal(t, roomwire.DefaultThrottle, th.Interval())
	th.SetTier(TierTrusted)
	assert.Equal(t, TierTrusted, th.Tier())
	assert.Equal(t, roomwire.TrustedThrottle, th.Interval())
	th.SetTier(TierPublicBot)
	assert.Equal(t, roomwire.PublicBotThrottle, th.Interval())
}

// TestStopRejectsPending tests that stopping rejects queued work
func TestStopRejectsPending(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	th := New(quietConfig(time.Hour), rec.flush)

	d := th.Send(lines(5)...)
	require.Eventually(t, func() bool { return th.Len() == 2 }, time.Second, time.Millisecond)
	th.Stop()

	_, err := d.Wait(context.Background())
	assert.EqualError(t, err, roomwire.ErrThrottleStopped)
	assert.Equal(t, deferred.Rejected, th.Send("lobby|late").State())
}

// TestFlushErrorOnDirectSend tests that socket errors surface on direct sends
func TestFlushErrorOnDirectSend(t *testing.T) {
	t.Parallel()

	rec := &recorder{err: errors.New("closed")}
	th := New(quietConfig(time.Hour), rec.flush)
	defer th.Stop()

	_, err := th.Send("lobby|x").Result()
	assert.EqualError(t, err, "closed")
}

// TestDepthObserver tests queue depth reporting
func TestDepthObserver(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var depths []int
	cfg := quietConfig(5 * time.Millisecond)
	cfg.OnDepth = func(d int) {
		mu.Lock()
		depths = append(depths, d)
		mu.Unlock()
	}
	th := New(cfg, func([]string) error { return nil })
	defer th.Stop()

	_, err := th.Send(lines(4)...).Wait(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{4, 1, 0}, depths)
}
