package deferred

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolve tests fulfillment and the value seen by waiters
func TestResolve(t *testing.T) {
	t.Parallel()

	d := New[int]()
	assert.Equal(t, Pending, d.State())
	assert.True(t, d.Resolve(7))

	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, Fulfilled, d.State())
}

// TestSettlesOnce tests that later settlements are no-ops
func TestSettlesOnce(t *testing.T) {
	t.Parallel()

	d := New[string]()
	assert.True(t, d.Reject(errors.New("first")))
	assert.False(t, d.Resolve("late"))
	assert.False(t, d.Reject(errors.New("second")))

	_, err := d.Result()
	assert.EqualError(t, err, "first")
	assert.Equal(t, Rejected, d.State())
}

// TestThen tests the single continuation slot
func TestThen(t *testing.T) {
	t.Parallel()

	d := New[int]()
	got := make(chan int, 1)
	assert.True(t, d.Then(func(v int, err error) { got <- v }))
	assert.False(t, d.Then(func(int, error) {}), "only one continuation may attach")

	d.Resolve(3)
	assert.Equal(t, 3, <-got)

	ran := false
	assert.True(t, d.Then(func(v int, err error) { ran = v == 3 }))
	assert.True(t, ran, "continuation on a settled value runs immediately")
}

// TestTimeout tests rejection when no settlement arrives in time
func TestTimeout(t *testing.T) {
	t.Parallel()

	d := New[int]().WithTimeout(20*time.Millisecond, "query")

	_, err := d.Wait(context.Background())
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "query", te.Op)
	assert.Equal(t, 20*time.Millisecond, te.After)
}

// TestTimeoutLosesToResolve tests that settlement stops the timer
func TestTimeoutLosesToResolve(t *testing.T) {
	t.Parallel()

	d := New[int]().WithTimeout(30*time.Millisecond, "query")
	d.Resolve(1)
	time.Sleep(60 * time.Millisecond)

	v, err := d.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// TestConcurrentSettlement tests that exactly one of many racing settlers wins
func TestConcurrentSettlement(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		d := New[int]().WithTimeout(time.Millisecond, "race")
		var wins atomic.Int32
		var calls atomic.Int32
		d.Then(func(int, error) { calls.Add(1) })

		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				if d.Resolve(v) {
					wins.Add(1)
				}
			}(j)
		}
		wg.Wait()
		<-d.Done()

		time.Sleep(2 * time.Millisecond)
		assert.LessOrEqual(t, wins.Load(), int32(1))
		assert.Equal(t, int32(1), calls.Load(), "continuation runs exactly once")
	}
}

// TestWaitContext tests that Wait honours cancellation
func TestWaitContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := New[int]().Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestStateString tests state names
func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "fulfilled", Fulfilled.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "unknown", State(9).String())
}

// TestThenPanicIsContained tests that a panicking continuation does not
// escape the settling call
func TestThenPanicIsContained(t *testing.T) {
	t.Parallel()

	d := New[int]()
	d.Then(func(int, error) { panic("boom") })
	assert.NotPanics(t, func() { assert.True(t, d.Resolve(1)) })
	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	settled := FulfilledWith(2)
	assert.NotPanics(t, func() { settled.Then(func(int, error) { panic("boom") }) })
}
