package waits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/deferred"
)

func chat(room, author, body string) *roomwire.Message {
	return &roomwire.Message{
		Author:  &roomwire.User{Name: author, ID: roomwire.ToID(author)},
		Content: body,
		Target:  roomwire.RoomTarget(room),
		Time:    time.Now(),
	}
}

func byAuthor(id string) Predicate {
	return func(m *roomwire.Message) bool { return m.AuthorID() == id }
}

// TestAwaitSettlesOnMatch tests that only the matching message fulfills a wait
func TestAwaitSettlesOnMatch(t *testing.T) {
	t.Parallel()

	r := New()
	d := r.Await(roomwire.RoomTarget("lobby"), byAuthor("bob"), 1, time.Second)

	r.Offer(chat("lobby", "alice", "hi"))
	assert.Equal(t, deferred.Pending, d.State())

	r.Offer(chat("lobby", "bob", "hello"))

	msgs, err := d.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Zero(t, r.Len(), "settled entries are removed")
}

// TestAwaitAccumulatesToMax tests that accumulation stops at maxCount
func TestAwaitAccumulatesToMax(t *testing.T) {
	t.Parallel()

	r := New()
	d := r.Await(roomwire.RoomTarget("lobby"), nil, 2, time.Second)

	for i := 0; i < 5; i++ {
		r.Offer(chat("lobby", "alice", "x"))
	}

	msgs, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Zero(t, r.Len())
}

// TestAwaitTimeoutCarriesPartialMatches tests rejection with partial results
func TestAwaitTimeoutCarriesPartialMatches(t *testing.T) {
	t.Parallel()

	r := New()
	d := r.Await(roomwire.RoomTarget("lobby"), nil, 3, 50*time.Millisecond)
	r.Offer(chat("lobby", "alice", "one"))

	_, err := d.Wait(context.Background())
	var wte *roomwire.WaitTimeoutError
	require.True(t, errors.As(err, &wte))
	assert.Len(t, wte.Matches, 1)
	assert.True(t, roomwire.IsTimeout(err))
	assert.Zero(t, r.Len(), "expired entries are removed")
}

// TestAwaitTimeoutWithoutMatches tests the nil sentinel for empty results
func TestAwaitTimeoutWithoutMatches(t *testing.T) {
	t.Parallel()

	r := New()
	d := r.Await(roomwire.UserTarget("bob"), nil, 1, 20*time.Millisecond)

	_, err := d.Wait(context.Background())
	var wte *roomwire.WaitTimeoutError
	require.True(t, errors.As(err, &wte))
	assert.Nil(t, wte.Matches)
}

// TestAwaitIsScopedToOwner tests that other rooms and PMs never match
func TestAwaitIsScopedToOwner(t *testing.T) {
	t.Parallel()

	r := New()
	d := r.Await(roomwire.RoomTarget("lobby"), nil, 1, time.Second)

	r.Offer(chat("help", "bob", "wrong room"))
	pm := chat("lobby", "bob", "pm")
	pm.Target = roomwire.UserTarget("bob")
	r.Offer(pm)

	assert.Equal(t, deferred.Pending, d.State())
	assert.Equal(t, 1, r.Pending(roomwire.RoomTarget("lobby")))
}

// TestAwaitRegistrationOrder tests that several waits on one owner all see a message
func TestAwaitRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := New()
	first := r.Await(roomwire.RoomTarget("lobby"), nil, 1, time.Second)
	second := r.Await(roomwire.RoomTarget("lobby"), nil, 2, time.Second)

	r.Offer(chat("lobby", "bob", "a"))
	assert.Equal(t, deferred.Fulfilled, first.State())
	assert.Equal(t, deferred.Pending, second.State())

	r.Offer(chat("lobby", "bob", "b"))
	msgs, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

// TestAwaitRejectsEmptyTarget tests validation of the wait owner
func TestAwaitRejectsEmptyTarget(t *testing.T) {
	t.Parallel()

	d := New().Await(roomwire.Target{}, nil, 1, time.Second)
	assert.Equal(t, deferred.Rejected, d.State())
}

// TestAwaitRaceSettlesOnce tests concurrent offers against a short deadline
func TestAwaitRaceSettlesOnce(t *testing.T) {
	t.Parallel()

	r := New()
	for i := 0; i < 50; i++ {
		d := r.Await(roomwire.RoomTarget("lobby"), nil, 3, time.Millisecond)
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Offer(chat("lobby", "bob", "x"))
			}()
		}
		wg.Wait()

		msgs, err := d.Wait(context.Background())
		if err == nil {
			assert.Len(t, msgs, 3)
		} else {
			var wte *roomwire.WaitTimeoutError
			require.True(t, errors.As(err, &wte))
			assert.LessOrEqual(t, len(wte.Matches), 3)
		}
	}

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

// TestAwaitRejectsNonPositiveTimeout tests that a zero or negative deadline
// is refused without registering
func TestAwaitRejectsNonPositiveTimeout(t *testing.T) {
	t.Parallel()

	r := New()
	for _, timeout := range []time.Duration{0, -time.Second} {
		d := r.Await(roomwire.RoomTarget("lobby"), nil, 1, timeout)
		_, err := d.Result()
		assert.EqualError(t, err, roomwire.ErrInvalidWaitTimeout)
	}
	assert.Zero(t, r.Len())
}

// TestAwaitPanickingPredicate tests that a predicate panic counts as a
// non-match and leaves the registry usable
func TestAwaitPanickingPredicate(t *testing.T) {
	t.Parallel()

	r := New()
	broken := r.Await(roomwire.RoomTarget("lobby"), func(*roomwire.Message) bool {
		var fields []string
		return fields[1] == "x"
	}, 1, time.Second)
	healthy := r.Await(roomwire.RoomTarget("lobby"), byAuthor("bob"), 1, time.Second)

	assert.NotPanics(t, func() { r.Offer(chat("lobby", "bob", "hi")) })

	assert.Equal(t, deferred.Pending, broken.State())
	msgs, err := healthy.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 1, r.Len(), "registry lock is released")
}
