package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/roomwire"
)

// TestDialFailure tests that a refused handshake surfaces as a TransportError
func TestDialFailure(t *testing.T) {
	t.Parallel()

	fs := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, ConnConfig{URL: fs.wsURL() + "/missing"})
	var te *roomwire.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Op, "dial")
}

// TestConnSendAndRun tests line framing and in-order frame delivery
func TestConnSendAndRun(t *testing.T) {
	t.Parallel()

	fs := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, ConnConfig{URL: fs.wsURL()})
	require.NoError(t, err)
	require.True(t, fs.waitConnected(time.Second))

	_, err = uuid.Parse(c.ID())
	assert.NoError(t, err, "connection id should be a uuid")
	assert.Equal(t, fs.wsURL(), c.URL())
	assert.True(t, c.IsAlive())

	require.NoError(t, c.Send(ctx, "lobby|hi", "lobby|there"))
	assert.Equal(t, "lobby|hi", fs.next(time.Second))
	assert.Equal(t, "lobby|there", fs.next(time.Second))

	frames := make(chan string, 4)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(func(data string) { frames <- data }) }()

	require.NoError(t, fs.push(">lobby\n|c|+Bob|one"))
	require.NoError(t, fs.push("|challstr|4|abc"))
	assert.Equal(t, ">lobby\n|c|+Bob|one", <-frames)
	assert.Equal(t, "|challstr|4|abc", <-frames)

	require.NoError(t, c.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err, "local close is not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	<-c.Done()
	assert.Error(t, c.Context().Err())
	assert.False(t, c.IsAlive())
	assert.EqualError(t, c.Send(ctx, "x"), roomwire.ErrConnectionClosed)
	assert.NoError(t, c.Close(), "second close is a no-op")
}

// TestConnRemoteDrop tests that a server-side drop ends Run with an error
func TestConnRemoteDrop(t *testing.T) {
	t.Parallel()

	fs := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, ConnConfig{URL: fs.wsURL()})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, fs.waitConnected(time.Second))

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(func(string) {}) }()
	fs.drop()

	select {
	case err := <-runErr:
		var te *roomwire.TransportError
		assert.True(t, errors.As(err, &te))
		assert.Equal(t, "read", te.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after remote drop")
	}
}
