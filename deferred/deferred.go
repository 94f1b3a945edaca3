// Package deferred provides a single-fulfillment result shared by the query
// correlator and the message-wait registry.
//
// A Deferred is created pending and settles exactly once, either fulfilled
// with a value or rejected with an error. One continuation may be attached
// with Then; callers that prefer to block use Wait with a context.
//
//	d := deferred.New[int]()
//	d.WithTimeout(time.Second, "answer")
//	go d.Resolve(42)
//	v, err := d.Wait(ctx)
package deferred

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the settlement state of a Deferred.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// TimeoutError is returned when a Deferred's deadline elapses before it
// settles.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
}

// Deferred is a generic single-fulfillment future.
type Deferred[T any] struct {
	mu    sync.Mutex
	state State
	value T
	err   error
	done  chan struct{}
	then  func(T, error)
	timer *time.Timer
}

// New returns a pending Deferred.
func New[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// FulfilledWith returns a Deferred already resolved with v.
func FulfilledWith[T any](v T) *Deferred[T] {
	d := New[T]()
	d.Resolve(v)
	return d
}

// RejectedWith returns a Deferred already rejected with err.
func RejectedWith[T any](err error) *Deferred[T] {
	d := New[T]()
	d.Reject(err)
	return d
}

// Resolve fulfills the Deferred with v. It returns false if the Deferred
// had already settled.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(Fulfilled, v, nil)
}

// Reject rejects the Deferred with err. It returns false if the Deferred had
// already settled.
func (d *Deferred[T]) Reject(err error) bool {
	var zero T
	return d.settle(Rejected, zero, err)
}

func (d *Deferred[T]) settle(state State, v T, err error) bool {
	d.mu.Lock()
	if d.state != Pending {
		d.mu.Unlock()
		return false
	}
	d.state = state
	d.value = v
	d.err = err
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	then := d.then
	d.then = nil
	close(d.done)
	d.mu.Unlock()

	if then != nil {
		runThen(then, v, err)
	}
	return true
}

// runThen calls a continuation, logging instead of propagating a panic so the
// settling goroutine survives.
func runThen[T any](fn func(T, error), v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("deferred continuation panicked", "panic", r)
		}
	}()
	fn(v, err)
}

// Then attaches the single continuation. If the Deferred has settled the
// continuation runs immediately on the caller's goroutine; otherwise it runs
// on whichever goroutine settles it. Then returns false when a continuation
// is already attached.
func (d *Deferred[T]) Then(fn func(T, error)) bool {
	d.mu.Lock()
	if d.state != Pending {
		v, err := d.value, d.err
		d.mu.Unlock()
		runThen(fn, v, err)
		return true
	}
	if d.then != nil {
		d.mu.Unlock()
		return false
	}
	d.then = fn
	d.mu.Unlock()
	return true
}

// WithTimeout arms a timer that rejects the Deferred with a *TimeoutError
// naming op. Arming again replaces the previous timer.
func (d *Deferred[T]) WithTimeout(after time.Duration, op string) *Deferred[T] {
	return d.WithTimeoutFunc(after, func() {
		d.Reject(&TimeoutError{Op: op, After: after})
	})
}

// WithTimeoutFunc arms a timer that runs onTimeout if the Deferred is still
// pending when it fires. onTimeout is responsible for settling.
func (d *Deferred[T]) WithTimeoutFunc(after time.Duration, onTimeout func()) *Deferred[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Pending {
		return d
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(after, func() {
		if d.State() == Pending {
			onTimeout()
		}
	})
	return d
}

// Done is closed once the Deferred settles.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// State returns the current settlement state.
func (d *Deferred[T]) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Result returns the settled value and error. It is only meaningful once
// Done is closed.
func (d *Deferred[T]) Result() (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}

// Wait blocks until the Deferred settles or ctx is done.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
