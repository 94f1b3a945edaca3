// Package waits implements "collect up to N future messages matching a
// predicate within a deadline" for rooms and direct conversations.
package waits

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luciancaetano/roomwire"
	"github.com/luciancaetano/roomwire/deferred"
)

var (
	errInvalidTarget  = errors.New(roomwire.ErrInvalidWaitTarget)
	errInvalidTimeout = errors.New(roomwire.ErrInvalidWaitTimeout)
)

// Predicate selects messages for a wait.
type Predicate func(*roomwire.Message) bool

type entry struct {
	id      string
	owner   roomwire.Target
	match   Predicate
	max     int
	timeout time.Duration
	matches []*roomwire.Message
	result  *deferred.Deferred[[]*roomwire.Message]
}

// Registry holds pending waits per owner in registration order.
type Registry struct {
	mu      sync.Mutex
	entries map[roomwire.Target][]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[roomwire.Target][]*entry)}
}

// Await registers a wait on owner. A maxCount below one is treated as one;
// a non-positive timeout is rejected without registering.
func (r *Registry) Await(owner roomwire.Target, match Predicate, maxCount int, timeout time.Duration) *deferred.Deferred[[]*roomwire.Message] {
	if owner.ID == "" {
		return deferred.RejectedWith[[]*roomwire.Message](errInvalidTarget)
	}
	if timeout <= 0 {
		return deferred.RejectedWith[[]*roomwire.Message](errInvalidTimeout)
	}
	if maxCount < 1 {
		maxCount = 1
	}
	if match == nil {
		match = func(*roomwire.Message) bool { return true }
	}

	e := &entry{
		id:      uuid.New().String(),
		owner:   owner,
		match:   match,
		max:     maxCount,
		timeout: timeout,
		result:  deferred.New[[]*roomwire.Message](),
	}

	r.mu.Lock()
	r.entries[owner] = append(r.entries[owner], e)
	r.mu.Unlock()

	e.result.WithTimeoutFunc(timeout, func() { r.expire(e) })
	return e.result
}

// Offer tests msg against every wait on its target. Entries that reach their
// maximum are settled and removed. A predicate that panics counts as a
// non-match.
func (r *Registry) Offer(msg *roomwire.Message) {
	done := r.collect(msg)
	for _, e := range done {
		e.result.Resolve(e.matches)
	}
}

func (r *Registry) collect(msg *roomwire.Message) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var done []*entry
	list := r.entries[msg.Target]
	kept := list[:0]
	for _, e := range list {
		if matches(e.match, msg) {
			e.matches = append(e.matches, msg)
			if len(e.matches) >= e.max {
				done = append(done, e)
				continue
			}
		}
		kept = append(kept, e)
	}
	r.store(msg.Target, kept)
	return done
}

func matches(match Predicate, msg *roomwire.Message) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return match(msg)
}

// expire removes e if it is still registered and rejects it with the partial
// matches. An entry already removed by Offer is left alone.
func (r *Registry) expire(e *entry) {
	r.mu.Lock()
	list := r.entries[e.owner]
	idx := -1
	for i, cand := range list {
		if cand.id == e.id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.store(e.owner, append(list[:idx:idx], list[idx+1:]...))
	matches := e.matches
	r.mu.Unlock()

	if len(matches) == 0 {
		matches = nil
	}
	e.result.Reject(&roomwire.WaitTimeoutError{
		Timeout: &roomwire.TimeoutError{Op: "await " + e.owner.String(), After: e.timeout},
		Matches: matches,
	})
}

func (r *Registry) store(owner roomwire.Target, list []*entry) {
	if len(list) == 0 {
		delete(r.entries, owner)
		return
	}
	r.entries[owner] = list
}

// Pending returns the number of live waits on owner.
func (r *Registry) Pending(owner roomwire.Target) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[owner])
}

// Len returns the number of live waits across all owners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.entries {
		n += len(list)
	}
	return n
}
