package correlator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luciancaetano/roomwire/deferred"
)

// pending is one caller's query. Several may exist for the same key.
type pending[T any] struct {
	id      string
	key     string
	created time.Time
	force   bool
	retried bool
	result  *deferred.Deferred[T]
}

// table indexes pending queries of one resource kind by resource id.
type table[T any] struct {
	mu      sync.Mutex
	entries map[string][]*pending[T]
}

func newTable[T any]() *table[T] {
	return &table[T]{entries: make(map[string][]*pending[T])}
}

func (t *table[T]) add(key string, force bool) *pending[T] {
	p := &pending[T]{
		id:      uuid.New().String(),
		key:     key,
		created: time.Now(),
		force:   force,
		result:  deferred.New[T](),
	}
	t.mu.Lock()
	t.entries[key] = append(t.entries[key], p)
	t.mu.Unlock()
	return p
}

// take removes and returns every pending query for key.
func (t *table[T]) take(key string) []*pending[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.entries[key]
	delete(t.entries, key)
	return list
}

// expire handles p's deadline. When retries are allowed and p asked for one
// that has not been used, p stays registered and retry is true. Otherwise p
// is removed and removed reports whether it was still registered.
func (t *table[T]) expire(p *pending[T], allowRetry bool) (retry, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.entries[p.key]
	for i, cand := range list {
		if cand.id != p.id {
			continue
		}
		if allowRetry && p.force && !p.retried {
			p.retried = true
			return true, false
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(t.entries, p.key)
		} else {
			t.entries[p.key] = list
		}
		return false, true
	}
	return false, false
}

func (t *table[T]) has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[key]) > 0
}

func (t *table[T]) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, list := range t.entries {
		n += len(list)
	}
	return n
}
