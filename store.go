package fusecache

import (
	"sync"

	"github.com/benbjohnson/clock"
)

/*
store is the per-partition concurrent key -> entry mapping.

ROLE

This is the hot read path every Get/Read call consults first. It owns
nothing about single-flight coordination — that is the KeyLock's job —
store only ever answers "what's the live value for this key, right now."

CONCURRENCY MODEL

lookup takes the map's RWMutex in read mode, so concurrent lookups
never block one another; only writers (insertIfAbsent, delete,
purgeExpired) briefly serialize against each other and against readers.
Generalizes the teacher's map+RWMutex idiom from cache.go, minus the
container/list LRU bookkeeping: this engine never evicts by recency,
only by expiration (spec's Non-goal on capacity-based eviction).

EXPIRATION STRATEGY

Same dual strategy as the teacher's janitor.go:

1. Lazy  -> lookup itself refuses to return an entry whose deadline has
            passed, even if nobody has physically removed it yet.
2. Active -> purgeExpired, driven by the Purger's ticker, removes
            expired entries in bulk so memory doesn't grow unbounded
            on keys nobody reads again.

insertIfAbsent (never an unconditional insert) is what stops a stale
single-flight producer from clobbering a fresher value a later round
already installed — see spec §9.
*/
type store struct {
	mu    sync.RWMutex
	data  map[string]entry
	clock clock.Clock
}

func newStore(c clock.Clock) *store {
	return &store{
		data:  make(map[string]entry),
		clock: c,
	}
}

// lookup reports the live value for key, or not_found if the key is absent
// or its deadline has passed. An expired entry is never returned, even if
// the background purger has not yet physically removed it.
func (s *store) lookup(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || e.expired(s.clock.Now().UnixNano()) {
		return nil, false
	}
	return e.value, true
}

// insertIfAbsent installs value for key unless a live entry already exists,
// in which case it is a no-op. Returns true if it installed the entry,
// false if a live entry was already present. A key whose only entry is
// expired is treated as absent and overwritten.
func (s *store) insertIfAbsent(key string, value any, exp int64) bool {
	now := s.clock.Now().UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && !e.expired(now) {
		return false
	}
	s.data[key] = entry{value: value, deadline: deadlineFor(now, exp)}
	return true
}

// delete removes key unconditionally. Deleting an absent key is a no-op.
func (s *store) delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

// purgeExpired removes every entry whose deadline is <= now and returns how
// many it removed. It never touches a non-expiring (deadline == 0) entry.
// Purely memory hygiene: lookup already refuses expired entries on its own,
// so a delayed or skipped purge pass is never a correctness problem, only a
// transient memory-footprint one.
func (s *store) purgeExpired(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.data {
		if e.deadline != 0 && e.deadline <= now {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}
