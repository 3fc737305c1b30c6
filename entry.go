package fusecache

/*
entry is a single Store slot: a value plus an optional expiration deadline.

STRUCTURE

value    -> The cached payload (generic via any).
deadline -> A UnixNano reading of the injected clock. Zero means "never
            expires". UnixNano is wall-clock time (Go's monotonic reading
            is dropped), so a wall-clock jump shifts every deadline.

WHY int64 (UnixNano) INSTEAD OF time.Time?

Same tradeoff the teacher's Item makes: a plain int64 compares with a
single machine instruction, costs no extra allocation, and is cheap to
copy across the Store's RWMutex boundary. Generalizes the teacher's
Item (value + expiration as UnixNano) with the LRU-only key field
dropped, since nothing here evicts by recency — the map key already
identifies the entry.
*/
type entry struct {
	value    any
	deadline int64
}

// expired reports whether now is past e's deadline. A zero deadline never
// expires.
func (e entry) expired(now int64) bool {
	return e.deadline != 0 && now > e.deadline
}

// deadlineFor computes the deadline for an entry inserted at now with the
// given expiration. exp <= 0 means "never", matching the teacher's
// ttl > 0 convention in Cache.Set.
func deadlineFor(now int64, exp int64) int64 {
	if exp <= 0 {
		return 0
	}
	return now + exp
}
