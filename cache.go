// Package fusecache implements an in-process, in-memory key/value cache
// built to suppress cache stampedes on hot keys: for any given key, at most
// one producer call runs at a time across the whole process, and every
// concurrent caller waiting on that key observes the same terminal result.
//
// The cache is a fixed array of N independent partitions selected at
// construction; each key is routed to exactly one partition by a stable
// hash. Partitions share no mutable state, so contention reduction comes
// entirely from sharding, not from any single global lock.
package fusecache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// Cache is the partitioned, single-flight-coordinating cache instance.
// Construct one with Start and release its background goroutines with
// Stop when done — the same start/stop lifecycle contract the teacher's
// New/Stop pair establishes, generalized to N partitions.
type Cache struct {
	partitions []*partition
	numShards  uint64
	metrics    *metrics
}

// Start constructs and brings up a Cache: it allocates the configured
// number of partitions and starts each one's background Purger. There is
// no implicit global cache instance; every Start call produces an
// independent, self-contained object with its own explicit lifecycle.
func Start(opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := newMetrics(cfg.registerer)
	partitions := make([]*partition, cfg.partitions)
	for i := range partitions {
		partitions[i] = newPartition(cfg.clock, cfg.purgeInterval, cfg.coordTimeout, cfg.logger, m)
	}

	return &Cache{
		partitions: partitions,
		numShards:  uint64(cfg.partitions),
		metrics:    m,
	}
}

// partitionOf routes key to its partition via a stable, non-cryptographic
// hash modulo N (spec §2). xxhash is the same hash family used for exactly
// this purpose elsewhere in the retrieved pack (dgraph-io/ristretto,
// IvanBrykalov/shardcache); partitionOf(key) is deterministic for the
// lifetime of this instance because numShards never changes after Start.
func (c *Cache) partitionOf(key string) *partition {
	h := xxhash.Sum64String(key)
	return c.partitions[h%c.numShards]
}

// Get performs a partition-routed Store lookup. It never invokes a
// producer and never blocks on another goroutine's fill.
func (c *Cache) Get(key string) (value any, ok bool) {
	return c.partitionOf(key).get(key)
}

// Put performs a partition-routed insertIfAbsent. The caller always sees
// success, even when a concurrent single-flight fill already won the race
// and installed the value first — see partition.put's doc comment for why
// forcing an overwrite here would be wrong. exp <= 0 means the entry never
// expires.
func (c *Cache) Put(key string, value any, exp time.Duration) bool {
	return c.partitionOf(key).put(key, value, exp)
}

// Read is the stampede-safe read: on a miss it single-flights the producer
// through the key's partition so concurrent misses for the same key
// collapse into exactly one producer invocation. See spec §4.5 for the
// full decision tree; errors are one of: the producer's own error,
// returned verbatim, or a *CacheError tagged KindCallbackFailure (producer
// panicked), KindOwnerFailure (owner vanished without releasing),
// KindRetryFailure (a post-success lookup still missed), or
// KindCoordinatorTimeout (coordinator safety net).
func (c *Cache) Read(ctx context.Context, key string, exp time.Duration, producer Producer) (any, error) {
	return c.partitionOf(key).read(ctx, key, exp, producer)
}

// DirtyRead is the explicit, documented stampede-unsafe fast path: on a
// miss the calling goroutine invokes the producer directly, without
// single-flight coordination. Concurrent misses for the same key may
// invoke the producer concurrently. Use Read unless you have a specific
// reason a thundering herd on this key is acceptable.
func (c *Cache) DirtyRead(ctx context.Context, key string, exp time.Duration, producer Producer) (any, error) {
	return c.partitionOf(key).dirtyRead(ctx, key, exp, producer)
}

// Stats returns a point-in-time snapshot of the cache's runtime counters.
func (c *Cache) Stats() Stats {
	return c.metrics.snapshot()
}

// Stop releases every partition: it cancels each Purger and stops each
// KeyLock's coordinator goroutine. Partitions are stopped concurrently
// since they share no state and stopping one never depends on another.
// Stop does not cancel in-flight Read calls; it only tears down background
// goroutines once they've been given a chance to observe the shutdown
// signal.
func (c *Cache) Stop() {
	var g errgroup.Group
	for _, p := range c.partitions {
		p := p
		g.Go(func() error {
			p.stop()
			return nil
		})
	}
	_ = g.Wait()
}
