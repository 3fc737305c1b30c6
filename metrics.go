package fusecache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of a Cache's runtime counters,
// generalizing the teacher's Stats{Hits, Misses, Evictions} struct to the
// fuller taxonomy this engine tracks: there is no eviction counter anymore
// (no-goal: no LRU/capacity eviction), replaced by single-flight and
// purge-related counters.
type Stats struct {
	Hits                uint64
	Misses              uint64
	ProducerInvocations uint64
	OwnerFailures       uint64
	CallbackFailures    uint64
	RetryFailures       uint64
	PurgedEntries       uint64
	InFlightKeys        int64
}

// metrics holds the cache-wide counters. Local fields are plain atomics so
// Stats() stays cheap; the paired prometheus.Counter/Gauge let an embedder
// opt into scrape-based exposition via WithMetrics without forcing a global
// registry on everyone else, generalizing the teacher's lock-guarded
// Stats struct (stats.go) into something dual-homed for both a local
// snapshot and an optional Prometheus registry, the way samber/hot and
// IvanBrykalov/shardcache expose cache internals.
type metrics struct {
	hits, misses                               uint64
	producerInvocations                        uint64
	ownerFailures, callbackFailures            uint64
	retryFailures                              uint64
	purged                                     uint64
	inflight                                   int64
	promHits, promMisses                       prometheus.Counter
	promProducerInvocations                    prometheus.Counter
	promOwnerFailures, promCallbackFailures    prometheus.Counter
	promRetryFailures                          prometheus.Counter
	promPurged                                 prometheus.Counter
	promInflight                               prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		promHits:                 prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_hits_total", Help: "Number of Get/Read calls served from the Store without invoking a producer."}),
		promMisses:               prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_misses_total", Help: "Number of Get/Read calls that did not find a live entry in the Store."}),
		promProducerInvocations:  prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_producer_invocations_total", Help: "Number of times a producer function was actually invoked (by single-flight owners and by DirtyRead)."}),
		promOwnerFailures:        prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_owner_failures_total", Help: "Number of times an owner disappeared before releasing a key."}),
		promCallbackFailures:     prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_callback_failures_total", Help: "Number of times a producer panicked."}),
		promRetryFailures:        prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_retry_failures_total", Help: "Number of times a waiter re-checked the Store after a fill and still found nothing."}),
		promPurged:               prometheus.NewCounter(prometheus.CounterOpts{Name: "fusecache_purged_entries_total", Help: "Number of expired entries removed by background purgers."}),
		promInflight:             prometheus.NewGauge(prometheus.GaugeOpts{Name: "fusecache_inflight_keys", Help: "Number of keys currently being produced (single-flight owners in progress)."}),
	}
	if reg != nil {
		reg.MustRegister(
			m.promHits, m.promMisses, m.promProducerInvocations,
			m.promOwnerFailures, m.promCallbackFailures, m.promRetryFailures,
			m.promPurged, m.promInflight,
		)
	}
	return m
}

func (m *metrics) hit()  { atomic.AddUint64(&m.hits, 1); m.promHits.Inc() }
func (m *metrics) miss() { atomic.AddUint64(&m.misses, 1); m.promMisses.Inc() }

func (m *metrics) producerInvoked() {
	atomic.AddUint64(&m.producerInvocations, 1)
	m.promProducerInvocations.Inc()
}

func (m *metrics) ownerFailed() {
	atomic.AddUint64(&m.ownerFailures, 1)
	m.promOwnerFailures.Inc()
}

func (m *metrics) callbackFailed() {
	atomic.AddUint64(&m.callbackFailures, 1)
	m.promCallbackFailures.Inc()
}

func (m *metrics) retryFailed() {
	atomic.AddUint64(&m.retryFailures, 1)
	m.promRetryFailures.Inc()
}

func (m *metrics) purgedEntries(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&m.purged, uint64(n))
	m.promPurged.Add(float64(n))
}

func (m *metrics) inFlightStarted() {
	atomic.AddInt64(&m.inflight, 1)
	m.promInflight.Inc()
}

func (m *metrics) inFlightEnded() {
	atomic.AddInt64(&m.inflight, -1)
	m.promInflight.Dec()
}

func (m *metrics) snapshot() Stats {
	return Stats{
		Hits:                atomic.LoadUint64(&m.hits),
		Misses:              atomic.LoadUint64(&m.misses),
		ProducerInvocations: atomic.LoadUint64(&m.producerInvocations),
		OwnerFailures:       atomic.LoadUint64(&m.ownerFailures),
		CallbackFailures:    atomic.LoadUint64(&m.callbackFailures),
		RetryFailures:       atomic.LoadUint64(&m.retryFailures),
		PurgedEntries:       atomic.LoadUint64(&m.purged),
		InFlightKeys:        atomic.LoadInt64(&m.inflight),
	}
}
