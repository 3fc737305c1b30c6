package fusecache

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// config is the instance's start(config) per spec §6, generalizing the
// teacher's functional-options target (options.go's bare `interval` field)
// into the full set of knobs this engine exposes. There is deliberately no
// file/env parsing here: configuration parsing is named out of scope in
// spec §1, and the functional-options pattern itself is the teacher's own
// answer to "how do I configure this without breaking New()'s signature."
type config struct {
	partitions   int
	purgeInterval time.Duration
	coordTimeout time.Duration
	clock        clock.Clock
	logger       *zap.Logger
	registerer   prometheus.Registerer
}

func defaultConfig() config {
	return config{
		partitions:    1,
		purgeInterval: 0, // never, mirrors the teacher's "interval <= 0 disables the janitor"
		coordTimeout:  60 * time.Second,
		clock:         clock.New(),
		logger:        zap.NewNop(),
		registerer:    nil,
	}
}

// Option configures a Cache at Start time.
type Option func(*config)

// WithPartitions sets the fixed partition count N (default 1). Values <= 0
// are ignored, matching spec §6's "positive int (default 1)".
func WithPartitions(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.partitions = n
		}
	}
}

// WithPurgeInterval sets how often each partition's Purger scans the Store
// for expired entries. Zero (or negative) disables background purging
// entirely; deadlines are still honored by lookups regardless.
func WithPurgeInterval(d time.Duration) Option {
	return func(c *config) { c.purgeInterval = d }
}

// WithCoordinatorTimeout overrides the KeyLock's acquire timeout (default
// 60s, spec §5's reference value). This guards against total coordinator
// deadlock; it never bounds producer latency.
func WithCoordinatorTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.coordTimeout = d
		}
	}
}

// WithClock injects the time source used for deadlines and purging.
// Production code should leave this at the default (clock.New()); tests use
// clock.NewMock() to make expiration scenarios deterministic.
func WithClock(ck clock.Clock) Option {
	return func(c *config) {
		if ck != nil {
			c.clock = ck
		}
	}
}

// WithLogger injects a structured logger for the two coordinator-level
// events worth surfacing: a synthesized owner_failure release, and a
// purge pass's removed-entry count. Defaults to a no-op logger — logging
// is an external collaborator per spec §1, not a required dependency of
// the engine's correctness.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers the cache's Prometheus counters/gauges against reg.
// If never called, the counters still exist and back Cache.Stats(), they
// are just never exposed for scraping.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}
