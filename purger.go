package fusecache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// purger generalizes the teacher's janitor.go to a configurable clock
// source and partition-scoped logging/metrics. Intervals are "at least":
// under load a tick may be skipped or delayed, which is fine because
// lookups already honor deadlines observationally (store.lookup) — purging
// here is pure memory hygiene, never a correctness mechanism.
type purger struct {
	ticker *clock.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// newPurger starts the background scan immediately unless interval <= 0,
// which disables active purging entirely (deadlines are still honored by
// lookups) — the same "interval <= 0 means no janitor" rule as the
// teacher's startJanitor.
func newPurger(c clock.Clock, interval time.Duration, s *store, logger *zap.Logger, m *metrics) *purger {
	p := &purger{done: make(chan struct{})}
	if interval <= 0 {
		return p
	}

	p.ticker = c.Ticker(interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.ticker.C:
				now := c.Now().UnixNano()
				removed := s.purgeExpired(now)
				if removed > 0 {
					m.purgedEntries(removed)
					logger.Debug("purged expired entries",
						zap.Int("count", removed),
						zap.String("component", "purger"),
					)
				}
			case <-p.done:
				p.ticker.Stop()
				return
			}
		}
	}()
	return p
}

func (p *purger) stop() {
	close(p.done)
	p.wg.Wait()
}
