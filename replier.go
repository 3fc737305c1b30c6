package fusecache

import (
	"golang.org/x/sync/errgroup"
)

// replier delivers a finalized Result to every waiter of a released key. It
// runs outside the KeyLock's coordinator goroutine by design: a slow or
// abandoned waiter must never stall future acquire/release processing on
// the partition (spec §4.3).
type replier struct{}

func newReplier() *replier { return &replier{} }

// deliver fans a result out to waiters without letting any one waiter's
// delivery block another's. Each waiter channel is buffered with capacity
// one, so the send inside the errgroup never blocks even if nobody is
// listening anymore (the caller cancelled and walked away) — delivery
// still "completes" from the Replier's point of view, and the abandoned
// channel is simply garbage collected.
//
// Fanning the sends out through an errgroup.Group rather than one raw
// goroutine per waiter mirrors how the rest of the pack structures bounded
// concurrent dispatch (golang.org/x/sync/errgroup), and keeps this list
// call uniform regardless of whether a key had one waiter or a thousand.
func (r *replier) deliver(key string, result Result, waiters []chan Result) {
	if len(waiters) == 0 {
		return
	}
	go func() {
		var g errgroup.Group
		for _, w := range waiters {
			w := w
			g.Go(func() error {
				w <- result
				return nil
			})
		}
		_ = g.Wait()
	}()
}
