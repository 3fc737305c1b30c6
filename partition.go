package fusecache

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Producer computes a value on a cache miss. It is an external
// collaborator: the engine invokes it and interprets its success/error
// return, but defines nothing else about its behavior. A producer may
// observe ctx cancellation but the engine imposes no timeout on it beyond
// the caller's own deadline.
type Producer func(ctx context.Context) (any, error)

// partition bundles one shard's Store, KeyLock, Replier and Purger — the
// four collaborating components spec.md §2 assigns to every partition.
type partition struct {
	store        *store
	keyLock      *keyLock
	purger       *purger
	metrics      *metrics
	coordTimeout time.Duration
}

func newPartition(c clock.Clock, purgeInterval, coordTimeout time.Duration, logger *zap.Logger, m *metrics) *partition {
	st := newStore(c)
	return &partition{
		store:        st,
		keyLock:      newKeyLock(newReplier(), m, logger),
		purger:       newPurger(c, purgeInterval, st, logger, m),
		metrics:      m,
		coordTimeout: coordTimeout,
	}
}

func (p *partition) get(key string) (any, bool) {
	v, ok := p.store.lookup(key)
	if ok {
		p.metrics.hit()
	} else {
		p.metrics.miss()
	}
	return v, ok
}

// put is a best-effort installation: it always reports success to the
// caller even when a concurrent producer already won the race and
// installed first. Forcing an overwrite here would let a stale put clobber
// a value a single-flight fill is actively protecting — see spec §9's
// "put masking already present" note. Callers who need a true
// last-write-wins semantics should not rely on put for that key.
func (p *partition) put(key string, value any, exp time.Duration) bool {
	p.store.insertIfAbsent(key, value, exp.Nanoseconds())
	return true
}

// read is the stampede-safe path: §4.5 of the spec, verbatim.
func (p *partition) read(ctx context.Context, key string, exp time.Duration, producer Producer) (any, error) {
	if v, ok := p.get(key); ok {
		return v, nil
	}

	reply, err := p.keyLock.acquire(ctx, key, p.coordTimeout)
	if err != nil {
		return nil, err
	}

	if !reply.owner {
		select {
		case res := <-reply.resultCh:
			if res.Err != nil {
				return nil, res.Err
			}
			return p.finishWait(key)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return p.produce(ctx, key, exp, producer, reply.token)
}

// finishWait is what a waiter does once the owner released a "retry"
// result: re-consult the Store. The value may have changed since the fill
// (a newer round may have replaced it, or it may even have been purged
// already) — single-flight only promises no spurious producer invocation,
// not that this exact value survives to be read back.
func (p *partition) finishWait(key string) (any, error) {
	if v, ok := p.get(key); ok {
		return v, nil
	}
	p.metrics.retryFailed()
	return nil, retryFailureError()
}

// produce runs the producer as the elected owner, with panic recovery so a
// crashing producer still reaches release() exactly once.
func (p *partition) produce(ctx context.Context, key string, exp time.Duration, producer Producer, token uint64) (any, error) {
	p.metrics.producerInvoked()

	var val any
	var prodErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				prodErr = callbackFailureError(r)
			}
		}()
		val, prodErr = producer(ctx)
	}()

	if prodErr != nil {
		if ce, ok := asCacheError(prodErr); ok && ce.Kind == KindCallbackFailure {
			p.metrics.callbackFailed()
		}
		p.keyLock.release(key, token, Result{Err: prodErr})
		return nil, prodErr
	}

	p.store.insertIfAbsent(key, val, exp.Nanoseconds())
	p.keyLock.release(key, token, Result{Err: nil})
	return val, nil
}

// dirtyRead is the explicit, documented stampede-unsafe fast path: it never
// touches the KeyLock, so concurrent misses for the same key may invoke the
// producer concurrently.
func (p *partition) dirtyRead(ctx context.Context, key string, exp time.Duration, producer Producer) (any, error) {
	if v, ok := p.get(key); ok {
		return v, nil
	}

	p.metrics.producerInvoked()
	var val any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = callbackFailureError(r)
			}
		}()
		val, err = producer(ctx)
	}()
	if err != nil {
		if ce, ok := asCacheError(err); ok && ce.Kind == KindCallbackFailure {
			p.metrics.callbackFailed()
		}
		return nil, err
	}

	p.store.insertIfAbsent(key, val, exp.Nanoseconds())
	return val, nil
}

func (p *partition) stop() {
	p.purger.stop()
	p.keyLock.stop()
}

func asCacheError(err error) (*CacheError, bool) {
	ce, ok := err.(*CacheError)
	return ce, ok
}
