package fusecache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result is what the Replier hands to a waiter: nil Err means the owner
// succeeded and the waiter should re-consult the Store (the "retry"
// sentinel from spec §4.5); a non-nil Err is a terminal error delivered
// verbatim to every waiter of the released key.
type Result struct {
	Err error
}

// inFlightEntry is the InFlight record for one key: the token identifying
// the current owner, the waiters queued behind it, and the channel the
// owner-liveness watcher is closed against once the key is released
// (whether by the owner itself or synthesized on owner failure).
type inFlightEntry struct {
	owner     uint64
	waiters   []chan Result
	ownerDone chan struct{}
}

// acquireReply is what acquire() answers with: either "you are the owner,
// here is your token" or "you are a waiter, here is the channel your
// result will arrive on."
type acquireReply struct {
	owner    bool
	token    uint64
	resultCh <-chan Result
}

type acquireCmd struct {
	ctx     context.Context
	key     string
	replyCh chan acquireReply
}

type releaseCmd struct {
	key    string
	owner  uint64
	result Result
}

// keyLock is the per-partition single-flight coordinator. All of its state
// transitions happen inside a single goroutine (run) consuming a command
// channel, giving a total order over every acquire/release for every key in
// the partition — the one invariant the whole design leans on. This
// realizes Design Notes §9(a)'s "dedicated worker task per partition
// reading from a channel," the option closer to the teacher's own
// ticker-plus-select idiom (janitor.go) than a bare mutex would be.
type keyLock struct {
	cmdCh chan any
	done  chan struct{}
	wg    sync.WaitGroup
}

func newKeyLock(rep *replier, m *metrics, logger *zap.Logger) *keyLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	kl := &keyLock{
		cmdCh: make(chan any, 64),
		done:  make(chan struct{}),
	}
	kl.wg.Add(1)
	go kl.run(rep, m, logger)
	return kl
}

func (kl *keyLock) run(rep *replier, m *metrics, logger *zap.Logger) {
	defer kl.wg.Done()

	inflight := make(map[string]*inFlightEntry)
	var nextToken uint64

	for {
		select {
		case <-kl.done:
			return
		case raw := <-kl.cmdCh:
			switch cmd := raw.(type) {
			case acquireCmd:
				if rec, exists := inflight[cmd.key]; exists {
					resultCh := make(chan Result, 1)
					rec.waiters = append(rec.waiters, resultCh)
					cmd.replyCh <- acquireReply{owner: false, resultCh: resultCh}
					continue
				}

				nextToken++
				token := nextToken
				ownerDone := make(chan struct{})
				inflight[cmd.key] = &inFlightEntry{owner: token, ownerDone: ownerDone}
				if m != nil {
					m.inFlightStarted()
				}
				kl.watchOwner(cmd.ctx, cmd.key, token, ownerDone)
				cmd.replyCh <- acquireReply{owner: true, token: token}

			case releaseCmd:
				rec, exists := inflight[cmd.key]
				if !exists || rec.owner != cmd.owner {
					// Stale or duplicate release: either the owner already
					// released and a new owner has since been elected for
					// this key, or the owner-liveness watcher and the
					// owner's own release raced and this is the loser.
					// Either way there is nothing to do.
					continue
				}
				delete(inflight, cmd.key)
				close(rec.ownerDone)
				if m != nil {
					m.inFlightEnded()
				}
				if ce, ok := asCacheError(cmd.result.Err); ok && ce.Kind == KindOwnerFailure {
					if m != nil {
						m.ownerFailed()
					}
					logger.Warn("owner failed before releasing key",
						zap.String("key", cmd.key),
						zap.String("component", "keylock"),
						zap.Error(ce.Err),
					)
				}
				rep.deliver(cmd.key, cmd.result, rec.waiters)
			}
		}
	}
}

// watchOwner observes the owner's liveness via ctx. If ctx is done before
// the key is released (ownerDone closed), it synthesizes a release with an
// owner_failure result — the portable analogue of the runtime process
// monitor the source relies on (Design Notes §9, option (i)). The watcher
// also exits when the keyLock is stopped.
func (kl *keyLock) watchOwner(ctx context.Context, key string, token uint64, ownerDone chan struct{}) {
	go func() {
		select {
		case <-ownerDone:
			return
		case <-kl.done:
			return
		case <-ctx.Done():
			select {
			case kl.cmdCh <- releaseCmd{key: key, owner: token, result: Result{Err: ownerFailureError(ctx.Err())}}:
			case <-kl.done:
			}
		}
	}()
}

// acquire asks the coordinator to either elect the caller as owner of key
// or register it as a waiter. It is bounded by coordTimeout as a safety net
// against total coordinator deadlock (spec §5's reference value: 60s), not
// to bound producer latency.
func (kl *keyLock) acquire(ctx context.Context, key string, coordTimeout time.Duration) (acquireReply, error) {
	replyCh := make(chan acquireReply, 1)
	timer := time.NewTimer(coordTimeout)
	defer timer.Stop()

	select {
	case kl.cmdCh <- acquireCmd{ctx: ctx, key: key, replyCh: replyCh}:
	case <-timer.C:
		return acquireReply{}, ErrCoordinatorTimeout
	case <-kl.done:
		return acquireReply{}, ErrCoordinatorTimeout
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return acquireReply{}, ErrCoordinatorTimeout
	case <-kl.done:
		return acquireReply{}, ErrCoordinatorTimeout
	}
}

// release hands a terminal result to the coordinator for key. Called by the
// current owner exactly once; a release for a key the caller no longer
// owns (because watchOwner already synthesized one) is silently ignored by
// run's token check.
func (kl *keyLock) release(key string, owner uint64, result Result) {
	select {
	case kl.cmdCh <- releaseCmd{key: key, owner: owner, result: result}:
	case <-kl.done:
	}
}

func (kl *keyLock) stop() {
	close(kl.done)
	kl.wg.Wait()
}
