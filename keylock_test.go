package fusecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestKeyLock() *keyLock {
	return newKeyLock(newReplier(), newMetrics(nil), nil)
}

func TestKeyLockFirstAcquireBecomesOwner(t *testing.T) {
	kl := newTestKeyLock()
	defer kl.stop()

	reply, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, reply.owner)
}

func TestKeyLockSecondAcquireBecomesWaiter(t *testing.T) {
	kl := newTestKeyLock()
	defer kl.stop()

	owner, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, owner.owner)

	waiter, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.False(t, waiter.owner)
	require.NotNil(t, waiter.resultCh)
}

func TestKeyLockReleaseDispatchesToAllWaiters(t *testing.T) {
	kl := newTestKeyLock()
	defer kl.stop()

	owner, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	const numWaiters = 5
	waiters := make([]acquireReply, numWaiters)
	for i := range waiters {
		w, err := kl.acquire(context.Background(), "k", time.Second)
		require.NoError(t, err)
		require.False(t, w.owner)
		waiters[i] = w
	}

	kl.release("k", owner.token, Result{Err: nil})

	for i, w := range waiters {
		select {
		case res := <-w.resultCh:
			require.NoError(t, res.Err, "waiter %d", i)
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never received a result", i)
		}
	}
}

func TestKeyLockReleaseClearsInFlightForNewOwner(t *testing.T) {
	kl := newTestKeyLock()
	defer kl.stop()

	first, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	kl.release("k", first.token, Result{Err: nil})

	// After a release, the key is Absent again: the next acquire must
	// re-elect a fresh owner, not attach as a waiter to the old record.
	second, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, second.owner)
	require.NotEqual(t, first.token, second.token)
}

func TestKeyLockOwnerContextCancellationSynthesizesOwnerFailure(t *testing.T) {
	kl := newTestKeyLock()
	defer kl.stop()

	ctx, cancel := context.WithCancel(context.Background())
	owner, err := kl.acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, owner.owner)

	waiter, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	cancel() // the owner disappears without ever calling release

	select {
	case res := <-waiter.resultCh:
		require.Error(t, res.Err)
		var ce *CacheError
		require.ErrorAs(t, res.Err, &ce)
		require.Equal(t, KindOwnerFailure, ce.Kind)
	case <-time.After(time.Second):
		t.Fatal("waiter never received the synthesized owner_failure result")
	}
}

func TestKeyLockOwnerReleaseRacingCancellationDeliversExactlyOnce(t *testing.T) {
	kl := newTestKeyLock()
	defer kl.stop()

	ctx, cancel := context.WithCancel(context.Background())
	owner, err := kl.acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	waiter, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// The owner releases normally and only then is cancelled; the late
	// cancellation must not re-release (and must not panic on a second
	// close of the same ownerDone channel).
	kl.release("k", owner.token, Result{Err: nil})
	cancel()

	select {
	case res := <-waiter.resultCh:
		require.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("waiter never received a result")
	}

	// No second delivery should ever arrive on the same channel again;
	// give the watcher goroutine a moment to (harmlessly) no-op.
	time.Sleep(20 * time.Millisecond)
	select {
	case res := <-waiter.resultCh:
		t.Fatalf("waiter received a second result: %v", res.Err)
	default:
	}
}

func TestKeyLockOwnerFailureIsLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	m := newMetrics(nil)
	kl := newKeyLock(newReplier(), m, logger)
	defer kl.stop()

	ctx, cancel := context.WithCancel(context.Background())
	owner, err := kl.acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, owner.owner)

	waiter, err := kl.acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	cancel()

	select {
	case res := <-waiter.resultCh:
		require.Error(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("waiter never received the synthesized owner_failure result")
	}

	require.Eventually(t, func() bool {
		return logs.FilterMessage("owner failed before releasing key").Len() == 1
	}, time.Second, 10*time.Millisecond)

	require.EqualValues(t, 1, m.snapshot().OwnerFailures)
}

func TestKeyLockAcquireTimesOutIfCoordinatorStopped(t *testing.T) {
	kl := newTestKeyLock()
	kl.stop()

	_, err := kl.acquire(context.Background(), "k", 10*time.Millisecond)
	require.ErrorIs(t, err, ErrCoordinatorTimeout)
}
