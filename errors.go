package fusecache

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags the internally-synthesized half of the error taxonomy: errors
// the engine itself produces, as opposed to errors a producer returns
// verbatim (those are propagated unwrapped, see Cache.Read).
type Kind int

const (
	// KindCallbackFailure means the producer panicked instead of returning
	// an error.
	KindCallbackFailure Kind = iota + 1
	// KindOwnerFailure means the owner disappeared (its context was
	// cancelled, or it was otherwise never going to call release) before
	// releasing the key.
	KindOwnerFailure
	// KindRetryFailure means a waiter re-checked the Store after a
	// successful fill and still found nothing there.
	KindRetryFailure
	// KindCoordinatorTimeout means the KeyLock did not respond to an
	// acquire within the configured coordination timeout. This is a safety
	// net against coordinator bugs, not a normal outcome.
	KindCoordinatorTimeout
)

func (k Kind) String() string {
	switch k {
	case KindCallbackFailure:
		return "callback_failure"
	case KindOwnerFailure:
		return "owner_failure"
	case KindRetryFailure:
		return "retry_failure"
	case KindCoordinatorTimeout:
		return "coordinator_timeout"
	default:
		return "unknown_cache_error"
	}
}

// CacheError is the engine's own error type. Producer-reported errors are
// never wrapped in a CacheError — they are returned exactly as the
// producer returned them, per spec: "waiters cannot recompute them."
type CacheError struct {
	Kind Kind
	Err  error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache_error: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("cache_error: %s", e.Kind)
}

func (e *CacheError) Unwrap() error { return e.Err }

func newCacheError(kind Kind, cause error) *CacheError {
	return &CacheError{Kind: kind, Err: errors.WithStack(cause)}
}

func callbackFailureError(recovered any) error {
	return newCacheError(KindCallbackFailure, fmt.Errorf("producer panicked: %v", recovered))
}

func ownerFailureError(cause error) error {
	return newCacheError(KindOwnerFailure, errors.Wrap(cause, "owner released no result"))
}

func retryFailureError() error {
	return newCacheError(KindRetryFailure, errors.New("value absent after a successful fill"))
}

// ErrCoordinatorTimeout is returned by Read when the partition's KeyLock
// coordinator failed to respond within the configured coordination timeout
// (reference value 60s, see WithCoordinatorTimeout), or has already been
// stopped. It signals a deadlocked or stopped coordinator, never ordinary
// producer latency. DirtyRead never consults the coordinator and never
// returns it.
var ErrCoordinatorTimeout = newCacheError(KindCoordinatorTimeout, errors.New("keylock coordinator did not respond in time"))
