package fusecache

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestStoreLookupMiss(t *testing.T) {
	s := newStore(clock.NewMock())
	_, ok := s.lookup("missing")
	require.False(t, ok)
}

func TestStoreInsertIfAbsent(t *testing.T) {
	mock := clock.NewMock()
	s := newStore(mock)

	require.True(t, s.insertIfAbsent("k", "v1", 0))
	v, ok := s.lookup("k")
	require.True(t, ok)
	require.Equal(t, "v1", v)

	// A second insertIfAbsent while the entry is still live is a no-op.
	require.False(t, s.insertIfAbsent("k", "v2", 0))
	v, ok = s.lookup("k")
	require.True(t, ok)
	require.Equal(t, "v1", v)
}

func TestStoreExpiration(t *testing.T) {
	mock := clock.NewMock()
	s := newStore(mock)

	s.insertIfAbsent("k", "v", int64(10*time.Millisecond))

	v, ok := s.lookup("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	mock.Add(5 * time.Millisecond)
	_, ok = s.lookup("k")
	require.True(t, ok, "not yet past the deadline")

	mock.Add(20 * time.Millisecond)
	_, ok = s.lookup("k")
	require.False(t, ok, "deadline has passed, must be observably gone even before a purge")
}

func TestStoreInsertIfAbsentAfterExpiry(t *testing.T) {
	mock := clock.NewMock()
	s := newStore(mock)

	s.insertIfAbsent("k", "stale", int64(time.Millisecond))
	mock.Add(10 * time.Millisecond)

	// The stale entry is expired, so insertIfAbsent must treat the key as
	// absent and install the new value.
	require.True(t, s.insertIfAbsent("k", "fresh", 0))
	v, ok := s.lookup("k")
	require.True(t, ok)
	require.Equal(t, "fresh", v)
}

func TestStorePurgeExpired(t *testing.T) {
	mock := clock.NewMock()
	s := newStore(mock)

	s.insertIfAbsent("expires", "v", int64(time.Millisecond))
	s.insertIfAbsent("forever", "v", 0)

	mock.Add(10 * time.Millisecond)

	removed := s.purgeExpired(mock.Now().UnixNano())
	require.Equal(t, 1, removed)

	_, ok := s.lookup("forever")
	require.True(t, ok, "purge must never remove a non-expiring entry")
}

func TestStoreDelete(t *testing.T) {
	s := newStore(clock.NewMock())
	s.insertIfAbsent("k", "v", 0)
	s.delete("k")
	_, ok := s.lookup("k")
	require.False(t, ok)

	// Deleting an absent key is a safe no-op.
	s.delete("k")
}
