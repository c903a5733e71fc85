package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartertone/studio-engine/cache"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestCache(cfg cache.Config) *cache.Cache {
	return cache.New(cfg)
}

// constant returns a ComputeFunc yielding v and counting invocations.
func constant(v any, calls *atomic.Int64) cache.ComputeFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}
}

type sized struct {
	bytes int
}

func (s sized) SizeBytes() int { return s.bytes }

// =============================================================================
// BASIC GET-OR-COMPUTE
// =============================================================================

func TestGetOrCompute_HitSkipsCompute(t *testing.T) {
	c := newTestCache(cache.Config{})
	ctx := context.Background()
	var calls atomic.Int64

	v1, err := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, constant("value", &calls))
	require.NoError(t, err)
	assert.Equal(t, "value", v1)

	v2, err := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, constant("other", &calls))
	require.NoError(t, err)
	assert.Equal(t, "value", v2, "hit returns the cached value")
	assert.Equal(t, int64(1), calls.Load(), "second call must not compute")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestGetOrCompute_DistinctKeysDistinctValues(t *testing.T) {
	c := newTestCache(cache.Config{})
	ctx := context.Background()
	var calls atomic.Int64

	a, err := c.GetOrCompute(ctx, cache.ProjectScope(1), "totals", 0, constant("a", &calls))
	require.NoError(t, err)
	b, err := c.GetOrCompute(ctx, cache.ProjectScope(2), "totals", 0, constant("b", &calls))
	require.NoError(t, err)

	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
	assert.Equal(t, int64(2), calls.Load())
}

// =============================================================================
// LRU BOUNDING
// =============================================================================

func TestEviction_CountCeiling(t *testing.T) {
	// GIVEN: max_entries=2 and keys A, B, C requested in order
	// THEN: A (least recently used) is evicted when C arrives

	c := newTestCache(cache.Config{MaxEntries: 2})
	ctx := context.Background()
	var callsA, callsB, callsC atomic.Int64

	_, err := c.GetOrCompute(ctx, "s", "A", 0, constant("a", &callsA))
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "s", "B", 0, constant("b", &callsB))
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "s", "C", 0, constant("c", &callsC))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len(), "entry count never exceeds the ceiling")
	assert.Equal(t, uint64(1), c.Stats().Evictions)

	// B and C are hits; A was evicted and recomputes.
	_, _ = c.GetOrCompute(ctx, "s", "B", 0, constant("b", &callsB))
	_, _ = c.GetOrCompute(ctx, "s", "C", 0, constant("c", &callsC))
	_, _ = c.GetOrCompute(ctx, "s", "A", 0, constant("a", &callsA))
	assert.Equal(t, int64(1), callsB.Load())
	assert.Equal(t, int64(1), callsC.Load())
	assert.Equal(t, int64(2), callsA.Load(), "A must recompute after eviction")
}

func TestEviction_HitRefreshesRecency(t *testing.T) {
	// GIVEN: A, B cached, then A read again
	// WHEN: C arrives
	// THEN: B is evicted, not A

	c := newTestCache(cache.Config{MaxEntries: 2})
	ctx := context.Background()
	var callsA, callsB atomic.Int64

	_, _ = c.GetOrCompute(ctx, "s", "A", 0, constant("a", &callsA))
	_, _ = c.GetOrCompute(ctx, "s", "B", 0, constant("b", &callsB))
	_, _ = c.GetOrCompute(ctx, "s", "A", 0, constant("a", &callsA)) // refresh A
	_, _ = c.GetOrCompute(ctx, "s", "C", 0, constant("c", new(atomic.Int64)))

	_, _ = c.GetOrCompute(ctx, "s", "A", 0, constant("a", &callsA))
	assert.Equal(t, int64(1), callsA.Load(), "A stayed cached")

	_, _ = c.GetOrCompute(ctx, "s", "B", 0, constant("b", &callsB))
	assert.Equal(t, int64(2), callsB.Load(), "B was the LRU victim")
}

func TestEviction_MemoryCeiling(t *testing.T) {
	// Three ~1.2KB values against a 2.5KB budget: the oldest gives way.
	c := newTestCache(cache.Config{MaxEntries: 100, MaxMemoryBytes: 2500})
	ctx := context.Background()

	for _, name := range []string{"m1", "m2", "m3"} {
		_, err := c.GetOrCompute(ctx, "s", name, 0, func(ctx context.Context) (any, error) {
			return sized{bytes: 1000}, nil
		})
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.LessOrEqual(t, stats.MemoryBytes, int64(2500), "memory never exceeds the ceiling")
	assert.Equal(t, uint64(1), stats.Evictions)

	var recomputed atomic.Int64
	_, _ = c.GetOrCompute(ctx, "s", "m1", 0, constant(sized{bytes: 10}, &recomputed))
	assert.Equal(t, int64(1), recomputed.Load(), "m1 was the memory-pressure victim")
}

func TestOversizedValue_ServedUncached(t *testing.T) {
	c := newTestCache(cache.Config{MaxEntries: 10, MaxMemoryBytes: 500})
	ctx := context.Background()
	var calls atomic.Int64

	v, err := c.GetOrCompute(ctx, "s", "huge", 0, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return sized{bytes: 10_000}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sized{bytes: 10_000}, v, "value is still returned")
	assert.Equal(t, 0, c.Len(), "a value bigger than the whole budget is not cached")
}

// =============================================================================
// TTL EXPIRY
// =============================================================================

func TestTTL_ExpiredEntryRecomputes(t *testing.T) {
	c := newTestCache(cache.Config{})
	ctx := context.Background()
	var calls atomic.Int64

	_, err := c.GetOrCompute(ctx, "s", "k", 30*time.Millisecond, constant("v1", &calls))
	require.NoError(t, err)

	// Keep the entry at the front of the LRU: expiry must not care.
	_, _ = c.GetOrCompute(ctx, "s", "k", 30*time.Millisecond, constant("v1", &calls))
	assert.Equal(t, int64(1), calls.Load())

	time.Sleep(50 * time.Millisecond)

	v, err := c.GetOrCompute(ctx, "s", "k", 30*time.Millisecond, constant("v2", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v2", v, "expired entry recomputes even at the LRU front")
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, uint64(1), c.Stats().Expirations)
}

func TestTTL_ZeroSelectsDefault(t *testing.T) {
	c := newTestCache(cache.Config{DefaultTTL: 25 * time.Millisecond})
	ctx := context.Background()
	var calls atomic.Int64

	_, _ = c.GetOrCompute(ctx, "s", "k", 0, constant("v", &calls))
	time.Sleep(50 * time.Millisecond)
	_, _ = c.GetOrCompute(ctx, "s", "k", 0, constant("v", &calls))

	assert.Equal(t, int64(2), calls.Load(), "default TTL applies when the call passes zero")
}

// =============================================================================
// SINGLEFLIGHT COLLAPSE
// =============================================================================

func TestConcurrentMisses_CollapseToOneCompute(t *testing.T) {
	// GIVEN: 10 concurrent requests for the same uncached key
	// THEN: Exactly one compute runs; everyone gets its result

	c := newTestCache(cache.Config{})
	var calls atomic.Int64

	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond) // hold the flight open for joiners
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "hot", "key", 0, fn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent misses must collapse to one compute")
	for i := 0; i < 10; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

// =============================================================================
// INVALIDATION AND WRITE COHERENCE
// =============================================================================

func TestInvalidate_ScopedOnly(t *testing.T) {
	c := newTestCache(cache.Config{})
	ctx := context.Background()
	var calls7, calls9 atomic.Int64

	_, _ = c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, constant("seven", &calls7))
	_, _ = c.GetOrCompute(ctx, cache.ProjectScope(9), "totals", 0, constant("nine", &calls9))

	c.Invalidate(cache.ProjectScope(7))

	_, _ = c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, constant("seven", &calls7))
	assert.Equal(t, int64(2), calls7.Load(), "invalidated scope recomputes")

	_, _ = c.GetOrCompute(ctx, cache.ProjectScope(9), "totals", 0, constant("nine", &calls9))
	assert.Equal(t, int64(1), calls9.Load(), "other scopes stay cached")
}

func TestInvalidate_DuringInFlightCompute(t *testing.T) {
	// GIVEN: A compute in flight when its scope is invalidated
	// THEN: The stale result is not cached; the next read recomputes

	c := newTestCache(cache.Config{})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64

	done := make(chan any, 1)
	go func() {
		v, _ := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, func(ctx context.Context) (any, error) {
			calls.Add(1)
			close(started)
			<-release
			return "stale", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate(cache.ProjectScope(7)) // the write wins the race
	close(release)
	assert.Equal(t, "stale", <-done, "the in-flight caller still gets its result")

	v, err := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, constant("fresh", &calls))
	require.NoError(t, err)
	assert.Equal(t, "fresh", v, "a read after the write never sees the pre-write value")
	assert.Equal(t, int64(2), calls.Load())
}

func TestInvalidateAll(t *testing.T) {
	c := newTestCache(cache.Config{})
	ctx := context.Background()
	var calls atomic.Int64

	_, _ = c.GetOrCompute(ctx, cache.ProjectScope(1), "totals", 0, constant("a", &calls))
	_, _ = c.GetOrCompute(ctx, cache.GlobalScope, "totals", 0, constant("g", &calls))
	require.Equal(t, 2, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().MemoryBytes)

	_, _ = c.GetOrCompute(ctx, cache.GlobalScope, "totals", 0, constant("g", &calls))
	assert.Equal(t, int64(3), calls.Load())
}

func TestInvalidateAll_DuringInFlightCompute(t *testing.T) {
	// GIVEN: A compute in flight for a scope that was never individually
	//        invalidated when the whole cache is flushed
	// THEN: The stale result is not cached; the next read recomputes

	c := newTestCache(cache.Config{})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64

	done := make(chan any, 1)
	go func() {
		v, _ := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, func(ctx context.Context) (any, error) {
			calls.Add(1)
			close(started)
			<-release
			return "stale", nil
		})
		done <- v
	}()

	<-started
	c.InvalidateAll() // the flush wins the race
	close(release)
	assert.Equal(t, "stale", <-done, "the in-flight caller still gets its result")

	v, err := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, constant("fresh", &calls))
	require.NoError(t, err)
	assert.Equal(t, "fresh", v, "a read after the flush never sees the pre-flush value")
	assert.Equal(t, int64(2), calls.Load())
}

// =============================================================================
// FAILURE SEMANTICS
// =============================================================================

func TestComputeFailure_NeverCached(t *testing.T) {
	c := newTestCache(cache.Config{})
	ctx := context.Background()
	var calls atomic.Int64
	boom := errors.New("store unavailable")

	_, err := c.GetOrCompute(ctx, "s", "k", 0, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, boom
	})
	require.Error(t, err)

	var ce *cache.ComputeError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, cache.ErrComputeFailed)
	assert.ErrorIs(t, err, boom, "the original cause stays reachable")
	assert.False(t, cache.IsTimeout(err))
	assert.Equal(t, 0, c.Len(), "failures must not poison the cache")

	// The next attempt is not blocked and can succeed.
	v, err := c.GetOrCompute(ctx, "s", "k", 0, constant("recovered", &calls))
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int64(2), calls.Load())
}

func TestComputeTimeout_DistinctFailureKind(t *testing.T) {
	// GIVEN: A caller-supplied deadline shorter than the compute
	// THEN: A timeout error (not a generic failure), nothing cached,
	//       and the next attempt is free to run

	c := newTestCache(cache.Config{})
	var calls atomic.Int64

	slow := func(ctx context.Context) (any, error) {
		calls.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetOrCompute(ctx, "s", "slow", 0, slow)
	require.Error(t, err)
	assert.True(t, cache.IsTimeout(err), "deadline expiry must surface as a timeout, got %v", err)
	assert.ErrorIs(t, err, cache.ErrComputeTimeout)
	assert.False(t, errors.Is(err, cache.ErrComputeFailed), "timeout and failure are distinct kinds")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Timeouts)

	v, err := c.GetOrCompute(context.Background(), "s", "slow", 0, constant("ok", &calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", v, "a timed-out key must not block later attempts")
}

func TestComputeCancellation_PropagatesPlainly(t *testing.T) {
	c := newTestCache(cache.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetOrCompute(ctx, "s", "k", 0, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, cache.IsTimeout(err), "cancellation is not a timeout")
}
