/*
Package cache is a bounded, TTL-based memoization layer for expensive
aggregate computations.

PURPOSE:
  Sits in front of read-heavy derived queries (per-project totals,
  global counts). Bounded by an entry-count ceiling and an approximate
  memory ceiling; evicts least-recently-used first. Entries expire
  independently of their LRU position.

KEY DESIGN PRINCIPLES:
  1. Misses collapse: concurrent GetOrCompute calls for the same
     uncached key share one in-flight computation (singleflight).
     This is the property that keeps a hot key from stampeding the
     store.
  2. Scoped invalidation: keys are namespaced by scope (one scope per
     project, plus a global scope), and the cache keeps a per-scope
     index, so invalidating a project touches only that project's
     entries - never a full scan.
  3. Write coherence via generations: every scope carries a generation
     counter, bumped on invalidation, and the cache carries an epoch,
     bumped on full invalidation. A computation that started before
     either bump refuses to cache its (now possibly stale) result, so
     a read after a write never returns a value computed before the
     write.
  4. Failures are never cached. A failed or timed-out compute leaves
     the cache untouched and does not block the next attempt.

CONFIGURATION:
  Exactly three tunables: max entries, max memory bytes, default TTL.
  Anything else is the caller's problem.

USAGE:
  c := cache.New(cache.Config{MaxEntries: 512, MaxMemoryBytes: 32 << 20, DefaultTTL: 30 * time.Second})
  v, err := c.GetOrCompute(ctx, cache.ProjectScope(7), "totals", 0, func(ctx context.Context) (any, error) {
      return store.ProjectTotals(ctx, 7)
  })
  ...
  c.Invalidate(cache.ProjectScope(7)) // after any write touching project 7

SEE ALSO:
  - api/views.go: the aggregate views served through this cache
*/
package cache

import (
	"container/list"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// GlobalScope namespaces aggregates computed over the whole store.
const GlobalScope = "global"

// ProjectScope namespaces aggregates scoped to one project.
func ProjectScope(id int64) string {
	return "project:" + strconv.FormatInt(id, 10)
}

// Config carries the cache's three tunables. Zero values select the
// defaults below.
type Config struct {
	MaxEntries     int           // entry-count ceiling (default 1024)
	MaxMemoryBytes int64         // approximate memory ceiling (default 32 MiB)
	DefaultTTL     time.Duration // used when a call passes ttl <= 0 (default 30s)
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1024
	}
	if c.MaxMemoryBytes <= 0 {
		c.MaxMemoryBytes = 32 << 20
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 30 * time.Second
	}
	return c
}

// ComputeFunc produces the value for a missing key. The context is the
// initiating caller's; a compute that respects it stays within that
// caller's deadline.
type ComputeFunc func(ctx context.Context) (any, error)

// Sizer lets cached values report their approximate footprint. Values
// that don't implement it are charged a flat default.
type Sizer interface {
	SizeBytes() int
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Expirations uint64
	Evictions   uint64
	Timeouts    uint64
	Entries     int
	MemoryBytes int64
}

type entry struct {
	key       string
	scope     string
	value     any
	size      int64
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg   Config
	group singleflight.Group

	mu      sync.Mutex
	lru     *list.List               // front = most recently used
	items   map[string]*list.Element // full key -> element
	byScope map[string]map[string]*list.Element

	// gens holds per-scope generations, bumped by Invalidate; epoch is
	// the cache-wide counterpart, bumped by InvalidateAll. A compute
	// captures both and its result is cached only if neither moved.
	// The epoch covers scopes with no gens entry of their own, and
	// lets InvalidateAll reset gens so the map's growth is bounded by
	// the scopes invalidated since the last full flush.
	gens  map[string]uint64
	epoch uint64

	memBytes int64
	stats    Stats
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:     cfg.withDefaults(),
		lru:     list.New(),
		items:   make(map[string]*list.Element),
		byScope: make(map[string]map[string]*list.Element),
		gens:    make(map[string]uint64),
	}
}

// GetOrCompute returns the cached value for (scope, name) if present and
// unexpired, else computes it. A ttl <= 0 selects the configured default.
//
// Concurrent calls for the same missing key share a single in-flight
// compute. The caller's context bounds the wait: on deadline expiry the
// call returns a TimeoutError and nothing is cached.
func (c *Cache) GetOrCompute(ctx context.Context, scope, name string, ttl time.Duration, fn ComputeFunc) (any, error) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	key := scope + "/" + name

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		if time.Now().Before(ent.expiresAt) {
			c.lru.MoveToFront(el)
			c.stats.Hits++
			v := ent.value
			c.mu.Unlock()
			return v, nil
		}
		// Expired entries are misses regardless of recency.
		c.removeLocked(el)
		c.stats.Expirations++
	}
	gen, epoch := c.gens[scope], c.epoch
	c.stats.Misses++
	c.mu.Unlock()

	// Generation and epoch are part of the flight key: an invalidation
	// during the compute reroutes later callers to a fresh flight
	// instead of handing them the stale in-flight result.
	flightKey := key + "#" + strconv.FormatUint(epoch, 10) + "." + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.store(scope, key, gen, epoch, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, context.DeadlineExceeded) {
				c.countTimeout()
				return nil, &TimeoutError{Key: key, Cause: res.Err}
			}
			return nil, &ComputeError{Key: key, Cause: res.Err}
		}
		return res.Val, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.countTimeout()
			return nil, &TimeoutError{Key: key, Cause: ctx.Err()}
		}
		return nil, ctx.Err()
	}
}

// Invalidate drops every entry in the scope and bumps its generation so
// in-flight computes for the scope cannot cache stale results. Cost is
// proportional to the scope's own entry count.
func (c *Cache) Invalidate(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[scope]++
	for _, el := range c.byScope[scope] {
		c.removeLocked(el)
	}
	delete(c.byScope, scope)
}

// InvalidateAll empties the cache and invalidates every in-flight
// compute, including ones for scopes that were never individually
// invalidated.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// One epoch bump outruns every captured (epoch, gen) pair, so the
	// per-scope generations can restart from zero.
	c.epoch++
	c.gens = make(map[string]uint64)
	c.lru.Init()
	c.items = make(map[string]*list.Element)
	c.byScope = make(map[string]map[string]*list.Element)
	c.memBytes = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	s.MemoryBytes = c.memBytes
	return s
}

// Len returns the live entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// store inserts a freshly computed value, unless the scope or the whole
// cache was invalidated while the compute ran.
func (c *Cache) store(scope, key string, gen, epoch uint64, v any, ttl time.Duration) {
	size := sizeOf(key, v)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.gens[scope] != gen {
		return // a write beat us; the result may predate it
	}
	if size > c.cfg.MaxMemoryBytes {
		return // larger than the whole budget: serve uncached
	}
	if old, ok := c.items[key]; ok {
		c.removeLocked(old)
	}

	ent := &entry{key: key, scope: scope, value: v, size: size, expiresAt: time.Now().Add(ttl)}
	el := c.lru.PushFront(ent)
	c.items[key] = el
	set, ok := c.byScope[scope]
	if !ok {
		set = make(map[string]*list.Element)
		c.byScope[scope] = set
	}
	set[key] = el
	c.memBytes += size

	for c.lru.Len() > c.cfg.MaxEntries || c.memBytes > c.cfg.MaxMemoryBytes {
		oldest := c.lru.Back()
		if oldest == nil || oldest == el {
			break
		}
		c.removeLocked(oldest)
		c.stats.Evictions++
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.items, ent.key)
	if set, ok := c.byScope[ent.scope]; ok {
		delete(set, ent.key)
		if len(set) == 0 {
			delete(c.byScope, ent.scope)
		}
	}
	c.memBytes -= ent.size
}

func (c *Cache) countTimeout() {
	c.mu.Lock()
	c.stats.Timeouts++
	c.mu.Unlock()
}

// entryOverhead approximates the bookkeeping cost per entry (list
// element, map slots, entry struct, key copies).
const entryOverhead = 160

// defaultValueSize charges values that can't report their own size.
const defaultValueSize = 512

func sizeOf(key string, v any) int64 {
	base := int64(entryOverhead + 2*len(key))
	if s, ok := v.(Sizer); ok {
		return base + int64(s.SizeBytes())
	}
	return base + defaultValueSize
}
