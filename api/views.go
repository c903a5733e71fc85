/*
views.go - Cached aggregate views

PURPOSE:
  Fronts the store's expensive aggregate reads (per-project totals,
  global totals) with the bounded cache. Every handler that mutates the
  store reports the affected project here so no stale aggregate is ever
  served after a write.

CACHE KEYS:
  project:{id}/totals   One project's ProjectTotals
  global/totals         Store-wide GlobalTotals

  A write to project P invalidates the project:{P} scope AND the global
  scope (P's rows feed the global sums too). Deletes whose project is
  unknown fall back to InvalidateAll.

SEE ALSO:
  - ../cache: GetOrCompute semantics, bounding, singleflight
  - ../studio/aggregates.go: The value types cached here
*/
package api

import (
	"context"
	"time"

	"github.com/quartertone/studio-engine/cache"
	"github.com/quartertone/studio-engine/studio"
)

// totalsKey names the aggregate inside its scope.
const totalsKey = "totals"

// Views serves aggregate reads through the cache and owns invalidation.
// It implements consolidate.Invalidator so the engine can report writes
// the same way handlers do.
type Views struct {
	store studio.Store
	cache *cache.Cache

	// TTL for aggregate entries. Zero selects the cache's default.
	TTL time.Duration
}

// NewViews wires the store's aggregate accessors to the cache.
func NewViews(store studio.Store, c *cache.Cache) *Views {
	return &Views{store: store, cache: c}
}

// ProjectTotals returns the cached totals for one project, computing
// them on a miss. The caller's context bounds the compute.
func (v *Views) ProjectTotals(ctx context.Context, projectID int64) (*studio.ProjectTotals, error) {
	val, err := v.cache.GetOrCompute(ctx, cache.ProjectScope(projectID), totalsKey, v.TTL,
		func(ctx context.Context) (any, error) {
			return v.store.ProjectTotals(ctx, projectID)
		})
	if err != nil {
		return nil, err
	}
	return val.(*studio.ProjectTotals), nil
}

// GlobalTotals returns the cached store-wide totals.
func (v *Views) GlobalTotals(ctx context.Context) (*studio.GlobalTotals, error) {
	val, err := v.cache.GetOrCompute(ctx, cache.GlobalScope, totalsKey, v.TTL,
		func(ctx context.Context) (any, error) {
			return v.store.GlobalTotals(ctx)
		})
	if err != nil {
		return nil, err
	}
	return val.(*studio.GlobalTotals), nil
}

// InvalidateProject drops the project's cached aggregates plus the
// global ones, which always count the project's rows.
func (v *Views) InvalidateProject(id int64) {
	v.cache.Invalidate(cache.ProjectScope(id))
	v.cache.Invalidate(cache.GlobalScope)
}

// InvalidateAll empties the cache. Used by reset and by deletes whose
// owning project is not known at the call site.
func (v *Views) InvalidateAll() {
	v.cache.InvalidateAll()
}

// CacheStats exposes the cache counters for the stats endpoint.
func (v *Views) CacheStats() cache.Stats {
	return v.cache.Stats()
}
