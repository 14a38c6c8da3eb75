/*
cache.go - Read-through cache of the current budget snapshot

PURPOSE:
  Rollup queries need the full current record set. Rebuilding it from
  the ledger on every display refresh is wasteful, so the transport
  layer owns a read-through cache with a 30s staleness bound - the same
  bound the display layer has always tolerated.

  The cache lives HERE, not in the engine: the engine stays stateless
  and always takes a fresh snapshot as a parameter. Writes invalidate
  the cache so a confirmation read never shows pre-write state.

SEE ALSO:
  - handlers.go: Reads through this cache, invalidates on writes
  - budget/ledger.go: The underlying snapshot source
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/budget-engine/budget"
)

// snapshotTTL is the staleness bound for cached budget snapshots.
const snapshotTTL = 30 * time.Second

type snapshotCache struct {
	ledger budget.Ledger

	mu        sync.Mutex
	snapshot  budget.Snapshot
	fetchedAt time.Time
}

func newSnapshotCache(ledger budget.Ledger) *snapshotCache {
	return &snapshotCache{ledger: ledger}
}

// Get returns the cached snapshot, refreshing it from the ledger when
// stale. Concurrent callers share one refresh.
func (c *snapshotCache) Get(ctx context.Context) (budget.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < snapshotTTL {
		return c.snapshot, nil
	}

	snap, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return budget.Snapshot{}, err
	}
	c.snapshot = snap
	c.fetchedAt = time.Now()
	return snap, nil
}

// Invalidate drops the cached snapshot. Called after every write.
func (c *snapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}
