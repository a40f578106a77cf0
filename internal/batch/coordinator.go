// Package batch periodically folds every in-view source into one bulk
// request and fans the results back into the memory cache.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SwarmMonkey/NewsTerminal/internal/memcache"
	"github.com/SwarmMonkey/NewsTerminal/internal/refetch"
	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

const (
	defaultSyncInterval   = 3 * time.Minute
	defaultRequestTimeout = 30 * time.Second
)

// Coordinator bulk-fetches snapshots for the currently in-view sources.
//
// The in-view set is deduplicated and sorted before each request; the sorted
// key also collapses concurrently-triggered syncs for the same set into one
// in-flight call. Returned snapshots are applied with a conditional write so
// an out-of-order response can never roll cached state backward, and only
// ids whose write took effect are announced to consumers.
type Coordinator struct {
	client  newsfeed.SnapshotClient
	cache   *memcache.Cache
	bus     *refetch.Bus
	catalog newsfeed.Catalog
	logger  *slog.Logger
	clock   func() time.Time

	interval       time.Duration
	requestTimeout time.Duration

	mu     sync.Mutex
	inView map[newsfeed.SourceID]struct{}

	flights singleflight.Group
	trigger chan struct{}
}

// Option mutates coordinator configuration.
type Option func(*Coordinator)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the wall clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSyncInterval sets the periodic sync cadence.
func WithSyncInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithRequestTimeout bounds one batch round-trip. Batch calls are never
// retried; a failure is logged and deferred to the next trigger.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// New wires a coordinator over its collaborators.
func New(
	client newsfeed.SnapshotClient,
	cache *memcache.Cache,
	bus *refetch.Bus,
	catalog newsfeed.Catalog,
	opts ...Option,
) (*Coordinator, error) {
	if client == nil {
		return nil, fmt.Errorf("new batch coordinator: nil snapshot client")
	}
	if cache == nil {
		return nil, fmt.Errorf("new batch coordinator: nil memory cache")
	}
	if bus == nil {
		return nil, fmt.Errorf("new batch coordinator: nil refetch bus")
	}
	if catalog == nil {
		return nil, fmt.Errorf("new batch coordinator: nil catalog")
	}

	c := &Coordinator{
		client:         client,
		cache:          cache,
		bus:            bus,
		catalog:        catalog,
		logger:         slog.Default(),
		clock:          time.Now,
		interval:       defaultSyncInterval,
		requestTimeout: defaultRequestTimeout,
		inView:         make(map[newsfeed.SourceID]struct{}),
		trigger:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SetInView replaces the set of sources considered in view and eagerly
// triggers a sync when the set is non-empty.
func (c *Coordinator) SetInView(ids ...newsfeed.SourceID) {
	c.mu.Lock()
	c.inView = make(map[newsfeed.SourceID]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			c.inView[id] = struct{}{}
		}
	}
	size := len(c.inView)
	c.mu.Unlock()

	if size > 0 {
		c.TriggerSync()
	}
}

// TriggerSync requests an eager sync without blocking. A trigger arriving
// while one is already queued is absorbed.
func (c *Coordinator) TriggerSync() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run drives periodic and triggered syncs until ctx is cancelled. Sync
// failures are logged and skipped; they never stop the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.syncLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.syncLogged(ctx)
		case <-c.trigger:
			c.syncLogged(ctx)
		}
	}
}

func (c *Coordinator) syncLogged(ctx context.Context) {
	if err := c.Sync(ctx); err != nil {
		c.logger.Warn("batch sync skipped", "error", err)
	}
}

// Sync performs one bulk fetch for the current in-view set and applies the
// results. Concurrent Sync calls for the same logical id set share one
// network call.
func (c *Coordinator) Sync(ctx context.Context) error {
	ids := c.sortedInView()
	if len(ids) == 0 {
		return nil
	}

	key := batchKey(ids)
	_, err, _ := c.flights.Do(key, func() (any, error) {
		changed, err := c.syncOnce(ctx, ids)
		if err != nil {
			return nil, err
		}
		// Announce inside the flight so coalesced callers do not
		// re-notify the same changed set.
		if len(changed) > 0 {
			c.bus.NotifyChanged(changed...)
		}
		return changed, nil
	})
	if err != nil {
		return fmt.Errorf("batch sync %s: %w", key, err)
	}

	return nil
}

// syncOnce issues the request and applies conditional writes, returning the
// ids whose cached snapshot actually advanced.
func (c *Coordinator) syncOnce(ctx context.Context, ids []newsfeed.SourceID) ([]newsfeed.SourceID, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	snaps, err := c.client.FetchBatch(reqCtx, ids)
	if err != nil {
		return nil, err
	}

	now := newsfeed.NowMilli(c.clock())
	changed := make([]newsfeed.SourceID, 0, len(snaps))
	for _, snap := range snaps {
		if err := snap.Validate(); err != nil {
			c.logger.Warn("batch snapshot discarded", "error", err)
			continue
		}

		var interval time.Duration
		if meta, ok := c.catalog.Lookup(snap.ID); ok {
			interval = meta.Interval
		}
		snap.UpdatedTime = EffectiveUpdatedTime(now, snap.UpdatedTime, interval)

		if c.cache.SetIfNewer(snap.ID, snap) {
			changed = append(changed, snap.ID)
		}
	}

	c.logger.Debug("batch sync applied",
		"requested", len(ids),
		"returned", len(snaps),
		"changed", len(changed),
	)

	return changed, nil
}

// sortedInView returns the deduplicated, deterministically sorted id set.
// Sort order is part of the logical request identity: the same set in any
// input order produces the same batch key.
func (c *Coordinator) sortedInView() []newsfeed.SourceID {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]newsfeed.SourceID, 0, len(c.inView))
	for id := range c.inView {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	return ids
}

func batchKey(ids []newsfeed.SourceID) string {
	parts := make([]string, len(ids))
	for idx, id := range ids {
		parts[idx] = string(id)
	}

	return strings.Join(parts, ",")
}

// EffectiveUpdatedTime applies the display-smoothing rule for batch
// snapshots: a write still within its source's freshness window is presented
// as updated "now" instead of showing its true last-write time. Inputs and
// output are epoch milliseconds.
func EffectiveUpdatedTime(nowMilli, updatedMilli int64, interval time.Duration) int64 {
	if nowMilli-updatedMilli < interval.Milliseconds() {
		return nowMilli
	}

	return updatedMilli
}
