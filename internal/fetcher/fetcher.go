// Package fetcher resolves per-source snapshots through the tier chain:
// forced refresh flag, memory cache, persistent store, then network.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/SwarmMonkey/NewsTerminal/internal/diff"
	"github.com/SwarmMonkey/NewsTerminal/internal/memcache"
	"github.com/SwarmMonkey/NewsTerminal/internal/refetch"
	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

const (
	defaultAttemptTimeout  = 10 * time.Second
	defaultMaxRetries      = 2
	defaultInitialInterval = time.Second
	defaultMaxBackoff      = 30 * time.Second
)

// Fetcher is the per-source fetch state machine.
//
// Fetch always returns a usable snapshot. The error return is diagnostic
// only: it is non-nil when every tier failed and the snapshot is a
// synthesized empty fallback, so a consumer can render its failed state
// while still holding a valid value.
//
// At most one network fetch is in flight per source id; concurrent requests
// for the same id coalesce onto the pending operation. Fetches for distinct
// ids are fully independent.
type Fetcher struct {
	client  newsfeed.SnapshotClient
	cache   *memcache.Cache
	store   newsfeed.PersistentStore
	bus     *refetch.Bus
	catalog newsfeed.Catalog
	logger  *slog.Logger
	clock   func() time.Time

	attemptTimeout  time.Duration
	maxRetries      uint64
	initialInterval time.Duration
	maxBackoff      time.Duration

	flights singleflight.Group
}

// Option mutates fetcher configuration.
type Option func(*Fetcher)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock replaces the wall clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(f *Fetcher) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithAttemptTimeout sets the hard per-attempt network ceiling.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.attemptTimeout = timeout
		}
	}
}

// WithRetryPolicy sets the retry count and backoff bounds. Callers must not
// wrap Fetch in their own retry loop on top of this.
func WithRetryPolicy(maxRetries uint64, initialInterval, maxBackoff time.Duration) Option {
	return func(f *Fetcher) {
		f.maxRetries = maxRetries
		if initialInterval > 0 {
			f.initialInterval = initialInterval
		}
		if maxBackoff > 0 {
			f.maxBackoff = maxBackoff
		}
	}
}

// New wires a fetcher over its collaborators.
func New(
	client newsfeed.SnapshotClient,
	cache *memcache.Cache,
	store newsfeed.PersistentStore,
	bus *refetch.Bus,
	catalog newsfeed.Catalog,
	opts ...Option,
) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new fetcher: nil snapshot client")
	}
	if cache == nil {
		return nil, fmt.Errorf("new fetcher: nil memory cache")
	}
	if store == nil {
		return nil, fmt.Errorf("new fetcher: nil persistent store")
	}
	if bus == nil {
		return nil, fmt.Errorf("new fetcher: nil refetch bus")
	}
	if catalog == nil {
		return nil, fmt.Errorf("new fetcher: nil catalog")
	}

	f := &Fetcher{
		client:          client,
		cache:           cache,
		store:           store,
		bus:             bus,
		catalog:         catalog,
		logger:          slog.Default(),
		clock:           time.Now,
		attemptTimeout:  defaultAttemptTimeout,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		maxBackoff:      defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Fetch resolves the snapshot for id.
//
// Resolution order: a pending forced-refresh flag is consumed first and goes
// straight to the network with the "latest" variant. Otherwise a memory-cache
// hit returns immediately after an opportunistic write-through to the
// persistent store; a non-empty persisted snapshot returns after warming the
// memory cache; only then does the network get involved.
func (f *Fetcher) Fetch(ctx context.Context, id newsfeed.SourceID) (newsfeed.SourceSnapshot, error) {
	if id == "" {
		return newsfeed.SourceSnapshot{}, fmt.Errorf("fetch: empty source id")
	}

	forced := f.bus.ConsumeIfPending(id)
	if !forced {
		if snap, ok := f.cache.Get(id); ok {
			f.writeThrough(ctx, id, snap)
			return snap, nil
		}
		if snap, ok := f.loadPersisted(ctx, id); ok {
			f.cache.Set(id, snap)
			return snap, nil
		}
	}

	return f.resolve(ctx, id, forced)
}

// resolve coalesces concurrent network resolutions for one id onto a single
// in-flight operation.
//
// The shared operation runs on a context detached from any individual
// caller, so an abandoned caller cannot cancel the fetch out from under the
// others and committed cache writes never depend on caller lifetime.
func (f *Fetcher) resolve(ctx context.Context, id newsfeed.SourceID, forced bool) (newsfeed.SourceSnapshot, error) {
	flightCtx := context.WithoutCancel(ctx)
	result, _, _ := f.flights.Do(string(id), func() (any, error) {
		return f.resolveNetwork(flightCtx, id, forced), nil
	})

	outcome := result.(fetchOutcome)
	return outcome.snap, outcome.err
}

type fetchOutcome struct {
	snap newsfeed.SourceSnapshot
	err  error
}

// resolveNetwork performs the bounded fetch and, on failure, walks the
// fallback chain: memory cache, non-empty persisted snapshot, then a
// synthesized empty snapshot that is never cached or persisted.
func (f *Fetcher) resolveNetwork(ctx context.Context, id newsfeed.SourceID, forced bool) fetchOutcome {
	snap, err := f.fetchWithRetry(ctx, id, forced)
	if err == nil {
		return fetchOutcome{snap: f.commit(ctx, id, snap)}
	}

	f.logger.Warn("source fetch failed, falling back",
		"source", id,
		"forced", forced,
		"error", err,
	)

	if cached, ok := f.cache.Get(id); ok {
		return fetchOutcome{snap: cached}
	}
	if persisted, ok := f.loadPersisted(ctx, id); ok {
		f.cache.Set(id, persisted)
		return fetchOutcome{snap: persisted}
	}

	return fetchOutcome{
		snap: newsfeed.SourceSnapshot{
			Status:      newsfeed.StatusCache,
			ID:          id,
			Items:       []newsfeed.NewsItem{},
			UpdatedTime: newsfeed.NowMilli(f.clock()),
		},
		err: fmt.Errorf("fetch %s: %w", id, err),
	}
}

// fetchWithRetry issues up to 1+maxRetries attempts with exponential backoff.
// Each attempt runs under its own timeout; exceeding it counts as transient.
// An empty item list is a permanent failure: it must not be cached as
// authoritative.
func (f *Fetcher) fetchWithRetry(ctx context.Context, id newsfeed.SourceID, forced bool) (newsfeed.SourceSnapshot, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialInterval
	policy.MaxInterval = f.maxBackoff
	policy.MaxElapsedTime = 0

	var snap newsfeed.SourceSnapshot
	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()

		fetched, err := f.client.FetchSource(attemptCtx, id, forced)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(fetched.Items) == 0 {
			return backoff.Permanent(newsfeed.ErrEmptyResult)
		}

		snap = fetched
		return nil
	}

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, f.maxRetries), ctx))
	if err != nil {
		return newsfeed.SourceSnapshot{}, err
	}

	return snap, nil
}

// commit annotates rank deltas for ranked sources, then writes the snapshot
// through both cache tiers. The direct-fetch write is authoritative for its
// id, so the memory write is unconditional.
func (f *Fetcher) commit(ctx context.Context, id newsfeed.SourceID, snap newsfeed.SourceSnapshot) newsfeed.SourceSnapshot {
	if meta, ok := f.catalog.Lookup(id); ok && meta.Type == newsfeed.SourceTypeHottest {
		if previous, ok := f.cache.Get(id); ok {
			diff.Annotate(previous.Items, snap.Items)
		}
	}

	f.cache.Set(id, snap)
	f.writeThrough(ctx, id, snap)

	return snap
}

// loadPersisted reads the persisted tier, failing soft. Only snapshots with
// a non-empty item list count as usable fallbacks.
func (f *Fetcher) loadPersisted(ctx context.Context, id newsfeed.SourceID) (newsfeed.SourceSnapshot, bool) {
	snap, found, err := f.store.Load(ctx, id)
	if err != nil {
		f.logger.Warn("persistent store read failed", "source", id, "error", err)
		return newsfeed.SourceSnapshot{}, false
	}
	if !found || len(snap.Items) == 0 {
		return newsfeed.SourceSnapshot{}, false
	}

	return snap, true
}

// writeThrough saves best-effort; storage failures never abort a fetch.
func (f *Fetcher) writeThrough(ctx context.Context, id newsfeed.SourceID, snap newsfeed.SourceSnapshot) {
	if err := f.store.Save(ctx, id, snap); err != nil {
		f.logger.Warn("persistent store write failed", "source", id, "error", err)
	}
}

// isTransient classifies failures eligible for the retry budget.
func isTransient(err error) bool {
	return errors.Is(err, newsfeed.ErrTransientNetwork) || errors.Is(err, context.DeadlineExceeded)
}
