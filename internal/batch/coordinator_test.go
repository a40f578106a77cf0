package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/SwarmMonkey/NewsTerminal/internal/memcache"
	"github.com/SwarmMonkey/NewsTerminal/internal/refetch"
	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const nowMilli = int64(1_000_000_000)

type stubCatalog map[newsfeed.SourceID]newsfeed.SourceMetadata

func (c stubCatalog) Lookup(id newsfeed.SourceID) (newsfeed.SourceMetadata, bool) {
	meta, ok := c[id]
	return meta, ok
}

func (c stubCatalog) IDs() []newsfeed.SourceID {
	ids := make([]newsfeed.SourceID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}

type stubBatchClient struct {
	mu        sync.Mutex
	calls     int
	requested [][]newsfeed.SourceID
	gate      chan struct{}
	respond   func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error)
}

func (c *stubBatchClient) FetchSource(ctx context.Context, id newsfeed.SourceID, latest bool) (newsfeed.SourceSnapshot, error) {
	return newsfeed.SourceSnapshot{}, errors.New("unexpected single-source call")
}

func (c *stubBatchClient) FetchBatch(ctx context.Context, ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
	c.mu.Lock()
	c.calls++
	c.requested = append(c.requested, append([]newsfeed.SourceID(nil), ids...))
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}

	return c.respond(ids)
}

func (c *stubBatchClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func cacheSnapshot(id newsfeed.SourceID, updated int64) newsfeed.SourceSnapshot {
	return newsfeed.SourceSnapshot{
		Status:      newsfeed.StatusCache,
		ID:          id,
		Items:       []newsfeed.NewsItem{{ID: "1", Title: "t", URL: "https://example.com/1"}},
		UpdatedTime: updated,
	}
}

type harness struct {
	coordinator *Coordinator
	client      *stubBatchClient
	cache       *memcache.Cache
	bus         *refetch.Bus
}

func newHarness(t *testing.T, catalog stubCatalog, respond func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error)) *harness {
	t.Helper()

	h := &harness{
		client: &stubBatchClient{respond: respond},
		cache:  memcache.New(),
		bus:    refetch.NewBus(),
	}
	if catalog == nil {
		catalog = stubCatalog{}
	}

	coordinator, err := New(h.client, h.cache, h.bus, catalog,
		WithClock(func() time.Time { return time.UnixMilli(nowMilli) }),
		WithSyncInterval(time.Hour),
	)
	require.NoError(t, err)
	h.coordinator = coordinator

	return h
}

func drain(updates <-chan newsfeed.SourceID) []newsfeed.SourceID {
	var got []newsfeed.SourceID
	for {
		select {
		case id := <-updates:
			got = append(got, id)
		default:
			return got
		}
	}
}

func TestSyncRequestsSortedDeduplicatedSet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		return nil, nil
	})
	h.coordinator.SetInView("zhihu", "weibo", "weibo", "hackernews")

	require.NoError(t, h.coordinator.Sync(context.Background()))
	require.Equal(t, 1, h.client.callCount())
	require.Equal(t,
		[]newsfeed.SourceID{"hackernews", "weibo", "zhihu"},
		h.client.requested[0],
		"input order must not affect the logical request",
	)
}

func TestSyncWithEmptyViewMakesNoCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		return nil, nil
	})

	require.NoError(t, h.coordinator.Sync(context.Background()))
	require.Zero(t, h.client.callCount())
}

func TestSyncNotifiesOnlyAdvancedSources(t *testing.T) {
	t.Parallel()

	catalog := stubCatalog{
		"weibo": {Name: "weibo", Interval: time.Minute},
		"zhihu": {Name: "zhihu", Interval: time.Minute},
	}
	h := newHarness(t, catalog, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		// Both timestamps are far outside the freshness window so no
		// smoothing applies.
		return []newsfeed.SourceSnapshot{
			cacheSnapshot("weibo", 150),
			cacheSnapshot("zhihu", 200),
		}, nil
	})
	h.cache.Set("weibo", cacheSnapshot("weibo", 100))
	h.cache.Set("zhihu", cacheSnapshot("zhihu", 200))

	updates, cancel, err := h.bus.Subscribe("test")
	require.NoError(t, err)
	defer cancel()

	h.coordinator.SetInView("weibo", "zhihu")
	require.NoError(t, h.coordinator.Sync(context.Background()))

	require.Equal(t, []newsfeed.SourceID{"weibo"}, drain(updates),
		"a no-op poll must not re-render unchanged sources")

	advanced, _ := h.cache.Get("weibo")
	require.Equal(t, int64(150), advanced.UpdatedTime)
	unchanged, _ := h.cache.Get("zhihu")
	require.Equal(t, int64(200), unchanged.UpdatedTime)
}

func TestSyncDiscardsOutOfOrderResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		return []newsfeed.SourceSnapshot{cacheSnapshot("weibo", 50)}, nil
	})
	h.cache.Set("weibo", cacheSnapshot("weibo", 100))

	updates, cancel, err := h.bus.Subscribe("test")
	require.NoError(t, err)
	defer cancel()

	h.coordinator.SetInView("weibo")
	require.NoError(t, h.coordinator.Sync(context.Background()))

	require.Empty(t, drain(updates))
	current, _ := h.cache.Get("weibo")
	require.Equal(t, int64(100), current.UpdatedTime, "batch response must never roll state backward")
}

func TestSyncAppliesFreshnessSmoothing(t *testing.T) {
	t.Parallel()

	catalog := stubCatalog{"weibo": {Name: "weibo", Interval: time.Minute}}
	h := newHarness(t, catalog, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		// Written 30s ago, inside the 60s window: presented as "now".
		return []newsfeed.SourceSnapshot{cacheSnapshot("weibo", nowMilli-30_000)}, nil
	})
	h.coordinator.SetInView("weibo")

	require.NoError(t, h.coordinator.Sync(context.Background()))
	smoothed, ok := h.cache.Get("weibo")
	require.True(t, ok)
	require.Equal(t, nowMilli, smoothed.UpdatedTime)
}

func TestEffectiveUpdatedTime(t *testing.T) {
	tests := []struct {
		name     string
		updated  int64
		interval time.Duration
		want     int64
	}{
		{name: "inside window reports now", updated: nowMilli - 30_000, interval: time.Minute, want: nowMilli},
		{name: "outside window reports true write time", updated: nowMilli - 90_000, interval: time.Minute, want: nowMilli - 90_000},
		{name: "zero interval never smooths", updated: nowMilli - 1, interval: 0, want: nowMilli - 1},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := EffectiveUpdatedTime(nowMilli, testCase.updated, testCase.interval)
			if got != testCase.want {
				t.Fatalf("effective = %d, want %d", got, testCase.want)
			}
		})
	}
}

func TestFailedBatchIsSkippedNotRetried(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		return nil, errors.New("upstream down")
	})
	h.cache.Set("weibo", cacheSnapshot("weibo", 100))

	updates, cancel, err := h.bus.Subscribe("test")
	require.NoError(t, err)
	defer cancel()

	h.coordinator.SetInView("weibo")
	require.Error(t, h.coordinator.Sync(context.Background()))

	require.Equal(t, 1, h.client.callCount(), "batch calls are not retried")
	require.Empty(t, drain(updates))
	untouched, _ := h.cache.Get("weibo")
	require.Equal(t, int64(100), untouched.UpdatedTime)
}

func TestConcurrentSyncsForSameSetCollapse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		return []newsfeed.SourceSnapshot{cacheSnapshot("weibo", 200)}, nil
	})
	h.client.gate = make(chan struct{})
	h.coordinator.SetInView("weibo")

	var wg sync.WaitGroup
	for idx := 0; idx < 2; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.coordinator.Sync(context.Background())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(h.client.gate)
	wg.Wait()

	require.Equal(t, 1, h.client.callCount(),
		"independently-triggered syncs for the same set must collapse into one request")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(ids []newsfeed.SourceID) ([]newsfeed.SourceSnapshot, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.coordinator.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop on cancellation")
	}
}
