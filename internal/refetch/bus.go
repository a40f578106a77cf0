// Package refetch coordinates forced refreshes across independently-mounted
// consumers of the snapshot engine.
package refetch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

const defaultSubscriptionBuffer = 64

// Bus is the process-wide forced-refresh signal.
//
// It keeps a set of source ids pending a cache bypass and notifies
// subscribers whenever a source should be re-read. A pending flag is consumed
// exactly once: the first ConsumeIfPending call for an id clears it, so a
// stale flag can never force every later soft refresh to also bypass cache.
type Bus struct {
	logger *slog.Logger

	mu          sync.Mutex
	nextID      int64
	closed      bool
	pending     map[newsfeed.SourceID]struct{}
	subscribers map[int64]*subscription
	buffer      int
}

// Option mutates bus configuration.
type Option func(*Bus)

// WithLogger injects a structured logger for dropped-notification reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithSubscriptionBuffer sets the per-subscriber queue capacity.
func WithSubscriptionBuffer(buffer int) Option {
	return func(b *Bus) {
		if buffer > 0 {
			b.buffer = buffer
		}
	}
}

// NewBus creates an empty bus with bounded subscriber queues.
func NewBus(opts ...Option) *Bus {
	bus := &Bus{
		logger:      slog.Default(),
		pending:     make(map[newsfeed.SourceID]struct{}),
		subscribers: make(map[int64]*subscription),
		buffer:      defaultSubscriptionBuffer,
	}
	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// MarkForRefresh flags ids for a cache bypass on their next fetch and
// notifies subscribers to re-run those fetches.
func (b *Bus) MarkForRefresh(ids ...newsfeed.SourceID) {
	if len(ids) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, id := range ids {
		b.pending[id] = struct{}{}
	}
	b.notifyLocked(ids)
}

// NotifyChanged notifies subscribers that ids have new cached data without
// flagging a cache bypass. The batch path uses this so widgets re-read from
// memory instead of issuing redundant network calls.
func (b *Bus) NotifyChanged(ids ...newsfeed.SourceID) {
	if len(ids) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.notifyLocked(ids)
}

// ConsumeIfPending atomically checks and clears the pending flag for id.
// It returns true exactly once per MarkForRefresh of that id.
func (b *Bus) ConsumeIfPending(id newsfeed.SourceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[id]; !ok {
		return false
	}
	delete(b.pending, id)

	return true
}

// Pending reports whether id is flagged without consuming the flag.
func (b *Bus) Pending(id newsfeed.SourceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.pending[id]
	return ok
}

// Subscribe registers a named consumer and returns its notification channel
// plus a cancel function. Notifications are dropped, not blocked on, when a
// subscriber queue is full.
func (b *Bus) Subscribe(name string) (<-chan newsfeed.SourceID, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, fmt.Errorf("subscribe %s: %w", name, newsfeed.ErrSubscriptionClosed)
	}

	b.nextID++
	subID := b.nextID
	if name == "" {
		name = fmt.Sprintf("subscriber-%d", subID)
	}
	sub := &subscription{
		name:  name,
		queue: make(chan newsfeed.SourceID, b.buffer),
	}
	b.subscribers[subID] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if stored, ok := b.subscribers[subID]; ok {
			delete(b.subscribers, subID)
			close(stored.queue)
		}
	}

	return sub.queue, cancel, nil
}

// Close drops all subscribers and pending flags. Further subscriptions fail;
// mark and consume calls become no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.queue)
	}
	b.pending = make(map[newsfeed.SourceID]struct{})
}

// notifyLocked fans out to every subscriber queue with drop-newest
// backpressure. Sends happen under the bus lock so a concurrent cancel can
// never close a queue mid-send; they never block because queues are bounded
// and full queues drop.
func (b *Bus) notifyLocked(ids []newsfeed.SourceID) {
	for _, sub := range b.subscribers {
		for _, id := range ids {
			select {
			case sub.queue <- id:
			default:
				b.logger.Warn("refetch notification dropped",
					"subscriber", sub.name,
					"source", id,
				)
			}
		}
	}
}

type subscription struct {
	name  string
	queue chan newsfeed.SourceID
}
