package store

import (
	"context"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

// NoopStore discards writes and never finds entries. It backs hosts that
// disable durable storage while keeping the fetch resolution chain intact.
type NoopStore struct{}

// NewNoopStore returns the shared no-op store.
func NewNoopStore() NoopStore {
	return NoopStore{}
}

// Load never finds an entry.
func (NoopStore) Load(context.Context, newsfeed.SourceID) (newsfeed.SourceSnapshot, bool, error) {
	return newsfeed.SourceSnapshot{}, false, nil
}

// Save discards the snapshot.
func (NoopStore) Save(context.Context, newsfeed.SourceID, newsfeed.SourceSnapshot) error {
	return nil
}

// Delete is a no-op.
func (NoopStore) Delete(context.Context, newsfeed.SourceID) error {
	return nil
}
