// Package store provides the durable last-resort cache tier behind the
// PersistentStore contract: one entry per source id under a namespaced key.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

// keyPrefix namespaces per-source entries so the store can share its backing
// with unrelated parts of the host environment.
const keyPrefix = "source-"

// entryKey builds the namespaced storage key for one source id.
func entryKey(id newsfeed.SourceID) string {
	return keyPrefix + string(id)
}

// encodeSnapshot serializes a snapshot into its persisted wire form.
func encodeSnapshot(snap newsfeed.SourceSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}

	return data, nil
}

// decodeSnapshot parses a persisted entry. A snapshot that decodes but lacks
// mandatory fields counts as malformed.
func decodeSnapshot(data []byte) (newsfeed.SourceSnapshot, error) {
	var snap newsfeed.SourceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return newsfeed.SourceSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return newsfeed.SourceSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}
