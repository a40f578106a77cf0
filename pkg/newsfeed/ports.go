package newsfeed

import "context"

// SnapshotClient fetches snapshots from the upstream aggregator API.
//
// Implementations must be safe for concurrent use; the engine issues fetches
// for distinct sources with no ordering guarantee between them.
type SnapshotClient interface {
	// FetchSource retrieves the snapshot for one source. When latest is
	// true the request bypasses the server-side cache and carries the
	// configured bearer token if one is present.
	FetchSource(ctx context.Context, id SourceID, latest bool) (SourceSnapshot, error)
	// FetchBatch retrieves snapshots for a sorted, deduplicated id list in
	// one round-trip. The response may omit ids that have no committed
	// server-side cache yet.
	FetchBatch(ctx context.Context, ids []SourceID) ([]SourceSnapshot, error)
}

// PersistentStore is the durable last-resort cache tier, shared with the rest
// of the host environment.
//
// Implementations fail soft on reads: a missing or malformed entry resolves
// to found=false. A non-nil error reports an unexpected backing failure and
// still implies found=false; callers log it and continue.
type PersistentStore interface {
	// Load returns the persisted snapshot for id when one exists.
	Load(ctx context.Context, id SourceID) (snap SourceSnapshot, found bool, err error)
	// Save persists a snapshot, replacing any previous entry for id.
	Save(ctx context.Context, id SourceID, snap SourceSnapshot) error
	// Delete removes the entry for id. Deleting an absent entry is not an
	// error.
	Delete(ctx context.Context, id SourceID) error
}

// Catalog is the static, read-only source metadata table.
type Catalog interface {
	// Lookup returns metadata for one source id.
	Lookup(id SourceID) (SourceMetadata, bool)
	// IDs returns every catalogued source id in stable order.
	IDs() []SourceID
}
