package newsfeed

import (
	"encoding/json"
	"fmt"
	"time"
)

// SourceID is the opaque key identifying one upstream feed.
//
// It is stable across process restarts and is the sole cache key used by
// every tier of the engine.
type SourceID string

// SourceType classifies how a source's item list behaves between snapshots.
type SourceType string

const (
	// SourceTypeHottest marks ranked lists where rank movement between
	// snapshots is meaningful and surfaced as per-item deltas.
	SourceTypeHottest SourceType = "hottest"
	// SourceTypeRealtime marks append-style timelines with no rank semantics.
	SourceTypeRealtime SourceType = "realtime"
)

// SnapshotStatus records which tier produced a snapshot.
type SnapshotStatus string

const (
	// StatusCache marks a snapshot served from a cache tier.
	StatusCache SnapshotStatus = "cache"
	// StatusLive marks a snapshot freshly produced by an upstream fetch.
	StatusLive SnapshotStatus = "live"
)

// ItemIcon is either a bare icon URL or a URL with a display scale.
// The wire form accepts both a JSON string and an object.
type ItemIcon struct {
	URL   string  `json:"url"`
	Scale float64 `json:"scale,omitempty"`
}

// UnmarshalJSON accepts both the string and object wire forms.
func (i *ItemIcon) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return fmt.Errorf("unmarshal item icon: %w", err)
		}
		i.URL = url
		i.Scale = 0
		return nil
	}

	type wireIcon ItemIcon
	var decoded wireIcon
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("unmarshal item icon: %w", err)
	}
	*i = ItemIcon(decoded)

	return nil
}

// ItemExtra carries optional presentation metadata attached to one item.
type ItemExtra struct {
	Info  string    `json:"info,omitempty"`
	Icon  *ItemIcon `json:"icon,omitempty"`
	Hover string    `json:"hover,omitempty"`
	// Date is an epoch-milliseconds timestamp for timeline sources.
	Date int64 `json:"date,omitempty"`
	// Diff is the rank delta against the previous snapshot. It is derived
	// by the engine and never supplied by upstream; nil means no prior
	// position is known for the item.
	Diff *int `json:"diff,omitempty"`
}

// NewsItem is one entry in a source's item list.
//
// ID is unique within one source's list at a given snapshot, but carries no
// meaning across unrelated sources.
type NewsItem struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	MobileURL string     `json:"mobileUrl,omitempty"`
	// PubDate is an epoch-milliseconds timestamp when upstream supplies one.
	PubDate int64      `json:"pubDate,omitempty"`
	Extra   *ItemExtra `json:"extra,omitempty"`
}

// Clone returns a deep copy so cached items cannot be mutated through
// snapshots handed out to callers.
func (n NewsItem) Clone() NewsItem {
	cloned := n
	if n.Extra != nil {
		extra := *n.Extra
		if n.Extra.Icon != nil {
			icon := *n.Extra.Icon
			extra.Icon = &icon
		}
		if n.Extra.Diff != nil {
			diff := *n.Extra.Diff
			extra.Diff = &diff
		}
		cloned.Extra = &extra
	}

	return cloned
}

// SourceSnapshot is one observed state of a source's item list.
type SourceSnapshot struct {
	Status SnapshotStatus `json:"status"`
	ID     SourceID       `json:"id"`
	Items  []NewsItem     `json:"items"`
	// UpdatedTime is an epoch-milliseconds timestamp of the snapshot's
	// last upstream write. It is monotonically non-decreasing per source
	// for snapshots accepted through the batch path.
	UpdatedTime int64 `json:"updatedTime"`
}

// Clone returns a deep copy of the snapshot.
func (s SourceSnapshot) Clone() SourceSnapshot {
	cloned := s
	if s.Items != nil {
		cloned.Items = make([]NewsItem, len(s.Items))
		for idx, item := range s.Items {
			cloned.Items[idx] = item.Clone()
		}
	}

	return cloned
}

// Validate checks that mandatory snapshot fields are present.
func (s SourceSnapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("validate snapshot: missing source id")
	}
	if s.Status != StatusCache && s.Status != StatusLive {
		return fmt.Errorf("validate snapshot %s: invalid status %q", s.ID, s.Status)
	}

	return nil
}

// SourceMetadata is the static, read-only configuration for one source.
type SourceMetadata struct {
	Name  string
	Type  SourceType
	// Interval is the minimum staleness window before a cached snapshot
	// stops being treated as fresh enough to skip a re-fetch.
	Interval time.Duration
	Column   string
	Color    string
	Home     string
	Title    string
	Desc     string
}

// NowMilli converts a wall-clock time to the epoch-milliseconds form used on
// the wire and in snapshot timestamps.
func NowMilli(now time.Time) int64 {
	return now.UnixMilli()
}
