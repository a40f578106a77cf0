package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

func testSnapshot() newsfeed.SourceSnapshot {
	diff := -2
	return newsfeed.SourceSnapshot{
		Status: newsfeed.StatusLive,
		ID:     "hackernews",
		Items: []newsfeed.NewsItem{
			{
				ID:    "40001",
				Title: "Show HN: a tiny cache engine",
				URL:   "https://news.ycombinator.com/item?id=40001",
				Extra: &newsfeed.ItemExtra{Info: "312 points", Diff: &diff},
			},
			{
				ID:        "40002",
				Title:     "Go 1.25 released",
				URL:       "https://news.ycombinator.com/item?id=40002",
				MobileURL: "https://m.example.com/40002",
				PubDate:   1735689600000,
				Extra: &newsfeed.ItemExtra{
					Icon:  &newsfeed.ItemIcon{URL: "https://example.com/icon.png", Scale: 0.5},
					Hover: "hover text",
					Date:  1735689600000,
				},
			},
		},
		UpdatedTime: 1735693200000,
	}
}

// The persisted entry format is shared with other host environments, so the
// serialized bytes are pinned with a golden file.
func TestEncodeSnapshotGolden(t *testing.T) {
	t.Parallel()

	data, err := encodeSnapshot(testSnapshot())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	g := goldie.New(t)
	g.Assert(t, "snapshot_entry", data)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := encodeSnapshot(testSnapshot())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ID != "hackernews" || len(decoded.Items) != 2 {
		t.Fatalf("round trip mangled snapshot: %+v", decoded)
	}
	if decoded.Items[0].Extra == nil || decoded.Items[0].Extra.Diff == nil || *decoded.Items[0].Extra.Diff != -2 {
		t.Fatalf("round trip lost diff: %+v", decoded.Items[0].Extra)
	}
}

func TestDecodeSnapshotAcceptsStringIcon(t *testing.T) {
	t.Parallel()

	raw := `{"status":"cache","id":"weibo","items":[{"id":"1","title":"t","url":"u","extra":{"icon":"https://example.com/i.png"}}],"updatedTime":5}`
	decoded, err := decodeSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	icon := decoded.Items[0].Extra.Icon
	if icon == nil || icon.URL != "https://example.com/i.png" || icon.Scale != 0 {
		t.Fatalf("string icon form mishandled: %+v", icon)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	fileStore, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new file store failed: %v", err)
	}
	ctx := context.Background()

	if _, found, err := fileStore.Load(ctx, "hackernews"); err != nil || found {
		t.Fatalf("missing entry must resolve absent without error, found=%v err=%v", found, err)
	}

	if err := fileStore.Save(ctx, "hackernews", testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, found, err := fileStore.Load(ctx, "hackernews")
	if err != nil || !found {
		t.Fatalf("load failed: found=%v err=%v", found, err)
	}
	if loaded.UpdatedTime != 1735693200000 || len(loaded.Items) != 2 {
		t.Fatalf("loaded snapshot mangled: %+v", loaded)
	}

	if err := fileStore.Delete(ctx, "hackernews"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found, _ := fileStore.Load(ctx, "hackernews"); found {
		t.Fatal("deleted entry must be absent")
	}
	if err := fileStore.Delete(ctx, "hackernews"); err != nil {
		t.Fatalf("deleting absent entry must not fail: %v", err)
	}
}

func TestFileStoreCorruptEntryResolvesAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fileStore, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("new file store failed: %v", err)
	}

	path := filepath.Join(dir, entryKey("weibo")+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt entry: %v", err)
	}

	_, found, loadErr := fileStore.Load(context.Background(), "weibo")
	if found {
		t.Fatal("corrupt entry must resolve absent")
	}
	if loadErr == nil {
		t.Fatal("corrupt entry should surface a storage read error for logging")
	}
}

func TestFileStoreNamespacesKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fileStore, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("new file store failed: %v", err)
	}
	if err := fileStore.Save(context.Background(), "weibo", testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "source-weibo.json")); err != nil {
		t.Fatalf("expected namespaced entry file: %v", err)
	}
}
