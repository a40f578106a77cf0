// Package catalog loads the static source metadata table. The table is
// read-only for the engine; it only configures per-source behavior and
// display metadata.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

//go:embed sources.yaml
var defaultCatalogFS embed.FS

// defaultInterval applies when a source entry omits its freshness window.
const defaultInterval = 10 * time.Minute

type fileSource struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Interval string `yaml:"interval"`
	Column   string `yaml:"column"`
	Color    string `yaml:"color"`
	Home     string `yaml:"home"`
	Title    string `yaml:"title"`
	Desc     string `yaml:"desc"`
}

type fileCatalog struct {
	Sources map[string]fileSource `yaml:"sources"`
}

// Catalog is an immutable id-to-metadata table.
type Catalog struct {
	entries map[newsfeed.SourceID]newsfeed.SourceMetadata
	ids     []newsfeed.SourceID
}

// Default loads the catalog embedded in the binary.
func Default() (*Catalog, error) {
	data, err := defaultCatalogFS.ReadFile("sources.yaml")
	if err != nil {
		return nil, fmt.Errorf("load default catalog: %w", err)
	}

	return Parse(data)
}

// LoadFile loads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var decoded fileCatalog
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(decoded.Sources) == 0 {
		return nil, fmt.Errorf("parse catalog: no sources defined")
	}

	entries := make(map[newsfeed.SourceID]newsfeed.SourceMetadata, len(decoded.Sources))
	ids := make([]newsfeed.SourceID, 0, len(decoded.Sources))
	for rawID, src := range decoded.Sources {
		id := newsfeed.SourceID(rawID)
		meta, err := src.toMetadata()
		if err != nil {
			return nil, fmt.Errorf("parse catalog source %s: %w", id, err)
		}
		entries[id] = meta
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	return &Catalog{entries: entries, ids: ids}, nil
}

func (s fileSource) toMetadata() (newsfeed.SourceMetadata, error) {
	if s.Name == "" {
		return newsfeed.SourceMetadata{}, fmt.Errorf("missing name")
	}

	interval := defaultInterval
	if s.Interval != "" {
		parsed, err := time.ParseDuration(s.Interval)
		if err != nil {
			return newsfeed.SourceMetadata{}, fmt.Errorf("invalid interval %q: %w", s.Interval, err)
		}
		if parsed <= 0 {
			return newsfeed.SourceMetadata{}, fmt.Errorf("non-positive interval %q", s.Interval)
		}
		interval = parsed
	}

	return newsfeed.SourceMetadata{
		Name:     s.Name,
		Type:     newsfeed.SourceType(s.Type),
		Interval: interval,
		Column:   s.Column,
		Color:    s.Color,
		Home:     s.Home,
		Title:    s.Title,
		Desc:     s.Desc,
	}, nil
}

// Lookup returns metadata for one source id.
func (c *Catalog) Lookup(id newsfeed.SourceID) (newsfeed.SourceMetadata, bool) {
	meta, ok := c.entries[id]
	return meta, ok
}

// IDs returns every catalogued id in lexicographic order.
func (c *Catalog) IDs() []newsfeed.SourceID {
	return append([]newsfeed.SourceID(nil), c.ids...)
}

// ColumnIDs returns the ids grouped under one column. The "hottest" and
// "realtime" columns are computed from source type; other columns match the
// column field directly.
func (c *Catalog) ColumnIDs(column string) []newsfeed.SourceID {
	matched := make([]newsfeed.SourceID, 0)
	for _, id := range c.ids {
		meta := c.entries[id]
		switch column {
		case string(newsfeed.SourceTypeHottest):
			if meta.Type == newsfeed.SourceTypeHottest {
				matched = append(matched, id)
			}
		case string(newsfeed.SourceTypeRealtime):
			if meta.Type == newsfeed.SourceTypeRealtime {
				matched = append(matched, id)
			}
		default:
			if meta.Column == column {
				matched = append(matched, id)
			}
		}
	}

	return matched
}
