// Package diff computes rank movement between successive snapshots of a
// ranked source.
package diff

import "github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"

// Compute returns the signed rank delta for every item in next that also
// appears in previous, keyed by item id.
//
// For next[i] whose id first occurs at previous[o], the delta is o-i:
// positive means the item moved toward the front, negative toward the back.
// Items absent from previous have no entry. When an id occurs more than once
// in previous, the first occurrence wins.
//
// Compute is pure: identical inputs always produce identical output.
func Compute(previous, next []newsfeed.NewsItem) map[string]int {
	deltas := make(map[string]int, len(next))
	if len(previous) == 0 || len(next) == 0 {
		return deltas
	}

	previousIndex := make(map[string]int, len(previous))
	for idx, item := range previous {
		if _, seen := previousIndex[item.ID]; !seen {
			previousIndex[item.ID] = idx
		}
	}

	for idx, item := range next {
		if origin, ok := previousIndex[item.ID]; ok {
			deltas[item.ID] = origin - idx
		}
	}

	return deltas
}

// Annotate attaches Compute's deltas into each item's Extra.Diff, leaving
// items without a prior position untouched.
func Annotate(previous []newsfeed.NewsItem, next []newsfeed.NewsItem) {
	deltas := Compute(previous, next)
	for idx := range next {
		delta, ok := deltas[next[idx].ID]
		if !ok {
			continue
		}
		d := delta
		if next[idx].Extra == nil {
			next[idx].Extra = &newsfeed.ItemExtra{}
		}
		next[idx].Extra.Diff = &d
	}
}
