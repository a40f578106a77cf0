package main

import (
	"fmt"
	"time"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

// updatedLabel renders the snapshot's freshness the way the source card
// does: a relative updated time, "failed to load" when no tier ever produced
// items, and "loading" for a zero snapshot.
func updatedLabel(snap newsfeed.SourceSnapshot, fetchErr error) string {
	if snap.UpdatedTime > 0 && len(snap.Items) > 0 {
		return "updated " + relativeTime(snap.UpdatedTime, time.Now())
	}
	if fetchErr != nil {
		return "failed to load"
	}

	return "loading"
}

// relativeTime formats an epoch-milliseconds timestamp relative to now.
func relativeTime(updatedMilli int64, now time.Time) string {
	elapsed := now.Sub(time.UnixMilli(updatedMilli))
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}
