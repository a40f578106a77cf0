package refetch

import (
	"testing"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

func TestConsumeIfPendingClearsExactlyOnce(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.MarkForRefresh("x")

	if !bus.ConsumeIfPending("x") {
		t.Fatal("first consume must return true")
	}
	if bus.ConsumeIfPending("x") {
		t.Fatal("second consume must return false")
	}
}

func TestConsumeIfPendingUnknownID(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	if bus.ConsumeIfPending("never-marked") {
		t.Fatal("unmarked id must not be pending")
	}
}

func TestMarkForRefreshNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	updates, cancel, err := bus.Subscribe("card")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	bus.MarkForRefresh("weibo", "zhihu")

	got := []newsfeed.SourceID{<-updates, <-updates}
	if got[0] != "weibo" || got[1] != "zhihu" {
		t.Fatalf("notifications = %v", got)
	}
	if !bus.Pending("weibo") || !bus.Pending("zhihu") {
		t.Fatal("marked ids must be pending until consumed")
	}
}

func TestNotifyChangedDoesNotFlag(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	updates, cancel, err := bus.Subscribe("card")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	bus.NotifyChanged("weibo")

	if got := <-updates; got != "weibo" {
		t.Fatalf("notification = %v, want weibo", got)
	}
	if bus.ConsumeIfPending("weibo") {
		t.Fatal("change notification must not set a forced-refresh flag")
	}
}

func TestFullSubscriberQueueDropsNewest(t *testing.T) {
	t.Parallel()

	bus := NewBus(WithSubscriptionBuffer(1))
	updates, cancel, err := bus.Subscribe("slow")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	bus.NotifyChanged("a", "b", "c")

	if got := <-updates; got != "a" {
		t.Fatalf("first buffered notification = %v, want a", got)
	}
	select {
	case extra := <-updates:
		t.Fatalf("overflowed notification %v must have been dropped", extra)
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	updates, cancel, err := bus.Subscribe("card")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	cancel()
	bus.NotifyChanged("weibo")

	if _, open := <-updates; open {
		t.Fatal("cancelled subscription channel must be closed")
	}
}

func TestCloseRejectsNewSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.MarkForRefresh("x")
	bus.Close()

	if _, _, err := bus.Subscribe("late"); err == nil {
		t.Fatal("subscribe after close must fail")
	}
	if bus.ConsumeIfPending("x") {
		t.Fatal("close must clear pending flags")
	}
	bus.MarkForRefresh("y")
	if bus.Pending("y") {
		t.Fatal("mark after close must be a no-op")
	}
}
