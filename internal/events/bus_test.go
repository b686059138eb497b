package events

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus()

	vaults, cancelVaults := bus.Subscribe(VaultPositionsChanged)
	defer cancelVaults()
	all, cancelAll := bus.Subscribe()
	defer cancelAll()

	bus.Publish(VaultPositionsChanged)
	bus.Publish(ActivityChanged)

	if ev := recv(t, vaults); ev.Kind != VaultPositionsChanged {
		t.Errorf("vault subscriber got %s", ev.Kind)
	}
	select {
	case ev := <-vaults:
		t.Errorf("vault subscriber got unexpected %s", ev.Kind)
	default:
	}

	if ev := recv(t, all); ev.Kind != VaultPositionsChanged {
		t.Errorf("all subscriber got %s first", ev.Kind)
	}
	if ev := recv(t, all); ev.Kind != ActivityChanged {
		t.Errorf("all subscriber got %s second", ev.Kind)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe(ActivityChanged)
	cancel()
	cancel() // idempotent

	bus.Publish(ActivityChanged)

	if _, open := <-ch; open {
		t.Error("expected channel to be closed after cancel")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()

	_, cancel := bus.Subscribe(ActivityChanged)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 100 {
			bus.Publish(ActivityChanged)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestPositionsChangedFor(t *testing.T) {
	if got := PositionsChangedFor("stakingPool"); got != PoolPositionsChanged {
		t.Errorf("stakingPool = %s", got)
	}
	if got := PositionsChangedFor("vault"); got != VaultPositionsChanged {
		t.Errorf("vault = %s", got)
	}
}
