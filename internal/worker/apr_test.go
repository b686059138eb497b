package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashyield/dash/internal/events"
)

type mockRefresher struct {
	callCount atomic.Int32
}

func (m *mockRefresher) RefreshAll(_ context.Context) error {
	m.callCount.Add(1)
	return nil
}

func TestAprWorkerRefreshesAndPublishes(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(events.RatesUpdated)
	defer cancel()

	mock := &mockRefresher{}
	w := NewAprWorker(mock, bus, 50*time.Millisecond)

	ctx, cancelRun := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelRun()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 1 {
		t.Errorf("call count = %d, want >= 1", got)
	}
	select {
	case ev := <-ch:
		if ev.Kind != events.RatesUpdated {
			t.Errorf("event kind = %s", ev.Kind)
		}
	default:
		t.Error("no rates-updated event published")
	}
}
