// Package worker contains the periodic background loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashyield/dash/internal/events"
)

// RateRefresher re-reads live instrument rates from the ledger.
type RateRefresher interface {
	RefreshAll(ctx context.Context) error
}

// AprWorker periodically refreshes live APRs and announces updates on the bus.
type AprWorker struct {
	refresher RateRefresher
	bus       *events.Bus
	interval  time.Duration
}

// NewAprWorker creates a new AprWorker.
func NewAprWorker(refresher RateRefresher, bus *events.Bus, interval time.Duration) *AprWorker {
	return &AprWorker{
		refresher: refresher,
		bus:       bus,
		interval:  interval,
	}
}

// Run starts the APR worker loop. It blocks until the context is cancelled.
func (w *AprWorker) Run(ctx context.Context) {
	slog.Info("AprWorker: starting")

	// Refresh immediately on startup
	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("AprWorker: shutting down")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *AprWorker) refresh(ctx context.Context) {
	if err := w.refresher.RefreshAll(ctx); err != nil {
		slog.Error("AprWorker: refresh failed", "error", err)
		return
	}
	slog.Info("AprWorker: refresh completed")
	if w.bus != nil {
		w.bus.Publish(events.RatesUpdated)
	}
}
