package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashyield/dash/internal/domain"
)

const defaultStaleAfter = 6 * time.Hour

// LiveReader reads an instrument's current APR from the ledger.
type LiveReader interface {
	LiveAprBps(ctx context.Context, instrumentAddress string) (int64, error)
}

// Service resolves instrument APRs. Declared rates come straight from the
// registry; live rates are read from the ledger, with the last stored
// observation as a fallback while it is still fresh.
type Service struct {
	ledger     LiveReader
	repo       Repository // optional
	staleAfter time.Duration
}

// NewService creates a new rates Service. repo may be nil when no database
// is configured; the live read then has no fallback. A non-positive
// staleAfter uses the default threshold.
func NewService(ledger LiveReader, repo Repository, staleAfter time.Duration) *Service {
	if ledger == nil {
		panic("rates.NewService: ledger is nil")
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Service{
		ledger:     ledger,
		repo:       repo,
		staleAfter: staleAfter,
	}
}

// AprBps returns the current APR for an instrument in basis points.
func (s *Service) AprBps(ctx context.Context, instrumentID string) (int64, error) {
	inst, ok := domain.InstrumentByID(instrumentID)
	if !ok {
		return 0, fmt.Errorf("unknown instrument %q", instrumentID)
	}
	if inst.DeclaredAprBps > 0 {
		return inst.DeclaredAprBps, nil
	}

	bps, err := s.ledger.LiveAprBps(ctx, inst.Address)
	if err == nil {
		s.store(ctx, inst.ID, bps)
		return bps, nil
	}

	stored, fallbackErr := s.stored(ctx, inst.ID)
	if fallbackErr != nil {
		return 0, fmt.Errorf("reading APR for %s: %w", inst.ID, err)
	}
	slog.Warn("live APR unavailable, using stored rate",
		"instrument", inst.ID, "aprBps", stored.AprBps, "observedAt", stored.UpdatedAt, "error", err)
	return stored.AprBps, nil
}

// RefreshAll re-reads live rates for every live-rate instrument and stores
// the observations. Individual failures are logged and skipped.
func (s *Service) RefreshAll(ctx context.Context) error {
	var failed int
	for _, inst := range domain.LiveRateInstruments() {
		bps, err := s.ledger.LiveAprBps(ctx, inst.Address)
		if err != nil {
			slog.Warn("failed to refresh live APR", "instrument", inst.ID, "error", err)
			failed++
			continue
		}
		s.store(ctx, inst.ID, bps)
	}
	if failed > 0 && failed == len(domain.LiveRateInstruments()) {
		return errors.New("refreshing rates: all live reads failed")
	}
	return nil
}

func (s *Service) store(ctx context.Context, instrumentID string, bps int64) {
	if s.repo == nil {
		return
	}
	rate := StoredRate{InstrumentID: instrumentID, AprBps: bps, UpdatedAt: time.Now().UTC()}
	if err := s.repo.Upsert(ctx, rate); err != nil {
		slog.Warn("failed to store observed rate", "instrument", instrumentID, "error", err)
	}
}

func (s *Service) stored(ctx context.Context, instrumentID string) (StoredRate, error) {
	if s.repo == nil {
		return StoredRate{}, ErrNotFound
	}
	rate, err := s.repo.Get(ctx, instrumentID)
	if err != nil {
		return StoredRate{}, err
	}
	if time.Since(rate.UpdatedAt) > s.staleAfter {
		return StoredRate{}, fmt.Errorf("stored rate for %s is stale (observed %s)",
			instrumentID, rate.UpdatedAt.Format(time.RFC3339))
	}
	return rate, nil
}
