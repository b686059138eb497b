// Package position aggregates a user's holdings across all registered
// instruments into a single summary.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/finance"
	"github.com/hashyield/dash/internal/mirror"
)

// ErrNoAccount indicates an aggregation request without a user account.
var ErrNoAccount = errors.New("no account supplied")

const defaultConcurrency = 4

// LedgerReader defines the subset of the mirror API used by the aggregator.
type LedgerReader interface {
	ContractExists(ctx context.Context, address string) (bool, error)
	UserState(ctx context.Context, instrumentAddress, account string) (mirror.UserState, error)
	ProjectedReturn(ctx context.Context, instrumentAddress, account string) (*big.Int, error)
}

// RateSource supplies the effective APR for an instrument.
type RateSource interface {
	AprBps(ctx context.Context, instrumentID string) (int64, error)
}

// Service fans out per-instrument ledger reads and assembles position
// summaries. One bad contract never fails a whole pass.
type Service struct {
	ledger      LedgerReader
	rates       RateSource
	instruments []domain.Instrument
	concurrency int
}

// NewService creates a new aggregation Service over the given instruments.
func NewService(ledger LedgerReader, rates RateSource, instruments []domain.Instrument) *Service {
	if ledger == nil {
		panic("position.NewService: ledger is nil")
	}
	if rates == nil {
		panic("position.NewService: rates is nil")
	}
	return &Service{
		ledger:      ledger,
		rates:       rates,
		instruments: instruments,
		concurrency: defaultConcurrency,
	}
}

type branch struct {
	pos     *domain.UserPosition
	warning string
}

// Aggregate reads the user's state in every registered instrument
// concurrently and sums the included positions. Output order mirrors
// registry order regardless of completion order; instruments with a zero
// deposit contribute nothing. Per-instrument failures become warnings.
func (s *Service) Aggregate(ctx context.Context, account string) (domain.PositionSummary, error) {
	if account == "" {
		return domain.PositionSummary{}, ErrNoAccount
	}

	results := make([]branch, len(s.instruments))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, inst := range s.instruments {
		wg.Add(1)
		go func(i int, inst domain.Instrument) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = s.readInstrument(ctx, inst, account)
		}(i, inst)
	}

	wg.Wait()

	summary := domain.PositionSummary{
		Account:              account,
		TotalDeposited:       big.NewInt(0),
		TotalCurrentValue:    big.NewInt(0),
		TotalPendingRewards:  big.NewInt(0),
		TotalProjectedReturn: big.NewInt(0),
		GeneratedAt:          time.Now().UTC(),
	}

	// Join in registry index order for deterministic output.
	for _, b := range results {
		if b.warning != "" {
			summary.Warnings = append(summary.Warnings, b.warning)
		}
		if b.pos == nil {
			continue
		}
		summary.Positions = append(summary.Positions, *b.pos)
		summary.TotalDeposited.Add(summary.TotalDeposited, b.pos.Deposited)
		summary.TotalCurrentValue.Add(summary.TotalCurrentValue, b.pos.CurrentValue)
		summary.TotalPendingRewards.Add(summary.TotalPendingRewards, b.pos.PendingRewards)
		summary.TotalProjectedReturn.Add(summary.TotalProjectedReturn, b.pos.ProjectedAnnualReturn)
	}

	return summary, nil
}

func (s *Service) readInstrument(ctx context.Context, inst domain.Instrument, account string) branch {
	exists, err := s.ledger.ContractExists(ctx, inst.Address)
	if err != nil {
		w := fmt.Sprintf("%s: code check failed: %v", inst.ID, err)
		slog.Warn("skipping instrument", "instrument", inst.ID, "error", err)
		return branch{warning: w}
	}
	if !exists {
		w := fmt.Sprintf("%s: no contract code at %s", inst.ID, inst.Address)
		slog.Warn("instrument has no deployed code, skipping", "instrument", inst.ID, "address", inst.Address)
		return branch{warning: w}
	}

	state, err := s.ledger.UserState(ctx, inst.Address, account)
	if err != nil {
		w := fmt.Sprintf("%s: state read failed: %v", inst.ID, err)
		slog.Warn("skipping instrument", "instrument", inst.ID, "error", err)
		return branch{warning: w}
	}

	// Zero deposit: the instrument contributes nothing, not a zero entry.
	if state.Deposited == nil || state.Deposited.Sign() <= 0 {
		return branch{}
	}

	aprBps, err := s.rates.AprBps(ctx, inst.ID)
	if err != nil {
		slog.Warn("APR unavailable, projections read as zero", "instrument", inst.ID, "error", err)
	}

	pos := &domain.UserPosition{
		Instrument:     inst,
		AprBps:         aprBps,
		Deposited:      state.Deposited,
		PendingRewards: state.PendingReward,
		Claimed:        state.Claimed,
		CurrentValue:   state.CurrentValue,
		DepositedAt:    state.DepositedAt,
	}
	if pos.CurrentValue == nil || pos.CurrentValue.Sign() == 0 {
		pos.CurrentValue = state.Deposited
	}
	if pos.PendingRewards == nil {
		pos.PendingRewards = big.NewInt(0)
	}
	if pos.Claimed == nil {
		pos.Claimed = big.NewInt(0)
	}

	// Vaults compute profit contract-side; pools project from the APR.
	if inst.Kind == domain.KindVault {
		projected, err := s.ledger.ProjectedReturn(ctx, inst.Address, account)
		if err != nil {
			slog.Warn("projected return read failed, projecting from APR",
				"instrument", inst.ID, "error", err)
			projected = finance.AnnualReward(state.Deposited, aprBps)
		}
		pos.ProjectedAnnualReturn = projected
	} else {
		pos.ProjectedAnnualReturn = finance.AnnualReward(state.Deposited, aprBps)
	}
	if pos.ProjectedAnnualReturn == nil {
		pos.ProjectedAnnualReturn = big.NewInt(0)
	}

	return branch{pos: pos}
}
