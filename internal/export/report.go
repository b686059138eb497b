// Package export builds the instrument health report and writes it to
// spreadsheet destinations.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/finance"
	"github.com/hashyield/dash/internal/mirror"
)

// ReportRow is one instrument's health figures. TVL and RewardPool are
// display strings formatted at the instrument's decimals.
type ReportRow struct {
	InstrumentID string
	Name         string
	Symbol       string
	Kind         domain.InstrumentKind
	AprPercent   decimal.Decimal
	TVL          string
	RewardPool   string
	DailyPayout  string
	Utilization  decimal.Decimal
	DaysLeft     int64
	Unbounded    bool
}

// Report is one generated health report.
type Report struct {
	Rows        []ReportRow
	Warnings    []string
	GeneratedAt time.Time
}

// TotalsReader reads instrument-wide figures from the ledger.
type TotalsReader interface {
	InstrumentTotals(ctx context.Context, instrumentAddress string) (mirror.InstrumentTotals, error)
}

// RateSource resolves an instrument's current APR in basis points.
type RateSource interface {
	AprBps(ctx context.Context, instrumentID string) (int64, error)
}

// ReportWriter writes a generated report to a destination.
type ReportWriter interface {
	Write(ctx context.Context, report Report) error
}

// Service builds instrument health reports. Instruments that cannot be read
// become warnings; the report always covers whatever could be read.
type Service struct {
	ledger  TotalsReader
	rates   RateSource
	writers []ReportWriter
}

// NewService creates a new export Service.
func NewService(ledger TotalsReader, rates RateSource, writers ...ReportWriter) *Service {
	if ledger == nil {
		panic("export.NewService: ledger is nil")
	}
	if rates == nil {
		panic("export.NewService: rates is nil")
	}
	return &Service{ledger: ledger, rates: rates, writers: writers}
}

// Build reads totals and rates for every registered instrument and assembles
// the report.
func (s *Service) Build(ctx context.Context) (Report, error) {
	report := Report{GeneratedAt: time.Now().UTC()}

	for _, inst := range domain.InstrumentRegistry {
		row, err := s.buildRow(ctx, inst)
		if err != nil {
			slog.Warn("skipping instrument in health report", "instrument", inst.ID, "error", err)
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", inst.ID, err))
			continue
		}
		report.Rows = append(report.Rows, row)
	}

	if len(report.Rows) == 0 {
		return Report{}, fmt.Errorf("building health report: no instrument could be read")
	}
	return report, nil
}

// Export builds the report and writes it to every configured destination.
func (s *Service) Export(ctx context.Context) error {
	report, err := s.Build(ctx)
	if err != nil {
		return err
	}
	for _, w := range s.writers {
		if err := w.Write(ctx, report); err != nil {
			return fmt.Errorf("writing health report: %w", err)
		}
	}
	return nil
}

func (s *Service) buildRow(ctx context.Context, inst domain.Instrument) (ReportRow, error) {
	totals, err := s.ledger.InstrumentTotals(ctx, inst.Address)
	if err != nil {
		return ReportRow{}, err
	}
	bps, err := s.rates.AprBps(ctx, inst.ID)
	if err != nil {
		return ReportRow{}, err
	}

	daily := finance.DailyReward(totals.TotalDeposits, bps)
	daysLeft, unbounded := finance.DaysRemaining(totals.RewardPool, daily)

	return ReportRow{
		InstrumentID: inst.ID,
		Name:         inst.Name,
		Symbol:       inst.Symbol,
		Kind:         inst.Kind,
		AprPercent:   finance.BpsToPercent(bps),
		TVL:          finance.FormatAmount(totals.TotalDeposits, inst.Decimals, 2),
		RewardPool:   finance.FormatAmount(totals.RewardPool, inst.Decimals, 2),
		DailyPayout:  finance.FormatAmount(daily, inst.Decimals, 4),
		Utilization:  finance.UtilizationRate(totals.TotalDeposits, totals.RewardPool),
		DaysLeft:     daysLeft,
		Unbounded:    unbounded,
	}, nil
}
