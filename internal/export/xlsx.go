package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const healthSheet = "HEALTH"

// XlsxWriter implements ReportWriter by writing a timestamped .xlsx file
// into a local directory.
type XlsxWriter struct {
	dir string
}

// NewXlsxWriter creates an XlsxWriter writing into dir, creating it if needed.
func NewXlsxWriter(dir string) (*XlsxWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory %s: %w", dir, err)
	}
	return &XlsxWriter{dir: dir}, nil
}

// Write renders the report as a single-sheet workbook. Warnings, when
// present, go below the data rows.
func (w *XlsxWriter) Write(_ context.Context, report Report) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), healthSheet)

	header := []any{
		"Instrument", "Name", "Kind", "APR %", "TVL", "Reward Pool",
		"Daily Payout", "Utilization %", "Days Left",
	}
	if err := f.SetSheetRow(healthSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	rowIdx := 2
	for _, row := range report.Rows {
		daysLeft := any(row.DaysLeft)
		if row.Unbounded {
			daysLeft = "∞"
		}
		cells := []any{
			row.InstrumentID, row.Name, string(row.Kind),
			toFloat(row.AprPercent), row.TVL, row.RewardPool,
			row.DailyPayout, toFloat(row.Utilization), daysLeft,
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx)
		if err := f.SetSheetRow(healthSheet, cell, &cells); err != nil {
			return fmt.Errorf("writing row %d: %w", rowIdx, err)
		}
		rowIdx++
	}

	for _, warning := range report.Warnings {
		rowIdx++
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx)
		warnCells := []any{"WARNING", warning}
		if err := f.SetSheetRow(healthSheet, cell, &warnCells); err != nil {
			return fmt.Errorf("writing warning row: %w", err)
		}
	}

	name := fmt.Sprintf("health_%s.xlsx", report.GeneratedAt.Format("2006-01-02_150405"))
	path := filepath.Join(w.dir, name)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report to %s: %w", path, err)
	}
	return nil
}
