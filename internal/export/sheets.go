package export

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsWriter implements ReportWriter using the Google Sheets API. Each
// export rewrites the HEALTH sheet and appends one row per instrument to
// the HISTORY sheet.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write ensures the destination sheets exist, rewrites HEALTH, and appends
// the run to HISTORY.
func (w *SheetsWriter) Write(ctx context.Context, report Report) error {
	if err := w.ensureSheets(ctx, "HEALTH", "HISTORY"); err != nil {
		return err
	}

	_, err := w.svc.Spreadsheets.Values.BatchClear(
		w.spreadsheetID,
		&sheets.BatchClearValuesRequest{
			Ranges: []string{"HEALTH!A:I"},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing HEALTH sheet: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data: []*sheets.ValueRange{
				{Range: "HEALTH!A1", Values: buildHealth(report)},
			},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing HEALTH sheet: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		"HISTORY!A:I",
		&sheets.ValueRange{Values: buildHistory(report)},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending HISTORY rows: %w", err)
	}

	return nil
}

// buildHealth builds the HEALTH sheet data.
// Columns: Instrument | Name | Kind | APR % | TVL | Reward Pool | Daily Payout | Utilization % | Days Left
func buildHealth(report Report) [][]any {
	data := make([][]any, 0, len(report.Rows)+1)
	data = append(data, []any{
		"Instrument", "Name", "Kind", "APR %", "TVL", "Reward Pool",
		"Daily Payout", "Utilization %", "Days Left",
	})

	for _, row := range report.Rows {
		data = append(data, []any{
			row.InstrumentID, row.Name, string(row.Kind),
			toFloat(row.AprPercent), row.TVL, row.RewardPool,
			row.DailyPayout, toFloat(row.Utilization), daysLeftCell(row),
		})
	}

	for _, warning := range report.Warnings {
		data = append(data, []any{"WARNING", warning})
	}

	return data
}

// buildHistory builds HISTORY append rows, one per instrument, stamped with
// the generation time.
func buildHistory(report Report) [][]any {
	stamp := report.GeneratedAt.Format("02.01.2006 15:04")
	data := make([][]any, 0, len(report.Rows))
	for _, row := range report.Rows {
		data = append(data, []any{
			stamp, row.InstrumentID,
			toFloat(row.AprPercent), row.TVL, row.RewardPool,
			row.DailyPayout, toFloat(row.Utilization), daysLeftCell(row),
		})
	}
	return data
}

func daysLeftCell(row ReportRow) any {
	if row.Unbounded {
		return "∞"
	}
	return float64(row.DaysLeft)
}

// ensureSheets creates any of the named sheets that do not already exist.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) error {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	existing := make(map[string]bool, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		existing[s.Properties.Title] = true
	}

	var requests []*sheets.Request
	for _, name := range names {
		if !existing[name] {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return nil
	}

	_, err = w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating sheets: %w", err)
	}

	return nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
