package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/ports"
	"fintrack/internal/sheets"
)

var _ ports.TransactionExporter = (*Exporter)(nil)

// Config selects the target spreadsheet and the service account used to
// reach it. ServiceAccountJSON wins over ServiceAccountFile.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// Exporter appends realized transactions to a year-prefixed ledger sheet
// ("2024 Ledger").
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// New creates an Exporter authenticated with service account credentials.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	credentialsJSON, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates an Exporter with explicit client options.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Exporter, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Ledger"
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Export appends one row per transaction to the sheet of the transaction's
// year.
func (e *Exporter) Export(ctx context.Context, txns []core.Transaction) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(txns) == 0 {
		return nil
	}

	rows := sheets.RowsByYear(txns)
	for _, year := range sheets.Years(rows) {
		sheet := yearPrefixedName(e.sheetBase, year)
		rng := fmt.Sprintf("%s!A:I", sheet)
		vr := &gsheet.ValueRange{Values: rows[year]}

		resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append to sheet %s: %w", sheet, err)
		}

		ref := ""
		if resp.Updates != nil {
			ref = resp.Updates.UpdatedRange
		}
		slog.InfoContext(ctx, "Exported transactions to sheet",
			"sheet", sheet,
			"rows", len(rows[year]),
			"range", ref)
	}
	return nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a
// four-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
