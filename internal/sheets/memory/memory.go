// Package memory provides an in-process ledger exporter. It keeps the most
// recent exported rows in memory and is used when no spreadsheet is configured.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/ports"
	"fintrack/internal/sheets"
)

var _ ports.TransactionExporter = (*Exporter)(nil)

// DefaultMaxRows bounds the rows kept by New.
const DefaultMaxRows = 1000

type Exporter struct {
	mu      sync.Mutex
	rows    [][]any
	maxRows int
}

func New() *Exporter {
	return NewWithLimit(DefaultMaxRows)
}

// NewWithLimit keeps at most maxRows rows, dropping the oldest first.
func NewWithLimit(maxRows int) *Exporter {
	if maxRows < 1 {
		maxRows = DefaultMaxRows
	}
	return &Exporter{maxRows: maxRows}
}

// Export records one ledger row per transaction.
func (e *Exporter) Export(ctx context.Context, txns []core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range txns {
		row := sheets.TransactionRow(t)
		e.rows = append(e.rows, row)
		if over := len(e.rows) - e.maxRows; over > 0 {
			e.rows = append(e.rows[:0:0], e.rows[over:]...)
		}
		slog.DebugContext(ctx, "Exported transaction to memory ledger", "transaction_id", t.ID, "row", len(e.rows))
	}
	return nil
}

// Rows returns a copy of every exported row.
func (e *Exporter) Rows() [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]any(nil), e.rows...)
}
