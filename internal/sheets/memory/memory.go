package memory

import (
	"context"
	"fmt"
	"sync"

	"tracker/internal/ledger"
	"tracker/internal/sheets"
)

var _ sheets.SummaryExporter = (*Exporter)(nil)

// Exporter keeps the latest exported rows per month in memory. It stands in
// for the spreadsheet when none is configured.
type Exporter struct {
	mu      sync.Mutex
	exports map[string][][]any
	count   int
}

func New() *Exporter {
	return &Exporter{exports: make(map[string][][]any)}
}

func (e *Exporter) ExportMonthSummary(_ context.Context, summary ledger.CalendarSummary) (string, error) {
	if !summary.Month.Valid() {
		return "", fmt.Errorf("invalid month %q", summary.Month.Key())
	}
	rows := sheets.SummaryRows(summary)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports[summary.Month.Key()] = rows
	e.count++
	return fmt.Sprintf("mem:%s", summary.Month.Key()), nil
}

// Rows returns the last export of monthKey.
func (e *Exporter) Rows(monthKey string) ([][]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows, ok := e.exports[monthKey]
	return rows, ok
}

// Count is the number of exports made so far.
func (e *Exporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}
