// Package sheets exports month summaries to spreadsheets.
package sheets

import (
	"context"

	"tracker/internal/ledger"
)

// Ports for outbound adapters.
type (
	// SummaryExporter writes the summary of one month, replacing any
	// earlier export of the same month. It returns a reference to the
	// written range.
	SummaryExporter interface {
		ExportMonthSummary(ctx context.Context, summary ledger.CalendarSummary) (ref string, err error)
	}
)
