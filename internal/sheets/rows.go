package sheets

import (
	"slices"

	"tracker/internal/ledger"
)

// Header is the first row of every exported month.
var Header = []any{"Day", "Income", "Expense", "Net"}

// SummaryRows lays a month summary out as spreadsheet rows: a header, one
// row per day with records in ascending order, a blank row, the month
// totals and the number of skipped records.
func SummaryRows(summary ledger.CalendarSummary) [][]any {
	days := make([]string, 0, len(summary.Days))
	for key := range summary.Days {
		days = append(days, key)
	}
	slices.Sort(days)

	rows := make([][]any, 0, len(days)+4)
	rows = append(rows, Header)
	for _, key := range days {
		t := summary.Days[key]
		rows = append(rows, []any{key, t.IncomeTotal, t.ExpenseTotal, t.IncomeTotal - t.ExpenseTotal})
	}
	rows = append(rows,
		[]any{},
		[]any{"Total", summary.Balance.Income.Sum, summary.Balance.Expense.Sum, summary.Balance.Net()},
		[]any{"Skipped", summary.Problems.Skipped()},
	)
	return rows
}
