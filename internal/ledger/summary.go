package ledger

import (
	"sort"
	"strings"
	"time"

	"tracker/internal/core"
)

// DayTotals are the income and expense sums of one calendar day.
type DayTotals struct {
	IncomeTotal  float64 `json:"incomeTotal"`
	ExpenseTotal float64 `json:"expenseTotal"`
}

// CalendarSummary feeds the budget calendar for one month.
type CalendarSummary struct {
	Month    Month
	Days     map[string]DayTotals
	Balance  Balance
	Problems Problems
}

// DailyCalendarSummary totals expense records per day of month. Days without
// records are absent; grid padding is left to the presentation layer.
func DailyCalendarSummary(records []core.Record, month Month) CalendarSummary {
	normalized, problems := NormalizeRecords(records)
	inMonth := make([]NormalizedRecord, 0, len(normalized))
	for _, r := range normalized {
		if r.MonthKey() == month.Key() {
			inMonth = append(inMonth, r)
		}
	}

	summary := CalendarSummary{Month: month, Days: make(map[string]DayTotals)}
	days := BucketByDay(inMonth)
	for _, key := range days.Keys(Ascending) {
		bal, p := CalculateBalance(days.Get(key))
		problems = append(problems, p...)
		summary.Days[key] = DayTotals{IncomeTotal: bal.Income.Sum, ExpenseTotal: bal.Expense.Sum}
		summary.Balance.Income.Count += bal.Income.Count
		summary.Balance.Income.Sum += bal.Income.Sum
		summary.Balance.Expense.Count += bal.Expense.Count
		summary.Balance.Expense.Sum += bal.Expense.Sum
	}
	summary.Problems = problems
	return summary
}

// DailyRecords groups the records of one month by day, ascending, for the
// workout calendar and the day detail lists.
func DailyRecords(records []core.Record, month Month) ([]Bucket, Problems) {
	normalized, problems := NormalizeRecords(records)
	inMonth := make([]NormalizedRecord, 0, len(normalized))
	for _, r := range normalized {
		if r.MonthKey() == month.Key() {
			inMonth = append(inMonth, r)
		}
	}
	return BucketByDay(inMonth).Sorted(Ascending), problems
}

// MonthGroup is one month of a history list.
type MonthGroup struct {
	MonthKey         string             `json:"monthKey"`
	Entries          []NormalizedRecord `json:"entries"`
	CollapsedDefault bool               `json:"collapsedDefault"`
}

// MonthlyGroupedList groups records by month, most recent month first.
// Entries keep their input order. Every group starts expanded.
func MonthlyGroupedList(records []core.Record) ([]MonthGroup, Problems) {
	normalized, problems := NormalizeRecords(records)
	months := BucketByMonth(normalized)
	groups := make([]MonthGroup, 0, months.Len())
	for _, b := range months.Sorted(Descending) {
		groups = append(groups, MonthGroup{MonthKey: b.Key, Entries: b.Records})
	}
	return groups, problems
}

// TrendPoint is one charted value.
type TrendPoint struct {
	DayKey string  `json:"dayKey"`
	Value  float64 `json:"value"`
}

// Trend is a chronological series with its average and latest value.
// Average and Latest are nil when the series is empty.
type Trend struct {
	Points   []TrendPoint
	Average  *float64
	Latest   *float64
	Problems Problems
}

// DisplayAverage renders the average with one decimal, "" when undefined.
func (t Trend) DisplayAverage() string {
	if t.Average == nil {
		return ""
	}
	return FormatForDisplay(*t.Average)
}

// DisplayLatest renders the latest value with one decimal, "" when undefined.
func (t Trend) DisplayLatest() string {
	if t.Latest == nil {
		return ""
	}
	return FormatForDisplay(*t.Latest)
}

// TrendSeries builds the chart series of field over the trailing window.
// Records whose value cannot be read are left out of the series and the
// average, and are reported.
func TrendSeries(records []core.Record, field FieldSelector, windowDays int, now time.Time) (Trend, error) {
	normalized, problems := NormalizeRecords(records)
	window, err := FilterTrailing(normalized, windowDays, now)
	if err != nil {
		return Trend{}, err
	}

	trend := Trend{Points: make([]TrendPoint, 0, len(window))}
	var agg Aggregate
	for _, r := range window {
		v, err := field.Value(r.Record)
		if err != nil {
			problems = append(problems, numericError(r.Record, field.Name, err))
			continue
		}
		agg = agg.add(v)
		trend.Points = append(trend.Points, TrendPoint{DayKey: r.DayKey(), Value: v})
	}
	if avg, ok := agg.Average(); ok {
		trend.Average = &avg
		latest := trend.Points[len(trend.Points)-1].Value
		trend.Latest = &latest
	}
	trend.Problems = problems
	return trend, nil
}

// DietDaySummary totals nutrients of the diet logs dated dayKey.
func DietDaySummary(records []core.Record, dayKey string) (Nutrients, Problems) {
	normalized, problems := NormalizeRecords(records)
	total, p := SumNutrients(normalized, func(r NormalizedRecord) bool {
		return r.DayKey() == dayKey
	})
	return total, append(problems, p...)
}

// FieldGroup is a named series, e.g. all lifts of one exercise.
type FieldGroup struct {
	Name   string             `json:"name"`
	Series []NormalizedRecord `json:"series"`
	Stats  Aggregate          `json:"stats"`
	Max    *float64           `json:"max"`
}

// GroupByField groups records by a string payload field, keeping groups whose
// name contains filter (case-insensitive). Groups are sorted by name and
// each series ascending by date. Max tracks the largest value of valueField.
func GroupByField(records []core.Record, groupField string, filter string, value FieldSelector) ([]FieldGroup, Problems) {
	normalized, problems := NormalizeRecords(records)
	filter = strings.ToLower(strings.TrimSpace(filter))

	index := map[string]int{}
	var groups []FieldGroup
	for _, r := range normalized {
		name := r.Record.Payload.String(groupField)
		if name == "" || !strings.Contains(strings.ToLower(name), filter) {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, FieldGroup{Name: name})
		}
		groups[i].Series = append(groups[i].Series, r)
	}

	for i := range groups {
		g := &groups[i]
		sort.SliceStable(g.Series, func(a, b int) bool {
			return g.Series[a].Date.Before(g.Series[b].Date)
		})
		for _, r := range g.Series {
			v, err := value.Value(r.Record)
			if err != nil {
				problems = append(problems, numericError(r.Record, value.Name, err))
				continue
			}
			g.Stats = g.Stats.add(v)
			if g.Max == nil || v > *g.Max {
				m := v
				g.Max = &m
			}
		}
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })
	return groups, problems
}

// ProgressEntry is one logged challenge session.
type ProgressEntry struct {
	Date CalendarDate `json:"date"`
	Reps float64      `json:"reps"`
}

// ChallengeSummary is the progress log of one challenge.
type ChallengeSummary struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Entries   []ProgressEntry `json:"entries"`
	TotalReps float64         `json:"totalReps"`
	Problems  Problems        `json:"-"`
}

// ChallengeProgress reads the progress list of a challenge record, sorted
// ascending by date. Entries with unreadable dates are dropped and
// unreadable reps are counted as zero; both are reported.
func ChallengeProgress(r core.Record) ChallengeSummary {
	s := ChallengeSummary{ID: r.ID, Name: r.Payload.String(core.FieldName)}
	for _, item := range r.Payload.Items(core.FieldProgress) {
		d, err := Normalize(item[core.FieldDate], core.FormatAuto)
		if err != nil {
			de, ok := err.(*InvalidDateError)
			if !ok {
				de = &InvalidDateError{Raw: item[core.FieldDate], Reason: err.Error()}
			}
			de.RecordID, de.Kind = r.ID, r.Kind
			s.Problems = append(s.Problems, de)
			continue
		}
		reps, err := item.Number(core.FieldReps)
		if err != nil {
			s.Problems = append(s.Problems, &InvalidNumericFieldError{
				RecordID: r.ID, Kind: r.Kind, Field: core.FieldProgress + "." + core.FieldReps, Value: item[core.FieldReps], Err: err,
			})
		}
		s.Entries = append(s.Entries, ProgressEntry{Date: d, Reps: reps})
		s.TotalReps += reps
	}
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].Date.Before(s.Entries[j].Date)
	})
	return s
}
