package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/log"
	"tracker/internal/store"
)

// Report is what every summary endpoint returns next to its data.
type Report struct {
	Skipped  int      `json:"skipped"`
	Problems []string `json:"problems"`
}

func reportOf(p ledger.Problems) Report {
	return Report{Skipped: p.Skipped(), Problems: p.Strings()}
}

type (
	CalendarView struct {
		Month   string                      `json:"month"`
		Days    map[string]ledger.DayTotals `json:"days"`
		Balance ledger.Balance              `json:"balance"`
		Report
	}

	DaysView struct {
		Kind core.Kind   `json:"kind"`
		Days []DayBucket `json:"days"`
		Report
	}

	DayBucket struct {
		DayKey  string                    `json:"dayKey"`
		Records []ledger.NormalizedRecord `json:"records"`
	}

	MonthlyView struct {
		Kind   core.Kind           `json:"kind"`
		Months []ledger.MonthGroup `json:"months"`
		Report
	}

	TrendView struct {
		Kind           core.Kind           `json:"kind"`
		Field          string              `json:"field"`
		Direction      core.Direction      `json:"direction,omitempty"`
		WindowDays     int                 `json:"windowDays"`
		Points         []ledger.TrendPoint `json:"points"`
		Average        *float64            `json:"average"`
		Latest         *float64            `json:"latest"`
		DisplayAverage string              `json:"displayAverage"`
		DisplayLatest  string              `json:"displayLatest"`
		Report
	}

	DietView struct {
		DayKey string           `json:"dayKey"`
		Totals ledger.Nutrients `json:"totals"`
		Report
	}

	LiftsView struct {
		Groups []ledger.FieldGroup `json:"groups"`
		Report
	}

	ChallengesView struct {
		Challenges []ledger.ChallengeSummary `json:"challenges"`
		Report
	}
)

// SummaryService loads snapshots from the record store and runs them
// through the ledger engine. Every per-record problem is logged once.
type SummaryService struct {
	lister store.Lister
	logger *log.Logger
	now    func() time.Time
}

func NewSummaryService(lister store.Lister, logger *log.Logger) *SummaryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SummaryService{
		lister: lister,
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
}

// WithClock replaces the reference clock; used by tests.
func (s *SummaryService) WithClock(now func() time.Time) *SummaryService {
	cp := *s
	cp.now = now
	return &cp
}

// Today is the current date in the reporting zone.
func (s *SummaryService) Today() ledger.CalendarDate {
	return ledger.DateOf(s.now())
}

func (s *SummaryService) load(ctx context.Context, kind core.Kind, filter store.Filter) ([]core.Record, error) {
	records, err := s.lister.List(ctx, kind, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}
	return records, nil
}

func (s *SummaryService) report(ctx context.Context, view string, p ledger.Problems) Report {
	for _, err := range p {
		fields := log.NewFields().WithError(err).WithOperation(log.OpSummarize)
		fields["view"] = view
		switch e := err.(type) {
		case *ledger.InvalidDateError:
			fields.WithRecord(string(e.Kind), e.RecordID)
		case *ledger.InvalidNumericFieldError:
			fields.WithRecord(string(e.Kind), e.RecordID)
		}
		s.logger.WarnContext(ctx, "Record left out of summary", fields.ToSlice()...)
	}
	return reportOf(p)
}

// Calendar is the expense calendar of one month.
func (s *SummaryService) Calendar(ctx context.Context, month ledger.Month) (CalendarView, error) {
	records, err := s.load(ctx, core.KindExpense, store.Filter{})
	if err != nil {
		return CalendarView{}, err
	}
	sum := ledger.DailyCalendarSummary(records, month)
	return CalendarView{
		Month:   month.Key(),
		Days:    sum.Days,
		Balance: sum.Balance,
		Report:  s.report(ctx, "calendar", sum.Problems),
	}, nil
}

// CalendarSummary is Calendar in engine form, for exporters.
func (s *SummaryService) CalendarSummary(ctx context.Context, month ledger.Month) (ledger.CalendarSummary, error) {
	records, err := s.load(ctx, core.KindExpense, store.Filter{})
	if err != nil {
		return ledger.CalendarSummary{}, err
	}
	sum := ledger.DailyCalendarSummary(records, month)
	s.report(ctx, "calendar", sum.Problems)
	return sum, nil
}

// Days lists one month of records of kind grouped by day.
func (s *SummaryService) Days(ctx context.Context, kind core.Kind, month ledger.Month) (DaysView, error) {
	records, err := s.load(ctx, kind, store.Filter{})
	if err != nil {
		return DaysView{}, err
	}
	buckets, problems := ledger.DailyRecords(records, month)
	view := DaysView{Kind: kind, Days: make([]DayBucket, 0, len(buckets))}
	for _, b := range buckets {
		view.Days = append(view.Days, DayBucket{DayKey: b.Key, Records: b.Records})
	}
	view.Report = s.report(ctx, "days", problems)
	return view, nil
}

// Monthly is the month-grouped history of kind, most recent month first.
func (s *SummaryService) Monthly(ctx context.Context, kind core.Kind) (MonthlyView, error) {
	records, err := s.load(ctx, kind, store.Filter{})
	if err != nil {
		return MonthlyView{}, err
	}
	groups, problems := ledger.MonthlyGroupedList(records)
	return MonthlyView{Kind: kind, Months: groups, Report: s.report(ctx, "monthly", problems)}, nil
}

// DefaultTrendField is the charted field of a kind.
func DefaultTrendField(kind core.Kind) string {
	switch kind {
	case core.KindExpense:
		return core.FieldAmount
	case core.KindDiet:
		return core.FieldKcal
	default:
		return core.FieldWeight
	}
}

// Trend charts field over the trailing window. An empty field uses the
// kind's default. Expense trends chart spending only; see ExpenseTrend.
func (s *SummaryService) Trend(ctx context.Context, kind core.Kind, field string, windowDays int) (TrendView, error) {
	if kind == core.KindExpense {
		return s.ExpenseTrend(ctx, core.DirectionExpense, field, windowDays)
	}
	return s.trend(ctx, kind, "", field, windowDays)
}

// ExpenseTrend charts expense records of one direction, so income and
// spending never share a series.
func (s *SummaryService) ExpenseTrend(ctx context.Context, direction core.Direction, field string, windowDays int) (TrendView, error) {
	if direction != core.DirectionIncome && direction != core.DirectionExpense {
		return TrendView{}, fmt.Errorf("%w: %q", core.ErrInvalidDirection, direction)
	}
	return s.trend(ctx, core.KindExpense, direction, field, windowDays)
}

func (s *SummaryService) trend(ctx context.Context, kind core.Kind, direction core.Direction, field string, windowDays int) (TrendView, error) {
	if field == "" {
		field = DefaultTrendField(kind)
	}
	records, err := s.load(ctx, kind, store.Filter{})
	if err != nil {
		return TrendView{}, err
	}
	if direction != "" {
		records = slices.DeleteFunc(records, func(r core.Record) bool {
			return r.Direction() != direction
		})
	}

	selector := ledger.Field(field)
	if kind == core.KindDiet {
		selector = dietEnergy(field)
	}
	trend, err := ledger.TrendSeries(records, selector, windowDays, s.now())
	if err != nil {
		return TrendView{}, err
	}
	return TrendView{
		Kind:           kind,
		Field:          field,
		Direction:      direction,
		WindowDays:     windowDays,
		Points:         trend.Points,
		Average:        trend.Average,
		Latest:         trend.Latest,
		DisplayAverage: trend.DisplayAverage(),
		DisplayLatest:  trend.DisplayLatest(),
		Report:         s.report(ctx, "trend", trend.Problems),
	}, nil
}

// dietEnergy charts a nutrient summed over the items of one log entry.
func dietEnergy(field string) ledger.FieldSelector {
	return ledger.FieldSelector{
		Name: core.FieldItems + "." + field,
		Value: func(r core.Record) (float64, error) {
			var total float64
			for _, item := range r.Payload.Items(core.FieldItems) {
				if item.IsBlank(field) {
					continue
				}
				v, err := core.ToNumber(item[field])
				if err != nil {
					return 0, err
				}
				total += v
			}
			return total, nil
		},
	}
}

// Diet totals nutrients for one day.
func (s *SummaryService) Diet(ctx context.Context, day ledger.CalendarDate) (DietView, error) {
	records, err := s.load(ctx, core.KindDiet, store.Filter{})
	if err != nil {
		return DietView{}, err
	}
	totals, problems := ledger.DietDaySummary(records, day.DayKey())
	return DietView{DayKey: day.DayKey(), Totals: totals, Report: s.report(ctx, "diet", problems)}, nil
}

// Lifts groups one-rep-max records by exercise name.
func (s *SummaryService) Lifts(ctx context.Context, filter string) (LiftsView, error) {
	records, err := s.load(ctx, core.KindOneRepMax, store.Filter{})
	if err != nil {
		return LiftsView{}, err
	}
	groups, problems := ledger.GroupByField(records, core.FieldName, filter, ledger.Field(core.FieldWeight))
	if groups == nil {
		groups = []ledger.FieldGroup{}
	}
	return LiftsView{Groups: groups, Report: s.report(ctx, "lifts", problems)}, nil
}

// Challenges summarises every challenge, sorted by name.
func (s *SummaryService) Challenges(ctx context.Context) (ChallengesView, error) {
	records, err := s.load(ctx, core.KindChallenge, store.Filter{})
	if err != nil {
		return ChallengesView{}, err
	}
	view := ChallengesView{Challenges: make([]ledger.ChallengeSummary, 0, len(records))}
	var problems ledger.Problems
	for _, r := range records {
		c := ledger.ChallengeProgress(r)
		problems = append(problems, c.Problems...)
		view.Challenges = append(view.Challenges, c)
	}
	sort.SliceStable(view.Challenges, func(i, j int) bool {
		return view.Challenges[i].Name < view.Challenges[j].Name
	})
	view.Report = s.report(ctx, "challenges", problems)
	return view, nil
}
