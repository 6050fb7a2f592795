package ledger

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"tracker/internal/core"
)

// Group restricts an aggregation to one expense direction.
type Group int

const (
	GroupNone Group = iota
	GroupIncome
	GroupExpense
)

func (g Group) matches(r core.Record) bool {
	switch g {
	case GroupIncome:
		return r.Direction() == core.DirectionIncome
	case GroupExpense:
		return r.Direction() == core.DirectionExpense
	}
	return true
}

// FieldSelector extracts the numeric value of interest from a record.
type FieldSelector struct {
	Name  string
	Value func(core.Record) (float64, error)
}

// Field selects a numeric payload field by name.
func Field(name string) FieldSelector {
	return FieldSelector{
		Name: name,
		Value: func(r core.Record) (float64, error) {
			return r.Payload.Number(name)
		},
	}
}

// Aggregate is a count and sum over the values that could be read.
type Aggregate struct {
	Count int
	Sum   float64
}

// Average returns Sum/Count; ok is false when nothing was counted.
func (a Aggregate) Average() (avg float64, ok bool) {
	if a.Count == 0 {
		return 0, false
	}
	return a.Sum / float64(a.Count), true
}

func (a Aggregate) add(v float64) Aggregate {
	return Aggregate{Count: a.Count + 1, Sum: a.Sum + v}
}

func (a Aggregate) MarshalJSON() ([]byte, error) {
	out := struct {
		Count   int      `json:"count"`
		Sum     float64  `json:"sum"`
		Average *float64 `json:"average"`
	}{Count: a.Count, Sum: a.Sum}
	if avg, ok := a.Average(); ok {
		out.Average = &avg
	}
	return json.Marshal(out)
}

// Calculate aggregates field over the records in group. Missing or
// non-numeric values add nothing to the sum, are left out of the count and
// are reported.
func Calculate(records []NormalizedRecord, field FieldSelector, group Group) (Aggregate, Problems) {
	var agg Aggregate
	var problems Problems
	for _, r := range records {
		if !group.matches(r.Record) {
			continue
		}
		v, err := field.Value(r.Record)
		if err != nil {
			problems = append(problems, numericError(r.Record, field.Name, err))
			continue
		}
		agg = agg.add(v)
	}
	return agg, problems
}

func numericError(r core.Record, field string, err error) *InvalidNumericFieldError {
	return &InvalidNumericFieldError{
		RecordID: r.ID,
		Kind:     r.Kind,
		Field:    field,
		Value:    r.Payload[field],
		Err:      err,
	}
}

// Balance holds the income and expense aggregates of a set of expense records.
type Balance struct {
	Income  Aggregate `json:"income"`
	Expense Aggregate `json:"expense"`
}

// Net is income minus expense.
func (b Balance) Net() float64 {
	return b.Income.Sum - b.Expense.Sum
}

func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Income  Aggregate `json:"income"`
		Expense Aggregate `json:"expense"`
		Balance float64   `json:"balance"`
	}{b.Income, b.Expense, b.Net()})
}

// CalculateBalance aggregates the amount field per direction.
func CalculateBalance(records []NormalizedRecord) (Balance, Problems) {
	income, p1 := Calculate(records, Field(core.FieldAmount), GroupIncome)
	expense, p2 := Calculate(records, Field(core.FieldAmount), GroupExpense)
	return Balance{Income: income, Expense: expense}, append(p1, p2...)
}

// Nutrients are per-day diet totals.
type Nutrients struct {
	Energy       float64 `json:"kcal"`
	Carbohydrate float64 `json:"carbs"`
	Protein      float64 `json:"protein"`
	Fat          float64 `json:"fat"`
}

// SumNutrients adds the four nutrient fields of every food item of every
// record keep accepts. Blank nutrient values count as zero; non-numeric
// ones count as zero and are reported.
func SumNutrients(records []NormalizedRecord, keep func(NormalizedRecord) bool) (Nutrients, Problems) {
	var total Nutrients
	var problems Problems
	for _, r := range records {
		if keep != nil && !keep(r) {
			continue
		}
		for _, item := range r.Record.Payload.Items(core.FieldItems) {
			for _, n := range []struct {
				field string
				dst   *float64
			}{
				{core.FieldKcal, &total.Energy},
				{core.FieldCarbs, &total.Carbohydrate},
				{core.FieldProtein, &total.Protein},
				{core.FieldFat, &total.Fat},
			} {
				field, dst := n.field, n.dst
				if item.IsBlank(field) {
					continue
				}
				v, err := core.ToNumber(item[field])
				if err != nil {
					problems = append(problems, &InvalidNumericFieldError{
						RecordID: r.Record.ID,
						Kind:     r.Record.Kind,
						Field:    core.FieldItems + "." + field,
						Value:    item[field],
						Err:      err,
					})
					continue
				}
				*dst += v
			}
		}
	}
	return total, problems
}

// RoundForDisplay rounds to one decimal place. Computations keep full
// precision; only presentation values go through here.
func RoundForDisplay(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

// FormatForDisplay renders v with exactly one decimal place.
func FormatForDisplay(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}
