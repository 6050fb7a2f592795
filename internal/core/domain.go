package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindExpense   Kind = "expense"
	KindWorkout   Kind = "workout"
	KindWeight    Kind = "weight"
	KindOneRepMax Kind = "one_rep_max"
	KindChallenge Kind = "challenge"
	KindDiet      Kind = "diet"
)

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// DateFormat tells the normalizer how a stored date was written.
// FormatAuto inspects the value itself.
const (
	FormatAuto         DateFormat = ""
	FormatNative       DateFormat = "native"
	FormatISO          DateFormat = "iso"
	FormatEpochSeconds DateFormat = "epoch_seconds"
)

type (
	Kind       string
	Direction  string
	DateFormat string

	// Record is one tracked event as handed over by the record store.
	// Date keeps whatever representation the store produced: a time.Time,
	// an ISO string, epoch seconds, or a {seconds, nanoseconds} map.
	Record struct {
		ID         string     `json:"id"`
		Kind       Kind       `json:"kind"`
		Date       any        `json:"date"`
		DateFormat DateFormat `json:"dateFormat,omitempty"`
		Payload    Payload    `json:"payload"`
	}
)

var (
	ErrInvalidKind      = errors.New("invalid record kind")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrEmptyID          = errors.New("empty record id")
	ErrMissingDate      = errors.New("missing date")
	ErrRecordNotFound   = errors.New("record not found")
	ErrMissingFields    = errors.New("missing required fields")
)

// Kinds lists every record kind the store accepts.
func Kinds() []Kind {
	return []Kind{KindExpense, KindWorkout, KindWeight, KindOneRepMax, KindChallenge, KindDiet}
}

// IsValid returns true for a known kind
func (k Kind) IsValid() bool {
	switch k {
	case KindExpense, KindWorkout, KindWeight, KindOneRepMax, KindChallenge, KindDiet:
		return true
	default:
		return false
	}
}

// ParseKind accepts the canonical kind names plus the collection names
// used by the legacy store ("expenses", "workouts", "weights", "onerm", ...).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "expenses":
		return KindExpense, nil
	case "workout", "workouts", "wod":
		return KindWorkout, nil
	case "weight", "weights":
		return KindWeight, nil
	case "one_rep_max", "onerepmax", "onerm", "1rm":
		return KindOneRepMax, nil
	case "challenge", "challenges":
		return KindChallenge, nil
	case "diet", "dietlogs":
		return KindDiet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Direction returns the income/expense direction of an expense record.
// Anything that is not explicitly income counts as an expense.
func (r Record) Direction() Direction {
	if strings.EqualFold(r.Payload.String(FieldDirection), string(DirectionIncome)) {
		return DirectionIncome
	}
	return DirectionExpense
}

// requiredFields mirrors the checks the write endpoints perform per kind.
var requiredFields = map[Kind][]string{
	KindExpense:   {FieldAmount, FieldDirection, FieldCategory, FieldPayment},
	KindWorkout:   {FieldWodContent, FieldMyRecord, FieldReview, FieldCategory},
	KindWeight:    {FieldWeight},
	KindOneRepMax: {FieldName, FieldWeight},
	KindChallenge: {FieldName, FieldStartReps, FieldStartDate},
	KindDiet:      {FieldItems},
}

// Validate checks the fields a record needs before it can be stored.
func (r Record) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if r.Date == nil && r.Kind != KindChallenge {
		return ErrMissingDate
	}
	var missing []string
	for _, f := range requiredFields[r.Kind] {
		if r.Payload.IsBlank(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	switch r.Kind {
	case KindExpense:
		d := Direction(strings.ToLower(r.Payload.String(FieldDirection)))
		if d != DirectionIncome && d != DirectionExpense {
			return fmt.Errorf("%w: %q", ErrInvalidDirection, d)
		}
		if _, err := r.Payload.Number(FieldAmount); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
	case KindWeight, KindOneRepMax:
		if _, err := r.Payload.Number(FieldWeight); err != nil {
			return fmt.Errorf("weight: %w", err)
		}
	}
	return nil
}

// Patch applies a partial update. A non-nil date replaces the stored one
// together with its format; payload keys are merged, nil values delete.
func (r Record) Patch(date any, format DateFormat, fields Payload) Record {
	out := r
	out.Payload = r.Payload.Clone()
	if date != nil {
		out.Date = date
		out.DateFormat = format
	}
	for k, v := range fields {
		if v == nil {
			delete(out.Payload, k)
			continue
		}
		out.Payload[k] = v
	}
	return out
}
