package ledger

import (
	"errors"
	"fmt"

	"tracker/internal/core"
)

var ErrInvalidWindow = errors.New("window must be a positive number of days")

// InvalidDateError reports a record whose date could not be read in any
// supported representation. The record is left out of every result.
type InvalidDateError struct {
	RecordID string
	Kind     core.Kind
	Raw      any
	Reason   string
}

func (e *InvalidDateError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("invalid date %v: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("record %s: invalid date %v: %s", e.RecordID, e.Raw, e.Reason)
}

// InvalidNumericFieldError reports a missing or non-numeric value where a
// number was required. The value adds zero to sums and is not counted.
type InvalidNumericFieldError struct {
	RecordID string
	Kind     core.Kind
	Field    string
	Value    any
	Err      error
}

func (e *InvalidNumericFieldError) Error() string {
	return fmt.Sprintf("record %s: field %q (%v): %v", e.RecordID, e.Field, e.Value, e.Err)
}

func (e *InvalidNumericFieldError) Unwrap() error {
	return e.Err
}

// Problems collects the per-record errors produced while computing a result.
type Problems []error

// Skipped returns how many records were dropped because of their date.
func (p Problems) Skipped() int {
	n := 0
	for _, err := range p {
		var de *InvalidDateError
		if errors.As(err, &de) {
			n++
		}
	}
	return n
}

// Strings renders the problems for transport.
func (p Problems) Strings() []string {
	out := make([]string, 0, len(p))
	for _, err := range p {
		out = append(out, err.Error())
	}
	return out
}

// Err joins the problems into a single error, nil when there are none.
func (p Problems) Err() error {
	return errors.Join(p...)
}
