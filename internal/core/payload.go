// Package core provides the record model shared by the store, the ledger
// engine and the transports.
//
// This file contains the payload accessors. Payloads come from a document
// store and are loosely typed, so numbers may arrive as float64, integers,
// json.Number or numeric strings.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Payload field names as written by the original forms.
const (
	FieldAmount    = "amount"
	FieldDirection = "type"
	FieldCategory  = "category"
	FieldPayment   = "payment"
	FieldMemo      = "memo"

	FieldWodContent = "wodContent"
	FieldMyRecord   = "myRecord"
	FieldReview     = "review"

	FieldWeight = "weight"
	FieldName   = "name"

	FieldStartReps = "startReps"
	FieldStartDate = "startDate"
	FieldProgress  = "progress"
	FieldReps      = "reps"
	FieldDate      = "date"

	FieldItems   = "items"
	FieldMeal    = "meal"
	FieldKcal    = "kcal"
	FieldCarbs   = "carbs"
	FieldProtein = "protein"
	FieldFat     = "fat"
)

var (
	ErrFieldMissing    = errors.New("field missing")
	ErrFieldNotNumeric = errors.New("field not numeric")
)

type Payload map[string]any

// Clone returns a shallow copy; a nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// IsBlank reports whether the field is absent, nil or an empty string.
func (p Payload) IsBlank(field string) bool {
	v, ok := p[field]
	if !ok || v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// String returns the field as a trimmed string, or "" when it is not one.
func (p Payload) String(field string) string {
	switch v := p[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

// Number returns the field as a float64.
// It fails with ErrFieldMissing for absent or blank values and with
// ErrFieldNotNumeric for anything that cannot be read as a finite number.
func (p Payload) Number(field string) (float64, error) {
	if p.IsBlank(field) {
		return 0, ErrFieldMissing
	}
	return ToNumber(p[field])
}

// ToNumber converts a loosely typed value into a finite float64.
// Numeric strings may use comma thousands separators.
func ToNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, ErrFieldNotNumeric
		}
		f = parsed
	case string:
		parsed, err := parseNumericString(n)
		if err != nil {
			return 0, err
		}
		f = parsed
	case nil:
		return 0, ErrFieldMissing
	default:
		return 0, ErrFieldNotNumeric
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrFieldNotNumeric
	}
	return f, nil
}

// groupedNumber matches a number with comma thousands separators, such as
// "1,234,567" or "1,234.5".
var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseNumericString reads commas only as thousands separators; "12,5" and
// "1,00" are not numeric.
func parseNumericString(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrFieldMissing
	}
	if strings.Contains(s, ",") {
		if !groupedNumber.MatchString(s) {
			return 0, ErrFieldNotNumeric
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrFieldNotNumeric
	}
	return f, nil
}

// Items returns a list-valued field as payload maps, skipping entries that
// are not objects. Used for diet items and challenge progress.
func (p Payload) Items(field string) []Payload {
	raw, ok := p[field].([]any)
	if !ok {
		if typed, ok := p[field].([]Payload); ok {
			return typed
		}
		if typed, ok := p[field].([]map[string]any); ok {
			out := make([]Payload, 0, len(typed))
			for _, m := range typed {
				out = append(out, Payload(m))
			}
			return out
		}
		return nil
	}
	out := make([]Payload, 0, len(raw))
	for _, item := range raw {
		switch m := item.(type) {
		case map[string]any:
			out = append(out, Payload(m))
		case Payload:
			out = append(out, m)
		}
	}
	return out
}
