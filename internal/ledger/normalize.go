// Package ledger turns snapshots of raw dated records into day and month
// buckets, aggregates, trailing windows and page-ready summaries.
//
// Everything here is pure: no function reads the clock, keeps state between
// calls or touches the store, so the package is safe for concurrent use.
package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"tracker/internal/core"
)

// ReportingOffset is the fixed offset used to read stored instants as
// calendar dates.
const ReportingOffset = 9 * time.Hour

// ReportingZone is UTC+9.
var ReportingZone = time.FixedZone("UTC+9", int(ReportingOffset/time.Second))

var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CalendarDate is a date without time or zone.
type CalendarDate struct {
	Year  int
	Month int
	Day   int
}

// DateOf returns the calendar date of an instant in the reporting zone.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.In(ReportingZone).Date()
	return CalendarDate{Year: y, Month: int(m), Day: d}
}

func (d CalendarDate) DayKey() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d CalendarDate) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
}

func (d CalendarDate) String() string {
	return d.DayKey()
}

// MonthOf returns the month the date falls in.
func (d CalendarDate) MonthOf() Month {
	return Month{Year: d.Year, Month: d.Month}
}

// AddDays returns the date n days later (earlier for negative n).
func (d CalendarDate) AddDays(n int) CalendarDate {
	y, m, day := d.midnight().AddDate(0, 0, n).Date()
	return CalendarDate{Year: y, Month: int(m), Day: day}
}

// Compare returns -1, 0 or +1.
func (d CalendarDate) Compare(o CalendarDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(d.Month, o.Month)
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d CalendarDate) Before(o CalendarDate) bool { return d.Compare(o) < 0 }
func (d CalendarDate) After(o CalendarDate) bool  { return d.Compare(o) > 0 }

func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.DayKey())
}

func (d CalendarDate) midnight() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month int
}

func (m Month) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

func (m Month) Valid() bool {
	return m.Year >= 1 && m.Year <= 9999 && m.Month >= 1 && m.Month <= 12
}

// ParseMonth reads a "YYYY-MM" key.
func ParseMonth(key string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(key))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", key, err)
	}
	return Month{Year: t.Year(), Month: int(t.Month())}, nil
}

// Normalize converts a stored date into a calendar date.
//
// Native time values keep their own wall-clock date, ISO strings are read
// literally, and epoch seconds (a number or a {seconds, nanoseconds} map)
// are shifted by ReportingOffset before truncation. FormatAuto picks the
// representation from the value's type.
func Normalize(raw any, format core.DateFormat) (CalendarDate, error) {
	if format == core.FormatAuto {
		format = detectFormat(raw)
	}
	switch format {
	case core.FormatNative:
		return fromNative(raw)
	case core.FormatISO:
		return fromISO(raw)
	case core.FormatEpochSeconds:
		return fromEpoch(raw)
	}
	return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "unsupported representation"}
}

func detectFormat(raw any) core.DateFormat {
	switch raw.(type) {
	case time.Time, *time.Time:
		return core.FormatNative
	case string:
		return core.FormatISO
	case float64, float32, int, int32, int64, uint64, json.Number, map[string]any:
		return core.FormatEpochSeconds
	}
	return ""
}

func fromNative(raw any) (CalendarDate, error) {
	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "nil time"}
		}
		t = *v
	default:
		return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: fmt.Sprintf("expected a time value, got %T", raw)}
	}
	if t.IsZero() {
		return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "zero time"}
	}
	y, m, d := t.Date()
	return checked(raw, y, m, d)
}

func fromISO(raw any) (CalendarDate, error) {
	s, ok := raw.(string)
	if !ok {
		return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: fmt.Sprintf("expected a string, got %T", raw)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "empty string"}
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// the literal date as written, whatever offset it carries
			y, m, d := t.Date()
			return checked(raw, y, m, d)
		}
	}
	return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "not an ISO-8601 date"}
}

func fromEpoch(raw any) (CalendarDate, error) {
	var seconds, nanos float64
	if m, ok := raw.(map[string]any); ok {
		sv, found := m["seconds"]
		if !found {
			sv, found = m["_seconds"]
		}
		if !found {
			return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "timestamp without seconds"}
		}
		s, err := core.ToNumber(sv)
		if err != nil {
			return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "seconds not numeric"}
		}
		seconds = s
		if nv, ok := m["nanoseconds"]; ok {
			nanos, _ = core.ToNumber(nv)
		} else if nv, ok := m["_nanoseconds"]; ok {
			nanos, _ = core.ToNumber(nv)
		}
	} else {
		if _, isString := raw.(string); isString {
			return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "epoch seconds must be numeric"}
		}
		s, err := core.ToNumber(raw)
		if err != nil {
			return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "epoch seconds must be numeric"}
		}
		seconds = s
	}
	// keep well inside the range of time.Unix and four-digit years
	if math.Abs(seconds) > 253402300799 {
		return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "epoch seconds out of range"}
	}
	whole, frac := math.Modf(seconds)
	t := time.Unix(int64(whole), int64(frac*1e9)+int64(nanos)).UTC().Add(ReportingOffset)
	y, m, d := t.Date()
	return checked(raw, y, m, d)
}

func checked(raw any, y int, m time.Month, d int) (CalendarDate, error) {
	if y < 1 || y > 9999 {
		return CalendarDate{}, &InvalidDateError{Raw: raw, Reason: "year out of range"}
	}
	return CalendarDate{Year: y, Month: int(m), Day: d}, nil
}

// NormalizedRecord is a record whose date has been read into a calendar
// date. Day and month keys are derived from Date on demand.
type NormalizedRecord struct {
	Record core.Record
	Date   CalendarDate
}

func (r NormalizedRecord) DayKey() string   { return r.Date.DayKey() }
func (r NormalizedRecord) MonthKey() string { return r.Date.MonthKey() }

func (r NormalizedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string       `json:"id"`
		Kind     core.Kind    `json:"kind"`
		DayKey   string       `json:"dayKey"`
		MonthKey string       `json:"monthKey"`
		Payload  core.Payload `json:"payload"`
	}{r.Record.ID, r.Record.Kind, r.DayKey(), r.MonthKey(), r.Record.Payload})
}

// NormalizeRecords normalizes every record, keeping input order. Records
// with unreadable dates are dropped and reported once each.
func NormalizeRecords(records []core.Record) ([]NormalizedRecord, Problems) {
	out := make([]NormalizedRecord, 0, len(records))
	var problems Problems
	for _, r := range records {
		d, err := Normalize(r.Date, r.DateFormat)
		if err != nil {
			de, ok := err.(*InvalidDateError)
			if !ok {
				de = &InvalidDateError{Raw: r.Date, Reason: err.Error()}
			}
			de.RecordID = r.ID
			de.Kind = r.Kind
			problems = append(problems, de)
			continue
		}
		out = append(out, NormalizedRecord{Record: r, Date: d})
	}
	return out, problems
}
