package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/core"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		format core.DateFormat
		want   string
	}{
		{"iso date", "2025-04-01", core.FormatAuto, "2025-04-01"},
		{"iso date with spaces", " 2025-04-01 ", core.FormatISO, "2025-04-01"},
		{"iso timestamp keeps literal date", "2025-04-01T23:30:00-05:00", core.FormatAuto, "2025-04-01"},
		{"native time used as-is", time.Date(2025, 4, 1, 23, 0, 0, 0, time.UTC), core.FormatAuto, "2025-04-01"},
		{"native pointer", ptr(time.Date(2025, 12, 31, 8, 0, 0, 0, ReportingZone)), core.FormatNative, "2025-12-31"},
		// 1712000000 = 2024-04-01T19:33:20Z, +9h = 2024-04-02T04:33:20
		{"epoch seconds", int64(1712000000), core.FormatAuto, "2024-04-02"},
		{"epoch timestamp map", map[string]any{"seconds": 1712000000.0, "nanoseconds": 0.0}, core.FormatAuto, "2024-04-02"},
		{"admin sdk timestamp map", map[string]any{"_seconds": json.Number("1712000000")}, core.FormatAuto, "2024-04-02"},
		{"epoch just before offset midnight", int64(1711983599), core.FormatEpochSeconds, "2024-04-01"},
		{"epoch at offset midnight", int64(1711983600), core.FormatEpochSeconds, "2024-04-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.DayKey())
			assert.Equal(t, tt.want[:7], got.MonthKey())
		})
	}
}

func TestNormalizeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		format core.DateFormat
	}{
		{"free text", "yesterday", core.FormatAuto},
		{"impossible day", "2025-02-30", core.FormatAuto},
		{"empty string", "", core.FormatAuto},
		{"nil", nil, core.FormatAuto},
		{"bool", true, core.FormatAuto},
		{"zero time", time.Time{}, core.FormatAuto},
		{"map without seconds", map[string]any{"nanos": 1.0}, core.FormatAuto},
		{"string for epoch", "1712000000", core.FormatEpochSeconds},
		{"number for iso", 1712000000.0, core.FormatISO},
		{"epoch out of range", 1e15, core.FormatAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, tt.format)
			var de *InvalidDateError
			require.True(t, errors.As(err, &de), "expected InvalidDateError, got %v", err)
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := map[string]any{"seconds": 1712000000.0}
	first, err := Normalize(raw, core.FormatAuto)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Normalize(raw, core.FormatAuto)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalizeRecordsReportsEachFailureOnce(t *testing.T) {
	records := []core.Record{
		{ID: "a", Kind: core.KindWeight, Date: "2025-04-01"},
		{ID: "b", Kind: core.KindWeight, Date: "garbage"},
		{ID: "c", Kind: core.KindWeight, Date: nil},
		{ID: "d", Kind: core.KindWeight, Date: int64(1712000000)},
	}
	normalized, problems := NormalizeRecords(records)

	require.Len(t, normalized, 2)
	assert.Equal(t, "a", normalized[0].Record.ID)
	assert.Equal(t, "d", normalized[1].Record.ID)

	require.Len(t, problems, 2)
	assert.Equal(t, 2, problems.Skipped())
	var de *InvalidDateError
	require.True(t, errors.As(problems[0], &de))
	assert.Equal(t, "b", de.RecordID)
	assert.Equal(t, core.KindWeight, de.Kind)
	require.True(t, errors.As(problems[1], &de))
	assert.Equal(t, "c", de.RecordID)
}

func TestCalendarDateArithmetic(t *testing.T) {
	d := CalendarDate{Year: 2024, Month: 3, Day: 1}
	assert.Equal(t, "2024-02-29", d.AddDays(-1).DayKey())
	assert.Equal(t, "2024-03-08", d.AddDays(7).DayKey())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, 0, d.Compare(CalendarDate{Year: 2024, Month: 3, Day: 1}))

	// 2025-04-09T20:00Z is already the 10th in the reporting zone
	assert.Equal(t, "2025-04-10", DateOf(time.Date(2025, 4, 9, 20, 0, 0, 0, time.UTC)).DayKey())
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-04")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2025, Month: 4}, m)
	assert.Equal(t, "2025-04", m.Key())

	_, err = ParseMonth("April")
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
