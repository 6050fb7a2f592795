package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/core"
)

func ids(rs []NormalizedRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Record.ID)
	}
	return out
}

func TestFilterTrailing(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, ReportingZone)
	records := mustNormalize(t, []core.Record{
		weight("future", "2025-04-11", 1.0),
		weight("today", "2025-04-10", 1.0),
		weight("nine-days", "2025-04-02", 1.0),
		weight("five-days", "2025-04-05", 1.0),
		weight("boundary", "2025-04-03", 1.0),
		weight("today-2", "2025-04-10", 1.0),
	})

	got, err := FilterTrailing(records, 7, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"boundary", "five-days", "today", "today-2"}, ids(got))
}

func TestFilterTrailingUsesReportingZoneForNow(t *testing.T) {
	// 2025-04-09T20:00Z is 2025-04-10 in UTC+9, so the 3rd is still inside
	now := time.Date(2025, 4, 9, 20, 0, 0, 0, time.UTC)
	records := mustNormalize(t, []core.Record{weight("a", "2025-04-03", 1.0)})
	got, err := FilterTrailing(records, 7, now)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFilterTrailingIsIdempotent(t *testing.T) {
	now := time.Date(2025, 4, 10, 0, 0, 0, 0, ReportingZone)
	records := mustNormalize(t, sampleRecords())

	once, err := FilterTrailing(records, 30, now)
	require.NoError(t, err)
	twice, err := FilterTrailing(once, 30, now)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestFilterTrailingAllTime(t *testing.T) {
	now := time.Date(2025, 4, 10, 0, 0, 0, 0, ReportingZone)
	records := mustNormalize(t, sampleRecords())
	got, err := FilterTrailing(records, AllTime, now)
	require.NoError(t, err)
	require.Len(t, got, len(records))
	assert.Equal(t, "4", got[0].Record.ID)
}

func TestFilterTrailingInvalidWindow(t *testing.T) {
	_, err := FilterTrailing(nil, 0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = FilterTrailing(nil, -7, time.Now())
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestFilterTrailingEmpty(t *testing.T) {
	got, err := FilterTrailing(nil, 7, time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
}
