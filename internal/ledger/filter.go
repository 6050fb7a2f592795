package ledger

import (
	"math"
	"sort"
	"time"
)

// AllTime is the window sentinel that keeps every record up to today.
const AllTime = math.MaxInt32

// FilterTrailing keeps the records dated from windowDays before the
// reference day up to and including the reference day, sorted ascending by
// date. Records sharing a date keep their input order. The reference day is
// referenceNow read in the reporting zone.
func FilterTrailing(records []NormalizedRecord, windowDays int, referenceNow time.Time) ([]NormalizedRecord, error) {
	if windowDays <= 0 {
		return nil, ErrInvalidWindow
	}
	today := DateOf(referenceNow)
	var from CalendarDate
	if windowDays != AllTime {
		from = today.AddDays(-windowDays)
	}

	out := make([]NormalizedRecord, 0, len(records))
	for _, r := range records {
		if r.Date.After(today) {
			continue
		}
		if windowDays != AllTime && r.Date.Before(from) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
