package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/middleware/ratelimit"
	"tracker/internal/middleware/trace"
	"tracker/internal/services"
	"tracker/internal/store/memory"
)

func fixedClock() time.Time {
	return time.Date(2025, 4, 10, 12, 0, 0, 0, ledger.ReportingZone)
}

func expense(id, date string, amount float64, direction string) core.Record {
	return core.Record{
		ID:   id,
		Kind: core.KindExpense,
		Date: date,
		Payload: core.Payload{
			core.FieldAmount:    amount,
			core.FieldDirection: direction,
			core.FieldCategory:  "food",
			core.FieldPayment:   "card",
		},
	}
}

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	st := memory.New(
		expense("e1", "2025-04-01", 1000, "income"),
		expense("e2", "2025-04-01", 300, "expense"),
		core.Record{ID: "bad", Kind: core.KindExpense, Date: "not a date", Payload: core.Payload{core.FieldAmount: 1.0}},
		core.Record{ID: "w1", Kind: core.KindWeight, Date: "2025-04-09", Payload: core.Payload{core.FieldWeight: 70.0}},
		core.Record{ID: "w2", Kind: core.KindWeight, Date: "2025-04-05", Payload: core.Payload{core.FieldWeight: 71.0}},
		core.Record{ID: "d1", Kind: core.KindDiet, Date: "2025-04-10", Payload: core.Payload{
			core.FieldItems: []any{map[string]any{core.FieldKcal: 500.0, core.FieldProtein: 20.0}},
		}},
	)
	records := services.NewRecordService(st, nil, nil)
	opts := Options{
		Addr:      ":0",
		Records:   records,
		Summaries: services.NewSummaryService(records, nil).WithClock(fixedClock),
		RateLimit: ratelimit.Config{RequestsPerMinute: 100},
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get(trace.HeaderRequestID))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	}

	down := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("amqp down") }
	})
	rr := do(t, down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "amqp down")
}

func TestRecordLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/records",
		`{"kind":"weights","date":"2025-04-10","payload":{"weight":69.5}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode(t, rr)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "weight", created["kind"])
	assert.Contains(t, rr.Header().Get("Location"), id)

	rr = do(t, srv, http.MethodGet, "/api/records?kind=weight", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["records"], 3)

	rr = do(t, srv, http.MethodPut, "/api/records/"+id+"?kind=weight", `{"fields":{"weight":69.0}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decode(t, rr)["payload"].(map[string]any)
	assert.Equal(t, 69.0, payload["weight"])

	rr = do(t, srv, http.MethodDelete, "/api/records/"+id+"?kind=weight", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv, http.MethodDelete, "/api/records/"+id+"?kind=weight", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecordErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"list without kind", http.MethodGet, "/api/records", "", http.StatusBadRequest},
		{"list unknown kind", http.MethodGet, "/api/records?kind=pets", "", http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/records", `{"kind":`, http.StatusBadRequest},
		{"unknown kind on create", http.MethodPost, "/api/records", `{"kind":"pets","date":"2025-04-10"}`, http.StatusUnprocessableEntity},
		{"missing fields", http.MethodPost, "/api/records", `{"kind":"expense","date":"2025-04-10","payload":{"amount":5}}`, http.StatusUnprocessableEntity},
		{"bad direction", http.MethodPost, "/api/records", `{"kind":"expense","date":"2025-04-10","payload":{"amount":5,"type":"gift","category":"a","payment":"b"}}`, http.StatusUnprocessableEntity},
		{"empty patch", http.MethodPut, "/api/records/e1?kind=expense", `{}`, http.StatusBadRequest},
		{"update unknown id", http.MethodPut, "/api/records/nope?kind=expense", `{"fields":{"memo":"x"}}`, http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/records/e1?kind=expense", `{}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestListRecordsFilter(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(t, srv, http.MethodGet, "/api/records?kind=expense&field=type&value=income", "")
	require.Equal(t, http.StatusOK, rr.Code)
	records := decode(t, rr)["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "e1", records[0].(map[string]any)["id"])
}

func TestCalendarSummaryIsCachedAndInvalidated(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodGet, "/api/summary/calendar?year=2025&month=4", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	view := decode(t, rr)
	assert.Equal(t, "2025-04", view["month"])
	assert.Equal(t, map[string]any{"incomeTotal": 1000.0, "expenseTotal": 300.0},
		view["days"].(map[string]any)["2025-04-01"])
	assert.Equal(t, 1.0, view["skipped"])
	assert.Len(t, view["problems"], 1)

	rr = do(t, srv, http.MethodGet, "/api/summary/calendar?month=4&year=2025", "")
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))

	// a weight write leaves expense views alone
	rr = do(t, srv, http.MethodPost, "/api/records", `{"kind":"weight","date":"2025-04-10","payload":{"weight":70}}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, srv, http.MethodGet, "/api/summary/calendar?year=2025&month=4", "")
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))

	rr = do(t, srv, http.MethodPost, "/api/records",
		`{"kind":"expense","date":"2025-04-02","payload":{"amount":50,"type":"expense","category":"food","payment":"cash"}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, srv, http.MethodGet, "/api/summary/calendar?year=2025&month=4", "")
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	assert.Equal(t, map[string]any{"incomeTotal": 0.0, "expenseTotal": 50.0},
		decode(t, rr)["days"].(map[string]any)["2025-04-02"])
}

func TestSummaryComputedDuringWriteIsNotCached(t *testing.T) {
	srv := newTestServer(t, nil)
	writes := 0
	h := srv.summary("calendar", fixedKind(core.KindExpense), func(r *http.Request, kind core.Kind) (any, error) {
		view, err := srv.calendarSummary(r, kind)
		if writes == 0 {
			writes++
			_, werr := srv.records.Create(r.Context(), expense("", "2025-04-03", 20, "expense"))
			require.NoError(t, werr)
		}
		return view, err
	})

	get := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summary/calendar?year=2025&month=4", nil))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		return rr
	}

	assert.Equal(t, "MISS", get().Header().Get("X-Cache"))
	rr := get()
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	assert.Contains(t, decode(t, rr)["days"].(map[string]any), "2025-04-03")
	assert.Equal(t, "HIT", get().Header().Get("X-Cache"))
}

func TestCalendarDefaultsToCurrentMonth(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(t, srv, http.MethodGet, "/api/summary/calendar", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2025-04", decode(t, rr)["month"])
}

func TestSummaryEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{"trend default window", "/api/summary/trend?kind=weight", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Equal(t, 30.0, body["windowDays"])
			assert.Equal(t, "70.5", body["displayAverage"])
			assert.Equal(t, "70.0", body["displayLatest"])
		}},
		{"trend all", "/api/summary/trend?kind=weight&days=all", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Len(t, body["points"], 2)
		}},
		{"trend empty kind", "/api/summary/trend?kind=challenge&days=7", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Empty(t, body["points"])
			assert.Nil(t, body["average"])
		}},
		{"trend expense charts spending", "/api/summary/trend?kind=expense", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "expense", body["direction"])
			points := body["points"].([]any)
			require.Len(t, points, 1)
			assert.Equal(t, 300.0, points[0].(map[string]any)["value"])
		}},
		{"trend expense income", "/api/summary/trend?kind=expense&type=income", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "income", body["direction"])
			points := body["points"].([]any)
			require.Len(t, points, 1)
			assert.Equal(t, 1000.0, points[0].(map[string]any)["value"])
		}},
		{"trend expense bad type", "/api/summary/trend?kind=expense&type=refund", http.StatusBadRequest, nil},
		{"trend unknown window", "/api/summary/trend?kind=weight&days=12", http.StatusBadRequest, nil},
		{"trend without kind", "/api/summary/trend", http.StatusBadRequest, nil},
		{"days", "/api/summary/days?kind=expense&year=2025&month=4", http.StatusOK, func(t *testing.T, body map[string]any) {
			days := body["days"].([]any)
			require.Len(t, days, 1)
			assert.Equal(t, "2025-04-01", days[0].(map[string]any)["dayKey"])
		}},
		{"days bad month", "/api/summary/days?kind=expense&month=13", http.StatusBadRequest, nil},
		{"monthly", "/api/summary/monthly?kind=weight", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Len(t, body["months"], 1)
		}},
		{"diet today", "/api/summary/diet", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "2025-04-10", body["dayKey"])
		}},
		{"diet bad date", "/api/summary/diet?date=yesterday", http.StatusBadRequest, nil},
		{"lifts", "/api/summary/lifts?filter=squat", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Empty(t, body["groups"])
		}},
		{"challenges", "/api/summary/challenges", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Empty(t, body["challenges"])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tt.target, "")
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.check != nil {
				tt.check(t, decode(t, rr))
			}
		})
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.RateLimit = ratelimit.Config{RequestsPerMinute: 1}
	})
	body := `{"kind":"weight","date":"2025-04-10","payload":{"weight":70}}`

	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/records", body).Code)
	rr := do(t, srv, http.MethodPost, "/api/records", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// reads are not limited
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/records?kind=weight", "").Code)

	stats := decode(t, do(t, srv, http.MethodGet, "/api/stats", ""))
	assert.Equal(t, 1.0, stats["rateLimit"].(map[string]any)["rejected"])
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  lunch  ", "lunch"},
		{"a\x00b\x07c", "abc"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
