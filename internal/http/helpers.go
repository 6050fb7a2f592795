package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

// requestError marks a malformed request parameter.
type requestError struct {
	param string
	err   error
}

func (e *requestError) Error() string { return fmt.Sprintf("invalid %s: %v", e.param, e.err) }
func (e *requestError) Unwrap() error { return e.err }

func badParam(param string, err error) error {
	return &requestError{param: param, err: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
		return
	}
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, ledger.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidDirection),
		errors.Is(err, core.ErrMissingDate),
		errors.Is(err, core.ErrMissingFields),
		errors.Is(err, core.ErrFieldMissing),
		errors.Is(err, core.ErrFieldNotNumeric),
		errors.Is(err, core.ErrEmptyID):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as JSON. Internal errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func parseKind(r *http.Request) (core.Kind, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("kind"))
	if raw == "" {
		return "", badParam("kind", errors.New("required"))
	}
	kind, err := core.ParseKind(raw)
	if err != nil {
		return "", badParam("kind", err)
	}
	return kind, nil
}

// parseMonth reads year and month, defaulting each to the current one.
func parseMonth(r *http.Request, today ledger.CalendarDate) (ledger.Month, error) {
	m := today.MonthOf()
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Month{}, badParam("year", err)
		}
		m.Year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		mo, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Month{}, badParam("month", err)
		}
		m.Month = mo
	}
	if !m.Valid() {
		return ledger.Month{}, badParam("month", fmt.Errorf("%q out of range", m.Key()))
	}
	return m, nil
}

// trendWindows are the windows the chart offers.
var trendWindows = map[string]int{
	"7":   7,
	"30":  30,
	"90":  90,
	"180": 180,
	"365": 365,
	"all": ledger.AllTime,
}

const defaultTrendWindow = 30

func parseWindow(r *http.Request) (int, error) {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("days")))
	if v == "" {
		return defaultTrendWindow, nil
	}
	days, ok := trendWindows[v]
	if !ok {
		return 0, badParam("days", fmt.Errorf("%q is not one of 7, 30, 90, 180, 365, all", v))
	}
	return days, nil
}

// parseDay reads a YYYY-MM-DD date, defaulting to today.
func parseDay(r *http.Request, today ledger.CalendarDate) (ledger.CalendarDate, error) {
	v := strings.TrimSpace(r.URL.Query().Get("date"))
	if v == "" {
		return today, nil
	}
	d, err := ledger.Normalize(v, core.FormatISO)
	if err != nil {
		return ledger.CalendarDate{}, badParam("date", err)
	}
	return d, nil
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// sanitizePayload cleans every string value of p in place.
func sanitizePayload(p core.Payload) {
	for k, v := range p {
		if s, ok := v.(string); ok {
			p[k] = sanitizeInput(s)
		}
	}
}
