package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tracker/internal/core"
	"tracker/internal/log"
)

// summaryFunc computes one summary view for the request.
type summaryFunc func(r *http.Request, kind core.Kind) (any, error)

func fixedKind(kind core.Kind) func(*http.Request) (core.Kind, error) {
	return func(*http.Request) (core.Kind, error) { return kind, nil }
}

func kindParam(r *http.Request) (core.Kind, error) { return parseKind(r) }

// summary serves a view from the cache, computing and storing it on a miss.
// Keys start with the kind so writes can drop them by prefix; the current
// day is part of the key since views default to it.
func (s *Server) summary(name string, kindOf func(*http.Request) (core.Kind, error), fn summaryFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := kindOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		key := strings.Join([]string{string(kind), name, s.summaries.Today().DayKey(), r.URL.Query().Encode()}, ":")
		if body, ok := s.summaryCache.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeBody(w, http.StatusOK, body)
			return
		}

		gen := s.generation(kind)
		before := gen.Load()
		view, err := fn(r, kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		body, err := json.Marshal(view)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if gen.Load() == before {
			s.summaryCache.Set(key, body)
			// an invalidation may land between the check and the Set
			if gen.Load() != before {
				s.summaryCache.Delete(key)
			}
		}
		log.FromContext(r.Context()).DebugContext(r.Context(), "Summary computed", "view", name, log.FieldKind, kind)
		w.Header().Set("X-Cache", "MISS")
		writeBody(w, http.StatusOK, body)
	}
}

func (s *Server) calendarSummary(r *http.Request, _ core.Kind) (any, error) {
	month, err := parseMonth(r, s.summaries.Today())
	if err != nil {
		return nil, err
	}
	return s.summaries.Calendar(r.Context(), month)
}

func (s *Server) daysSummary(r *http.Request, kind core.Kind) (any, error) {
	month, err := parseMonth(r, s.summaries.Today())
	if err != nil {
		return nil, err
	}
	return s.summaries.Days(r.Context(), kind, month)
}

func (s *Server) monthlySummary(r *http.Request, kind core.Kind) (any, error) {
	return s.summaries.Monthly(r.Context(), kind)
}

func (s *Server) trendSummary(r *http.Request, kind core.Kind) (any, error) {
	window, err := parseWindow(r)
	if err != nil {
		return nil, err
	}
	field := strings.TrimSpace(r.URL.Query().Get("field"))
	if kind == core.KindExpense {
		if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))); raw != "" {
			direction := core.Direction(raw)
			if direction != core.DirectionIncome && direction != core.DirectionExpense {
				return nil, badParam("type", fmt.Errorf("%q is not income or expense", raw))
			}
			return s.summaries.ExpenseTrend(r.Context(), direction, field, window)
		}
	}
	return s.summaries.Trend(r.Context(), kind, field, window)
}

func (s *Server) dietSummary(r *http.Request, _ core.Kind) (any, error) {
	day, err := parseDay(r, s.summaries.Today())
	if err != nil {
		return nil, err
	}
	return s.summaries.Diet(r.Context(), day)
}

func (s *Server) liftsSummary(r *http.Request, _ core.Kind) (any, error) {
	return s.summaries.Lifts(r.Context(), sanitizeInput(r.URL.Query().Get("filter")))
}

func (s *Server) challengesSummary(r *http.Request, _ core.Kind) (any, error) {
	return s.summaries.Challenges(r.Context())
}
