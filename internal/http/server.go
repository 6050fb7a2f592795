// Package http serves the JSON API: record CRUD and the summary views.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tracker/internal/cache"
	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/middleware/ratelimit"
	"tracker/internal/middleware/security"
	"tracker/internal/middleware/trace"
	"tracker/internal/services"
	"tracker/internal/store"
)

// Records is the record store the handlers write through. Subscribe is used
// to drop cached summaries of a kind whenever it changes.
type Records interface {
	store.Lister
	store.Writer
	store.Subscriber
}

type Options struct {
	Addr      string
	Records   Records
	Summaries *services.SummaryService
	Logger    *log.Logger

	CacheSize int
	CacheTTL  time.Duration
	RateLimit ratelimit.Config

	// Ready reports whether backing services are usable. Nil means always ready.
	Ready func(context.Context) error
}

type Server struct {
	http.Server
	records   Records
	summaries *services.SummaryService
	logger    *log.Logger
	ready     func(context.Context) error

	summaryCache *cache.LRUCache[[]byte]
	cacheManager *cache.Manager
	// generations counts invalidations per kind; a view computed across
	// an invalidation is not cached.
	generations map[core.Kind]*atomic.Uint64
	limiter     *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	unsubscribe  []func()
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	s := &Server{
		records:      opts.Records,
		summaries:    opts.Summaries,
		logger:       logger.WithComponent(log.ComponentHTTP),
		ready:        opts.Ready,
		summaryCache: cache.NewLRUCache[[]byte](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		detector:     security.NewDetector(),
		tracer:       trace.NewMiddleware(),
		generations:  make(map[core.Kind]*atomic.Uint64),
	}
	for _, kind := range core.Kinds() {
		s.generations[kind] = new(atomic.Uint64)
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(opts.CacheTTL)

	for _, kind := range core.Kinds() {
		kind := kind
		s.unsubscribe = append(s.unsubscribe, opts.Records.Subscribe(kind, func([]core.Record) {
			s.invalidate(kind)
		}))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Stats())
	})

	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.Handle("POST /api/records", s.limitWrites(s.handleCreateRecord))
	mux.Handle("PUT /api/records/{id}", s.limitWrites(s.handleUpdateRecord))
	mux.Handle("DELETE /api/records/{id}", s.limitWrites(s.handleDeleteRecord))

	mux.HandleFunc("GET /api/summary/calendar", s.summary("calendar", fixedKind(core.KindExpense), s.calendarSummary))
	mux.HandleFunc("GET /api/summary/days", s.summary("days", kindParam, s.daysSummary))
	mux.HandleFunc("GET /api/summary/monthly", s.summary("monthly", kindParam, s.monthlySummary))
	mux.HandleFunc("GET /api/summary/trend", s.summary("trend", kindParam, s.trendSummary))
	mux.HandleFunc("GET /api/summary/diet", s.summary("diet", fixedKind(core.KindDiet), s.dietSummary))
	mux.HandleFunc("GET /api/summary/lifts", s.summary("lifts", fixedKind(core.KindOneRepMax), s.liftsSummary))
	mux.HandleFunc("GET /api/summary/challenges", s.summary("challenges", fixedKind(core.KindChallenge), s.challengesSummary))

	var handler http.Handler = mux
	handler = s.flagSuspicious(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.Middleware(logger, trace.FromRequest, s.detector.ExtractClientIP)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// limitWrites applies the per-client rate limit.
func (s *Server) limitWrites(next http.HandlerFunc) http.Handler {
	return s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
	})(next)
}

func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// invalidate drops every cached summary computed from kind.
func (s *Server) invalidate(kind core.Kind) {
	s.generation(kind).Add(1)
	if n := s.summaryCache.DeletePrefix(string(kind) + ":"); n > 0 {
		s.logger.Debug("Summary cache invalidated", log.FieldKind, kind, "entries", n)
	}
}

func (s *Server) generation(kind core.Kind) *atomic.Uint64 {
	if g, ok := s.generations[kind]; ok {
		return g
	}
	return new(atomic.Uint64)
}

// Shutdown stops the listener, the background sweepers and the cache
// subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		for _, cancel := range s.unsubscribe {
			cancel()
		}
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats reports the middleware counters.
func (s *Server) Stats() map[string]any {
	return map[string]any{
		"requests":    s.tracer.GetMetrics(),
		"rateLimit":   s.limiter.GetMetrics(),
		"security":    s.detector.GetMetrics(),
		"cachedViews": s.summaryCache.Size(),
	}
}
