package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
	"github.com/JakeFAU/upc-citation-tracker/internal/ranking"
	"github.com/JakeFAU/upc-citation-tracker/internal/report"
	"github.com/JakeFAU/upc-citation-tracker/internal/stats"
)

// Loader reads the current snapshot. A missing store yields an empty
// snapshot; an unreadable one an error.
type Loader interface {
	Load(ctx context.Context) (*decision.Snapshot, error)
}

// Instrumentation exposes metrics and records HTTP traffic.
type Instrumentation interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Options configures the server.
type Options struct {
	SiteDir        string
	DefaultTopN    int
	MaxTopN        int
	Stats          stats.Options
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store and renderer.
type Server struct {
	router   chi.Router
	opts     Options
	loader   Loader
	renderer *report.Renderer
	clock    decision.Clock
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. instr may be nil.
func NewServer(
	opts Options,
	loader Loader,
	renderer *report.Renderer,
	instr Instrumentation,
	clock decision.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 100
	}
	if opts.MaxTopN < opts.DefaultTopN {
		opts.MaxTopN = opts.DefaultTopN
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		opts:     opts,
		loader:   loader,
		renderer: renderer,
		clock:    clock,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if instr != nil {
		r.Use(instr.Middleware)
	}
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if instr != nil {
		r.Method(http.MethodGet, "/metrics", instr.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/top", s.top)
		r.Get("/stats", s.statistics)
	})
	if opts.SiteDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.SiteDir)))
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.loader.Load(r.Context()); err != nil {
		s.logger.Warn("store not readable", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type topEntry struct {
	Rank        int    `json:"rank"`
	ID          string `json:"id"`
	DecisionRef string `json:"decision_ref"`
	Citations   int    `json:"citations"`
	Date        string `json:"date"`
	Court       string `json:"court"`
	ActionType  string `json:"action_type"`
	Parties     string `json:"parties"`
	DetailsURL  string `json:"details_url,omitempty"`
}

type topResponse struct {
	GeneratedAt string     `json:"generated_at"`
	Total       int        `json:"total_decisions"`
	Entries     []topEntry `json:"entries"`
}

func (s *Server) top(w http.ResponseWriter, r *http.Request) {
	n := s.opts.DefaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(parsed, s.opts.MaxTopN)
	}

	snap, ok := s.load(w, r)
	if !ok {
		return
	}
	entries, err := ranking.Rank(snap, n)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := topResponse{
		GeneratedAt: s.clock.Now().UTC().Format(time.RFC3339),
		Total:       snap.Len(),
		Entries:     make([]topEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, topEntry{
			Rank:        e.Rank,
			ID:          e.Decision.ID,
			DecisionRef: e.Decision.Reference,
			Citations:   e.Citations,
			Date:        e.Decision.Date,
			Court:       e.Decision.Court,
			ActionType:  e.Decision.ActionType,
			Parties:     e.Decision.Parties,
			DetailsURL:  e.Decision.DetailsURL(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.load(w, r)
	if !ok {
		return
	}
	page := report.StatisticsPage{GeneratedAt: s.clock.Now(), Summary: stats.Summarize(snap, s.opts.Stats)}
	w.Header().Set("Content-Type", "application/json")
	if err := s.renderer.RenderStatisticsJSON(w, page); err != nil {
		s.logger.Error("render statistics failed", zap.Error(err))
	}
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*decision.Snapshot, bool) {
	snap, err := s.loader.Load(r.Context())
	if err != nil {
		s.logger.Error("load store failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return nil, false
	}
	return snap, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
