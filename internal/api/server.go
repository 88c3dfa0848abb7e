// Package api exposes the appraisal wizard and the back-office reports over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loan-appraiser/internal/appraisal/search"
	"loan-appraiser/internal/appraisal/session"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/models"
)

// Reports is the approved-loans and dashboard side of the repository.
type Reports interface {
	ListApproved(ctx context.Context) ([]models.ApprovedLoan, error)
	ExportApprovedCSV(ctx context.Context, w io.Writer) (int, error)
	DeleteApproved(ctx context.Context, trackingIDs []string) (int64, error)
	Dashboard(ctx context.Context, limit int) (*models.Dashboard, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Server struct {
	sessions       *session.Manager
	reports        Reports
	search         Searcher
	checks         map[string]Check
	allowedOrigins map[string]bool
	logger         logger.Logger
}

type Option func(*Server)

// WithReports mounts the approved-loans and dashboard routes.
func WithReports(r Reports) Option {
	return func(s *Server) { s.reports = r }
}

// WithSearch mounts the application search route.
func WithSearch(sr Searcher) Option {
	return func(s *Server) { s.search = sr }
}

// WithCheck adds a readiness check.
func WithCheck(name string, c Check) Option {
	return func(s *Server) { s.checks[name] = c }
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.allowedOrigins[o] = true
		}
	}
}

func New(sessions *session.Manager, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		sessions:       sessions,
		checks:         make(map[string]Check),
		allowedOrigins: make(map[string]bool),
		logger:         log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/loan-types", s.handleLoanTypes)
		r.Get("/loan-types/{type}/steps", s.handleLoanTypeSteps)
		r.Get("/loan-types/{type}/schema", s.handleLoanTypeSchema)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/next", s.handleNext)
				r.Post("/prev", s.handlePrev)
				r.Post("/reset", s.handleReset)
				r.Post("/submit", s.handleSubmit)
				r.Get("/steps/{index}", s.handleRenderStep)
			})
		})

		if s.reports != nil {
			r.Get("/dashboard", s.handleDashboard)
			r.Route("/approved-loans", func(r chi.Router) {
				r.Get("/", s.handleListApproved)
				r.Get("/export", s.handleExportApproved)
				r.Post("/delete", s.handleDeleteApproved)
			})
		}
		if s.search != nil {
			r.Get("/applications/search", s.handleSearch)
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status, code = "not ready", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	s.writeJSON(w, code, map[string]interface{}{"status": status, "checks": results})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}

// cors answers preflight requests and echoes allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.allowedOrigins["*"] || s.allowedOrigins[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
