// Package api serves the dashboard over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/dashboard"
	"github.com/sells-group/crowdcount/internal/metrics"
)

// RequestIDHeader carries the per-request id on responses.
const RequestIDHeader = "X-Request-Id"

// Options configures the router.
type Options struct {
	Service        *dashboard.Service
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// Server holds the handler dependencies.
type Server struct {
	svc     *dashboard.Service
	metrics *metrics.Metrics
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	s := &Server{svc: opts.Service, metrics: opts.Metrics}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/series", s.instrument("series", s.handleSeries))
			r.Get("/density", s.instrument("density", s.handleDensity))
			r.Get("/summary", s.instrument("summary", s.handleSummary))
			r.Get("/markers", s.instrument("markers", s.handleMarkers))
		})
		r.Get("/utils/homography", s.instrument("homography", handleHomography))
	})

	return r
}

// requestID tags every request with a UUID, reusing a well-formed incoming one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// handlerFunc returns the outcome label recorded for the request.
type handlerFunc func(w http.ResponseWriter, r *http.Request) string

func (s *Server) instrument(endpoint string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		outcome := h(w, r)
		d := time.Since(start)
		s.metrics.RecordRequest(endpoint, outcome, d)
		zap.L().Debug("api: request",
			zap.String("endpoint", endpoint),
			zap.String("outcome", outcome),
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
			zap.Duration("elapsed", d),
		)
	}
}
