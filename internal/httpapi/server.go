// Package httpapi exposes the traceability service as a JSON HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"agritrace/docs/schema/openapi"
	"agritrace/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AuditReader exposes recent audit entries, newest first.
type AuditReader interface {
	Recent(limit int) []core.AuditEntry
}

// Server routes HTTP requests to a core.Service.
type Server struct {
	svc      *core.Service
	audit    AuditReader
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	origins  []string
}

// Option customises a Server.
type Option func(*Server)

// WithAuditReader enables GET /audit.
func WithAuditReader(r AuditReader) Option {
	return func(s *Server) { s.audit = r }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithLogger enables request logging.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllowedOrigins sets the CORS allow list. The default allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// NewServer builds a server for svc.
func NewServer(svc *core.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.NewNop(),
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec())
	})

	r.Route("/lots", func(r chi.Router) {
		r.Get("/", s.listLots)
		r.Post("/", s.createLot)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getLot)
			r.Delete("/", s.deleteLot)
			r.Get("/trace", s.traceLot)
			r.Post("/trace/export", s.exportTrace)
			r.Get("/trace/exports", s.listExports)
		})
	})
	r.Route("/transformations", func(r chi.Router) {
		r.Get("/", s.listTransformations)
		r.Post("/", s.createTransformation)
		r.Get("/{id}", s.getTransformation)
		r.Delete("/{id}", s.deleteTransformation)
	})
	r.Route("/logistics", func(r chi.Router) {
		r.Get("/", s.listLogistics)
		r.Post("/", s.createLogistics)
		r.Get("/{id}", s.getLogistics)
		r.Patch("/{id}", s.patchLogistics)
		r.Delete("/{id}", s.deleteLogistics)
	})
	r.Get("/traces", s.traceSummaries)
	r.Get("/traces/search", s.searchTrace)
	r.Get("/stats", s.stats)
	r.Get("/audit", s.auditEntries)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
