// Package server is the thin HTTP adapter over the report lifecycle
// manager. Authentication (JWT issuance) lives with an external
// collaborator; the boundary contract here is the X-Device-Fingerprint
// header for submitters and a bearer token for admin routes.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/floodwatch-fl/floodwatch/internal/config"
	"github.com/floodwatch-fl/floodwatch/internal/observability"
	"github.com/floodwatch-fl/floodwatch/internal/report"
)

// deviceHeader carries the client-generated opaque device fingerprint.
const deviceHeader = "X-Device-Fingerprint"

// ReportService is the slice of the lifecycle manager the handlers use.
type ReportService interface {
	Create(ctx context.Context, sub report.Submission) (*report.Report, error)
	ListActive(ctx context.Context, f report.Filter, device string) ([]report.ActiveReport, error)
	Delete(ctx context.Context, id, device string) (bool, error)
	AdminList(ctx context.Context) ([]report.Report, error)
	AdminDelete(ctx context.Context, id string) (bool, error)
	AdminClearAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*report.Stats, error)
	CheckQuota(ctx context.Context, device string) report.QuotaState
	ChargeQuota(ctx context.Context, device string) report.QuotaState
}

// Server serves the report API.
type Server struct {
	svc      ReportService
	cfg      config.ServerConfig
	metrics  *observability.Metrics
	throttle *rate.Limiter
	log      *zap.Logger
}

// New creates a Server. metrics may be nil.
func New(svc ReportService, cfg config.ServerConfig, metrics *observability.Metrics) *Server {
	return &Server{
		svc:     svc,
		cfg:     cfg,
		metrics: metrics,
		// Global burst protection, distinct from the per-device quota.
		throttle: rate.NewLimiter(rate.Limit(cfg.ThrottleRPS), cfg.ThrottleBurst),
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.throttleMiddleware)
	r.Use(middleware.Timeout(time.Duration(s.cfg.RequestTimeoutSecs) * time.Second))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", deviceHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.handleCreateReport)
			r.Get("/", s.handleListReports)
			r.Delete("/{id}", s.handleDeleteReport)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/reports", s.handleAdminListReports)
			r.Get("/stats", s.handleAdminStats)
			r.Delete("/reports/{id}", s.handleAdminDeleteReport)
			r.Delete("/reports", s.handleAdminClearReports)
		})
	})

	return r
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	s.log.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.throttle.Allow() {
			writeError(w, http.StatusTooManyRequests, "server overloaded, retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly gates the privileged routes on the configured bearer token.
// This stands in for the external admin-auth collaborator.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeError(w, http.StatusForbidden, "admin API disabled")
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRejection maps a lifecycle rejection onto an HTTP status with the
// machine-checkable reason code.
func (s *Server) writeRejection(w http.ResponseWriter, rej *report.Rejection) {
	if s.metrics != nil {
		s.metrics.ReportsRejected.WithLabelValues(string(rej.Code)).Inc()
	}

	body := map[string]any{
		"error": rej.Detail,
		"code":  rej.Code,
	}

	switch rej.Code {
	case report.RejectRateLimited:
		if s.metrics != nil {
			s.metrics.RateLimitExceeded.Inc()
		}
		body["reset_at"] = rej.ResetAt
		writeJSON(w, http.StatusTooManyRequests, body)
	case report.RejectStorageFailure:
		body["retryable"] = true
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		writeJSON(w, http.StatusBadRequest, body)
	}
}
