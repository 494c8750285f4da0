// Package server exposes a location session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/monitoring"
	"github.com/sells-group/location-cli/internal/session"
)

// Session is the controller surface the server drives.
type Session interface {
	Start(ctx context.Context) (session.Outcome, error)
	Cancel(ctx context.Context) error
	State() model.SessionState
	Stats() session.SubscriptionStats
	GetLastFix(ctx context.Context) (model.LocationFix, error)
	ForwardGeocode(ctx context.Context, name string) ([]model.LocationFix, error)
	EnableBackground(ctx context.Context) error
	DisableBackground(ctx context.Context) error
}

// Analytics toggles event collection.
type Analytics interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Metrics produces monitoring snapshots.
type Metrics interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Config configures the handler.
type Config struct {
	AllowedOrigins []string
	LookbackHours  int
}

// Server holds the HTTP handlers.
type Server struct {
	session   Session
	analytics Analytics
	metrics   Metrics
	cfg       Config
	log       *zap.Logger
}

// New creates a Server. analytics and metrics may be nil, in which case
// their routes answer 404.
func New(sess Session, analytics Analytics, metrics Metrics, cfg Config) *Server {
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 24
	}
	return &Server{
		session:   sess,
		analytics: analytics,
		metrics:   metrics,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "server")),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)

	r.Route("/session", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Delete("/", s.handleCancel)
	})

	r.Get("/location/last", s.handleLastFix)
	r.Get("/geocode", s.handleGeocode)

	r.Route("/background", func(r chi.Router) {
		r.Post("/", s.handleEnableBackground)
		r.Delete("/", s.handleDisableBackground)
	})

	if s.analytics != nil {
		r.Get("/analytics/enabled", s.handleAnalyticsEnabled)
		r.Put("/analytics/enabled", s.handleSetAnalyticsEnabled)
	}
	if s.metrics != nil {
		r.Get("/metrics", s.handleMetrics)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.session.Start(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	status := http.StatusOK
	if outcome == session.OutcomeSubscribed {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"outcome":      outcome.String(),
		"subscription": s.session.Stats(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Cancel(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLastFix(w http.ResponseWriter, r *http.Request) {
	fix, err := s.session.GetLastFix(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fix)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	results, err := s.session.ForwardGeocode(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if r.URL.Query().Get("format") == "geojson" {
		writeJSON(w, http.StatusOK, model.FeatureCollection(results))
		return
	}
	if results == nil {
		results = []model.LocationFix{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleEnableBackground(w http.ResponseWriter, r *http.Request) {
	if err := s.session.EnableBackground(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"background": true})
}

func (s *Server) handleDisableBackground(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DisableBackground(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyticsEnabled(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.analytics.Enabled()})
}

func (s *Server) handleSetAnalyticsEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, eris.New("server: body must be {\"enabled\": bool}"))
		return
	}
	s.analytics.SetEnabled(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Collect(r.Context(), s.cfg.LookbackHours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case eris.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case eris.Is(err, session.ErrSettingsUnsatisfied):
		return http.StatusConflict
	case eris.Is(err, session.ErrEmptyQuery):
		return http.StatusBadRequest
	case session.IsServiceCallFailed(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
