// Package server exposes the desk store and its forms as a JSON API shared by the trading view
// and the admin strategies view.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strategy-desk/internal/forms"
	"strategy-desk/internal/metrics"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/plans"
	"strategy-desk/internal/statemanager"
	"strategy-desk/internal/validation"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Deps are the components the handlers run against.
type Deps struct {
	Store         *statemanager.StateManager
	Strategies    *forms.StrategyForm
	Connections   *forms.ConnectionForm
	Support       *forms.SupportForm
	Plans         *plans.Service
	Notifications *notify.Recorder
	Metrics       *metrics.Client
	Logger        *zap.Logger
}

// Server is the HTTP surface of the desk.
type Server struct {
	router *chi.Mux
	server *http.Server
	deps   Deps
	log    *zap.Logger
}

// New builds the router and the http.Server for cfg.
func New(cfg models.ServerConfig, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    deps.Logger.With(zap.String("component", "server")),
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)

		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", s.handleListStrategies)
			r.Post("/", s.handleAddStrategy)
			r.Put("/{id}", s.handleEditStrategy)
			r.Delete("/{id}", s.handleDeleteStrategy)
			r.Get("/{id}/draft", s.handleStrategyDraft)
			r.Post("/{id}/toggle", s.handleToggleStrategy)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/", s.handleAddConnection)
			r.Post("/{id}/test", s.handleTestConnection)
			r.Delete("/{id}", s.handleDeleteConnection)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Post("/cancel", s.handleCancelPlan)
			r.Post("/{id}/upgrade", s.handleUpgradePlan)
		})

		r.Post("/support", s.handleSupport)
		r.Get("/notifications", s.handleNotifications)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs every request and reports its status and duration to statsd.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		s.deps.Metrics.Inc(fmt.Sprintf("http.status.%d", ww.Status()))
		s.deps.Metrics.Timing("http.request", elapsed)

		s.log.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error  string                 `json:"error"`
	Fields validation.FieldErrors `json:"fields,omitempty"`
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var fields validation.FieldErrors
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &fields):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
		return
	case errors.Is(err, forms.ErrNotFound), errors.Is(err, statemanager.ErrNotFound), errors.Is(err, plans.ErrUnknownPlan):
		status = http.StatusNotFound
	case errors.Is(err, forms.ErrBusy), errors.Is(err, plans.ErrAlreadyCurrent), errors.Is(err, plans.ErrNothingToCancel):
		status = http.StatusConflict
	case errors.Is(err, statemanager.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
