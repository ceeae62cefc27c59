package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/freelance-hub/internal/auth"
	"github.com/Clark-Hu/freelance-hub/internal/config"
	"github.com/Clark-Hu/freelance-hub/internal/metrics"
	"github.com/Clark-Hu/freelance-hub/internal/paypal"
	"github.com/Clark-Hu/freelance-hub/internal/rating"
	"github.com/Clark-Hu/freelance-hub/internal/repository"
	"github.com/Clark-Hu/freelance-hub/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg        config.Config
	store      *store.Store
	repo       *repository.Repository
	payouts    paypal.Client
	metrics    *metrics.Metrics
	tokens     *auth.Tokens
	aggregator rating.Aggregator
	limiter    *callerLimiter
	logger     *zap.Logger
	router     chi.Router
	httpSrv    *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, repo *repository.Repository, payClient paypal.Client, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		cfg:        cfg,
		store:      st,
		repo:       repo,
		payouts:    payClient,
		metrics:    m,
		tokens:     auth.NewTokens(cfg.JWTSecret),
		aggregator: rating.New(cfg.OutlierWeight),
		limiter:    newCallerLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst),
		logger:     logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	s.router = r
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.With(s.rateLimit).Post("/users", s.handleCreateUser)

	s.router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Get("/rating", s.handleGetRating)
			r.Get("/ratings", s.handleListRatings)
			r.With(s.rateLimit).Post("/ratings", s.handleSubmitRating)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.With(s.rateLimit).Post("/", s.handleCreateJob)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.With(s.rateLimit).Post("/status", s.handleJobStatus)
				r.Get("/applications", s.handleListApplications)
				r.With(s.rateLimit).Post("/applications", s.handleCreateApplication)
				r.Get("/milestones", s.handleListMilestones)
				r.With(s.rateLimit).Post("/milestones", s.handleCreateMilestone)
			})
		})

		r.With(s.rateLimit).Post("/applications/{applicationID}/status", s.handleApplicationStatus)

		r.Route("/milestones/{milestoneID}", func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/status", s.handleMilestoneStatus)
			r.Post("/payout", s.handlePayout)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
