package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/config"
	"github.com/PortNumber53/readflash/backend/internal/handlers"
	"github.com/PortNumber53/readflash/backend/internal/middleware"
	"github.com/PortNumber53/readflash/backend/internal/worker"
)

// Store is the database surface the routes need.
type Store interface {
	handlers.EntitlementReader
	handlers.CatalogStore
	handlers.LibraryStore
}

// Deps bundles the collaborators the HTTP layer is built from.
type Deps struct {
	Store      Store
	Verifier   middleware.TokenVerifier
	Reconciler handlers.Reconciler
	Initiator  handlers.SessionInitiator
	Chat       handlers.Asker
	Leads      handlers.RowAppender
	Gate       handlers.ReadGate
	Health     map[string]handlers.Pinger
	// Worker is optional; when set it runs alongside the server.
	Worker *worker.Worker
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
	limiter    *middleware.RateLimiter
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// New constructs an HTTP server using the provided configuration and dependencies.
func New(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		router.Use(chimiddleware.RealIP)
	}
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.NewCORS(cfg.CORSAllowedOrigins).Handler)
	router.Use(middleware.Metrics)

	limiter := middleware.NewRateLimiter(cfg.ChatRatePerMinute, 0, logger)
	requireAuth := middleware.RequireAuth(deps.Verifier, logger)

	router.Get("/healthz", handlers.Health(deps.Health))
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Get("/plans", handlers.ListPlans(deps.Initiator))
		r.Post("/leads", handlers.RecordLead(deps.Leads, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(deps.Verifier, logger))
			r.Use(limiter.Handler)
			r.Post("/ai/chat", handlers.AIChat(deps.Chat, logger))
		})

		r.Get("/books", handlers.ListBooks(deps.Store, logger))
		r.Get("/books/{id}", handlers.GetBook(deps.Store, logger))
		r.Get("/areas", handlers.ListAreas(deps.Store, logger))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/subscription/reconcile", handlers.ReconcileSubscription(deps.Reconciler, logger))
			r.Get("/subscription", handlers.GetSubscription(deps.Store, logger))
			r.Post("/checkout", handlers.CreateCheckout(deps.Initiator, cfg.AppBaseURL, logger))
			r.Post("/billing/portal", handlers.OpenCustomerPortal(deps.Initiator, cfg.AppBaseURL, logger))

			reading := handlers.NewReading(deps.Store, deps.Store, deps.Gate, deps.Store, logger)
			r.Post("/books/{id}/read", reading.Start)
			r.Post("/books/{id}/read/claim", reading.Claim)
			r.Get("/books/{id}/download", reading.Download)

			lib := handlers.NewLibrary(deps.Store, logger)
			r.Get("/favorites", lib.ListFavorites)
			r.Post("/favorites", lib.AddFavorite)
			r.Delete("/favorites/{bookID}", lib.RemoveFavorite)

			r.Get("/reading-plan", lib.ListReadingPlan)
			r.Post("/reading-plan", lib.AddToReadingPlan)
			r.Put("/reading-plan/order", lib.ReorderReadingPlan)
			r.Patch("/reading-plan/{id}", lib.UpdateReadingPlanItem)
			r.Delete("/reading-plan/{id}", lib.RemoveFromReadingPlan)

			r.Get("/reading-progress", lib.ListReadingProgress)
			r.Put("/reading-progress/{bookID}", lib.MarkReading)
			r.Delete("/reading-progress/{bookID}", lib.StopReading)
		})
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.Worker, limiter: limiter, logger: logger}
}

// Start begins serving HTTP traffic and starts the background work.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.limiter.StartCleanup(ctx, 5*time.Minute)
	if s.worker != nil {
		s.logger.Info("starting entitlement refresh worker")
		s.worker.Start(ctx)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.worker != nil {
		s.logger.Info("shutting down entitlement refresh worker")
		if err := s.worker.Stop(ctx); err != nil {
			s.logger.Warn("worker shutdown error", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
