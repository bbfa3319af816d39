package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Dependencies are the services the API is built on.
type Dependencies struct {
	Ledger       *services.LedgerService
	Materializer *services.RecurringMaterializer
	Trash        *services.TrashRetention
	Analytics    *services.Analytics

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger             *applog.Logger
	RateLimitPerMinute int
	Clock              func() time.Time
}

type Server struct {
	http.Server

	ledger       *services.LedgerService
	materializer *services.RecurringMaterializer
	trash        *services.TrashRetention
	analytics    *services.Analytics
	ready        func(ctx context.Context) error
	clock        func() time.Time
	started      time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Server{
		ledger:           deps.Ledger,
		materializer:     deps.Materializer,
		trash:            deps.Trash,
		analytics:        deps.Analytics,
		ready:            deps.Ready,
		clock:            clock,
		started:          clock(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger.WithComponent(applog.ComponentHTTP), s.securityDetector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceMiddleware.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, false, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/", s.handleCreateUser)

		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)

			r.Get("/categories", s.handleListCategories)
			r.Post("/categories", s.handleAddCategory)
			r.Put("/categories/{name}", s.handleUpdateCategory)

			r.Get("/people", s.handleListPeople)
			r.Post("/people", s.handleAddPerson)

			r.Get("/recurring", s.handleListRecurring)
			r.Post("/recurring", s.handleAddRecurring)
			r.Post("/recurring/materialize", s.handleMaterialize)
			r.Delete("/recurring/{id}", s.handleDeleteRecurring)

			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleAddTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)

			r.Get("/trash", s.handleListTrash)

			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)

			r.Get("/analytics/month", s.handleMonthSummary)

			r.Get("/budgets", s.handleListBudgets)
			r.Post("/budgets", s.handleAddBudget)
			r.Delete("/budgets/{id}", s.handleDeleteBudget)
		})
	})

	return r
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
