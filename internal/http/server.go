package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"divvy/internal/ledger"
	"divvy/internal/log"
	"divvy/internal/middleware/ratelimit"
	"divvy/internal/middleware/security"
	"divvy/internal/middleware/trace"
	"divvy/internal/services"
)

type Server struct {
	http.Server

	store    ledger.Store
	expenses *services.ExpenseService
	balances *services.BalanceService

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, store ledger.Store, expenses *services.ExpenseService, balances *services.BalanceService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		store:    store,
		expenses: expenses,
		balances: balances,
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /users", s.handleCreateMember)
	mux.HandleFunc("GET /users", s.handleListMembers)
	mux.HandleFunc("GET /users/{id}", s.handleGetMember)
	mux.HandleFunc("GET /users/{id}/balances", s.handleUserBalances)

	mux.HandleFunc("POST /groups", s.handleCreateGroup)
	mux.HandleFunc("GET /groups", s.handleListGroups)
	mux.HandleFunc("GET /groups/{id}", s.handleGetGroup)

	mux.HandleFunc("POST /groups/{id}/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /groups/{id}/expenses", s.handleListExpenses)
	mux.HandleFunc("GET /groups/{id}/balances", s.handleGroupBalances)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(extractClientIP)
	// Seed a component-scoped logger into every request context so the
	// service layer logs through log.FromContext.
	contextLogger := log.Middleware(log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP))

	s.Server = http.Server{
		Addr:    addr,
		Handler: headers.Middleware(contextLogger(tracer.Middleware(s.withRateLimit(mux)))),
	}

	return s
}

// withRateLimit limits mutating requests per client IP. Reads replay the
// ledger and stay unthrottled.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			clientIP := extractClientIP(r)
			if !s.limiter.Allow(clientIP) {
				slog.WarnContext(r.Context(), "Rate limit exceeded",
					"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				ErrorResponse(http.StatusTooManyRequests, "rate_limited",
					"rate limit exceeded, try again later").Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady verifies the store answers before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.ListGroups(ctx); err != nil {
		slog.ErrorContext(ctx, "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
