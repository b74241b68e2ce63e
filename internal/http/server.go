package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"taxledger/internal/auth"
	"taxledger/internal/core"
	applog "taxledger/internal/log"
	"taxledger/internal/middleware/ratelimit"
	"taxledger/internal/middleware/security"
	"taxledger/internal/middleware/trace"
	"taxledger/internal/report"
	"taxledger/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Taxpayers    *services.TaxpayerService
	Incomes      *services.IncomeService
	Slabs        *services.SlabService
	Calculations *services.CalculationService
	Auth         *auth.Service
	Reports      *report.Renderer
	Store        Pinger
	Logger       *applog.Logger

	// RequestsPerMinute limits mutating requests per client IP.
	RequestsPerMinute int
	// TrustedProxies are CIDRs whose forwarding headers are honoured.
	TrustedProxies []string
}

type Server struct {
	http.Server
	deps     Deps
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	now      func() time.Time

	shutdownOnce sync.Once
}

var (
	anyRole   = []core.Role{core.RoleAdmin, core.RoleAccountant}
	adminOnly = []core.Role{core.RoleAdmin}
)

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	deps.Logger = logger

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		deps:     deps,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RequestsPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger.WithComponent(applog.ComponentHTTP)),
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	s.route(mux, "GET /api/taxpayers", s.handleListTaxpayers, anyRole)
	s.route(mux, "GET /api/taxpayers/{id}", s.handleGetTaxpayer, anyRole)
	s.route(mux, "POST /api/taxpayers", s.handleCreateTaxpayer, adminOnly)
	s.route(mux, "PUT /api/taxpayers/{id}", s.handleUpdateTaxpayer, adminOnly)
	s.route(mux, "DELETE /api/taxpayers/{id}", s.handleDeleteTaxpayer, adminOnly)

	s.route(mux, "GET /api/taxpayers/{taxpayerId}/incomes", s.handleListIncomes, anyRole)
	s.route(mux, "POST /api/taxpayers/{taxpayerId}/incomes", s.handleCreateIncome, anyRole)
	s.route(mux, "PUT /api/taxpayers/{taxpayerId}/incomes/{incomeId}", s.handleUpdateIncome, anyRole)
	s.route(mux, "DELETE /api/taxpayers/{taxpayerId}/incomes/{incomeId}", s.handleDeleteIncome, anyRole)

	s.route(mux, "GET /api/taxslabs", s.handleListSlabs, anyRole)
	s.route(mux, "POST /api/taxslabs", s.handleCreateSlab, adminOnly)
	s.route(mux, "PUT /api/taxslabs/{id}", s.handleUpdateSlab, adminOnly)
	s.route(mux, "DELETE /api/taxslabs/{id}", s.handleDeleteSlab, adminOnly)

	s.route(mux, "POST /api/taxpayers/{taxpayerId}/calculate", s.handleCalculate, anyRole)
	s.route(mux, "GET /api/taxpayers/{taxpayerId}/calculations", s.handleListCalculations, anyRole)
	s.route(mux, "GET /api/taxpayers/{taxpayerId}/report", s.handleReport, anyRole)

	var handler http.Handler = mux
	if deps.Auth != nil {
		handler = deps.Auth.Middleware(handler)
	}
	handler = s.limiter.Middleware(detector.ExtractClientIP, ratelimit.Mutating, writeRateLimited)(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}
	return s
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc, roles []core.Role) {
	mux.Handle(pattern, auth.RequireRoles(roles...)(h))
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Stats returns request counters for shutdown logging.
func (s *Server) Stats() (requests, rateLimited, suspicious, blocked int64) {
	suspicious, blocked = s.detector.Counts()
	return s.tracer.TotalRequests(), s.limiter.Rejected(), suspicious, blocked
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	NewJSONResponse().Error(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}
