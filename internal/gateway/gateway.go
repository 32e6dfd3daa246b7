// ABOUTME: Gateway orchestrator that wires stores, registry, router, and HTTP server
// ABOUTME: Manages component lifecycle from config load to graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/switchyard-ai/switchyard/internal/agent"
	"github.com/switchyard-ai/switchyard/internal/auth"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/dedupe"
	"github.com/switchyard-ai/switchyard/internal/dispatch"
	"github.com/switchyard-ai/switchyard/internal/guard"
	"github.com/switchyard-ai/switchyard/internal/llm"
	"github.com/switchyard-ai/switchyard/internal/orchestrator"
	"github.com/switchyard-ai/switchyard/internal/registry"
	"github.com/switchyard-ai/switchyard/internal/router"
	"github.com/switchyard-ai/switchyard/internal/session"
)

// QueryService handles one authenticated query end to end.
type QueryService interface {
	HandleQuery(ctx context.Context, req orchestrator.QueryRequest, identity *auth.Identity) (*orchestrator.QueryResponse, error)
}

// Gateway coordinates the switchyard server components.
type Gateway struct {
	config     *config.Config
	registry   *registry.Registry
	sessions   session.Store
	service    QueryService
	verifier   auth.TokenVerifier
	httpServer *http.Server
	limiter    *principalLimiter
	recent     *dedupe.Cache
	logger     *slog.Logger
}

// Duplicate-submission window. A principal re-sending the identical query
// inside this window gets a 409 instead of a second dispatch.
const (
	dedupeWindow  = 2 * time.Second
	dedupeMaxKeys = 100_000
)

// New creates a Gateway with every component wired from config. Local agent
// factories must be registered on factories before the first query arrives.
func New(cfg *config.Config, factories *agent.Factories, logger *slog.Logger) (*Gateway, error) {
	sessions, err := session.NewSQLiteStore(cfg.Stores.SessionDBPath, cfg.Sessions.InactivityThreshold)
	if err != nil {
		return nil, fmt.Errorf("initializing session store: %w", err)
	}

	capStore, err := registry.NewFileStore(cfg.Stores.CapabilityPath)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("initializing capability store: %w", err)
	}
	dialer := agent.NewDialer(nil, logger)
	validator := registry.NewRemoteValidator(nil, nil)

	reg, err := registry.New(capStore, factories, dialer, validator, logger)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("initializing registry: %w", err)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	var decomposer router.Decomposer
	if cfg.LLM.Enabled {
		decomposer = llm.New(logger, func(o *llm.Options) {
			if cfg.LLM.Model != "" {
				o.Model = cfg.LLM.Model
			}
		})
		logger.Info("LLM decomposition enabled", "model", cfg.LLM.Model)
	} else {
		logger.Warn("LLM decomposition disabled - ambiguous queries fall back to top candidate")
	}

	matcher := router.NewMatcher(cfg.Router.MatchThreshold)
	queryRouter := router.New(matcher, decomposer, cfg.Router.TopK, logger)

	directory := guard.NewStaticDirectory(cfg.Auth.KnownPrincipals)
	injector := guard.NewInjector(directory, logger)

	dispatcher := dispatch.New(reg, sessions, cfg.Dispatch.Timeout, logger)
	service := orchestrator.New(injector, reg, queryRouter, dispatcher, sessions, logger)

	g := newGateway(cfg, reg, sessions, service, verifier, logger)
	return g, nil
}

// newGateway assembles the HTTP surface around already-built components.
// Tests use this directly to swap in fakes.
func newGateway(cfg *config.Config, reg *registry.Registry, sessions session.Store, service QueryService, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		config:   cfg,
		registry: reg,
		sessions: sessions,
		service:  service,
		verifier: verifier,
		limiter:  newPrincipalLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		recent:   dedupe.New(dedupeWindow, dedupeMaxKeys),
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/healthz", g.handleHealth)

	authMiddleware := auth.Middleware(verifier)
	adminMiddleware := auth.RequireAdmin()

	mux.Handle("/api/query", authMiddleware(http.HandlerFunc(g.handleQuery)))
	mux.Handle("/api/sessions", authMiddleware(http.HandlerFunc(g.handleSessions)))
	mux.Handle("/api/sessions/", authMiddleware(http.HandlerFunc(g.handleSessionByID)))
	mux.Handle("/api/admin/agents", authMiddleware(adminMiddleware(http.HandlerFunc(g.handleAdminAgents))))
	mux.Handle("/api/admin/agents/", authMiddleware(adminMiddleware(http.HandlerFunc(g.handleAdminAgentByName))))

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler exposes the HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.recent.Close()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
