package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/Rajatsinha05/erp-sub004/internal/audit"
	"github.com/Rajatsinha05/erp-sub004/internal/auth"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/logging"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure clients reported on
// /api/v1/health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	RateLimit config.RateLimitConfig
	Logger    *logging.Logger
	Auth      *auth.Service
	Audit     audit.Repository         // optional: /audit returns 404 without it
	Metrics   *metrics.Metrics         // optional: /metrics and HTTP instrumentation
	Checks    map[string]HealthChecker // optional: name -> component
	Version   string
}

// Server is the HTTP API server.
//
// The server is created with New() and started with Start(). Its Hub is
// available before Start so it can be registered as a security event sink.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	auth    *auth.Service
	audit   audit.Repository
	metrics *metrics.Metrics
	checks  map[string]HealthChecker
	version string

	proxies []netip.Prefix

	hub     *Hub
	tickets *ticketStore
	limiter *ipRateLimiter

	server *http.Server
	cancel context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	proxies, err := config.ParseTrustedProxies(deps.Config.TrustedProxies)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:     deps.Config,
		proxies: proxies,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		auth:    deps.Auth,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		checks:  deps.Checks,
		version: deps.Version,
		hub:     NewHub(deps.WS, deps.Logger),
		tickets: newTicketStore(),
		limiter: newIPRateLimiter(deps.RateLimit),
	}, nil
}

// Hub returns the security event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	if s.limiter != nil {
		go s.limiter.sweepLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
