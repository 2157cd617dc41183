package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/intent"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultRetryAfter is advertised when the provider is unavailable and the
// error carries no hint of its own.
const defaultRetryAfter = 30 * time.Second

// EntityCache is the snapshot the API reads and refreshes.
type EntityCache interface {
	GetEnhancedEntities(f cache.Filters) cache.Result
	Refresh(ctx context.Context) (bool, error)
	Status() cache.Status
}

// IntentMatcher resolves descriptors against the snapshot.
type IntentMatcher interface {
	Match(intents []intent.Descriptor) intent.Batch
}

// MetricsRecorder exposes Prometheus metrics and records HTTP traffic.
type MetricsRecorder interface {
	Handler() http.Handler
	ObserveHTTP(route, method string, status int)
}

// HealthChecker is implemented by infrastructure reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Cache    EntityCache
	Matcher  IntentMatcher

	// Metrics is optional; without it /metrics is not mounted.
	Metrics MetricsRecorder

	// Checks are reported by name on /health. Optional.
	Checks map[string]HealthChecker

	// RetryAfter is advertised with 503 responses. Zero uses 30s.
	RetryAfter time.Duration

	Version string
}

// Server is the HTTP API server for the hub.
type Server struct {
	cfg        config.APIConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	cache      EntityCache
	matcher    IntentMatcher
	metrics    MetricsRecorder
	checks     map[string]HealthChecker
	retryAfter time.Duration
	version    string
	schema     *jsonschema.Schema
	server     *http.Server
}

// New creates a new API server. The server is not started until Start is
// called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("entity cache is required")
	}
	if deps.Matcher == nil {
		return nil, errors.New("intent matcher is required")
	}
	if deps.Security.JWT.Enabled && deps.Security.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required when auth is enabled")
	}

	schema, err := compileMatchSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling request schema: %w", err)
	}

	retryAfter := deps.RetryAfter
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}

	return &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		cache:      deps.Cache,
		matcher:    deps.Matcher,
		metrics:    deps.Metrics,
		checks:     deps.Checks,
		retryAfter: retryAfter,
		version:    deps.Version,
		schema:     schema,
	}, nil
}

// Start launches the HTTP listener in a background goroutine. Stop it
// with Close.
func (s *Server) Start(_ context.Context) error {
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

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
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

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
