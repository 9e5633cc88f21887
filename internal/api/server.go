package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/icecube"
	"github.com/icetech/icetray/internal/infrastructure/config"
	"github.com/icetech/icetray/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure components (database, MQTT).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ArtifactPublisher distributes built cubes to IOC hosts.
// Implemented by *deploy.Service.
type ArtifactPublisher interface {
	Publish(dev *icecube.Device) error
	Retract(name string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *catalogue.Registry

	// Optional.
	Writer    *artifact.Writer
	Publisher ArtifactPublisher
	Metrics   http.Handler
	Health    map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for IceTray.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *catalogue.Registry
	writer    *artifact.Writer
	publisher ArtifactPublisher
	metrics   http.Handler
	health    map[string]HealthChecker
	version   string

	server   *http.Server
	listener net.Listener
}

// New creates a new API server. The server is not started until Start().
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("icecube registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		writer:    deps.Writer,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		health:    deps.Health,
		version:   deps.Version,
	}, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
// A bind failure (port in use) is returned directly.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
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

// HealthCheck verifies the API server has been started.
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
