package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/remotelink-core/internal/audit"
	"github.com/nerrad567/remotelink-core/internal/connection"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/discovery"
	"github.com/nerrad567/remotelink-core/internal/dispatch"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/database"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/logging"
	"github.com/nerrad567/remotelink-core/internal/pairing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus reports whether an optional infrastructure client is up.
// *mqtt.Client and *nats.Client implement it.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Pairing    config.PairingConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Discovery  *discovery.Engine
	Auth       *pairing.Authenticator
	Supervisor *connection.Supervisor
	Dispatcher *dispatch.Dispatcher
	DB         *database.DB     // optional, sqlite backend only
	Audit      audit.Repository // optional, sqlite backend only
	MQTT       ConnectionStatus // optional
	NATS       ConnectionStatus // optional
	Hub        *Hub             // If set, the server uses this hub instead of creating its own
	Version    string
}

// Server is the HTTP API server for RemoteLink Core.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	pairingCfg config.PairingConfig
	logger     *logging.Logger
	registry   *device.Registry
	discovery  *discovery.Engine
	auth       *pairing.Authenticator
	supervisor *connection.Supervisor
	dispatcher *dispatch.Dispatcher
	db         *database.DB
	audit      audit.Repository
	mqtt       ConnectionStatus
	nats       ConnectionStatus
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns an error if a required dependency is missing. DB, Audit, MQTT,
// NATS and Hub are optional.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Discovery == nil:
		return nil, fmt.Errorf("discovery engine is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("pairing authenticator is required")
	case deps.Supervisor == nil:
		return nil, fmt.Errorf("connection supervisor is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("command dispatcher is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		pairingCfg: deps.Pairing,
		logger:     deps.Logger,
		registry:   deps.Registry,
		discovery:  deps.Discovery,
		auth:       deps.Auth,
		supervisor: deps.Supervisor,
		dispatcher: deps.Dispatcher,
		db:         deps.DB,
		audit:      deps.Audit,
		mqtt:       deps.MQTT,
		nats:       deps.NATS,
		hub:        deps.Hub,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless one was injected) and launches the
// HTTP listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
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
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
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
