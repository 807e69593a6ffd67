// Package api provides the HTTP REST API and WebSocket endpoints of the
// smart home gateway.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/smarthome-gateway/internal/broker"
	"github.com/nerrad567/smarthome-gateway/internal/device"
	"github.com/nerrad567/smarthome-gateway/internal/gateway"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every backing service the readiness
// probe inspects.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Name     string
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Gateway  *gateway.Gateway
	Devices  *device.Registry
	Broker   *broker.Publisher // nil when the broker is unavailable
	Database HealthChecker
	InfluxDB HealthChecker // nil when disabled
	Version  string
}

// Server is the HTTP API server of the gateway.
//
// It owns the HTTP listener and routes; device and client WebSocket
// sessions are handed to the gateway core.
type Server struct {
	name     string
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	gateway  *gateway.Gateway
	devices  *device.Registry
	broker   *broker.Publisher
	database HealthChecker
	influx   HealthChecker
	version  string
	started  time.Time

	upgrader websocket.Upgrader
	server   *http.Server
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		name:     deps.Name,
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger.Component("api"),
		gateway:  deps.Gateway,
		devices:  deps.Devices,
		broker:   deps.Broker,
		database: deps.Database,
		influx:   deps.InfluxDB,
		version:  deps.Version,
		started:  time.Now(),
	}
	if s.name == "" {
		s.name = "Smart Home Gateway"
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWebSocketOrigin,
	}
	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
//
// Requests, including long-lived WebSocket sessions, inherit a context that
// is cancelled by Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", addr)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Open WebSocket sessions are ended by cancelling their context; in-flight
// HTTP requests get up to 10 seconds to complete.
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
