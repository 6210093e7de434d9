package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/devicesync-core/internal/audit"
	"github.com/nerrad567/devicesync-core/internal/auth"
	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/logging"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicesync-core/internal/reconciler"
	"github.com/nerrad567/devicesync-core/internal/registration"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Registrar manages the devices of a user. *registration.Service
// implements it.
type Registrar interface {
	Register(ctx context.Context, userID, serial string) (registration.Result, error)
	Rename(ctx context.Context, userID, key, name string) error
	AssignDashboard(ctx context.Context, userID, key string, kind catalog.DashboardKind) error
	Remove(ctx context.Context, userID, key string) error
}

// Reconciler renders views and sends commands. *reconciler.Reconciler
// implements it.
type Reconciler interface {
	Views(ctx context.Context, userID string) ([]device.View, error)
	View(ctx context.Context, userID, key string) (device.View, error)
	IssueCommand(ctx context.Context, userID, key, attribute string, value any) (device.View, error)
	SetChannels(ctx context.Context, userID, serial string, channels map[string]bool) error
	SendCommand(ctx context.Context, userID, key, action string) error
	Forget(userID, key string)
	Watch(userID string, fn reconciler.ViewFunc) (cancel func())
}

// Bridge reports the broker connection. *mqtt.Bridge implements it.
type Bridge interface {
	State() (mqtt.State, error)
	OnStateChange(fn mqtt.StateListener)
}

// AuditLister pages through account activity. *audit.SQLiteRepository
// implements it.
type AuditLister interface {
	List(ctx context.Context, userID string, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Auth       *auth.Authenticator
	Devices    Registrar
	Reconciler Reconciler

	// Bridge is optional; without it /bridge reports "disconnected".
	Bridge Bridge

	// History is optional; it serves GET /devices/{key}/commands.
	History device.CommandLogRepository

	// Audit is optional; it serves GET /audit.
	Audit AuditLister

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	auth       *auth.Authenticator
	devices    Registrar
	reconciler Reconciler
	bridge     Bridge
	history    device.CommandLogRepository
	audit      AuditLister
	version    string

	hub     *Hub
	tickets *ticketStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("registration service is required")
	}
	if deps.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		auth:       deps.Auth,
		devices:    deps.Devices,
		reconciler: deps.Reconciler,
		bridge:     deps.Bridge,
		history:    deps.History,
		audit:      deps.Audit,
		version:    deps.Version,
		tickets:    newTicketStore(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)

	if s.bridge != nil {
		s.bridge.OnStateChange(func(state mqtt.State, err error) {
			s.hub.Broadcast(ChannelBridgeStatus, newBridgeStatus(state, err))
		})
	}
	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the ticket cleanup loop, then serves in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
