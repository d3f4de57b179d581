package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/config"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/database"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/influxdb"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/logging"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/mqtt"
	"github.com/nerrad567/bulles-portal/internal/results"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Background maintenance intervals.
const (
	sessionCleanupInterval = 5 * time.Minute
	sessionGaugeInterval   = time.Minute
	auditPruneInterval     = time.Hour
)

// Roster is the read-only data the portal serves: accounts, reports and the
// class summary.
type Roster interface {
	auth.CredentialStore
	results.Finder
	Analytics(ctx context.Context, trimester, activeSessions int) (results.Analytics, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Roster   Roster
	Tokens   *auth.TokenService
	Sessions *auth.SessionRegistry

	// Optional.
	Revocations *auth.RevocationStore // set when security.revocation.enabled
	AuditRepo   audit.Repository
	DB          *database.DB // pool stats for /api/metrics
	MQTT        *mqtt.Client
	Influx      *influxdb.Client
	Version     string
	Now         func() time.Time
}

// Server is the HTTP API server for the portal.
//
// It manages the HTTP listener, routes, middleware, and the session-event
// WebSocket hub. The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	roster      Roster
	tokens      *auth.TokenService
	sessions    *auth.SessionRegistry
	revocations *auth.RevocationStore
	auditRepo   audit.Repository
	db          *database.DB
	mqtt        *mqtt.Client
	influx      *influxdb.Client
	version     string
	now         func() time.Time
	startTime   time.Time

	hub     *Hub
	tickets *ticketStore
	limiter *ipLimiter
	auditCh chan *audit.Entry

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // cancels background goroutines on Close()
	done     chan struct{}      // closed when the audit drain has exited
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Roster == nil {
		return nil, fmt.Errorf("roster is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		roster:      deps.Roster,
		tokens:      deps.Tokens,
		sessions:    deps.Sessions,
		revocations: deps.Revocations,
		auditRepo:   deps.AuditRepo,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		influx:      deps.Influx,
		version:     deps.Version,
		now:         now,
		startTime:   now(),
		hub:         NewHub(deps.WS, deps.Logger),
		tickets:     newTicketStore(now),
		auditCh:     make(chan *audit.Entry, auditChanSize),
	}

	if rl := deps.Security.RateLimit; rl.Enabled {
		s.limiter = newIPLimiter(rl.Requests, rl.Window)
		s.limiter.now = now
	}

	return s, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, the audit writer and the cleanup loops, then
// serves in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	go s.sessions.Run(srvCtx, sessionCleanupInterval)
	if s.revocations != nil {
		go s.pruneRevocationsLoop(srvCtx)
	}
	if s.auditRepo != nil {
		go s.pruneAuditLoop(srvCtx)
	}
	if s.influx.IsConnected() {
		go s.sessionGaugeLoop(srvCtx)
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.drainAuditLog(srvCtx)
	}()

	go func() {
		var serveErr error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			serveErr = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			serveErr = s.server.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", serveErr)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// In-flight requests get up to 10 seconds. Queued audit entries are written
// before Close returns.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	shutdownErr := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}

	if shutdownErr != nil {
		return fmt.Errorf("shutting down API server: %w", shutdownErr)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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

// sessionGaugeLoop samples live sessions into InfluxDB.
func (s *Server) sessionGaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionGaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recordSessionGauge()
		}
	}
}

func (s *Server) recordSessionGauge() {
	s.influx.WriteSessionGauge(s.sessions.Active(), s.hub.ClientCount())
}

// pruneRevocationsLoop drops denylist rows whose tokens have expired anyway.
func (s *Server) pruneRevocationsLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.revocations.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn("revocation cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("expired revocations removed", "count", n)
			}
		}
	}
}
