package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/command"
	"github.com/tgpanel/core/internal/correlation"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/firmware"
	"github.com/tgpanel/core/internal/infrastructure/config"
	"github.com/tgpanel/core/internal/infrastructure/logging"
	"github.com/tgpanel/core/internal/user"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Commander issues device commands. *command.Service implements it.
type Commander interface {
	Pair(ctx context.Context, serial, name, ownerID string) (*command.PairResult, error)
	Unpair(ctx context.Context, serial string) (*device.Device, error)
	Start(ctx context.Context, deviceID, mode string, speed int) error
	Stop(ctx context.Context, deviceID string) error
	SetSetting(ctx context.Context, deviceID, name string, value any) error
	SendCommand(ctx context.Context, deviceID, direction string, value any) error
	RequestUpdate(ctx context.Context, deviceID string, img command.UpdateImage) error
	QueryStatus(ctx context.Context, deviceID string, timeout time.Duration) (*command.StatusReport, error)
}

// DeviceStore reads and removes device records. *device.Directory
// implements it.
type DeviceStore interface {
	LookupByID(ctx context.Context, id string) (*device.Device, error)
	LookupBySerial(ctx context.Context, serial string) (*device.Device, error)
	ListByOwner(ctx context.Context, ownerID string) ([]device.Device, error)
	Rename(ctx context.Context, id, name string) (*device.Device, error)
	RemoveBySerial(ctx context.Context, serial string) error
	Invalidate(id, serial string)
}

// FirmwareSource answers firmware questions. *firmware.Service implements it.
type FirmwareSource interface {
	Latest() (firmware.Release, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (firmware.WebhookResult, error)
}

// RequestStats reports in-flight device requests. *correlation.Registry
// implements it.
type RequestStats interface {
	Stats() correlation.Stats
}

// HealthChecker is a component reported by the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	WebAppDir string
	Logger    *logging.Logger
	Commands  Commander
	Devices   DeviceStore
	Users     user.Repository
	Shares    user.ShareRepository
	AuditRepo audit.Repository
	Firmware  FirmwareSource // optional
	Health    map[string]HealthChecker
	Requests  RequestStats // optional
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	webAppDir string
	logger    *logging.Logger
	commands  Commander
	devices   DeviceStore
	users     user.Repository
	shares    user.ShareRepository
	auditRepo audit.Repository
	audit     *audit.Recorder
	firmware  FirmwareSource
	health    map[string]HealthChecker
	requests  RequestStats
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Commands == nil || deps.Devices == nil {
		return nil, fmt.Errorf("command service and device store are required")
	}
	if deps.Users == nil || deps.Shares == nil {
		return nil, fmt.Errorf("user and share repositories are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		webAppDir: deps.WebAppDir,
		logger:    deps.Logger,
		commands:  deps.Commands,
		devices:   deps.Devices,
		users:     deps.Users,
		shares:    deps.Shares,
		auditRepo: deps.AuditRepo,
		firmware:  deps.Firmware,
		health:    deps.Health,
		requests:  deps.Requests,
		version:   deps.Version,
	}
	if deps.AuditRepo != nil {
		s.audit = audit.NewRecorder(deps.AuditRepo)
		s.audit.SetLogger(deps.Logger.Component("audit"))
	}
	return s, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
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
