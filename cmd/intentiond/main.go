// intentiond is the device-side cross-device interaction service: pointer
// and keyboard coordination sharing plus cross-device drag-and-drop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/intentiond/internal/config"
	"github.com/dantte-lp/intentiond/internal/control"
	"github.com/dantte-lp/intentiond/internal/coordinate"
	"github.com/dantte-lp/intentiond/internal/dispatch"
	"github.com/dantte-lp/intentiond/internal/drag"
	"github.com/dantte-lp/intentiond/internal/ipc"
	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/softbus"
	"github.com/dantte-lp/intentiond/internal/telemetry"
	appversion "github.com/dantte-lp/intentiond/internal/version"
)

// shutdownTimeout bounds how long graceful shutdown waits for the
// control-plane and metrics HTTP servers to drain in-flight requests.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	networkID := cfg.Device.NetworkID
	if networkID == "" {
		networkID = uuid.NewString()
		logger.Info("no device.network_id configured, generated one for this run",
			slog.String("network_id", networkID),
		)
	}

	logger.Info("intentiond starting",
		slog.String("version", appversion.Version),
		slog.String("network_id", networkID),
		slog.String("control_socket", cfg.Control.SocketPath),
		slog.String("soft_bus_addr", cfg.SoftBus.ListenAddr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := telemetry.NewCollector(reg)

	if err := runServices(cfg, networkID, reg, collector, logger, *configPath, logLevel); err != nil {
		logger.Error("intentiond exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("intentiond stopped")
	return 0
}

// runServices wires every subsystem together and runs them under an
// errgroup with signal-aware context.
func runServices(
	cfg *config.Config,
	networkID string,
	reg *prometheus.Registry,
	collector *telemetry.Collector,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	disp := dispatch.New(dispatch.WithLogger(logger))

	bus := softbus.NewAdapter(logger, softbus.WithMetrics(collector))
	if err := bus.Enable(); err != nil {
		return fmt.Errorf("enable soft bus adapter: %w", err)
	}
	defer func() {
		if err := bus.Disable(); err != nil {
			logger.Warn("disable soft bus adapter", slog.String("error", err.Error()))
		}
	}()

	dragMgr := drag.NewMachine(logger, disp, nil, drag.WithMetrics(collector))
	coord := coordinate.NewMachine(logger, disp, bus, networkID, coordinate.WithMetrics(collector))
	bus.AddObserver(coord)

	router := ipc.NewRouter(logger, disp, dragMgr, coord)
	sessionSrv, err := session.NewServer(logger, session.Callbacks{
		RecvFunc: router.HandlePacket,
		OnDisconnected: func(sess *session.Session) {
			disp.RemoveSession(sess)
		},
	}, session.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("create session server: %w", err)
	}
	defer func() {
		if err := sessionSrv.Close(); err != nil {
			logger.Warn("close session server", slog.String("error", err.Error()))
		}
	}()

	controlSrv := newControlServer(coord, dragMgr, sessionSrv, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sessionSrv.Run(gCtx)
	})
	g.Go(func() error {
		dragMgr.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		coord.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		if err := bus.ListenAndServe(gCtx, cfg.SoftBus.ListenAddr); err != nil {
			return fmt.Errorf("soft bus listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServeHTTP(gCtx, metricsSrv, cfg.Metrics.Addr)
	})
	g.Go(func() error {
		logger.Info("control plane listening", slog.String("socket", cfg.Control.SocketPath))
		return listenAndServeUnix(gCtx, controlSrv, cfg.Control.SocketPath)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(ctx, logger, controlSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run services: %w", err)
	}
	return nil
}

// newControlServer builds the operator-facing Connect-RPC control plane
// HTTP server, wired with logging/recovery interceptors and a gRPC health
// endpoint.
func newControlServer(coord *coordinate.Machine, dragMgr *drag.Machine, sessions *session.Server, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	path, handler := control.New(coord, dragMgr, sessions, logger)
	mux.Handle(path, handler)

	checker := grpchealth.NewStaticChecker("intentiond.control.v1.ControlService")
	mux.Handle(grpchealth.NewHandler(checker))

	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// listenAndServeHTTP creates a TCP listener via a context-aware
// ListenConfig and serves until the server is shut down.
func listenAndServeHTTP(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// listenAndServeUnix listens on a Unix-domain socket at path (removing any
// stale socket file left by an unclean prior shutdown) and serves the
// control-plane handler until shut down.
func listenAndServeUnix(ctx context.Context, srv *http.Server, path string) error {
	if dir := dirOf(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create control socket directory: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale control socket %s: %w", path, err)
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	defer os.Remove(path)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", path, err)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// -------------------------------------------------------------------------
// Systemd integration: readiness, stopping, and watchdog notifications.
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_interval", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP reload: log level only. Coordination/drag state is live
// interaction state, not a declarative list to diff against a reloaded
// file.
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// so SIGHUP reload can adjust verbosity without restarting the process.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
