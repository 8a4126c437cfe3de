// ABOUTME: Main entry point for the KSC bridge server
// ABOUTME: Loads configuration, opens the journal and serves JSON-RPC tools over HTTP and WebSocket

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/harper/ksc-bridge/internal/config"
	"github.com/harper/ksc-bridge/internal/db"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	rpchttp "github.com/harper/ksc-bridge/internal/http"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/management"
	"github.com/harper/ksc-bridge/internal/service"
	"github.com/harper/ksc-bridge/internal/session"
	"github.com/harper/ksc-bridge/internal/telemetry"
	"github.com/harper/ksc-bridge/internal/tools"
	"github.com/harper/ksc-bridge/internal/websocket"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default $XDG_CONFIG_HOME/ksc-bridge/config.yaml)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ksc-bridge %s (built %s)\n", version, buildTime)
		return
	}

	if err := run(*configPath, *verbose); err != nil {
		var setup *apierrors.SetupRequiredError
		if errors.As(err, &setup) {
			fmt.Fprintln(os.Stderr, setup.Error())
			os.Exit(2)
		}
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level, _ := logger.ParseLevel(cfg.Logging.Level)
	logger.SetLevel(level)
	if verbose {
		logger.SetVerbose(true)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	servers := []*http.Server{
		newServer(cfg.Server.HTTPHost, cfg.Server.HTTPPort, a.rpc),
		newServer(cfg.Server.WebSocketHost, cfg.Server.WebSocketPort, a.ws),
		newServer(cfg.Server.ManagementHost, cfg.Server.ManagementPort, a.mgmt),
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			logger.Info("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}
	logger.Info("ksc-bridge %s serving %d tools for %s", version, len(a.registry.List()), cfg.KSC.Host)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown of %s: %v", srv.Addr, err)
		}
	}
	a.Close(shutdownCtx)
	return runErr
}

// app is the wired bridge: one KSC session behind the tool registry and its three
// HTTP surfaces.
type app struct {
	journal  *db.DB
	tracing  *telemetry.Provider
	mgr      *session.Manager
	registry *tools.Registry
	rpc      http.Handler
	ws       http.Handler
	mgmt     http.Handler
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{}
	var sessionJournal session.Journal
	var mgmtJournal management.Journal
	if cfg.Journal.Enabled {
		if cfg.Journal.Path != ":memory:" {
			dir := filepath.Dir(cfg.Journal.Path)
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, apierrors.NewXDGPathError("journal", dir, err)
			}
		}
		journal, err := db.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.journal = journal
		sessionJournal, mgmtJournal = journal, journal
	}

	sessCfg := cfg.KSC.Session()
	if cfg.KSC.Tracing {
		tp, err := telemetry.Open(cfg.KSC.TraceFile, version)
		if err != nil {
			if a.journal != nil {
				_ = a.journal.Close()
			}
			return nil, err
		}
		a.tracing = tp
		sessCfg = tp.Instrument(sessCfg)
	}

	a.mgr = session.NewManager(sessionJournal)
	sess := a.mgr.Open(sessCfg)
	svc := service.New(sess, cfg.KSC.Service())

	a.registry = tools.NewRegistry()
	tools.RegisterKSC(a.registry, svc)

	a.rpc = rpchttp.NewServer(a.registry)
	a.ws = websocket.NewServer(a.registry, cfg.Server.AllowedOrigins...)
	a.mgmt = management.NewServer(cfg, a.mgr, svc, mgmtJournal)
	return a, nil
}

// Close ends the KSC sessions, flushes traces, then closes the journal.
func (a *app) Close(ctx context.Context) {
	a.mgr.CloseAll(ctx)
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			logger.Warn("flushing traces: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warn("closing journal: %v", err)
		}
	}
}

func newServer(host string, port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
