package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoftp/internal/logger"
	"github.com/marmos91/dittoftp/pkg/auth"
	"github.com/marmos91/dittoftp/pkg/config"
	"github.com/marmos91/dittoftp/pkg/events"
	"github.com/marmos91/dittoftp/pkg/ftp"
	"github.com/marmos91/dittoftp/pkg/metrics"
	ftpprom "github.com/marmos91/dittoftp/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dittoftp server",
	Long: `Start the dittoftp server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittoftp/config.yaml.

Examples:
  # Start in background (default)
  dittoftp start

  # Start in foreground
  dittoftp start --foreground

  # Start with custom config file
  dittoftp start --config /etc/dittoftp/config.yaml

  # Start with environment variable overrides
  DITTOFTP_LOGGING_LEVEL=DEBUG dittoftp start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittoftp/dittoftp.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/dittoftp/dittoftp.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics (if enabled)
	var ftpMetrics metrics.FTPMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		ftpMetrics = ftpprom.NewFTPMetrics()
		go serveMetrics(ctx, cfg.Metrics.Port)
		logger.Info("Metrics enabled", logger.KeyPort, cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Build the account table
	authz := auth.NewAuthorizer(cfg.Server.AllowAnonymous, cfg.Server.AnonymousWrite)
	for _, u := range cfg.Users {
		if err := authz.AddUser(u.Username, u.PasswordHash, u.ReadOnly); err != nil {
			return fmt.Errorf("invalid account %q: %w", u.Username, err)
		}
	}
	logger.Info("Accounts configured",
		"named_users", len(cfg.Users),
		"allow_anonymous", cfg.Server.AllowAnonymous,
		"anonymous_write", cfg.Server.AnonymousWrite)

	// Monitoring feed with a log sink attached
	feed := events.NewFeed()
	defer feed.Close()
	go logEvents(feed)

	// The server never hot-reloads; an edited config gets a restart notice.
	if src := getConfigSource(GetConfigFile()); src != "defaults" {
		go func() {
			err := config.Watch(ctx, src, func() {
				logger.Warn("Configuration file changed, restart required to apply", logger.KeyPath, src)
			})
			if err != nil {
				logger.Debug("Config watcher stopped", logger.Err(err))
			}
		}()
	}

	srv := ftp.NewServer(cfg.Server, cfg.ShutdownTimeout, authz, feed, ftpMetrics)

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start the server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// serveMetrics runs the Prometheus endpoint until the context is cancelled.
func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", logger.Err(err))
	}
}

// logEvents drains the monitoring feed into the structured log.
func logEvents(feed *events.Feed) {
	ch, cancel := feed.Subscribe(256)
	defer cancel()

	for ev := range ch {
		switch {
		case ev.Transfer != nil:
			t := ev.Transfer
			logger.Info("transfer",
				logger.SessionID(t.SessionID), logger.User(t.User), logger.Path(t.Path),
				logger.KeyDirection, string(t.Direction),
				"outcome", string(t.Outcome),
				logger.Bytes(t.Bytes),
				logger.KeyDurationMs, t.Duration.Milliseconds())

		case ev.Session != nil && ev.Session.Kind != events.SessionCommand:
			// Per-command events stay out of the log sink; the dispatcher
			// already logs them at debug level.
			s := ev.Session
			logger.Info("session "+string(s.Kind),
				logger.SessionID(s.SessionID), logger.ClientIP(s.ClientIP), logger.User(s.User))
		}
	}
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("dittoftp is already running (PID %d)\nUse 'dittoftp stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	daemon := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("dittoftp started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'dittoftp stop' to stop the server")
	fmt.Println("Use 'dittoftp status' to check server status")

	return nil
}
