// Package ftp implements the FTP server engine: the accept-loop supervisor,
// per-connection session state machines, the command dispatcher, and data
// channel management.
package ftp

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoftp/internal/logger"
	"github.com/marmos91/dittoftp/pkg/auth"
	"github.com/marmos91/dittoftp/pkg/config"
	"github.com/marmos91/dittoftp/pkg/events"
	"github.com/marmos91/dittoftp/pkg/metrics"
)

// ServerState is the supervisor lifecycle state.
type ServerState int32

const (
	ServerStopped ServerState = iota
	ServerStarting
	ServerRunning
	ServerStopping
)

func (s ServerState) String() string {
	switch s {
	case ServerStopped:
		return "stopped"
	case ServerStarting:
		return "starting"
	case ServerRunning:
		return "running"
	case ServerStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ServerStatus is a snapshot of the supervisor for status reporting.
type ServerStatus struct {
	State          string
	Addr           string
	ActiveSessions int
}

// Server owns the control listener and supervises all sessions.
//
// Lifecycle: New creates it stopped; Serve runs until the context is
// cancelled or Stop is called; both paths drain sessions within the shutdown
// timeout and force-close stragglers. A Server instance is single-use.
//
// Thread safety: all exported methods are safe for concurrent use. Shutdown
// uses sync.Once so Stop and context cancellation can race harmlessly.
type Server struct {
	cfg             config.ServerConfig
	shutdownTimeout time.Duration

	authz *auth.Authorizer
	feed  *events.Feed

	// metrics is optional; nil disables collection with zero overhead.
	metrics metrics.FTPMetrics

	state atomic.Int32

	// listener is closed during shutdown to stop accepting new connections.
	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed when the listener is accepting connections.
	// Used by tests and the CLI to synchronize with startup.
	ListenerReady chan struct{}

	// shutdown is closed by initiateShutdown, observed by the accept loop.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// shutdownCtx is cancelled during shutdown so sessions abort their
	// command loops.
	shutdownCtx    context.Context
	cancelSessions context.CancelFunc

	activeConns sync.WaitGroup
	sessions    *sessionRegistry

	// nextPassivePort is the shared round-robin cursor for the passive
	// port range.
	nextPassivePort atomic.Int32
}

// NewServer creates a stopped server.
//
// Parameters:
//   - cfg: validated engine configuration, treated as immutable
//   - shutdownTimeout: grace period for live sessions on stop
//   - authz: credential validator
//   - feed: monitoring event feed (must not be nil)
//   - m: optional metrics recorder, nil to disable
func NewServer(cfg config.ServerConfig, shutdownTimeout time.Duration, authz *auth.Authorizer, feed *events.Feed, m metrics.FTPMetrics) *Server {
	shutdownCtx, cancelSessions := context.WithCancel(context.Background())

	return &Server{
		cfg:             cfg,
		shutdownTimeout: shutdownTimeout,
		authz:           authz,
		feed:            feed,
		metrics:         m,
		ListenerReady:   make(chan struct{}),
		shutdown:        make(chan struct{}),
		shutdownCtx:     shutdownCtx,
		cancelSessions:  cancelSessions,
		sessions:        newSessionRegistry(),
	}
}

// State returns the supervisor lifecycle state.
func (srv *Server) State() ServerState {
	return ServerState(srv.state.Load())
}

// Status returns a snapshot for status reporting.
func (srv *Server) Status() ServerStatus {
	return ServerStatus{
		State:          srv.State().String(),
		Addr:           srv.addrOrEmpty(),
		ActiveSessions: srv.sessions.count(),
	}
}

// ListSessions returns snapshots of all live sessions.
func (srv *Server) ListSessions() []SessionSummary {
	return srv.sessions.summaries()
}

// Addr returns the address the server is listening on.
// Blocks until the listener is ready, making it safe for tests using port 0.
func (srv *Server) Addr() string {
	<-srv.ListenerReady
	return srv.addrOrEmpty()
}

func (srv *Server) addrOrEmpty() string {
	srv.listenerMu.RLock()
	defer srv.listenerMu.RUnlock()
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Serve validates the root directory, binds the control port, and runs the
// accept loop until shutdown.
//
// Returns nil on graceful shutdown, an error if startup fails or stragglers
// had to be force-closed.
func (srv *Server) Serve(ctx context.Context) error {
	srv.state.Store(int32(ServerStarting))

	// The root must exist before we accept a single client; a missing root
	// is a configuration error, not a per-session 550.
	info, err := os.Stat(srv.cfg.RootDir)
	if err != nil {
		srv.state.Store(int32(ServerStopped))
		return fmt.Errorf("root directory unavailable: %w", err)
	}
	if !info.IsDir() {
		srv.state.Store(int32(ServerStopped))
		return fmt.Errorf("root path is not a directory: %s", srv.cfg.RootDir)
	}

	listenAddr := fmt.Sprintf("%s:%d", srv.cfg.BindAddress, srv.cfg.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		srv.state.Store(int32(ServerStopped))
		return fmt.Errorf("failed to bind control port %d: %w", srv.cfg.Port, err)
	}

	srv.listenerMu.Lock()
	srv.listener = listener
	srv.listenerMu.Unlock()
	close(srv.ListenerReady)

	srv.state.Store(int32(ServerRunning))
	logger.Info("FTP server listening",
		logger.KeyPort, srv.cfg.Port,
		"root_dir", srv.cfg.RootDir,
		"encoding", srv.cfg.Encoding,
		"max_connections", srv.cfg.MaxConnections)

	// Context cancellation triggers the same path as Stop.
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received", logger.Err(ctx.Err()))
			srv.initiateShutdown()
		case <-srv.shutdown:
		}
	}()

	go srv.idleJanitor()

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-srv.shutdown:
				// Listener closed by shutdown
				return srv.drainSessions()
			default:
				logger.Debug("Error accepting connection", logger.Err(err))
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		// Over the limit the client gets an immediate 421 and the socket is
		// closed; no session is created and no slot is consumed.
		if srv.cfg.MaxConnections > 0 && srv.sessions.count() >= srv.cfg.MaxConnections {
			_, _ = tcpConn.Write([]byte("421 Too many connections, try again later.\r\n"))
			_ = tcpConn.Close()
			if srv.metrics != nil {
				srv.metrics.RecordConnectionRejected("max_connections")
			}
			logger.Warn("Connection rejected",
				logger.ClientIP(tcpConn.RemoteAddr().String()),
				"reason", "max_connections")
			continue
		}

		sess := newSession(srv, tcpConn)
		srv.sessions.add(sess)
		srv.activeConns.Add(1)

		if srv.metrics != nil {
			srv.metrics.RecordConnectionAccepted()
			srv.metrics.SetActiveSessions(srv.sessions.count())
		}
		logger.Debug("Connection accepted",
			logger.SessionID(sess.id), logger.ClientIP(sess.remoteIP),
			"active", srv.sessions.count())

		go func(sess *Session) {
			defer func() {
				srv.sessions.remove(sess.id)
				srv.activeConns.Done()
				if srv.metrics != nil {
					srv.metrics.RecordConnectionClosed()
					srv.metrics.SetActiveSessions(srv.sessions.count())
				}
			}()
			sess.serve(srv.shutdownCtx)
		}(sess)
	}
}

// initiateShutdown starts the shutdown sequence exactly once:
// stop accepting, interrupt blocking reads, cancel session contexts.
func (srv *Server) initiateShutdown() {
	srv.shutdownOnce.Do(func() {
		srv.state.Store(int32(ServerStopping))
		logger.Debug("Shutdown initiated")

		close(srv.shutdown)

		srv.listenerMu.Lock()
		if srv.listener != nil {
			if err := srv.listener.Close(); err != nil {
				logger.Debug("Error closing listener", logger.Err(err))
			}
		}
		srv.listenerMu.Unlock()

		// Unblock sessions waiting in ReadString so they observe the
		// cancelled context promptly.
		deadline := time.Now().Add(100 * time.Millisecond)
		srv.sessions.forEach(func(s *Session) {
			_ = s.conn.SetReadDeadline(deadline)
		})

		srv.cancelSessions()
	})
}

// drainSessions waits for live sessions to finish within the shutdown
// timeout, then force-closes the rest.
func (srv *Server) drainSessions() error {
	active := srv.sessions.count()
	logger.Info("Graceful shutdown: waiting for active sessions",
		"active", active, "timeout", srv.shutdownTimeout)

	done := make(chan struct{})
	go func() {
		srv.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		srv.state.Store(int32(ServerStopped))
		logger.Info("Graceful shutdown complete")
		return nil

	case <-time.After(srv.shutdownTimeout):
		remaining := srv.sessions.count()
		logger.Warn("Shutdown timeout exceeded, forcing closure",
			"active", remaining, "timeout", srv.shutdownTimeout)

		srv.sessions.forEach(func(s *Session) {
			s.closeControl()
		})
		srv.activeConns.Wait()
		srv.state.Store(int32(ServerStopped))
		return fmt.Errorf("shutdown timeout: %d sessions force-closed", remaining)
	}
}

// Stop initiates graceful shutdown and waits for sessions to drain.
//
// Safe to call multiple times and concurrently with Serve. With a nil
// context the configured shutdown timeout applies; otherwise the context
// bounds the wait.
func (srv *Server) Stop(ctx context.Context) error {
	srv.initiateShutdown()

	if ctx == nil {
		return srv.drainSessions()
	}

	done := make(chan struct{})
	go func() {
		srv.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		srv.state.Store(int32(ServerStopped))
		return nil
	case <-ctx.Done():
		remaining := srv.sessions.count()
		logger.Warn("Shutdown context cancelled",
			"active", remaining, logger.Err(ctx.Err()))
		srv.sessions.forEach(func(s *Session) {
			s.closeControl()
		})
		return ctx.Err()
	}
}

// idleJanitor force-closes sessions stuck past the idle timeout. The command
// loop's read deadline handles ordinary idleness; the janitor is the backstop
// for sessions wedged in a stalled data transfer.
func (srv *Server) idleJanitor() {
	interval := srv.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-srv.shutdown:
			return
		case <-ticker.C:
			srv.sessions.forEach(func(s *Session) {
				// Twice the idle timeout: the read deadline has already had
				// its chance by then.
				if s.IdleFor() > 2*srv.cfg.IdleTimeout {
					logger.Warn("Force-closing wedged session",
						logger.SessionID(s.id), logger.ClientIP(s.remoteIP),
						"idle", s.IdleFor())
					s.closeControl()
				}
			})
		}
	}
}

// publishSession emits a session lifecycle event on the monitoring feed.
func (srv *Server) publishSession(s *Session, kind events.SessionEventKind, cmd string, code int) {
	srv.feed.PublishSession(events.SessionEvent{
		SessionID: s.id,
		ClientIP:  s.remoteIP,
		User:      s.User(),
		Kind:      kind,
		Command:   cmd,
		ReplyCode: code,
	})
}

// publishTransfer emits a transfer event on the monitoring feed.
func (srv *Server) publishTransfer(s *Session, path string, direction events.TransferDirection, outcome events.TransferOutcome, bytes int64, duration time.Duration) {
	srv.feed.PublishTransfer(events.TransferEvent{
		SessionID: s.id,
		User:      s.User(),
		Path:      path,
		Direction: direction,
		Outcome:   outcome,
		Bytes:     bytes,
		Duration:  duration,
	})
}

func (srv *Server) recordAuth(outcome string, anonymous bool) {
	if srv.metrics != nil {
		srv.metrics.RecordAuth(outcome, anonymous)
	}
}

func (srv *Server) recordCommand(verb string, code int) {
	if srv.metrics != nil {
		srv.metrics.RecordCommand(verb, code)
	}
}

func (srv *Server) recordTransfer(direction, outcome string, bytes int64, duration time.Duration) {
	if srv.metrics != nil {
		srv.metrics.RecordTransfer(direction, outcome, bytes, duration)
	}
}
