package ftp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoftp/internal/logger"
	"github.com/marmos91/dittoftp/pkg/auth"
	"github.com/marmos91/dittoftp/pkg/events"
	"github.com/marmos91/dittoftp/pkg/vfs"
)

// MaxCommandLength is the maximum length of a control channel command line.
const MaxCommandLength = 4096

// SessionState tracks where a session is in its authentication lifecycle.
type SessionState int32

const (
	// StateUnauthenticated is the state right after connect, before USER.
	StateUnauthenticated SessionState = iota

	// StateAwaitingPassword follows USER for a named account.
	StateAwaitingPassword

	// StateAuthenticated grants access to filesystem and transfer commands.
	StateAuthenticated

	// StateClosed is terminal; the control connection is gone.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingPassword:
		return "awaiting_password"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one FTP control connection and its protocol state.
//
// Commands run on the serve goroutine; an active transfer runs on its own
// goroutine so the control channel stays responsive for ABOR and STAT. Cross
// goroutine accesses are the reply writer, the transfer tracking fields, and
// the read-only accessors used by ListSessions, which is why state and
// activity are atomics and the rest takes a mutex.
type Session struct {
	id     string
	server *Server
	conn   net.Conn
	reader *bufio.Reader

	writeMu       sync.Mutex
	lastReplyCode int

	state        atomic.Int32
	account      auth.Account
	pendingUser  string
	authFailures int

	gateway      *vfs.Gateway
	data         *dataChannel
	renameFrom   string
	transferType string

	// transferConn is the live data connection while a transfer is in
	// flight; abort and forced shutdown close it to unblock the copy.
	// transferDone is non-nil exactly while the transfer goroutine runs.
	transferMu      sync.Mutex
	transferConn    net.Conn
	transferDone    chan struct{}
	transferAborted bool

	remoteIP    string
	connectedAt time.Time
	lastActive  atomic.Int64

	quitting bool
}

func newSession(srv *Server, conn net.Conn) *Session {
	remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	s := &Session{
		id:           uuid.NewString(),
		server:       srv,
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, MaxCommandLength),
		remoteIP:     remoteIP,
		connectedAt:  time.Now(),
		transferType: "I",
	}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// touch records activity for idle tracking.
func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// IdleFor returns how long the session has been without activity.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

// User returns the login name, or the pending one during USER/PASS.
func (s *Session) User() string {
	if s.State() == StateAuthenticated {
		return s.account.Username
	}
	return s.pendingUser
}

// reply sends a single-line response on the control channel.
func (s *Session) reply(code int, msg string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.lastReplyCode = code
	if _, err := fmt.Fprintf(s.conn, "%d %s\r\n", code, msg); err != nil {
		logger.Debug("Failed to write reply",
			logger.SessionID(s.id), logger.ReplyCode(code), logger.Err(err))
	}
}

// replyMulti sends a multi-line response (FEAT, STAT).
// The first line opens with "code-", body lines are indented, and the block
// is closed by "code end".
func (s *Session) replyMulti(code int, first string, body []string, end string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.lastReplyCode = code
	var b strings.Builder
	fmt.Fprintf(&b, "%d-%s\r\n", code, first)
	for _, line := range body {
		fmt.Fprintf(&b, " %s\r\n", line)
	}
	fmt.Fprintf(&b, "%d %s\r\n", code, end)

	if _, err := s.conn.Write([]byte(b.String())); err != nil {
		logger.Debug("Failed to write reply",
			logger.SessionID(s.id), logger.ReplyCode(code), logger.Err(err))
	}
}

// serve runs the command loop until the client disconnects, the session is
// closed by policy (idle, auth attempts), or the server shuts down.
func (s *Session) serve(ctx context.Context) {
	defer s.cleanup()

	logger.Info("Session connected",
		logger.SessionID(s.id), logger.ClientIP(s.remoteIP))
	s.server.publishSession(s, events.SessionConnected, "", 0)

	s.reply(StatusReady, "dittoftp server ready.")

	for {
		if ctx.Err() != nil {
			s.reply(StatusNotAvailable, "Service not available, closing control connection.")
			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.IdleTimeout))

		// ReadSlice is bounded by the reader's buffer, so a client streaming
		// bytes without a newline cannot grow memory past MaxCommandLength.
		line, err := s.reader.ReadSlice('\n')
		if err != nil {
			if err == bufio.ErrBufferFull {
				s.reply(StatusSyntaxError, "Command line too long.")
				return
			}
			if ctx.Err() != nil {
				s.reply(StatusNotAvailable, "Service not available, closing control connection.")
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// A client mid-transfer sends nothing on the control channel;
				// that is activity, not idleness.
				if s.transferInProgress() {
					continue
				}
				s.reply(StatusNotAvailable, "Idle timeout, closing control connection.")
				logger.Info("Session idle timeout",
					logger.SessionID(s.id), logger.ClientIP(s.remoteIP))
				return
			}
			// Client closed the connection
			return
		}

		s.touch()

		s.handleCommand(strings.TrimRight(string(line), "\r\n"))
		if s.quitting {
			return
		}
	}
}

// cleanup tears the session down exactly once, from the serve goroutine.
// An in-flight transfer is given the chance to finish first; on forced
// shutdown closeControl has already severed its data connection, so the
// wait is bounded.
func (s *Session) cleanup() {
	s.setState(StateClosed)
	s.waitTransfer()

	if s.data != nil {
		s.data.close()
		s.data = nil
	}
	if s.gateway != nil {
		_ = s.gateway.Close()
		s.gateway = nil
	}
	_ = s.conn.Close()

	s.server.publishSession(s, events.SessionDisconnected, "", 0)
	logger.Info("Session disconnected",
		logger.SessionID(s.id), logger.ClientIP(s.remoteIP), logger.User(s.User()))
}

// setDataChannel replaces the pending data channel descriptor.
// The previous descriptor's listener (if any) is released immediately.
func (s *Session) setDataChannel(d *dataChannel) {
	if s.data != nil {
		s.data.close()
	}
	s.data = d
}

// takeDataChannel consumes the pending descriptor, or nil when none is set.
func (s *Session) takeDataChannel() *dataChannel {
	d := s.data
	s.data = nil
	return d
}

// closeControl interrupts the session from outside its serve goroutine.
// Used by the idle janitor and forced shutdown. Closing the live data
// connection as well unblocks a transfer goroutine stalled mid-copy.
func (s *Session) closeControl() {
	s.transferMu.Lock()
	if s.transferConn != nil {
		_ = s.transferConn.Close()
	}
	s.transferMu.Unlock()

	_ = s.conn.Close()
}

// transferInProgress reports whether a transfer goroutine is running.
func (s *Session) transferInProgress() bool {
	s.transferMu.Lock()
	defer s.transferMu.Unlock()
	return s.transferDone != nil
}

// beginTransfer claims the session's single transfer slot and registers the
// data connection for abort. Returns false when a transfer is already in
// flight.
func (s *Session) beginTransfer(conn net.Conn) bool {
	s.transferMu.Lock()
	defer s.transferMu.Unlock()

	if s.transferDone != nil {
		return false
	}
	s.transferDone = make(chan struct{})
	s.transferConn = conn
	s.transferAborted = false
	return true
}

// endTransfer releases the transfer slot. Called by the transfer goroutine.
func (s *Session) endTransfer() {
	s.transferMu.Lock()
	done := s.transferDone
	s.transferDone = nil
	s.transferConn = nil
	s.transferMu.Unlock()

	close(done)
}

// abortTransfer severs the live data connection and waits for the transfer
// goroutine to send its 426. Returns false when no transfer is in flight.
func (s *Session) abortTransfer() bool {
	s.transferMu.Lock()
	done := s.transferDone
	if done == nil {
		s.transferMu.Unlock()
		return false
	}
	s.transferAborted = true
	if s.transferConn != nil {
		_ = s.transferConn.Close()
	}
	s.transferMu.Unlock()

	<-done
	return true
}

// wasAborted reports whether the current transfer was cut by ABOR.
func (s *Session) wasAborted() bool {
	s.transferMu.Lock()
	defer s.transferMu.Unlock()
	return s.transferAborted
}

// waitTransfer blocks until any in-flight transfer goroutine has finished.
func (s *Session) waitTransfer() {
	s.transferMu.Lock()
	done := s.transferDone
	s.transferMu.Unlock()

	if done != nil {
		<-done
	}
}

// login finalizes a successful authentication: the account is attached, the
// filesystem gateway is opened, and the session becomes Authenticated.
func (s *Session) login(account auth.Account) {
	gw, err := vfs.NewGateway(s.server.cfg.RootDir, account.ReadOnly)
	if err != nil {
		logger.Error("Failed to open filesystem root",
			logger.SessionID(s.id), logger.Path(s.server.cfg.RootDir), logger.Err(err))
		s.reply(StatusNotAvailable, "Service not available, closing control connection.")
		s.quitting = true
		return
	}

	s.account = account
	s.gateway = gw
	s.pendingUser = ""
	s.authFailures = 0
	s.setState(StateAuthenticated)

	s.server.recordAuth("success", account.Anonymous)
	s.server.publishSession(s, events.SessionAuthenticated, "", 0)
	logger.Info("Session authenticated",
		logger.SessionID(s.id), logger.ClientIP(s.remoteIP),
		logger.User(account.Username), "anonymous", account.Anonymous)

	if account.Anonymous {
		s.reply(StatusLoggedIn, "Anonymous login ok.")
	} else {
		s.reply(StatusLoggedIn, "User logged in.")
	}
}

// authFailed records a rejected credential and closes the session once the
// attempt budget is spent.
func (s *Session) authFailed(username string, err error) {
	s.authFailures++
	s.server.recordAuth("failure", auth.IsAnonymous(username))
	s.server.publishSession(s, events.SessionAuthFailed, "", 0)
	logger.Warn("Authentication failed",
		logger.SessionID(s.id), logger.ClientIP(s.remoteIP),
		logger.User(username), "attempt", s.authFailures, logger.Err(err))

	if s.authFailures >= s.server.cfg.MaxAuthAttempts {
		s.reply(StatusNotAvailable, "Too many failed login attempts, closing control connection.")
		s.quitting = true
		return
	}

	re := replyForErr(err)
	s.reply(re.Code, re.Msg)
	s.setState(StateUnauthenticated)
	s.pendingUser = ""
}
