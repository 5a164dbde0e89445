package ftp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoftp/pkg/auth"
	"github.com/marmos91/dittoftp/pkg/config"
	"github.com/marmos91/dittoftp/pkg/events"
)

// ============================================================================
// Test Harness
// ============================================================================

// startTestServer runs a server on an ephemeral port with a fresh root and
// anonymous access enabled. mutate can adjust the config before start.
func startTestServer(t *testing.T, mutate func(*config.ServerConfig), users ...config.UserConfig) (*Server, *events.Feed, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0755))

	cfg := config.ServerConfig{
		BindAddress:     "127.0.0.1",
		Port:            0,
		RootDir:         root,
		Encoding:        "utf-8",
		AllowAnonymous:  true,
		MaxConnections:  0,
		IdleTimeout:     5 * time.Second,
		MaxAuthAttempts: 3,
		DataTimeout:     2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	authz := auth.NewAuthorizer(cfg.AllowAnonymous, cfg.AnonymousWrite)
	for _, u := range users {
		require.NoError(t, authz.AddUser(u.Username, u.PasswordHash, u.ReadOnly))
	}

	feed := events.NewFeed()
	srv := NewServer(cfg, 2*time.Second, authz, feed, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	t.Cleanup(func() {
		_ = srv.Stop(nil)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		feed.Close()
	})

	return srv, feed, srv.Addr()
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// dial connects and consumes the 220 banner.
func dial(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	c := &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
	banner := c.readLine()
	require.True(t, strings.HasPrefix(banner, "220 "), "banner: %s", banner)
	return c
}

func (c *testClient) readLine() string {
	c.t.Helper()
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

// cmd sends one command and returns the single-line reply.
func (c *testClient) cmd(format string, args ...any) string {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	require.NoError(c.t, err)
	return c.readLine()
}

// cmdMulti sends a command and reads a multi-line reply through its
// terminating "code " line.
func (c *testClient) cmdMulti(format string, args ...any) []string {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	require.NoError(c.t, err)

	first := c.readLine()
	require.True(c.t, len(first) >= 4 && first[3] == '-', "expected multiline, got: %s", first)
	code := first[:3]

	lines := []string{first}
	for {
		line := c.readLine()
		lines = append(lines, line)
		if strings.HasPrefix(line, code+" ") {
			return lines
		}
	}
}

func (c *testClient) loginAnonymous() {
	c.t.Helper()
	reply := c.cmd("USER anonymous")
	require.True(c.t, strings.HasPrefix(reply, "230 "), "login: %s", reply)
}

// pasv issues PASV and returns the advertised data address.
func (c *testClient) pasv() string {
	c.t.Helper()
	reply := c.cmd("PASV")
	require.True(c.t, strings.HasPrefix(reply, "227 "), "pasv: %s", reply)

	open := strings.Index(reply, "(")
	closing := strings.Index(reply, ")")
	require.True(c.t, open > 0 && closing > open)

	parts := strings.Split(reply[open+1:closing], ",")
	require.Len(c.t, parts, 6)

	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		require.NoError(c.t, err)
		nums[i] = n
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", nums[0], nums[1], nums[2], nums[3], nums[4]*256+nums[5])
}

func (c *testClient) dialData(addr string) net.Conn {
	c.t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(c.t, err)
	return conn
}

// ============================================================================
// Authentication Tests
// ============================================================================

func TestAnonymousLogin(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)

	c.loginAnonymous()

	// PASS after the anonymous shortcut is harmless
	assert.True(t, strings.HasPrefix(c.cmd("PASS whatever"), "230 "))
}

func TestAnonymousDisabled(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, func(cfg *config.ServerConfig) {
		cfg.AllowAnonymous = false
	})
	c := dial(t, addr)

	reply := c.cmd("USER anonymous")
	assert.True(t, strings.HasPrefix(reply, "530 "), "got: %s", reply)
}

func TestNamedUserLogin(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)

	_, _, addr := startTestServer(t, nil, config.UserConfig{Username: "alice", PasswordHash: hash})
	c := dial(t, addr)

	assert.True(t, strings.HasPrefix(c.cmd("USER alice"), "331 "))
	assert.True(t, strings.HasPrefix(c.cmd("PASS secret"), "230 "))
	assert.True(t, strings.HasPrefix(c.cmd("PWD"), "257 "))
}

func TestCommandsRequireLogin(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)

	for _, cmd := range []string{"PWD", "LIST", "RETR hello.txt", "PASV", "DELE hello.txt"} {
		reply := c.cmd("%s", cmd)
		assert.True(t, strings.HasPrefix(reply, "530 "), "%s: %s", cmd, reply)
	}
}

func TestPassBeforeUser(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)

	assert.True(t, strings.HasPrefix(c.cmd("PASS x"), "503 "))
}

func TestAuthAttemptsExhausted(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)

	_, _, addr := startTestServer(t, nil, config.UserConfig{Username: "alice", PasswordHash: hash})
	c := dial(t, addr)

	for i := 0; i < 2; i++ {
		c.cmd("USER alice")
		reply := c.cmd("PASS wrong")
		require.True(t, strings.HasPrefix(reply, "530 "), "attempt %d: %s", i, reply)
	}

	c.cmd("USER alice")
	reply := c.cmd("PASS wrong")
	require.True(t, strings.HasPrefix(reply, "421 "), "final attempt: %s", reply)

	// Connection is closed after the 421
	_, err = c.reader.ReadString('\n')
	assert.Error(t, err)
}

// ============================================================================
// Connection Limit Tests
// ============================================================================

func TestMaxConnectionsRejectedWith421(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, func(cfg *config.ServerConfig) {
		cfg.MaxConnections = 1
	})

	c1 := dial(t, addr)
	c1.loginAnonymous()

	// Second connection gets 421 and an immediate close, no session slot
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "421 "), "got: %s", line)

	// The first session is unaffected
	assert.True(t, strings.HasPrefix(c1.cmd("NOOP"), "200 "))
}

// ============================================================================
// Navigation Tests
// ============================================================================

func TestNavigationAndEscape(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	reply := c.cmd("PWD")
	assert.Contains(t, reply, `"/"`)

	assert.True(t, strings.HasPrefix(c.cmd("CWD docs"), "250 "))
	assert.Contains(t, c.cmd("PWD"), `"/docs"`)
	assert.True(t, strings.HasPrefix(c.cmd("CDUP"), "250 "))

	// Traversal clamps at the virtual root and reports a missing path
	reply = c.cmd("CWD ../../etc")
	assert.True(t, strings.HasPrefix(reply, "550 "), "got: %s", reply)
	assert.Contains(t, c.cmd("PWD"), `"/"`)
}

// ============================================================================
// Data Channel Tests
// ============================================================================

func TestRetrWithoutDataChannel(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	// The data channel is validated before any filesystem access, so even a
	// missing file reports 425 here.
	reply := c.cmd("RETR no-such-file.txt")
	assert.True(t, strings.HasPrefix(reply, "425 "), "got: %s", reply)
}

func TestSecondPasvReplacesFirst(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	first := c.pasv()
	second := c.pasv()
	require.NotEqual(t, first, second)

	// The first listener is gone once replaced
	_, err := net.DialTimeout("tcp", first, 500*time.Millisecond)
	assert.Error(t, err)

	conn := c.dialData(second)
	defer conn.Close()
}

func TestPortCommand(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	// Listener playing the client's data endpoint
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	reply := c.cmd("PORT 127,0,0,1,%d,%d", port/256, port%256)
	require.True(t, strings.HasPrefix(reply, "200 "), "got: %s", reply)

	// Bounce attempts (foreign address) are refused
	reply = c.cmd("PORT 10,0,0,1,%d,%d", port/256, port%256)
	assert.True(t, strings.HasPrefix(reply, "500 "), "got: %s", reply)

	reply = c.cmd("PORT nonsense")
	assert.True(t, strings.HasPrefix(reply, "501 "), "got: %s", reply)
}

// ============================================================================
// Transfer Tests
// ============================================================================

func TestRetrDownload(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	data := c.dialData(c.pasv())
	defer data.Close()

	require.True(t, strings.HasPrefix(c.cmd("RETR hello.txt"), "150 "))

	content, err := io.ReadAll(data)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))

	assert.True(t, strings.HasPrefix(c.readLine(), "226 "))
}

func TestRetrMissingFileKeepsSessionAlive(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	c.pasv()
	reply := c.cmd("RETR missing.txt")
	assert.True(t, strings.HasPrefix(reply, "550 "), "got: %s", reply)

	assert.True(t, strings.HasPrefix(c.cmd("NOOP"), "200 "))
}

func TestStorUpload(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, func(cfg *config.ServerConfig) {
		cfg.AnonymousWrite = true
	})
	c := dial(t, addr)
	c.loginAnonymous()

	data := c.dialData(c.pasv())

	require.True(t, strings.HasPrefix(c.cmd("STOR upload.txt"), "150 "))
	_, err := data.Write([]byte("uploaded bytes"))
	require.NoError(t, err)
	require.NoError(t, data.Close())

	assert.True(t, strings.HasPrefix(c.readLine(), "226 "))

	stored, err := os.ReadFile(filepath.Join(srv.cfg.RootDir, "upload.txt"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded bytes", string(stored))
}

func TestStorReadOnlySession(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil) // AnonymousWrite off
	c := dial(t, addr)
	c.loginAnonymous()

	c.pasv()
	reply := c.cmd("STOR upload.txt")
	assert.True(t, strings.HasPrefix(reply, "550 "), "got: %s", reply)

	_, err := os.Stat(filepath.Join(srv.cfg.RootDir, "upload.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestListOverDataChannel(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	data := c.dialData(c.pasv())
	defer data.Close()

	require.True(t, strings.HasPrefix(c.cmd("LIST"), "150 "))

	listing, err := io.ReadAll(data)
	require.NoError(t, err)
	assert.Contains(t, string(listing), "hello.txt")
	assert.Contains(t, string(listing), "docs")

	assert.True(t, strings.HasPrefix(c.readLine(), "226 "))
}

func TestNlstBareNames(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	data := c.dialData(c.pasv())
	defer data.Close()

	require.True(t, strings.HasPrefix(c.cmd("NLST"), "150 "))

	listing, err := io.ReadAll(data)
	require.NoError(t, err)
	assert.Contains(t, string(listing), "hello.txt\r\n")
	assert.Contains(t, string(listing), "docs/\r\n")

	assert.True(t, strings.HasPrefix(c.readLine(), "226 "))
}

// ============================================================================
// In-Flight Transfer Tests
// ============================================================================

// writeLargeFile drops a file big enough that sending it fills the loopback
// socket buffers when the receiver refuses to read, stalling the copy.
func writeLargeFile(t *testing.T, root string) string {
	t.Helper()
	data := bytes.Repeat([]byte("dittoftp"), (32<<20)/8)
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), data, 0644))
	return "big.bin"
}

// stallTransfer starts a RETR of name and returns the data connection
// without reading from it, leaving the server blocked mid-copy.
func stallTransfer(t *testing.T, c *testClient, name string) net.Conn {
	t.Helper()
	data := c.dialData(c.pasv())
	require.True(t, strings.HasPrefix(c.cmd("RETR %s", name), "150 "))
	// Let the copy fill the socket buffers and block
	time.Sleep(200 * time.Millisecond)
	return data
}

func TestCommandsRefusedDuringTransfer(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil)
	name := writeLargeFile(t, srv.cfg.RootDir)

	c := dial(t, addr)
	c.loginAnonymous()

	data := stallTransfer(t, c, name)
	defer data.Close()

	// A second transfer and ordinary commands are refused while one runs
	assert.True(t, strings.HasPrefix(c.cmd("RETR hello.txt"), "503 "))
	assert.True(t, strings.HasPrefix(c.cmd("PWD"), "503 "))

	// STAT still answers so the session can be observed mid-transfer
	lines := c.cmdMulti("STAT")
	assert.Contains(t, strings.Join(lines, "\n"), "State: running")

	require.True(t, strings.HasPrefix(c.cmd("ABOR"), "426 "))
	require.True(t, strings.HasPrefix(c.readLine(), "226 "))
}

func TestAbortStalledTransfer(t *testing.T) {
	t.Parallel()

	srv, feed, addr := startTestServer(t, nil)
	name := writeLargeFile(t, srv.cfg.RootDir)

	ch, cancel := feed.Subscribe(64)
	defer cancel()

	c := dial(t, addr)
	c.loginAnonymous()

	data := stallTransfer(t, c, name)
	defer data.Close()

	// 426 for the cut transfer arrives before the 226 for ABOR
	require.True(t, strings.HasPrefix(c.cmd("ABOR"), "426 "))
	require.True(t, strings.HasPrefix(c.readLine(), "226 "))

	// The session is usable again
	assert.True(t, strings.HasPrefix(c.cmd("PWD"), "257 "))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Transfer == nil {
				continue
			}
			assert.Equal(t, events.OutcomeAborted, ev.Transfer.Outcome)
			return
		case <-deadline:
			t.Fatal("no transfer event")
		}
	}
}

func TestStopBoundedWithStalledTransfer(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil)
	name := writeLargeFile(t, srv.cfg.RootDir)

	c := dial(t, addr)
	c.loginAnonymous()

	data := stallTransfer(t, c, name)
	defer data.Close()

	// The stalled transfer cannot finish within the 2s grace period; Stop
	// must force-close it and return shortly after the grace expires.
	start := time.Now()
	err := srv.Stop(nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "force-closed")
	assert.Less(t, elapsed, 4*time.Second)
}

// ============================================================================
// File Management Tests
// ============================================================================

func TestFileManagementCommands(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, func(cfg *config.ServerConfig) {
		cfg.AnonymousWrite = true
	})
	c := dial(t, addr)
	c.loginAnonymous()

	assert.Equal(t, "213 11", c.cmd("SIZE hello.txt"))
	assert.True(t, strings.HasPrefix(c.cmd("SIZE docs"), "550 "))
	assert.True(t, strings.HasPrefix(c.cmd("MDTM hello.txt"), "213 "))

	assert.True(t, strings.HasPrefix(c.cmd("MKD inbox"), "257 "))
	assert.True(t, strings.HasPrefix(c.cmd("RNFR hello.txt"), "350 "))
	assert.True(t, strings.HasPrefix(c.cmd("RNTO inbox/hello.txt"), "250 "))

	// RNTO without RNFR is a sequence error
	assert.True(t, strings.HasPrefix(c.cmd("RNTO elsewhere"), "503 "))

	assert.True(t, strings.HasPrefix(c.cmd("DELE inbox/hello.txt"), "250 "))
	assert.True(t, strings.HasPrefix(c.cmd("RMD inbox"), "250 "))
	assert.True(t, strings.HasPrefix(c.cmd("DELE inbox/hello.txt"), "550 "))
}

// ============================================================================
// Informational Command Tests
// ============================================================================

func TestInformationalCommands(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)

	assert.True(t, strings.HasPrefix(c.cmd("SYST"), "215 "))
	assert.True(t, strings.HasPrefix(c.cmd("NOOP"), "200 "))
	assert.True(t, strings.HasPrefix(c.cmd("HELP"), "214 "))
	assert.True(t, strings.HasPrefix(c.cmd("BOGUS"), "502 "))

	lines := c.cmdMulti("FEAT")
	assert.Contains(t, strings.Join(lines, "\n"), "SIZE")
}

func TestStatBeforeLogin(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil)
	c := dial(t, addr)

	lines := c.cmdMulti("STAT")
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "State: running")
	assert.Contains(t, joined, "Active sessions: 1")
	assert.Equal(t, ServerRunning, srv.State())
}

func TestTypeCommand(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	assert.True(t, strings.HasPrefix(c.cmd("TYPE I"), "200 "))
	assert.True(t, strings.HasPrefix(c.cmd("TYPE A"), "200 "))
	assert.True(t, strings.HasPrefix(c.cmd("TYPE E"), "504 "))

	assert.True(t, strings.HasPrefix(c.cmd("MODE S"), "200 "))
	assert.True(t, strings.HasPrefix(c.cmd("MODE B"), "504 "))
	assert.True(t, strings.HasPrefix(c.cmd("STRU F"), "200 "))
	assert.True(t, strings.HasPrefix(c.cmd("STRU R"), "504 "))
}

// ============================================================================
// Supervisor Tests
// ============================================================================

func TestListSessions(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	summaries := srv.ListSessions()
	require.Len(t, summaries, 1)
	assert.Equal(t, "anonymous", summaries[0].User)
	assert.Equal(t, "authenticated", summaries[0].State)
	assert.Equal(t, "127.0.0.1", summaries[0].ClientIP)
}

func TestQuitClosesSession(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	assert.True(t, strings.HasPrefix(c.cmd("QUIT"), "221 "))

	_, err := c.reader.ReadString('\n')
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		return srv.sessions.count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIdleTimeout(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, func(cfg *config.ServerConfig) {
		cfg.IdleTimeout = 300 * time.Millisecond
	})
	c := dial(t, addr)
	c.loginAnonymous()

	// Stay silent past the idle window
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "421 "), "got: %s", line)
}

func TestOverlongCommandRejected(t *testing.T) {
	t.Parallel()

	_, _, addr := startTestServer(t, nil)
	c := dial(t, addr)

	// A full buffer of bytes with no newline is rejected without the server
	// accumulating the line
	junk := bytes.Repeat([]byte("A"), MaxCommandLength)
	_, err := c.conn.Write(junk)
	require.NoError(t, err)

	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "500 "), "got: %s", line)

	// The session is closed afterwards
	_, err = c.reader.ReadString('\n')
	assert.Error(t, err)
}

func TestGracefulStop(t *testing.T) {
	t.Parallel()

	srv, _, addr := startTestServer(t, nil)
	c := dial(t, addr)
	c.loginAnonymous()

	require.NoError(t, srv.Stop(nil))
	assert.Equal(t, ServerStopped, srv.State())

	// The client observes the final 421
	line, err := c.reader.ReadString('\n')
	if err == nil {
		assert.True(t, strings.HasPrefix(line, "421 "), "got: %s", line)
	}

	// New connections are refused after stop
	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestServeFailsWithoutRoot(t *testing.T) {
	t.Parallel()

	cfg := config.ServerConfig{
		BindAddress:     "127.0.0.1",
		RootDir:         filepath.Join(t.TempDir(), "missing"),
		IdleTimeout:     time.Second,
		MaxAuthAttempts: 3,
		DataTimeout:     time.Second,
	}
	srv := NewServer(cfg, time.Second, auth.NewAuthorizer(true, false), events.NewFeed(), nil)

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root directory")
	assert.Equal(t, ServerStopped, srv.State())
}

// ============================================================================
// Event Feed Tests
// ============================================================================

func TestSessionEventsPublished(t *testing.T) {
	t.Parallel()

	_, feed, addr := startTestServer(t, nil)

	ch, cancel := feed.Subscribe(64)
	defer cancel()

	c := dial(t, addr)
	c.loginAnonymous()
	c.cmd("QUIT")

	kinds := map[events.SessionEventKind]bool{}
	deadline := time.After(3 * time.Second)
	for !kinds[events.SessionDisconnected] {
		select {
		case ev := <-ch:
			if ev.Session != nil {
				kinds[ev.Session.Kind] = true
			}
		case <-deadline:
			t.Fatalf("missing disconnect event, saw: %v", kinds)
		}
	}

	assert.True(t, kinds[events.SessionConnected])
	assert.True(t, kinds[events.SessionAuthenticated])
	assert.True(t, kinds[events.SessionCommand])
}

func TestTransferEventPublished(t *testing.T) {
	t.Parallel()

	_, feed, addr := startTestServer(t, nil)

	ch, cancel := feed.Subscribe(64)
	defer cancel()

	c := dial(t, addr)
	c.loginAnonymous()

	data := c.dialData(c.pasv())
	require.True(t, strings.HasPrefix(c.cmd("RETR hello.txt"), "150 "))
	_, err := io.ReadAll(data)
	require.NoError(t, err)
	data.Close()
	require.True(t, strings.HasPrefix(c.readLine(), "226 "))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Transfer == nil {
				continue
			}
			assert.Equal(t, events.DirectionDownload, ev.Transfer.Direction)
			assert.Equal(t, events.OutcomeComplete, ev.Transfer.Outcome)
			assert.Equal(t, int64(len("hello world")), ev.Transfer.Bytes)
			assert.Equal(t, "hello.txt", ev.Transfer.Path)
			return
		case <-deadline:
			t.Fatal("no transfer event")
		}
	}
}
