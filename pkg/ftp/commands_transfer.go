package ftp

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittoftp/internal/logger"
	"github.com/marmos91/dittoftp/pkg/events"
	"github.com/marmos91/dittoftp/pkg/vfs"
)

func (s *Session) handlePASV(_ string) {
	cfg := s.server.cfg
	ch, err := newPassiveChannel(cfg.BindAddress, cfg.PassiveMinPort, cfg.PassiveMaxPort,
		&s.server.nextPassivePort, cfg.DataTimeout)
	if err != nil {
		logger.Warn("Failed to open passive listener",
			logger.SessionID(s.id), logger.Err(err))
		s.reply(StatusCannotOpenData, "Can't open passive connection.")
		return
	}
	s.setDataChannel(ch)

	host, _, _ := net.SplitHostPort(s.conn.LocalAddr().String())
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		// PASV can only carry IPv4; fall back to loopback for local setups.
		ip = net.IPv4(127, 0, 0, 1)
	}
	ip = ip.To4()

	port := ch.port()
	s.reply(StatusPassiveMode, fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d).",
		ip[0], ip[1], ip[2], ip[3], port/256, port%256))
}

func (s *Session) handlePORT(arg string) {
	parts := strings.Split(strings.TrimSpace(arg), ",")
	if len(parts) != 6 {
		s.reply(StatusBadArguments, "Illegal PORT command.")
		return
	}

	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			s.reply(StatusBadArguments, "Illegal PORT command.")
			return
		}
		nums[i] = n
	}

	host := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	port := nums[4]*256 + nums[5]
	if port == 0 {
		s.reply(StatusBadArguments, "Illegal PORT command.")
		return
	}

	// Only connect back to the client's own address. Anything else is an
	// FTP bounce attempt.
	if host != s.remoteIP {
		s.reply(StatusSyntaxError, "Illegal PORT command.")
		return
	}

	s.setDataChannel(newActiveChannel(host, port, s.server.cfg.DataTimeout))
	s.reply(StatusOK, "PORT command successful.")
}

func (s *Session) handleRETR(path string) {
	// Validate the data channel before touching the filesystem; a missing
	// PASV/PORT must not cause any file I/O.
	if s.data == nil {
		s.reply(StatusCannotOpenData, "Use PASV or PORT first.")
		return
	}

	file, err := s.gateway.OpenRead(path)
	if err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}

	conn, err := s.takeDataChannel().open()
	if err != nil {
		file.Close()
		s.reply(StatusCannotOpenData, "Can't open data connection.")
		return
	}

	s.runTransfer("RETR", path, events.DirectionDownload, conn, file, func() (int64, error) {
		return io.Copy(conn, &activityTracker{s: s, r: file})
	})
}

func (s *Session) handleSTOR(path string) {
	s.store(path, false)
}

func (s *Session) handleAPPE(path string) {
	s.store(path, true)
}

func (s *Session) store(path string, appendMode bool) {
	if s.data == nil {
		s.reply(StatusCannotOpenData, "Use PASV or PORT first.")
		return
	}

	open := s.gateway.OpenWrite
	if appendMode {
		open = s.gateway.OpenAppend
	}
	file, err := open(path)
	if err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}

	conn, err := s.takeDataChannel().open()
	if err != nil {
		file.Close()
		s.reply(StatusCannotOpenData, "Can't open data connection.")
		return
	}

	s.runTransfer("STOR", path, events.DirectionUpload, conn, file, func() (int64, error) {
		return io.Copy(file, &activityTracker{s: s, r: conn})
	})
}

func (s *Session) handleLIST(arg string) {
	s.list(arg, formatLongEntry)
}

func (s *Session) handleNLST(arg string) {
	s.list(arg, formatShortEntry)
}

// list streams a directory listing over the data channel. Entries are
// written as they are read; large directories never materialize in memory.
func (s *Session) list(arg string, format func(vfs.Entry) string) {
	if s.data == nil {
		s.reply(StatusCannotOpenData, "Use PASV or PORT first.")
		return
	}

	path := listPath(arg)
	stream, err := s.gateway.List(path)
	if err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}

	conn, err := s.takeDataChannel().open()
	if err != nil {
		stream.Close()
		s.reply(StatusCannotOpenData, "Can't open data connection.")
		return
	}

	s.runTransfer("LIST", path, events.DirectionListing, conn, stream, func() (int64, error) {
		var n int64
		for {
			entry, err := stream.Next()
			if err == io.EOF {
				return n, nil
			}
			if err != nil {
				return n, err
			}

			written, err := fmt.Fprintf(conn, "%s\r\n", format(entry))
			n += int64(written)
			if err != nil {
				return n, err
			}
			s.touch()
		}
	})
}

// listPath strips option flags clients habitually send (LIST -la) and
// returns the target directory, defaulting to the working directory.
func listPath(arg string) string {
	arg = strings.TrimSpace(arg)
	for arg != "" && strings.HasPrefix(arg, "-") {
		var rest string
		_, rest, _ = strings.Cut(arg, " ")
		arg = strings.TrimSpace(rest)
	}
	if arg == "" {
		return "."
	}
	return arg
}

// runTransfer sends the 150 mark and executes copyFn on its own goroutine so
// the control channel stays responsive while data moves. closer is the file
// or listing stream backing the transfer; runTransfer owns both it and conn
// from here on.
func (s *Session) runTransfer(verb, path string, direction events.TransferDirection, conn net.Conn, closer io.Closer, copyFn func() (int64, error)) {
	if !s.beginTransfer(conn) {
		conn.Close()
		closer.Close()
		s.reply(StatusBadSequence, "Transfer in progress, please ABOR or wait.")
		return
	}

	s.reply(StatusFileOK, fmt.Sprintf("Opening data connection for %s.", verb))

	start := time.Now()
	go func() {
		defer s.endTransfer()

		n, err := copyFn()
		conn.Close()
		closer.Close()
		s.finishTransfer(verb, path, direction, n, start, err)
	}()
}

// activityTracker marks the session active on every chunk so a long transfer
// is not mistaken for an idle session by the janitor.
type activityTracker struct {
	s *Session
	r io.Reader
}

func (t *activityTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.s.touch()
	}
	return n, err
}

// finishTransfer sends the final transfer reply and emits the transfer
// observability signals.
func (s *Session) finishTransfer(verb, path string, direction events.TransferDirection, bytes int64, start time.Time, err error) {
	duration := time.Since(start)

	outcome := events.OutcomeComplete
	if err != nil {
		outcome = events.OutcomeFailed
		if s.wasAborted() {
			outcome = events.OutcomeAborted
		}
		s.reply(StatusTransferAborted, "Connection closed; transfer aborted.")
	} else {
		s.reply(StatusTransferDone, "Transfer complete.")
	}

	s.server.publishTransfer(s, path, direction, outcome, bytes, duration)
	s.server.recordTransfer(string(direction), string(outcome), bytes, duration)

	logger.Info("Transfer finished",
		logger.SessionID(s.id), logger.ClientIP(s.remoteIP), logger.User(s.User()),
		logger.Command(verb), logger.Path(path), logger.Bytes(bytes),
		logger.DurationMs(logger.Duration(start)),
		"outcome", string(outcome))
}

func formatLongEntry(e vfs.Entry) string {
	return vfs.FormatLong(e)
}

func formatShortEntry(e vfs.Entry) string {
	return vfs.FormatShort(e)
}

// collectListing drains a stream into formatted lines for STAT.
func collectListing(stream *vfs.ListStream, format func(vfs.Entry) string) ([]string, error) {
	var lines []string
	for {
		entry, err := stream.Next()
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, format(entry))
	}
}
