package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so session activity
// can be aggregated and filtered by session, user, or command.
const (
	// Session & connection
	KeySessionID = "session_id" // unique session identifier
	KeyClientIP  = "client_ip"  // client IP address (without port)
	KeyUser      = "user"       // username from USER command
	KeyPort      = "port"       // server listening port

	// Protocol
	KeyCommand   = "command"    // FTP verb: RETR, STOR, LIST, etc.
	KeyArgument  = "argument"   // command argument (password redacted)
	KeyReplyCode = "reply_code" // three-digit protocol reply code

	// Filesystem
	KeyPath    = "path"     // virtual path, rooted at the share root
	KeyOldPath = "old_path" // rename source
	KeyNewPath = "new_path" // rename destination

	// Transfers
	KeyBytes     = "bytes"     // bytes transferred
	KeyDirection = "direction" // upload or download
	KeyMode      = "mode"      // data channel mode: passive or active

	// Operation metadata
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
)

// SessionID returns a slog.Attr for the session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientIP returns a slog.Attr for the client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// User returns a slog.Attr for the username
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// Command returns a slog.Attr for the FTP verb
func Command(verb string) slog.Attr {
	return slog.String(KeyCommand, verb)
}

// Argument returns a slog.Attr for a command argument.
// PASS arguments are redacted so passwords never reach the logs.
func Argument(verb, arg string) slog.Attr {
	if verb == "PASS" && arg != "" {
		arg = "****"
	}
	return slog.String(KeyArgument, arg)
}

// ReplyCode returns a slog.Attr for the protocol reply code
func ReplyCode(code int) slog.Attr {
	return slog.Int(KeyReplyCode, code)
}

// Path returns a slog.Attr for a virtual path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Bytes returns a slog.Attr for a transfer byte count
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
