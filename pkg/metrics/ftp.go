package metrics

import (
	"time"
)

// FTPMetrics provides observability for the FTP engine.
//
// Implementations collect metrics about connection lifecycle, authentication,
// commands, and data transfers. This interface is optional - pass nil to
// disable metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics := prometheus.NewFTPMetrics()
//	srv := ftp.NewServer(cfg, authz, feed, metrics)
//
//	// Without metrics (pass nil for zero overhead)
//	srv := ftp.NewServer(cfg, authz, feed, nil)
type FTPMetrics interface {
	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionRejected increments the rejected connections counter.
	//
	// Parameters:
	//   - reason: why the connection was refused (e.g., "max_connections")
	RecordConnectionRejected(reason string)

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// SetActiveSessions updates the current session count gauge.
	SetActiveSessions(count int)

	// RecordAuth records an authentication attempt.
	//
	// Parameters:
	//   - outcome: "success" or "failure"
	//   - anonymous: whether the attempt used the anonymous account
	RecordAuth(outcome string, anonymous bool)

	// RecordCommand records a processed control command with its reply code.
	//
	// Parameters:
	//   - verb: the FTP verb (e.g., "RETR", "LIST")
	//   - code: the three-digit reply code sent to the client
	RecordCommand(verb string, code int)

	// RecordTransfer records a finished data transfer.
	//
	// Parameters:
	//   - direction: "download", "upload" or "listing"
	//   - outcome: "complete", "failed" or "aborted"
	//   - bytes: payload bytes moved over the data channel
	//   - duration: time from data connection open to close
	RecordTransfer(direction string, outcome string, bytes int64, duration time.Duration)
}
