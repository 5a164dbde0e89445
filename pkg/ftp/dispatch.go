package ftp

import (
	"strings"

	"github.com/marmos91/dittoftp/internal/logger"
	"github.com/marmos91/dittoftp/pkg/events"
)

// command describes one dispatchable verb.
type command struct {
	handler      func(*Session, string)
	requiresAuth bool
	requiresArg  bool
}

// commands is the verb table. Aliases (XPWD, XCWD, ...) map to the same
// handlers as their modern spellings. Populated in init because handleHELP
// walks the table; a composite literal would form an initialization cycle.
var commands map[string]command

func init() {
	commands = map[string]command{
		// Access control
		"USER": {handler: (*Session).handleUSER, requiresArg: true},
		"PASS": {handler: (*Session).handlePASS},
		"QUIT": {handler: (*Session).handleQUIT},

		// Informational, allowed before login
		"NOOP": {handler: (*Session).handleNOOP},
		"SYST": {handler: (*Session).handleSYST},
		"FEAT": {handler: (*Session).handleFEAT},
		"HELP": {handler: (*Session).handleHELP},
		"STAT": {handler: (*Session).handleSTAT},

		// Navigation
		"PWD":  {handler: (*Session).handlePWD, requiresAuth: true},
		"XPWD": {handler: (*Session).handlePWD, requiresAuth: true},
		"CWD":  {handler: (*Session).handleCWD, requiresAuth: true, requiresArg: true},
		"XCWD": {handler: (*Session).handleCWD, requiresAuth: true, requiresArg: true},
		"CDUP": {handler: (*Session).handleCDUP, requiresAuth: true},
		"XCUP": {handler: (*Session).handleCDUP, requiresAuth: true},

		// Transfer parameters
		"TYPE": {handler: (*Session).handleTYPE, requiresAuth: true, requiresArg: true},
		"MODE": {handler: (*Session).handleMODE, requiresAuth: true, requiresArg: true},
		"STRU": {handler: (*Session).handleSTRU, requiresAuth: true, requiresArg: true},
		"PASV": {handler: (*Session).handlePASV, requiresAuth: true},
		"PORT": {handler: (*Session).handlePORT, requiresAuth: true, requiresArg: true},

		// Transfers
		"RETR": {handler: (*Session).handleRETR, requiresAuth: true, requiresArg: true},
		"STOR": {handler: (*Session).handleSTOR, requiresAuth: true, requiresArg: true},
		"APPE": {handler: (*Session).handleAPPE, requiresAuth: true, requiresArg: true},
		"LIST": {handler: (*Session).handleLIST, requiresAuth: true},
		"NLST": {handler: (*Session).handleNLST, requiresAuth: true},
		"ABOR": {handler: (*Session).handleABOR, requiresAuth: true},

		// File management
		"SIZE": {handler: (*Session).handleSIZE, requiresAuth: true, requiresArg: true},
		"MDTM": {handler: (*Session).handleMDTM, requiresAuth: true, requiresArg: true},
		"DELE": {handler: (*Session).handleDELE, requiresAuth: true, requiresArg: true},
		"MKD":  {handler: (*Session).handleMKD, requiresAuth: true, requiresArg: true},
		"XMKD": {handler: (*Session).handleMKD, requiresAuth: true, requiresArg: true},
		"RMD":  {handler: (*Session).handleRMD, requiresAuth: true, requiresArg: true},
		"XRMD": {handler: (*Session).handleRMD, requiresAuth: true, requiresArg: true},
		"RNFR": {handler: (*Session).handleRNFR, requiresAuth: true, requiresArg: true},
		"RNTO": {handler: (*Session).handleRNTO, requiresAuth: true, requiresArg: true},
	}
}

// handleCommand parses one control line and routes it through the verb table.
//
// The verb is upcased for lookup; the argument keeps its raw bytes so
// filenames in any configured encoding pass through untouched.
func (s *Session) handleCommand(line string) {
	if line == "" {
		s.reply(StatusSyntaxError, "Syntax error, command unrecognized.")
		return
	}

	verb, arg, _ := strings.Cut(line, " ")
	verb = strings.ToUpper(verb)

	logger.Debug("Command received",
		logger.SessionID(s.id), logger.Command(verb), logger.Argument(verb, arg))

	cmd, ok := commands[verb]
	if !ok {
		s.reply(StatusNotImplemented, "Command not implemented.")
		s.afterCommand(verb)
		return
	}

	// While a transfer runs on its goroutine only ABOR and STAT go through;
	// everything else would race the transfer for session state.
	if s.transferInProgress() && verb != "ABOR" && verb != "STAT" {
		s.reply(StatusBadSequence, "Transfer in progress, please ABOR or wait.")
		s.afterCommand(verb)
		return
	}

	switch {
	case cmd.requiresAuth && s.State() != StateAuthenticated:
		s.reply(StatusNotLoggedIn, "Please login with USER and PASS.")
	case cmd.requiresArg && arg == "":
		s.reply(StatusBadArguments, "Syntax error in parameters or arguments.")
	default:
		cmd.handler(s, arg)
	}

	s.afterCommand(verb)
}

// afterCommand emits the per-command observability signals with the reply
// code the handler actually sent.
func (s *Session) afterCommand(verb string) {
	s.writeMu.Lock()
	code := s.lastReplyCode
	s.writeMu.Unlock()

	s.server.recordCommand(verb, code)
	s.server.publishSession(s, events.SessionCommand, verb, code)
}
