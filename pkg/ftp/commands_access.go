package ftp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marmos91/dittoftp/pkg/auth"
)

func sortedVerbs(verbs []string) []string {
	sort.Strings(verbs)
	return verbs
}

func (s *Session) handleUSER(arg string) {
	username := strings.TrimSpace(arg)

	switch s.State() {
	case StateAuthenticated:
		s.reply(StatusNotLoggedIn, "Can't change to another user.")
		return

	case StateUnauthenticated, StateAwaitingPassword:
		// A second USER restarts the handshake.
		if auth.IsAnonymous(username) {
			account, err := s.server.authz.AnonymousAccount(username)
			if err != nil {
				s.authFailed(username, err)
				return
			}
			// Anonymous needs no password; log in directly.
			s.login(account)
			return
		}

		s.pendingUser = username
		s.setState(StateAwaitingPassword)
		s.reply(StatusNeedPassword, fmt.Sprintf("Password required for %s.", username))
	}
}

func (s *Session) handlePASS(arg string) {
	switch s.State() {
	case StateAuthenticated:
		s.reply(StatusLoggedIn, "Already logged in.")

	case StateAwaitingPassword:
		account, err := s.server.authz.Authenticate(s.pendingUser, arg)
		if err != nil {
			s.authFailed(s.pendingUser, err)
			return
		}
		s.login(account)

	default:
		s.reply(StatusBadSequence, "Login with USER first.")
	}
}

func (s *Session) handleQUIT(_ string) {
	s.reply(StatusClosing, "Goodbye.")
	s.quitting = true
}

func (s *Session) handleNOOP(_ string) {
	s.reply(StatusOK, "NOOP command successful.")
}

func (s *Session) handleSYST(_ string) {
	s.reply(StatusSystemType, "UNIX Type: L8")
}

func (s *Session) handleFEAT(_ string) {
	s.replyMulti(StatusSystemStatus, "Features:", []string{
		"SIZE",
		"MDTM",
		"PASV",
		"UTF8",
	}, "End.")
}

func (s *Session) handleHELP(_ string) {
	verbs := make([]string, 0, len(commands))
	for verb := range commands {
		verbs = append(verbs, verb)
	}
	s.reply(StatusHelp, "Recognized commands: "+strings.Join(sortedVerbs(verbs), " "))
}

// handleSTAT reports server status before login and file status after.
//
// Without an argument it is available in every state so operators can probe a
// running server (the status CLI command relies on this). With an argument it
// behaves like a LIST over the control channel and requires login.
func (s *Session) handleSTAT(arg string) {
	if arg == "" {
		st := s.server.Status()
		s.replyMulti(StatusSystemStatus, "dittoftp server status:", []string{
			fmt.Sprintf("State: %s", st.State),
			fmt.Sprintf("Active sessions: %d", st.ActiveSessions),
			fmt.Sprintf("Session state: %s", s.State()),
		}, "End of status.")
		return
	}

	if s.State() != StateAuthenticated {
		s.reply(StatusNotLoggedIn, "Please login with USER and PASS.")
		return
	}

	stream, err := s.gateway.List(arg)
	if err != nil {
		// STAT of a single file reports just that entry.
		info, statErr := s.gateway.Stat(arg)
		if statErr != nil {
			re := replyForErr(statErr)
			s.reply(re.Code, re.Msg)
			return
		}
		s.reply(StatusFileStatus, fmt.Sprintf("%s %d", info.Name(), info.Size()))
		return
	}
	defer stream.Close()

	lines, err := collectListing(stream, formatLongEntry)
	if err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	s.replyMulti(StatusFileStatus, "Status follows:", lines, "End of status.")
}

func (s *Session) handlePWD(_ string) {
	s.reply(StatusPathCreated, fmt.Sprintf("%q is the current directory.", s.gateway.WorkingDir()))
}

func (s *Session) handleCWD(arg string) {
	if err := s.gateway.ChangeDir(arg); err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	s.reply(StatusActionDone, "Directory changed.")
}

func (s *Session) handleCDUP(_ string) {
	s.handleCWD("..")
}

func (s *Session) handleTYPE(arg string) {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "A":
		s.transferType = "A"
		s.reply(StatusOK, "Type set to A.")
	case "I":
		s.transferType = "I"
		s.reply(StatusOK, "Type set to I.")
	default:
		s.reply(StatusBadParameter, "Type not supported.")
	}
}

// handleMODE accepts stream mode only; block and compressed modes are relics.
func (s *Session) handleMODE(arg string) {
	if strings.ToUpper(strings.TrimSpace(arg)) == "S" {
		s.reply(StatusOK, "Mode set to S.")
		return
	}
	s.reply(StatusBadParameter, "Mode not supported.")
}

// handleSTRU accepts file structure only.
func (s *Session) handleSTRU(arg string) {
	if strings.ToUpper(strings.TrimSpace(arg)) == "F" {
		s.reply(StatusOK, "Structure set to F.")
		return
	}
	s.reply(StatusBadParameter, "Structure not supported.")
}

// handleABOR cuts a running transfer by closing its data connection. The
// transfer goroutine sends its 426 before the 226 here, the order RFC 959
// prescribes.
func (s *Session) handleABOR(_ string) {
	if s.abortTransfer() {
		s.reply(StatusTransferDone, "ABOR command successful; transfer aborted.")
		return
	}
	s.reply(StatusTransferDone, "No transfer to abort.")
}
