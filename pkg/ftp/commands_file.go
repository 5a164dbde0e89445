package ftp

import (
	"fmt"

	"github.com/marmos91/dittoftp/internal/logger"
)

// mdtmFormat is the RFC 3659 time-val layout used by MDTM replies, always UTC.
const mdtmFormat = "20060102150405"

func (s *Session) handleSIZE(path string) {
	info, err := s.gateway.Stat(path)
	if err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	if info.IsDir() {
		s.reply(StatusActionNotTaken, "Not a regular file.")
		return
	}
	s.reply(StatusFileStatus, fmt.Sprintf("%d", info.Size()))
}

func (s *Session) handleMDTM(path string) {
	info, err := s.gateway.Stat(path)
	if err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	s.reply(StatusFileStatus, info.ModTime().UTC().Format(mdtmFormat))
}

func (s *Session) handleDELE(path string) {
	if err := s.gateway.Delete(path); err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	logger.Info("File deleted",
		logger.SessionID(s.id), logger.User(s.User()), logger.Path(path))
	s.reply(StatusActionDone, "File deleted.")
}

func (s *Session) handleMKD(path string) {
	if err := s.gateway.MakeDir(path); err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	s.reply(StatusPathCreated, fmt.Sprintf("%q created.", path))
}

func (s *Session) handleRMD(path string) {
	if err := s.gateway.RemoveDir(path); err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	s.reply(StatusActionDone, "Directory removed.")
}

func (s *Session) handleRNFR(path string) {
	if _, err := s.gateway.Stat(path); err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	s.renameFrom = path
	s.reply(StatusPendingAction, "Ready for RNTO.")
}

func (s *Session) handleRNTO(path string) {
	if s.renameFrom == "" {
		s.reply(StatusBadSequence, "RNFR required first.")
		return
	}

	from := s.renameFrom
	s.renameFrom = ""

	if err := s.gateway.Rename(from, path); err != nil {
		re := replyForErr(err)
		s.reply(re.Code, re.Msg)
		return
	}
	logger.Info("File renamed",
		logger.SessionID(s.id), logger.User(s.User()),
		logger.KeyOldPath, from, logger.KeyNewPath, path)
	s.reply(StatusActionDone, "Rename successful.")
}
