package ftp

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/dittoftp/pkg/auth"
	"github.com/marmos91/dittoftp/pkg/vfs"
)

// ReplyError pairs an FTP reply code with its message line. Handlers return
// it when a failure already has a well-defined wire representation.
type ReplyError struct {
	Code int
	Msg  string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Msg)
}

// NewReplyError creates a ReplyError.
func NewReplyError(code int, msg string) *ReplyError {
	return &ReplyError{Code: code, Msg: msg}
}

// replyForErr maps filesystem and auth failures onto the reply the client
// should see. Internal detail (real paths, the exact error string) stays in
// the logs; clients get the conventional short messages.
func replyForErr(err error) *ReplyError {
	var re *ReplyError
	if errors.As(err, &re) {
		return re
	}

	switch {
	case errors.Is(err, vfs.ErrPathEscapesRoot):
		return NewReplyError(StatusActionNotTaken, "No such file or directory.")
	case errors.Is(err, vfs.ErrReadOnly):
		return NewReplyError(StatusActionNotTaken, "Permission denied.")
	case errors.Is(err, vfs.ErrNotDirectory):
		return NewReplyError(StatusActionNotTaken, "Not a directory.")
	case errors.Is(err, auth.ErrAnonymousDisabled):
		return NewReplyError(StatusNotLoggedIn, "Anonymous access disabled.")
	case errors.Is(err, auth.ErrUnknownUser), errors.Is(err, auth.ErrBadPassword):
		return NewReplyError(StatusNotLoggedIn, "Login incorrect.")
	case os.IsNotExist(err):
		return NewReplyError(StatusActionNotTaken, "No such file or directory.")
	case os.IsPermission(err):
		return NewReplyError(StatusActionNotTaken, "Permission denied.")
	default:
		return NewReplyError(StatusActionNotTaken, "Requested action not taken.")
	}
}
