// Package auth decides who may log in to the FTP engine and with which rights.
//
// Two kinds of principals exist: the anonymous account ("anonymous" or "ftp",
// no password check) and named accounts backed by bcrypt password hashes from
// the configuration. The engine asks the Authorizer one question per login
// attempt and stores the returned Account on the session.
package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Anonymous login names accepted when anonymous access is enabled.
const (
	AnonymousUser = "anonymous"
	FTPUser       = "ftp"
)

var (
	// ErrUnknownUser is returned when the username has no account.
	ErrUnknownUser = errors.New("auth: unknown user")

	// ErrBadPassword is returned when the password does not match.
	ErrBadPassword = errors.New("auth: invalid password")

	// ErrAnonymousDisabled is returned for anonymous logins when the server
	// is configured to reject them.
	ErrAnonymousDisabled = errors.New("auth: anonymous access disabled")
)

// Account is the identity attached to an authenticated session.
type Account struct {
	// Username is the login name as presented by the client.
	Username string

	// Anonymous is true for the anonymous/ftp account.
	Anonymous bool

	// ReadOnly restricts the session to read operations.
	ReadOnly bool
}

// Authorizer validates credentials against the configured account set.
// Safe for concurrent use; the account table is fixed after construction
// except for AddUser, which is guarded by a mutex for test convenience.
type Authorizer struct {
	mu             sync.RWMutex
	allowAnonymous bool
	anonymousWrite bool
	users          map[string]userEntry
}

type userEntry struct {
	passwordHash string
	readOnly     bool
}

// NewAuthorizer creates an Authorizer.
//
// Parameters:
//   - allowAnonymous: accept logins as "anonymous"/"ftp" without a password check
//   - anonymousWrite: grant write access to anonymous sessions (default read-only)
func NewAuthorizer(allowAnonymous, anonymousWrite bool) *Authorizer {
	return &Authorizer{
		allowAnonymous: allowAnonymous,
		anonymousWrite: anonymousWrite,
		users:          make(map[string]userEntry),
	}
}

// AddUser registers a named account with a bcrypt password hash.
// Returns an error if the hash is not a valid bcrypt hash.
func (a *Authorizer) AddUser(username, passwordHash string, readOnly bool) error {
	if username == "" {
		return errors.New("auth: empty username")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return errors.New("auth: password hash is not a valid bcrypt hash")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = userEntry{passwordHash: passwordHash, readOnly: readOnly}
	return nil
}

// IsAnonymous reports whether the username names the anonymous account.
func IsAnonymous(username string) bool {
	return username == AnonymousUser || username == FTPUser
}

// AnonymousAllowed reports whether anonymous logins are accepted.
func (a *Authorizer) AnonymousAllowed() bool {
	return a.allowAnonymous
}

// AnonymousAccount returns the Account for an anonymous login, or an error
// when anonymous access is disabled.
func (a *Authorizer) AnonymousAccount(username string) (Account, error) {
	if !a.allowAnonymous {
		return Account{}, ErrAnonymousDisabled
	}
	return Account{
		Username:  username,
		Anonymous: true,
		ReadOnly:  !a.anonymousWrite,
	}, nil
}

// Authenticate validates a named account's password.
//
// Returns ErrUnknownUser for missing accounts and ErrBadPassword for a hash
// mismatch. Callers should present both as the same generic login failure to
// the client so usernames cannot be probed.
func (a *Authorizer) Authenticate(username, password string) (Account, error) {
	a.mu.RLock()
	entry, ok := a.users[username]
	a.mu.RUnlock()

	if !ok {
		return Account{}, ErrUnknownUser
	}

	if err := bcrypt.CompareHashAndPassword([]byte(entry.passwordHash), []byte(password)); err != nil {
		return Account{}, ErrBadPassword
	}

	return Account{
		Username: username,
		ReadOnly: entry.readOnly,
	}, nil
}

// HashPassword produces a bcrypt hash suitable for UserConfig.PasswordHash.
// Used by the init command when creating accounts interactively.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
