package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Anonymous Account Tests
// ============================================================================

func TestIsAnonymous(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAnonymous("anonymous"))
	assert.True(t, IsAnonymous("ftp"))
	assert.False(t, IsAnonymous("alice"))
	assert.False(t, IsAnonymous("Anonymous"))
}

func TestAnonymousAccount_Allowed(t *testing.T) {
	t.Parallel()

	a := NewAuthorizer(true, false)

	account, err := a.AnonymousAccount("anonymous")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", account.Username)
	assert.True(t, account.Anonymous)
	assert.True(t, account.ReadOnly)
}

func TestAnonymousAccount_WriteEnabled(t *testing.T) {
	t.Parallel()

	a := NewAuthorizer(true, true)

	account, err := a.AnonymousAccount("ftp")
	require.NoError(t, err)
	assert.False(t, account.ReadOnly)
}

func TestAnonymousAccount_Disabled(t *testing.T) {
	t.Parallel()

	a := NewAuthorizer(false, false)

	_, err := a.AnonymousAccount("anonymous")
	assert.ErrorIs(t, err, ErrAnonymousDisabled)
}

// ============================================================================
// Named Account Tests
// ============================================================================

func TestAuthenticate_Success(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("secret")
	require.NoError(t, err)

	a := NewAuthorizer(false, false)
	require.NoError(t, a.AddUser("alice", hash, true))

	account, err := a.Authenticate("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.False(t, account.Anonymous)
	assert.True(t, account.ReadOnly)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("secret")
	require.NoError(t, err)

	a := NewAuthorizer(false, false)
	require.NoError(t, a.AddUser("alice", hash, false))

	_, err = a.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrBadPassword)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	t.Parallel()

	a := NewAuthorizer(false, false)

	_, err := a.Authenticate("bob", "whatever")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestAddUser_RejectsBadHash(t *testing.T) {
	t.Parallel()

	a := NewAuthorizer(false, false)

	assert.Error(t, a.AddUser("alice", "plaintext-password", false))
	assert.Error(t, a.AddUser("", "$2a$10$abcdefghijklmnopqrstuv", false))
}
