package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	req := require.New(t)

	u, err := NewUser("alice", "Alice")
	req.NoError(err)
	req.Equal(UserID("alice"), u.ID)
	req.Equal("Alice", u.Name)

	_, err = NewUser("", "Alice")
	req.ErrorIs(err, ErrUserIDEmpty)

	_, err = NewUser(UserID(strings.Repeat("x", MaxUserIDLen+1)), "")
	req.ErrorIs(err, ErrUserIDTooLong)

	// an oversized display name truncates instead of failing the login
	long, err := NewUser("alice", strings.Repeat("n", MaxUsernameLen+10))
	req.NoError(err)
	req.Len(long.Name, MaxUsernameLen)
}
