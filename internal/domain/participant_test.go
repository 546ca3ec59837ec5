package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"", RoleUser, false},
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{"root", "", true},
		{"Admin", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Len(t, string(u.ID), MaxUserIDLen)

	other, err := NewUser("alice")
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, other.ID)

	_, err = NewUser("")
	assert.ErrorIs(t, err, ErrUsernameEmpty)
	_, err = NewUser(strings.Repeat("x", MaxUsernameLen+1))
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}
