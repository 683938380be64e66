// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

type User struct {
	ID   UserID `json:"id"`
	Name string `json:"name,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// The id comes from the verified credential, never minted here.
func NewUser(id UserID, name string) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if len(name) > MaxUsernameLen {
		name = name[:MaxUsernameLen]
	}
	return &User{ID: id, Name: name}, nil
}
