package core

import (
	"context"

	"github.com/dkeye/Pulse/internal/domain"
)

// IdentityVerifier turns a handshake credential into a user identity.
// Rejections wrap domain.ErrAuth.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*domain.User, error)
}

// PermissionChecker decides whether a user may join a room.
// A denial wraps domain.ErrPermission.
type PermissionChecker interface {
	Allow(ctx context.Context, user domain.UserID, room domain.RoomID) error
}
