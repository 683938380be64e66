package core

import (
	"context"

	"github.com/dkeye/Pulse/internal/domain"
)

// MessageStore is the append-only record of sequenced room streams.
// Implementations map their own failures onto domain.ErrStore and
// missing records onto domain.ErrNotFound.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) error
	Find(ctx context.Context, id string) (domain.Message, error)
	LastSequence(ctx context.Context, room domain.RoomID) (uint64, error)
	Close() error
}
