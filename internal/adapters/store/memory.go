// Package store provides the MessageStore drivers: in-memory for
// development, badger for single-node durability, postgres for fleets
// that share one stream of record.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

// Memory keeps everything in maps. Sequences survive room reclaim but
// not a restart, which is fine for the dev loop it exists for.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]domain.Message
	lastSeq map[domain.RoomID]uint64
}

var _ core.MessageStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]domain.Message),
		lastSeq: make(map[domain.RoomID]uint64),
	}
}

func (m *Memory) Append(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[msg.ID] = msg
	if msg.Seq > m.lastSeq[msg.Room] {
		m.lastSeq[msg.Room] = msg.Seq
	}
	return nil
}

func (m *Memory) Find(ctx context.Context, id string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if msg, ok := m.byID[id]; ok {
		return msg, nil
	}
	return domain.Message{}, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
}

func (m *Memory) LastSequence(ctx context.Context, room domain.RoomID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeq[room], nil
}

func (m *Memory) Close() error { return nil }
