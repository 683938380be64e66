package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

type RoomInfo struct {
	ID      domain.RoomID `json:"id"`
	Members int           `json:"members"`
}

// Rooms owns the live room table. Membership mutations and reclaim both
// take the manager lock, so a reclaim can never race a join or a
// checked-out send.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[domain.RoomID]*core.Room
	window time.Duration
	now    func() time.Time
}

func NewRooms(dedupWindow time.Duration) *Rooms {
	return &Rooms{
		rooms:  make(map[domain.RoomID]*core.Room),
		window: dedupWindow,
		now:    time.Now,
	}
}

// Join adds the connection to the room, creating it on first use.
// The second return is false when the connection was already a member.
func (m *Rooms) Join(id domain.RoomID, conn core.ConnID, user domain.UserID) (*core.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = core.NewRoom(id, m.window)
		m.rooms[id] = room
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	}
	added := room.Add(conn, user)
	return room, added
}

// Leave removes the connection and reclaims the room once nothing
// references it anymore.
func (m *Rooms) Leave(id domain.RoomID, conn core.ConnID) (domain.UserID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return "", false
	}
	user, removed := room.Remove(conn)
	m.reapLocked(id, room)
	return user, removed
}

func (m *Rooms) Peek(id domain.RoomID) (*core.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	return room, ok
}

// Checkout pins an existing room for a send in flight. Callers must
// Release it, pinned rooms survive until the send commits.
func (m *Rooms) Checkout(id domain.RoomID) (*core.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	room.AddPending()
	return room, true
}

// Acquire is Checkout for the owning instance: the room is created if
// absent, because an owner sequences streams it has no members of.
func (m *Rooms) Acquire(id domain.RoomID) *core.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = core.NewRoom(id, m.window)
		m.rooms[id] = room
	}
	room.AddPending()
	return room
}

func (m *Rooms) Release(room *core.Room) {
	room.DonePending()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(room.ID(), room)
}

// reapLocked drops the room when no member, no in-flight send and no
// live dedup entry references it. The sequence continues from the store
// if the room ever comes back.
func (m *Rooms) reapLocked(id domain.RoomID, room *core.Room) {
	if current, ok := m.rooms[id]; !ok || current != room {
		return
	}
	if !room.Idle() || !room.StreamIdle(m.now()) {
		return
	}
	delete(m.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room reclaimed")
}

// Sweep reclaims rooms that went quiet without a trailing leave, such
// as an owner-only room whose dedup window has drained.
func (m *Rooms) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.rooms {
		m.reapLocked(id, room)
	}
}

// RunJanitor sweeps on an interval until ctx ends.
func (m *Rooms) RunJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Rooms) List() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, room := range m.rooms {
		out = append(out, RoomInfo{ID: id, Members: room.MemberCount()})
	}
	return out
}
