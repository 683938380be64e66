package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

type connEntry struct {
	User     *domain.User
	Conn     core.Conn
	Rooms    map[domain.RoomID]struct{}
	Cancel   context.CancelFunc
	LastSeen time.Time
}

// Registry owns the map of live connections. Everything outbound goes
// through it, so a connection that vanished is dropped in exactly one
// place.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*connEntry),
		now:   time.Now,
	}
}

// Open admits an authenticated connection and hands back its id.
func (r *Registry) Open(user *domain.User, conn core.Conn, cancel context.CancelFunc) core.ConnID {
	id := core.ConnID(uuid.NewString())
	r.mu.Lock()
	r.conns[id] = &connEntry{
		User:     user,
		Conn:     conn,
		Rooms:    make(map[domain.RoomID]struct{}),
		Cancel:   cancel,
		LastSeen: r.now(),
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user.ID)).Msg("connection opened")
	return id
}

// Close removes the connection, fires its cancel func and reports the
// rooms it was still tracked in so the caller can cascade. Idempotent.
func (r *Registry) Close(id core.ConnID) (*domain.User, []domain.RoomID, bool) {
	r.mu.Lock()
	e, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	rooms := lo.Keys(e.Rooms)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Int("rooms", len(rooms)).Msg("connection closed")
	return e.User, rooms, true
}

func (r *Registry) User(id core.ConnID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.User, true
	}
	return nil, false
}

func (r *Registry) Touch(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.LastSeen = r.now()
	}
}

// TrackRoom and UntrackRoom keep the per-connection room set aligned
// with actual membership. The set is what Disconnect cascades over.
func (r *Registry) TrackRoom(id core.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.Rooms[room] = struct{}{}
	}
}

func (r *Registry) UntrackRoom(id core.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		delete(e.Rooms, room)
	}
}

func (r *Registry) RoomsOf(id core.ConnID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return lo.Keys(e.Rooms)
	}
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers one frame best-effort. A slow or vanished connection
// loses the frame and never blocks the caller.
func (r *Registry) Send(id core.ConnID, frame core.Frame) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := e.Conn.TrySend(frame); err != nil {
		log.Debug().Str("module", "app.registry").Str("conn", string(id)).Err(err).Msg("frame dropped")
		return false
	}
	return true
}

// CloseAll drops every live connection, for shutdown. Cancel funcs fire
// first so the pumps stop pushing into closing transports.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := lo.Values(r.conns)
	r.conns = make(map[core.ConnID]*connEntry)
	r.mu.Unlock()
	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Conn.Close()
	}
	log.Info().Str("module", "app.registry").Int("count", len(entries)).Msg("all connections closed")
}

type PublishResult struct {
	SentTo  int
	Dropped []core.ConnID
}

// Fanout pushes one frame to a connection set, skipping except.
func (r *Registry) Fanout(conns []core.ConnID, except core.ConnID, frame core.Frame) PublishResult {
	res := PublishResult{}
	for _, id := range conns {
		if id == except {
			continue
		}
		if r.Send(id, frame) {
			res.SentTo++
		} else {
			res.Dropped = append(res.Dropped, id)
		}
	}
	return res
}

// Broadcast pushes one frame to every live connection on this instance.
func (r *Registry) Broadcast(frame core.Frame) PublishResult {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	r.mu.RUnlock()
	return r.Fanout(ids, "", frame)
}
