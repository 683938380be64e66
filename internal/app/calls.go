package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

type callSession struct {
	participants map[domain.UserID]time.Time
	lastActivity time.Time
}

func (s *callSession) roster() []domain.Participant {
	out := make([]domain.Participant, 0, len(s.participants))
	for user, at := range s.participants {
		out = append(out, domain.NewParticipant(user, at))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].User < out[j].User
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

var signalKinds = map[string]bool{"offer": true, "answer": true, "ice": true}

// Calls relays signaling payloads between call participants. Sessions
// are capped, tracked per room, and reclaimed when idle. The gateway
// never inspects the payloads, it only proves both ends are in the
// same call.
type Calls struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*callSession

	reg      *Registry
	rooms    *Rooms
	cluster  *Cluster
	perm     core.PermissionChecker
	capacity int
	idle     time.Duration
	now      func() time.Time
}

func NewCalls(reg *Registry, rooms *Rooms, cluster *Cluster, perm core.PermissionChecker, capacity int, idle time.Duration) *Calls {
	return &Calls{
		sessions: make(map[domain.RoomID]*callSession),
		reg:      reg,
		rooms:    rooms,
		cluster:  cluster,
		perm:     perm,
		capacity: capacity,
		idle:     idle,
		now:      time.Now,
	}
}

// Join seats the connection's user in the call and returns the roster.
// Re-joining is idempotent and never double-announces.
func (c *Calls) Join(ctx context.Context, conn core.ConnID, roomID domain.RoomID) ([]domain.Participant, error) {
	user, ok := c.reg.User(conn)
	if !ok {
		return nil, fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	if roomID.Kind() != domain.RoomCall {
		return nil, fmt.Errorf("%w: %q is not a call room", domain.ErrValidation, roomID)
	}
	if err := c.perm.Allow(ctx, user.ID, roomID); err != nil {
		return nil, err
	}

	now := c.now()
	c.mu.Lock()
	s, ok := c.sessions[roomID]
	if !ok {
		s = &callSession{participants: make(map[domain.UserID]time.Time)}
		c.sessions[roomID] = s
		log.Info().Str("module", "app.calls").Str("room", string(roomID)).Msg("call session opened")
	}
	_, already := s.participants[user.ID]
	if !already && len(s.participants) >= c.capacity {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: call %s capped at %d participants", domain.ErrRoomFull, roomID, c.capacity)
	}
	if !already {
		s.participants[user.ID] = now
	}
	s.lastActivity = now
	roster := s.roster()
	c.mu.Unlock()

	room, _ := c.rooms.Join(roomID, conn, user.ID)
	c.reg.TrackRoom(conn, roomID)
	if !already {
		if frame, ok := encode(protocol.NewCallJoined(roomID, user.ID, roster)); ok {
			c.reg.Fanout(room.Conns(), conn, frame)
		}
		payload, _ := json.Marshal(roster)
		c.cluster.Publish(ctx, subjectCalls, callEnvelope{
			Origin: c.cluster.Origin(), Kind: "join", Room: roomID, From: user.ID, Payload: payload, At: now,
		})
	}
	return roster, nil
}

// Relay passes one signaling payload to another participant. Both ends
// must hold a seat in the session, payloads to absent targets answer
// not found and payloads to live targets with no reachable connection
// are dropped.
func (c *Calls) Relay(ctx context.Context, conn core.ConnID, roomID domain.RoomID, to domain.UserID, kind string, payload json.RawMessage) error {
	user, ok := c.reg.User(conn)
	if !ok {
		return fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	if !signalKinds[kind] {
		return fmt.Errorf("%w: unknown signal kind %q", domain.ErrValidation, kind)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty signal payload", domain.ErrValidation)
	}

	now := c.now()
	c.mu.Lock()
	s, ok := c.sessions[roomID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active call %s", domain.ErrNotFound, roomID)
	}
	if _, in := s.participants[user.ID]; !in {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is not in call %s", domain.ErrNotFound, user.ID, roomID)
	}
	if _, in := s.participants[to]; !in {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is not in call %s", domain.ErrNotFound, to, roomID)
	}
	s.lastActivity = now
	c.mu.Unlock()

	if frame, ok := encode(protocol.NewCallSignal(roomID, user.ID, kind, payload)); ok {
		if room, live := c.rooms.Peek(roomID); live {
			c.reg.Fanout(room.UserConns(to), "", frame)
		}
	}
	c.cluster.Publish(ctx, subjectCalls, callEnvelope{
		Origin: c.cluster.Origin(), Kind: "signal", Room: roomID, From: user.ID, To: to, Signal: kind, Payload: payload, At: now,
	})
	return nil
}

// Leave gives up the user's seat. Signals addressed to them afterwards
// answer not found.
func (c *Calls) Leave(ctx context.Context, conn core.ConnID, roomID domain.RoomID) error {
	user, ok := c.reg.User(conn)
	if !ok {
		return fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	c.mu.Lock()
	s, ok := c.sessions[roomID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active call %s", domain.ErrNotFound, roomID)
	}
	if _, in := s.participants[user.ID]; !in {
		c.mu.Unlock()
		return fmt.Errorf("%w: not in call %s", domain.ErrNotFound, roomID)
	}
	c.dropSeatLocked(s, roomID, user.ID)
	c.mu.Unlock()

	c.rooms.Leave(roomID, conn)
	c.reg.UntrackRoom(conn, roomID)
	c.announceLeft(ctx, roomID, user.ID)
	return nil
}

// Disconnected handles a connection vanishing while seated. The seat
// survives as long as the user keeps another live connection in the
// call room.
func (c *Calls) Disconnected(ctx context.Context, user domain.UserID, roomID domain.RoomID) {
	if room, ok := c.rooms.Peek(roomID); ok && len(room.UserConns(user)) > 0 {
		return
	}
	c.mu.Lock()
	s, ok := c.sessions[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if _, in := s.participants[user]; !in {
		c.mu.Unlock()
		return
	}
	c.dropSeatLocked(s, roomID, user)
	c.mu.Unlock()
	c.announceLeft(ctx, roomID, user)
}

func (c *Calls) dropSeatLocked(s *callSession, roomID domain.RoomID, user domain.UserID) {
	delete(s.participants, user)
	s.lastActivity = c.now()
	if len(s.participants) == 0 {
		delete(c.sessions, roomID)
		log.Info().Str("module", "app.calls").Str("room", string(roomID)).Msg("call session closed")
	}
}

func (c *Calls) announceLeft(ctx context.Context, roomID domain.RoomID, user domain.UserID) {
	c.pushLocal(roomID, protocol.NewCallPeerLeft(roomID, user))
	c.cluster.Publish(ctx, subjectCalls, callEnvelope{
		Origin: c.cluster.Origin(), Kind: "leave", Room: roomID, From: user, At: c.now(),
	})
}

// Roster answers the current seats, empty when no session is live.
func (c *Calls) Roster(roomID domain.RoomID) []domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[roomID]; ok {
		return s.roster()
	}
	return nil
}

// Reap tears down sessions idle past the deadline, even seated ones
// whose participants stopped signaling without a leave.
func (c *Calls) Reap(ctx context.Context) {
	now := c.now()
	var ended []domain.RoomID
	c.mu.Lock()
	for id, s := range c.sessions {
		if now.Sub(s.lastActivity) <= c.idle {
			continue
		}
		delete(c.sessions, id)
		if len(s.participants) > 0 {
			ended = append(ended, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ended {
		log.Info().Str("module", "app.calls").Str("room", string(id)).Msg("idle call reclaimed")
		c.pushLocal(id, protocol.NewCallEnded(id, "idle"))
		c.cluster.Publish(ctx, subjectCalls, callEnvelope{
			Origin: c.cluster.Origin(), Kind: "ended", Room: id, At: now,
		})
	}
}

// RunReaper reaps on an interval until ctx ends.
func (c *Calls) RunReaper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Reap(ctx)
		}
	}
}

// ApplyRemote folds a peer instance's call event into the local mirror
// and pushes the matching frame to local connections. Events replay, so
// every branch is idempotent.
func (c *Calls) ApplyRemote(env callEnvelope) {
	switch env.Kind {
	case "join":
		var roster []domain.Participant
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &roster); err != nil {
				log.Warn().Str("module", "app.calls").Err(err).Msg("bad remote roster")
				return
			}
		}
		c.mu.Lock()
		s, ok := c.sessions[env.Room]
		if !ok {
			s = &callSession{participants: make(map[domain.UserID]time.Time)}
			c.sessions[env.Room] = s
		}
		for _, p := range roster {
			s.participants[p.User] = p.JoinedAt
		}
		s.lastActivity = c.now()
		c.mu.Unlock()
		c.pushLocal(env.Room, protocol.NewCallJoined(env.Room, env.From, roster))
	case "leave":
		c.mu.Lock()
		if s, ok := c.sessions[env.Room]; ok {
			delete(s.participants, env.From)
			s.lastActivity = c.now()
			if len(s.participants) == 0 {
				delete(c.sessions, env.Room)
			}
		}
		c.mu.Unlock()
		c.pushLocal(env.Room, protocol.NewCallPeerLeft(env.Room, env.From))
	case "signal":
		room, ok := c.rooms.Peek(env.Room)
		if !ok {
			return
		}
		if frame, live := encode(protocol.NewCallSignal(env.Room, env.From, env.Signal, env.Payload)); live {
			c.reg.Fanout(room.UserConns(env.To), "", frame)
		}
	case "ended":
		c.mu.Lock()
		delete(c.sessions, env.Room)
		c.mu.Unlock()
		c.pushLocal(env.Room, protocol.NewCallEnded(env.Room, "idle"))
	}
}

func (c *Calls) pushLocal(roomID domain.RoomID, v any) {
	room, ok := c.rooms.Peek(roomID)
	if !ok {
		return
	}
	if frame, live := encode(v); live {
		c.reg.Fanout(room.Conns(), "", frame)
	}
}
