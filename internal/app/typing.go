package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

type typingKey struct {
	conn core.ConnID
	room domain.RoomID
}

type typingState struct {
	user  domain.UserID
	gen   uint64
	timer *time.Timer
}

// Typing tracks transient typing indicators per connection and room.
// Indicators clear themselves after the configured window unless
// renewed, and never touch the store or the sequencer.
type Typing struct {
	mu     sync.Mutex
	active map[typingKey]*typingState

	reg     *Registry
	rooms   *Rooms
	cluster *Cluster
	clear   time.Duration
}

func NewTyping(reg *Registry, rooms *Rooms, cluster *Cluster, clear time.Duration) *Typing {
	return &Typing{
		active:  make(map[typingKey]*typingState),
		reg:     reg,
		rooms:   rooms,
		cluster: cluster,
		clear:   clear,
	}
}

// Start raises the indicator and arms the auto-clear. Renewals re-arm
// without a second announce.
func (t *Typing) Start(ctx context.Context, conn core.ConnID, roomID domain.RoomID) error {
	user, ok := t.reg.User(conn)
	if !ok {
		return fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	room, ok := t.rooms.Peek(roomID)
	if !ok || !room.Has(conn) {
		return fmt.Errorf("%w: not a member of %s", domain.ErrPermission, roomID)
	}

	key := typingKey{conn: conn, room: roomID}
	t.mu.Lock()
	st, renewing := t.active[key]
	if renewing {
		st.gen++
		st.timer.Stop()
	} else {
		st = &typingState{user: user.ID}
		t.active[key] = st
	}
	gen := st.gen
	st.timer = time.AfterFunc(t.clear, func() { t.expire(key, gen) })
	t.mu.Unlock()

	if !renewing {
		t.broadcast(ctx, roomID, conn, protocol.NewTypingActive(roomID, user.ID))
	}
	return nil
}

// Stop lowers the indicator early. Stopping an inactive one is a no-op.
func (t *Typing) Stop(ctx context.Context, conn core.ConnID, roomID domain.RoomID) {
	key := typingKey{conn: conn, room: roomID}
	t.mu.Lock()
	st, ok := t.active[key]
	if ok {
		st.timer.Stop()
		delete(t.active, key)
	}
	t.mu.Unlock()
	if ok {
		t.broadcast(ctx, roomID, conn, protocol.NewTypingInactive(roomID, st.user))
	}
}

// Left clears the indicator quietly when the connection leaves the
// room, the departure already tells viewers everything.
func (t *Typing) Left(conn core.ConnID, roomID domain.RoomID) {
	key := typingKey{conn: conn, room: roomID}
	t.mu.Lock()
	if st, ok := t.active[key]; ok {
		st.timer.Stop()
		delete(t.active, key)
	}
	t.mu.Unlock()
}

// Disconnected cancels every indicator the connection held and lowers
// them for viewers.
func (t *Typing) Disconnected(ctx context.Context, conn core.ConnID) {
	type lowered struct {
		room domain.RoomID
		user domain.UserID
	}
	t.mu.Lock()
	var cleared []lowered
	for key, st := range t.active {
		if key.conn != conn {
			continue
		}
		st.timer.Stop()
		delete(t.active, key)
		cleared = append(cleared, lowered{room: key.room, user: st.user})
	}
	t.mu.Unlock()

	for _, l := range cleared {
		t.broadcast(ctx, l.room, conn, protocol.NewTypingInactive(l.room, l.user))
	}
}

// expire fires from the timer. The generation check keeps a stale timer
// from clearing an indicator that was renewed meanwhile.
func (t *Typing) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	st, ok := t.active[key]
	if !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	t.mu.Unlock()
	t.broadcast(context.Background(), key.room, key.conn, protocol.NewTypingInactive(key.room, st.user))
}

func (t *Typing) broadcast(ctx context.Context, roomID domain.RoomID, except core.ConnID, v any) {
	frame, ok := encode(v)
	if !ok {
		return
	}
	if room, live := t.rooms.Peek(roomID); live {
		t.reg.Fanout(room.Conns(), except, frame)
	}
	t.cluster.PublishRoomFrame(ctx, roomID, 0, frame)
}
