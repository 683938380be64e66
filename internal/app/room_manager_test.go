package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pulse/internal/domain"
)

func TestRoomsJoinCreatesAndReportsAdded(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(time.Minute)

	room, added := rooms.Join("channel:dev", "c1", "alice")
	req.True(added)
	req.Equal(domain.RoomID("channel:dev"), room.ID())

	again, added := rooms.Join("channel:dev", "c1", "alice")
	req.False(added, "re-joining is a no-op")
	req.Same(room, again)

	_, added = rooms.Join("channel:dev", "c2", "bob")
	req.True(added)
	req.Equal(2, room.MemberCount())
}

func TestRoomsReclaimOnLastLeave(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(time.Minute)
	rooms.Join("channel:dev", "c1", "alice")
	rooms.Join("channel:dev", "c2", "bob")

	user, removed := rooms.Leave("channel:dev", "c1")
	req.True(removed)
	req.Equal(domain.UserID("alice"), user)
	_, ok := rooms.Peek("channel:dev")
	req.True(ok, "room with members stays")

	rooms.Leave("channel:dev", "c2")
	_, ok = rooms.Peek("channel:dev")
	req.False(ok, "empty room is reclaimed")
}

func TestRoomsCheckoutPinsAgainstReclaim(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(time.Minute)
	rooms.Join("channel:dev", "c1", "alice")

	room, ok := rooms.Checkout("channel:dev")
	req.True(ok)

	rooms.Leave("channel:dev", "c1")
	_, ok = rooms.Peek("channel:dev")
	req.True(ok, "a room with an in-flight send must survive the last leave")

	rooms.Release(room)
	_, ok = rooms.Peek("channel:dev")
	req.False(ok)

	_, ok = rooms.Checkout("channel:dev")
	req.False(ok, "checkout never creates rooms")
}

func TestRoomsSweepWaitsForDedupWindow(t *testing.T) {
	req := require.New(t)
	base := time.Now()
	clock := base
	rooms := NewRooms(time.Minute)
	rooms.now = func() time.Time { return clock }

	room := rooms.Acquire("channel:dev")
	_, _, err := room.Accept(domain.Message{ID: "m1", Room: "channel:dev", Key: "k1", Created: base},
		func(domain.Message) error { return nil })
	req.NoError(err)
	rooms.Release(room)

	_, ok := rooms.Peek("channel:dev")
	req.True(ok, "live dedup entries keep the room")

	clock = base.Add(30 * time.Second)
	rooms.Sweep()
	_, ok = rooms.Peek("channel:dev")
	req.True(ok)

	clock = base.Add(61 * time.Second)
	rooms.Sweep()
	_, ok = rooms.Peek("channel:dev")
	req.False(ok, "drained window releases the room")
}

func TestRoomsAcquireCreatesForOwner(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(time.Minute)

	room := rooms.Acquire("channel:remote")
	req.NotNil(room)
	req.Zero(room.MemberCount())

	infos := rooms.List()
	req.Len(infos, 1)
	req.Equal(domain.RoomID("channel:remote"), infos[0].ID)

	rooms.Release(room)
	_, ok := rooms.Peek("channel:remote")
	req.False(ok)
}

func TestRoomsLeaveUnknownRoom(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(time.Minute)
	user, removed := rooms.Leave("channel:ghost", "c1")
	req.False(removed)
	req.Empty(user)
}

func TestRoomsListCounts(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(time.Minute)
	rooms.Join("channel:dev", "c1", "alice")
	rooms.Join("channel:dev", "c2", "bob")
	rooms.Join("conversation:a|b", "c3", "carol")

	byID := map[domain.RoomID]int{}
	for _, info := range rooms.List() {
		byID[info.ID] = info.Members
	}
	req.Equal(map[domain.RoomID]int{"channel:dev": 2, "conversation:a|b": 1}, byID)
}
