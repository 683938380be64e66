package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Pulse/internal/adapters/store"
	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

// fakeConn records every frame pushed to it, optionally refusing them
// like a saturated socket buffer would.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	reject bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject {
		return errors.New("buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// typed returns the decoded frames matching one wire type.
func (c *fakeConn) typed(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		if json.Unmarshal(f, &m) != nil {
			continue
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// newNode wires one gateway instance the way cmd/server does. Tests
// reach into unexported knobs afterwards when they need shorter
// windows or tighter caps.
func newNode(bus core.Bus, name string, peers []string, st core.MessageStore) *Gateway {
	clu := NewCluster(bus, name, 2, time.Millisecond)
	reg := NewRegistry()
	rooms := NewRooms(time.Minute)
	presence := NewPresence(reg, clu, 30*time.Second, 15*time.Second)
	fan := NewFanout(reg, rooms, st, clu, NewShard(name, peers), 1024)
	perm := OpenPolicy{}
	calls := NewCalls(reg, rooms, clu, perm, 4, time.Minute)
	typing := NewTyping(reg, rooms, clu, 40*time.Millisecond)
	return &Gateway{
		Registry: reg,
		Rooms:    rooms,
		Presence: presence,
		Fanout:   fan,
		Calls:    calls,
		Typing:   typing,
		Perm:     perm,
		Cluster:  clu,
	}
}

func newSingleNode() *Gateway {
	return newNode(nil, "a", []string{"a"}, store.NewMemory())
}

func connect(t *testing.T, gw *Gateway, user domain.UserID) (core.ConnID, *fakeConn) {
	t.Helper()
	u, err := domain.NewUser(user, "")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	conn := &fakeConn{}
	id := gw.Connect(context.Background(), u, conn, nil)
	return id, conn
}

func joinRoom(t *testing.T, gw *Gateway, conn core.ConnID, room domain.RoomID) {
	t.Helper()
	if _, err := gw.JoinRoom(context.Background(), conn, room); err != nil {
		t.Fatalf("join %s: %v", room, err)
	}
}
