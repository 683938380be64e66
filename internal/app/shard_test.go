package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pulse/internal/domain"
)

func TestShardPeersAgreeOnOwner(t *testing.T) {
	req := require.New(t)
	peers := []string{"a", "b", "c"}
	a := NewShard("a", peers)
	b := NewShard("b", peers)
	c := NewShard("c", peers)

	for i := 0; i < 100; i++ {
		room := domain.RoomID(fmt.Sprintf("channel:room-%d", i))
		owner := a.Owner(room)
		req.Equal(owner, b.Owner(room))
		req.Equal(owner, c.Owner(room))
		req.Contains(peers, owner)
		req.Equal(owner == "b", b.Owns(room))
	}
}

func TestShardOwnerStableAcrossPeerOrder(t *testing.T) {
	req := require.New(t)
	a := NewShard("a", []string{"a", "b", "c"})
	b := NewShard("b", []string{"c", "b", "a"})
	for i := 0; i < 50; i++ {
		room := domain.RoomID(fmt.Sprintf("conversation:x%d|y%d", i, i))
		req.Equal(a.Owner(room), b.Owner(room))
	}
}

func TestShardSoloInstanceOwnsEverything(t *testing.T) {
	req := require.New(t)
	s := NewShard("a", nil)
	req.Equal("a", s.Self())
	for _, room := range []domain.RoomID{"channel:dev", "conversation:a|b", "call:standup"} {
		req.True(s.Owns(room))
	}
}

func TestShardSelfImplicitlyJoinsPeerSet(t *testing.T) {
	req := require.New(t)
	s := NewShard("d", []string{"a", "b"})
	owned := false
	for i := 0; i < 200 && !owned; i++ {
		owned = s.Owns(domain.RoomID(fmt.Sprintf("channel:r%d", i)))
	}
	req.True(owned, "an instance missing from the peer list still takes its share")
}

func TestShardSpreadsRooms(t *testing.T) {
	req := require.New(t)
	s := NewShard("a", []string{"a", "b", "c"})
	owners := map[string]bool{}
	for i := 0; i < 120; i++ {
		owners[s.Owner(domain.RoomID(fmt.Sprintf("channel:room-%d", i)))] = true
	}
	req.GreaterOrEqual(len(owners), 2, "rendezvous hashing must not funnel every room to one peer")
}
