package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pulse/internal/domain"
)

func newPresenceFixture(ttl time.Duration) (*Presence, *Registry) {
	reg := NewRegistry()
	return NewPresence(reg, NewCluster(nil, "a", 1, 0), ttl, ttl/2), reg
}

func TestPresenceTTLExpiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, _ := newPresenceFixture(30 * time.Second)

	base := time.Now()
	clock := base
	p.now = func() time.Time { return clock }

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))

	clock = base.Add(29 * time.Second)
	req.Equal(domain.StatusOnline, p.Status("bob").Status)

	clock = base.Add(31 * time.Second)
	req.Equal(domain.StatusOffline, p.Status("bob").Status, "a lapsed entry reads offline before any sweep")
}

func TestPresenceHeartbeatExtendsDeadline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, _ := newPresenceFixture(30 * time.Second)

	base := time.Now()
	clock := base
	p.now = func() time.Time { return clock }

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))
	clock = base.Add(20 * time.Second)
	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))

	clock = base.Add(49 * time.Second)
	req.Equal(domain.StatusOnline, p.Status("bob").Status, "renewal at T pushes the deadline to T+TTL")

	clock = base.Add(51 * time.Second)
	req.Equal(domain.StatusOffline, p.Status("bob").Status)
}

func TestPresenceBroadcastsOnlyTransitions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, reg := newPresenceFixture(30 * time.Second)

	viewer, err := domain.NewUser("viewer", "")
	req.NoError(err)
	conn := &fakeConn{}
	reg.Open(viewer, conn, nil)

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))
	req.Len(conn.typed("presence:changed"), 1)

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))
	req.Len(conn.typed("presence:changed"), 1, "renewals that keep the status stay quiet")

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusIdle, ""))
	events := conn.typed("presence:changed")
	req.Len(events, 2)
	req.Equal("idle", events[1]["status"])
}

func TestPresenceSweepAnnouncesLapsedEntries(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, reg := newPresenceFixture(30 * time.Second)

	viewer, err := domain.NewUser("viewer", "")
	req.NoError(err)
	conn := &fakeConn{}
	reg.Open(viewer, conn, nil)

	base := time.Now()
	clock := base
	p.now = func() time.Time { return clock }

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))
	req.Len(conn.typed("presence:changed"), 1)

	clock = base.Add(31 * time.Second)
	p.Sweep(ctx)
	events := conn.typed("presence:changed")
	req.Len(events, 2)
	req.Equal("offline", events[1]["status"])
	req.Empty(p.entries)

	p.Sweep(ctx)
	req.Len(conn.typed("presence:changed"), 2, "eviction announces once")
}

func TestPresenceSweepQuietForExplicitOffline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, reg := newPresenceFixture(30 * time.Second)

	viewer, err := domain.NewUser("viewer", "")
	req.NoError(err)
	conn := &fakeConn{}
	reg.Open(viewer, conn, nil)

	base := time.Now()
	clock := base
	p.now = func() time.Time { return clock }

	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOnline, ""))
	req.NoError(p.Heartbeat(ctx, "bob", domain.StatusOffline, ""))
	req.Len(conn.typed("presence:changed"), 2)

	clock = base.Add(31 * time.Second)
	p.Sweep(ctx)
	req.Len(conn.typed("presence:changed"), 2, "an entry already offline is evicted without a third event")
	req.Empty(p.entries)
}

func TestPresenceHeartbeatValidatesStatus(t *testing.T) {
	req := require.New(t)
	p, _ := newPresenceFixture(30 * time.Second)
	err := p.Heartbeat(context.Background(), "bob", "away", "")
	req.ErrorIs(err, domain.ErrValidation)
}

func TestPresenceUnknownUserReadsOffline(t *testing.T) {
	req := require.New(t)
	p, _ := newPresenceFixture(30 * time.Second)
	entry := p.Status("ghost")
	req.Equal(domain.StatusOffline, entry.Status)
	req.Equal(domain.UserID("ghost"), entry.User)
}

func TestPresenceTracksRoomHint(t *testing.T) {
	req := require.New(t)
	p, _ := newPresenceFixture(30 * time.Second)
	req.NoError(p.Heartbeat(context.Background(), "bob", domain.StatusOnline, "channel:dev"))
	req.Equal(domain.RoomID("channel:dev"), p.Status("bob").RoomHint)
}
