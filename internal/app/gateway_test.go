package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pulse/internal/domain"
)

func TestGatewayDisconnectCascade(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newSingleNode()
	gw.Typing.clear = time.Minute

	alice, _ := connect(t, gw, "alice")
	bob, bobConn := connect(t, gw, "bob")
	joinRoom(t, gw, alice, "channel:dev")
	joinRoom(t, gw, bob, "channel:dev")
	_, err := gw.Calls.Join(ctx, alice, "call:standup")
	req.NoError(err)
	_, err = gw.Calls.Join(ctx, bob, "call:standup")
	req.NoError(err)
	req.NoError(gw.Typing.Start(ctx, alice, "channel:dev"))

	gw.Disconnect(ctx, alice)

	req.Equal(1, gw.Registry.Count())
	req.Len(bobConn.typed("typing:inactive"), 1, "held indicators are lowered")
	left := bobConn.typed("member-left")
	req.Len(left, 1)
	req.Equal("alice", left[0]["userId"])
	req.Len(bobConn.typed("call:peer-left"), 1, "the call seat is given up")
	req.Equal(domain.StatusOnline, gw.Presence.Status("alice").Status,
		"the presence entry stays and lapses on its own deadline")

	gw.Disconnect(ctx, alice)
	req.Len(bobConn.typed("member-left"), 1, "a second disconnect is a no-op")
}

func TestGatewayDisconnectFiresCancel(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newSingleNode()

	user, err := domain.NewUser("carol", "")
	req.NoError(err)
	var cancelled bool
	id := gw.Connect(ctx, user, &fakeConn{}, func() { cancelled = true })

	gw.Disconnect(ctx, id)
	req.True(cancelled, "closing must release the connection context")
}

func TestGatewayJoinRules(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newSingleNode()

	alice, aliceConn := connect(t, gw, "alice")
	bob, _ := connect(t, gw, "bob")

	members, err := gw.JoinRoom(ctx, alice, "channel:dev")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice"}, members)

	members, err = gw.JoinRoom(ctx, bob, "channel:dev")
	req.NoError(err)
	req.Len(members, 2)
	joined := aliceConn.typed("member-joined")
	req.Len(joined, 1)
	req.Equal("bob", joined[0]["userId"])

	_, err = gw.JoinRoom(ctx, bob, "channel:dev")
	req.NoError(err, "re-joining is idempotent")
	req.Len(aliceConn.typed("member-joined"), 1, "a re-join never re-announces")

	_, err = gw.JoinRoom(ctx, alice, "call:standup")
	req.ErrorIs(err, domain.ErrValidation, "call rooms are entered through the call flow")
	_, err = gw.JoinRoom(ctx, "nope", "channel:dev")
	req.ErrorIs(err, domain.ErrPermission)

	req.NoError(gw.LeaveRoom(ctx, bob, "channel:dev"))
	req.Len(aliceConn.typed("member-left"), 1)
	req.NoError(gw.LeaveRoom(ctx, bob, "channel:dev"))
	req.Len(aliceConn.typed("member-left"), 1, "leaving a room twice stays quiet")
	req.ErrorIs(gw.LeaveRoom(ctx, bob, "call:standup"), domain.ErrValidation)
}

func TestGatewayRemotePresencePushesWithoutMirroring(t *testing.T) {
	req := require.New(t)
	gw := newSingleNode()
	_, viewerConn := connect(t, gw, "viewer")

	env, err := json.Marshal(presenceEnvelope{Origin: "b", User: "zoe", Status: domain.StatusOnline, At: time.Now()})
	req.NoError(err)
	gw.onRemotePresence(env)

	events := viewerConn.typed("presence:changed")
	req.Len(events, 2, "the connect heartbeat plus the remote event")
	req.Equal("zoe", events[1]["userId"])
	req.Equal(domain.StatusOffline, gw.Presence.Status("zoe").Status,
		"remote entries are pushed through, never mirrored")

	own, err := json.Marshal(presenceEnvelope{Origin: gw.Cluster.Origin(), User: "zoe", Status: domain.StatusIdle, At: time.Now()})
	req.NoError(err)
	gw.onRemotePresence(own)
	req.Len(viewerConn.typed("presence:changed"), 2, "an instance ignores its own envelopes")
}
