package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

// Gateway binds the services into the connection lifecycle: admit,
// route, cascade on disconnect, and fold cluster events back in.
type Gateway struct {
	Registry *Registry
	Rooms    *Rooms
	Presence *Presence
	Fanout   *Fanout
	Calls    *Calls
	Typing   *Typing
	Perm     core.PermissionChecker
	Cluster  *Cluster
}

// Connect admits an authenticated connection. Opening counts as the
// first heartbeat.
func (g *Gateway) Connect(ctx context.Context, user *domain.User, conn core.Conn, cancel context.CancelFunc) core.ConnID {
	id := g.Registry.Open(user, conn, cancel)
	if err := g.Presence.Heartbeat(ctx, user.ID, domain.StatusOnline, ""); err != nil {
		log.Warn().Str("module", "app.gateway").Err(err).Msg("presence on connect")
	}
	return id
}

// Disconnect tears a connection down: memberships, typing indicators
// and call seats go, the presence entry stays and lapses on its own
// deadline. Idempotent, the transport and the registry both call it.
func (g *Gateway) Disconnect(ctx context.Context, id core.ConnID) {
	user, rooms, ok := g.Registry.Close(id)
	if !ok {
		return
	}
	g.Typing.Disconnected(ctx, id)
	for _, roomID := range rooms {
		g.departRoom(ctx, id, user.ID, roomID)
	}
	log.Info().Str("module", "app.gateway").Str("conn", string(id)).Str("user", string(user.ID)).Msg("disconnected")
}

func (g *Gateway) departRoom(ctx context.Context, conn core.ConnID, user domain.UserID, roomID domain.RoomID) {
	if _, removed := g.Rooms.Leave(roomID, conn); !removed {
		return
	}
	if roomID.Kind() == domain.RoomCall {
		g.Calls.Disconnected(ctx, user, roomID)
		return
	}
	g.announceRoom(ctx, roomID, conn, protocol.NewMemberLeft(roomID, user, time.Now().UTC()))
}

// JoinRoom adds the connection to a channel or conversation and returns
// the roster. Re-joining is an idempotent no-op.
func (g *Gateway) JoinRoom(ctx context.Context, conn core.ConnID, roomID domain.RoomID) ([]domain.UserID, error) {
	user, ok := g.Registry.User(conn)
	if !ok {
		return nil, fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	if roomID.Kind() == domain.RoomCall {
		return nil, fmt.Errorf("%w: call rooms are joined with call:join", domain.ErrValidation)
	}
	if err := g.Perm.Allow(ctx, user.ID, roomID); err != nil {
		return nil, err
	}

	room, added := g.Rooms.Join(roomID, conn, user.ID)
	g.Registry.TrackRoom(conn, roomID)
	if added {
		g.announceRoom(ctx, roomID, conn, protocol.NewMemberJoined(roomID, user.ID, time.Now().UTC()))
	}
	return room.Users(), nil
}

// LeaveRoom removes the connection from the room. Leaving a room the
// connection is not in is a no-op, mirroring joins.
func (g *Gateway) LeaveRoom(ctx context.Context, conn core.ConnID, roomID domain.RoomID) error {
	user, ok := g.Registry.User(conn)
	if !ok {
		return fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	if roomID.Kind() == domain.RoomCall {
		return fmt.Errorf("%w: call rooms are left with call:leave", domain.ErrValidation)
	}
	g.Typing.Left(conn, roomID)
	g.Registry.UntrackRoom(conn, roomID)
	if _, removed := g.Rooms.Leave(roomID, conn); removed {
		g.announceRoom(ctx, roomID, conn, protocol.NewMemberLeft(roomID, user.ID, time.Now().UTC()))
	}
	return nil
}

// announceRoom pushes a room event to local members except the actor,
// then relays it to peers. Membership frames carry no sequence, they
// are safe to replay.
func (g *Gateway) announceRoom(ctx context.Context, roomID domain.RoomID, except core.ConnID, v any) {
	frame, ok := encode(v)
	if !ok {
		return
	}
	if room, live := g.Rooms.Peek(roomID); live {
		g.Registry.Fanout(room.Conns(), except, frame)
	}
	g.Cluster.PublishRoomFrame(ctx, roomID, 0, frame)
}

// BindCluster wires the bus subscriptions. Call it once before serving.
func (g *Gateway) BindCluster() error {
	if !g.Cluster.Enabled() {
		return nil
	}
	if err := g.Cluster.Subscribe(subjectRooms, g.onRemoteRoomFrame); err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectRooms, err)
	}
	if err := g.Cluster.Subscribe(subjectPresence, g.onRemotePresence); err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectPresence, err)
	}
	if err := g.Cluster.Subscribe(subjectCalls, g.onRemoteCall); err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectCalls, err)
	}
	subject := sendSubject(g.Cluster.Origin())
	if err := g.Cluster.Respond(subject, g.onForwardedSend); err != nil {
		return fmt.Errorf("respond %s: %w", subject, err)
	}
	log.Info().Str("module", "app.gateway").Str("instance", g.Cluster.Origin()).Msg("cluster bound")
	return nil
}

func (g *Gateway) onRemoteRoomFrame(data []byte) {
	var env roomEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "app.gateway").Err(err).Msg("bad room envelope")
		return
	}
	if env.Origin == g.Cluster.Origin() {
		return
	}
	room, ok := g.Rooms.Peek(env.Room)
	if !ok {
		return
	}
	if env.Seq > 0 && !room.MarkDelivered(env.Seq) {
		log.Debug().Str("module", "app.gateway").Str("room", string(env.Room)).Uint64("seq", env.Seq).Msg("replayed frame dropped")
		return
	}
	g.Registry.Fanout(room.Conns(), "", core.Frame(env.Frame))
}

func (g *Gateway) onRemotePresence(data []byte) {
	var env presenceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "app.gateway").Err(err).Msg("bad presence envelope")
		return
	}
	if env.Origin == g.Cluster.Origin() {
		return
	}
	g.Presence.ApplyRemote(env.User, env.Status, env.At)
}

func (g *Gateway) onRemoteCall(data []byte) {
	var env callEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "app.gateway").Err(err).Msg("bad call envelope")
		return
	}
	if env.Origin == g.Cluster.Origin() {
		return
	}
	g.Calls.ApplyRemote(env)
}

func (g *Gateway) onForwardedSend(data []byte) []byte {
	var req sendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return marshalReply(sendReply{Code: domain.CodeValidation, Reason: "bad send request"})
	}
	msg, dup, err := g.Fanout.AcceptForwarded(context.Background(), req)
	if err != nil {
		return marshalReply(sendReply{Code: domain.CodeOf(err), Reason: err.Error()})
	}
	return marshalReply(sendReply{Message: msg, Duplicate: dup})
}

func marshalReply(rep sendReply) []byte {
	data, err := json.Marshal(rep)
	if err != nil {
		return []byte(`{"code":"internal"}`)
	}
	return data
}
