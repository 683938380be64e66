package app

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

// Fanout runs the message pipeline: membership check, validation,
// dedup, sequencing, persistence, then delivery to local members and
// the cluster. Rooms this instance does not own have their sends
// forwarded to the owner, so each stream has a single sequencer.
type Fanout struct {
	Registry   *Registry
	Rooms      *Rooms
	Store      core.MessageStore
	Cluster    *Cluster
	Shard      *Shard
	MaxPayload int

	now   func() time.Time
	newID func() string
}

func NewFanout(reg *Registry, rooms *Rooms, store core.MessageStore, cluster *Cluster, shard *Shard, maxPayload int) *Fanout {
	return &Fanout{
		Registry:   reg,
		Rooms:      rooms,
		Store:      store,
		Cluster:    cluster,
		Shard:      shard,
		MaxPayload: maxPayload,
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
	}
}

// Send accepts a new message from a local connection. The bool reports
// a replayed idempotency key, answered with the original record.
func (f *Fanout) Send(ctx context.Context, conn core.ConnID, roomID domain.RoomID, key, payload string) (domain.Message, bool, error) {
	user, ok := f.Registry.User(conn)
	if !ok {
		return domain.Message{}, false, fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	if !roomID.Sequenced() {
		return domain.Message{}, false, fmt.Errorf("%w: room %q carries no message stream", domain.ErrValidation, roomID)
	}
	return f.submit(ctx, conn, user.ID, roomID, domain.OpCreate, "", key, payload)
}

// Edit appends an edit record for a message the caller authored.
func (f *Fanout) Edit(ctx context.Context, conn core.ConnID, messageID, payload string) (domain.Message, error) {
	user, ok := f.Registry.User(conn)
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	orig, err := f.Store.Find(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if orig.Sender != user.ID {
		return domain.Message{}, fmt.Errorf("%w: not the author of %s", domain.ErrPermission, messageID)
	}
	msg, _, err := f.submit(ctx, conn, user.ID, orig.Room, domain.OpEdit, orig.ID, "", payload)
	return msg, err
}

// Delete appends a delete record for a message the caller authored.
func (f *Fanout) Delete(ctx context.Context, conn core.ConnID, messageID string) (domain.Message, error) {
	user, ok := f.Registry.User(conn)
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: unknown connection", domain.ErrPermission)
	}
	orig, err := f.Store.Find(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if orig.Sender != user.ID {
		return domain.Message{}, fmt.Errorf("%w: not the author of %s", domain.ErrPermission, messageID)
	}
	msg, _, err := f.submit(ctx, conn, user.ID, orig.Room, domain.OpDelete, orig.ID, "", "")
	return msg, err
}

// StreamPosition answers the room's current sequence, seeding it from
// the store on first use so a joiner's snapshot shows the real stream
// position instead of zero.
func (f *Fanout) StreamPosition(ctx context.Context, roomID domain.RoomID) (uint64, error) {
	if !roomID.Sequenced() {
		return 0, nil
	}
	room, ok := f.Rooms.Checkout(roomID)
	if !ok {
		return 0, nil
	}
	defer f.Rooms.Release(room)
	seed := func() (uint64, error) { return f.Store.LastSequence(ctx, roomID) }
	if err := room.EnsureSeeded(seed); err != nil {
		return 0, err
	}
	return room.Sequence(), nil
}

func (f *Fanout) submit(ctx context.Context, conn core.ConnID, user domain.UserID, roomID domain.RoomID, op domain.Op, ref, key, payload string) (domain.Message, bool, error) {
	room, ok := f.Rooms.Checkout(roomID)
	if !ok || !room.Has(conn) {
		if ok {
			f.Rooms.Release(room)
		}
		return domain.Message{}, false, fmt.Errorf("%w: not a member of %s", domain.ErrPermission, roomID)
	}
	defer f.Rooms.Release(room)

	if err := f.validate(op, payload); err != nil {
		return domain.Message{}, false, err
	}
	if f.Shard.Owns(roomID) {
		return f.accept(ctx, room, user, op, ref, key, payload)
	}
	return f.forward(ctx, user, roomID, op, ref, key, payload)
}

func (f *Fanout) validate(op domain.Op, payload string) error {
	if op != domain.OpDelete && payload == "" {
		return fmt.Errorf("%w: empty payload", domain.ErrValidation)
	}
	if len(payload) > f.MaxPayload {
		return fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrValidation, f.MaxPayload)
	}
	return nil
}

// AcceptForwarded runs the owner half of a forwarded send. The sender's
// instance already checked membership and authorship.
func (f *Fanout) AcceptForwarded(ctx context.Context, req sendRequest) (domain.Message, bool, error) {
	if !req.Room.Sequenced() {
		return domain.Message{}, false, fmt.Errorf("%w: room %q carries no message stream", domain.ErrValidation, req.Room)
	}
	if err := f.validate(req.Op, req.Payload); err != nil {
		return domain.Message{}, false, err
	}
	room := f.Rooms.Acquire(req.Room)
	defer f.Rooms.Release(room)
	return f.accept(ctx, room, req.User, req.Op, req.Ref, req.Key, req.Payload)
}

// accept is the single-writer section of the pipeline. It runs only on
// the room's owning instance.
func (f *Fanout) accept(ctx context.Context, room *core.Room, sender domain.UserID, op domain.Op, ref, key, payload string) (domain.Message, bool, error) {
	seed := func() (uint64, error) { return f.Store.LastSequence(ctx, room.ID()) }
	if err := room.EnsureSeeded(seed); err != nil {
		return domain.Message{}, false, err
	}

	msg := domain.Message{
		ID:      f.newID(),
		Room:    room.ID(),
		Sender:  sender,
		Op:      op,
		Ref:     ref,
		Key:     key,
		Payload: payload,
		Created: f.now().UTC(),
	}
	accepted, dup, err := room.Accept(msg, func(m domain.Message) error {
		return f.Store.Append(ctx, m)
	})
	if err != nil {
		return domain.Message{}, false, err
	}
	if dup {
		log.Debug().Str("module", "app.fanout").Str("room", string(room.ID())).Str("key", key).Msg("replay answered with original")
		return accepted, true, nil
	}
	f.deliver(ctx, room, accepted)
	return accepted, false, nil
}

// deliver pushes the record to local members first, then to the
// cluster. Remote instances guard ordering with the sequence number.
func (f *Fanout) deliver(ctx context.Context, room *core.Room, msg domain.Message) {
	room.MarkDelivered(msg.Seq)
	frame, ok := encode(protocol.NewMessageEvent(msg))
	if !ok {
		return
	}
	res := f.Registry.Fanout(room.Conns(), "", frame)
	log.Debug().Str("module", "app.fanout").Str("room", string(msg.Room)).Uint64("seq", msg.Seq).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("fanned out")
	f.Cluster.PublishRoomFrame(ctx, msg.Room, msg.Seq, frame)
}

func (f *Fanout) forward(ctx context.Context, user domain.UserID, roomID domain.RoomID, op domain.Op, ref, key, payload string) (domain.Message, bool, error) {
	owner := f.Shard.Owner(roomID)
	req := sendRequest{User: user, Room: roomID, Op: op, Ref: ref, Key: key, Payload: payload}
	var rep sendReply
	if err := f.Cluster.Request(ctx, sendSubject(owner), req, &rep); err != nil {
		return domain.Message{}, false, err
	}
	if rep.Code != "" {
		reason := rep.Reason
		if reason == "" {
			reason = "rejected by owner"
		}
		return domain.Message{}, false, fmt.Errorf("%s: %w", reason, domain.ErrFromCode(rep.Code))
	}
	log.Debug().Str("module", "app.fanout").Str("room", string(roomID)).Str("owner", owner).Uint64("seq", rep.Message.Seq).Msg("send forwarded")
	return rep.Message, rep.Duplicate, nil
}
