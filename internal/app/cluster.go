package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

const (
	subjectRooms      = "pulse.rooms"
	subjectPresence   = "pulse.presence"
	subjectCalls      = "pulse.calls"
	subjectSendPrefix = "pulse.send."
)

func sendSubject(instance string) string { return subjectSendPrefix + instance }

// roomEnvelope relays one already-encoded client frame to peers. Seq is
// set for sequenced stream records and zero for membership and typing
// frames, which are safe to replay.
type roomEnvelope struct {
	Origin string          `json:"origin"`
	Room   domain.RoomID   `json:"roomId"`
	Seq    uint64          `json:"sequence,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

type presenceEnvelope struct {
	Origin string        `json:"origin"`
	User   domain.UserID `json:"userId"`
	Status domain.Status `json:"status"`
	At     time.Time     `json:"at"`
}

type callEnvelope struct {
	Origin  string          `json:"origin"`
	Kind    string          `json:"kind"` // join, leave, signal, ended
	Room    domain.RoomID   `json:"roomId"`
	From    domain.UserID   `json:"fromUserId,omitempty"`
	To      domain.UserID   `json:"toUserId,omitempty"`
	Signal  string          `json:"signal,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// sendRequest forwards a validated send to the room's owning instance.
// Membership and authorship were checked where the sender is connected.
type sendRequest struct {
	User    domain.UserID `json:"userId"`
	Room    domain.RoomID `json:"roomId"`
	Op      domain.Op     `json:"op"`
	Ref     string        `json:"ref,omitempty"`
	Key     string        `json:"key,omitempty"`
	Payload string        `json:"payload,omitempty"`
}

type sendReply struct {
	Code      string         `json:"code,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Message   domain.Message `json:"message"`
	Duplicate bool           `json:"duplicate,omitempty"`
}

// Cluster wraps the bus with the gateway's publish discipline: origin
// tagging, bounded retry with backoff, and log-and-drop on exhaustion.
// A nil bus turns every call into a no-op, which is single-node mode.
type Cluster struct {
	bus     core.Bus
	origin  string
	retries int
	backoff time.Duration
}

func NewCluster(bus core.Bus, origin string, retries int, backoff time.Duration) *Cluster {
	return &Cluster{bus: bus, origin: origin, retries: retries, backoff: backoff}
}

func (c *Cluster) Enabled() bool  { return c.bus != nil }
func (c *Cluster) Origin() string { return c.origin }

// Publish fans v out to peers. Local delivery already happened by the
// time this runs, so on exhausted retries the event is dropped for
// remote consumers and only logged.
func (c *Cluster) Publish(ctx context.Context, subject string, v any) {
	if c.bus == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "app.cluster").Err(err).Msg("encode envelope")
		return
	}
	if err := c.publishRetry(ctx, subject, data); err != nil {
		log.Warn().Str("module", "app.cluster").Str("subject", subject).Err(err).Msg("publish dropped")
	}
}

func (c *Cluster) publishRetry(ctx context.Context, subject string, data []byte) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff << (attempt - 1)):
			}
		}
		if err = c.bus.Publish(ctx, subject, data); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientCluster, err)
}

// PublishRoomFrame relays an encoded client frame to peers holding
// members of the room.
func (c *Cluster) PublishRoomFrame(ctx context.Context, room domain.RoomID, seq uint64, frame core.Frame) {
	c.Publish(ctx, subjectRooms, roomEnvelope{Origin: c.origin, Room: room, Seq: seq, Frame: json.RawMessage(frame)})
}

// Request sends v to one peer and decodes the answer into reply.
func (c *Cluster) Request(ctx context.Context, subject string, v, reply any) error {
	if c.bus == nil {
		return fmt.Errorf("%w: no bus configured", domain.ErrTransientCluster)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	raw, err := c.bus.Request(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientCluster, err)
	}
	if err := json.Unmarshal(raw, reply); err != nil {
		return fmt.Errorf("%w: bad reply: %v", domain.ErrTransientCluster, err)
	}
	return nil
}

func (c *Cluster) Subscribe(subject string, fn func(data []byte)) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Subscribe(subject, fn)
}

func (c *Cluster) Respond(subject string, fn func(data []byte) []byte) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Respond(subject, fn)
}
